package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/internal/pms"
)

func newTestService(t *testing.T) *conversation.Service {
	t.Helper()
	engine := conversation.NewEngine(pms.NewMockClient(), nil, "", nil, nil)
	return conversation.NewService(engine, conversation.NewMemorySessionStore(time.Hour), nil)
}

func postForm(t *testing.T, h *Handler, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)
	return w
}

func TestWebhook_InlineReply(t *testing.T) {
	h := NewHandler(newTestService(t), nil)

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "whatsapp:+14155551234")
	form.Set("Body", "2026-12-10 to 2026-12-12 for 2 guests")

	w := postForm(t, h, form, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<Message>")
	assert.Contains(t, w.Body.String(), "available rooms")
}

func TestWebhook_MissingFrom(t *testing.T) {
	h := NewHandler(newTestService(t), nil)

	form := url.Values{}
	form.Set("Body", "hello")

	w := postForm(t, h, form, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubDeduper struct {
	seen map[string]bool
	err  error
}

func (d *stubDeduper) MarkProcessed(ctx context.Context, channel, eventID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	key := channel + ":" + eventID
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func TestWebhook_DuplicateDropped(t *testing.T) {
	h := NewHandler(newTestService(t), nil, WithDeduper(&stubDeduper{}))

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "whatsapp:+14155551234")
	form.Set("Body", "hello")

	w := postForm(t, h, form, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Message>")

	// Redelivery of the same MessageSid acknowledges with empty TwiML.
	w = postForm(t, h, form, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<Message>")
	assert.Contains(t, w.Body.String(), "<Response>")
}

func TestWebhook_DedupeFailureProcessesAnyway(t *testing.T) {
	h := NewHandler(newTestService(t), nil, WithDeduper(&stubDeduper{err: assert.AnError}))

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "whatsapp:+14155551234")
	form.Set("Body", "hello")

	w := postForm(t, h, form, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Message>")
}

type stubPublisher struct {
	utterances []conversation.Utterance
}

func (p *stubPublisher) EnqueueUtterance(ctx context.Context, jobID string, utt conversation.Utterance, opts ...conversation.PublishOption) (string, error) {
	p.utterances = append(p.utterances, utt)
	return "job-1", nil
}

func TestWebhook_QueuedMode(t *testing.T) {
	pub := &stubPublisher{}
	h := NewHandler(newTestService(t), nil, WithQueue(pub))

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "whatsapp:+14155551234")
	form.Set("Body", "hello")

	w := postForm(t, h, form, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<Message>")

	require.Len(t, pub.utterances, 1)
	assert.Equal(t, "whatsapp:+14155551234", pub.utterances[0].UserID)
	assert.Equal(t, conversation.ChannelWhatsApp, pub.utterances[0].Channel)
	assert.Equal(t, "hello", pub.utterances[0].Text)
}

func TestWebhook_SignatureVerification(t *testing.T) {
	const (
		authToken = "secret-token"
		publicURL = "https://concierge.example.com/webhooks/whatsapp"
	)
	h := NewHandler(newTestService(t), nil, WithSignatureVerification(authToken, publicURL))

	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "whatsapp:+14155551234")
	form.Set("Body", "hello")

	// No signature header.
	w := postForm(t, h, form, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Wrong signature.
	w = postForm(t, h, form, map[string]string{"X-Twilio-Signature": "bogus"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Correct signature.
	sig := computeSignature(buildSignaturePayload(publicURL, form), authToken)
	w = postForm(t, h, form, map[string]string{"X-Twilio-Signature": sig})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUserID(t *testing.T) {
	assert.Equal(t, "whatsapp:+14155551234", UserID("whatsapp:+14155551234"))
	assert.Equal(t, "whatsapp:+14155551234", UserID("+14155551234"))
	assert.Equal(t, "whatsapp:+14155551234", UserID("  whatsapp:+14155551234 "))
}
