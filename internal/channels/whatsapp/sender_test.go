package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayline/hotel-concierge/internal/conversation"
)

func TestTwilioSender_SendReply(t *testing.T) {
	var gotPath string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotForm = map[string]string{
			"To":   r.FormValue("To"),
			"From": r.FormValue("From"),
			"Body": r.FormValue("Body"),
		}
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "token", "+14155550000", nil)
	sender.baseURL = srv.URL

	err := sender.SendReply(context.Background(), conversation.OutboundReply{
		UserID:  "whatsapp:+14155551234",
		To:      "+14155551234",
		Body:    "Your booking is confirmed.",
		Channel: conversation.ChannelWhatsApp,
	})
	require.NoError(t, err)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "whatsapp:+14155551234", gotForm["To"])
	assert.Equal(t, "whatsapp:+14155550000", gotForm["From"])
	assert.Equal(t, "Your booking is confirmed.", gotForm["Body"])
}

func TestTwilioSender_ClientErrorNoRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "token", "+14155550000", nil)
	sender.baseURL = srv.URL

	err := sender.SendReply(context.Background(), conversation.OutboundReply{
		To:   "+1",
		Body: "hi",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
	assert.Equal(t, 1, calls)
}

func TestTwilioSender_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "token", "+14155550000", nil)
	sender.baseURL = srv.URL

	err := sender.SendReply(context.Background(), conversation.OutboundReply{
		To:   "+14155551234",
		Body: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestTwilioSender_Validation(t *testing.T) {
	sender := NewTwilioSender("", "", "+14155550000", nil)
	err := sender.SendReply(context.Background(), conversation.OutboundReply{To: "+1", Body: "hi"})
	assert.Error(t, err)

	sender = NewTwilioSender("AC123", "token", "+14155550000", nil)
	err = sender.SendReply(context.Background(), conversation.OutboundReply{Body: "hi"})
	assert.Error(t, err)

	err = sender.SendReply(context.Background(), conversation.OutboundReply{To: "+1", Body: "  "})
	assert.Error(t, err)
}

func TestLoggingSender(t *testing.T) {
	sender := NewLoggingSender(nil)
	assert.NoError(t, sender.SendReply(context.Background(), conversation.OutboundReply{
		UserID: "u1",
		To:     "+14155551234",
		Body:   "hello",
	}))
}
