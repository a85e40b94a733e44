package whatsapp

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

// Deduper drops webhook deliveries that were already handled. The first
// delivery of a message wins; retries are acknowledged without effect.
type Deduper interface {
	MarkProcessed(ctx context.Context, channel, eventID string) (bool, error)
}

// Publisher enqueues utterance jobs for the worker fleet.
type Publisher interface {
	EnqueueUtterance(ctx context.Context, jobID string, utt conversation.Utterance, opts ...conversation.PublishOption) (string, error)
}

// Handler receives Twilio-style message webhooks and answers with TwiML.
// Inline mode runs the conversation engine on the request; queued mode
// acknowledges immediately and lets a worker reply through the sender.
type Handler struct {
	service   *conversation.Service
	publisher Publisher
	dedupe    Deduper
	authToken string
	publicURL string
	logger    *logging.Logger
}

// Option customizes the webhook handler.
type Option func(*Handler)

// WithSignatureVerification rejects requests whose X-Twilio-Signature
// does not match authToken over publicURL.
func WithSignatureVerification(authToken, publicURL string) Option {
	return func(h *Handler) {
		h.authToken = authToken
		h.publicURL = publicURL
	}
}

// WithQueue switches the handler to queued mode.
func WithQueue(publisher Publisher) Option {
	return func(h *Handler) {
		h.publisher = publisher
	}
}

// WithDeduper enables duplicate-delivery suppression.
func WithDeduper(dedupe Deduper) Option {
	return func(h *Handler) {
		h.dedupe = dedupe
	}
}

// NewHandler creates the webhook handler.
func NewHandler(service *conversation.Service, logger *logging.Logger, opts ...Option) *Handler {
	if service == nil {
		panic("whatsapp: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		service: service,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleInbound is the POST /webhooks/whatsapp endpoint.
func (h *Handler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	if h.authToken != "" && !ValidateSignature(r, h.authToken, h.publicURL) {
		h.logger.Warn("whatsapp webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	msg, err := ParseWebhook(r)
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(msg.From) == "" {
		http.Error(w, "From is required", http.StatusBadRequest)
		return
	}

	if h.dedupe != nil && msg.MessageSid != "" {
		first, err := h.dedupe.MarkProcessed(r.Context(), string(conversation.ChannelWhatsApp), msg.MessageSid)
		if err != nil {
			// Dedupe is protection, not a gate. Process anyway.
			h.logger.Error("whatsapp dedupe check failed", "error", err, "message_sid", msg.MessageSid)
		} else if !first {
			h.logger.Info("whatsapp duplicate delivery dropped", "message_sid", msg.MessageSid)
			writeTwiML(w, "")
			return
		}
	}

	utt := conversation.Utterance{
		UserID:     UserID(msg.From),
		Text:       msg.Body,
		Channel:    conversation.ChannelWhatsApp,
		ReceivedAt: time.Now().UTC(),
	}

	if h.publisher != nil {
		if _, err := h.publisher.EnqueueUtterance(r.Context(), "", utt,
			conversation.WithReplyTo(msg.From),
			conversation.WithoutJobTracking(),
		); err != nil {
			h.logger.Error("failed to enqueue whatsapp message", "error", err, "user_id", utt.UserID)
			http.Error(w, "Failed to process message", http.StatusInternalServerError)
			return
		}
		writeTwiML(w, "")
		return
	}

	reply, err := h.service.ProcessUtterance(r.Context(), utt)
	if err != nil {
		h.logger.Error("failed to process whatsapp message", "error", err, "user_id", utt.UserID)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	writeTwiML(w, reply.Text)
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	out, err := xml.Marshal(twimlResponse{Message: body})
	if err != nil {
		_, _ = w.Write([]byte("<Response></Response>"))
		return
	}
	_, _ = w.Write(out)
}
