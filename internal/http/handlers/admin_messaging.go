package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/internal/http/middleware"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

// AdminMessagingHandler hosts privileged endpoints for outbound
// messaging operations.
type AdminMessagingHandler struct {
	messenger conversation.ReplyMessenger
	logger    *logging.Logger
}

// NewAdminMessagingHandler wires the outbound messenger for operator use.
func NewAdminMessagingHandler(messenger conversation.ReplyMessenger, logger *logging.Logger) *AdminMessagingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminMessagingHandler{
		messenger: messenger,
		logger:    logger,
	}
}

type sendMessageRequest struct {
	To      string `json:"to"`
	Body    string `json:"body"`
	Channel string `json:"channel,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// SendMessage handles POST /admin/messages:send. Operators use it to
// reach a guest outside the normal conversation flow.
func (h *AdminMessagingHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if h.messenger == nil {
		http.Error(w, "Outbound messaging is not configured", http.StatusNotImplemented)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Body) == "" {
		http.Error(w, "to and body are required", http.StatusBadRequest)
		return
	}

	operator, _ := middleware.OperatorFromContext(r.Context())

	reply := conversation.OutboundReply{
		UserID:  req.UserID,
		To:      req.To,
		Body:    req.Body,
		Channel: conversation.Channel(req.Channel),
	}
	if err := h.messenger.SendReply(r.Context(), reply); err != nil {
		h.logger.Error("admin send failed", "error", err, "to", req.To, "operator", operator)
		http.Error(w, "Failed to send message", http.StatusBadGateway)
		return
	}
	h.logger.Info("operator message sent", "to", req.To, "operator", operator)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}
