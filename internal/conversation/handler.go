package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stayline/hotel-concierge/pkg/logging"
)

// Handler wires HTTP requests to the conversation service. When a
// publisher and job recorder are configured, messages are accepted with
// 202 and processed by the worker fleet; otherwise they run inline.
type Handler struct {
	service   *Service
	publisher *Publisher
	jobs      JobRecorder
	logger    *logging.Logger
}

// HandlerOption customizes the handler.
type HandlerOption func(*Handler)

// WithAsyncProcessing enables queue-backed processing for POST message
// requests that ask for it.
func WithAsyncProcessing(publisher *Publisher, jobs JobRecorder) HandlerOption {
	return func(h *Handler) {
		h.publisher = publisher
		h.jobs = jobs
	}
}

// NewHandler creates a conversation handler.
func NewHandler(service *Service, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
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

type messageRequest struct {
	UserID  string `json:"user_id"`
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
	Async   bool   `json:"async,omitempty"`
}

type asyncAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Message handles POST /api/conversations/message.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	utt := Utterance{
		UserID:     req.UserID,
		Text:       req.Text,
		Channel:    Channel(req.Channel),
		ReceivedAt: time.Now().UTC(),
	}
	if utt.Channel == ChannelUnknown {
		utt.Channel = ChannelAPI
	}

	if req.Async {
		h.acceptAsync(w, r, utt)
		return
	}

	reply, err := h.service.ProcessUtterance(r.Context(), utt)
	if err != nil {
		h.logger.Error("failed to process message", "error", err, "user_id", req.UserID)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) acceptAsync(w http.ResponseWriter, r *http.Request, utt Utterance) {
	if h.publisher == nil || h.jobs == nil {
		http.Error(w, "Async processing is not enabled", http.StatusNotImplemented)
		return
	}

	jobID, err := h.publisher.EnqueueUtterance(r.Context(), "", utt)
	if err != nil {
		h.logger.Error("failed to enqueue message", "error", err, "user_id", utt.UserID)
		http.Error(w, "Failed to enqueue message", http.StatusInternalServerError)
		return
	}
	if err := h.jobs.PutPending(r.Context(), &JobRecord{JobID: jobID, UserID: utt.UserID, Utterance: &utt}); err != nil {
		h.logger.Error("failed to record pending job", "error", err, "job_id", jobID)
	}
	h.writeJSON(w, http.StatusAccepted, asyncAccepted{JobID: jobID, Status: string(JobStatusPending)})
}

// Job handles GET /api/conversations/jobs/{jobID}.
func (h *Handler) Job(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "Async processing is not enabled", http.StatusNotImplemented)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch job", "error", err, "job_id", jobID)
		http.Error(w, "Failed to fetch job", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// Session handles GET /admin/sessions/{userID}.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	state, err := h.service.SessionSnapshot(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load session", "error", err, "user_id", userID)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	if state == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// ResetSession handles DELETE /admin/sessions/{userID}.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.service.ResetSession(r.Context(), userID); err != nil {
		h.logger.Error("failed to reset session", "error", err, "user_id", userID)
		http.Error(w, "Failed to reset session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transcript handles GET /admin/transcripts/{userID}.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	msgs, err := h.service.Transcript(r.Context(), userID, 200)
	if err != nil {
		h.logger.Error("failed to load transcript", "error", err, "user_id", userID)
		http.Error(w, "Failed to load transcript", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"messages": msgs,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
