package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stayline/hotel-concierge/internal/channels/voice"
	"github.com/stayline/hotel-concierge/internal/channels/whatsapp"
	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/internal/http/handlers"
	httpmiddleware "github.com/stayline/hotel-concierge/internal/http/middleware"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

// Config holds router configuration. Nil handlers disable their routes.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WhatsAppWebhook     *whatsapp.Handler
	VoiceGateway        *voice.Gateway
	AdminMessaging      *handlers.AdminMessagingHandler
	AdminAuthSecret     string
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	WebhookRatePerMin   int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: health, webhooks, voice gateway, metrics.
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)

		if cfg.WhatsAppWebhook != nil {
			public.With(httpmiddleware.RateLimit(cfg.WebhookRatePerMin)).
				Post("/webhooks/whatsapp", cfg.WhatsAppWebhook.HandleInbound)
		}
		if cfg.VoiceGateway != nil {
			public.Get("/voice/ws", cfg.VoiceGateway.HandleWS)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// JSON conversation API.
	if cfg.ConversationHandler != nil {
		r.Route("/api/conversations", func(api chi.Router) {
			api.Post("/message", cfg.ConversationHandler.Message)
			api.Get("/jobs/{jobID}", cfg.ConversationHandler.Job)
		})
	}

	// Admin surface behind JWT auth.
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		if cfg.ConversationHandler != nil {
			admin.Get("/sessions/{userID}", cfg.ConversationHandler.Session)
			admin.Delete("/sessions/{userID}", cfg.ConversationHandler.ResetSession)
			admin.Get("/conversations/{userID}", cfg.ConversationHandler.Transcript)
		}
		if cfg.AdminMessaging != nil {
			admin.Post("/messages:send", cfg.AdminMessaging.SendMessage)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
