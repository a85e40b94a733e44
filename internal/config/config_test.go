package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PMS_BASE_URL", "")
	t.Setenv("QUEUE_BACKEND", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.PMSBaseURL != "" {
		t.Fatalf("expected default PMS base URL empty, got %s", cfg.PMSBaseURL)
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("expected default session TTL, got %s", cfg.SessionTTL)
	}
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.WebhookRatePerMin != 30 {
		t.Fatalf("expected default webhook rate, got %d", cfg.WebhookRatePerMin)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins by default, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("PMS_BASE_URL", "https://pms.example.com")
	t.Setenv("PMS_TIMEOUT", "5s")
	t.Setenv("QUEUE_BACKEND", "SQS")
	t.Setenv("CONVERSATION_QUEUE_URL", "http://localhost:4566/000000000000/conversation-jobs")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected session TTL override, got %s", cfg.SessionTTL)
	}
	if cfg.PMSBaseURL != "https://pms.example.com" {
		t.Fatalf("expected PMS base URL override, got %s", cfg.PMSBaseURL)
	}
	if cfg.PMSTimeout != 5*time.Second {
		t.Fatalf("expected PMS timeout override, got %s", cfg.PMSTimeout)
	}
	if cfg.QueueBackend != "sqs" {
		t.Fatalf("expected queue backend lowered, got %s", cfg.QueueBackend)
	}
	if cfg.ConversationQueueURL == "" {
		t.Fatalf("expected queue URL override")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("expected CORS origins parsed, got %v", cfg.CORSAllowedOrigins)
	}
}
