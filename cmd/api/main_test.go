package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stayline/hotel-concierge/internal/channels/whatsapp"
	appconfig "github.com/stayline/hotel-concierge/internal/config"
	"github.com/stayline/hotel-concierge/internal/pms"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

func TestSetupMetricsExposesEngineCounters(t *testing.T) {
	handler, engineMetrics := setupMetrics()
	if handler == nil || engineMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	engineMetrics.ObserveMessage("whatsapp")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "concierge_conversation_messages_total") {
		t.Fatalf("expected message counter to be exported")
	}
}

func TestBuildReservationBackendDefaultsToMock(t *testing.T) {
	logger := logging.New("error")
	backend := buildReservationBackend(&appconfig.Config{}, logger)
	if _, ok := backend.(*pms.MockClient); !ok {
		t.Fatalf("expected mock backend without PMS_BASE_URL, got %T", backend)
	}
}

func TestBuildMessengerWithoutCredentials(t *testing.T) {
	logger := logging.New("error")
	messenger := buildMessenger(&appconfig.Config{}, logger)
	if _, ok := messenger.(*whatsapp.LoggingSender); !ok {
		t.Fatalf("expected logging sender without Twilio credentials, got %T", messenger)
	}
}
