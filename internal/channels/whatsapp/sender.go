package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

var senderTracer = otel.Tracer("concierge.internal.channels.whatsapp")

// TwilioSender posts outbound messages through Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioSender builds a sender with sane defaults. from is the
// hotel's WhatsApp-enabled number in E.164.
func NewTwilioSender(accountSID, authToken, from string, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ conversation.ReplyMessenger = (*TwilioSender)(nil)

// SendReply dispatches a single message, retrying transient failures.
func (s *TwilioSender) SendReply(ctx context.Context, msg conversation.OutboundReply) error {
	if s.accountSID == "" || s.authToken == "" {
		return errors.New("whatsapp: twilio credentials missing")
	}
	if msg.To == "" {
		return errors.New("whatsapp: to required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return errors.New("whatsapp: body required")
	}
	if s.from == "" {
		return errors.New("whatsapp: from number not configured")
	}

	ctx, span := senderTracer.Start(ctx, "whatsapp.twilio.send", trace.WithAttributes(
		attribute.String("concierge.user_id", msg.UserID),
		attribute.String("concierge.channel", string(msg.Channel)),
	))
	defer span.End()

	payload := url.Values{}
	payload.Set("To", "whatsapp:"+normalizePhone(msg.To))
	payload.Set("From", "whatsapp:"+normalizePhone(s.from))
	payload.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Info("whatsapp message sent", "user_id", msg.UserID, "to", normalizePhone(msg.To))
				return nil
			}
			lastErr = fmt.Errorf("whatsapp: twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				break
			}
		}

		if attempt < 3 {
			time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
	}
	return lastErr
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}

// LoggingSender is the stub messenger used when Twilio credentials are
// absent. Messages land in the log instead of on the wire.
type LoggingSender struct {
	logger *logging.Logger
}

// NewLoggingSender builds the stub.
func NewLoggingSender(logger *logging.Logger) *LoggingSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LoggingSender{logger: logger}
}

var _ conversation.ReplyMessenger = (*LoggingSender)(nil)

// SendReply logs the outbound message.
func (s *LoggingSender) SendReply(ctx context.Context, msg conversation.OutboundReply) error {
	s.logger.Info("outbound message (logging sender)",
		"user_id", msg.UserID,
		"to", msg.To,
		"channel", string(msg.Channel),
		"body", msg.Body,
	)
	return nil
}
