package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stayline/hotel-concierge/pkg/logging"
)

var httpTracer = otel.Tracer("concierge.internal.pms.http")

// HTTPClient talks to a property-management system over its REST API.
type HTTPClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewHTTPClient builds a client with a bounded per-request timeout.
func NewHTTPClient(baseURL, apiToken string, timeout time.Duration, logger *logging.Logger) *HTTPClient {
	if baseURL == "" {
		panic("pms: base URL cannot be empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

var _ Client = (*HTTPClient)(nil)

// CheckAvailability queries GET /v1/availability.
func (c *HTTPClient) CheckAvailability(ctx context.Context, req AvailabilityRequest) ([]RoomOffer, error) {
	ctx, span := httpTracer.Start(ctx, "pms.check_availability", trace.WithAttributes(
		attribute.String("pms.check_in", req.CheckIn),
		attribute.String("pms.check_out", req.CheckOut),
		attribute.Int("pms.guest_count", req.GuestCount),
	))
	defer span.End()

	q := url.Values{}
	q.Set("check_in", req.CheckIn)
	q.Set("check_out", req.CheckOut)
	q.Set("guests", strconv.Itoa(req.GuestCount))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/availability?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("pms: build availability request: %w", err)
	}
	c.setHeaders(httpReq, req.RequestToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, mapTransportError("availability", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, mapStatusError("availability", resp.StatusCode, body)
	}

	var decoded struct {
		Rooms []RoomOffer `json:"rooms"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("pms: decode availability response: %w", err)
	}
	return decoded.Rooms, nil
}

// CreateBooking posts to /v1/bookings. The request token rides both in the
// body and the X-Request-Token header so the backend can deduplicate.
func (c *HTTPClient) CreateBooking(ctx context.Context, req BookingRequest) (*BookingConfirmation, error) {
	ctx, span := httpTracer.Start(ctx, "pms.create_booking", trace.WithAttributes(
		attribute.String("pms.room_id", req.RoomID),
	))
	defer span.End()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("pms: marshal booking request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/bookings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("pms: build booking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq, req.RequestToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, mapTransportError("booking", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, mapStatusError("booking", resp.StatusCode, body)
	}

	var conf BookingConfirmation
	if err := json.Unmarshal(body, &conf); err != nil {
		return nil, fmt.Errorf("pms: decode booking response: %w", err)
	}
	if conf.ConfirmationNumber == "" {
		return nil, fmt.Errorf("%w: booking response missing confirmation number", ErrInvalid)
	}

	c.logger.Info("pms booking created", "room_id", conf.RoomID, "confirmation", conf.ConfirmationNumber)
	return &conf, nil
}

func (c *HTTPClient) setHeaders(req *http.Request, requestToken string) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	if requestToken != "" {
		req.Header.Set("X-Request-Token", requestToken)
	}
}

func mapTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s call: %v", ErrTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s call: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s call: %v", ErrUnavailable, op, err)
}

func mapStatusError(op string, status int, body []byte) error {
	detail := string(bytes.TrimSpace(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	switch {
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrRoomNoLongerAvailable, detail)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s returned %d: %s", ErrInvalid, op, status, detail)
	case status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s returned %d", ErrTimeout, op, status)
	default:
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, op, status, detail)
	}
}
