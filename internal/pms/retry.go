package pms

import (
	"context"
	"time"

	"github.com/stayline/hotel-concierge/pkg/logging"
)

// retryingClient retries each call exactly once after a transient failure.
// Semantic rejections pass through untouched; both attempts carry the same
// request token, so the backend sees one logical operation.
type retryingClient struct {
	next    Client
	backoff time.Duration
	logger  *logging.Logger
}

// WithRetry wraps a client with the retry-once-then-report policy.
func WithRetry(next Client, backoff time.Duration, logger *logging.Logger) Client {
	if next == nil {
		panic("pms: retry target cannot be nil")
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &retryingClient{next: next, backoff: backoff, logger: logger}
}

func (c *retryingClient) CheckAvailability(ctx context.Context, req AvailabilityRequest) ([]RoomOffer, error) {
	offers, err := c.next.CheckAvailability(ctx, req)
	if err == nil || !IsTransient(err) {
		return offers, err
	}
	c.logger.Warn("pms availability call failed, retrying once", "error", err)
	if err := sleep(ctx, c.backoff); err != nil {
		return nil, err
	}
	return c.next.CheckAvailability(ctx, req)
}

func (c *retryingClient) CreateBooking(ctx context.Context, req BookingRequest) (*BookingConfirmation, error) {
	conf, err := c.next.CreateBooking(ctx, req)
	if err == nil || !IsTransient(err) {
		return conf, err
	}
	c.logger.Warn("pms booking call failed, retrying once", "error", err)
	if err := sleep(ctx, c.backoff); err != nil {
		return nil, err
	}
	return c.next.CreateBooking(ctx, req)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
