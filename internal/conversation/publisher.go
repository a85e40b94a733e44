package conversation

import (
	"context"
	"fmt"

	"github.com/stayline/hotel-concierge/pkg/logging"
)

// Publisher enqueues utterance jobs for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueUtterance publishes a process-utterance job. jobID may be empty,
// in which case one is generated; the effective ID is returned.
func (p *Publisher) EnqueueUtterance(ctx context.Context, jobID string, utt Utterance, opts ...PublishOption) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload := queuePayload{
		ID:          jobID,
		Kind:        jobTypeUtterance,
		Utterance:   utt,
		TrackStatus: true,
	}
	for _, opt := range opts {
		opt(&payload)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("utterance job enqueued", "job_id", payload.ID, "user_id", utt.UserID)
	return payload.ID, nil
}
