package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const (
	jobTypeUtterance jobType = "utterance"
)

type queuePayload struct {
	ID          string    `json:"id"`
	Kind        jobType   `json:"kind"`
	Utterance   Utterance `json:"utterance"`
	ReplyTo     string    `json:"reply_to,omitempty"`
	TrackStatus bool      `json:"track_status"`
}

// PublishOption customizes an enqueued job.
type PublishOption func(*queuePayload)

// WithoutJobTracking disables job status persistence for fire-and-forget
// work (e.g. webhook-driven messages whose reply goes out via the
// messenger rather than job polling).
func WithoutJobTracking() PublishOption {
	return func(p *queuePayload) {
		p.TrackStatus = false
	}
}

// WithReplyTo records the destination address the worker should deliver
// the reply to.
func WithReplyTo(to string) PublishOption {
	return func(p *queuePayload) {
		p.ReplyTo = to
	}
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
