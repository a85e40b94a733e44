package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/stayline/hotel-concierge/pkg/logging"
)

// UtteranceProcessor is the subset of Service the worker needs.
type UtteranceProcessor interface {
	ProcessUtterance(ctx context.Context, utt Utterance) (*Reply, error)
}

// Worker consumes utterance jobs from the queue, runs them through the
// processor, records the outcome, and pushes replies back out through the
// messenger when the job carries a reply address.
type Worker struct {
	processor UtteranceProcessor
	queue     queueClient
	jobs      JobUpdater
	messenger ReplyMessenger
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	messenger        ReplyMessenger
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithReplyMessenger wires an outbound messenger for jobs that carry a
// reply address.
func WithReplyMessenger(m ReplyMessenger) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.messenger = m
	}
}

// NewWorker constructs a queue consumer around the provided processor.
func NewWorker(processor UtteranceProcessor, queue queueClient, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if jobs == nil {
		panic("conversation: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor: processor,
		queue:     queue,
		jobs:      jobs,
		messenger: cfg.messenger,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("utterance worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("utterance worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive utterance jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode utterance job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}
	if payload.Kind != jobTypeUtterance {
		w.logger.Error("unknown job type", "kind", payload.Kind, "job_id", payload.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing utterance",
		"job_id", payload.ID,
		"user_id", payload.Utterance.UserID,
		"channel", payload.Utterance.Channel,
	)

	reply, err := w.processor.ProcessUtterance(ctx, payload.Utterance)
	if err != nil {
		w.logger.Error("utterance job failed", "error", err, "job_id", payload.ID, "user_id", payload.Utterance.UserID)
		if payload.TrackStatus {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		// The user still deserves an answer; the session was not
		// advanced, so the next message retries cleanly.
		w.sendReply(ctx, payload, msgBackendTrouble)
	} else {
		if payload.TrackStatus {
			if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, reply); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		w.sendReply(ctx, payload, reply.Text)
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) sendReply(ctx context.Context, payload queuePayload, body string) {
	if w.messenger == nil || payload.ReplyTo == "" || body == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := w.messenger.SendReply(sendCtx, OutboundReply{
		UserID:  payload.Utterance.UserID,
		To:      payload.ReplyTo,
		Body:    body,
		Channel: payload.Utterance.Channel,
	})
	if err != nil {
		w.logger.Warn("failed to deliver reply", "error", err, "job_id", payload.ID, "user_id", payload.Utterance.UserID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete utterance job", "error", err)
	}
}

// ErrQueueNotConfigured is returned when async processing is requested
// but the deployment runs without a queue backend.
var ErrQueueNotConfigured = errors.New("conversation: queue not configured")
