package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/stayline/hotel-concierge/internal/observability/metrics"
	"github.com/stayline/hotel-concierge/internal/pms"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

// Reply is the DTO handed back to channel adapters and the API layer.
type Reply struct {
	UserID             string   `json:"user_id"`
	Text               string   `json:"text"`
	QuickReplyHints    []string `json:"quick_reply_hints,omitempty"`
	Stage              Stage    `json:"stage"`
	Confirmed          bool     `json:"confirmed,omitempty"`
	ConfirmationNumber string   `json:"confirmation_number,omitempty"`
}

// BookingNotice describes a confirmed booking for downstream consumers
// (confirmation email, archive).
type BookingNotice struct {
	UserID             string    `json:"user_id"`
	Channel            Channel   `json:"channel,omitempty"`
	ConfirmationNumber string    `json:"confirmation_number"`
	RoomID             string    `json:"room_id"`
	RoomName           string    `json:"room_name,omitempty"`
	CheckIn            string    `json:"check_in"`
	CheckOut           string    `json:"check_out"`
	GuestCount         int       `json:"guest_count"`
	Guest              pms.Guest `json:"guest"`
	TotalPrice         int64     `json:"total_price_cents,omitempty"`
	ConfirmedAt        time.Time `json:"confirmed_at"`
}

// ConfirmationNotifier delivers the booking confirmation out of band,
// typically by email.
type ConfirmationNotifier interface {
	SendBookingConfirmation(ctx context.Context, notice BookingNotice) error
}

// BookingArchiver persists confirmed bookings to long-term storage.
type BookingArchiver interface {
	ArchiveBooking(ctx context.Context, notice BookingNotice) error
}

// Service runs the conversation engine against the session store with
// per-user serialization, and fans confirmed bookings out to the
// transcript log, notifier and archive. Notifier, archiver and transcript
// failures never fail the user's turn.
type Service struct {
	engine   *Engine
	store    SessionStore
	log      *TranscriptStore
	notifier ConfirmationNotifier
	archiver BookingArchiver
	metrics  *metrics.EngineMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// ServiceOption customizes optional Service collaborators.
type ServiceOption func(*Service)

// WithTranscriptStore attaches the durable transcript log.
func WithTranscriptStore(log *TranscriptStore) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithNotifier attaches the confirmation notifier.
func WithNotifier(n ConfirmationNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithArchiver attaches the booking archive.
func WithArchiver(a BookingArchiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// WithServiceMetrics attaches engine metrics.
func WithServiceMetrics(m *metrics.EngineMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the engine to its store and side-effect consumers.
func NewService(engine *Engine, store SessionStore, logger *logging.Logger, opts ...ServiceOption) *Service {
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if store == nil {
		panic("conversation: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		engine: engine,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessUtterance handles one inbound message end to end: load session,
// advance the machine, persist, reply. Concurrent messages for the same
// user are serialized in arrival order at the lock.
func (s *Service) ProcessUtterance(ctx context.Context, utt Utterance) (*Reply, error) {
	if utt.UserID == "" {
		return nil, fmt.Errorf("conversation: user_id required")
	}
	start := s.now()

	var reply *Reply
	err := s.store.WithLock(ctx, utt.UserID, func(ctx context.Context) error {
		state, err := s.store.Load(ctx, utt.UserID)
		if err != nil {
			return err
		}
		loadedAttempt := ""
		if state != nil {
			loadedAttempt = state.Attempt
		}
		if state == nil {
			state = NewConversationState(utt.UserID)
		}

		// An explicit reset also clears the persisted session, so a
		// store outage can never resurrect the old attempt.
		isReset := ParseCommand(utt.Text) == CommandReset
		if isReset {
			if err := s.store.Reset(ctx, utt.UserID); err != nil {
				s.logger.Warn("session reset failed", "error", err, "user_id", utt.UserID)
			}
		}

		wasConfirmed := state.Stage == StageConfirmed && state.Confirmation != nil

		out, err := s.engine.Advance(ctx, state, utt)
		if err != nil {
			return err
		}

		// The lock is per process. Another instance may have reset the
		// session while this turn ran; the attempt id recorded at load
		// time detects that, and the losing turn's state is not written
		// back over the reset.
		if !isReset && loadedAttempt != "" {
			current, cerr := s.store.Load(ctx, utt.UserID)
			if cerr != nil {
				return cerr
			}
			if current == nil || current.Attempt != loadedAttempt {
				s.logger.Warn("session reset during processing, discarding turn state",
					"user_id", utt.UserID)
				reply = &Reply{
					UserID: utt.UserID,
					Text:   out.Text,
					Stage:  state.Stage,
				}
				return nil
			}
		}
		if err := s.store.Save(ctx, state); err != nil {
			return err
		}

		s.logTranscript(ctx, utt, out)

		reply = &Reply{
			UserID:          utt.UserID,
			Text:            out.Text,
			QuickReplyHints: out.QuickReplyHints,
			Stage:           state.Stage,
		}
		if state.Stage == StageConfirmed && state.Confirmation != nil {
			reply.Confirmed = true
			reply.ConfirmationNumber = state.Confirmation.ConfirmationNumber
			if !wasConfirmed {
				s.announceBooking(ctx, state, utt.Channel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveMessage(string(utt.Channel))
	s.metrics.ObserveMessageDuration(string(utt.Channel), s.now().Sub(start).Seconds())
	return reply, nil
}

// SessionSnapshot returns the current session for admin inspection, or
// nil when none exists.
func (s *Service) SessionSnapshot(ctx context.Context, userID string) (*ConversationState, error) {
	return s.store.Load(ctx, userID)
}

// ResetSession clears a user's session on behalf of an operator.
func (s *Service) ResetSession(ctx context.Context, userID string) error {
	return s.store.WithLock(ctx, userID, func(ctx context.Context) error {
		return s.store.Reset(ctx, userID)
	})
}

// Transcript returns the durable message log for a user, oldest first.
func (s *Service) Transcript(ctx context.Context, userID string, limit int) ([]TranscriptMessage, error) {
	return s.log.ListMessages(ctx, userID, limit)
}

func (s *Service) logTranscript(ctx context.Context, utt Utterance, out OutboundMessage) {
	if s.log == nil {
		return
	}
	if err := s.log.AppendMessage(ctx, utt.UserID, string(utt.Channel), "user", utt.Text); err != nil {
		s.logger.Warn("transcript append failed", "error", err, "user_id", utt.UserID)
	}
	if err := s.log.AppendMessage(ctx, utt.UserID, string(utt.Channel), "assistant", out.Text); err != nil {
		s.logger.Warn("transcript append failed", "error", err, "user_id", utt.UserID)
	}
}

func (s *Service) announceBooking(ctx context.Context, state *ConversationState, channel Channel) {
	conf := state.Confirmation
	roomName := conf.RoomID
	if offer := state.OfferByID(conf.RoomID); offer != nil {
		roomName = offer.Name
	}
	notice := BookingNotice{
		UserID:             state.UserID,
		Channel:            channel,
		ConfirmationNumber: conf.ConfirmationNumber,
		RoomID:             conf.RoomID,
		RoomName:           roomName,
		CheckIn:            conf.CheckIn,
		CheckOut:           conf.CheckOut,
		GuestCount:         conf.GuestCount,
		Guest: pms.Guest{
			Name:  state.Slots.GuestName,
			Email: state.Slots.GuestEmail,
			Phone: state.Slots.GuestPhone,
		},
		TotalPrice:  conf.TotalPrice,
		ConfirmedAt: s.now().UTC(),
	}

	if s.notifier != nil {
		if err := s.notifier.SendBookingConfirmation(ctx, notice); err != nil {
			s.logger.Warn("confirmation email failed", "error", err, "confirmation", conf.ConfirmationNumber)
		}
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveBooking(ctx, notice); err != nil {
			s.logger.Warn("booking archive failed", "error", err, "confirmation", conf.ConfirmationNumber)
		}
	}
}
