package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CallState tracks an active voice call in Redis. The call shares a
// conversation session with the other channels through UserID, so a
// guest who calls in continues the booking they started over text.
type CallState struct {
	// CallID is the telephony provider's call identifier.
	CallID string `json:"call_id"`
	// CallerPhone is the guest's phone in E.164.
	CallerPhone string `json:"caller_phone"`
	// HotelPhone is the number that received the call.
	HotelPhone string `json:"hotel_phone"`
	// UserID is the conversation session identity, e.g. "call-CA123"
	// or "voice:+14155551234" when the caller is known.
	UserID string `json:"user_id"`
	// Status tracks the call lifecycle: ringing, active, ended.
	Status string `json:"status"`
	// TurnCount tracks how many back-and-forth exchanges have occurred.
	TurnCount int `json:"turn_count"`
	// StartedAt is when the call was answered.
	StartedAt time.Time `json:"started_at"`
	// LastActivityAt tracks the most recent interaction.
	LastActivityAt time.Time `json:"last_activity_at"`
	// Outcome records how the call ended: booked, incomplete, abandoned.
	Outcome string `json:"outcome,omitempty"`
}

// CallTranscriptEntry is a single turn in a voice call transcript.
type CallTranscriptEntry struct {
	Role      string    `json:"role"` // "guest" or "concierge"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	callKeyPrefix           = "voice:call:"
	callTranscriptKeyPrefix = "voice:transcript:"
	callStateTTL            = 24 * time.Hour

	CallStatusRinging = "ringing"
	CallStatusActive  = "active"
	CallStatusEnded   = "ended"

	CallOutcomeBooked     = "booked"
	CallOutcomeIncomplete = "incomplete"
	CallOutcomeAbandoned  = "abandoned"
)

// CallStore manages voice call state in Redis.
type CallStore struct {
	rdb *redis.Client
}

// NewCallStore creates a voice call store backed by Redis.
func NewCallStore(rdb *redis.Client) *CallStore {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &CallStore{rdb: rdb}
}

func callKey(callID string) string {
	return callKeyPrefix + callID
}

func callTranscriptKey(callID string) string {
	return callTranscriptKeyPrefix + callID
}

// SaveCallState persists or updates voice call state.
func (s *CallStore) SaveCallState(ctx context.Context, state *CallState) error {
	if state == nil || state.CallID == "" {
		return fmt.Errorf("voice call state: call_id required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("voice call state: marshal: %w", err)
	}
	return s.rdb.Set(ctx, callKey(state.CallID), data, callStateTTL).Err()
}

// GetCallState retrieves voice call state. Returns (nil, nil) when the
// call is unknown or has expired.
func (s *CallStore) GetCallState(ctx context.Context, callID string) (*CallState, error) {
	data, err := s.rdb.Get(ctx, callKey(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("voice call state: get: %w", err)
	}
	var state CallState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("voice call state: unmarshal: %w", err)
	}
	return &state, nil
}

// IncrementTurn bumps the turn counter and refreshes last activity.
func (s *CallStore) IncrementTurn(ctx context.Context, callID string) error {
	state, err := s.GetCallState(ctx, callID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("voice call state: call %s not found", callID)
	}
	state.TurnCount++
	state.LastActivityAt = time.Now().UTC()
	return s.SaveCallState(ctx, state)
}

// EndCall marks the call as ended with an outcome.
func (s *CallStore) EndCall(ctx context.Context, callID, outcome string) error {
	state, err := s.GetCallState(ctx, callID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("voice call state: call %s not found", callID)
	}
	state.Status = CallStatusEnded
	state.Outcome = outcome
	state.LastActivityAt = time.Now().UTC()
	return s.SaveCallState(ctx, state)
}

// AppendTranscript adds a transcript entry to the voice call.
func (s *CallStore) AppendTranscript(ctx context.Context, callID string, entry CallTranscriptEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("voice transcript: marshal: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, callTranscriptKey(callID), data)
	pipe.Expire(ctx, callTranscriptKey(callID), callStateTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetTranscript retrieves the full voice call transcript in turn order.
func (s *CallStore) GetTranscript(ctx context.Context, callID string) ([]CallTranscriptEntry, error) {
	data, err := s.rdb.LRange(ctx, callTranscriptKey(callID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("voice transcript: get: %w", err)
	}
	entries := make([]CallTranscriptEntry, 0, len(data))
	for _, d := range data {
		var entry CallTranscriptEntry
		if err := json.Unmarshal([]byte(d), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
