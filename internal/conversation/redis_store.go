package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "booking:session:"

// RedisSessionStore keeps conversation sessions in Redis with a sliding
// TTL. Per-user serialization uses an in-process keyed mutex; each user's
// traffic is pinned to one process by the transport layer, so a
// distributed lock is not required.
type RedisSessionStore struct {
	rdb   *redis.Client
	ttl   time.Duration
	locks *keyLock
}

// NewRedisSessionStore creates a session store backed by Redis.
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl, locks: newKeyLock()}
}

var _ SessionStore = (*RedisSessionStore)(nil)

func sessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

// Load retrieves the session for userID, or (nil, nil) when none exists.
func (s *RedisSessionStore) Load(ctx context.Context, userID string) (*ConversationState, error) {
	data, err := s.rdb.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("session store: get: %w", err)
	}
	var state ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("session store: unmarshal: %w", err)
	}
	return &state, nil
}

// Save persists the session and resets its TTL.
func (s *RedisSessionStore) Save(ctx context.Context, state *ConversationState) error {
	if state == nil || state.UserID == "" {
		return fmt.Errorf("session store: user_id required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session store: marshal: %w", err)
	}
	return s.rdb.Set(ctx, sessionKey(state.UserID), data, s.ttl).Err()
}

// Reset deletes the session. Deleting an absent session is not an error.
func (s *RedisSessionStore) Reset(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("session store: del: %w", err)
	}
	return nil
}

// WithLock serializes fn against other callers for the same userID.
func (s *RedisSessionStore) WithLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	return s.locks.Do(ctx, userID, fn)
}
