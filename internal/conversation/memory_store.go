package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemorySessionStore is the in-process SessionStore used for development
// and tests. Sessions are stored as JSON copies so callers cannot alias
// the stored state, matching the Redis store's semantics.
type MemorySessionStore struct {
	cache *gocache.Cache
	ttl   time.Duration
	locks *keyLock
}

// NewMemorySessionStore creates an in-memory session store with the given
// sliding TTL.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{
		cache: gocache.New(ttl, 10*time.Minute),
		ttl:   ttl,
		locks: newKeyLock(),
	}
}

var _ SessionStore = (*MemorySessionStore)(nil)

func (s *MemorySessionStore) Load(ctx context.Context, userID string) (*ConversationState, error) {
	raw, ok := s.cache.Get(sessionKey(userID))
	if !ok {
		return nil, nil
	}
	data, ok := raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("session store: unexpected cache entry type %T", raw)
	}
	var state ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("session store: unmarshal: %w", err)
	}
	return &state, nil
}

func (s *MemorySessionStore) Save(ctx context.Context, state *ConversationState) error {
	if state == nil || state.UserID == "" {
		return fmt.Errorf("session store: user_id required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session store: marshal: %w", err)
	}
	s.cache.Set(sessionKey(state.UserID), data, s.ttl)
	return nil
}

func (s *MemorySessionStore) Reset(ctx context.Context, userID string) error {
	s.cache.Delete(sessionKey(userID))
	return nil
}

func (s *MemorySessionStore) WithLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	return s.locks.Do(ctx, userID, fn)
}
