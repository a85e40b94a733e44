package conversation

import (
	"context"
	"time"
)

// DefaultSessionTTL is how long an idle session survives before the next
// message starts a fresh one.
const DefaultSessionTTL = time.Hour

// SessionStore persists one ConversationState per user identity with
// sliding TTL expiry. Load returns (nil, nil) for an absent or expired
// session; callers create a fresh state in that case.
type SessionStore interface {
	Load(ctx context.Context, userID string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
	Reset(ctx context.Context, userID string) error

	// WithLock serializes message processing per user identity. The
	// callback runs with exclusive ownership of the user's session;
	// concurrent callers for the same userID block until it returns.
	// Different userIDs proceed in parallel.
	WithLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}
