package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SenderLimiter keeps one token bucket per sender so a single noisy
// phone number cannot starve the webhook for everyone else.
type SenderLimiter struct {
	mu       sync.Mutex
	limiters map[string]*senderEntry
	limit    rate.Limit
	burst    int
}

type senderEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSenderLimiter allows perMinute requests per sender with a burst of
// the same size.
func NewSenderLimiter(perMinute int) *SenderLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	sl := &SenderLimiter{
		limiters: make(map[string]*senderEntry),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
	go sl.cleanup()
	return sl
}

// Allow reports whether the sender is within its rate limit.
func (sl *SenderLimiter) Allow(sender string) bool {
	sl.mu.Lock()
	entry, ok := sl.limiters[sender]
	if !ok {
		entry = &senderEntry{limiter: rate.NewLimiter(sl.limit, sl.burst)}
		sl.limiters[sender] = entry
	}
	entry.lastSeen = time.Now()
	sl.mu.Unlock()
	return entry.limiter.Allow()
}

// Periodically evict stale entries to prevent memory growth.
func (sl *SenderLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		sl.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for sender, entry := range sl.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(sl.limiters, sender)
			}
		}
		sl.mu.Unlock()
	}
}

// SenderKey extracts the rate-limit key from a request. Webhook posts
// are keyed by the sender's number; everything else falls back to the
// client IP.
func SenderKey(r *http.Request) string {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			if from := r.PostFormValue("From"); from != "" {
				return from
			}
		}
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit rejects requests exceeding perMinute per sender with 429.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	limiter := NewSenderLimiter(perMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(SenderKey(r)) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
