package access

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orenlab/pytmbot-sub000/pkg/log"
)

const (
	// DefaultRateLimit is the number of updates tolerated per window.
	DefaultRateLimit = 10

	// DefaultRatePeriod is the sliding window length.
	DefaultRatePeriod = 10 * time.Second
)

// RateLimiter enforces a per-user sliding window: at most limit updates
// within any period. It is the second middleware in the chain.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[int64][]time.Time

	limit  int
	period time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a limiter; non-positive arguments fall back to
// the defaults.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if period <= 0 {
		period = DefaultRatePeriod
	}
	return &RateLimiter{
		windows: make(map[int64][]time.Time),
		limit:   limit,
		period:  period,
		logger:  log.WithComponent("ratelimit"),
		now:     time.Now,
	}
}

// Allow records one update attempt for userID. Entries at or beyond the
// window boundary are discarded first (only timestamps strictly greater
// than now−period count); a full window refuses without recording.
func (r *RateLimiter) Allow(userID int64) bool {
	now := r.now()
	cutoff := now.Add(-r.period)

	r.mu.Lock()
	defer r.mu.Unlock()

	window := r.windows[userID]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= r.limit {
		r.windows[userID] = kept
		r.logger.Warn().
			Int64("user_id", userID).
			Int("window", len(kept)).
			Msg("user rate limited")
		return false
	}

	r.windows[userID] = append(kept, now)
	return true
}

// Prune drops users whose whole window has expired. Called by the access
// sweeper cadence to bound memory.
func (r *RateLimiter) Prune() {
	cutoff := r.now().Add(-r.period)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, window := range r.windows {
		live := false
		for _, ts := range window {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(r.windows, id)
		}
	}
}
