package access

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/log"
)

const (
	// MaxFailedAttempts is the number of refused contacts before a block.
	MaxFailedAttempts = 3

	// BlockDuration is how long a non-allow-listed user is dropped after
	// exhausting refusals.
	BlockDuration = time.Hour

	// SweepInterval is how often elapsed blocks are purged.
	SweepInterval = time.Hour
)

// Decision is the outcome of an allow-list check
type Decision int

const (
	// Allow passes the update to the next middleware.
	Allow Decision = iota
	// RefuseTerse refuses with the short text (early attempts).
	RefuseTerse
	// RefuseFinal refuses with the final text; the block engages now.
	RefuseFinal
	// Drop discards the update silently (active block).
	Drop
)

// record tracks refusals for one non-allow-listed user
type record struct {
	failedAttempts int
	blockedUntil   time.Time
}

// Controller is the first middleware in the chain: it short-circuits
// updates from senders that are not allow-listed or currently blocked.
type Controller struct {
	mu      sync.Mutex
	records map[int64]*record

	allowed func(int64) bool
	broker  *events.Broker
	logger  zerolog.Logger
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewController creates an access controller. allowed reports allow-list
// membership; broker may be nil.
func NewController(allowed func(int64) bool, broker *events.Broker) *Controller {
	return &Controller{
		records: make(map[int64]*record),
		allowed: allowed,
		broker:  broker,
		logger:  log.WithComponent("access"),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Check evaluates one update from userID and returns the middleware
// decision. Counters survive concurrent increments; all mutation happens
// under one lock.
func (c *Controller) Check(userID int64) Decision {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.records[userID]; ok && r.blockedUntil.After(now) {
		c.logger.Warn().
			Int64("user_id", userID).
			Time("blocked_until", r.blockedUntil).
			Msg("update from blocked user dropped")
		return Drop
	}

	if c.allowed(userID) {
		return Allow
	}

	r, ok := c.records[userID]
	if !ok {
		r = &record{}
		c.records[userID] = r
	}
	if !r.blockedUntil.IsZero() && !r.blockedUntil.After(now) {
		// Previous block elapsed between sweeps.
		r.failedAttempts = 0
		r.blockedUntil = time.Time{}
	}

	r.failedAttempts++
	c.logger.Warn().
		Int64("user_id", userID).
		Int("failed_attempts", r.failedAttempts).
		Msg("update from non-allow-listed user refused")
	c.emit(events.EventAccessDenied, userID, "sender not allow-listed", r.failedAttempts)

	if r.failedAttempts >= MaxFailedAttempts {
		r.blockedUntil = now.Add(BlockDuration)
		c.logger.Warn().
			Int64("user_id", userID).
			Time("blocked_until", r.blockedUntil).
			Msg("user blocked after repeated refusals")
		c.emit(events.EventAccessBlocked, userID, "block engaged", r.failedAttempts)
		return RefuseFinal
	}
	return RefuseTerse
}

// FailedAttempts returns the refusal counter for userID.
func (c *Controller) FailedAttempts(userID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.records[userID]; ok {
		return r.failedAttempts
	}
	return 0
}

// Sweep removes records whose block has elapsed, resetting their
// counters. Records without an active block are kept until their next
// refusal handles the reset inline.
func (c *Controller) Sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, r := range c.records {
		if !r.blockedUntil.IsZero() && !r.blockedUntil.After(now) {
			delete(c.records, id)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info().
			Int("removed", removed).
			Msg("elapsed access blocks swept")
	}
}

// StartSweeper runs Sweep on SweepInterval until Stop is called. The
// sweeper is a daemon; it never delays shutdown.
func (c *Controller) StartSweeper() {
	ticker := time.NewTicker(SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-c.stopCh:
				return
			}
		}
	}()
	c.logger.Info().Msg("access sweeper started (running hourly)")
}

// Stop terminates the sweeper.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Controller) emit(t events.EventType, userID int64, msg string, attempts int) {
	if c.broker == nil {
		return
	}
	c.broker.Emit(t, userID, msg, map[string]string{
		"failed_attempts": strconv.Itoa(attempts),
	})
}
