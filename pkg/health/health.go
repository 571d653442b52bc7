package health

import (
	"context"
	"time"
)

// Result is one probe outcome.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration

	// StatusCode and Body are populated by HTTP probes only.
	StatusCode int
	Body       []byte
}

// Checker probes a single target once per call.
type Checker interface {
	Check(ctx context.Context) Result
}

// Config tunes how probe results are debounced into a component state.
type Config struct {
	// Timeout bounds a single probe.
	Timeout time.Duration

	// Retries is how many consecutive failures a component survives
	// before it is reported unhealthy.
	Retries int
}

// DefaultConfig matches the health loop cadence: a component rides out
// two bad 60 s cycles and flips on the third.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Retries: 3,
	}
}

// Status debounces probe results for one component. A transient failure
// never flips the component; a streak past the retry budget does, and a
// single success restores it.
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
}

// NewStatus starts a component as healthy until probes say otherwise.
func NewStatus() *Status {
	return &Status{Healthy: true}
}

// Update folds one probe result into the component state.
func (s *Status) Update(result Result, cfg Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if s.ConsecutiveFailures >= cfg.Retries {
		s.Healthy = false
	}
}
