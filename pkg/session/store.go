package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/log"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
)

const (
	// TTL is the fixed session lifetime after successful verification.
	TTL = 5 * time.Minute

	// BlockDuration is how long a user stays blocked after exhausting
	// TOTP attempts.
	BlockDuration = 5 * time.Minute

	// MaxTOTPAttempts is the number of tolerated invalid codes; the next
	// invalid code blocks the user.
	MaxTOTPAttempts = 3
)

// entry is the per-user session record. All fields are guarded by the
// store lock.
type entry struct {
	state        types.AuthState
	totpAttempts int
	blockedUntil time.Time
	loginTime    time.Time
	referer      *types.Referer
	expired      bool
}

// Store is the in-memory per-user session state machine. It is the single
// owner of authentication state; auth handlers are its only mutators.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*entry
	logger   zerolog.Logger
	now      func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*entry),
		logger:   log.WithComponent("session"),
		now:      time.Now,
	}
}

// get returns the entry for userID, creating it unauthenticated.
// Caller must hold the write lock.
func (s *Store) get(userID int64) *entry {
	e, ok := s.sessions[userID]
	if !ok {
		e = &entry{state: types.AuthStateUnauthenticated}
		s.sessions[userID] = e
	}
	return e
}

// normalize applies time-based transitions: block expiry and session
// expiry. Caller must hold the write lock.
func (s *Store) normalize(userID int64, e *entry, now time.Time) {
	switch e.state {
	case types.AuthStateBlocked:
		if !now.Before(e.blockedUntil) {
			e.state = types.AuthStateUnauthenticated
			e.totpAttempts = 0
			e.blockedUntil = time.Time{}
			s.logger.Info().
				Int64("user_id", userID).
				Msg("auth block elapsed, session reset")
		}
	case types.AuthStateAuthenticated:
		if now.After(e.loginTime.Add(TTL)) {
			e.state = types.AuthStateUnauthenticated
			e.totpAttempts = 0
			e.expired = true
			s.logger.Info().
				Int64("user_id", userID).
				Msg("session expired")
		}
	}
}

// State returns the user's current auth state after applying time-based
// transitions.
func (s *Store) State(userID int64) types.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(userID)
	s.normalize(userID, e, s.now())
	return e.state
}

// IsAuthenticated reports whether userID holds a live session: state
// authenticated, TTL not elapsed, and no active block.
func (s *Store) IsAuthenticated(userID int64) bool {
	return s.State(userID) == types.AuthStateAuthenticated
}

// RequireLive returns nil when userID holds a live session, a
// SESSION_EXPIRED error when a previously live session lapsed, and an
// UNAUTHORIZED error when none ever existed. The expiry marker is kept
// until the user verifies again, so every refusal in between says what
// actually happened.
func (s *Store) RequireLive(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(userID)
	s.normalize(userID, e, s.now())

	if e.state == types.AuthStateAuthenticated {
		return nil
	}
	if e.expired {
		return errs.New(errs.CodeSessionExpired, "session check", nil,
			"user_id", strconv.FormatInt(userID, 10))
	}
	return errs.New(errs.CodeUnauthorized, "session check", nil,
		"user_id", strconv.FormatInt(userID, 10))
}

// BeginAuth moves the user into the processing state, where 6-digit
// messages are consumed as TOTP input. Returns an AUTH_BLOCKED error while
// a block is active.
func (s *Store) BeginAuth(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.get(userID)
	s.normalize(userID, e, now)

	if e.state == types.AuthStateBlocked {
		return errs.New(errs.CodeAuthBlocked, "begin auth", nil,
			"user_id", strconv.FormatInt(userID, 10),
			"blocked_until", e.blockedUntil.Format(time.RFC3339))
	}

	e.state = types.AuthStateProcessing
	s.logger.Info().
		Int64("user_id", userID).
		Msg("two-factor verification started")
	return nil
}

// RecordFailure accounts one invalid TOTP code. While fewer than
// MaxTOTPAttempts failures are on record the attempt counter grows and the
// user stays in processing; at the limit the user is blocked for
// BlockDuration. Returns the counter, whether the user is now blocked, and
// the block deadline.
func (s *Store) RecordFailure(userID int64) (attempts int, blocked bool, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.get(userID)
	s.normalize(userID, e, now)

	if e.state == types.AuthStateBlocked {
		return e.totpAttempts, true, e.blockedUntil
	}

	if e.totpAttempts < MaxTOTPAttempts {
		e.totpAttempts++
		e.state = types.AuthStateProcessing
		s.logger.Warn().
			Int64("user_id", userID).
			Int("attempts", e.totpAttempts).
			Msg("invalid TOTP code")
		return e.totpAttempts, false, time.Time{}
	}

	e.state = types.AuthStateBlocked
	e.blockedUntil = now.Add(BlockDuration)
	s.logger.Warn().
		Int64("user_id", userID).
		Time("blocked_until", e.blockedUntil).
		Msg("TOTP attempt limit reached, user blocked")
	return e.totpAttempts, true, e.blockedUntil
}

// Authenticate records a successful verification: authenticated state,
// fresh login time, attempt counter reset.
func (s *Store) Authenticate(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(userID)
	e.state = types.AuthStateAuthenticated
	e.totpAttempts = 0
	e.blockedUntil = time.Time{}
	e.loginTime = s.now()
	e.expired = false
	s.logger.Info().
		Int64("user_id", userID).
		Msg("two-factor verification succeeded")
}

// Attempts returns the current invalid-code counter.
func (s *Store) Attempts(userID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.sessions[userID]; ok {
		return e.totpAttempts
	}
	return 0
}

// BlockedUntil returns the active block deadline, if any.
func (s *Store) BlockedUntil(userID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(userID)
	s.normalize(userID, e, s.now())
	if e.state != types.AuthStateBlocked {
		return time.Time{}, false
	}
	return e.blockedUntil, true
}

// SetReferer stores the trigger a user was attempting when the auth gate
// stopped them. A later success replays it once.
func (s *Store) SetReferer(userID int64, ref types.Referer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(userID)
	e.referer = &ref
	s.logger.Debug().
		Int64("user_id", userID).
		Str("kind", string(ref.Kind)).
		Msg("referer stored")
}

// TakeReferer atomically reads and clears the stored referer.
func (s *Store) TakeReferer(userID int64) (types.Referer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(userID)
	if e.referer == nil {
		return types.Referer{}, false
	}
	ref := *e.referer
	e.referer = nil
	return ref, true
}

// ActiveSessions counts users currently holding a live session.
func (s *Store) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, e := range s.sessions {
		s.normalize(id, e, now)
		if e.state == types.AuthStateAuthenticated {
			n++
		}
	}
	return n
}
