/*
Package session owns per-user authentication state for the bot.

The store is the single in-memory state machine behind the two-factor
flow: which users hold a live session, who is mid-verification, who is
blocked, and which trigger a user was attempting when an auth gate stopped
them (the referer). Nothing here is persisted; a restart forgets all
sessions by design.

# State Machine

	unauthenticated ──(user presses "Enter 2FA code")──► processing
	processing      ──(valid TOTP & attempts ≤ max)────► authenticated
	processing      ──(invalid TOTP, attempts < max)───► processing (attempts += 1)
	processing      ──(invalid TOTP, attempts ≥ max)───► blocked (blocked_until = now + 5 min)
	blocked         ──(blocked_until elapsed)──────────► unauthenticated (attempts reset)
	authenticated   ──(now > login_time + 5 min)───────► unauthenticated (session expiry)

Time-based transitions (block expiry, session TTL) are applied lazily on
every access, so no background goroutine is needed and readers always see
the normalized state.

A user is effectively authenticated iff all three hold:

  - auth state is authenticated
  - now < login_time + 5 min
  - no active block

# Attempt Accounting

MaxTOTPAttempts (3) invalid codes are tolerated while staying in
processing; the next invalid code flips the user to blocked for
BlockDuration (5 min). The counter never exceeds the maximum and resets to
zero on success and on block expiry.

# Referer

When a privileged handler refuses an unauthenticated caller, the original
trigger (message text or callback data) is stored via SetReferer. After a
successful verification the handler layer calls TakeReferer, which reads
and clears atomically, and offers the user a keyboard that re-enters that
exact flow. A referer is replayed at most once.

# Usage

	store := session.NewStore()

	if err := store.BeginAuth(userID); err != nil {
		// user is blocked; err carries AUTH_BLOCKED and the deadline
	}

	attempts, blocked, until := store.RecordFailure(userID)

	store.Authenticate(userID)
	if store.IsAuthenticated(userID) {
		// privileged path
	}

# Thread Safety

All state lives behind one mutex. Read-modify-write helpers (RecordFailure,
TakeReferer) are atomic; concurrent failures can never push the counter
past the maximum.

# Integration Points

  - pkg/auth: drives transitions from TOTP verification; the gate uses
    RequireLive to tell a lapsed session from a missing one
  - pkg/handlers: referer replay after success
  - pkg/docker: IsAuthenticated gate on mutating operations
  - pkg/metrics: ActiveSessions gauge
*/
package session
