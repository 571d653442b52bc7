/*
Package auth implements the TOTP second factor and the two-factor gate.

Every privileged flow (container mutations, log access, enrolment) sits
behind a Gate that requires a live session in the session store. Sessions
are earned by sending a valid RFC-6238 one-time code; secrets are derived
per user from the configured salt, so the enrolment QR a user scanned once
remains valid across bot restarts.

# Secret Derivation

	secret = base32( HMAC-SHA-256(auth_salt, "<user_id>:<username>")[:20] )

Deterministic by construction: same user and salt, same secret. Rotating
the salt invalidates every enrolment at once.

# Verification

Codes are 6 digits, SHA-1, 30-second windows, ±1 window of tolerated
drift. The dispatcher feeds any 6-digit message (optionally /-prefixed)
from a user in the processing state through ExtractCode and Verify; the
session store accounts failures and blocks after the tolerated maximum.

# Enrolment

ProvisioningURI builds the otpauth:// URI; QRCode renders it as a
450×450 PNG. The handler layer sends it with protected content and
deletes it after 60 seconds; if deletion fails the user is told to remove
it manually.

# Gate

Wrap turns a handler into a guarded handler:

	h := gate.Wrap(containersHandler)

An unauthenticated caller gets the refusal (alert for callbacks, message
otherwise); a caller whose session lapsed is told so explicitly via the
SESSION_EXPIRED code. The exact trigger is stored as the user's referer for a
one-shot replay keyboard after successful verification. The gate runs
before callback payload validation on purpose: a refused click must not
consume its nonce, or the replay would fail.

# Integration Points

  - pkg/session: state transitions, attempt accounting, referer storage
  - pkg/handlers: enrolment and verification flows
  - pkg/bot: TOTP input routing from the text dispatcher
*/
package auth
