/*
Package log provides structured, leveled logging for tmbot using zerolog.

The logger is set up exactly once at startup and used through the package-
level Logger or the scoped constructors. Output is either a colorized
console writer (interactive use, --colorize_logs True) or plain JSON
(service use). When a sanitizer is supplied, it is spliced directly under
the sink so configured secrets are masked on every path, including errors
formatted by third-party code.

# Architecture

	handler / facade / middleware
	        │  zerolog events
	        ▼
	┌──────────────────┐
	│   log.Logger     │  level filter, timestamps, scoped fields
	└──────────────────┘
	        │
	        ▼
	┌──────────────────┐
	│ sanitize.Writer  │  masks every configured secret
	└──────────────────┘
	        │
	        ▼
	  console / JSON sink

# Usage

Initialize once in main:

	log.Init(log.Config{
		Level:     log.ParseLevel(levelFlag),
		Colorize:  colorize,
		Sanitizer: sanitizer,
	})

Component-scoped logger:

	logger := log.WithComponent("docker")
	logger.Info().Str("container", id).Msg("container restarted")

Session-scoped handler logging:

	logger := log.WithUser(c.Sender().ID, c.Sender().Username)
	logger.Warn().Msg("session expired")

Refused privileged operations use the distinguished DENIED severity:

	log.Denied(logger).
		Int64("user_id", userID).
		Str("action", string(action)).
		Msg("container operation refused")

# Log Levels

  - debug: update routing, codec decisions, poller internals
  - info: lifecycle events, successful operations
  - warn: blocked users, rate limiting, degraded health
  - error: handler failures, engine errors; the DENIED marker rides here

# Integration Points

  - cmd/tmbot: Init from CLI flags
  - pkg/sanitize: secret-masking writer under the sink
  - every other package: WithComponent child loggers
*/
package log
