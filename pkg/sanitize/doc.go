/*
Package sanitize keeps secrets and personal data out of every output path.

Two surfaces are covered:

  - Process logs: a Sanitizer seeded with the configured secrets (bot
    tokens, auth salt, cert paths) masks each occurrence with an
    equal-length asterisk run. Writer wraps the zerolog sink so the mask
    applies to every log line regardless of which call site produced it.
  - Container logs shown to users: ContainerLogs strips ANSI escape
    sequences (pattern `\x1B\[[0-?]*[ -/]*[@-~]`) and masks the caller's
    username, first name, last name, numeric id, and all secrets.

Masking is length-preserving on the post-strip text, so an attacker cannot
infer a secret's length class from the output.

# Usage

	s := sanitize.New(cfg.Secrets()...)
	log.Init(log.Config{Output: sanitize.NewWriter(os.Stderr, s)})

	clean := s.ContainerLogs(raw, sanitize.Caller{
		UserID:   c.Sender().ID,
		Username: c.Sender().Username,
	})
*/
package sanitize
