/*
Package errs defines the closed error-kind set used across tmbot.

Every error that crosses the handler boundary is an *errs.Error carrying a
stable Code, the failed operation, a metadata map for log context, and the
wrapped cause. Lower layers wrap causes with fmt.Errorf("%w"); the handler
layer matches on code via errors.Is or HasCode and never shows internals to
the user.

# Usage

	err := errs.New(errs.CodeNotFound, "inspect container", cause,
		"container", id, "user_id", strconv.FormatInt(userID, 10))

	if errs.HasCode(err, errs.CodeNotFound) {
		// reply with the not-found template
	}

Codes are part of the log contract: they appear in structured log lines and
must stay stable across releases.
*/
package errs
