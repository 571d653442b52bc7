/*
Package access implements the first two middleware stages of the update
pipeline: allow-list enforcement with escalating blocks, and per-user
rate limiting.

# Architecture

	update ──► Controller.Check ──► RateLimiter.Allow ──► handlers
	              │                      │
	              │ refuse/drop          │ refuse
	              ▼                      ▼
	        refusal reply           "slow down" reply

Both stages may short-circuit an update; neither ever blocks the
dispatcher. All state is in-process and lock-guarded.

# Access Control

A sender outside the allow-list is refused with the short text on the
first two contacts and the final text on the third, at which point a
one-hour block engages; further updates are dropped silently until the
block elapses. Elapsed blocks are reset either inline on the user's next
contact or by the hourly sweeper, whichever runs first. Refusals and
blocks are published on the event broker for the monitor plugin.

	Check outcomes:
	  Allow        sender allow-listed
	  RefuseTerse  1st–2nd contact: short refusal
	  RefuseFinal  3rd contact: final refusal, block engages
	  Drop         active block: silent discard

# Rate Limiting

The limiter keeps a per-user FIFO of accepted-update timestamps. On each
update, entries at or beyond the window boundary are discarded (only
timestamps strictly greater than now−period count), then a full window
refuses the update without recording it, so refused floods never extend
their own punishment. Defaults: 10 updates per 10 seconds.

# Thread Safety

One mutex per structure. The refusal counter survives concurrent
increments; the sweeper and Prune run on daemon goroutines that never
delay shutdown.

# Integration Points

  - pkg/bot: middleware adapters calling Check and Allow per update
  - pkg/events: access.denied / access.blocked / rate.limited events
  - pkg/metrics: refusal and throttle counters
*/
package access
