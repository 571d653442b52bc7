/*
Package events provides in-process publish/subscribe for bot events.

The broker decouples the subsystems that observe something noteworthy
(failed auth, refused access, container mutations, degraded health) from
the subsystems that react to it (the monitor plugin pushing alerts to
admins). Publishers never know who is listening and are never blocked by a
slow listener.

# Architecture

	auth gate ── auth.failed ──────┐
	access mw ── access.denied ────┤
	rate mw ──── rate.limited ─────┤      ┌────────────┐
	docker ───── container.* ──────┼────► │   Broker   │
	health ───── health.degraded ──┤      │ (buffered) │
	callback ─── callback.rejected ┘      └─────┬──────┘
	                                            │ broadcast
	                              ┌─────────────┴─────────────┐
	                              ▼                           ▼
	                      monitor plugin               other subscribers

A single distribution goroutine drains the publish buffer (100 events) and
fans out to per-subscriber buffered channels (50 events). A subscriber
whose buffer is full misses events rather than stalling the broker; alert
consumers tolerate gaps by design.

# Event Types

	auth.succeeded / auth.failed / auth.blocked   TOTP verification outcomes
	access.denied / access.blocked                allow-list refusals, blocks
	rate.limited                                  throttled updates
	container.action / container.denied           mutating facade calls
	health.degraded                               health-loop warnings
	callback.rejected                             codec validation failures
	plugin.loaded / plugin.failed                 plugin lifecycle

# Usage

Publishing:

	broker.Emit(events.EventAuthFailed, userID, "invalid TOTP code",
		map[string]string{"attempts": strconv.Itoa(attempts)})

Subscribing:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		// react
	}

# Lifecycle

Start launches the distribution loop; Stop terminates it and releases
publishers (Publish after Stop is a no-op once the buffer drains).
Unsubscribe closes the subscriber channel; ranging subscribers terminate
cleanly. Both are idempotent.

# Integration Points

  - pkg/auth, pkg/access, pkg/docker, pkg/callback, pkg/bot: publishers
  - pkg/plugin/builtin/monitor: the built-in alert subscriber
*/
package events
