// Package bot supervises the running agent: the Telegram client, the
// ingress poller, the per-update dispatcher, the daemonic health loop,
// and the operations endpoint live here, glued into one Runtime with a
// bounded drain on the way down.
//
// # Architecture
//
//	             ┌────────────────────────────┐
//	             │ ingress (one of)           │
//	             │  · long poller             │
//	             │  · webhook TLS listener    │
//	             └──────┬──────────────┬──────┘
//	                    │ updates      │ premature exit
//	                    ▼              ▼
//	              bot.Updates      pollerErr ──► Recover?
//	                    │                          │ budget spent
//	                    ▼                          ▼
//	              dispatchLoop          Shutdown("ingress failure")
//	                    │
//	                    ▼  goroutine per update, recover()
//	        access ► rate limit ► registry handler
//
//	health loop, every 60s         ops endpoint 127.0.0.1:8886
//	 · engine ping                  /health /ready /live /metrics
//	 · webhook listener probe
//	 · self CPU / memory warnings
//	 · rate-limiter window prune
//
// # Ingress supervision
//
// Both ingress kinds satisfy telebot's Poller, so one supervision path
// serves them: startPoller runs Poll in a goroutine and reports on
// pollerErr when it returns without being asked to stop. The dispatch
// loop restarts it with doubling backoff until the restart budget is
// spent, then shuts the whole runtime down rather than run a bot that
// cannot hear anyone.
//
// The webhook ingress registers the public URL with Telegram on every
// Poll, uploading the certificate alongside only when the pair is
// self-signed, and deregisters on the way out. Deliveries for the
// secret token path are decoded and handed to the dispatcher; anything
// else is a 404, and noisy 404 clients get throttled per IP.
//
// # Dispatch
//
// Every update runs in its own goroutine so a slow engine call cannot
// stall the queue. The goroutine recovers panics, answers the chat with
// a generic failure line, and counts itself in the inflight group that
// Shutdown drains. Updates of kinds the bot never subscribes to are
// logged and dropped before a goroutine is spent. Access control and
// the rate limiter are installed as group middleware before any handler
// attaches, so no route can sidestep them.
//
// # Health
//
// The health loop pings the engine and probes the webhook listener with
// a small retry debounce: a single failed cycle keeps the component
// healthy, repeated failures flip it and publish one degradation event
// per flip. The agent's own CPU and memory share are exported as gauges
// and warned about past 90% and 80%. IsHealthy, and with it the ops
// endpoint's readiness, reflects the latest cycle.
//
// # Shutdown
//
// Shutdown closes the stop channel, waits up to ten seconds for the
// loops and every inflight handler, then tears down plugins, the access
// sweeper, the gauge collector, the event broker, the ops listener, and
// the engine client in that order. A drain that overruns the budget is reported, not waited
// out.
package bot
