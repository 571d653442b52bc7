/*
Package metrics provides Prometheus metrics collection and health
probing for the bot.

The metrics package defines and registers every agent metric using the
Prometheus client library, tracks per-component health for the probe
endpoints, and assembles the loopback operational HTTP server that
exposes both. Everything observable about a running agent - update
throughput, auth outcomes, refused requests, container actions, its own
resource footprint - flows through here.

# Architecture

	┌────────────────── OPERATIONAL ENDPOINT ──────────────────┐
	│             http://127.0.0.1:8886 (loopback)             │
	│                                                          │
	│  /metrics  Prometheus text exposition (promhttp)         │
	│  /health   every registered component, 200/503           │
	│  /ready    critical components only, 200/503             │
	│  /live     process liveness, always 200                  │
	└───────────────┬──────────────────────┬───────────────────┘
	                │                      │
	   ┌────────────▼───────────┐   ┌──────▼────────────────┐
	   │   Prometheus Registry  │   │    HealthChecker      │
	   │  - DefaultRegistry     │   │  - component map      │
	   │  - MustRegister at     │   │  - critical set:      │
	   │    package init        │   │    telegram, docker   │
	   │  - Go runtime metrics  │   │  - version, uptime    │
	   └────────────▲───────────┘   └──────▲────────────────┘
	                │                      │
	   ┌────────────┴──────────────────────┴───────────────┐
	   │                    Writers                        │
	   │  dispatch loop: updates, in-flight, durations     │
	   │  middleware: access denied, rate limited          │
	   │  auth flow: attempt outcomes                      │
	   │  codec: rejected payloads by reason               │
	   │  facade: container actions by outcome             │
	   │  health loop: check results, component updates    │
	   │  Collector (15s): sessions, self usage, engine    │
	   └───────────────────────────────────────────────────┘

# Metric Categories

Update pipeline:
  - tmbot_updates_total{kind}: received updates by trigger kind
  - tmbot_updates_in_flight: currently running handlers
  - tmbot_handler_duration_seconds{handler}: execution time
  - tmbot_handler_errors_total{handler}: failures per handler

Security:
  - tmbot_auth_attempts_total{outcome}: success, failure, blocked
  - tmbot_access_denied_total: refusals of unknown users
  - tmbot_access_blocked_total: users escalated to a block
  - tmbot_rate_limited_total: updates dropped by the limiter
  - tmbot_callbacks_rejected_total{reason}: codec rejections

Containers:
  - tmbot_container_actions_total{action,outcome}: manage calls
  - tmbot_engine_up: engine ping result

Self:
  - tmbot_sessions_active: live authenticated sessions
  - tmbot_health_checks_total{result}: health loop runs
  - tmbot_self_cpu_percent, tmbot_self_memory_percent,
    tmbot_self_rss_bytes: the agent's own footprint

# Health Probes

Components register and update their state through RegisterComponent
and UpdateComponent. /health reflects all of them; /ready only the
critical pair (telegram, docker) the agent cannot exist without. The
health loop in the bot runtime feeds these from its 60-second cycle,
and the standalone --health_check CLI mode reads /health to produce
its exit code.

# Timer Helper

Timer wraps the start-observe pattern for histograms:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.HandlerDuration, "containers")

# Collector

Collector refreshes the gauges that describe current state rather than
counted events. It samples its Sources every 15 seconds: active session
count, the agent's own CPU/RSS/memory share, and an engine ping. Nil
sources are skipped, failed samples leave the previous value in place.
*/
package metrics
