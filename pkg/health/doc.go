/*
Package health provides probe primitives and the standalone health check
used by the --health_check CLI mode.

A running bot exposes its component report on the loopback operations
endpoint (see the metrics package). This package is the consumer side:
reusable checkers for asking "is this thing up", plus ProbeOps, which
turns the /health report into a printable summary and a conventional
process exit code.

# Architecture

	--health_check                        bot runtime health loop
	      │                                        │
	      ▼                                        ▼
	┌──────────────┐                      ┌─────────────────┐
	│   ProbeOps   │                      │   TCPChecker    │
	│ GET /health  │                      │ webhook listener│
	└──────┬───────┘                      └────────┬────────┘
	       │ HTTPChecker                           │ Status.Update
	       ▼                                       ▼
	  exit 0 / 1 / 2                     component flip after
	  + report on stdout                 3 consecutive failures

# Checkers

Two checker types implement the Checker interface:

  - HTTPChecker: request a URL, classify by status code range. The
    response code and a bounded copy of the body are kept on the Result
    so callers can interpret what the endpoint reported.
  - TCPChecker: dial an address, healthy when the connection opens. The
    bot runtime points one at its own webhook listener each health
    cycle to confirm the TLS accept loop is still serving.

Status layers streak tracking on top of raw results: a component flips
unhealthy only after Config.Retries consecutive failures, and recovers
on the first success. This keeps one slow Docker ping from flagging the
whole agent.

# Exit codes

ProbeOps follows the Docker HEALTHCHECK convention:

	0  the bot reports healthy
	1  the bot reports unhealthy (the report names the failing component)
	2  unknown: endpoint unreachable or response unreadable

The probe treats HTTP 503 as a valid answer, since that is how the
operations endpoint serves an unhealthy report.
*/
package health
