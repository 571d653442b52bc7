// Package docker is the facade between chat handlers and the local
// container engine. Handlers never touch the engine client directly:
// everything they can show or do goes through Service, which owns
// normalisation, sanitization, and the authorisation of mutating
// actions.
//
// # Architecture
//
//	                 ┌────────────────────────────────────────────┐
//	                 │                  Service                   │
//	  handlers ────► │                                            │
//	                 │  ListContainers ──► bounded inspect pool   │
//	                 │  ContainerStats ──► one-shot stats sample  │
//	                 │  FetchLogs      ──► tail + sanitize        │
//	                 │  ListImages     ──► list + inspect detail  │
//	                 │  EngineSummary  ──► info + version         │
//	                 │  Manage         ──► admin ∧ authenticated  │
//	                 └──────────────────────┬─────────────────────┘
//	                                        │ API (narrow interface)
//	                                        ▼
//	                              engine client (socket/TCP)
//
// # Read paths
//
// ListContainers fans inspect calls out over a pool of four workers; a
// container that fails to inspect is logged and dropped from the view
// so one broken container cannot hide the rest. ContainerStats reads a
// single non-streaming sample, computes the memory percentage locally,
// and reduces the network block to the primary interface (eth0 when
// present, otherwise the first in name order). FetchLogs tails the last
// 50 lines of both streams, demultiplexes them when the container has
// no TTY, repairs invalid UTF-8, keeps only the final 3800 characters,
// and sanitizes the result for the requesting caller before returning.
//
// # Manage
//
// Manage is the only write path. It authorises every call against two
// independent predicates, admin allow-list membership and an
// authenticated session, and refuses with DENIED-severity logging when
// either fails; a refused call never reaches the engine. START, STOP
// and RENAME map directly onto engine calls; RENAME first validates
// the new name (1 to 64 characters, not whitespace-only). RESTART is
// considered successful only once the container reports running again,
// polled up to three times at 1.5-second intervals.
//
// Errors carry typed codes: NOT_FOUND for a missing container,
// CONTAINER_OP or IMAGE_OP for engine failures, CONNECTION for an
// unreachable engine. Error text is masked before logging so engine
// messages cannot leak configured secrets.
package docker
