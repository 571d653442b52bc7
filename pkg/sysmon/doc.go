// Package sysmon reads host vital statistics for the metrics views:
// load average, memory and swap, disk usage, temperature sensors,
// uptime, per-interface network counters, and the agent's own resource
// footprint for the health loop.
//
// Handlers depend on the Provider interface rather than on gopsutil
// directly, so views can be tested against a stub. The production Host
// implementation normalises readings into plain structs, rounds
// percentages to two decimals, and tolerates partially unavailable
// sources: a vanished mount or a missing per-process counter degrades
// the view instead of failing it.
package sysmon
