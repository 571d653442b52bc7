package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/health"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
)

const (
	// healthInterval is the cadence of the daemonic health loop.
	healthInterval = 60 * time.Second

	// cpuWarnThreshold/memWarnThreshold trigger resource warnings.
	cpuWarnThreshold = 90.0
	memWarnThreshold = 80.0

	enginePingTimeout    = 5 * time.Second
	listenerProbeTimeout = 3 * time.Second
)

func (r *Runtime) healthLoop(stopCh chan struct{}) {
	defer r.loops.Done()

	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.checkHealth()
		}
	}
}

// checkHealth runs one cycle: engine ping, webhook listener probe, and
// the agent's own resource snapshot with threshold warnings. The result
// and its timestamp feed IsHealthy and the component report.
func (r *Runtime) checkHealth() {
	ok := true

	if r.docker != nil && !r.checkEngine() {
		ok = false
	}
	if r.ingress != nil && !r.checkListener() {
		ok = false
	}
	r.checkSelf()

	metrics.UpdateComponent("telegram", true, r.updateAge())

	if r.rate != nil {
		r.rate.Prune()
	}

	result := "ok"
	if !ok {
		result = "degraded"
	}
	metrics.HealthChecks.WithLabelValues(result).Inc()

	r.healthOK.Store(ok)
	r.lastHealthNano.Store(r.now().UnixNano())
}

// checkEngine pings the engine. One failed ping only flips the
// component after the probe retry budget; a degradation event fires on
// the flip, not on every failed cycle.
func (r *Runtime) checkEngine() bool {
	ctx, cancel := context.WithTimeout(context.Background(), enginePingTimeout)
	defer cancel()

	healthyBefore := r.engineStatus.Healthy
	err := r.docker.IsAvailable(ctx)

	result := health.Result{Healthy: err == nil, CheckedAt: r.now()}
	if err != nil {
		result.Message = err.Error()
		r.logger.Warn().Err(err).Msg("engine ping failed")
		metrics.EngineUp.Set(0)
	} else {
		result.Message = "engine reachable"
		metrics.EngineUp.Set(1)
	}

	r.engineStatus.Update(result, r.probeConfig)
	metrics.UpdateComponent("docker", r.engineStatus.Healthy, result.Message)

	if healthyBefore && !r.engineStatus.Healthy {
		r.emitDegraded("docker", result.Message)
	}
	return r.engineStatus.Healthy
}

// checkListener dials the local webhook port to confirm the TLS accept
// loop is still serving.
func (r *Runtime) checkListener() bool {
	ctx, cancel := context.WithTimeout(context.Background(), listenerProbeTimeout)
	defer cancel()

	healthyBefore := r.webhookStatus.Healthy
	result := health.NewTCPChecker(r.ingress.Addr()).WithTimeout(listenerProbeTimeout).Check(ctx)
	r.webhookStatus.Update(result, r.probeConfig)

	if !result.Healthy {
		r.logger.Warn().Str("addr", r.ingress.Addr()).Msg("webhook listener probe failed")
	}
	metrics.UpdateComponent("webhook", r.webhookStatus.Healthy, result.Message)

	if healthyBefore && !r.webhookStatus.Healthy {
		r.emitDegraded("webhook", result.Message)
	}
	return r.webhookStatus.Healthy
}

// checkSelf samples the agent's own CPU, RSS, and memory share, exports
// them as gauges, and warns past the thresholds.
func (r *Runtime) checkSelf() {
	if r.host == nil {
		return
	}

	usage, err := r.host.Self()
	if err != nil {
		r.logger.Warn().Err(err).Msg("self snapshot failed")
		return
	}

	metrics.SelfCPUPercent.Set(usage.CPUPercent)
	metrics.SelfMemoryPercent.Set(usage.MemoryPercent)
	metrics.SelfRSSBytes.Set(float64(usage.RSSBytes))

	r.logger.Debug().
		Float64("cpu_percent", usage.CPUPercent).
		Float64("memory_percent", usage.MemoryPercent).
		Uint64("rss_bytes", usage.RSSBytes).
		Msg("resource snapshot")

	if usage.CPUPercent > cpuWarnThreshold {
		r.logger.Warn().Float64("cpu_percent", usage.CPUPercent).Msg("high CPU usage")
		r.emitDegraded("cpu", fmt.Sprintf("cpu at %.1f%%", usage.CPUPercent))
	}
	if usage.MemoryPercent > memWarnThreshold {
		r.logger.Warn().Float64("memory_percent", usage.MemoryPercent).Msg("high memory usage")
		r.emitDegraded("memory", fmt.Sprintf("memory at %.1f%%", usage.MemoryPercent))
	}
}

func (r *Runtime) emitDegraded(component, message string) {
	if r.broker == nil {
		return
	}
	r.broker.Emit(events.EventHealthDegraded, 0, message, map[string]string{"component": component})
}

// updateAge describes ingress liveness for the component report.
func (r *Runtime) updateAge() string {
	last := r.lastUpdateNano.Load()
	if last == 0 {
		return "no updates yet"
	}
	return fmt.Sprintf("last update %s ago", r.now().Sub(time.Unix(0, last)).Round(time.Second))
}
