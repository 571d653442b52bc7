package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Update pipeline metrics
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmbot_updates_total",
			Help: "Total number of received updates by kind",
		},
		[]string{"kind"},
	)

	UpdatesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmbot_updates_in_flight",
			Help: "Number of updates currently being handled",
		},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tmbot_handler_duration_seconds",
			Help:    "Handler execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	HandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmbot_handler_errors_total",
			Help: "Total number of handler failures by handler",
		},
		[]string{"handler"},
	)

	// Security metrics
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmbot_auth_attempts_total",
			Help: "Total number of TOTP verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	AccessDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tmbot_access_denied_total",
			Help: "Total number of refused requests from unknown users",
		},
	)

	AccessBlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tmbot_access_blocked_total",
			Help: "Total number of users blocked by access control",
		},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tmbot_rate_limited_total",
			Help: "Total number of updates dropped by the rate limiter",
		},
	)

	CallbacksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmbot_callbacks_rejected_total",
			Help: "Total number of rejected callback payloads by reason",
		},
		[]string{"reason"},
	)

	// Container metrics
	ContainerActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmbot_container_actions_total",
			Help: "Total number of container manage calls by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	EngineUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmbot_engine_up",
			Help: "Whether the container engine answers pings (1 = up, 0 = down)",
		},
	)

	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmbot_sessions_active",
			Help: "Number of live authenticated sessions",
		},
	)

	PluginsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmbot_plugins_loaded",
			Help: "Number of loaded plugins",
		},
	)

	// Self health metrics
	HealthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmbot_health_checks_total",
			Help: "Total number of health loop runs by result",
		},
		[]string{"result"},
	)

	SelfCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmbot_self_cpu_percent",
			Help: "CPU usage of the bot process",
		},
	)

	SelfMemoryPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmbot_self_memory_percent",
			Help: "Host memory share of the bot process",
		},
	)

	SelfRSSBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmbot_self_rss_bytes",
			Help: "Resident set size of the bot process in bytes",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UpdatesTotal)
	prometheus.MustRegister(UpdatesInFlight)
	prometheus.MustRegister(HandlerDuration)
	prometheus.MustRegister(HandlerErrors)
	prometheus.MustRegister(AuthAttempts)
	prometheus.MustRegister(AccessDenied)
	prometheus.MustRegister(AccessBlocked)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(CallbacksRejected)
	prometheus.MustRegister(ContainerActions)
	prometheus.MustRegister(EngineUp)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(PluginsLoaded)
	prometheus.MustRegister(HealthChecks)
	prometheus.MustRegister(SelfCPUPercent)
	prometheus.MustRegister(SelfMemoryPercent)
	prometheus.MustRegister(SelfRSSBytes)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
