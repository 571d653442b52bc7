package bot

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/access"
	"github.com/orenlab/pytmbot-sub000/pkg/config"
	"github.com/orenlab/pytmbot-sub000/pkg/docker"
	"github.com/orenlab/pytmbot-sub000/pkg/errs"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/handlers"
	"github.com/orenlab/pytmbot-sub000/pkg/health"
	"github.com/orenlab/pytmbot-sub000/pkg/log"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
	"github.com/orenlab/pytmbot-sub000/pkg/plugin"
	"github.com/orenlab/pytmbot-sub000/pkg/sysmon"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
)

const (
	// drainTimeout bounds how long Shutdown waits for in-flight updates.
	drainTimeout = 10 * time.Second

	// maxIngressRestarts is the restart budget for a failing ingress loop.
	maxIngressRestarts = 3

	// ingressBackoffCap bounds the restart backoff (1s, 2s, 4s, 8s).
	ingressBackoffCap = 8 * time.Second

	longPollTimeout   = 30 * time.Second
	httpClientTimeout = 60 * time.Second
)

// NewClient builds the telebot instance. The runtime replaces telebot's
// sequential Start loop with its own dispatcher, so only the token, the
// poller, and the HTTP client matter here.
func NewClient(token string, poller tele.Poller) (*tele.Bot, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: poller,
		Client: &http.Client{Timeout: httpClientTimeout},
		OnError: func(err error, c tele.Context) {
			logger := log.WithComponent("telebot")
			if c != nil && c.Sender() != nil {
				logger.Error().Err(err).Int64("user_id", c.Sender().ID).Msg("handler error")
				return
			}
			logger.Error().Err(err).Msg("client error")
		},
	})
	if err != nil {
		return nil, errs.New(errs.CodeInit, "telegram client", err)
	}
	return b, nil
}

// NewLongPoller returns the default ingress, restricted to the update
// kinds the bot serves.
func NewLongPoller() tele.Poller {
	return &tele.LongPoller{
		Timeout:        longPollTimeout,
		AllowedUpdates: []string{"message", "callback_query"},
	}
}

// Options wires the runtime's collaborators. Bot, Config, Access, Rate,
// Registry, and Broker are required; Docker, Plugins, and Ingress may be
// nil (no engine checks, no plugin teardown, long-polling mode).
type Options struct {
	Bot       *tele.Bot
	Config    *config.Config
	Access    *access.Controller
	Rate      *access.RateLimiter
	Registry  *handlers.Registry
	Docker    *docker.Service
	Sysmon    sysmon.Provider
	Plugins   *plugin.Manager
	Broker    *events.Broker
	Collector *metrics.Collector
	Ingress   *Ingress
	OpsAddr   string
	Version   string
}

// Runtime supervises the whole agent: the ingress poller, the per-update
// dispatcher, the health loop, and the operations endpoint. One Runtime
// serves one bot account.
type Runtime struct {
	bot       *tele.Bot
	cfg       *config.Config
	access    *access.Controller
	rate      *access.RateLimiter
	docker    *docker.Service
	host      sysmon.Provider
	plugins   *plugin.Manager
	broker    *events.Broker
	collector *metrics.Collector
	ingress   *Ingress
	ops       *http.Server
	version   string
	logger    zerolog.Logger

	mu       sync.Mutex
	running  bool
	restarts int
	stopCh   chan struct{}

	loops    sync.WaitGroup // dispatch loop + health loop
	inflight sync.WaitGroup // per-update handler goroutines

	pollerErr chan error

	lastUpdateNano atomic.Int64
	healthOK       atomic.Bool
	lastHealthNano atomic.Int64

	engineStatus  *health.Status
	webhookStatus *health.Status
	probeConfig   health.Config

	ingressBackoff time.Duration
	now            func() time.Time
}

// New assembles the runtime: middleware goes on first so every handler
// the registry attaches afterwards sits behind access control and the
// rate limiter.
func New(opts Options) *Runtime {
	opts.Bot.Use(AccessControl(opts.Access), RateLimit(opts.Rate, opts.Broker))
	opts.Registry.Attach(opts.Bot)

	return &Runtime{
		bot:            opts.Bot,
		cfg:            opts.Config,
		access:         opts.Access,
		rate:           opts.Rate,
		docker:         opts.Docker,
		host:           opts.Sysmon,
		plugins:        opts.Plugins,
		broker:         opts.Broker,
		collector:      opts.Collector,
		ingress:        opts.Ingress,
		ops:            metrics.NewOpsServer(opts.OpsAddr),
		version:        opts.Version,
		logger:         log.WithComponent("runtime"),
		pollerErr:      make(chan error, 1),
		engineStatus:   health.NewStatus(),
		webhookStatus:  health.NewStatus(),
		probeConfig:    health.DefaultConfig(),
		ingressBackoff: time.Second,
		now:            time.Now,
	}
}

// Launch starts the poller, the dispatcher, the health loop, the access
// sweeper, the event broker, the state gauge collector, and the
// operations endpoint. It returns once everything is running; updates
// flow until Shutdown.
func (r *Runtime) Launch() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errs.New(errs.CodeInit, "launch", nil, "reason", "already running")
	}
	r.running = true
	r.restarts = 0
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	metrics.SetVersion(r.version)
	metrics.RegisterComponent("telegram", true, "starting")
	if r.docker != nil {
		metrics.RegisterComponent("docker", true, "starting")
	}
	if r.ingress != nil {
		metrics.RegisterComponent("webhook", true, "starting")
	}

	r.healthOK.Store(true)
	r.lastHealthNano.Store(r.now().UnixNano())

	if r.broker != nil {
		r.broker.Start()
	}
	if r.access != nil {
		r.access.StartSweeper()
	}
	if r.collector != nil {
		r.collector.Start()
	}

	go func() {
		if err := r.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error().Err(err).Str("addr", r.ops.Addr).Msg("operations endpoint failed")
		}
	}()

	r.loops.Add(2)
	go r.dispatchLoop(stopCh)
	go r.healthLoop(stopCh)

	mode := "long-polling"
	if r.ingress != nil {
		mode = "webhook"
	}
	r.logger.Info().
		Str("mode", mode).
		Str("version", r.version).
		Msg("bot runtime started")
	return nil
}

// Shutdown stops the ingress, waits up to the drain timeout for
// in-flight handlers, then tears down plugins, the sweeper, the broker,
// the operations endpoint, and the engine client. A timed-out drain is
// reported but never blocks the teardown.
func (r *Runtime) Shutdown(reason string) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh := r.stopCh
	r.mu.Unlock()

	r.logger.Info().Str("reason", reason).Msg("shutting down")
	close(stopCh)

	drained := make(chan struct{})
	go func() {
		r.loops.Wait()
		r.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		err = errs.New(errs.CodeShutdownTimeout, "shutdown", nil, "timeout", drainTimeout.String())
		r.logger.Error().Dur("timeout", drainTimeout).Msg("shutdown drain timed out")
	}

	if r.plugins != nil {
		r.plugins.Cleanup()
	}
	if r.access != nil {
		r.access.Stop()
	}
	if r.collector != nil {
		r.collector.Stop()
	}
	if r.broker != nil {
		r.broker.Stop()
	}
	if closeErr := r.ops.Close(); closeErr != nil {
		r.logger.Debug().Err(closeErr).Msg("operations endpoint close failed")
	}
	if r.docker != nil {
		if closeErr := r.docker.Close(); closeErr != nil {
			r.logger.Debug().Err(closeErr).Msg("engine client close failed")
		}
	}

	metrics.UpdateComponent("telegram", false, "stopped")
	r.logger.Info().Msg("bot runtime stopped")
	return err
}

// IsHealthy reports whether the runtime is serving and the health loop
// both succeeded and ran recently.
func (r *Runtime) IsHealthy() bool {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running || !r.healthOK.Load() {
		return false
	}
	last := time.Unix(0, r.lastHealthNano.Load())
	return r.now().Sub(last) < 2*healthInterval
}

// Done returns a channel closed when the runtime stops serving, whether
// through Shutdown or after the ingress restart budget is exhausted.
// Valid after Launch.
func (r *Runtime) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCh
}

// Recover consumes one ingress restart attempt and reports whether the
// budget allowed it. Once spent, the caller shuts the runtime down.
func (r *Runtime) Recover() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.restarts >= maxIngressRestarts {
		return false
	}
	r.restarts++
	return true
}

// dispatchLoop owns the poller and fans updates out to their own
// goroutines. A poller that panics or exits on its own is restarted
// with backoff until the budget runs out.
func (r *Runtime) dispatchLoop(stopCh chan struct{}) {
	defer r.loops.Done()

	stop := r.startPoller()
	backoff := r.ingressBackoff

	for {
		select {
		case <-stopCh:
			close(stop)
			return
		case u := <-r.bot.Updates:
			r.handle(u)
		case err := <-r.pollerErr:
			r.logger.Error().Err(err).Msg("ingress loop failed")
			if !r.Recover() {
				r.logger.Error().Msg("ingress restart budget exhausted")
				go r.Shutdown("ingress failure")
				continue
			}
			select {
			case <-stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff < ingressBackoffCap {
				backoff *= 2
			}
			stop = r.startPoller()
		}
	}
}

// startPoller runs the configured poller and reports a premature exit.
func (r *Runtime) startPoller() chan struct{} {
	stop := make(chan struct{})
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.reportPollerExit(fmt.Errorf("poller panic: %v", p))
			}
		}()

		r.bot.Poller.Poll(r.bot, r.bot.Updates, stop)

		select {
		case <-stop:
			// Clean stop.
		default:
			r.reportPollerExit(errors.New("poller exited unexpectedly"))
		}
	}()
	return stop
}

func (r *Runtime) reportPollerExit(err error) {
	select {
	case r.pollerErr <- err:
	default:
	}
}

// handle classifies one update and dispatches it on its own goroutine.
// Unknown kinds are dropped; a panicking handler is logged and answered
// with the generic error line while the runtime keeps serving.
func (r *Runtime) handle(u tele.Update) {
	kind := updateKind(u)
	if kind == "" {
		metrics.UpdatesTotal.WithLabelValues("unknown").Inc()
		r.logger.Debug().Int("update_id", u.ID).Msg("unknown update kind dropped")
		return
	}

	r.lastUpdateNano.Store(r.now().UnixNano())
	metrics.UpdatesTotal.WithLabelValues(kind).Inc()
	metrics.UpdatesInFlight.Inc()

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer metrics.UpdatesInFlight.Dec()

		logger := log.WithUpdate(uuid.NewString()[:8])

		defer func() {
			if p := recover(); p != nil {
				logger.Error().
					Str("kind", kind).
					Interface("panic", p).
					Str("stack", string(debug.Stack())).
					Msg("handler panicked")
				r.replyFailure(u)
			}
		}()

		logger.Debug().Str("kind", kind).Int("update_id", u.ID).Msg("dispatching update")
		r.bot.ProcessUpdate(u)
	}()
}

// updateKind names the update kinds the bot serves; everything else is
// dropped before dispatch.
func updateKind(u tele.Update) string {
	switch {
	case u.Message != nil:
		return "message"
	case u.Callback != nil:
		return "callback"
	default:
		return ""
	}
}

// replyFailure best-effort delivers the generic error line to the chat
// a failed update came from.
func (r *Runtime) replyFailure(u tele.Update) {
	var chat *tele.Chat
	switch {
	case u.Message != nil:
		chat = u.Message.Chat
	case u.Callback != nil && u.Callback.Message != nil:
		chat = u.Callback.Message.Chat
	}
	if chat == nil {
		return
	}
	if _, err := r.bot.Send(chat, templates.GenericError); err != nil {
		r.logger.Debug().Err(err).Msg("failed to deliver failure notice")
	}
}
