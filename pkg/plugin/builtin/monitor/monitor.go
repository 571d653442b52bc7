// Package monitor is a built-in plugin that watches host resources in
// the background, relays security events from the broker, and notifies
// a configured chat when usage crosses the configured thresholds.
package monitor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"
	"gopkg.in/yaml.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/plugin"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
)

// Name is the identifier the plugin is loaded under.
const Name = "monitor"

const (
	defaultIntervalSeconds = 60
	defaultCPUThreshold    = 90.0
	defaultMemThreshold    = 85.0
	defaultDiskThreshold   = 90.0
	defaultCooldownSeconds = 300
)

// Config is read from plugins/monitor.yaml or the plugins_config
// section of the main config. CPU pressure is the one-minute load
// average normalized by core count, in percent. The cooldown bounds how
// often one event kind may reach the notify chat.
type Config struct {
	IntervalSeconds      int     `yaml:"interval_seconds"`
	CPUThreshold         float64 `yaml:"cpu_threshold"`
	MemoryThreshold      float64 `yaml:"memory_threshold"`
	DiskThreshold        float64 `yaml:"disk_threshold"`
	NotifyChatID         int64   `yaml:"notify_chat_id"`
	EventCooldownSeconds int     `yaml:"event_cooldown_seconds"`
}

// UnmarshalYAML accepts each value both bare and in the single-element
// list shape the main config file uses (cpu_threshold: [42]).
func (c *Config) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		IntervalSeconds      yaml.Node `yaml:"interval_seconds"`
		CPUThreshold         yaml.Node `yaml:"cpu_threshold"`
		MemoryThreshold      yaml.Node `yaml:"memory_threshold"`
		DiskThreshold        yaml.Node `yaml:"disk_threshold"`
		NotifyChatID         yaml.Node `yaml:"notify_chat_id"`
		EventCooldownSeconds yaml.Node `yaml:"event_cooldown_seconds"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	for _, f := range []struct {
		node yaml.Node
		out  any
	}{
		{raw.IntervalSeconds, &c.IntervalSeconds},
		{raw.CPUThreshold, &c.CPUThreshold},
		{raw.MemoryThreshold, &c.MemoryThreshold},
		{raw.DiskThreshold, &c.DiskThreshold},
		{raw.NotifyChatID, &c.NotifyChatID},
		{raw.EventCooldownSeconds, &c.EventCooldownSeconds},
	} {
		if err := decodeScalar(f.node, f.out); err != nil {
			return err
		}
	}
	return nil
}

// decodeScalar unwraps a single-element sequence before decoding.
func decodeScalar(n yaml.Node, out any) error {
	if n.Kind == 0 {
		return nil // key absent, keep the default
	}
	node := &n
	if n.Kind == yaml.SequenceNode && len(n.Content) == 1 {
		node = n.Content[0]
	}
	return node.Decode(out)
}

func defaultConfig() Config {
	return Config{
		IntervalSeconds:      defaultIntervalSeconds,
		CPUThreshold:         defaultCPUThreshold,
		MemoryThreshold:      defaultMemThreshold,
		DiskThreshold:        defaultDiskThreshold,
		EventCooldownSeconds: defaultCooldownSeconds,
	}
}

// alertTitles names the broker events the watcher relays to the notify
// chat. Everything else on the bus is ignored.
var alertTitles = map[events.EventType]string{
	events.EventAuthFailed:      "🔑 Invalid 2FA code",
	events.EventAuthBlocked:     "⛔ 2FA attempt limit reached",
	events.EventAccessDenied:    "🚫 Unauthorized contact",
	events.EventAccessBlocked:   "🚫 Repeat offender blocked",
	events.EventContainerAction: "📦 Container action",
	events.EventContainerDenied: "📦 Container action refused",
	events.EventHealthDegraded:  "🩺 Health degraded",
}

// sample is one observation of the watched resources.
type sample struct {
	at           time.Time
	cpuPercent   float64
	memPercent   float64
	worstMount   string
	worstDiskPct float64
	breaches     []string
}

// Watcher implements plugin.Plugin.
type Watcher struct {
	cfg  Config
	deps plugin.Deps
	sub  events.Subscriber
	now  func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	last      *sample
	lastAlert map[events.EventType]time.Time
}

// New constructs an unstarted watcher.
func New() plugin.Plugin {
	return &Watcher{
		now:       time.Now,
		stopCh:    make(chan struct{}),
		lastAlert: make(map[events.EventType]time.Time),
	}
}

func init() {
	plugin.RegisterBuiltin(Name, New)
}

func (w *Watcher) Info() types.PluginInfo {
	return types.PluginInfo{
		Name:        Name,
		Version:     "1.2.0",
		Description: "background resource watcher with threshold notifications",
		Commands: map[string]string{
			"/monitor_status": "show thresholds and the latest sample",
		},
		Permissions: types.PluginPermissions{BasePermission: true},
	}
}

func (w *Watcher) Register(deps plugin.Deps) error {
	if deps.Sysmon == nil {
		return errors.New("monitor plugin requires the host metrics provider")
	}

	cfg := defaultConfig()
	if len(deps.RawConfig) > 0 {
		if err := yaml.Unmarshal(deps.RawConfig, &cfg); err != nil {
			return fmt.Errorf("failed to parse monitor config: %w", err)
		}
	}
	if err := validate(cfg); err != nil {
		return err
	}

	w.cfg = cfg
	w.deps = deps

	if deps.Commands != nil {
		deps.Commands.Command("/monitor_status", w.handleStatus)
	}

	if deps.Broker != nil {
		w.sub = deps.Broker.Subscribe()
		go w.eventLoop()
	}

	go w.loop()
	return nil
}

func validate(cfg Config) error {
	if cfg.IntervalSeconds < 1 {
		return fmt.Errorf("monitor interval_seconds must be at least 1, got %d", cfg.IntervalSeconds)
	}
	for name, v := range map[string]float64{
		"cpu_threshold":    cfg.CPUThreshold,
		"memory_threshold": cfg.MemoryThreshold,
		"disk_threshold":   cfg.DiskThreshold,
	} {
		if v <= 0 || v > 100 {
			return fmt.Errorf("monitor %s must be in (0, 100], got %v", name, v)
		}
	}
	if cfg.EventCooldownSeconds < 0 {
		return fmt.Errorf("monitor event_cooldown_seconds must not be negative, got %d", cfg.EventCooldownSeconds)
	}
	return nil
}

func (w *Watcher) Cleanup() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.sub != nil {
			w.deps.Broker.Unsubscribe(w.sub)
		}
	})
	return nil
}

// loop samples once per interval. The first sample intentionally waits
// a full interval so startup noise does not trigger an alert.
func (w *Watcher) loop() {
	ticker := time.NewTicker(time.Duration(w.cfg.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check takes one sample and notifies on threshold breaches. Metric
// read failures are logged and leave the affected value at zero so one
// broken source does not silence the rest.
func (w *Watcher) check() {
	s := &sample{at: time.Now()}

	if load, err := w.deps.Sysmon.LoadAverage(); err != nil {
		w.deps.Logger.Warn().Err(err).Msg("monitor: load average unavailable")
	} else {
		cores := load.CPUCount
		if cores < 1 {
			cores = 1
		}
		s.cpuPercent = load.Load1 / float64(cores) * 100
		if s.cpuPercent > w.cfg.CPUThreshold {
			s.breaches = append(s.breaches,
				fmt.Sprintf("CPU pressure %.1f%% exceeds %.0f%%", s.cpuPercent, w.cfg.CPUThreshold))
		}
	}

	if mem, err := w.deps.Sysmon.Memory(); err != nil {
		w.deps.Logger.Warn().Err(err).Msg("monitor: memory stats unavailable")
	} else {
		s.memPercent = mem.Percent
		if s.memPercent > w.cfg.MemoryThreshold {
			s.breaches = append(s.breaches,
				fmt.Sprintf("memory usage %.1f%% exceeds %.0f%%", s.memPercent, w.cfg.MemoryThreshold))
		}
	}

	if disks, err := w.deps.Sysmon.Disks(); err != nil {
		w.deps.Logger.Warn().Err(err).Msg("monitor: disk stats unavailable")
	} else {
		for _, d := range disks {
			if d.Percent > s.worstDiskPct {
				s.worstDiskPct = d.Percent
				s.worstMount = d.MountPoint
			}
		}
		if s.worstDiskPct > w.cfg.DiskThreshold {
			s.breaches = append(s.breaches,
				fmt.Sprintf("disk %s at %.1f%% exceeds %.0f%%", s.worstMount, s.worstDiskPct, w.cfg.DiskThreshold))
		}
	}

	w.mu.Lock()
	w.last = s
	w.mu.Unlock()

	if len(s.breaches) > 0 {
		w.notify(s)
	}
}

func (w *Watcher) notify(s *sample) {
	if w.deps.Notify == nil || w.cfg.NotifyChatID == 0 {
		return
	}
	text := "⚠️ Resource alert:\n" + strings.Join(s.breaches, "\n")
	if err := w.deps.Notify(w.cfg.NotifyChatID, text); err != nil {
		w.deps.Logger.Error().Err(err).Msg("monitor: notification failed")
	}
}

// eventLoop consumes the broker subscription until Cleanup unsubscribes
// or the watcher stops.
func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.sub:
			if !ok {
				return
			}
			w.relay(ev)
		}
	}
}

// relay forwards one broker event to the notify chat. Each event kind
// is rate limited by the configured cooldown so an attack flood yields
// one alert per kind, not one per attempt.
func (w *Watcher) relay(ev *events.Event) {
	title, watched := alertTitles[ev.Type]
	if !watched || w.deps.Notify == nil || w.cfg.NotifyChatID == 0 {
		return
	}

	cooldown := time.Duration(w.cfg.EventCooldownSeconds) * time.Second
	now := w.now()

	w.mu.Lock()
	if last, seen := w.lastAlert[ev.Type]; seen && now.Sub(last) < cooldown {
		w.mu.Unlock()
		return
	}
	w.lastAlert[ev.Type] = now
	w.mu.Unlock()

	var b strings.Builder
	b.WriteString(title)
	if ev.Message != "" {
		b.WriteString(": " + ev.Message)
	}
	if ev.UserID != 0 {
		fmt.Fprintf(&b, " (user %d)", ev.UserID)
	}
	for _, k := range []string{"container_id", "action", "component"} {
		if v := ev.Metadata[k]; v != "" {
			fmt.Fprintf(&b, " [%s=%s]", k, v)
		}
	}

	if err := w.deps.Notify(w.cfg.NotifyChatID, b.String()); err != nil {
		w.deps.Logger.Error().Err(err).Str("event", string(ev.Type)).Msg("monitor: event alert failed")
	}
}

func (w *Watcher) handleStatus(c tele.Context) error {
	w.mu.Lock()
	last := w.last
	w.mu.Unlock()

	var b strings.Builder
	b.WriteString("<b>📡 Monitor</b>\n")
	fmt.Fprintf(&b, "Thresholds: CPU %.0f%%, memory %.0f%%, disk %.0f%%\n",
		w.cfg.CPUThreshold, w.cfg.MemoryThreshold, w.cfg.DiskThreshold)
	fmt.Fprintf(&b, "Interval: %ds\n", w.cfg.IntervalSeconds)

	if last == nil {
		b.WriteString("No sample collected yet.")
	} else {
		fmt.Fprintf(&b, "Last sample at %s:\n", last.at.Format("15:04:05"))
		fmt.Fprintf(&b, "CPU pressure %.1f%%, memory %.1f%%", last.cpuPercent, last.memPercent)
		if last.worstMount != "" {
			fmt.Fprintf(&b, ", disk %s %.1f%%", last.worstMount, last.worstDiskPct)
		}
		b.WriteString("\n")
		if len(last.breaches) == 0 {
			b.WriteString("Breaches: none")
		} else {
			b.WriteString("Breaches:\n" + strings.Join(last.breaches, "\n"))
		}
	}

	return c.Send(b.String(), tele.ModeHTML)
}
