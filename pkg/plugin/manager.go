package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/yaml.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/config"
	"github.com/orenlab/pytmbot-sub000/pkg/docker"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/sysmon"
	"github.com/orenlab/pytmbot-sub000/pkg/types"
)

// DefaultBaseDir is where per-plugin configuration files live.
const DefaultBaseDir = "plugins"

// namePattern is the only shape a plugin name may take.
var namePattern = regexp.MustCompile(`^[a-z_]+$`)

// reservedNames can never be used as plugin names.
var reservedNames = map[string]bool{
	"plugin": true,
	"core":   true,
	"config": true,
}

var (
	errUnknownPlugin = errors.New("unknown plugin")
	errInvalidName   = errors.New("invalid plugin name")
	errOutsideBase   = errors.New("plugin path escapes the base directory")
	errSkippedInside = errors.New("plugin requires running on the host machine")
)

// Registrar is the slice of the handler registry a plugin may hook
// commands and keyboard routes into.
type Registrar interface {
	Command(command string, h tele.HandlerFunc)
	TextRoute(label string, h tele.HandlerFunc)
}

// Deps is everything a plugin may use. RawConfig carries the contents
// of plugins/<name>.yaml when the file exists, or the re-encoded
// plugins_config.<name> section of the main config otherwise.
type Deps struct {
	Commands  Registrar
	Config    *config.Config
	RawConfig []byte
	Logger    zerolog.Logger
	Broker    *events.Broker
	Sysmon    sysmon.Provider
	Docker    *docker.Service
	Notify    func(chatID int64, text string) error
}

// Plugin is an in-process extension. Info must be answerable before
// Register is called; Cleanup must be safe to call once after Register.
type Plugin interface {
	Info() types.PluginInfo
	Register(deps Deps) error
	Cleanup() error
}

// Factory constructs a fresh plugin instance.
type Factory func() Plugin

var (
	builtinsMu sync.Mutex
	builtins   = map[string]Factory{}
)

// RegisterBuiltin adds a compiled-in plugin to the default catalog.
// Called from plugin package init functions.
func RegisterBuiltin(name string, f Factory) {
	builtinsMu.Lock()
	defer builtinsMu.Unlock()
	builtins[name] = f
}

// Builtins returns a copy of the default catalog.
func Builtins() map[string]Factory {
	builtinsMu.Lock()
	defer builtinsMu.Unlock()
	out := make(map[string]Factory, len(builtins))
	for k, v := range builtins {
		out[k] = v
	}
	return out
}

// Options configures a Manager.
type Options struct {
	BaseDir     string
	Factories   map[string]Factory // defaults to Builtins()
	Deps        Deps
	InContainer func() bool // defaults to RunningInContainer
	Logger      zerolog.Logger
	Broker      *events.Broker
}

// Manager validates, loads, and tears down plugins.
type Manager struct {
	baseDir     string
	factories   map[string]Factory
	deps        Deps
	inContainer func() bool
	log         zerolog.Logger
	broker      *events.Broker

	mu     sync.Mutex
	loaded map[string]Plugin
}

// NewManager creates a plugin manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		baseDir:     opts.BaseDir,
		factories:   opts.Factories,
		deps:        opts.Deps,
		inContainer: opts.InContainer,
		log:         opts.Logger,
		broker:      opts.Broker,
		loaded:      make(map[string]Plugin),
	}
	if m.baseDir == "" {
		m.baseDir = DefaultBaseDir
	}
	if m.factories == nil {
		m.factories = Builtins()
	}
	if m.inContainer == nil {
		m.inContainer = RunningInContainer
	}
	return m
}

// LoadAll loads every named plugin. One failing plugin never prevents
// the others from loading; each failure is logged with its name.
func (m *Manager) LoadAll(names []string) {
	for _, name := range names {
		if err := m.load(name); err != nil {
			if errors.Is(err, errSkippedInside) {
				m.log.Warn().Str("plugin", name).Msg("plugin skipped: requires host machine")
				continue
			}
			m.log.Error().Str("plugin", name).Err(err).Msg("plugin failed to load")
			if m.broker != nil {
				m.broker.Emit(events.EventPluginFailed, 0, "plugin failed to load",
					map[string]string{"plugin": name, "error": err.Error()})
			}
		}
	}
}

func (m *Manager) load(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	factory, ok := m.factories[name]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownPlugin, name)
	}

	m.mu.Lock()
	if _, dup := m.loaded[name]; dup {
		m.mu.Unlock()
		return nil // registration is idempotent per name
	}
	m.mu.Unlock()

	raw, err := m.readConfig(name)
	if err != nil {
		return err
	}

	p := factory()
	info := p.Info()
	if info.Name == "" || info.Version == "" || info.Description == "" {
		return fmt.Errorf("plugin %s: metadata incomplete (name, version and description are required)", name)
	}
	if info.Name != name {
		return fmt.Errorf("plugin %s: declares mismatching name %q", name, info.Name)
	}

	if info.Permissions.NeedRunningOnHostMachine && m.inContainer() {
		return errSkippedInside
	}

	deps := m.deps
	deps.RawConfig = raw
	deps.Logger = m.log.With().Str("plugin", name).Logger()
	deps.Broker = m.broker
	if err := p.Register(deps); err != nil {
		return fmt.Errorf("failed to register plugin %s: %w", name, err)
	}

	m.mu.Lock()
	m.loaded[name] = p
	m.mu.Unlock()

	m.log.Info().Str("plugin", name).Str("version", info.Version).Msg("plugin loaded")
	if m.broker != nil {
		m.broker.Emit(events.EventPluginLoaded, 0, "plugin loaded",
			map[string]string{"plugin": name, "version": info.Version})
	}
	return nil
}

// readConfig loads plugins/<name>.yaml when present, falling back to
// the plugins_config section of the main config file. The resolved path
// must stay inside the base directory even though the name is already
// validated.
func (m *Manager) readConfig(name string) ([]byte, error) {
	base, err := filepath.Abs(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugin base dir: %w", err)
	}
	path := filepath.Clean(filepath.Join(base, name+".yaml"))
	if !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", errOutsideBase, name)
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m.sectionConfig(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin config %s: %w", name, err)
	}
	return raw, nil
}

// sectionConfig re-encodes the plugins_config.<name> section so a
// plugin configured through the main file receives the same raw YAML it
// would read from its own file.
func (m *Manager) sectionConfig(name string) ([]byte, error) {
	if m.deps.Config == nil {
		return nil, nil
	}
	var section yaml.Node
	ok, err := m.deps.Config.PluginConfig(name, &section)
	if err != nil || !ok {
		return nil, err
	}
	raw, err := yaml.Marshal(&section)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plugins_config.%s: %w", name, err)
	}
	return raw, nil
}

// Loaded lists the metadata of every loaded plugin, sorted by name.
func (m *Manager) Loaded() []types.PluginInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]types.PluginInfo, 0, len(m.loaded))
	for _, p := range m.loaded {
		infos = append(infos, p.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Cleanup tears every loaded plugin down and forgets it. A failing
// cleanup is logged and does not stop the rest.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, p := range m.loaded {
		if err := p.Cleanup(); err != nil {
			m.log.Error().Str("plugin", name).Err(err).Msg("plugin cleanup failed")
		}
	}
	m.loaded = make(map[string]Plugin)
}

// ValidateName enforces the plugin naming rules: lowercase letters and
// underscores only, nothing reserved, no hidden files, no path
// components, no source file targets.
func ValidateName(name string) error {
	switch {
	case name == "",
		!namePattern.MatchString(name),
		reservedNames[name],
		strings.HasPrefix(name, "."),
		strings.ContainsAny(name, `/\`),
		strings.Contains(name, ".."),
		strings.HasSuffix(name, ".go"),
		strings.HasSuffix(name, ".yaml"):
		return fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return nil
}
