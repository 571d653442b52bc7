package types

import (
	"strings"
	"time"
)

// AuthState represents the authentication state of a single user session
type AuthState string

const (
	AuthStateUnauthenticated AuthState = "unauthenticated"
	AuthStateProcessing      AuthState = "processing"
	AuthStateAuthenticated   AuthState = "authenticated"
	AuthStateBlocked         AuthState = "blocked"
)

// ContainerAction defines a mutating operation on a container
type ContainerAction string

const (
	ActionStart   ContainerAction = "start"
	ActionStop    ContainerAction = "stop"
	ActionRestart ContainerAction = "restart"
	ActionRename  ContainerAction = "rename"
)

// ParseContainerAction maps free-form action text to a ContainerAction.
// The second return is false for anything outside the closed set.
func ParseContainerAction(s string) (ContainerAction, bool) {
	switch ContainerAction(strings.ToLower(s)) {
	case ActionStart:
		return ActionStart, true
	case ActionStop:
		return ActionStop, true
	case ActionRestart:
		return ActionRestart, true
	case ActionRename:
		return ActionRename, true
	}
	return "", false
}

// UpdateKind classifies the trigger that produced an update
type UpdateKind string

const (
	UpdateKindMessage       UpdateKind = "message"
	UpdateKindCallbackQuery UpdateKind = "callback_query"
)

// Referer is the trigger a user was attempting when an auth gate stopped
// them. It is replayed as a keyboard after successful verification.
type Referer struct {
	Kind UpdateKind
	Data string // raw message text or callback data
}

// ContainerSummary is the row shown in container listings.
// All fields are pre-rendered strings.
type ContainerSummary struct {
	ShortID string `json:"short_id"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Created string `json:"created"` // date-time
	RunAt   string `json:"run_at"`  // relative, e.g. "3 hours ago"
	Status  string `json:"status"`
}

// MemoryStats is the memory block of a one-shot stats read
type MemoryStats struct {
	Usage   uint64  `json:"usage"`
	Limit   uint64  `json:"limit"`
	Percent float64 `json:"percent"` // round(usage/limit*100, 2); 0 when limit == 0
}

// CPUStats carries the throttling counters of a one-shot stats read
type CPUStats struct {
	Periods          uint64 `json:"periods"`
	ThrottledPeriods uint64 `json:"throttled_periods"`
	ThrottledTime    uint64 `json:"throttled_time"`
}

// NetworkStats is the primary-interface network block (eth0 when present)
type NetworkStats struct {
	Interface string `json:"interface"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxErrors  uint64 `json:"rx_errors"`
	TxErrors  uint64 `json:"tx_errors"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
}

// ContainerAttrs captures state and config attributes of a container
type ContainerAttrs struct {
	Running      bool     `json:"running"`
	Paused       bool     `json:"paused"`
	Restarting   bool     `json:"restarting"`
	Dead         bool     `json:"dead"`
	RestartCount int      `json:"restart_count"`
	ExitCode     int      `json:"exit_code"`
	Env          []string `json:"env"`
	Cmd          []string `json:"cmd"`
	Args         []string `json:"args"`
}

// ContainerFullStats is the full per-container report
type ContainerFullStats struct {
	Name    string         `json:"name"`
	Memory  MemoryStats    `json:"memory"`
	CPU     CPUStats       `json:"cpu"`
	Network NetworkStats   `json:"network"`
	Attrs   ContainerAttrs `json:"attrs"`
}

// ImageSummary is the row shown in image listings
type ImageSummary struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"` // primary repo tag
	Tags         []string          `json:"tags"`
	Architecture string            `json:"architecture"`
	OS           string            `json:"os"`
	Size         string            `json:"size"`    // human-readable
	Created      string            `json:"created"` // relative
	Author       string            `json:"author"`
	Labels       map[string]string `json:"labels"`
	ExposedPorts []string          `json:"exposed_ports"`
	Env          []string          `json:"env"`
	Entrypoint   []string          `json:"entrypoint"`
	Cmd          []string          `json:"cmd"`
}

// EngineSummary aggregates engine-wide information for the docker view
type EngineSummary struct {
	Version           string `json:"version"`
	APIVersion        string `json:"api_version"`
	Containers        int    `json:"containers"`
	ContainersRunning int    `json:"containers_running"`
	ContainersPaused  int    `json:"containers_paused"`
	ContainersStopped int    `json:"containers_stopped"`
	Images            int    `json:"images"`
	KernelVersion     string `json:"kernel_version"`
	OperatingSystem   string `json:"operating_system"`
	Architecture      string `json:"architecture"`
	NCPU              int    `json:"ncpu"`
	MemTotal          string `json:"mem_total"` // human-readable
	Name              string `json:"name"`
}

// PluginInfo is the metadata a plugin exposes after validation
type PluginInfo struct {
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version" yaml:"version"`
	Description string            `json:"description" yaml:"description"`
	Commands    map[string]string `json:"commands,omitempty" yaml:"commands,omitempty"`
	IndexKeys   map[string]string `json:"index_keys,omitempty" yaml:"index_keys,omitempty"`
	Permissions PluginPermissions `json:"permissions" yaml:"permissions"`
}

// PluginPermissions gates what a plugin may do and where it may run
type PluginPermissions struct {
	BasePermission           bool `json:"base_permission" yaml:"base_permission"`
	NeedRunningOnHostMachine bool `json:"need_running_on_host_machine" yaml:"need_running_on_host_machine"`
}

// HealthRecord is one health-loop observation
type HealthRecord struct {
	Healthy    bool      `json:"healthy"`
	CheckedAt  time.Time `json:"checked_at"`
	CPUPercent float64   `json:"cpu_percent"`
	MemPercent float64   `json:"mem_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
}
