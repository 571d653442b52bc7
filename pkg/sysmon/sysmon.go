package sysmon

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// LoadInfo is the scheduler pressure view: load averages plus the
// process-state counters behind them.
type LoadInfo struct {
	Load1        float64
	Load5        float64
	Load15       float64
	CPUCount     int
	ProcsTotal   int
	ProcsRunning int
	ProcsBlocked int
}

// MemoryInfo reports physical memory usage in bytes.
type MemoryInfo struct {
	Total     uint64
	Available uint64
	Used      uint64
	Percent   float64
	Free      uint64
	Active    uint64
	Inactive  uint64
	Buffers   uint64
	Cached    uint64
	Shared    uint64
}

// SwapInfo reports swap usage in bytes.
type SwapInfo struct {
	Total   uint64
	Used    uint64
	Free    uint64
	Percent float64
	Sin     uint64
	Sout    uint64
}

// DiskUsage reports one mounted filesystem.
type DiskUsage struct {
	Device     string
	MountPoint string
	FSType     string
	Total      uint64
	Used       uint64
	Free       uint64
	Percent    float64
}

// Temperature is one hardware sensor reading in degrees Celsius.
type Temperature struct {
	SensorKey string
	Current   float64
	High      float64
	Critical  float64
}

// InterfaceIO reports cumulative traffic counters for one interface.
type InterfaceIO struct {
	Name        string
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
	ErrIn       uint64
	ErrOut      uint64
	DropIn      uint64
	DropOut     uint64
}

// HostInfo identifies the machine the agent runs on.
type HostInfo struct {
	Hostname      string
	OS            string
	Platform      string
	PlatformVer   string
	KernelVersion string
	KernelArch    string
}

// SelfUsage is the agent's own resource footprint, sampled by the
// health loop.
type SelfUsage struct {
	CPUPercent    float64
	RSSBytes      uint64
	MemoryPercent float64
}

// Provider is the host metrics surface the handlers depend on. The
// production implementation is Host; tests substitute a stub.
type Provider interface {
	LoadAverage() (*LoadInfo, error)
	Memory() (*MemoryInfo, error)
	Swap() (*SwapInfo, error)
	Disks() ([]DiskUsage, error)
	Sensors() ([]Temperature, error)
	Uptime() (time.Duration, error)
	Network() ([]InterfaceIO, error)
	Host() (*HostInfo, error)
	Self() (*SelfUsage, error)
}

// Host reads metrics from the local machine through gopsutil.
type Host struct{}

// NewHost returns the production metrics provider.
func NewHost() *Host {
	return &Host{}
}

func (h *Host) LoadAverage() (*LoadInfo, error) {
	avg, err := load.Avg()
	if err != nil {
		return nil, fmt.Errorf("failed to read load average: %w", err)
	}
	info := &LoadInfo{
		Load1:  round2(avg.Load1),
		Load5:  round2(avg.Load5),
		Load15: round2(avg.Load15),
	}
	if count, err := cpu.Counts(true); err == nil {
		info.CPUCount = count
	}
	// process-state counters are linux-only; the load averages alone
	// are still worth showing elsewhere
	if misc, err := load.Misc(); err == nil {
		info.ProcsTotal = misc.ProcsTotal
		info.ProcsRunning = misc.ProcsRunning
		info.ProcsBlocked = misc.ProcsBlocked
	}
	return info, nil
}

func (h *Host) Memory() (*MemoryInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory stats: %w", err)
	}
	return &MemoryInfo{
		Total:     vm.Total,
		Available: vm.Available,
		Used:      vm.Used,
		Percent:   round2(vm.UsedPercent),
		Free:      vm.Free,
		Active:    vm.Active,
		Inactive:  vm.Inactive,
		Buffers:   vm.Buffers,
		Cached:    vm.Cached,
		Shared:    vm.Shared,
	}, nil
}

func (h *Host) Swap() (*SwapInfo, error) {
	sw, err := mem.SwapMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to read swap stats: %w", err)
	}
	return &SwapInfo{
		Total:   sw.Total,
		Used:    sw.Used,
		Free:    sw.Free,
		Percent: round2(sw.UsedPercent),
		Sin:     sw.Sin,
		Sout:    sw.Sout,
	}, nil
}

func (h *Host) Disks() ([]DiskUsage, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	usages := make([]DiskUsage, 0, len(parts))
	for _, p := range parts {
		u, err := disk.Usage(p.Mountpoint)
		if err != nil {
			// virtual or vanished mounts are not worth failing the view
			continue
		}
		usages = append(usages, DiskUsage{
			Device:     p.Device,
			MountPoint: p.Mountpoint,
			FSType:     p.Fstype,
			Total:      u.Total,
			Used:       u.Used,
			Free:       u.Free,
			Percent:    round2(u.UsedPercent),
		})
	}
	return usages, nil
}

func (h *Host) Sensors() ([]Temperature, error) {
	readings, err := host.SensorsTemperatures()
	if err != nil && len(readings) == 0 {
		return nil, fmt.Errorf("failed to read sensors: %w", err)
	}
	temps := make([]Temperature, 0, len(readings))
	for _, r := range readings {
		temps = append(temps, Temperature{
			SensorKey: r.SensorKey,
			Current:   round2(r.Temperature),
			High:      round2(r.High),
			Critical:  round2(r.Critical),
		})
	}
	return temps, nil
}

func (h *Host) Uptime() (time.Duration, error) {
	secs, err := host.Uptime()
	if err != nil {
		return 0, fmt.Errorf("failed to read uptime: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}

func (h *Host) Network() ([]InterfaceIO, error) {
	counters, err := psnet.IOCounters(true)
	if err != nil {
		return nil, fmt.Errorf("failed to read network counters: %w", err)
	}
	ifaces := make([]InterfaceIO, 0, len(counters))
	for _, c := range counters {
		if c.Name == "lo" {
			continue
		}
		ifaces = append(ifaces, InterfaceIO{
			Name:        c.Name,
			BytesSent:   c.BytesSent,
			BytesRecv:   c.BytesRecv,
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
			ErrIn:       c.Errin,
			ErrOut:      c.Errout,
			DropIn:      c.Dropin,
			DropOut:     c.Dropout,
		})
	}
	return ifaces, nil
}

func (h *Host) Host() (*HostInfo, error) {
	info, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read host info: %w", err)
	}
	return &HostInfo{
		Hostname:      info.Hostname,
		OS:            info.OS,
		Platform:      info.Platform,
		PlatformVer:   info.PlatformVersion,
		KernelVersion: info.KernelVersion,
		KernelArch:    info.KernelArch,
	}, nil
}

func (h *Host) Self() (*SelfUsage, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open own process: %w", err)
	}
	usage := &SelfUsage{}
	if pct, err := p.CPUPercent(); err == nil {
		usage.CPUPercent = round2(pct)
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		usage.RSSBytes = mi.RSS
	}
	if pct, err := p.MemoryPercent(); err == nil {
		usage.MemoryPercent = round2(float64(pct))
	}
	return usage, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
