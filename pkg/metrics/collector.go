package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/orenlab/pytmbot-sub000/pkg/sysmon"
)

const collectInterval = 15 * time.Second

// Sources are the read-only probes the collector samples. Any nil
// source is skipped, so partial wiring is fine in tests.
type Sources struct {
	ActiveSessions func() int
	LoadedPlugins  func() int
	SelfUsage      func() (*sysmon.SelfUsage, error)
	EnginePing     func(context.Context) error
}

// Collector periodically refreshes the gauges that describe current
// state rather than counted events.
type Collector struct {
	src      Sources
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new gauge collector
func NewCollector(src Sources) *Collector {
	return &Collector{
		src:    src,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(collectInterval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect() {
	if c.src.ActiveSessions != nil {
		SessionsActive.Set(float64(c.src.ActiveSessions()))
	}

	if c.src.LoadedPlugins != nil {
		PluginsLoaded.Set(float64(c.src.LoadedPlugins()))
	}

	if c.src.SelfUsage != nil {
		if usage, err := c.src.SelfUsage(); err == nil {
			SelfCPUPercent.Set(usage.CPUPercent)
			SelfMemoryPercent.Set(usage.MemoryPercent)
			SelfRSSBytes.Set(float64(usage.RSSBytes))
		}
	}

	if c.src.EnginePing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.src.EnginePing(ctx); err != nil {
			EngineUp.Set(0)
		} else {
			EngineUp.Set(1)
		}
	}
}
