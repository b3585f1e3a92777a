package streaming

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/metamcp/metamcp/pkg/logger"
)

// healthInterval is the cadence of system_health events.
const healthInterval = 30 * time.Second

// ActiveCounter reports how many backends are currently running.
type ActiveCounter interface {
	ActiveCount() int
}

// HealthPublisher periodically samples host CPU and memory usage and
// publishes system_health events.
type HealthPublisher struct {
	manager *Manager
	counter ActiveCounter
}

// NewHealthPublisher creates a health publisher feeding the manager.
func NewHealthPublisher(manager *Manager, counter ActiveCounter) *HealthPublisher {
	return &HealthPublisher{manager: manager, counter: counter}
}

// Run publishes health snapshots until ctx is done.
func (h *HealthPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publishSnapshot(ctx)
		}
	}
}

func (h *HealthPublisher) publishSnapshot(ctx context.Context) {
	var cpuPercent float64
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		logger.Debugf("failed to sample cpu usage: %v", err)
	} else if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	var memPercent float64
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		logger.Debugf("failed to sample memory usage: %v", err)
	} else {
		memPercent = vm.UsedPercent
	}

	active := 0
	if h.counter != nil {
		active = h.counter.ActiveCount()
	}

	h.manager.Publish(NewSystemHealth(cpuPercent, memPercent, active))
}
