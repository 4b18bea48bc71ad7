// Package resource implements the Global Resource Monitor referenced by
// spec §4.9's admission check and §5's resource policy. It samples system
// memory/CPU via gopsutil/v4 (adopted from the stacklok-toolhive pack
// member; the teacher has no system-resource-sampling code of its own) on
// a cached interval so admission checks stay cheap.
package resource

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Thresholds are spec §4.9's configurable admission ceilings.
type Thresholds struct {
	MaxMemoryPercent float64
	MaxCPUPercent    float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MaxMemoryPercent: 80, MaxCPUPercent: 75}
}

// Snapshot is the monitor's last sample.
type Snapshot struct {
	MemoryPercent float64
	CPUPercent    float64
	SampledAt     time.Time
}

// Monitor caches system resource samples (spec §4.9's "refresh the Global
// Resource Monitor snapshot" maintenance step) so admission checks never
// block on a syscall.
type Monitor struct {
	mu         sync.RWMutex
	thresholds Thresholds
	last       Snapshot
}

func New(thresholds Thresholds) *Monitor {
	m := &Monitor{thresholds: thresholds}
	m.Refresh(context.Background())
	return m
}

// Refresh samples memory and CPU and stores the result.
func (m *Monitor) Refresh(ctx context.Context) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return err
	}
	cpuPct := 0.0
	if len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	m.mu.Lock()
	m.last = Snapshot{MemoryPercent: vm.UsedPercent, CPUPercent: cpuPct, SampledAt: time.Now()}
	m.mu.Unlock()
	return nil
}

// Snapshot returns the last-sampled reading.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// CanAdmit reports whether system pressure permits a new session (spec
// §4.9 admission: memory > 80% or CPU > 75% refuses by default).
func (m *Monitor) CanAdmit() bool {
	snap := m.Snapshot()
	m.mu.RLock()
	thresholds := m.thresholds
	m.mu.RUnlock()
	if snap.MemoryPercent > thresholds.MaxMemoryPercent {
		return false
	}
	if snap.CPUPercent > thresholds.MaxCPUPercent {
		return false
	}
	return true
}
