package resource

import "testing"

func TestCanAdmit_RefusesOverMemoryThreshold(t *testing.T) {
	m := &Monitor{thresholds: Thresholds{MaxMemoryPercent: 80, MaxCPUPercent: 75}}
	m.last = Snapshot{MemoryPercent: 95, CPUPercent: 10}
	if m.CanAdmit() {
		t.Fatalf("expected CanAdmit to refuse at 95%% memory")
	}
}

func TestCanAdmit_RefusesOverCPUThreshold(t *testing.T) {
	m := &Monitor{thresholds: Thresholds{MaxMemoryPercent: 80, MaxCPUPercent: 75}}
	m.last = Snapshot{MemoryPercent: 10, CPUPercent: 90}
	if m.CanAdmit() {
		t.Fatalf("expected CanAdmit to refuse at 90%% CPU")
	}
}

func TestCanAdmit_AllowsUnderThresholds(t *testing.T) {
	m := &Monitor{thresholds: Thresholds{MaxMemoryPercent: 80, MaxCPUPercent: 75}}
	m.last = Snapshot{MemoryPercent: 40, CPUPercent: 20}
	if !m.CanAdmit() {
		t.Fatalf("expected CanAdmit to allow under both thresholds")
	}
}
