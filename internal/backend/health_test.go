package backend

import "testing"

func TestHealthRegistry_DefaultsHealthy(t *testing.T) {
	r := NewHealthRegistry()
	if !r.IsHealthy(MAIN) {
		t.Fatalf("a never-probed backend should default healthy")
	}
}

func TestHealthRegistry_UnhealthyAfterThreeFailures(t *testing.T) {
	r := NewHealthRegistry()
	r.MarkFailure(LOCAL)
	r.MarkFailure(LOCAL)
	if !r.IsHealthy(LOCAL) {
		t.Fatalf("two failures should not flip healthy")
	}
	r.MarkFailure(LOCAL)
	if r.IsHealthy(LOCAL) {
		t.Fatalf("three consecutive failures should flip unhealthy")
	}
}

func TestHealthRegistry_SuccessResetsFailureCount(t *testing.T) {
	r := NewHealthRegistry()
	r.MarkFailure(HeadlessA)
	r.MarkFailure(HeadlessA)
	r.MarkFailure(HeadlessA)
	if r.IsHealthy(HeadlessA) {
		t.Fatalf("expected unhealthy before reset")
	}

	r.MarkSuccess(HeadlessA, 0)
	if !r.IsHealthy(HeadlessA) {
		t.Fatalf("a success should reset to healthy")
	}
	if got := r.Get(HeadlessA).ConsecutiveFailures; got != 0 {
		t.Fatalf("ConsecutiveFailures = %d, want 0", got)
	}
}

func TestHealthRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewHealthRegistry()
	r.MarkFailure(MAIN)
	snap := r.Snapshot()
	snap[MAIN] = HealthRecord{BackendID: MAIN, Healthy: false, ConsecutiveFailures: 99}

	if got := r.Get(MAIN).ConsecutiveFailures; got != 1 {
		t.Fatalf("mutating a snapshot leaked into the registry: ConsecutiveFailures = %d, want 1", got)
	}
}
