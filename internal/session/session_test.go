package session

import (
	"testing"
	"time"
)

func newTestSession() *Session {
	limits := DefaultResourceLimits()
	limits.MaxConcurrentRequests = 2
	limits.MaxContextSizeMB = 1
	return New("s1", "u1", 5, limits)
}

func TestAddFrame_RejectsOverCapacity(t *testing.T) {
	s := newTestSession()
	s.Limits.MaxContextSizeMB = 0
	s.Limits.MaxContextSizeMB = 1 // 1MB cap
	big := make([]byte, 2*1024*1024)
	ok := s.AddFrame(ContextFrame{ID: "f1", Type: FrameCustom, Content: string(big)})
	if ok {
		t.Fatalf("expected AddFrame to reject a frame exceeding max_context_size_mb")
	}
}

func TestGetFrames_ExcludesExpired(t *testing.T) {
	s := newTestSession()
	s.AddFrame(ContextFrame{ID: "expired", Type: FrameCustom, Content: "x", CreatedAt: time.Now().Add(-time.Hour), TTL: time.Minute})
	s.AddFrame(ContextFrame{ID: "fresh", Type: FrameCustom, Content: "y"})

	frames := s.GetFrames(FrameFilter{})
	if len(frames) != 1 || frames[0].ID != "fresh" {
		t.Fatalf("expected only the fresh frame, got %+v", frames)
	}
}

func TestGetFrames_NewestFirst(t *testing.T) {
	s := newTestSession()
	s.AddFrame(ContextFrame{ID: "a", Type: FrameCustom, CreatedAt: time.Now().Add(-time.Minute)})
	s.AddFrame(ContextFrame{ID: "b", Type: FrameCustom, CreatedAt: time.Now()})

	frames := s.GetFrames(FrameFilter{})
	if len(frames) != 2 || frames[0].ID != "b" {
		t.Fatalf("expected newest-first ordering, got %+v", frames)
	}
}

func TestCanAcceptRequest_RespectsConcurrencyLimit(t *testing.T) {
	s := newTestSession()
	if !s.BeginRequest("r1") || !s.BeginRequest("r2") {
		t.Fatalf("expected first two requests to be admitted")
	}
	if s.CanAcceptRequest() {
		t.Fatalf("expected session at its concurrency limit to refuse further admission")
	}
	s.EndRequest("r1", 10*time.Millisecond, false)
	if !s.CanAcceptRequest() {
		t.Fatalf("expected capacity to free up after EndRequest")
	}
}

func TestCanAcceptRequest_FalseWhileMigrating(t *testing.T) {
	s := newTestSession()
	s.BeginMigration("node-2")
	if s.CanAcceptRequest() {
		t.Fatalf("expected migrating session to refuse admission")
	}
}

func TestSnapshotRestore_RoundTrips(t *testing.T) {
	s := newTestSession()
	s.AddFrame(ContextFrame{ID: "f1", Type: FrameResult, Content: "hello"})
	s.SetSharedContext("k", "v")
	s.SetPersonaContext("athena", "mood", "focused")
	s.UpdateWorkflow("w1", "running")
	s.EndRequest("phantom", 5*time.Millisecond, true)

	snap := s.Snapshot()
	restored := Restore(snap)

	if len(restored.frames) != len(s.frames) {
		t.Fatalf("frame count mismatch after restore")
	}
	if v, _ := restored.GetSharedContext("k"); v != "v" {
		t.Fatalf("shared_context did not survive restore")
	}
	if v, _ := restored.GetPersonaContext("athena", "mood"); v != "focused" {
		t.Fatalf("persona_contexts did not survive restore")
	}
	if restored.metrics != s.metrics {
		t.Fatalf("metrics mismatch: got %+v want %+v", restored.metrics, s.metrics)
	}
}

func TestWorkflowReap_RemovesStaleEntries(t *testing.T) {
	s := newTestSession()
	s.mu.Lock()
	s.workflowStates["stale"] = WorkflowState{State: "done", UpdatedAt: time.Now().Add(-3 * time.Hour)}
	s.workflowStates["fresh"] = WorkflowState{State: "running", UpdatedAt: time.Now()}
	s.mu.Unlock()

	s.Reap()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflowStates["stale"]; ok {
		t.Fatalf("expected stale workflow to be reaped")
	}
	if _, ok := s.workflowStates["fresh"]; !ok {
		t.Fatalf("expected fresh workflow to survive reap")
	}
}
