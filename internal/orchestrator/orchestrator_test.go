package orchestrator

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	heikeErrors "github.com/apto-as/trinitas-core/internal/errors"
	"github.com/apto-as/trinitas-core/internal/pool"
	"github.com/apto-as/trinitas-core/internal/session"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "trinitas-handoff-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	handoff, err := NewHandoffStore(dir)
	if err != nil {
		t.Fatalf("NewHandoffStore: %v", err)
	}

	n := 0
	p := pool.New(pool.Config{MinSize: 0, MaxSize: 4}, func() string {
		n++
		return "sess-" + string(rune('a'+n-1))
	})

	cfg := DefaultConfig()
	cfg.DrainTimeout = 100 * time.Millisecond
	o := New(cfg, p, nil, handoff)
	return o, func() { os.RemoveAll(dir) }
}

func TestCreateSession_RegistersInActiveMap(t *testing.T) {
	o, cleanup := newTestOrchestrator(t)
	defer cleanup()

	s, err := o.CreateSession("u1", 5, session.DefaultResourceLimits())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	ids := o.ListSessions()
	if len(ids) != 1 || ids[0] != s.ID {
		t.Fatalf("expected session registered, got %v", ids)
	}
}

func TestExecuteRequest_SessionNotFound(t *testing.T) {
	o, cleanup := newTestOrchestrator(t)
	defer cleanup()

	_, err := o.ExecuteRequest(context.Background(), "missing", func(ctx context.Context, s *session.Session) (any, error) {
		return nil, nil
	})
	if !errors.Is(err, heikeErrors.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestExecuteRequest_SessionBusyAtConcurrencyLimit(t *testing.T) {
	o, cleanup := newTestOrchestrator(t)
	defer cleanup()

	limits := session.DefaultResourceLimits()
	limits.MaxConcurrentRequests = 1
	s, _ := o.CreateSession("u1", 1, limits)

	blocker := make(chan struct{})
	done := make(chan struct{})
	go func() {
		o.ExecuteRequest(context.Background(), s.ID, func(ctx context.Context, s *session.Session) (any, error) {
			<-blocker
			return nil, nil
		})
		close(done)
	}()

	// give the goroutine a chance to admit its request
	time.Sleep(20 * time.Millisecond)

	_, err := o.ExecuteRequest(context.Background(), s.ID, func(ctx context.Context, s *session.Session) (any, error) {
		return nil, nil
	})
	if !errors.Is(err, heikeErrors.ErrSessionBusy) {
		t.Fatalf("err = %v, want ErrSessionBusy", err)
	}

	close(blocker)
	<-done
}

func TestMigrate_RemovesSessionAndStoresHandoff(t *testing.T) {
	o, cleanup := newTestOrchestrator(t)
	defer cleanup()

	s, _ := o.CreateSession("u1", 5, session.DefaultResourceLimits())
	s.SetSharedContext("k", "v")

	if err := o.Migrate(context.Background(), s.ID, "node-2"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(o.ListSessions()) != 0 {
		t.Fatalf("expected source orchestrator to drop the session after migration")
	}

	restored, err := o.AdoptMigratedSession(context.Background(), s.ID, "node-2")
	if err != nil {
		t.Fatalf("AdoptMigratedSession: %v", err)
	}
	if v, _ := restored.GetSharedContext("k"); v != "v" {
		t.Fatalf("expected shared_context to survive migration")
	}
}

func TestSelectInstance_PriorityAwarePicksLeastLoadForHighPriority(t *testing.T) {
	peers := []PeerInstance{
		{ID: "a", Connections: 1, Load: 0.9},
		{ID: "b", Connections: 5, Load: 0.1},
	}
	got := SelectInstance(peers, PriorityAware, SelectionConfig{Priority: HighPriorityThreshold})
	if got != "b" {
		t.Fatalf("SelectInstance() = %q, want b (least load)", got)
	}
}

func TestSelectInstance_PriorityAwarePicksLeastConnectionsForLowPriority(t *testing.T) {
	peers := []PeerInstance{
		{ID: "a", Connections: 1, Load: 0.9},
		{ID: "b", Connections: 5, Load: 0.1},
	}
	got := SelectInstance(peers, PriorityAware, SelectionConfig{Priority: 2})
	if got != "a" {
		t.Fatalf("SelectInstance() = %q, want a (least connections)", got)
	}
}
