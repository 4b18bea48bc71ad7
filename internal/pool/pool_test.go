package pool

import (
	"testing"

	"github.com/apto-as/trinitas-core/internal/session"
)

func counterID() IDGenerator {
	n := 0
	return func() string {
		n++
		return "sess-" + string(rune('a'+n-1))
	}
}

func TestNew_PreFillsToMinSize(t *testing.T) {
	p := New(Config{MinSize: 3, MaxSize: 10}, counterID())
	if got := p.IdleCount(); got != 3 {
		t.Fatalf("IdleCount() = %d, want 3", got)
	}
}

func TestAcquire_ReusesIdleInstance(t *testing.T) {
	p := New(Config{MinSize: 1, MaxSize: 10}, counterID())
	before := p.IdleCount()

	s := p.Acquire("user-1", 5, session.DefaultResourceLimits())
	if s == nil {
		t.Fatalf("expected a session")
	}
	if p.IdleCount() != before-1 {
		t.Fatalf("expected idle count to drop by one after Acquire")
	}
	if s.UserID != "user-1" {
		t.Fatalf("UserID = %q, want user-1", s.UserID)
	}
}

func TestRelease_ReturnsToPoolUnderMax(t *testing.T) {
	p := New(Config{MinSize: 0, MaxSize: 2}, counterID())
	s := p.Acquire("u", 1, session.DefaultResourceLimits())
	p.Release(s)
	if got := p.IdleCount(); got != 1 {
		t.Fatalf("IdleCount() = %d, want 1", got)
	}
}

func TestRelease_DiscardsOverMax(t *testing.T) {
	p := New(Config{MinSize: 0, MaxSize: 0}, counterID())
	s := p.Acquire("u", 1, session.DefaultResourceLimits())
	p.Release(s)
	if got := p.IdleCount(); got != 0 {
		t.Fatalf("IdleCount() = %d, want 0 (max_size=0 discards on release)", got)
	}
}

func TestTopUp_RefillsToMinSize(t *testing.T) {
	p := New(Config{MinSize: 2, MaxSize: 10}, counterID())
	p.Acquire("u1", 1, session.DefaultResourceLimits())
	p.Acquire("u2", 1, session.DefaultResourceLimits())
	if got := p.IdleCount(); got != 0 {
		t.Fatalf("IdleCount() = %d, want 0 before top-up", got)
	}
	p.TopUp()
	if got := p.IdleCount(); got != 2 {
		t.Fatalf("IdleCount() = %d, want 2 after top-up", got)
	}
}
