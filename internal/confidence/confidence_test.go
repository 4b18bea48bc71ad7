package confidence

import (
	"testing"

	"github.com/apto-as/trinitas-core/internal/task"
)

func TestCompute_L1WithToolsAndSubstantivePayload(t *testing.T) {
	got := Compute(task.L1, true, 150)
	want := 1.0 // 0.5 + 0.4 + 0.1 + 0.1 = 1.1, clamped to 1
	if got != want {
		t.Fatalf("Compute() = %v, want %v", got, want)
	}
}

func TestCompute_ClampsAtOne(t *testing.T) {
	got := Compute(task.L2, true, 1000)
	if got != 1.0 {
		t.Fatalf("Compute() = %v, want 1.0", got)
	}
}

func TestCompute_L5BaseOnly(t *testing.T) {
	got := Compute(task.L5, false, 0)
	if got != 0.5 {
		t.Fatalf("Compute() = %v, want 0.5", got)
	}
}

func TestCompute_L3Partial(t *testing.T) {
	got := Compute(task.L3, false, 0)
	want := 0.5 + 0.2
	if got != want {
		t.Fatalf("Compute() = %v, want %v", got, want)
	}
}
