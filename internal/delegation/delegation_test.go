package delegation

import (
	"testing"
	"time"

	"github.com/apto-as/trinitas-core/internal/backend"
	"github.com/apto-as/trinitas-core/internal/mode"
	"github.com/apto-as/trinitas-core/internal/task"
)

func fixedTime() time.Time {
	return time.Date(2026, time.July, 30, 12, 0, 0, 0, time.UTC)
}

func TestDecide_HeavyL5Decomposes(t *testing.T) {
	tk := &task.Task{Description: "architecture review", Complexity: task.L5, EstimatedTokens: 150000}
	plan := Decide(tk, 0.1)
	if plan.Decomposition == nil {
		t.Fatalf("expected decomposition for heavy L5 task")
	}
	if plan.Decomposition.Leader != backend.MAIN {
		t.Fatalf("leader = %v, want MAIN", plan.Decomposition.Leader)
	}
	if len(plan.Decomposition.LocalPhase) != 1 || len(plan.Decomposition.MainPhase) != 1 {
		t.Fatalf("expected one local_phase and one main_phase sub-task")
	}
}

func TestDecide_L5NotHeavySingle(t *testing.T) {
	tk := &task.Task{Description: "architecture review", Complexity: task.L5, EstimatedTokens: 500}
	plan := Decide(tk, 0.1)
	if plan.Decomposition != nil {
		t.Fatalf("expected single execution for non-heavy L5 task")
	}
	if plan.PreferredBackend != backend.MAIN {
		t.Fatalf("PreferredBackend = %v, want MAIN", plan.PreferredBackend)
	}
}

func TestDecide_L3UnderPressureDecomposesWithLocalLeader(t *testing.T) {
	tk := &task.Task{Description: "debug the failure", Complexity: task.L3}
	plan := Decide(tk, 0.9)
	if plan.Decomposition == nil {
		t.Fatalf("expected decomposition for L3 under pressure")
	}
	if plan.Decomposition.Leader != backend.LOCAL {
		t.Fatalf("leader = %v, want LOCAL", plan.Decomposition.Leader)
	}
}

func TestDecide_L3NoPressureSingle(t *testing.T) {
	tk := &task.Task{Description: "debug the failure", Complexity: task.L3}
	plan := Decide(tk, 0.1)
	if plan.Decomposition != nil {
		t.Fatalf("expected single execution for L3 without pressure")
	}
}

func TestDecide_L1ForcedLocalOnHeavyTokens(t *testing.T) {
	tk := &task.Task{Description: "list files", Complexity: task.L1, EstimatedTokens: 30000}
	plan := Decide(tk, 0.1)
	if plan.PreferredBackend != backend.LOCAL {
		t.Fatalf("PreferredBackend = %v, want LOCAL", plan.PreferredBackend)
	}
}

func TestDecide_L1ForcedLocalOnManyTools(t *testing.T) {
	tk := &task.Task{Description: "list files", Complexity: task.L1, RequiredTools: []string{"a", "b", "c", "d"}}
	plan := Decide(tk, 0.1)
	if plan.PreferredBackend != backend.LOCAL {
		t.Fatalf("PreferredBackend = %v, want LOCAL", plan.PreferredBackend)
	}
}

func TestDecide_L1DefaultAffinity(t *testing.T) {
	tk := &task.Task{Description: "list files", Complexity: task.L1}
	plan := Decide(tk, 0.1)
	if plan.PreferredBackend != backend.LOCAL {
		t.Fatalf("PreferredBackend = %v, want LOCAL", plan.PreferredBackend)
	}
}

func TestDecideWithMode_FullLocalForcesLocal(t *testing.T) {
	tk := &task.Task{Description: "architecture review", Complexity: task.L5}
	plan := DecideWithMode(tk, 0.1, mode.FullLocal, mode.ClassCore)
	if plan.SingleTask.Hints.ForceExecutor != string(backend.LOCAL) {
		t.Fatalf("ForceExecutor = %q, want LOCAL", plan.SingleTask.Hints.ForceExecutor)
	}
}

func TestDecideWithMode_ClaudeOnlyForcesMain(t *testing.T) {
	tk := &task.Task{Description: "list files", Complexity: task.L1}
	plan := DecideWithMode(tk, 0.1, mode.ClaudeOnly, mode.ClassSupport)
	if plan.SingleTask.Hints.ForceExecutor != string(backend.MAIN) {
		t.Fatalf("ForceExecutor = %q, want MAIN", plan.SingleTask.Hints.ForceExecutor)
	}
}

func TestDecideWithMode_HybridSplitsByPersonaClass(t *testing.T) {
	tk := &task.Task{Description: "list files", Complexity: task.L1}

	core := DecideWithMode(tk, 0.1, mode.Hybrid, mode.ClassCore)
	if core.SingleTask.Hints.ForceExecutor != string(backend.MAIN) {
		t.Fatalf("core persona ForceExecutor = %q, want MAIN", core.SingleTask.Hints.ForceExecutor)
	}

	support := DecideWithMode(tk, 0.1, mode.Hybrid, mode.ClassSupport)
	if support.SingleTask.Hints.ForceExecutor != "" {
		t.Fatalf("support persona should not be forced, got ForceExecutor=%q", support.SingleTask.Hints.ForceExecutor)
	}
	if support.PreferredBackend != backend.LOCAL {
		t.Fatalf("support persona PreferredBackend = %v, want LOCAL", support.PreferredBackend)
	}
}

func TestDecideWithMode_AutoUsesDecisionTable(t *testing.T) {
	tk := &task.Task{Description: "architecture review", Complexity: task.L5, EstimatedTokens: 150000}
	plan := DecideWithMode(tk, 0.1, mode.Auto, mode.ClassCore)
	if plan.Decomposition == nil {
		t.Fatalf("expected AUTO mode to defer to the decision table")
	}
}

func TestSubTask_InheritsDeadlineAndPriority(t *testing.T) {
	parent := &task.Task{
		Description: "architecture review",
		Complexity:  task.L5,
		Priority:    7,
		Context:     map[string]any{"deadline": fixedTime()},
	}
	sub := subTask(parent, "Gather: architecture review")
	if sub.Priority != 7 {
		t.Fatalf("Priority = %d, want 7", sub.Priority)
	}
	if _, ok := sub.Deadline(); !ok {
		t.Fatalf("expected sub-task to inherit deadline")
	}
}
