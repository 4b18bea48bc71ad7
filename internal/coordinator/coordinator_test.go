package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/apto-as/trinitas-core/internal/persona"
	"github.com/apto-as/trinitas-core/internal/task"
)

type stubExecutor struct {
	byPersona map[string]func(ctx context.Context, t *task.Task) (*task.ExecutionResult, error)
}

func (s *stubExecutor) Execute(ctx context.Context, p persona.Persona, t *task.Task) (*task.ExecutionResult, error) {
	fn, ok := s.byPersona[p.ID]
	if !ok {
		return &task.ExecutionResult{TaskID: t.ID, ExecutorID: p.ID, Payload: "default"}, nil
	}
	return fn(ctx, t)
}

func okResult(id string, payload any) func(context.Context, *task.Task) (*task.ExecutionResult, error) {
	return func(ctx context.Context, t *task.Task) (*task.ExecutionResult, error) {
		return &task.ExecutionResult{TaskID: t.ID, ExecutorID: id, Payload: payload}, nil
	}
}

func failResult(errMsg string) func(context.Context, *task.Task) (*task.ExecutionResult, error) {
	return func(ctx context.Context, t *task.Task) (*task.ExecutionResult, error) {
		return nil, errors.New(errMsg)
	}
}

func TestSequential_PassesPreviousResult(t *testing.T) {
	var seenPrevious any
	exec := &stubExecutor{byPersona: map[string]func(context.Context, *task.Task) (*task.ExecutionResult, error){
		"athena": okResult("athena", "first"),
		"artemis": func(ctx context.Context, tk *task.Task) (*task.ExecutionResult, error) {
			seenPrevious = tk.Context["previous_result"]
			return &task.ExecutionResult{TaskID: tk.ID, ExecutorID: "artemis", Payload: "second"}, nil
		},
	}}

	c := New(exec)
	personas := []persona.Persona{{ID: "athena"}, {ID: "artemis"}}
	outcome, err := c.Run(context.Background(), &task.Task{ID: "t1"}, personas, Sequential)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenPrevious != "first" {
		t.Fatalf("previous_result = %v, want %q", seenPrevious, "first")
	}
	if outcome.FinalPayload != "second" {
		t.Fatalf("FinalPayload = %v, want %q", outcome.FinalPayload, "second")
	}
}

func TestSequential_AbortsOnError(t *testing.T) {
	exec := &stubExecutor{byPersona: map[string]func(context.Context, *task.Task) (*task.ExecutionResult, error){
		"athena":  okResult("athena", "first"),
		"artemis": failResult("boom"),
		"hestia":  okResult("hestia", "unreachable"),
	}}

	c := New(exec)
	personas := []persona.Persona{{ID: "athena"}, {ID: "artemis"}, {ID: "hestia"}}
	outcome, err := c.Run(context.Background(), &task.Task{ID: "t1"}, personas, Sequential)
	if err == nil {
		t.Fatalf("expected error from sequential abort")
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("expected accumulated prefix of 2 results, got %d", len(outcome.Results))
	}
}

func TestParallel_FailurePersonaMarkedFailed(t *testing.T) {
	exec := &stubExecutor{byPersona: map[string]func(context.Context, *task.Task) (*task.ExecutionResult, error){
		"athena":  okResult("athena", "a"),
		"artemis": failResult("boom"),
	}}

	c := New(exec)
	personas := []persona.Persona{{ID: "athena"}, {ID: "artemis"}}
	outcome, err := c.Run(context.Background(), &task.Task{ID: "t1"}, personas, Parallel)
	if err != nil {
		t.Fatalf("parallel mode should not abort on persona error: %v", err)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(outcome.Results))
	}
	var sawFailed bool
	for _, r := range outcome.Results {
		if r.PersonaID == "artemis" && r.Failed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("expected artemis marked failed")
	}
}

func TestHierarchical_LeaderFailureAborts(t *testing.T) {
	exec := &stubExecutor{byPersona: map[string]func(context.Context, *task.Task) (*task.ExecutionResult, error){
		"athena":  failResult("leader down"),
		"artemis": okResult("artemis", "ok"),
	}}

	c := New(exec)
	personas := []persona.Persona{{ID: "athena", IsLeader: true}, {ID: "artemis"}}
	_, err := c.Run(context.Background(), &task.Task{ID: "t1"}, personas, Hierarchical)
	if err == nil {
		t.Fatalf("expected abort when leader fails")
	}
}

func TestHierarchical_SubordinateFailureContinues(t *testing.T) {
	exec := &stubExecutor{byPersona: map[string]func(context.Context, *task.Task) (*task.ExecutionResult, error){
		"athena":  okResult("athena", "guidance"),
		"artemis": failResult("subordinate down"),
	}}

	c := New(exec)
	personas := []persona.Persona{{ID: "athena", IsLeader: true}, {ID: "artemis"}}
	outcome, err := c.Run(context.Background(), &task.Task{ID: "t1"}, personas, Hierarchical)
	if err != nil {
		t.Fatalf("unexpected abort on subordinate failure: %v", err)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("expected both leader and subordinate results, got %d", len(outcome.Results))
	}
}

func TestConsensus_HighAlignmentApproves(t *testing.T) {
	exec := &stubExecutor{byPersona: map[string]func(context.Context, *task.Task) (*task.ExecutionResult, error){
		"athena":  okResult("athena", map[string]any{"risk": 0.2}),
		"artemis": okResult("artemis", map[string]any{"risk": 0.25}),
	}}

	c := New(exec)
	personas := []persona.Persona{{ID: "athena"}, {ID: "artemis"}}
	outcome, err := c.Run(context.Background(), &task.Task{ID: "t1"}, personas, Consensus)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Verdict != Approved {
		t.Fatalf("Verdict = %v, want APPROVED (alignment=%v)", outcome.Verdict, outcome.Alignment)
	}
}

func TestConsensus_LowAlignmentRequiresMediation(t *testing.T) {
	exec := &stubExecutor{byPersona: map[string]func(context.Context, *task.Task) (*task.ExecutionResult, error){
		"athena":  okResult("athena", map[string]any{"risk": 0.1, "goals": []string{"ship"}, "top_requirement": "speed"}),
		"artemis": okResult("artemis", map[string]any{"risk": 0.9, "goals": []string{"ship"}, "top_requirement": "safety"}),
	}}

	c := New(exec)
	personas := []persona.Persona{{ID: "athena"}, {ID: "artemis"}}
	outcome, err := c.Run(context.Background(), &task.Task{ID: "t1"}, personas, Consensus)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Verdict != MediationRequired {
		t.Fatalf("Verdict = %v, want MEDIATION_REQUIRED (alignment=%v)", outcome.Verdict, outcome.Alignment)
	}
	if outcome.Compromise == nil || len(outcome.Compromise.SharedGoals) != 1 {
		t.Fatalf("expected one shared goal in compromise, got %+v", outcome.Compromise)
	}
}
