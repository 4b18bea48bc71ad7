// Package delegation implements the Delegation Engine (C5, spec §4.5): it
// combines the Classifier and the current MAIN-pressure signal to decide
// between a single routed execution and a decomposed plan of sub-tasks. It
// never executes anything itself; that is the Collaboration Coordinator's
// job.
package delegation

import (
	"github.com/apto-as/trinitas-core/internal/backend"
	"github.com/apto-as/trinitas-core/internal/classifier"
	"github.com/apto-as/trinitas-core/internal/mode"
	"github.com/apto-as/trinitas-core/internal/task"
)

// HeavyDecomposeThreshold is spec §4.5's estimated_tokens threshold for
// "heavy+complex" L4/L5 decomposition.
const HeavyDecomposeThreshold = 100000

// PressureThreshold gates L3 and L1/L2 decomposition/forcing decisions.
const PressureThreshold = 0.5

// LocalForceThreshold mirrors the router's LOCAL_HEAVY_THRESHOLD for the
// L1/L2 "too many tokens" forcing condition.
const LocalForceThreshold = 20000

// RequiredToolsForceThreshold is spec §4.5's |required_tools| > 3 condition.
const RequiredToolsForceThreshold = 3

// DecompositionPlan is spec §4.5's decomposition contract: an ordered
// local_phase and an ordered main_phase, plus which side leads.
type DecompositionPlan struct {
	LocalPhase []*task.Task
	MainPhase  []*task.Task
	Leader     backend.ID
}

// Plan is the Engine's output: either a single task to route, or a
// decomposition for the Coordinator to unfold.
type Plan struct {
	SingleTask       *task.Task
	PreferredBackend backend.ID
	Decomposition    *DecompositionPlan
}

// DecideWithMode consults the process-wide Mode override (spec §6) before
// falling back to the AUTO decision table. personaClass distinguishes
// HYBRID's "core" vs "support" routing; it is ignored outside HYBRID.
func DecideWithMode(t *task.Task, pressure float64, m mode.Mode, personaClass mode.PersonaClass) *Plan {
	switch m {
	case mode.FullLocal:
		forced := *t
		forced.Hints.ForceExecutor = string(backend.LOCAL)
		return &Plan{SingleTask: &forced, PreferredBackend: backend.LOCAL}

	case mode.ClaudeOnly:
		forced := *t
		forced.Hints.ForceExecutor = string(backend.MAIN)
		return &Plan{SingleTask: &forced, PreferredBackend: backend.MAIN}

	case mode.Hybrid:
		if personaClass == mode.ClassCore {
			forced := *t
			forced.Hints.ForceExecutor = string(backend.MAIN)
			return &Plan{SingleTask: &forced, PreferredBackend: backend.MAIN}
		}
		return &Plan{SingleTask: t, PreferredBackend: backend.LOCAL}

	default: // AUTO
		return Decide(t, pressure)
	}
}

// Decide applies spec §4.5's decision table. pressure is MAIN's current
// 0..1 pressure signal (SPEC_FULL §C; derived by backend.PressureTracker).
func Decide(t *task.Task, pressure float64) *Plan {
	level := classifier.Classify(t)

	switch level {
	case task.L4, task.L5:
		if t.EstimatedTokens > HeavyDecomposeThreshold {
			return &Plan{Decomposition: decomposeHeavy(t)}
		}
		return &Plan{SingleTask: t, PreferredBackend: backend.MAIN}

	case task.L3:
		if pressure > PressureThreshold {
			return &Plan{Decomposition: decomposeUnderPressure(t)}
		}
		return &Plan{SingleTask: t, PreferredBackend: backend.MAIN}

	default: // L1, L2
		if t.EstimatedTokens > LocalForceThreshold ||
			len(t.RequiredTools) > RequiredToolsForceThreshold ||
			pressure > PressureThreshold {
			return &Plan{SingleTask: t, PreferredBackend: backend.LOCAL}
		}
		return &Plan{SingleTask: t, PreferredBackend: backend.ID(classifier.RoutingAffinity(level))}
	}
}

// decomposeHeavy builds the "LOCAL gathers and organises; MAIN reasons and
// synthesises; MAIN leads" plan for L4/L5 tasks over HeavyDecomposeThreshold.
func decomposeHeavy(parent *task.Task) *DecompositionPlan {
	gather := subTask(parent, "Gather: "+parent.Description)
	synth := subTask(parent, "Reason: "+parent.Description)
	return &DecompositionPlan{
		LocalPhase: []*task.Task{gather},
		MainPhase:  []*task.Task{synth},
		Leader:     backend.MAIN,
	}
}

// decomposeUnderPressure builds the "LOCAL collects facts; MAIN reasons on
// those facts" plan for L3 tasks when MAIN pressure exceeds the threshold.
// LOCAL leads the data-gathering phase.
func decomposeUnderPressure(parent *task.Task) *DecompositionPlan {
	collect := subTask(parent, "Gather: "+parent.Description)
	reason := subTask(parent, "Reason: "+parent.Description)
	return &DecompositionPlan{
		LocalPhase: []*task.Task{collect},
		MainPhase:  []*task.Task{reason},
		Leader:     backend.LOCAL,
	}
}

// subTask inherits deadline and priority from parent (spec §4.5). Its
// estimated_tokens is the parent's, unchanged, so the ordinary per-backend
// envelope check (backend.envelopeCheck, run by every Client.Execute) still
// applies in full when the sub-task is routed - the Coordinator never
// bypasses it for decomposed work.
func subTask(parent *task.Task, description string) *task.Task {
	sub := &task.Task{
		ID:              task.NewID(),
		Kind:            parent.Kind,
		Description:     description,
		Context:         map[string]any{},
		RequiredTools:   parent.RequiredTools,
		Priority:        parent.Priority,
		EstimatedTokens: parent.EstimatedTokens,
		Complexity:      parent.Complexity,
	}
	for k, v := range parent.Context {
		sub.Context[k] = v
	}
	if deadline, ok := parent.Deadline(); ok {
		sub.Context["deadline"] = deadline
	}
	return sub
}
