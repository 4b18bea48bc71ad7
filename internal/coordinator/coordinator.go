// Package coordinator implements the Collaboration Coordinator (C6, spec
// §4.6): given a task, a set of personas, and a collaboration mode, it runs
// the personas against an Executor and assembles their results into an
// Outcome. The fan-out/fan-in shape mirrors the teacher's DAG batch
// executor (goroutines + sync.WaitGroup + buffered-channel semaphore).
package coordinator

import (
	"context"
	"sync"

	"github.com/apto-as/trinitas-core/internal/persona"
	"github.com/apto-as/trinitas-core/internal/task"
)

// Mode selects the collaboration strategy (spec §4.6).
type Mode int

const (
	Sequential Mode = iota
	Parallel
	Hierarchical
	Consensus
)

// Executor runs a single persona against a task. Implementations typically
// wrap a *router.Router, routing to persona.PreferredBackend.
type Executor interface {
	Execute(ctx context.Context, p persona.Persona, t *task.Task) (*task.ExecutionResult, error)
}

// PersonaResult is one persona's contribution to an Outcome.
type PersonaResult struct {
	PersonaID string
	Result    *task.ExecutionResult
	Err       error
	Failed    bool
}

// Verdict is Consensus mode's tri-state decision.
type Verdict string

const (
	Approved           Verdict = "APPROVED"
	ApprovedWithNotes  Verdict = "APPROVED_WITH_NOTES"
	MediationRequired  Verdict = "MEDIATION_REQUIRED"
)

// Compromise is the suggested middle ground when MediationRequired fires
// (spec §4.6): shared goals intersected across personas, plus each
// persona's top-ranked requirement partially included.
type Compromise struct {
	SharedGoals          []string
	TopRequirementByPersona map[string]string
}

// Outcome is the Coordinator's unified result across all four modes.
type Outcome struct {
	Mode        Mode
	Results     []PersonaResult
	FinalPayload any

	// Consensus-only.
	Alignment  float64
	Verdict    Verdict
	Notes      map[string]string
	Compromise *Compromise
}

// Coordinator runs personas against an Executor per the selected Mode.
type Coordinator struct {
	executor Executor
}

func New(executor Executor) *Coordinator {
	return &Coordinator{executor: executor}
}

// Run dispatches to the mode-specific strategy. ctx cancellation propagates
// to every in-flight persona call; already-completed results are preserved
// and returned (spec §4.6 Cancellation).
func (c *Coordinator) Run(ctx context.Context, t *task.Task, personas []persona.Persona, mode Mode) (*Outcome, error) {
	switch mode {
	case Sequential:
		return c.runSequential(ctx, t, personas)
	case Parallel:
		return c.runParallel(ctx, t, personas)
	case Hierarchical:
		return c.runHierarchical(ctx, t, personas)
	case Consensus:
		return c.runConsensus(ctx, t, personas)
	default:
		return c.runSequential(ctx, t, personas)
	}
}

func (c *Coordinator) runSequential(ctx context.Context, t *task.Task, personas []persona.Persona) (*Outcome, error) {
	results := make([]PersonaResult, 0, len(personas))
	var previous any

	for _, p := range personas {
		current := t
		if previous != nil {
			current = t.WithContextValue("previous_result", previous)
		}

		result, err := c.executor.Execute(ctx, p, current)
		if err != nil {
			results = append(results, PersonaResult{PersonaID: p.ID, Err: err, Failed: true})
			return &Outcome{Mode: Sequential, Results: results}, err
		}
		results = append(results, PersonaResult{PersonaID: p.ID, Result: result})
		previous = result.Payload
	}

	var final any
	if len(results) > 0 {
		final = results[len(results)-1].Result.Payload
	}
	return &Outcome{Mode: Sequential, Results: results, FinalPayload: final}, nil
}

func (c *Coordinator) runParallel(ctx context.Context, t *task.Task, personas []persona.Persona) (*Outcome, error) {
	results := c.fanOut(ctx, t, personas, nil)
	return &Outcome{Mode: Parallel, Results: results}, nil
}

func (c *Coordinator) runHierarchical(ctx context.Context, t *task.Task, personas []persona.Persona) (*Outcome, error) {
	if len(personas) == 0 {
		return &Outcome{Mode: Hierarchical}, nil
	}

	leaderIdx := 0
	for i, p := range personas {
		if p.IsLeader {
			leaderIdx = i
			break
		}
	}
	leader := personas[leaderIdx]

	leaderResult, err := c.executor.Execute(ctx, leader, t)
	if err != nil {
		return &Outcome{
			Mode:    Hierarchical,
			Results: []PersonaResult{{PersonaID: leader.ID, Err: err, Failed: true}},
		}, err
	}

	leaderPR := PersonaResult{PersonaID: leader.ID, Result: leaderResult}

	var subordinates []persona.Persona
	for i, p := range personas {
		if i != leaderIdx {
			subordinates = append(subordinates, p)
		}
	}

	guided := t.WithContextValue("leader_guidance", leaderResult.Payload)
	subResults := c.fanOut(ctx, guided, subordinates, nil)

	all := append([]PersonaResult{leaderPR}, subResults...)
	return &Outcome{Mode: Hierarchical, Results: all, FinalPayload: leaderResult.Payload}, nil
}

func (c *Coordinator) runConsensus(ctx context.Context, t *task.Task, personas []persona.Persona) (*Outcome, error) {
	results := c.fanOut(ctx, t, personas, nil)

	signals := make([]float64, len(results))
	for i, r := range results {
		signals[i] = extractSignal(r)
	}
	alignment := alignmentScore(signals)

	outcome := &Outcome{Mode: Consensus, Results: results, Alignment: alignment}

	switch {
	case alignment > 0.8:
		outcome.Verdict = Approved
		outcome.FinalPayload = combineRecommendations(results)
	case alignment >= 0.6:
		outcome.Verdict = ApprovedWithNotes
		outcome.FinalPayload = combineRecommendations(results)
		outcome.Notes = minorConcerns(results)
	default:
		outcome.Verdict = MediationRequired
		outcome.Compromise = buildCompromise(results)
	}

	return outcome, nil
}

// fanOut runs personas concurrently against independent task copies,
// bounded by a semaphore the same shape as the teacher's batch executor.
// failed personas contribute a PersonaResult with Failed=true rather than
// aborting the group (parallel/consensus/hierarchical-subordinate failure
// semantics, spec §4.6).
func (c *Coordinator) fanOut(ctx context.Context, t *task.Task, personas []persona.Persona, extra map[string]any) []PersonaResult {
	results := make([]PersonaResult, len(personas))
	sem := make(chan struct{}, maxConcurrency(len(personas)))

	var wg sync.WaitGroup
	for i, p := range personas {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[i] = PersonaResult{PersonaID: p.ID, Err: ctx.Err(), Failed: true}
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			independent := t.WithContextValue("__persona__", p.ID)
			for k, v := range extra {
				independent = independent.WithContextValue(k, v)
			}

			result, err := c.executor.Execute(ctx, p, independent)
			if err != nil {
				results[i] = PersonaResult{PersonaID: p.ID, Err: err, Failed: true}
				return
			}
			results[i] = PersonaResult{PersonaID: p.ID, Result: result}
		}()
	}
	wg.Wait()
	return results
}

func maxConcurrency(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// extractSignal reads a numeric risk/approval signal from a persona's
// payload (looked up under "risk" or "approval" when Payload is a
// map[string]any). Personas with no numeric signal, or that failed,
// contribute the neutral 0.5 (spec §4.6 Alignment score formula).
func extractSignal(r PersonaResult) float64 {
	if r.Failed || r.Result == nil {
		return 0.5
	}
	m, ok := r.Result.Payload.(map[string]any)
	if !ok {
		return 0.5
	}
	for _, key := range []string{"risk", "approval"} {
		if v, ok := m[key]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return 0.5
}

// alignmentScore is the mean pairwise agreement across K signals:
// 1 - |risk_i - risk_j|, averaged over all unordered pairs.
func alignmentScore(signals []float64) float64 {
	k := len(signals)
	if k < 2 {
		return 1.0
	}
	var total float64
	var pairs int
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			diff := signals[i] - signals[j]
			if diff < 0 {
				diff = -diff
			}
			total += 1 - diff
			pairs++
		}
	}
	return total / float64(pairs)
}

func combineRecommendations(results []PersonaResult) []any {
	combined := make([]any, 0, len(results))
	for _, r := range results {
		if r.Result != nil {
			combined = append(combined, r.Result.Payload)
		}
	}
	return combined
}

func minorConcerns(results []PersonaResult) map[string]string {
	notes := make(map[string]string)
	for _, r := range results {
		if r.Failed {
			notes[r.PersonaID] = "persona failed to respond"
			continue
		}
		if m, ok := r.Result.Payload.(map[string]any); ok {
			if concern, ok := m["concern"].(string); ok {
				notes[r.PersonaID] = concern
			}
		}
	}
	return notes
}

// buildCompromise intersects shared goals across personas and partially
// includes each persona's top-ranked requirement (spec §4.6 Consensus
// MEDIATION_REQUIRED path).
func buildCompromise(results []PersonaResult) *Compromise {
	var goalSets [][]string
	topReqs := make(map[string]string)

	for _, r := range results {
		if r.Failed || r.Result == nil {
			continue
		}
		m, ok := r.Result.Payload.(map[string]any)
		if !ok {
			continue
		}
		if goals, ok := m["goals"].([]string); ok {
			goalSets = append(goalSets, goals)
		}
		if req, ok := m["top_requirement"].(string); ok {
			topReqs[r.PersonaID] = req
		}
	}

	return &Compromise{
		SharedGoals:             intersect(goalSets),
		TopRequirementByPersona: topReqs,
	}
}

func intersect(sets [][]string) []string {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, set := range sets {
		seen := make(map[string]struct{}, len(set))
		for _, item := range set {
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			counts[item]++
		}
	}

	var shared []string
	for item, count := range counts {
		if count == len(sets) {
			shared = append(shared, item)
		}
	}
	return shared
}
