package session

import "time"

// Snapshot is spec §6's persistent state layout: field set is normative,
// encoding is not. The orchestrator's migration handoff store is what
// actually serialises this (see internal/orchestrator/migration.go).
type Snapshot struct {
	ID                  string
	UserID              string
	Priority            int
	Limits              ResourceLimits
	CreatedAt           time.Time
	LastActivity        time.Time
	Frames              []ContextFrame
	SharedContext       map[string]any
	PersonaContexts     map[string]map[string]any
	WorkflowStates      map[string]WorkflowState
	Metrics             Metrics
	MigrationTimestamp  time.Time
}

// Snapshot serialises the session's current state (spec §4.7). Frames are
// copied so later mutation of s does not alias the snapshot.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := make([]ContextFrame, len(s.frames))
	copy(frames, s.frames)

	shared := make(map[string]any, len(s.sharedContext))
	for k, v := range s.sharedContext {
		shared[k] = v
	}

	personas := make(map[string]map[string]any, len(s.personaContexts))
	for p, ctx := range s.personaContexts {
		cp := make(map[string]any, len(ctx))
		for k, v := range ctx {
			cp[k] = v
		}
		personas[p] = cp
	}

	workflows := make(map[string]WorkflowState, len(s.workflowStates))
	for k, v := range s.workflowStates {
		workflows[k] = v
	}

	return Snapshot{
		ID:                 s.ID,
		UserID:             s.UserID,
		Priority:           s.Priority,
		Limits:             s.Limits,
		CreatedAt:          s.CreatedAt,
		LastActivity:       s.LastActivity,
		Frames:             frames,
		SharedContext:      shared,
		PersonaContexts:    personas,
		WorkflowStates:     workflows,
		Metrics:            s.metrics,
		MigrationTimestamp: time.Now(),
	}
}

// Restore reconstructs a Session from a Snapshot (spec §4.9 step 4). The
// restored session starts not-migrating and active.
func Restore(snap Snapshot) *Session {
	s := &Session{
		ID:              snap.ID,
		UserID:          snap.UserID,
		Priority:        snap.Priority,
		Limits:          snap.Limits,
		CreatedAt:       snap.CreatedAt,
		LastActivity:    snap.LastActivity,
		IsActive:        true,
		frames:          append([]ContextFrame(nil), snap.Frames...),
		sharedContext:   cloneAnyMap(snap.SharedContext),
		personaContexts: clonePersonaContexts(snap.PersonaContexts),
		workflowStates:  cloneWorkflowStates(snap.WorkflowStates),
		activeRequests:  make(map[string]struct{}),
		metrics:         snap.Metrics,
	}
	return s
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonePersonaContexts(m map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for p, ctx := range m {
		out[p] = cloneAnyMap(ctx)
	}
	return out
}

func cloneWorkflowStates(m map[string]WorkflowState) map[string]WorkflowState {
	out := make(map[string]WorkflowState, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
