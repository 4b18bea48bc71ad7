// Package session implements the Session (C7, spec §4.7): per-user context
// frames, workflow state, persona sub-contexts, metrics, and the resource
// invariants that bound a single user's concurrency. A Session is protected
// by one reentrant-in-spirit lock; the lock is never held across external
// I/O (spec §5) - callers mutate state before and after an async operation,
// not during it.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/apto-as/trinitas-core/internal/task"
)

// FrameType enumerates spec §3's ContextFrame.type values.
type FrameType string

const (
	FrameTask         FrameType = "TASK"
	FrameResult       FrameType = "RESULT"
	FrameError        FrameType = "ERROR"
	FrameConversation FrameType = "CONVERSATION"
	FrameWorkflow     FrameType = "WORKFLOW"
	FramePersonaState FrameType = "PERSONA_STATE"
	FrameSessionMeta  FrameType = "SESSION_META"
	FrameCustom       FrameType = "CUSTOM"
)

// ContextFrame is spec §3's ContextFrame.
type ContextFrame struct {
	ID        string
	Type      FrameType
	Content   any
	Persona   string
	CreatedAt time.Time
	TTL       time.Duration // zero means no expiry
	ParentID  string
	Metadata  map[string]any
}

func (f ContextFrame) expired(now time.Time) bool {
	if f.TTL <= 0 {
		return false
	}
	return now.After(f.CreatedAt.Add(f.TTL))
}

// sizeBytes is a coarse memory estimate used only to enforce
// max_context_size_mb (spec §4.7); it is advisory, not exact accounting.
func (f ContextFrame) sizeBytes() int {
	base := 128 // struct overhead + timestamps + ids
	if s, ok := f.Content.(string); ok {
		return base + len(s)
	}
	return base + 256
}

// ResourceLimits is spec §3's ResourceLimits.
type ResourceLimits struct {
	MaxMemoryMB           int
	MaxCPUPercent         int
	MaxConcurrentRequests int
	MaxSessionDuration    time.Duration
	MaxContextSizeMB      int
}

func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemoryMB:           512,
		MaxCPUPercent:         75,
		MaxConcurrentRequests: 8,
		MaxSessionDuration:    4 * time.Hour,
		MaxContextSizeMB:      32,
	}
}

// WorkflowState is one entry of spec §4.7's workflow_states map.
type WorkflowState struct {
	State     string
	UpdatedAt time.Time
}

// workflowReapAge is spec §4.7: workflows older than 2h are reaped.
const workflowReapAge = 2 * time.Hour

// Metrics tracks spec §4.9's execute_request bookkeeping.
type Metrics struct {
	RequestsProcessed int
	TotalResponseTime time.Duration
	MemoryPeakMB      int
	ErrorCount        int
}

// Session is spec §3/§4.7's Session. All mutable state is guarded by mu;
// mu is never held during a call to a backend or any other blocking I/O.
type Session struct {
	mu sync.Mutex

	ID              string
	UserID          string
	Priority        int
	Limits          ResourceLimits
	CreatedAt       time.Time
	LastActivity    time.Time
	IsActive        bool
	IsMigrating     bool
	MigrationTarget string

	frames          []ContextFrame
	sharedContext   map[string]any
	personaContexts map[string]map[string]any
	workflowStates  map[string]WorkflowState
	activeRequests  map[string]struct{}
	metrics         Metrics
}

func New(id, userID string, priority int, limits ResourceLimits) *Session {
	now := time.Now()
	return &Session{
		ID:              id,
		UserID:          userID,
		Priority:        priority,
		Limits:          limits,
		CreatedAt:       now,
		LastActivity:    now,
		IsActive:        true,
		sharedContext:   make(map[string]any),
		personaContexts: make(map[string]map[string]any),
		workflowStates:  make(map[string]WorkflowState),
		activeRequests:  make(map[string]struct{}),
	}
}

// AddFrame appends a frame unless doing so would exceed max_context_size_mb
// (spec §4.7). Updates last_activity on success.
func (s *Session) AddFrame(f ContextFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	limitBytes := s.Limits.MaxContextSizeMB * 1024 * 1024
	if limitBytes > 0 {
		current := 0
		for _, existing := range s.frames {
			current += existing.sizeBytes()
		}
		if current+f.sizeBytes() > limitBytes {
			return false
		}
	}

	s.frames = append(s.frames, f)
	s.LastActivity = time.Now()
	return true
}

// FrameFilter narrows GetFrames results (spec §4.7).
type FrameFilter struct {
	Type    FrameType // empty means any
	Persona string    // empty means any
	Limit   int       // zero means unbounded
}

// GetFrames returns frames sorted newest-first, excluding expired frames
// (spec §3's ContextFrame TTL invariant).
func (s *Session) GetFrames(filter FrameFilter) []ContextFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	matched := make([]ContextFrame, 0, len(s.frames))
	for _, f := range s.frames {
		if f.expired(now) {
			continue
		}
		if filter.Type != "" && f.Type != filter.Type {
			continue
		}
		if filter.Persona != "" && f.Persona != filter.Persona {
			continue
		}
		matched = append(matched, f)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

// pruneExpiredLocked removes elapsed-TTL frames and reaps stale workflow
// state. Caller must hold mu.
func (s *Session) pruneExpiredLocked(now time.Time) {
	kept := s.frames[:0]
	for _, f := range s.frames {
		if !f.expired(now) {
			kept = append(kept, f)
		}
	}
	s.frames = kept

	for id, state := range s.workflowStates {
		if now.Sub(state.UpdatedAt) > workflowReapAge {
			delete(s.workflowStates, id)
		}
	}
}

// Reap runs the TTL/workflow reaper (invoked by the orchestrator's
// background maintenance pass, spec §4.9).
func (s *Session) Reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneExpiredLocked(time.Now())
}

// CanAcceptRequest is spec §4.7's admission predicate.
func (s *Session) CanAcceptRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canAcceptRequestLocked()
}

func (s *Session) canAcceptRequestLocked() bool {
	if !s.IsActive || s.IsMigrating {
		return false
	}
	if len(s.activeRequests) >= s.Limits.MaxConcurrentRequests {
		return false
	}
	if s.Limits.MaxSessionDuration > 0 && time.Since(s.CreatedAt) > s.Limits.MaxSessionDuration {
		return false
	}
	return true
}

// BeginRequest admits request id into active_requests. Returns false if the
// session cannot currently accept it.
func (s *Session) BeginRequest(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canAcceptRequestLocked() {
		return false
	}
	s.activeRequests[requestID] = struct{}{}
	s.LastActivity = time.Now()
	return true
}

// EndRequest removes request id from active_requests and folds execution
// outcome into metrics (spec §4.9 step 4-5). Always called, even on error.
func (s *Session) EndRequest(requestID string, duration time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeRequests, requestID)
	s.metrics.RequestsProcessed++
	s.metrics.TotalResponseTime += duration
	if failed {
		s.metrics.ErrorCount++
	}
}

// ActiveRequestCount reports the current in-flight count.
func (s *Session) ActiveRequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeRequests)
}

// UpdateWorkflow upserts workflow state with a fresh timestamp (spec §4.7).
func (s *Session) UpdateWorkflow(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflowStates[id] = WorkflowState{State: state, UpdatedAt: time.Now()}
}

// SetSharedContext and GetSharedContext expose spec §3's shared_context map.
func (s *Session) SetSharedContext(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedContext[key] = value
}

func (s *Session) GetSharedContext(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sharedContext[key]
	return v, ok
}

// SetPersonaContext and GetPersonaContext expose spec §3's persona_contexts
// (persona -> key -> value) map.
func (s *Session) SetPersonaContext(persona, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.personaContexts[persona]
	if !ok {
		ctx = make(map[string]any)
		s.personaContexts[persona] = ctx
	}
	ctx[key] = value
}

func (s *Session) GetPersonaContext(persona, key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.personaContexts[persona]
	if !ok {
		return nil, false
	}
	v, ok := ctx[key]
	return v, ok
}

// Metrics returns a copy of the session's current metrics.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// RecordMemoryPeak updates metrics.memory_peak if observed exceeds it.
func (s *Session) RecordMemoryPeak(mb int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb > s.metrics.MemoryPeakMB {
		s.metrics.MemoryPeakMB = mb
	}
}

// Expired reports whether the session should be reaped by background
// maintenance (spec §4.9): past max_session_duration, or idle past
// idleTimeout.
func (s *Session) Expired(now time.Time, idleTimeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Limits.MaxSessionDuration > 0 && now.Sub(s.CreatedAt) > s.Limits.MaxSessionDuration {
		return true
	}
	if idleTimeout > 0 && now.Sub(s.LastActivity) > idleTimeout {
		return true
	}
	return false
}

// BeginMigration flips is_migrating, blocking new admissions (spec §4.9
// step 1).
func (s *Session) BeginMigration(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IsMigrating = true
	s.MigrationTarget = target
}

// IsMigratingNow reports is_migrating under the session lock; IsMigrating
// itself is only safe to read directly from within the session package.
func (s *Session) IsMigratingNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.IsMigrating
}

// ResetForReuse clears mutable per-user state so the Session Pool can hand
// this instance to a new acquire() call (spec §4.8).
func (s *Session) ResetForReuse(id, userID string, priority int, limits ResourceLimits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.ID = id
	s.UserID = userID
	s.Priority = priority
	s.Limits = limits
	s.CreatedAt = now
	s.LastActivity = now
	s.IsActive = true
	s.IsMigrating = false
	s.MigrationTarget = ""
	s.frames = nil
	s.sharedContext = make(map[string]any)
	s.personaContexts = make(map[string]map[string]any)
	s.workflowStates = make(map[string]WorkflowState)
	s.activeRequests = make(map[string]struct{})
	s.metrics = Metrics{}
}

// taskPayloadFrame converts a completed task execution into a RESULT frame;
// RecordResult is its only caller.
func taskPayloadFrame(t *task.Task, result *task.ExecutionResult) ContextFrame {
	return ContextFrame{
		ID:        result.TaskID,
		Type:      FrameResult,
		Content:   result.Payload,
		CreatedAt: time.Now(),
		ParentID:  t.ID,
	}
}

// RecordResult appends a RESULT frame for a completed task execution.
func (s *Session) RecordResult(t *task.Task, result *task.ExecutionResult) bool {
	return s.AddFrame(taskPayloadFrame(t, result))
}
