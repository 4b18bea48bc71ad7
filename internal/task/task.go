// Package task defines the immutable Task and ExecutionResult data model
// (spec §3). Values here are pure data; no component in this package calls
// out to a backend or mutates shared state.
package task

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Level is the Classifier's cognitive-complexity output (spec §4.4).
type Level int

const (
	LevelUnspecified Level = iota
	L1                     // Mechanical
	L2                     // Analytical
	L3                     // Reasoning
	L4                     // Creative
	L5                     // Strategic
)

func (l Level) String() string {
	switch l {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	case L4:
		return "L4"
	case L5:
		return "L5"
	default:
		return "UNSPECIFIED"
	}
}

// Hints carry caller-provided routing overrides. Both are optional.
type Hints struct {
	ForceExecutor string
	ForcePersona  string
}

// Task is immutable once constructed; nothing in this module mutates it.
type Task struct {
	ID               string
	Kind             string
	Description      string
	Context          map[string]any
	RequiredTools    []string
	Priority         int
	EstimatedTokens  int
	Complexity       Level
	Hints            Hints
	CreatedAt        time.Time
}

// NewID returns an opaque unique task/session/request identifier.
func NewID() string {
	return ulid.Make().String()
}

// Deadline reads an optional deadline carried in Context under "deadline".
// Returns the zero time and false if absent.
func (t *Task) Deadline() (time.Time, bool) {
	if t.Context == nil {
		return time.Time{}, false
	}
	v, ok := t.Context["deadline"]
	if !ok {
		return time.Time{}, false
	}
	switch d := v.(type) {
	case time.Time:
		return d, true
	default:
		return time.Time{}, false
	}
}

// WithContextValue returns a shallow copy of t with key set in Context.
// Used when sub-tasks inherit and extend the parent's context (e.g.
// "prior_results", "previous_result", "leader_guidance").
func (t *Task) WithContextValue(key string, value any) *Task {
	clone := *t
	clone.Context = make(map[string]any, len(t.Context)+1)
	for k, v := range t.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

// ErrorKind enumerates the caller-visible error taxonomy as carried on an
// ExecutionResult (spec §3/§7).
type ErrorKind string

const (
	ErrorKindTransport ErrorKind = "TRANSPORT"
	ErrorKindTimeout    ErrorKind = "TIMEOUT"
	ErrorKindTooLarge   ErrorKind = "TOO_LARGE"
	ErrorKindInternal   ErrorKind = "INTERNAL"
)

// ErrorRecord is one entry in ExecutionResult.Errors.
type ErrorRecord struct {
	Kind    ErrorKind
	Message string
}

// ExecutionResult is emitted by a backend client (spec §3).
type ExecutionResult struct {
	TaskID     string
	ExecutorID string
	Payload    any
	TokensUsed int
	Duration   time.Duration
	Confidence float64
	Errors     []ErrorRecord
	Cached     bool

	// Partial is set when a decomposition follower phase failed but the
	// plan still produced a usable (degraded) result (spec §7).
	Partial bool
}

// Ok reports whether the result carries no error records.
func (r *ExecutionResult) Ok() bool {
	return len(r.Errors) == 0
}
