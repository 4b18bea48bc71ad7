// Package backend implements the Backend Client (C1) and Health Registry
// (C2) from spec §4.1-§4.2: one client per executor type, plus the
// process-wide health tracking all routing decisions consult.
package backend

import (
	"context"
	"time"

	"github.com/apto-as/trinitas-core/internal/task"
)

// ID identifies one of the four process-wide executor backends (spec §3).
type ID string

const (
	MAIN       ID = "MAIN"
	LOCAL      ID = "LOCAL"
	HeadlessA  ID = "HEADLESS_A"
	HeadlessB  ID = "HEADLESS_B"
)

// Backend is process-wide, long-lived configuration plus derived health
// state (spec §3). Available/LastProbeAt/LastLatency are derived from
// probes and execution results, not set directly by callers.
type Backend struct {
	ID          ID
	Endpoint    string
	Credentials string
	Model       string
	MaxTokens   int
	Timeout     time.Duration

	// ConnectionCap bounds concurrent in-flight requests against this
	// backend (spec §5 "Shared resources and locking").
	ConnectionCap int
}

// HealthRecord tracks one backend's availability (spec §3).
type HealthRecord struct {
	BackendID           ID
	Healthy             bool
	LastProbeAt         time.Time
	LastLatency         time.Duration
	ConsecutiveFailures int
}

// Client issues a single request against one backend and reports health
// (spec §4.1). Implementations never retry internally — retries are the
// Router's responsibility.
type Client interface {
	ID() ID
	Backend() Backend
	Execute(ctx context.Context, t *task.Task) (*task.ExecutionResult, error)
	Probe(ctx context.Context) (HealthRecord, error)
}

// envelopeCheck implements the shared "estimated_tokens <= max_tokens"
// pre-flight check every client runs before issuing a wire call (spec
// §4.1). Decomposed sub-tasks get no separate check in the Delegation
// Engine; they pass through this same check when a client executes them.
func envelopeCheck(b Backend, t *task.Task) bool {
	if b.MaxTokens <= 0 {
		return true
	}
	return t.EstimatedTokens <= b.MaxTokens
}
