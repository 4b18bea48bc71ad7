// Package router implements the Router (C3, spec §4.3): given a classified
// task and an optional preferred backend, it selects a backend and executes
// with retry/fallback per the deterministic selection order and capped
// exponential backoff.
package router

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/apto-as/trinitas-core/internal/backend"
	heikeErrors "github.com/apto-as/trinitas-core/internal/errors"
	"github.com/apto-as/trinitas-core/internal/task"
)

// LocalHeavyThreshold is spec §4.3's LOCAL_HEAVY_THRESHOLD default.
const LocalHeavyThreshold = 20000

// Config tunes the retry policy (spec §4.3).
type Config struct {
	MaxAttemptsPerBackend int
	MaxBackoff            time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttemptsPerBackend: 3, MaxBackoff: 30 * time.Second}
}

// Router is the C3 facade.
type Router struct {
	registry *backend.HealthRegistry
	clients  map[backend.ID]backend.Client
	cfg      Config
}

func New(registry *backend.HealthRegistry, clients map[backend.ID]backend.Client, cfg Config) *Router {
	if cfg.MaxAttemptsPerBackend <= 0 {
		cfg.MaxAttemptsPerBackend = 3
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Router{registry: registry, clients: clients, cfg: cfg}
}

// Route selects a backend per spec §4.3's selection order and executes with
// retry/fallback. preferredBackendID is the caller's (persona-affinity)
// hint; it is honoured only if currently healthy.
func (r *Router) Route(ctx context.Context, t *task.Task, preferredBackendID backend.ID) (*task.ExecutionResult, error) {
	if t.Hints.ForceExecutor != "" {
		return r.routeForced(ctx, t, backend.ID(t.Hints.ForceExecutor))
	}

	chain := r.buildChain(t, preferredBackendID)

	var lastErr error
	attempted := false
	for _, id := range chain {
		client, ok := r.clients[id]
		if !ok {
			continue
		}
		if !r.registry.IsHealthy(id) {
			continue
		}

		attempted = true
		result, err := r.executeWithRetry(ctx, client, t)
		if err == nil {
			return result, nil
		}
		lastErr = err
		slog.Warn("router: backend exhausted, advancing fallback chain", "backend", id, "error", err)
	}

	if !attempted {
		return nil, heikeErrors.BackendUnavailable("no healthy backend in fallback chain")
	}
	return nil, heikeErrors.WrapWithCategory(lastErr, "fallback chain exhausted", heikeErrors.ErrBackendUnavailable)
}

// routeForced handles hints.force_executor (spec §4.3 step 1, §9 - treated
// as authoritative over preferred_backend_id/priority). A forced backend
// that does not exist or is unhealthy is a routing impossibility, not a
// retriable failure.
func (r *Router) routeForced(ctx context.Context, t *task.Task, id backend.ID) (*task.ExecutionResult, error) {
	client, ok := r.clients[id]
	if !ok {
		return nil, heikeErrors.NoExecutor("forced executor " + string(id) + " is not registered")
	}
	if !r.registry.IsHealthy(id) {
		return nil, heikeErrors.NoExecutor("forced executor " + string(id) + " is unhealthy")
	}

	result, err := r.executeWithRetry(ctx, client, t)
	if err != nil {
		return nil, heikeErrors.WrapWithCategory(err, "forced executor exhausted", heikeErrors.ErrBackendUnavailable)
	}
	return result, nil
}

// buildChain implements spec §4.3's selection order, steps 2-6.
func (r *Router) buildChain(t *task.Task, preferredBackendID backend.ID) []backend.ID {
	var chain []backend.ID

	if preferredBackendID != "" && r.registry.IsHealthy(preferredBackendID) {
		chain = append(chain, preferredBackendID)
	}

	switch t.Complexity {
	case task.L1, task.L2:
		if t.EstimatedTokens > LocalHeavyThreshold {
			chain = appendUnique(chain, backend.LOCAL, backend.HeadlessA, backend.HeadlessB, backend.MAIN)
		} else {
			chain = appendUnique(chain, backend.LOCAL, backend.MAIN)
		}
	case task.L3:
		chain = appendUnique(chain, backend.MAIN, backend.HeadlessA, backend.LOCAL)
	case task.L4, task.L5:
		chain = appendUnique(chain, backend.MAIN)
	default:
		chain = appendUnique(chain, backend.LOCAL, backend.MAIN)
	}

	// Step 6: MAIN is always the universal final fallback.
	chain = appendUnique(chain, backend.MAIN)
	return chain
}

func appendUnique(chain []backend.ID, ids ...backend.ID) []backend.ID {
	seen := make(map[backend.ID]struct{}, len(chain))
	for _, id := range chain {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		chain = append(chain, id)
	}
	return chain
}

// executeWithRetry attempts client.Execute up to cfg.MaxAttemptsPerBackend
// times with exponential backoff 2^attempt seconds capped at cfg.MaxBackoff,
// bounded by the task's deadline if present (spec §4.3).
func (r *Router) executeWithRetry(ctx context.Context, client backend.Client, t *task.Task) (*task.ExecutionResult, error) {
	deadline, hasDeadline := t.Deadline()
	if hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttemptsPerBackend; attempt++ {
		select {
		case <-ctx.Done():
			return nil, heikeErrors.DeadlineExceeded("task deadline reached during routing")
		default:
		}

		start := time.Now()
		result, err := client.Execute(ctx, t)
		duration := time.Since(start)

		if err != nil {
			r.registry.MarkFailure(client.ID())
			lastErr = err
		} else if !result.Ok() {
			r.registry.MarkFailure(client.ID())
			lastErr = recordedError(result)
		} else {
			r.registry.MarkSuccess(client.ID(), duration)
			return result, nil
		}

		if attempt < r.cfg.MaxAttemptsPerBackend-1 {
			backoff := backoffFor(attempt, r.cfg.MaxBackoff)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, heikeErrors.DeadlineExceeded("task deadline reached during backoff")
			case <-timer.C:
			}
		}
	}

	if lastErr == nil {
		lastErr = heikeErrors.Transport("backend failed with no error detail")
	}
	return nil, lastErr
}

func recordedError(r *task.ExecutionResult) error {
	if len(r.Errors) == 0 {
		return heikeErrors.Internal("execution failed with no error records")
	}
	rec := r.Errors[0]
	switch rec.Kind {
	case task.ErrorKindTooLarge:
		return heikeErrors.TooLarge(rec.Message)
	case task.ErrorKindTimeout:
		return heikeErrors.Timeout(rec.Message)
	default:
		return heikeErrors.Transport(rec.Message)
	}
}

func backoffFor(attempt int, cap time.Duration) time.Duration {
	seconds := math.Pow(2, float64(attempt))
	d := time.Duration(seconds) * time.Second
	if d > cap {
		return cap
	}
	return d
}
