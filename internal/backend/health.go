package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const unhealthyThreshold = 3

// HealthRegistry maps backend_id -> HealthRecord (spec §4.2). Each entry is
// guarded by its own lock, matching the teacher's per-name locking in
// DefaultModelRouter and the spec's "one lock per backend_id" rule (§5).
type HealthRegistry struct {
	mu      sync.RWMutex
	records map[ID]*lockedRecord
}

type lockedRecord struct {
	mu     sync.Mutex
	record HealthRecord
}

func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{records: make(map[ID]*lockedRecord)}
}

func (r *HealthRegistry) entry(id ID) *lockedRecord {
	r.mu.RLock()
	e, ok := r.records[id]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.records[id]; ok {
		return e
	}
	e = &lockedRecord{record: HealthRecord{BackendID: id, Healthy: true}}
	r.records[id] = e
	return e
}

// Get returns the current record for id (healthy-by-default if never probed).
func (r *HealthRegistry) Get(id ID) HealthRecord {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// MarkSuccess resets the failure counter and marks the backend healthy.
func (r *HealthRegistry) MarkSuccess(id ID, latency time.Duration) {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.Healthy = true
	e.record.ConsecutiveFailures = 0
	e.record.LastProbeAt = time.Now()
	e.record.LastLatency = latency
}

// MarkFailure increments the failure counter; the backend becomes
// unhealthy once it reaches unhealthyThreshold consecutive failures
// (spec §4.2, invariant 4 in §8).
func (r *HealthRegistry) MarkFailure(id ID) {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.ConsecutiveFailures++
	e.record.LastProbeAt = time.Now()
	if e.record.ConsecutiveFailures >= unhealthyThreshold {
		e.record.Healthy = false
	}
}

// IsHealthy is a convenience read used by the Router's selection logic.
func (r *HealthRegistry) IsHealthy(id ID) bool {
	return r.Get(id).Healthy
}

// Snapshot returns a copy of every tracked record, safe for callers to
// range over without holding any lock.
func (r *HealthRegistry) Snapshot() map[ID]HealthRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[ID]HealthRecord, len(r.records))
	for id, e := range r.records {
		e.mu.Lock()
		out[id] = e.record
		e.mu.Unlock()
	}
	return out
}

// ProbeLoop runs probe for every client in clients on a fixed interval
// until ctx is cancelled, using robfig/cron the way the teacher's
// scheduler parses and runs periodic jobs (internal/scheduler/store.go).
// Each probe must complete within 5s or counts as a failure (spec §4.1).
type ProbeLoop struct {
	registry *HealthRegistry
	clients  []Client
	cron     *cron.Cron
	interval time.Duration
}

// NewProbeLoop builds a loop that probes every client every interval.
// interval defaults to 30s (spec §4.2) when <= 0.
func NewProbeLoop(registry *HealthRegistry, clients []Client, interval time.Duration) *ProbeLoop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))
	return &ProbeLoop{registry: registry, clients: clients, cron: c, interval: interval}
}

// Start schedules the recurring probe entry, using the constructor's
// interval when interval <= 0. Stop, or cancelling ctx, cancels it.
func (p *ProbeLoop) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = p.interval
	}
	spec := cronEverySpec(interval)
	_, err := p.cron.AddFunc(spec, func() {
		p.probeAll(ctx)
	})
	if err != nil {
		return err
	}
	p.cron.Start()

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

func (p *ProbeLoop) Stop() {
	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
}

func (p *ProbeLoop) probeAll(ctx context.Context) {
	for _, c := range p.clients {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		record, err := c.Probe(probeCtx)
		cancel()

		if err != nil {
			slog.Warn("backend probe failed", "backend", c.ID(), "error", err)
			p.registry.MarkFailure(c.ID())
			continue
		}
		if !record.Healthy {
			p.registry.MarkFailure(c.ID())
			continue
		}
		p.registry.MarkSuccess(c.ID(), time.Since(start))
	}
}

// cronEverySpec converts a Go duration into a robfig/cron "@every" spec.
func cronEverySpec(d time.Duration) string {
	return "@every " + d.String()
}
