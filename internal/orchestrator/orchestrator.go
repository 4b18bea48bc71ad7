// Package orchestrator implements the Session Orchestrator (C9, spec
// §4.9): admission under resource limits, request execution bookkeeping,
// best-effort session migration, and background maintenance. It is the
// sole owner of Sessions (spec §3 Ownership).
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	heikeErrors "github.com/apto-as/trinitas-core/internal/errors"
	"github.com/apto-as/trinitas-core/internal/pool"
	"github.com/apto-as/trinitas-core/internal/resource"
	"github.com/apto-as/trinitas-core/internal/session"
)

// Config tunes orchestrator-wide behaviour (env ORCHESTRATOR_* / spec §6).
type Config struct {
	IdleTimeout         time.Duration // default 2h
	DrainTimeout        time.Duration // default 30s
	HandoffTTL          time.Duration // default 300s
	MaintenanceInterval time.Duration // default 5m
	MaxWorkers          int
	LoadStrategy        Strategy
}

func DefaultConfig() Config {
	return Config{
		IdleTimeout:         2 * time.Hour,
		DrainTimeout:        30 * time.Second,
		HandoffTTL:          300 * time.Second,
		MaintenanceInterval: 5 * time.Minute,
		MaxWorkers:          16,
		LoadStrategy:        LeastConnections,
	}
}

// Orchestrator is the C9 facade: it exclusively owns the active-session
// map (spec §3). Per spec §5's lock-ordering rule, the orchestrator lock
// is always acquired before any individual session's lock, never the
// reverse.
type Orchestrator struct {
	cfg     Config
	pool    *pool.Pool
	monitor *resource.Monitor
	handoff *HandoffStore

	mu       sync.Mutex
	sessions map[string]*session.Session

	cronJob *cron.Cron
}

func New(cfg Config, p *pool.Pool, monitor *resource.Monitor, handoff *HandoffStore) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		pool:     p,
		monitor:  monitor,
		handoff:  handoff,
		sessions: make(map[string]*session.Session),
	}
}

// CreateSession is spec §4.9's admission path: it consults the Global
// Resource Monitor first, then draws a session from the Pool.
func (o *Orchestrator) CreateSession(userID string, priority int, limits session.ResourceLimits) (*session.Session, error) {
	if o.monitor != nil && !o.monitor.CanAdmit() {
		return nil, heikeErrors.ResourceExhausted("system memory/CPU over admission threshold")
	}

	s := o.pool.Acquire(userID, priority, limits)

	o.mu.Lock()
	o.sessions[s.ID] = s
	o.mu.Unlock()

	return s, nil
}

// CloseSession removes a session from the active map and returns it to the
// pool.
func (o *Orchestrator) CloseSession(sessionID string) error {
	o.mu.Lock()
	s, ok := o.sessions[sessionID]
	if ok {
		delete(o.sessions, sessionID)
	}
	o.mu.Unlock()

	if !ok {
		return heikeErrors.SessionNotFound(sessionID)
	}
	o.pool.Release(s)
	return nil
}

// ListSessions returns the active session IDs.
func (o *Orchestrator) ListSessions() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) lookup(sessionID string) (*session.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sessionID]
	return s, ok
}

// Operation is the unit of work ExecuteRequest runs against a session.
type Operation func(ctx context.Context, s *session.Session) (any, error)

// ExecuteRequest is spec §4.9's execute_request: admit, run, always clean
// up active_requests even on error.
func (o *Orchestrator) ExecuteRequest(ctx context.Context, sessionID string, op Operation) (any, error) {
	s, ok := o.lookup(sessionID)
	if !ok {
		return nil, heikeErrors.SessionNotFound(sessionID)
	}
	if s.IsMigratingNow() {
		return nil, heikeErrors.SessionMigrating(sessionID)
	}

	requestID := ulid.Make().String()
	if !s.BeginRequest(requestID) {
		return nil, heikeErrors.SessionBusy(sessionID)
	}

	start := time.Now()
	result, err := op(ctx, s)
	duration := time.Since(start)

	s.EndRequest(requestID, duration, err != nil)
	return result, err
}

// Migrate is spec §4.9's best-effort migrate_session.
func (o *Orchestrator) Migrate(ctx context.Context, sessionID, target string) error {
	s, ok := o.lookup(sessionID)
	if !ok {
		return heikeErrors.SessionNotFound(sessionID)
	}

	s.BeginMigration(target)

	deadline := time.Now().Add(o.cfg.DrainTimeout)
	for s.ActiveRequestCount() > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	if s.ActiveRequestCount() > 0 {
		slog.Warn("orchestrator: migration drain timed out, proceeding anyway", "session", sessionID, "target", target)
	}

	snap := s.Snapshot()
	if err := o.handoff.Put(sessionID, target, snap, o.cfg.HandoffTTL); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()

	return nil
}

// AdoptMigratedSession is the target side of spec §4.9 step 4: it polls
// the handoff store until the snapshot arrives or ctx is done, then
// reconstructs and registers the session.
func (o *Orchestrator) AdoptMigratedSession(ctx context.Context, sessionID, source string) (*session.Session, error) {
	for {
		snap, ok, err := o.handoff.Get(sessionID, source)
		if err != nil {
			return nil, err
		}
		if ok {
			restored := session.Restore(snap)
			o.mu.Lock()
			o.sessions[restored.ID] = restored
			o.mu.Unlock()
			return restored, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// RunMaintenance performs one pass of spec §4.9's background maintenance:
// reap expired sessions, reap their TTL'd frames/workflows, and refresh the
// resource monitor.
func (o *Orchestrator) RunMaintenance(ctx context.Context) {
	now := time.Now()

	o.mu.Lock()
	var expired []string
	for id, s := range o.sessions {
		if s.Expired(now, o.cfg.IdleTimeout) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(o.sessions, id)
	}
	active := make([]*session.Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		active = append(active, s)
	}
	o.mu.Unlock()

	for _, id := range expired {
		slog.Info("orchestrator: reaped expired session", "session", id)
	}
	for _, s := range active {
		s.Reap()
	}

	if o.monitor != nil {
		if err := o.monitor.Refresh(ctx); err != nil {
			slog.Warn("orchestrator: resource monitor refresh failed", "error", err)
		}
	}

	o.pool.TopUp()
}

// StartMaintenance schedules RunMaintenance on a cron interval (default
// 5 minutes, spec §4.9), grounded on the teacher's robfig/cron scheduler.
func (o *Orchestrator) StartMaintenance(ctx context.Context) error {
	interval := o.cfg.MaintenanceInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	o.cronJob = cron.New()
	_, err := o.cronJob.AddFunc("@every "+interval.String(), func() {
		o.RunMaintenance(ctx)
	})
	if err != nil {
		return err
	}
	o.cronJob.Start()

	go func() {
		<-ctx.Done()
		o.cronJob.Stop()
	}()
	return nil
}
