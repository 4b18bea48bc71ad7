// Package pool implements the Session Pool (C8, spec §4.8): a bounded
// min/max reserve of idle Sessions, with a background top-up goroutine
// grounded in the teacher's robfig/cron-scheduled maintenance loop
// (internal/scheduler/engine.go).
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apto-as/trinitas-core/internal/session"
)

// Config bounds the pool (spec §4.8, env ORCHESTRATOR_MIN_POOL/MAX_POOL).
type Config struct {
	MinSize int
	MaxSize int
}

func DefaultConfig() Config {
	return Config{MinSize: 2, MaxSize: 32}
}

// IDGenerator produces a fresh session ID for newly allocated instances.
type IDGenerator func() string

// Pool maintains min_size <= idle <= max_size Sessions (spec §4.8).
type Pool struct {
	mu      sync.Mutex
	idle    []*session.Session
	cfg     Config
	genID   IDGenerator
	cronJob *cron.Cron

	// idleSessionMaxAge bounds how long an unused idle session is kept
	// before being discarded down to MinSize (spec §5: "idle sessions
	// older than 1h are discarded down to min_size").
	idleSessionMaxAge time.Duration
	idleSince         map[*session.Session]time.Time
}

func New(cfg Config, genID IDGenerator) *Pool {
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	if cfg.MaxSize < cfg.MinSize {
		cfg.MaxSize = cfg.MinSize
	}
	p := &Pool{
		cfg:               cfg,
		genID:             genID,
		idleSessionMaxAge: time.Hour,
		idleSince:         make(map[*session.Session]time.Time),
	}
	p.fillLocked()
	return p
}

func (p *Pool) fillLocked() {
	for len(p.idle) < p.cfg.MinSize {
		s := p.allocate()
		p.idle = append(p.idle, s)
		p.idleSince[s] = time.Now()
	}
}

func (p *Pool) allocate() *session.Session {
	id := p.genID()
	return session.New(id, "", 0, session.DefaultResourceLimits())
}

// Acquire reuses an idle instance if present (resetting its mutable
// state), otherwise allocates a fresh one (spec §4.8).
func (p *Pool) Acquire(userID string, priority int, limits session.ResourceLimits) *session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) > 0 {
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		delete(p.idleSince, s)
		s.ResetForReuse(p.genID(), userID, priority, limits)
		return s
	}

	s := session.New(p.genID(), userID, priority, limits)
	return s
}

// Release clears expired data and returns the session to the pool if
// idle < max_size; otherwise the instance is discarded (spec §4.8). It does
// not change the session's IsActive flag, which stays as it was until
// Acquire's ResetForReuse sets it to true.
func (p *Pool) Release(s *session.Session) {
	s.Reap()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) >= p.cfg.MaxSize {
		return
	}
	p.idle = append(p.idle, s)
	p.idleSince[s] = time.Now()
}

// IdleCount reports the current idle-reserve size.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// TopUp allocates fresh sessions until idle >= min_size and discards idle
// sessions older than idleSessionMaxAge down to min_size (spec §4.8, §5).
func (p *Pool) TopUp() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if len(p.idle) > p.cfg.MinSize {
		kept := p.idle[:0]
		for _, s := range p.idle {
			age := now.Sub(p.idleSince[s])
			if len(kept) < p.cfg.MinSize || age <= p.idleSessionMaxAge {
				kept = append(kept, s)
			} else {
				delete(p.idleSince, s)
			}
		}
		p.idle = kept
	}

	p.fillLocked()
}

// StartBackgroundTopUp runs TopUp on a cron schedule until ctx is
// cancelled or Stop is called.
func (p *Pool) StartBackgroundTopUp(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	p.cronJob = cron.New()
	_, err := p.cronJob.AddFunc(everySpec(interval), func() {
		p.TopUp()
		slog.Debug("pool: background top-up ran", "idle", p.IdleCount())
	})
	if err != nil {
		return err
	}
	p.cronJob.Start()

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

func (p *Pool) Stop() {
	if p.cronJob != nil {
		p.cronJob.Stop()
	}
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}
