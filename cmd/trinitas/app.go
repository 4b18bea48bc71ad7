package main

import (
	"strconv"
	"time"

	"github.com/apto-as/trinitas-core/internal/backend"
	"github.com/apto-as/trinitas-core/internal/config"
	"github.com/apto-as/trinitas-core/internal/mode"
	"github.com/apto-as/trinitas-core/internal/orchestrator"
	"github.com/apto-as/trinitas-core/internal/pool"
	"github.com/apto-as/trinitas-core/internal/resource"
	"github.com/apto-as/trinitas-core/internal/router"
)

// app bundles the process-wide components every subcommand needs, built
// once from Config. It plays the role the teacher's runtime.RuntimeBuilder
// plays for Heike, scaled down to Trinitas's component set.
type app struct {
	registry     *backend.HealthRegistry
	clients      map[backend.ID]backend.Client
	router       *router.Router
	pressure     *backend.PressureTracker
	monitor      *resource.Monitor
	pool         *pool.Pool
	orchestrator *orchestrator.Orchestrator
	probeLoop    *backend.ProbeLoop
	modeManager  *mode.Manager
}

func buildApp(c *config.Config) (*app, error) {
	registry := backend.NewHealthRegistry()

	timeout, err := config.DurationOrDefault(c.Backend.Timeout, config.DefaultBackendTimeout)
	if err != nil {
		return nil, err
	}

	clients := map[backend.ID]backend.Client{
		backend.MAIN: backend.NewMainClient(backend.Backend{
			ID:            backend.MAIN,
			Endpoint:      c.Backend.MainEndpoint,
			Credentials:   c.Backend.MainAPIKey,
			MaxTokens:     c.Backend.MaxTokens,
			Timeout:       timeout,
			ConnectionCap: c.Backend.ConnectionCap,
		}),
		backend.LOCAL: backend.NewOpenAICompatClient(backend.Backend{
			ID:            backend.LOCAL,
			Endpoint:      c.Backend.LocalEndpoint,
			Credentials:   c.Backend.LocalAPIKey,
			Model:         c.Backend.LocalModel,
			MaxTokens:     c.Backend.MaxTokens,
			Timeout:       timeout,
			ConnectionCap: c.Backend.ConnectionCap,
		}),
		backend.HeadlessA: backend.NewOpenAICompatClient(backend.Backend{
			ID:            backend.HeadlessA,
			Endpoint:      c.Backend.HeadlessAEndpoint,
			Credentials:   c.Backend.HeadlessAAPIKey,
			Model:         c.Backend.HeadlessAModel,
			MaxTokens:     c.Backend.MaxTokens,
			Timeout:       timeout,
			ConnectionCap: c.Backend.ConnectionCap,
		}),
		backend.HeadlessB: backend.NewOpenAICompatClient(backend.Backend{
			ID:            backend.HeadlessB,
			Endpoint:      c.Backend.HeadlessBEndpoint,
			Credentials:   c.Backend.HeadlessBAPIKey,
			Model:         c.Backend.HeadlessBModel,
			MaxTokens:     c.Backend.MaxTokens,
			Timeout:       timeout,
			ConnectionCap: c.Backend.ConnectionCap,
		}),
	}

	routerCfg := router.DefaultConfig()
	routerCfg.MaxAttemptsPerBackend = c.Router.MaxAttemptsPerBackend
	if maxBackoff, err := config.DurationOrDefault(c.Router.MaxBackoff, config.DefaultRouterMaxBackoff); err == nil {
		routerCfg.MaxBackoff = maxBackoff
	}
	rt := router.New(registry, clients, routerCfg)

	pressure := backend.NewPressureTracker(timeout, c.Backend.ConnectionCap)

	monitor := resource.New(resource.Thresholds{
		MaxMemoryPercent: c.Orchestrator.MaxMemoryPercent,
		MaxCPUPercent:    c.Orchestrator.MaxCPUPercent,
	})

	n := 0
	sessionPool := pool.New(pool.Config{MinSize: c.Pool.MinSize, MaxSize: c.Pool.MaxSize}, func() string {
		n++
		return "sess-" + time.Now().Format("150405") + "-" + strconv.Itoa(n)
	})

	handoffDir := c.Orchestrator.HandoffDir
	if handoffDir == "" {
		handoffDir = "/tmp/trinitas/handoff"
	}
	handoff, err := orchestrator.NewHandoffStore(handoffDir)
	if err != nil {
		return nil, err
	}

	orchCfg := orchestrator.DefaultConfig()
	if v, err := config.DurationOrDefault(c.Orchestrator.IdleTimeout, config.DefaultOrchestratorIdleTimeout); err == nil {
		orchCfg.IdleTimeout = v
	}
	if v, err := config.DurationOrDefault(c.Orchestrator.DrainTimeout, config.DefaultOrchestratorDrainTimeout); err == nil {
		orchCfg.DrainTimeout = v
	}
	if v, err := config.DurationOrDefault(c.Orchestrator.HandoffTTL, config.DefaultOrchestratorHandoffTTL); err == nil {
		orchCfg.HandoffTTL = v
	}
	if v, err := config.DurationOrDefault(c.Orchestrator.MaintenanceInterval, config.DefaultOrchestratorMaintenanceInterval); err == nil {
		orchCfg.MaintenanceInterval = v
	}
	orchCfg.MaxWorkers = c.Orchestrator.MaxWorkers
	orchCfg.LoadStrategy = orchestrator.Strategy(c.LoadStrategy)

	orch := orchestrator.New(orchCfg, sessionPool, monitor, handoff)

	probeClients := make([]backend.Client, 0, len(clients))
	for _, cl := range clients {
		probeClients = append(probeClients, cl)
	}
	probeInterval, err := config.DurationOrDefault(c.Backend.ProbeInterval, config.DefaultBackendProbeInterval)
	if err != nil {
		return nil, err
	}
	probeLoop := backend.NewProbeLoop(registry, probeClients, probeInterval)

	if !mode.Valid(mode.Mode(c.Mode)) {
		c.Mode = config.DefaultMode
	}
	mode.Current = mode.NewManager(mode.Mode(c.Mode))

	return &app{
		registry:     registry,
		clients:      clients,
		router:       rt,
		pressure:     pressure,
		monitor:      monitor,
		pool:         sessionPool,
		orchestrator: orch,
		probeLoop:    probeLoop,
		modeManager:  mode.Current,
	}, nil
}
