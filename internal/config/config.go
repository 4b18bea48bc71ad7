// Package config loads Trinitas's layered configuration: hardcoded
// defaults, then an optional YAML file, then environment variables, then
// CLI flags - each layer overriding the last, via koanf (the teacher's own
// layering library and order).
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

// Config is the top-level configuration, one section per SPEC_FULL.md §D
// package.
type Config struct {
	Backend      BackendConfig      `koanf:"backend"`
	Router       RouterConfig       `koanf:"router"`
	Classifier   ClassifierConfig   `koanf:"classifier"`
	Delegation   DelegationConfig   `koanf:"delegation"`
	Session      SessionConfig      `koanf:"session"`
	Pool         PoolConfig         `koanf:"pool"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Mode         string             `koanf:"mode"`
	LoadStrategy string             `koanf:"load_strategy"`
}

// BackendConfig carries the four backends' endpoints/credentials/models.
type BackendConfig struct {
	LocalEndpoint string `koanf:"local_endpoint"`
	LocalModel    string `koanf:"local_model"`
	LocalAPIKey   string `koanf:"local_api_key"`
	MainEndpoint  string `koanf:"main_endpoint"`
	MainAPIKey    string `koanf:"main_api_key"`

	HeadlessAEndpoint string `koanf:"headless_a_endpoint"`
	HeadlessAModel    string `koanf:"headless_a_model"`
	HeadlessAAPIKey   string `koanf:"headless_a_api_key"`
	HeadlessBEndpoint string `koanf:"headless_b_endpoint"`
	HeadlessBModel    string `koanf:"headless_b_model"`
	HeadlessBAPIKey   string `koanf:"headless_b_api_key"`

	MaxTokens      int    `koanf:"max_tokens"`
	Timeout        string `koanf:"timeout"`
	ProbeInterval  string `koanf:"probe_interval"`
	ConnectionCap  int    `koanf:"connection_cap"`
}

// RouterConfig tunes C3's fallback/retry policy.
type RouterConfig struct {
	LocalHeavyThreshold   int    `koanf:"local_heavy_threshold"`
	MaxAttemptsPerBackend int    `koanf:"max_attempts_per_backend"`
	MaxBackoff            string `koanf:"max_backoff"`
}

// ClassifierConfig is currently empty (the classification table is
// compiled-in, spec.md §4.4), kept as a section so future tuning knobs
// have a home without reshaping the tree.
type ClassifierConfig struct{}

// DelegationConfig carries C5's decision-table thresholds. The delegation
// package does not read these values; it uses its own compiled-in constants.
type DelegationConfig struct {
	HeavyDecomposeThreshold     int     `koanf:"heavy_decompose_threshold"`
	PressureThreshold           float64 `koanf:"pressure_threshold"`
	LocalForceThreshold         int     `koanf:"local_force_threshold"`
	RequiredToolsForceThreshold int     `koanf:"required_tools_force_threshold"`
}

// SessionConfig is the default ResourceLimits new sessions receive.
type SessionConfig struct {
	MaxMemoryMB           int    `koanf:"max_memory_mb"`
	MaxCPUPercent         int    `koanf:"max_cpu_percent"`
	MaxConcurrentRequests int    `koanf:"max_concurrent_requests"`
	MaxSessionDuration    string `koanf:"max_session_duration"`
	MaxContextSizeMB      int    `koanf:"max_context_size_mb"`
}

// PoolConfig bounds the Session Pool (env ORCHESTRATOR_MIN_POOL/MAX_POOL).
type PoolConfig struct {
	MinSize int `koanf:"min_size"`
	MaxSize int `koanf:"max_size"`
}

// OrchestratorConfig tunes C9's admission, migration, and maintenance.
type OrchestratorConfig struct {
	MaxMemoryPercent    float64 `koanf:"max_memory_percent"`
	MaxCPUPercent       float64 `koanf:"max_cpu_percent"`
	IdleTimeout         string  `koanf:"idle_timeout"`
	DrainTimeout        string  `koanf:"drain_timeout"`
	HandoffTTL          string  `koanf:"handoff_ttl"`
	MaintenanceInterval string  `koanf:"maintenance_interval"`
	MaxWorkers          int     `koanf:"max_workers"`
	HandoffDir          string  `koanf:"handoff_dir"`
}

const (
	DefaultBackendMaxTokens     = 8192
	DefaultBackendTimeout       = "30s"
	DefaultBackendProbeInterval = "30s"
	DefaultBackendConnectionCap = 8

	DefaultRouterLocalHeavyThreshold   = 20000
	DefaultRouterMaxAttemptsPerBackend = 3
	DefaultRouterMaxBackoff            = "30s"

	DefaultDelegationHeavyDecomposeThreshold     = 100000
	DefaultDelegationPressureThreshold           = 0.5
	DefaultDelegationLocalForceThreshold         = 20000
	DefaultDelegationRequiredToolsForceThreshold = 3

	DefaultSessionMaxMemoryMB           = 512
	DefaultSessionMaxCPUPercent         = 75
	DefaultSessionMaxConcurrentRequests = 8
	DefaultSessionMaxSessionDuration    = "4h"
	DefaultSessionMaxContextSizeMB      = 32

	DefaultPoolMinSize = 2
	DefaultPoolMaxSize = 32

	DefaultOrchestratorMaxMemoryPercent    = 80.0
	DefaultOrchestratorMaxCPUPercent       = 75.0
	DefaultOrchestratorIdleTimeout         = "2h"
	DefaultOrchestratorDrainTimeout        = "30s"
	DefaultOrchestratorHandoffTTL          = "300s"
	DefaultOrchestratorMaintenanceInterval = "5m"
	DefaultOrchestratorMaxWorkers          = 16

	DefaultMode         = "AUTO"
	DefaultLoadStrategy = "least_connections"
)

// Load builds Config from defaults, an optional YAML file, environment
// variables, and CLI flags, in that order (teacher's internal/config/config.go
// layering, generalized to Trinitas's sections).
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"backend.max_tokens":              DefaultBackendMaxTokens,
		"backend.timeout":                 DefaultBackendTimeout,
		"backend.probe_interval":          DefaultBackendProbeInterval,
		"backend.connection_cap":          DefaultBackendConnectionCap,
		"router.local_heavy_threshold":    DefaultRouterLocalHeavyThreshold,
		"router.max_attempts_per_backend": DefaultRouterMaxAttemptsPerBackend,
		"router.max_backoff":              DefaultRouterMaxBackoff,

		"delegation.heavy_decompose_threshold":      DefaultDelegationHeavyDecomposeThreshold,
		"delegation.pressure_threshold":              DefaultDelegationPressureThreshold,
		"delegation.local_force_threshold":           DefaultDelegationLocalForceThreshold,
		"delegation.required_tools_force_threshold":  DefaultDelegationRequiredToolsForceThreshold,

		"session.max_memory_mb":          DefaultSessionMaxMemoryMB,
		"session.max_cpu_percent":        DefaultSessionMaxCPUPercent,
		"session.max_concurrent_requests": DefaultSessionMaxConcurrentRequests,
		"session.max_session_duration":    DefaultSessionMaxSessionDuration,
		"session.max_context_size_mb":     DefaultSessionMaxContextSizeMB,

		"pool.min_size": DefaultPoolMinSize,
		"pool.max_size": DefaultPoolMaxSize,

		"orchestrator.max_memory_percent":   DefaultOrchestratorMaxMemoryPercent,
		"orchestrator.max_cpu_percent":      DefaultOrchestratorMaxCPUPercent,
		"orchestrator.idle_timeout":         DefaultOrchestratorIdleTimeout,
		"orchestrator.drain_timeout":        DefaultOrchestratorDrainTimeout,
		"orchestrator.handoff_ttl":          DefaultOrchestratorHandoffTTL,
		"orchestrator.maintenance_interval": DefaultOrchestratorMaintenanceInterval,
		"orchestrator.max_workers":          DefaultOrchestratorMaxWorkers,
		"orchestrator.handoff_dir":          filepath.Join(os.TempDir(), "trinitas", "handoff"),

		"mode":          DefaultMode,
		"load_strategy": DefaultLoadStrategy,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".trinitas", "config.yaml")
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	k.Load(env.Provider("TRINITAS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TRINITAS_")), "_", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	applyNamedEnvOverrides(&cfg)

	return &cfg, nil
}

// applyNamedEnvOverrides applies spec.md §6's explicitly-named environment
// variables, which take precedence over the generic TRINITAS_ prefix
// because operators (and the original Python service) set these directly.
func applyNamedEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOCAL_LLM_ENDPOINT"); v != "" {
		cfg.Backend.LocalEndpoint = v
	}
	if v := os.Getenv("LOCAL_LLM_MODEL"); v != "" {
		cfg.Backend.LocalModel = v
	}
	if v := os.Getenv("LOCAL_LLM_API_KEY"); v != "" {
		cfg.Backend.LocalAPIKey = v
	}
	if v := os.Getenv("MAIN_ENDPOINT"); v != "" {
		cfg.Backend.MainEndpoint = v
	}
	if v := os.Getenv("MAIN_API_KEY"); v != "" {
		cfg.Backend.MainAPIKey = v
	}
	if v := os.Getenv("TRINITAS_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("ORCHESTRATOR_MIN_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MinSize = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_MAX_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxSize = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxWorkers = n
		}
	}
	if v := os.Getenv("LOAD_STRATEGY"); v != "" {
		cfg.LoadStrategy = v
	}
}
