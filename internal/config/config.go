package config

import "context"

// Package config provides configuration management for resilitics.
//
// Responsibilities:
//   - Load configuration from YAML files, environment variables, and CLI flags
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for some settings)
//   - Manage sensitive data (API tokens, kubeconfig paths)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (RESILITICS_* prefix)
//   3. YAML config files (default: /etc/resilitics/config.yaml)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Analysis
//      - strategy: "global" | "local" | "detrended" | "gap"
//      - before_seconds: pre-event window length (default 60)
//      - after_seconds: post-event window length (default 60)
//      - omit_seconds: warmup/cooldown trimmed from global baselines (default 60)
//      - baseline_path: optional clean-run CSV for the global strategy
//      - latency_match: substring selecting the latency column
//      - throughput_match: substring selecting the throughput column
//      - check_rate_columns: exact names of check-rate columns
//      - not_available_marker: report placeholder for missing windows
//
//   2. Server
//      - port: Listen port (default 8080)
//      - allowed_origins: origins permitted for CORS and WebSocket upgrades
//
//   3. Database
//      - type: "sqlite" | "postgres"
//      - sqlite_path: Path to SQLite file
//      - postgres_url: PostgreSQL connection string
//
//   4. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//      - file: optional log file with rotation (empty logs to stderr)
//
//   5. Telemetry
//      - enabled: emit OTLP traces
//      - endpoint: collector address
//      - protocol: "grpc" | "http"
//      - sample_rate: trace sampling ratio (0.0 to 1.0)
//
//   6. Chaos
//      - namespace, selector: which pods the injector may terminate
//      - interval_seconds, count: termination cadence and batch size
//      - dry_run: record events without deleting (default true)
//
//   7. Annotate
//      - grafana_url: Grafana base URL for posting annotations
//      - tags: annotation tags
//
//   8. Watch
//      - directory: directory scanned for new result/event CSV pairs
//      - settle_seconds: quiet period before a new file is considered complete
//
// Config struct contains all configuration fields
type Config struct {
	// Analysis configuration
	Analysis struct {
		Strategy           string
		BeforeSeconds      int
		AfterSeconds       int
		OmitSeconds        int
		BaselinePath       string
		LatencyMatch       string
		ThroughputMatch    string
		CheckRateColumns   []string
		NotAvailableMarker string
	}

	// Server configuration
	Server struct {
		Port int
		// AllowedOrigins is a list of origins permitted for CORS requests and
		// WebSocket connections. Use ["*"] to allow any origin.
		AllowedOrigins []string
	}

	// Database configuration
	Database struct {
		Type        string
		SQLitePath  string
		PostgresURL string
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	// Telemetry configuration
	Telemetry struct {
		Enabled    bool
		Endpoint   string
		Protocol   string
		SampleRate float64
	}

	// Chaos configuration
	Chaos struct {
		Kubeconfig      string
		Namespace       string
		Selector        string
		IntervalSeconds int
		Count           int
		DryRun          bool
		GraceSeconds    int
		EventLogPath    string
	}

	// Annotate configuration
	Annotate struct {
		GrafanaURL     string
		Token          string
		Tags           []string
		TimeoutSeconds int
	}

	// Watch configuration
	Watch struct {
		Directory     string
		ResultsSuffix string
		EventsSuffix  string
		SettleSeconds int
		OutputDir     string
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/resilitics/config.yaml")
}
