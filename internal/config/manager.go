package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix("RESILITICS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	// Try to read config file (optional)
	if err := m.viper.ReadInConfig(); err != nil {
		// Config file not found is OK, we'll use defaults + env vars.
		// Check both ConfigFileNotFoundError and os.IsNotExist for file not found.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper, use defaults
		} else if os.IsNotExist(err) {
			// File not found via os, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides for sensitive data
	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		// Combine all errors into a single error message
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	// Start watching config file
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		// Reload config
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.applyEnvOverrides()
		// Send updated config to channel
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	// Re-read config file
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Analysis defaults
	m.viper.SetDefault("analysis.strategy", defaults.Analysis.Strategy)
	m.viper.SetDefault("analysis.before_seconds", defaults.Analysis.BeforeSeconds)
	m.viper.SetDefault("analysis.after_seconds", defaults.Analysis.AfterSeconds)
	m.viper.SetDefault("analysis.omit_seconds", defaults.Analysis.OmitSeconds)
	m.viper.SetDefault("analysis.baseline_path", defaults.Analysis.BaselinePath)
	m.viper.SetDefault("analysis.latency_match", defaults.Analysis.LatencyMatch)
	m.viper.SetDefault("analysis.throughput_match", defaults.Analysis.ThroughputMatch)
	m.viper.SetDefault("analysis.check_rate_columns", defaults.Analysis.CheckRateColumns)
	m.viper.SetDefault("analysis.not_available_marker", defaults.Analysis.NotAvailableMarker)

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	// Database defaults
	m.viper.SetDefault("database.type", defaults.Database.Type)
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)
	m.viper.SetDefault("database.postgres_url", defaults.Database.PostgresURL)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)

	// Telemetry defaults
	m.viper.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	m.viper.SetDefault("telemetry.endpoint", defaults.Telemetry.Endpoint)
	m.viper.SetDefault("telemetry.protocol", defaults.Telemetry.Protocol)
	m.viper.SetDefault("telemetry.sample_rate", defaults.Telemetry.SampleRate)

	// Chaos defaults
	m.viper.SetDefault("chaos.kubeconfig", defaults.Chaos.Kubeconfig)
	m.viper.SetDefault("chaos.namespace", defaults.Chaos.Namespace)
	m.viper.SetDefault("chaos.selector", defaults.Chaos.Selector)
	m.viper.SetDefault("chaos.interval_seconds", defaults.Chaos.IntervalSeconds)
	m.viper.SetDefault("chaos.count", defaults.Chaos.Count)
	m.viper.SetDefault("chaos.dry_run", defaults.Chaos.DryRun)
	m.viper.SetDefault("chaos.grace_seconds", defaults.Chaos.GraceSeconds)
	m.viper.SetDefault("chaos.event_log_path", defaults.Chaos.EventLogPath)

	// Annotate defaults
	m.viper.SetDefault("annotate.grafana_url", defaults.Annotate.GrafanaURL)
	m.viper.SetDefault("annotate.token", defaults.Annotate.Token)
	m.viper.SetDefault("annotate.tags", defaults.Annotate.Tags)
	m.viper.SetDefault("annotate.timeout_seconds", defaults.Annotate.TimeoutSeconds)

	// Watch defaults
	m.viper.SetDefault("watch.directory", defaults.Watch.Directory)
	m.viper.SetDefault("watch.results_suffix", defaults.Watch.ResultsSuffix)
	m.viper.SetDefault("watch.events_suffix", defaults.Watch.EventsSuffix)
	m.viper.SetDefault("watch.settle_seconds", defaults.Watch.SettleSeconds)
	m.viper.SetDefault("watch.output_dir", defaults.Watch.OutputDir)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Analysis
	cfg.Analysis.Strategy = m.viper.GetString("analysis.strategy")
	cfg.Analysis.BeforeSeconds = m.viper.GetInt("analysis.before_seconds")
	cfg.Analysis.AfterSeconds = m.viper.GetInt("analysis.after_seconds")
	cfg.Analysis.OmitSeconds = m.viper.GetInt("analysis.omit_seconds")
	cfg.Analysis.BaselinePath = m.viper.GetString("analysis.baseline_path")
	cfg.Analysis.LatencyMatch = m.viper.GetString("analysis.latency_match")
	cfg.Analysis.ThroughputMatch = m.viper.GetString("analysis.throughput_match")
	cfg.Analysis.CheckRateColumns = m.viper.GetStringSlice("analysis.check_rate_columns")
	cfg.Analysis.NotAvailableMarker = m.viper.GetString("analysis.not_available_marker")

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	// Database
	cfg.Database.Type = m.viper.GetString("database.type")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")
	cfg.Database.PostgresURL = m.viper.GetString("database.postgres_url")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	// Telemetry
	cfg.Telemetry.Enabled = m.viper.GetBool("telemetry.enabled")
	cfg.Telemetry.Endpoint = m.viper.GetString("telemetry.endpoint")
	cfg.Telemetry.Protocol = m.viper.GetString("telemetry.protocol")
	cfg.Telemetry.SampleRate = m.viper.GetFloat64("telemetry.sample_rate")

	// Chaos
	cfg.Chaos.Kubeconfig = m.viper.GetString("chaos.kubeconfig")
	cfg.Chaos.Namespace = m.viper.GetString("chaos.namespace")
	cfg.Chaos.Selector = m.viper.GetString("chaos.selector")
	cfg.Chaos.IntervalSeconds = m.viper.GetInt("chaos.interval_seconds")
	cfg.Chaos.Count = m.viper.GetInt("chaos.count")
	cfg.Chaos.DryRun = m.viper.GetBool("chaos.dry_run")
	cfg.Chaos.GraceSeconds = m.viper.GetInt("chaos.grace_seconds")
	cfg.Chaos.EventLogPath = m.viper.GetString("chaos.event_log_path")

	// Annotate
	cfg.Annotate.GrafanaURL = m.viper.GetString("annotate.grafana_url")
	cfg.Annotate.Token = m.viper.GetString("annotate.token")
	cfg.Annotate.Tags = m.viper.GetStringSlice("annotate.tags")
	cfg.Annotate.TimeoutSeconds = m.viper.GetInt("annotate.timeout_seconds")

	// Watch
	cfg.Watch.Directory = m.viper.GetString("watch.directory")
	cfg.Watch.ResultsSuffix = m.viper.GetString("watch.results_suffix")
	cfg.Watch.EventsSuffix = m.viper.GetString("watch.events_suffix")
	cfg.Watch.SettleSeconds = m.viper.GetInt("watch.settle_seconds")
	cfg.Watch.OutputDir = m.viper.GetString("watch.output_dir")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	// Grafana API token from environment
	if token := os.Getenv("GRAFANA_API_TOKEN"); token != "" {
		m.config.Annotate.Token = token
	}

	// Kubeconfig from the standard environment variable when not set explicitly
	if m.config.Chaos.Kubeconfig == "" {
		if path := os.Getenv("KUBECONFIG"); path != "" {
			m.config.Chaos.Kubeconfig = path
		}
	}

	// Port from environment - only override if explicitly set
	if portEnv := os.Getenv("RESILITICS_PORT"); portEnv != "" {
		// Port was explicitly set via environment, so viper has the value
		m.config.Server.Port = m.viper.GetInt("port")
	}
}
