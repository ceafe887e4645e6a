package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test analysis defaults
	assert.Equal(t, "global", cfg.Analysis.Strategy)
	assert.Equal(t, 60, cfg.Analysis.BeforeSeconds)
	assert.Equal(t, 60, cfg.Analysis.AfterSeconds)
	assert.Equal(t, 60, cfg.Analysis.OmitSeconds)
	assert.Equal(t, "Latency", cfg.Analysis.LatencyMatch)
	assert.Equal(t, "Throughput", cfg.Analysis.ThroughputMatch)
	assert.Contains(t, cfg.Analysis.CheckRateColumns, "ChecksRate")
	assert.Equal(t, "N/A", cfg.Analysis.NotAvailableMarker)

	// Test server defaults
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)

	// Test database defaults
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.NotEmpty(t, cfg.Database.SQLitePath)

	// Test logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Test telemetry defaults
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)

	// Test chaos defaults
	assert.True(t, cfg.Chaos.DryRun)
	assert.Equal(t, "default", cfg.Chaos.Namespace)
	assert.Equal(t, 30, cfg.Chaos.IntervalSeconds)
	assert.Equal(t, 1, cfg.Chaos.Count)

	// Test annotate defaults
	assert.Equal(t, 10, cfg.Annotate.TimeoutSeconds)
	assert.Contains(t, cfg.Annotate.Tags, "resilitics")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name: "invalid strategy",
			modifyFn: func(cfg *Config) {
				cfg.Analysis.Strategy = "median"
			},
			wantError: true,
			errorMsg:  "invalid strategy",
		},
		{
			name: "before window too short",
			modifyFn: func(cfg *Config) {
				cfg.Analysis.BeforeSeconds = 0
			},
			wantError: true,
			errorMsg:  "before_seconds must be at least 1",
		},
		{
			name: "after window too short",
			modifyFn: func(cfg *Config) {
				cfg.Analysis.AfterSeconds = -5
			},
			wantError: true,
			errorMsg:  "after_seconds must be at least 1",
		},
		{
			name: "negative omit seconds",
			modifyFn: func(cfg *Config) {
				cfg.Analysis.OmitSeconds = -1
			},
			wantError: true,
			errorMsg:  "omit_seconds cannot be negative",
		},
		{
			name: "missing latency match",
			modifyFn: func(cfg *Config) {
				cfg.Analysis.LatencyMatch = ""
			},
			wantError: true,
			errorMsg:  "latency_match is required",
		},
		{
			name: "invalid port - too low",
			modifyFn: func(cfg *Config) {
				cfg.Server.Port = 0
			},
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name: "invalid port - too high",
			modifyFn: func(cfg *Config) {
				cfg.Server.Port = 70000
			},
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name: "invalid database type",
			modifyFn: func(cfg *Config) {
				cfg.Database.Type = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid database type",
		},
		{
			name: "missing sqlite path",
			modifyFn: func(cfg *Config) {
				cfg.Database.Type = "sqlite"
				cfg.Database.SQLitePath = ""
			},
			wantError: true,
			errorMsg:  "sqlite_path is required",
		},
		{
			name: "missing postgres url",
			modifyFn: func(cfg *Config) {
				cfg.Database.Type = "postgres"
				cfg.Database.PostgresURL = ""
			},
			wantError: true,
			errorMsg:  "postgres_url is required",
		},
		{
			name: "invalid log level",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Level = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name: "invalid log format",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Format = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log format",
		},
		{
			name: "telemetry enabled without endpoint",
			modifyFn: func(cfg *Config) {
				cfg.Telemetry.Enabled = true
				cfg.Telemetry.Endpoint = ""
			},
			wantError: true,
			errorMsg:  "endpoint is required",
		},
		{
			name: "invalid telemetry protocol",
			modifyFn: func(cfg *Config) {
				cfg.Telemetry.Enabled = true
				cfg.Telemetry.Protocol = "udp"
			},
			wantError: true,
			errorMsg:  "invalid protocol",
		},
		{
			name: "sample rate out of range",
			modifyFn: func(cfg *Config) {
				cfg.Telemetry.SampleRate = 1.5
			},
			wantError: true,
			errorMsg:  "sample_rate must be between",
		},
		{
			name: "chaos interval too short",
			modifyFn: func(cfg *Config) {
				cfg.Chaos.IntervalSeconds = 0
			},
			wantError: true,
			errorMsg:  "interval_seconds must be at least 1",
		},
		{
			name: "chaos count too low",
			modifyFn: func(cfg *Config) {
				cfg.Chaos.Count = 0
			},
			wantError: true,
			errorMsg:  "count must be at least 1",
		},
		{
			name: "annotate timeout too short",
			modifyFn: func(cfg *Config) {
				cfg.Annotate.TimeoutSeconds = 0
			},
			wantError: true,
			errorMsg:  "timeout_seconds must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()

			if tt.wantError {
				assert.NotEmpty(t, errs, "expected validation errors but got none")
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.errorMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected error message containing '%s', got: %v", tt.errorMsg, errs)
			} else {
				assert.Empty(t, errs, "expected no validation errors but got: %v", errs)
			}
		})
	}
}

func TestConfigManagerLoad(t *testing.T) {
	// Create temp directory for config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Create minimal valid config file
	configContent := `
analysis:
  strategy: "detrended"
  before_seconds: 120
  after_seconds: 90
  check_rate_columns:
    - "ChecksRate"

server:
  port: 9090

database:
  type: "sqlite"
  sqlite_path: "/tmp/resilitics-test.db"

logging:
  level: "debug"
  format: "text"

chaos:
  namespace: "loadtest"
  dry_run: false
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Create config manager
	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	// Load config
	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	// Get config
	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	// Verify loaded values
	assert.Equal(t, "detrended", cfg.Analysis.Strategy)
	assert.Equal(t, 120, cfg.Analysis.BeforeSeconds)
	assert.Equal(t, 90, cfg.Analysis.AfterSeconds)
	assert.Equal(t, []string{"ChecksRate"}, cfg.Analysis.CheckRateColumns)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/resilitics-test.db", cfg.Database.SQLitePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "loadtest", cfg.Chaos.Namespace)
	assert.False(t, cfg.Chaos.DryRun)

	// Unset fields keep their defaults
	assert.Equal(t, 60, cfg.Analysis.OmitSeconds)
	assert.Equal(t, "Latency", cfg.Analysis.LatencyMatch)
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("RESILITICS_ANALYSIS_STRATEGY", "gap")
	os.Setenv("RESILITICS_PORT", "7070")
	os.Setenv("GRAFANA_API_TOKEN", "env-grafana-token")
	defer func() {
		os.Unsetenv("RESILITICS_ANALYSIS_STRATEGY")
		os.Unsetenv("RESILITICS_PORT")
		os.Unsetenv("GRAFANA_API_TOKEN")
	}()

	// Create temp directory for config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Create config file with different values
	configContent := `
analysis:
  strategy: "local"

server:
  port: 8080
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Create config manager and load
	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)

	// Environment variables should override config file
	assert.Equal(t, "gap", cfg.Analysis.Strategy, "strategy should be overridden by environment variable")
	assert.Equal(t, 7070, cfg.Server.Port, "PORT should be overridden by environment variable")
	assert.Equal(t, "env-grafana-token", cfg.Annotate.Token, "token should come from environment variable")
}

func TestConfigManagerMissingFile(t *testing.T) {
	// Use non-existent config file path
	configPath := "/tmp/nonexistent-resilitics-config.yaml"

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	// Should not error - should use defaults
	require.NoError(t, err)

	cfg := mgr.Get(ctx)
	assert.NotNil(t, cfg)
	// Should have default values
	assert.Equal(t, "global", cfg.Analysis.Strategy)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestConfigManagerValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Create invalid config file
	configContent := `
analysis:
  strategy: "percentile"

server:
  port: 99999

database:
  type: "mongodb"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	// Validation should fail
	err = mgr.Validate(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "invalid strategy")
	assert.Contains(t, err.Error(), "invalid database type")
}
