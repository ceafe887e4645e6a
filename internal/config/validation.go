package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate analysis configuration
	validStrategies := map[string]bool{
		"global":    true,
		"local":     true,
		"detrended": true,
		"gap":       true,
	}
	if !validStrategies[c.Analysis.Strategy] {
		errs = append(errs, &ValidationError{
			Field:   "analysis.strategy",
			Message: fmt.Sprintf("invalid strategy '%s', must be one of: global, local, detrended, gap", c.Analysis.Strategy),
		})
	}

	if c.Analysis.BeforeSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.before_seconds",
			Message: fmt.Sprintf("before_seconds must be at least 1, got %d", c.Analysis.BeforeSeconds),
		})
	}

	if c.Analysis.AfterSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.after_seconds",
			Message: fmt.Sprintf("after_seconds must be at least 1, got %d", c.Analysis.AfterSeconds),
		})
	}

	if c.Analysis.OmitSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.omit_seconds",
			Message: fmt.Sprintf("omit_seconds cannot be negative, got %d", c.Analysis.OmitSeconds),
		})
	}

	if c.Analysis.LatencyMatch == "" {
		errs = append(errs, &ValidationError{
			Field:   "analysis.latency_match",
			Message: "latency_match is required",
		})
	}

	if c.Analysis.ThroughputMatch == "" {
		errs = append(errs, &ValidationError{
			Field:   "analysis.throughput_match",
			Message: "throughput_match is required",
		})
	}

	if c.Analysis.NotAvailableMarker == "" {
		errs = append(errs, &ValidationError{
			Field:   "analysis.not_available_marker",
			Message: "not_available_marker is required",
		})
	}

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	// Validate database configuration
	validDatabaseTypes := map[string]bool{
		"sqlite":   true,
		"postgres": true,
	}
	if !validDatabaseTypes[c.Database.Type] {
		errs = append(errs, &ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("invalid database type '%s', must be one of: sqlite, postgres", c.Database.Type),
		})
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, &ValidationError{
				Field:   "database.sqlite_path",
				Message: "sqlite_path is required when database type is sqlite",
			})
		}
	case "postgres":
		if c.Database.PostgresURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "database.postgres_url",
				Message: "postgres_url is required when database type is postgres",
			})
		}
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	// Validate telemetry configuration
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, &ValidationError{
				Field:   "telemetry.endpoint",
				Message: "endpoint is required when telemetry is enabled",
			})
		}

		validProtocols := map[string]bool{
			"grpc": true,
			"http": true,
		}
		if !validProtocols[c.Telemetry.Protocol] {
			errs = append(errs, &ValidationError{
				Field:   "telemetry.protocol",
				Message: fmt.Sprintf("invalid protocol '%s', must be one of: grpc, http", c.Telemetry.Protocol),
			})
		}
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, &ValidationError{
			Field:   "telemetry.sample_rate",
			Message: fmt.Sprintf("sample_rate must be between 0.0 and 1.0, got %.2f", c.Telemetry.SampleRate),
		})
	}

	// Validate chaos configuration
	if c.Chaos.IntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "chaos.interval_seconds",
			Message: fmt.Sprintf("interval_seconds must be at least 1, got %d", c.Chaos.IntervalSeconds),
		})
	}

	if c.Chaos.Count < 1 {
		errs = append(errs, &ValidationError{
			Field:   "chaos.count",
			Message: fmt.Sprintf("count must be at least 1, got %d", c.Chaos.Count),
		})
	}

	if c.Chaos.GraceSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "chaos.grace_seconds",
			Message: fmt.Sprintf("grace_seconds cannot be negative, got %d", c.Chaos.GraceSeconds),
		})
	}

	// Validate annotate configuration
	if c.Annotate.TimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "annotate.timeout_seconds",
			Message: fmt.Sprintf("timeout_seconds must be at least 1, got %d", c.Annotate.TimeoutSeconds),
		})
	}

	// Validate watch configuration
	if c.Watch.SettleSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "watch.settle_seconds",
			Message: fmt.Sprintf("settle_seconds cannot be negative, got %d", c.Watch.SettleSeconds),
		})
	}

	return errs
}
