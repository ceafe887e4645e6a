package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Analysis defaults
	cfg.Analysis.Strategy = "global"
	cfg.Analysis.BeforeSeconds = 60
	cfg.Analysis.AfterSeconds = 60
	cfg.Analysis.OmitSeconds = 60
	cfg.Analysis.BaselinePath = ""
	cfg.Analysis.LatencyMatch = "Latency"
	cfg.Analysis.ThroughputMatch = "Throughput"
	cfg.Analysis.CheckRateColumns = []string{"ChecksRate", "Checks Rate", "CheckRate"}
	cfg.Analysis.NotAvailableMarker = "N/A"

	// Server defaults
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"*"}

	// Database defaults
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "/var/lib/resilitics/resilitics.db"
	cfg.Database.PostgresURL = ""

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28

	// Telemetry defaults
	cfg.Telemetry.Enabled = false
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.Protocol = "grpc"
	cfg.Telemetry.SampleRate = 1.0

	// Chaos defaults
	cfg.Chaos.Kubeconfig = ""
	cfg.Chaos.Namespace = "default"
	cfg.Chaos.Selector = ""
	cfg.Chaos.IntervalSeconds = 30
	cfg.Chaos.Count = 1
	cfg.Chaos.DryRun = true // destructive mode must be requested explicitly
	cfg.Chaos.GraceSeconds = 0
	cfg.Chaos.EventLogPath = "events.csv"

	// Annotate defaults
	cfg.Annotate.GrafanaURL = ""
	cfg.Annotate.Token = ""
	cfg.Annotate.Tags = []string{"resilitics", "chaos"}
	cfg.Annotate.TimeoutSeconds = 10

	// Watch defaults
	cfg.Watch.Directory = ""
	cfg.Watch.ResultsSuffix = "_results.csv"
	cfg.Watch.EventsSuffix = "_events.csv"
	cfg.Watch.SettleSeconds = 2
	cfg.Watch.OutputDir = ""

	return cfg
}
