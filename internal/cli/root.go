// Package cli wires the resilitics subcommands.
//
// Responsibilities:
//   - Assemble the cobra command tree and global flags
//   - Load and validate configuration once per invocation
//   - Build the process logger and hand shared dependencies to subcommands
//   - Render human-readable reports to the terminal
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/config"
	"github.com/resilitics/resilitics/internal/logging"
	"github.com/resilitics/resilitics/internal/store"
	"github.com/resilitics/resilitics/internal/telemetry"
	"github.com/resilitics/resilitics/internal/version"
)

const defaultConfigPath = "/etc/resilitics/config.yaml"

type app struct {
	configFile string
	logLevel   string
	yes        bool

	cfgOnce sync.Once
	cfg     *config.Config
	cfgErr  error

	logOnce sync.Once
	logger  *zap.Logger
	logErr  error

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{
		stdin:  in,
		stdout: out,
		stderr: errOut,
	}

	cmd := &cobra.Command{
		Use:           "resilitics",
		Short:         "Measure how pod terminations move load-test metrics",
		Long:          "resilitics pairs a load-test results CSV with a pod termination event log, compares each metric's post-termination window against a baseline, and reports which deviations are statistically significant. It can also run the terminations itself, watch a directory for new result pairs, serve the analyses over HTTP, and push annotations to Grafana.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}

	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default "+defaultConfigPath+")")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&a.yes, "yes", false, "skip safety confirmations for destructive commands")

	cmd.AddCommand(
		newAnalyzeCmd(a),
		newChaosCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newAnnotateCmd(a),
		newRunsCmd(a),
	)

	cmd.SetVersionTemplate(fmt.Sprintf("resilitics {{.Version}} (commit %s, built %s)\n", version.Commit, version.BuildDate))
	cmd.SetErrPrefix("resilitics: ")
	cmd.SetIn(in)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

// loadConfig loads and validates configuration exactly once per invocation.
// The --log-level override is applied after validation so a bad value fails
// in the logger constructor with a clear message.
func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	a.cfgOnce.Do(func() {
		path := a.configFile
		if path == "" {
			path = defaultConfigPath
		}
		mgr, err := config.NewConfigManager(path)
		if err != nil {
			a.cfgErr = err
			return
		}
		if err := mgr.Load(ctx); err != nil {
			a.cfgErr = err
			return
		}
		if err := mgr.Validate(ctx); err != nil {
			a.cfgErr = err
			return
		}
		a.cfg = mgr.Get(ctx)
		if a.logLevel != "" {
			a.cfg.Logging.Level = a.logLevel
		}
	})
	return a.cfg, a.cfgErr
}

// buildLogger constructs the process logger from the logging config section.
func (a *app) buildLogger(ctx context.Context) (*zap.Logger, error) {
	a.logOnce.Do(func() {
		cfg, err := a.loadConfig(ctx)
		if err != nil {
			a.logErr = err
			return
		}
		a.logger, a.logErr = logging.New(&logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		})
	})
	return a.logger, a.logErr
}

// openStore opens the configured run store. The caller closes it.
func (a *app) openStore(cfg *config.Config) (store.Store, error) {
	st, err := store.New(store.Config{
		Type:        cfg.Database.Type,
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresURL: cfg.Database.PostgresURL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Database.Type, err)
	}
	return st, nil
}

// initTelemetry starts trace export when enabled. The returned cleanup is
// safe to defer unconditionally.
func (a *app) initTelemetry(cfg *config.Config) (func(), error) {
	return telemetry.Init(telemetry.Config{
		ServiceName: "resilitics",
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
}

// confirm prompts on stderr before a destructive action. Returns nil when
// the action may proceed.
func (a *app) confirm(action string) error {
	if a.yes {
		return nil
	}
	fmt.Fprintf(a.stderr, "⚠  %s\n", action)
	fmt.Fprint(a.stderr, "Continue? [y/N]: ")
	if !readYesNo(a.stdin) {
		return fmt.Errorf("aborted by user")
	}
	return nil
}

// readYesNo reads a single line from r and returns true for "y" or "yes".
func readYesNo(r io.Reader) bool {
	buf := make([]byte, 64)
	n, _ := r.Read(buf)
	ans := strings.ToLower(strings.TrimSpace(string(buf[:n])))
	return ans == "y" || ans == "yes"
}
