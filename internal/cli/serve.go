package cli

import (
	"github.com/spf13/cobra"

	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/server"
)

// newServeCmd returns the HTTP API server command.
func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		Long: `Run the resilitics HTTP API.

Endpoints live under /api/v1: POST /analyze triggers a run (JSON paths or a
multipart upload), /runs browses stored history, and /stream is a websocket
feed of run lifecycle events. Liveness and readiness probes are at /healthz,
Prometheus metrics at /metrics. Every run is persisted to the configured
database.

Runs until interrupted, then drains in-flight requests before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			logger, err := a.buildLogger(ctx)
			if err != nil {
				return err
			}
			shutdown, err := a.initTelemetry(cfg)
			if err != nil {
				return err
			}
			defer shutdown()

			st, err := a.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			eng := engine.New(cfg, st, logger)
			srv, err := server.New(cfg, eng, st, logger)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}

			<-ctx.Done()
			return srv.Stop()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}
