package cli

import (
	"github.com/spf13/cobra"

	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/watch"
)

// newWatchCmd returns the directory watching command.
func newWatchCmd(a *app) *cobra.Command {
	var (
		dir       string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and analyze each completed result pair",
		Long: `Watch a directory for result/event CSV pairs and run an analysis as soon
as both files of a pair exist and have stopped changing. Reports are written
next to the inputs (or to --output-dir) as <pair>_impact.csv and
<pair>_impact.json.

A pair is two files sharing a prefix with the configured suffixes, for
example run1_results.csv and run1_events.csv. Pairs already complete when
the watcher starts are analyzed too. Runs are persisted to the configured
database, so history stays queryable via 'resilitics runs'.

Runs until interrupted:

  resilitics watch --dir /data/loadtests`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dir") {
				cfg.Watch.Directory = dir
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Watch.OutputDir = outputDir
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
			w, err := watch.New(cfg, eng, logger)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to watch (overrides config)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory reports are written to (default: alongside the inputs)")
	return cmd
}
