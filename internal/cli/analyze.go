package cli

import (
	"github.com/spf13/cobra"

	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/store"
)

// newAnalyzeCmd returns the one-shot analysis command.
func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		baselinePath string
		strategy     string
		csvPath      string
		jsonPath     string
		save         bool
	)

	cmd := &cobra.Command{
		Use:   "analyze RESULTS_CSV EVENTS_CSV",
		Short: "Assess pod-termination impact from a results and event log pair",
		Long: `Pair a load-test results CSV with a pod termination event log and measure,
for every termination, how each tracked metric moved against its baseline.

The results CSV needs a timestamp column plus the metric columns selected by
the analysis configuration (latency/throughput substring matches and the
check-rate column names). The event log needs exactly the columns the chaos
command writes: Pod, Termination Time, Status.

The verdict table is printed to stdout; --csv and --json write the full
report with every window statistic.

Examples:

  # Analyze with the configured strategy
  resilitics analyze run1_results.csv run1_events.csv

  # Compare against a known-clean run instead of the test's own samples
  resilitics analyze run1_results.csv run1_events.csv \
      --strategy global --baseline clean_results.csv

  # Keep the full report and store the run in the database
  resilitics analyze run1_results.csv run1_events.csv \
      --csv run1_impact.csv --json run1_impact.json --save`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
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

			// One-shot runs stay out of the database unless asked; --save is
			// the opt-in that makes them show up under 'resilitics runs'.
			var st store.Store
			if save {
				if st, err = a.openStore(cfg); err != nil {
					return err
				}
				defer st.Close()
			}

			eng := engine.New(cfg, st, logger)
			analysis, err := eng.Analyze(ctx, engine.Request{
				ResultsPath:  args[0],
				EventsPath:   args[1],
				BaselinePath: baselinePath,
				Strategy:     strategy,
			})
			if err != nil {
				return err
			}
			if err := eng.WriteReports(analysis, csvPath, jsonPath); err != nil {
				return err
			}

			renderAnalysis(a.stdout, analysis, cfg.Analysis.NotAvailableMarker)
			return nil
		},
	}

	cmd.Flags().StringVar(&baselinePath, "baseline", "", "known-clean results CSV for the global strategy")
	cmd.Flags().StringVar(&strategy, "strategy", "", "baseline strategy: global, local, detrended, or gap (overrides config)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write the full report CSV to this path")
	cmd.Flags().StringVar(&jsonPath, "json", "", "write the report JSON to this path")
	cmd.Flags().BoolVar(&save, "save", false, "persist the run to the configured database")
	return cmd
}
