package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resilitics/resilitics/internal/annotate"
	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/impact"
)

// newAnnotateCmd returns the Grafana annotation command.
func newAnnotateCmd(a *app) *cobra.Command {
	var (
		runID        string
		grafanaURL   string
		token        string
		strategy     string
		baselinePath string
	)

	cmd := &cobra.Command{
		Use:   "annotate [RESULTS_CSV EVENTS_CSV]",
		Short: "Post termination markers and impact annotations to Grafana",
		Long: `Post one annotation per pod termination and one per significant metric
deviation, so load-test dashboards show what happened and when.

Input is either a results/events CSV pair, which is analyzed first, or a
stored run referenced by --run. The Grafana URL and token come from the
annotate configuration section; GRAFANA_API_TOKEN is read from the
environment when the token is not configured.

Examples:

  # Analyze a pair and annotate the outcome
  resilitics annotate run1_results.csv run1_events.csv

  # Annotate a run that is already stored
  resilitics annotate --run 9f31c2e4-5d2b-4c1a-b8e7-2f90d1a6c3f4`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			if grafanaURL != "" {
				cfg.Annotate.GrafanaURL = grafanaURL
			}
			if token != "" {
				cfg.Annotate.Token = token
			}
			logger, err := a.buildLogger(ctx)
			if err != nil {
				return err
			}

			client, err := annotate.NewClient(cfg, logger)
			if err != nil {
				return err
			}

			var results []impact.Result
			switch {
			case runID != "" && len(args) > 0:
				return fmt.Errorf("--run cannot be combined with input files")
			case runID != "":
				st, err := a.openStore(cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				rec, err := st.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				results = resultsFromRecord(rec)
			case len(args) == 2:
				eng := engine.New(cfg, nil, logger)
				analysis, err := eng.Analyze(ctx, engine.Request{
					ResultsPath:  args[0],
					EventsPath:   args[1],
					BaselinePath: baselinePath,
					Strategy:     strategy,
				})
				if err != nil {
					return err
				}
				results = analysis.Results
			default:
				return fmt.Errorf("provide RESULTS_CSV and EVENTS_CSV, or --run ID")
			}

			if err := client.AnnotateRun(ctx, results); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "annotated %s on %s\n", plural(len(results), "event"), cfg.Annotate.GrafanaURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "annotate a stored run instead of analyzing files")
	cmd.Flags().StringVar(&grafanaURL, "grafana-url", "", "Grafana base URL (overrides config)")
	cmd.Flags().StringVar(&token, "token", "", "Grafana service account token (overrides config)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "baseline strategy for the analysis (overrides config)")
	cmd.Flags().StringVar(&baselinePath, "baseline", "", "known-clean results CSV for the global strategy")
	return cmd
}
