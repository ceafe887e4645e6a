package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resilitics/resilitics/internal/impact"
	"github.com/resilitics/resilitics/internal/stats"
	"github.com/resilitics/resilitics/internal/store"
)

// newRunsCmd returns the run history command group.
func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect analysis runs stored in the database",
	}
	cmd.AddCommand(
		newRunsListCmd(a),
		newRunsShowCmd(a),
		newRunsDeleteCmd(a),
	)
	return cmd
}

func newRunsListCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			st, err := a.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			renderRunList(a.stdout, recs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one stored run with all its assessments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			st, err := a.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			renderRunRecord(a.stdout, rec, cfg.Analysis.NotAvailableMarker)
			return nil
		},
	}
}

func newRunsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN_ID",
		Short: "Delete a stored run and all its assessments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			if err := a.confirm(fmt.Sprintf("run %s will be deleted permanently", args[0])); err != nil {
				return err
			}
			st, err := a.openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteRun(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "run %s deleted\n", args[0])
			return nil
		},
	}
}

// resultsFromRecord rebuilds assessment results from their stored form so
// stored runs render and annotate exactly like fresh ones.
func resultsFromRecord(rec *store.RunRecord) []impact.Result {
	results := make([]impact.Result, 0, len(rec.Events))
	for _, ev := range rec.Events {
		res := impact.Result{
			Event: impact.Event{
				Pod:     ev.Pod,
				Time:    ev.TerminationMS,
				Outcome: impact.Outcome(ev.Outcome),
			},
			HasFailures: ev.HasFailures,
			SuccessRate: ev.SuccessRate,
			ChecksSeen:  ev.ChecksSeen,
		}
		for _, as := range ev.Assessments {
			res.Metrics = append(res.Metrics, impact.MetricAssessment{
				Column:        as.Metric,
				Baseline:      stats.MetricStats{Count: as.BaselineCount, Mean: as.BaselineMean, StdDev: as.BaselineStdDev},
				Before:        stats.MetricStats{Count: as.BeforeCount, Mean: as.BeforeMean, StdDev: as.BeforeStdDev},
				After:         stats.MetricStats{Count: as.AfterCount, Mean: as.AfterMean, StdDev: as.AfterStdDev},
				Available:     as.Available,
				ZScore:        as.ZScore,
				PercentChange: as.PercentChange,
				ZLabel:        stats.Significance(as.ZLabel),
				PctLabel:      stats.Significance(as.PctLabel),
			})
		}
		results = append(results, res)
	}
	return results
}
