package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/resilitics/resilitics/internal/chaos"
)

// newChaosCmd returns the pod termination scheduler command.
func newChaosCmd(a *app) *cobra.Command {
	var (
		planPath     string
		namespace    string
		selector     string
		interval     time.Duration
		count        int
		grace        int
		dryRun       bool
		eventLogPath string
		duration     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Terminate pods on a schedule and record the event log",
		Long: `Terminate random pods from the configured targets at a fixed interval and
record every attempt in a CSV event log that 'resilitics analyze' ingests
directly.

Targets come from a plan file (--plan) or from the chaos configuration
section plus the --namespace/--selector flags. Dry-run is the default
everywhere: pods are picked and logged but never deleted until real
deletions are enabled explicitly with --dry-run=false (plan files opt in
with 'dryRun: false').

The run continues until interrupted or until --duration elapses. A typical
session starts the load test, runs chaos alongside it, then analyzes:

  resilitics chaos -n loadtest -l app=api --interval 30s \
      --duration 10m --events run1_events.csv --dry-run=false
  resilitics analyze run1_results.csv run1_events.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			logger, err := a.buildLogger(ctx)
			if err != nil {
				return err
			}

			if interval > 0 && interval < time.Second {
				return fmt.Errorf("--interval must be at least 1s, got %s", interval)
			}

			var plan *chaos.Plan
			if planPath != "" {
				if cmd.Flags().Changed("namespace") || cmd.Flags().Changed("selector") {
					return fmt.Errorf("--namespace/--selector cannot be combined with --plan")
				}
				if plan, err = chaos.LoadPlan(planPath); err != nil {
					return err
				}
			} else {
				if cmd.Flags().Changed("namespace") {
					cfg.Chaos.Namespace = namespace
				}
				if cmd.Flags().Changed("selector") {
					cfg.Chaos.Selector = selector
				}
				plan = chaos.PlanFromConfig(cfg)
			}

			// Cadence flags override whichever plan source was used.
			if cmd.Flags().Changed("interval") {
				plan.IntervalSeconds = int(interval.Seconds())
			}
			if cmd.Flags().Changed("count") {
				plan.Count = count
			}
			if cmd.Flags().Changed("grace") {
				plan.GraceSeconds = grace
			}
			if cmd.Flags().Changed("dry-run") {
				plan.DryRun = &dryRun
			}
			if cmd.Flags().Changed("events") {
				plan.EventLog = eventLogPath
			}
			if err := plan.Validate(); err != nil {
				return err
			}

			if !plan.DryRunEnabled() {
				msg := fmt.Sprintf("pods matching %d target(s) will really be deleted", len(plan.Targets))
				if err := a.confirm(msg); err != nil {
					return err
				}
			}

			client, err := chaos.NewClient(cfg.Chaos.Kubeconfig)
			if err != nil {
				return err
			}
			eventLog, err := chaos.NewEventLog(plan.EventLog)
			if err != nil {
				return err
			}
			defer eventLog.Close()

			sched, err := chaos.NewScheduler(client, plan, eventLog, logger)
			if err != nil {
				return err
			}

			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			if err := sched.Run(ctx); err != nil {
				return err
			}

			renderEventSummary(a.stdout, sched.Events(), plan.EventLog)
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "chaos plan file (YAML)")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace of the target pods (overrides config)")
	cmd.Flags().StringVarP(&selector, "selector", "l", "", "label selector for the target pods (overrides config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between strikes, at least 1s (overrides plan)")
	cmd.Flags().IntVar(&count, "count", 0, "pods terminated per strike (overrides plan)")
	cmd.Flags().IntVar(&grace, "grace", 0, "grace period seconds passed to the delete (overrides plan)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "record events without deleting pods")
	cmd.Flags().StringVar(&eventLogPath, "events", "", "event log CSV path (overrides plan)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (default: run until interrupted)")
	return cmd
}
