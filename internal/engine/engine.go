// Package engine orchestrates complete impact analysis runs.
//
// Responsibilities:
//   - Load the results series, the event log, and any clean baseline run
//   - Wire schema resolution, baseline strategy, and the assessor together
//   - Persist each run (including failed ones) to the configured store
//   - Emit run metrics and trace spans
//
// An Engine holds no per-run state; concurrent Analyze calls are safe.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/baseline"
	"github.com/resilitics/resilitics/internal/config"
	"github.com/resilitics/resilitics/internal/impact"
	"github.com/resilitics/resilitics/internal/ingest"
	"github.com/resilitics/resilitics/internal/metrics"
	"github.com/resilitics/resilitics/internal/report"
	"github.com/resilitics/resilitics/internal/store"
	"github.com/resilitics/resilitics/internal/telemetry"
	"github.com/resilitics/resilitics/internal/timeseries"
)

// Engine runs end-to-end impact analyses.
type Engine struct {
	cfg      *config.Config
	store    store.Store // nil disables persistence
	logger   *zap.Logger
	notifier Notifier // nil disables lifecycle notifications
}

// New creates an engine. The store may be nil when persistence is not wanted.
func New(cfg *config.Config, st store.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, store: st, logger: logger}
}

// Run lifecycle event types.
const (
	RunEventStarted   = "run_started"
	RunEventAssessed  = "event_assessed"
	RunEventCompleted = "run_completed"
	RunEventFailed    = "run_failed"
)

// RunEvent is one lifecycle notification emitted during Analyze.
type RunEvent struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Strategy   string    `json:"strategy"`
	Pod        string    `json:"pod,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	EventCount int       `json:"event_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier receives run lifecycle events, for example a websocket hub.
// Notify must not block.
type Notifier interface {
	Notify(RunEvent)
}

// SetNotifier registers a lifecycle event sink. Call before Analyze; the
// field is not guarded for concurrent mutation.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

func (e *Engine) notify(ev RunEvent) {
	if e.notifier == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	e.notifier.Notify(ev)
}

// Request identifies the inputs of one analysis run. Empty optional fields
// fall back to the configured defaults.
type Request struct {
	ResultsPath  string
	EventsPath   string
	BaselinePath string // optional known-clean run for the global strategy
	Strategy     string // optional strategy override
}

// Analysis is one completed run.
type Analysis struct {
	RunID    string
	Strategy string
	Schema   *ingest.Schema
	Results  []impact.Result
	Duration time.Duration
}

// Analyze executes one full run. Failed runs are recorded in the store with
// their error before the error is returned.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	start := time.Now().UTC()
	runID := uuid.New().String()

	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = e.cfg.Analysis.Strategy
	}
	baselinePath := req.BaselinePath
	if baselinePath == "" {
		baselinePath = e.cfg.Analysis.BaselinePath
	}

	ctx, span := telemetry.StartSpanWithAttributes(ctx, "engine.analyze",
		attribute.String("run.id", runID),
		attribute.String("baseline.strategy", strategyName),
	)
	defer span.End()

	logger := e.logger.With(zap.String("run_id", runID), zap.String("strategy", strategyName))
	logger.Info("starting impact analysis",
		zap.String("results", req.ResultsPath),
		zap.String("events", req.EventsPath),
	)
	e.notify(RunEvent{Type: RunEventStarted, RunID: runID, Strategy: strategyName})

	results, schema, err := e.run(strategyName, baselinePath, req)
	elapsed := time.Since(start)
	metrics.AnalysisDuration.WithLabelValues(strategyName).Observe(elapsed.Seconds())

	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues(strategyName, "error").Inc()
		e.persist(ctx, buildRunRecord(runID, strategyName, baselinePath, req, nil, start, err))
		e.notify(RunEvent{Type: RunEventFailed, RunID: runID, Strategy: strategyName, Error: err.Error()})
		logger.Error("impact analysis failed", zap.Error(err))
		return nil, err
	}

	metrics.AnalysisRunsTotal.WithLabelValues(strategyName, "ok").Inc()
	observeResults(results)

	analysis := &Analysis{
		RunID:    runID,
		Strategy: strategyName,
		Schema:   schema,
		Results:  results,
		Duration: elapsed,
	}
	e.persist(ctx, buildRunRecord(runID, strategyName, baselinePath, req, results, start, nil))

	// Per-event notifications go out after the run is persisted so that a
	// client reacting to the stream can immediately fetch the stored run.
	for i := range results {
		e.notify(RunEvent{
			Type:     RunEventAssessed,
			RunID:    runID,
			Strategy: strategyName,
			Pod:      results[i].Event.Pod,
			Outcome:  string(results[i].Event.Outcome),
		})
	}
	e.notify(RunEvent{Type: RunEventCompleted, RunID: runID, Strategy: strategyName, EventCount: len(results)})

	logger.Info("impact analysis complete",
		zap.Int("events", len(results)),
		zap.Duration("elapsed", elapsed),
	)
	return analysis, nil
}

// run performs the load-assess pipeline without side effects.
func (e *Engine) run(strategyName, baselinePath string, req Request) ([]impact.Result, *ingest.Schema, error) {
	icfg := ingest.Config{
		LatencyMatch:     e.cfg.Analysis.LatencyMatch,
		ThroughputMatch:  e.cfg.Analysis.ThroughputMatch,
		CheckRateColumns: e.cfg.Analysis.CheckRateColumns,
	}

	series, schema, err := ingest.LoadSeries(req.ResultsPath, icfg)
	if err != nil {
		return nil, nil, fmt.Errorf("loading results: %w", err)
	}

	events, err := ingest.LoadEvents(req.EventsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading events: %w", err)
	}

	var clean *timeseries.Series
	if baselinePath != "" {
		clean, _, err = ingest.LoadSeries(baselinePath, icfg)
		if err != nil {
			return nil, nil, fmt.Errorf("loading baseline run: %w", err)
		}
	}

	strategy, err := baseline.New(baseline.Config{
		Strategy:      strategyName,
		BeforeSeconds: e.cfg.Analysis.BeforeSeconds,
		OmitSeconds:   e.cfg.Analysis.OmitSeconds,
		Columns:       schema.TrackedMetrics(),
		CleanSeries:   clean,
	})
	if err != nil {
		return nil, nil, err
	}

	assessor := impact.NewAssessor(impact.Config{
		BeforeSeconds: e.cfg.Analysis.BeforeSeconds,
		AfterSeconds:  e.cfg.Analysis.AfterSeconds,
		Metrics:       schema.TrackedMetrics(),
		CheckColumns:  schema.CheckRates,
	}, strategy)

	results, err := assessor.Assess(series, events)
	if err != nil {
		return nil, nil, err
	}
	return results, schema, nil
}

// WriteReports renders the analysis to CSV and JSON files. An empty path
// skips that format.
func (e *Engine) WriteReports(a *Analysis, csvPath, jsonPath string) error {
	opts := report.Options{NotAvailable: e.cfg.Analysis.NotAvailableMarker}
	tracked := a.Schema.TrackedMetrics()

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return fmt.Errorf("creating report %s: %w", csvPath, err)
		}
		if err := report.WriteCSV(f, a.Results, tracked, opts); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing report %s: %w", csvPath, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	if jsonPath != "" {
		f, err := os.Create(jsonPath)
		if err != nil {
			return fmt.Errorf("creating report %s: %w", jsonPath, err)
		}
		if err := report.WriteJSON(f, a.Results); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing report %s: %w", jsonPath, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// persist saves the run record. Persistence failures are logged, never fatal.
func (e *Engine) persist(ctx context.Context, rec *store.RunRecord) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRun(ctx, rec); err != nil {
		e.logger.Warn("failed to persist run", zap.String("run_id", rec.ID), zap.Error(err))
	}
}

// observeResults feeds per-event counters from a successful run.
func observeResults(results []impact.Result) {
	for i := range results {
		r := &results[i]
		metrics.EventsAssessedTotal.WithLabelValues(string(r.Event.Outcome)).Inc()

		for _, ma := range r.Metrics {
			if ma.Before.Count == 0 {
				metrics.WindowsUnavailableTotal.WithLabelValues("before").Inc()
			}
			if ma.After.Count == 0 {
				metrics.WindowsUnavailableTotal.WithLabelValues("after").Inc()
			}
			if ma.Baseline.Count == 0 {
				metrics.WindowsUnavailableTotal.WithLabelValues("baseline").Inc()
			}
			if !ma.Available {
				continue
			}
			if ma.ZLabel.Rank() > 0 {
				metrics.SignificantImpactsTotal.WithLabelValues(ma.Column, "z_score", string(ma.ZLabel)).Inc()
			}
			if ma.PctLabel.Rank() > 0 {
				metrics.SignificantImpactsTotal.WithLabelValues(ma.Column, "percent_change", string(ma.PctLabel)).Inc()
			}
		}
	}
}

// buildRunRecord flattens an analysis into store records.
func buildRunRecord(runID, strategyName, baselinePath string, req Request, results []impact.Result, start time.Time, runErr error) *store.RunRecord {
	rec := &store.RunRecord{
		ID:           runID,
		Strategy:     strategyName,
		ResultsPath:  req.ResultsPath,
		EventsPath:   req.EventsPath,
		BaselinePath: baselinePath,
		Status:       store.RunStatusCompleted,
		EventCount:   len(results),
		CreatedAt:    start,
		CompletedAt:  time.Now().UTC(),
	}
	if runErr != nil {
		rec.Status = store.RunStatusFailed
		rec.Error = runErr.Error()
	}

	for i := range results {
		r := &results[i]
		ev := store.EventRecord{
			RunID:         runID,
			Pod:           r.Event.Pod,
			TerminationMS: r.Event.Time,
			Outcome:       string(r.Event.Outcome),
			HasFailures:   r.HasFailures,
			SuccessRate:   r.SuccessRate,
			ChecksSeen:    r.ChecksSeen,
		}
		for _, ma := range r.Metrics {
			ev.Assessments = append(ev.Assessments, assessmentRecord(ma))
		}
		rec.Events = append(rec.Events, ev)
	}
	return rec
}

func assessmentRecord(ma impact.MetricAssessment) store.AssessmentRecord {
	return store.AssessmentRecord{
		Metric:         ma.Column,
		Available:      ma.Available,
		BaselineCount:  ma.Baseline.Count,
		BaselineMean:   ma.Baseline.Mean,
		BaselineStdDev: ma.Baseline.StdDev,
		BeforeCount:    ma.Before.Count,
		BeforeMean:     ma.Before.Mean,
		BeforeStdDev:   ma.Before.StdDev,
		AfterCount:     ma.After.Count,
		AfterMean:      ma.After.Mean,
		AfterStdDev:    ma.After.StdDev,
		ZScore:         ma.ZScore,
		PercentChange:  ma.PercentChange,
		ZLabel:         string(ma.ZLabel),
		PctLabel:       string(ma.PctLabel),
	}
}
