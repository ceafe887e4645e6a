package impact

import (
	"fmt"
	"sort"

	"github.com/resilitics/resilitics/internal/baseline"
	"github.com/resilitics/resilitics/internal/stats"
	"github.com/resilitics/resilitics/internal/timeseries"
)

// Config is the assessment surface threaded in at construction. Column
// names arrive already resolved by schema resolution; the assessor never
// scans headers.
type Config struct {
	BeforeSeconds int
	AfterSeconds  int
	Metrics       []string // tracked metric columns, report order
	CheckColumns  []string // check-rate columns, exact resolved names
}

// Assessor runs the per-event assessment loop against one baseline strategy.
type Assessor struct {
	cfg      Config
	strategy baseline.Strategy
}

// NewAssessor returns an assessor bound to the given strategy.
func NewAssessor(cfg Config, strategy baseline.Strategy) *Assessor {
	return &Assessor{cfg: cfg, strategy: strategy}
}

// Assess produces exactly one Result per event, in the events' given order.
// It fails only on run-level conditions: an empty series or a strategy that
// cannot produce its reference. Per-event data gaps are recorded in the
// corresponding result and never abort the batch.
func (a *Assessor) Assess(series *timeseries.Series, events []Event) ([]Result, error) {
	if series == nil || series.Empty() {
		return nil, ErrEmptySeries
	}

	ref, err := a.strategy.Compute(series, eventTimes(events))
	if err != nil {
		return nil, fmt.Errorf("computing %s baseline: %w", a.strategy.Name(), err)
	}

	results := make([]Result, 0, len(events))
	for _, ev := range events {
		results = append(results, a.assessOne(ref, ev))
	}
	return results, nil
}

func (a *Assessor) assessOne(ref *baseline.Reference, ev Event) Result {
	before := timeseries.Before(ref.Series, ev.Time, a.cfg.BeforeSeconds)
	after := timeseries.After(ref.Series, ev.Time, a.cfg.AfterSeconds)
	baseSamples := ref.SamplesFor(ev.Time)

	res := Result{Event: ev, Metrics: make([]MetricAssessment, 0, len(a.cfg.Metrics))}
	for _, col := range a.cfg.Metrics {
		ma := MetricAssessment{
			Column:   col,
			Baseline: stats.Aggregate(baseSamples, col),
			Before:   stats.Aggregate(before, col),
			After:    stats.Aggregate(after, col),
		}
		if ma.After.Count > 0 && ma.Baseline.Count > 0 {
			ma.Available = true
			ma.ZScore = stats.ZScore(ma.After.Mean, ma.Baseline.Mean, ma.Baseline.StdDev)
			ma.PercentChange = stats.PercentChange(ma.After.Mean, ma.Baseline.Mean)
			ma.ZLabel = stats.ClassifyZScore(ma.ZScore)
			ma.PctLabel = stats.ClassifyPercentChange(ma.PercentChange)
		}
		res.Metrics = append(res.Metrics, ma)
	}

	checks := ExtractChecks(after, a.cfg.CheckColumns)
	res.HasFailures = checks.HasFailures
	res.SuccessRate = checks.SuccessRate
	res.ChecksSeen = checks.Populated
	return res
}

// eventTimes returns the termination instants in ascending order for
// strategies that scan them.
func eventTimes(events []Event) []int64 {
	times := make([]int64, 0, len(events))
	for _, ev := range events {
		times = append(times, ev.Time)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}
