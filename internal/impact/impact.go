package impact

import (
	"errors"
	"fmt"

	"github.com/resilitics/resilitics/internal/stats"
)

// Package impact turns a metrics series plus a termination event log into
// one assessment per event.
//
// Responsibilities:
//   - Orchestrate baseline selection, window extraction, aggregation, and
//     significance classification per event
//   - Keep per-event failures non-fatal: an event with insufficient window
//     data yields a result with explicit unavailable markers, never an
//     aborted batch, and every event appears exactly once in the output
//   - Extract success/failure signals from check-rate columns, exposing the
//     binary flag and the graded rate from one pass
//
// The whole assessment is a deterministic, single-threaded pure computation
// over in-memory collections. Events are processed in their given order;
// order does not affect any individual result.

// ErrEmptySeries reports an analysis run with no samples at all. Fatal:
// with no data there is nothing to baseline against.
var ErrEmptySeries = errors.New("metrics series contains no samples")

// Outcome is the recorded result of one pod termination attempt.
type Outcome string

const (
	OutcomeDeleted     Outcome = "DELETED"
	OutcomeDryRun      Outcome = "DRY_RUN"
	OutcomeDeleteError Outcome = "DELETE_ERROR"
)

// ParseOutcome validates a raw status token from the event log.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeDeleted, OutcomeDryRun, OutcomeDeleteError:
		return Outcome(s), nil
	default:
		return "", fmt.Errorf("unknown event status %q (expected %s, %s, or %s)",
			s, OutcomeDeleted, OutcomeDryRun, OutcomeDeleteError)
	}
}

// Event is one disruption occurrence. Immutable.
type Event struct {
	Pod     string
	Time    int64 // epoch ms
	Outcome Outcome
}

// MetricAssessment is the verdict for one tracked metric of one event.
// Window stats with Count == 0 mark that window as having no usable data.
// Deviation fields are meaningful only when Available is true, which
// requires a non-empty after-window and a non-empty baseline.
type MetricAssessment struct {
	Column   string
	Baseline stats.MetricStats
	Before   stats.MetricStats
	After    stats.MetricStats

	Available     bool
	ZScore        float64
	PercentChange float64
	ZLabel        stats.Significance
	PctLabel      stats.Significance
}

// Result is the full assessment of one event. Created once during
// assessment, never mutated afterward.
type Result struct {
	Event   Event
	Metrics []MetricAssessment

	HasFailures bool
	SuccessRate float64
	ChecksSeen  int
}

// Metric returns the assessment for the given column, or nil.
func (r *Result) Metric(column string) *MetricAssessment {
	for i := range r.Metrics {
		if r.Metrics[i].Column == column {
			return &r.Metrics[i]
		}
	}
	return nil
}
