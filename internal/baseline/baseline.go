package baseline

import (
	"errors"
	"fmt"

	"github.com/resilitics/resilitics/internal/timeseries"
)

// Package baseline selects the reference samples each event's windows are
// compared against.
//
// Responsibilities:
//   - Provide interchangeable baseline strategies behind one interface
//   - global: fixed-margin trim of a full series (the run itself or a
//     separate known-clean run)
//   - local: each event's own before-window is its private baseline
//   - detrended: remove first-order drift, then compare local slices of the
//     detrended series
//   - gap: the longest termination-free interval of the run
//
// Exactly one strategy is active per analysis run, chosen by configuration
// at construction time. Strategies that need a global reference (global,
// gap) fail the whole run with ErrEmptyBaseline when that reference holds
// no samples; a partial baseline is worse than no result.

// Strategy names accepted by New.
const (
	StrategyGlobal    = "global"
	StrategyLocal     = "local"
	StrategyDetrended = "detrended"
	StrategyGap       = "gap"
)

// ErrEmptyBaseline reports a global reference window with zero samples,
// typically a dataset too short for the configured margin.
var ErrEmptyBaseline = errors.New("baseline window contains no samples")

// Window is the time range designated as the "normal" reference.
type Window struct {
	Start       int64 // epoch ms, inclusive
	End         int64 // epoch ms, inclusive
	SampleCount int
}

// Config carries the strategy inputs. It is threaded in explicitly at
// construction; nothing here lives in package state.
type Config struct {
	Strategy      string
	BeforeSeconds int // reference slice width for local and detrended
	OmitSeconds   int // trim margin for global
	// Columns lists the tracked metric columns the detrended strategy fits.
	Columns []string
	// CleanSeries optionally supplies a separate known-clean run whose
	// trimmed window provides the global reference statistics.
	CleanSeries *timeseries.Series
}

// Reference is a strategy's output: the series all window extraction should
// run against (detrended for that strategy, the input otherwise), the global
// window when one exists, and the per-event reference lookup.
type Reference struct {
	Series *timeseries.Series
	Window *Window // nil for per-event strategies

	lookup func(eventTime int64) []timeseries.Sample
}

// SamplesFor returns the baseline samples for an event at the given instant.
// Per-event strategies slice relative to eventTime; global strategies return
// the same window for every event.
func (r *Reference) SamplesFor(eventTime int64) []timeseries.Sample {
	return r.lookup(eventTime)
}

// Strategy computes a Reference for one analysis run. eventTimes lists the
// termination instants in ascending order; only the gap strategy reads them.
type Strategy interface {
	Name() string
	Compute(s *timeseries.Series, eventTimes []int64) (*Reference, error)
}

// New returns the configured strategy.
func New(cfg Config) (Strategy, error) {
	switch cfg.Strategy {
	case StrategyGlobal:
		return &globalStrategy{cfg: cfg}, nil
	case StrategyLocal:
		return &localStrategy{cfg: cfg}, nil
	case StrategyDetrended:
		return &detrendedStrategy{cfg: cfg}, nil
	case StrategyGap:
		return &gapStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown baseline strategy %q (valid: %s, %s, %s, %s)",
			cfg.Strategy, StrategyGlobal, StrategyLocal, StrategyDetrended, StrategyGap)
	}
}
