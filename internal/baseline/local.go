package baseline

import (
	"github.com/resilitics/resilitics/internal/timeseries"
)

// localStrategy gives each event its own private baseline: the before-window
// slice of the raw series. There is no global pass and no fatal empty-window
// condition here; an event with no before samples surfaces as a per-event
// "not available" result downstream.
type localStrategy struct {
	cfg Config
}

func (l *localStrategy) Name() string { return StrategyLocal }

func (l *localStrategy) Compute(s *timeseries.Series, _ []int64) (*Reference, error) {
	return &Reference{
		Series: s,
		lookup: func(eventTime int64) []timeseries.Sample {
			return timeseries.Before(s, eventTime, l.cfg.BeforeSeconds)
		},
	}, nil
}
