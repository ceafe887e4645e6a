package baseline

import (
	"github.com/resilitics/resilitics/internal/stats"
	"github.com/resilitics/resilitics/internal/timeseries"
)

// detrendedStrategy removes first-order drift (cache warm-up, connection
// pool stabilization) before comparing, so a slow monotonic ramp does not
// masquerade as event impact. The whole series is detrended once; baselines
// are then local before-slices of the detrended series, and downstream
// after-windows must be extracted from the same detrended series.
type detrendedStrategy struct {
	cfg Config
}

func (d *detrendedStrategy) Name() string { return StrategyDetrended }

func (d *detrendedStrategy) Compute(s *timeseries.Series, _ []int64) (*Reference, error) {
	detrended := stats.Detrend(s, d.cfg.Columns)
	return &Reference{
		Series: detrended,
		lookup: func(eventTime int64) []timeseries.Sample {
			return timeseries.Before(detrended, eventTime, d.cfg.BeforeSeconds)
		},
	}, nil
}
