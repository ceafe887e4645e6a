// Package stats computes the deviation statistics behind impact assessment:
// windowed aggregates, z-scores, percentage change, significance tiers, and
// first-order detrending.
//
// Inclusion policy, applied uniformly: a raw value enters a statistic only
// when it is present and strictly greater than zero. Zero, negative, and
// absent cells are skipped for that metric but never remove the sample from
// the series for other metrics.
package stats

import (
	"gonum.org/v1/gonum/stat"

	"github.com/resilitics/resilitics/internal/timeseries"
)

// MetricStats summarizes the included values of one metric over one window.
// Recomputed on demand; never cached across different window definitions.
type MetricStats struct {
	Mean   float64
	StdDev float64 // population, not Bessel-corrected
	Count  int
	Values []float64
}

// Aggregate computes mean and population standard deviation of the named
// metric over the given samples. An empty included set yields zero-valued
// stats with Count == 0 rather than an error; callers must check Count
// before treating the result as meaningful.
func Aggregate(samples []timeseries.Sample, column string) MetricStats {
	values := make([]float64, 0, len(samples))
	for _, sm := range samples {
		if v, ok := included(sm.Cell(column)); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return MetricStats{}
	}
	return MetricStats{
		Mean:   stat.Mean(values, nil),
		StdDev: stat.PopStdDev(values, nil),
		Count:  len(values),
		Values: values,
	}
}

// included applies the inclusion policy to one cell.
func included(c timeseries.Cell) (float64, bool) {
	v, ok := c.Value()
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}
