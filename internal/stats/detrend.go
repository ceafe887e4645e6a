package stats

import (
	"gonum.org/v1/gonum/stat"

	"github.com/resilitics/resilitics/internal/timeseries"
)

// Detrend removes a first-order linear trend from each of the given metric
// columns, fitting value = slope·timestamp + intercept by ordinary least
// squares over the included values of the whole series. Each included value
// becomes raw − (slope·ts + intercept) + mean, re-centered on the original
// mean so the detrended series keeps the original scale and units. Excluded
// values (absent or non-positive) pass through unchanged so downstream
// aggregation still drops them via the standard inclusion policy.
//
// The input is never mutated; a new series is returned. Columns with fewer
// than two included values have no fittable trend and pass through as-is.
func Detrend(s *timeseries.Series, columns []string) *timeseries.Series {
	fits := make(map[string]lineFit, len(columns))
	for _, col := range columns {
		if fit, ok := fitLine(s, col); ok {
			fits[col] = fit
		}
	}

	out := &timeseries.Series{Samples: make([]timeseries.Sample, 0, s.Len())}
	for _, sm := range s.Samples {
		metrics := make(map[string]timeseries.Cell, len(sm.Metrics))
		for name, cell := range sm.Metrics {
			metrics[name] = cell
		}
		for col, fit := range fits {
			v, ok := included(sm.Cell(col))
			if !ok {
				continue
			}
			trend := fit.slope*float64(sm.Timestamp) + fit.intercept
			metrics[col] = timeseries.NumericCell(v - trend + fit.mean)
		}
		out.Samples = append(out.Samples, timeseries.Sample{
			Timestamp: sm.Timestamp,
			Metrics:   metrics,
		})
	}
	return out
}

type lineFit struct {
	slope     float64
	intercept float64
	mean      float64
}

func fitLine(s *timeseries.Series, column string) (lineFit, bool) {
	xs := make([]float64, 0, s.Len())
	ys := make([]float64, 0, s.Len())
	for _, sm := range s.Samples {
		if v, ok := included(sm.Cell(column)); ok {
			xs = append(xs, float64(sm.Timestamp))
			ys = append(ys, v)
		}
	}
	// No fit without at least two included values spread over time.
	if len(ys) < 2 || xs[0] == xs[len(xs)-1] {
		return lineFit{}, false
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	return lineFit{
		slope:     slope,
		intercept: intercept,
		mean:      stat.Mean(ys, nil),
	}, true
}
