package impact

import (
	"github.com/resilitics/resilitics/internal/timeseries"
)

// CheckStats carries both success/failure contracts, extracted in one pass.
// Check-rate columns are only populated during failure periods, so presence
// is the filter here, not the positive-value inclusion policy: a recorded 0
// is a populated reading and participates in the graded average.
type CheckStats struct {
	// HasFailures is true when any populated value sits strictly between
	// 0 and 1.
	HasFailures bool
	// SuccessRate is 100 − avg(populated values)·100, or 100 when the
	// window holds no populated values.
	SuccessRate float64
	// Populated counts the readings the graded average was taken over.
	Populated int
}

// ExtractChecks scans the given samples across all designated check-rate
// columns.
func ExtractChecks(samples []timeseries.Sample, checkColumns []string) CheckStats {
	var sum float64
	var n int
	failures := false

	for _, sm := range samples {
		for _, col := range checkColumns {
			v, ok := sm.Cell(col).Value()
			if !ok {
				continue
			}
			n++
			sum += v
			if v > 0 && v < 1 {
				failures = true
			}
		}
	}

	if n == 0 {
		return CheckStats{SuccessRate: 100}
	}
	return CheckStats{
		HasFailures: failures,
		SuccessRate: 100 - (sum/float64(n))*100,
		Populated:   n,
	}
}
