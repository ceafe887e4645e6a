package report

import (
	"encoding/json"
	"io"

	"github.com/resilitics/resilitics/internal/impact"
)

// MetricJSON mirrors one MetricAssessment. Numeric fields are meaningful
// only where the matching availability flag or count says so.
type MetricJSON struct {
	Column    string `json:"column"`
	Available bool   `json:"available"`

	BaselineCount  int     `json:"baseline_count"`
	BaselineMean   float64 `json:"baseline_mean"`
	BaselineStdDev float64 `json:"baseline_std_dev"`
	BeforeCount    int     `json:"before_count"`
	BeforeMean     float64 `json:"before_mean"`
	BeforeStdDev   float64 `json:"before_std_dev"`
	AfterCount     int     `json:"after_count"`
	AfterMean      float64 `json:"after_mean"`
	AfterStdDev    float64 `json:"after_std_dev"`

	ZScore          float64 `json:"z_score"`
	PercentChange   float64 `json:"percent_change"`
	ZSignificance   string  `json:"z_significance"`
	PctSignificance string  `json:"percent_significance"`
}

// EventJSON is one event's assessment on the wire.
type EventJSON struct {
	Pod             string       `json:"pod"`
	TerminationTime int64        `json:"termination_time"`
	Status          string       `json:"status"`
	Metrics         []MetricJSON `json:"metrics"`
	HasFailures     bool         `json:"has_failures"`
	SuccessRate     float64      `json:"success_rate"`
	ChecksSeen      int          `json:"checks_seen"`
}

// BuildJSON converts results to their wire form, preserving order.
func BuildJSON(results []impact.Result) []EventJSON {
	out := make([]EventJSON, 0, len(results))
	for i := range results {
		r := &results[i]
		ev := EventJSON{
			Pod:             r.Event.Pod,
			TerminationTime: r.Event.Time,
			Status:          string(r.Event.Outcome),
			Metrics:         make([]MetricJSON, 0, len(r.Metrics)),
			HasFailures:     r.HasFailures,
			SuccessRate:     r.SuccessRate,
			ChecksSeen:      r.ChecksSeen,
		}
		for _, ma := range r.Metrics {
			ev.Metrics = append(ev.Metrics, MetricJSON{
				Column:          ma.Column,
				Available:       ma.Available,
				BaselineCount:   ma.Baseline.Count,
				BaselineMean:    ma.Baseline.Mean,
				BaselineStdDev:  ma.Baseline.StdDev,
				BeforeCount:     ma.Before.Count,
				BeforeMean:      ma.Before.Mean,
				BeforeStdDev:    ma.Before.StdDev,
				AfterCount:      ma.After.Count,
				AfterMean:       ma.After.Mean,
				AfterStdDev:     ma.After.StdDev,
				ZScore:          ma.ZScore,
				PercentChange:   ma.PercentChange,
				ZSignificance:   string(ma.ZLabel),
				PctSignificance: string(ma.PctLabel),
			})
		}
		out = append(out, ev)
	}
	return out
}

// WriteJSON writes the indented JSON array of event assessments.
func WriteJSON(w io.Writer, results []impact.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildJSON(results))
}
