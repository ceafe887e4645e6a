// Package report serializes impact assessments: a wide CSV for operators
// and spreadsheets, and JSON for the API and the results store. Statistics
// that could not be computed are written as an explicit marker, never as an
// empty string a reader could mistake for zero.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/resilitics/resilitics/internal/impact"
)

// Options controls serialization.
type Options struct {
	// NotAvailable marks statistics with no underlying data.
	NotAvailable string
}

// DefaultOptions returns the conventional marker.
func DefaultOptions() Options {
	return Options{NotAvailable: "N/A"}
}

// WriteCSV writes one row per event, in result order. metrics lists the
// tracked metric columns in report order, as resolved at load time.
func WriteCSV(w io.Writer, results []impact.Result, metrics []string, opts Options) error {
	if opts.NotAvailable == "" {
		opts.NotAvailable = DefaultOptions().NotAvailable
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader(metrics)); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}
	for i := range results {
		if err := cw.Write(csvRow(&results[i], metrics, opts)); err != nil {
			return fmt.Errorf("writing report row for %s: %w", results[i].Event.Pod, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvHeader(metrics []string) []string {
	h := []string{"Pod", "Termination Time", "Status"}
	for _, m := range metrics {
		h = append(h,
			m+" Before Count", m+" Before Mean", m+" Before StdDev",
			m+" After Count", m+" After Mean", m+" After StdDev",
			m+" Z-Score", m+" Change %",
			m+" Z Significance", m+" % Significance",
		)
	}
	return append(h, "Has Failures", "Success Rate")
}

func csvRow(r *impact.Result, metrics []string, opts Options) []string {
	row := []string{
		r.Event.Pod,
		strconv.FormatInt(r.Event.Time, 10),
		string(r.Event.Outcome),
	}
	for _, m := range metrics {
		ma := r.Metric(m)
		if ma == nil {
			ma = &impact.MetricAssessment{Column: m}
		}
		row = append(row,
			windowCount(ma.Before.Count),
			windowStat(ma.Before.Count, ma.Before.Mean, opts),
			windowStat(ma.Before.Count, ma.Before.StdDev, opts),
			windowCount(ma.After.Count),
			windowStat(ma.After.Count, ma.After.Mean, opts),
			windowStat(ma.After.Count, ma.After.StdDev, opts),
		)
		if ma.Available {
			row = append(row,
				formatFloat(ma.ZScore),
				formatFloat(ma.PercentChange),
				string(ma.ZLabel),
				string(ma.PctLabel),
			)
		} else {
			row = append(row, opts.NotAvailable, opts.NotAvailable, opts.NotAvailable, opts.NotAvailable)
		}
	}
	return append(row,
		strconv.FormatBool(r.HasFailures),
		formatFloat(r.SuccessRate),
	)
}

func windowCount(count int) string {
	return strconv.Itoa(count)
}

func windowStat(count int, v float64, opts Options) string {
	if count == 0 {
		return opts.NotAvailable
	}
	return formatFloat(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
