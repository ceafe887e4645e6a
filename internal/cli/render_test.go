package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/impact"
	"github.com/resilitics/resilitics/internal/stats"
	"github.com/resilitics/resilitics/internal/store"
)

// Rendering into a buffer never sees a terminal, so every test below runs
// the plain-text path and output is byte-for-byte deterministic.

func availableMetric(column string, pct, z float64, pctLabel, zLabel stats.Significance) impact.MetricAssessment {
	return impact.MetricAssessment{
		Column:        column,
		Baseline:      stats.MetricStats{Count: 10, Mean: 100, StdDev: 5},
		Before:        stats.MetricStats{Count: 10, Mean: 100, StdDev: 5},
		After:         stats.MetricStats{Count: 10, Mean: 100 + pct, StdDev: 5},
		Available:     true,
		ZScore:        z,
		PercentChange: pct,
		ZLabel:        zLabel,
		PctLabel:      pctLabel,
	}
}

func unavailableMetric(column string) impact.MetricAssessment {
	return impact.MetricAssessment{
		Column:   column,
		Baseline: stats.MetricStats{Count: 5},
		Before:   stats.MetricStats{Count: 5},
		After:    stats.MetricStats{},
		ZLabel:   stats.NotSignificant,
		PctLabel: stats.NotSignificant,
	}
}

// ---------------------------------------------------------------------------
// renderAnalysis
// ---------------------------------------------------------------------------

func TestRenderAnalysis_EventBlocks(t *testing.T) {
	analysis := &engine.Analysis{
		RunID:    "run-1",
		Strategy: "local",
		Duration: 12 * time.Millisecond,
		Results: []impact.Result{
			{
				Event: impact.Event{Pod: "api-0", Time: 1700000000000, Outcome: impact.OutcomeDeleted},
				Metrics: []impact.MetricAssessment{
					availableMetric("Latency p95", 42.3, 3.12, stats.HighlySignificant, stats.HighlySignificant),
					unavailableMetric("Throughput"),
				},
				SuccessRate: 87.2,
				ChecksSeen:  312,
				HasFailures: true,
			},
		},
	}

	buf := &bytes.Buffer{}
	renderAnalysis(buf, analysis, "N/A")
	out := buf.String()

	for _, want := range []string{
		"Impact analysis run-1",
		"(local baseline, 1 event, 12ms)",
		"api-0",
		"DELETED",
		"checks 87.2% over 312 samples, failures seen",
		"Latency p95",
		"+42.3%",
		"(Highly Significant)",
		"N/A (before 5, after 0, baseline 5 samples)",
		"1 significant deviation across 1 event",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAnalysis_NoEvents(t *testing.T) {
	buf := &bytes.Buffer{}
	renderAnalysis(buf, &engine.Analysis{RunID: "run-2", Strategy: "global"}, "N/A")
	if !strings.Contains(buf.String(), "no termination events in input") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRenderAnalysis_CleanRunVerdict(t *testing.T) {
	analysis := &engine.Analysis{
		RunID:    "run-3",
		Strategy: "global",
		Results: []impact.Result{
			{
				Event: impact.Event{Pod: "api-0", Time: 1700000000000, Outcome: impact.OutcomeDeleted},
				Metrics: []impact.MetricAssessment{
					availableMetric("Latency p95", 0.5, 0.1, stats.NotSignificant, stats.NotSignificant),
				},
			},
			{
				Event: impact.Event{Pod: "api-1", Time: 1700000060000, Outcome: impact.OutcomeDryRun},
				Metrics: []impact.MetricAssessment{
					availableMetric("Latency p95", 2.5, 1.4, stats.Marginal, stats.Marginal),
				},
			},
		},
	}

	buf := &bytes.Buffer{}
	renderAnalysis(buf, analysis, "N/A")
	if !strings.Contains(buf.String(), "1 marginal deviation across 2 events") {
		t.Errorf("unexpected verdict: %q", buf.String())
	}
}

// ---------------------------------------------------------------------------
// eventBadge
// ---------------------------------------------------------------------------

func TestEventBadge(t *testing.T) {
	cases := []struct {
		name string
		res  impact.Result
		want string
	}{
		{
			name: "dry run",
			res:  impact.Result{Event: impact.Event{Outcome: impact.OutcomeDryRun}},
			want: iconDryRun,
		},
		{
			name: "delete error",
			res:  impact.Result{Event: impact.Event{Outcome: impact.OutcomeDeleteError}},
			want: iconWarn,
		},
		{
			name: "significant impact",
			res: impact.Result{
				Event: impact.Event{Outcome: impact.OutcomeDeleted},
				Metrics: []impact.MetricAssessment{
					availableMetric("Latency", 42, 3.1, stats.HighlySignificant, stats.HighlySignificant),
				},
			},
			want: iconImpact,
		},
		{
			name: "clean",
			res: impact.Result{
				Event: impact.Event{Outcome: impact.OutcomeDeleted},
				Metrics: []impact.MetricAssessment{
					availableMetric("Latency", 1, 0.2, stats.NotSignificant, stats.NotSignificant),
				},
			},
			want: iconClean,
		},
		{
			name: "marginal stays clean",
			res: impact.Result{
				Event: impact.Event{Outcome: impact.OutcomeDeleted},
				Metrics: []impact.MetricAssessment{
					availableMetric("Latency", 3, 1.4, stats.Marginal, stats.Marginal),
				},
			},
			want: iconClean,
		},
	}
	for _, tc := range cases {
		icon, _ := eventBadge(&tc.res)
		if icon != tc.want {
			t.Errorf("%s: want %q, got %q", tc.name, tc.want, icon)
		}
	}
}

// ---------------------------------------------------------------------------
// renderEventSummary
// ---------------------------------------------------------------------------

func TestRenderEventSummary_Tally(t *testing.T) {
	events := []impact.Event{
		{Pod: "a", Outcome: impact.OutcomeDeleted},
		{Pod: "b", Outcome: impact.OutcomeDeleted},
		{Pod: "c", Outcome: impact.OutcomeDryRun},
		{Pod: "d", Outcome: impact.OutcomeDeleteError},
	}
	buf := &bytes.Buffer{}
	renderEventSummary(buf, events, "run1_events.csv")
	out := buf.String()
	for _, want := range []string{"4 events written to run1_events.csv", "2 deleted", "1 dry-run", "1 delete error"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q: %q", want, out)
		}
	}
}

func TestRenderEventSummary_MemoryOnly(t *testing.T) {
	buf := &bytes.Buffer{}
	renderEventSummary(buf, []impact.Event{{Pod: "a", Outcome: impact.OutcomeDryRun}}, "")
	if !strings.Contains(buf.String(), "kept in memory only") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRenderEventSummary_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	renderEventSummary(buf, nil, "events.csv")
	if !strings.Contains(buf.String(), "no terminations recorded") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

// ---------------------------------------------------------------------------
// renderRunList / renderRunRecord
// ---------------------------------------------------------------------------

func TestRenderRunList_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	renderRunList(buf, nil)
	if !strings.Contains(buf.String(), "no stored runs") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestRenderRunList_Rows(t *testing.T) {
	recs := []*store.RunRecord{
		{
			ID:         "9f31c2e4-5d2b-4c1a-b8e7-2f90d1a6c3f4",
			Strategy:   "local",
			Status:     store.RunStatusCompleted,
			EventCount: 3,
			CreatedAt:  time.Date(2026, 8, 25, 12, 31, 5, 0, time.UTC),
		},
	}
	buf := &bytes.Buffer{}
	renderRunList(buf, recs)
	out := buf.String()
	for _, want := range []string{"9f31c2e4-5d2b-4c1a-b8e7-2f90d1a6c3f4", "local", "completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q: %q", want, out)
		}
	}
}

func TestRenderRunRecord_FailedRun(t *testing.T) {
	rec := &store.RunRecord{
		ID:          "run-9",
		Strategy:    "gap",
		ResultsPath: "/data/run9_results.csv",
		EventsPath:  "/data/run9_events.csv",
		Status:      store.RunStatusFailed,
		Error:       "loading results: no timestamp column",
		CreatedAt:   time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
	}
	buf := &bytes.Buffer{}
	renderRunRecord(buf, rec, "N/A")
	out := buf.String()
	for _, want := range []string{"run-9", "failed", "gap", "/data/run9_results.csv", "no timestamp column"} {
		if !strings.Contains(out, want) {
			t.Errorf("record missing %q:\n%s", want, out)
		}
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"http_req_duration p(95)", 10, "http_req_…"},
		{"ab", 1, "a"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Errorf("truncate(%q, %d): want %q, got %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestPlural(t *testing.T) {
	if got := plural(1, "event"); got != "1 event" {
		t.Errorf("want %q, got %q", "1 event", got)
	}
	if got := plural(2, "event"); got != "2 events" {
		t.Errorf("want %q, got %q", "2 events", got)
	}
}
