package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/config"
	"github.com/resilitics/resilitics/internal/stats"
	"github.com/resilitics/resilitics/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Analysis.Strategy = "local"
	cfg.Analysis.BeforeSeconds = 2
	cfg.Analysis.AfterSeconds = 2
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(testConfig(), st, zap.NewNop()), st
}

const spikeResults = `Time,Latency p95,Throughput,ChecksRate
1,100,50,1
2,100,50,1
4,500,50,0.2
5,500,50,0
`

const spikeEvents = `Pod,Termination Time,Status
api-0,3,DELETED
`

func TestAnalyzeEndToEnd(t *testing.T) {
	eng, st := newTestEngine(t)
	dir := t.TempDir()

	req := Request{
		ResultsPath: writeFile(t, dir, "results.csv", spikeResults),
		EventsPath:  writeFile(t, dir, "events.csv", spikeEvents),
	}

	a, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, a.RunID)
	assert.Equal(t, "local", a.Strategy)
	assert.Equal(t, "Latency p95", a.Schema.Latency)
	require.Len(t, a.Results, 1)

	res := a.Results[0]
	assert.Equal(t, "api-0", res.Event.Pod)
	assert.Equal(t, int64(3000), res.Event.Time)

	lat := res.Metric("Latency p95")
	require.NotNil(t, lat)
	assert.True(t, lat.Available)
	assert.InDelta(t, 100.0, lat.Baseline.Mean, 1e-9)
	assert.InDelta(t, 500.0, lat.After.Mean, 1e-9)
	assert.InDelta(t, 400.0, lat.PercentChange, 1e-9)
	assert.Equal(t, stats.HighlySignificant, lat.PctLabel)

	// Check values 0.2 and 0 land in the after-window: one strict failure,
	// graded success 100 - 10 = 90.
	assert.True(t, res.HasFailures)
	assert.InDelta(t, 90.0, res.SuccessRate, 1e-9)
	assert.Equal(t, 2, res.ChecksSeen)

	// The run is persisted with its events and assessments.
	rec, err := st.GetRun(context.Background(), a.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.EventCount)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, "api-0", rec.Events[0].Pod)
	assert.Equal(t, int64(3000), rec.Events[0].TerminationMS)
	assert.Len(t, rec.Events[0].Assessments, 2)
}

func TestAnalyzeMissingResultsRecordsFailedRun(t *testing.T) {
	eng, st := newTestEngine(t)
	dir := t.TempDir()

	req := Request{
		ResultsPath: filepath.Join(dir, "does-not-exist.csv"),
		EventsPath:  writeFile(t, dir, "events.csv", spikeEvents),
	}

	_, err := eng.Analyze(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading results")

	runs, err := st.ListRuns(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
	assert.Equal(t, 0, runs[0].EventCount)
}

func TestAnalyzeUnknownStrategy(t *testing.T) {
	eng, _ := newTestEngine(t)
	dir := t.TempDir()

	req := Request{
		ResultsPath: writeFile(t, dir, "results.csv", spikeResults),
		EventsPath:  writeFile(t, dir, "events.csv", spikeEvents),
		Strategy:    "percentile",
	}

	_, err := eng.Analyze(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown baseline strategy")
}

func TestAnalyzeWorksWithoutStore(t *testing.T) {
	eng := New(testConfig(), nil, nil)
	dir := t.TempDir()

	req := Request{
		ResultsPath: writeFile(t, dir, "results.csv", spikeResults),
		EventsPath:  writeFile(t, dir, "events.csv", spikeEvents),
	}

	a, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, a.Results, 1)
}

func TestWriteReports(t *testing.T) {
	eng, _ := newTestEngine(t)
	dir := t.TempDir()

	req := Request{
		ResultsPath: writeFile(t, dir, "results.csv", spikeResults),
		EventsPath:  writeFile(t, dir, "events.csv", spikeEvents),
	}
	a, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "impact.csv")
	jsonPath := filepath.Join(dir, "impact.json")
	require.NoError(t, eng.WriteReports(a, csvPath, jsonPath))

	csvData, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	require.Len(t, lines, 2) // header + one event
	assert.Contains(t, lines[0], "Pod")
	assert.Contains(t, lines[0], "Latency p95 Z-Score")
	assert.Contains(t, lines[1], "api-0")

	jsonData, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"pod": "api-0"`)
	assert.Contains(t, string(jsonData), `"percent_change"`)
}
