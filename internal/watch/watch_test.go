package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/config"
	"github.com/resilitics/resilitics/internal/engine"
)

const (
	spikeResults = "Time,Latency p95,Throughput,ChecksRate\n" +
		"1,100,50,1\n" +
		"2,100,50,1\n" +
		"4,500,50,0.2\n" +
		"5,500,50,0\n"
	spikeEvents = "Pod,Termination Time,Status\n" +
		"api-0,3,DELETED\n"
)

func testWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Analysis.Strategy = "local"
	cfg.Analysis.BeforeSeconds = 2
	cfg.Analysis.AfterSeconds = 2
	cfg.Watch.Directory = dir
	cfg.Watch.SettleSeconds = 1

	w, err := New(cfg, engine.New(cfg, nil, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	w.settle = 50 * time.Millisecond // keep the tests quick
	return w, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func waitForFile(t *testing.T, path string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fileExists(path) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestWatcherAnalyzesSettledPair(t *testing.T) {
	w, dir := testWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give Run a moment to register the directory watch.
	time.Sleep(50 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "run1_results.csv"), spikeResults)
	writeFile(t, filepath.Join(dir, "run1_events.csv"), spikeEvents)

	assert.True(t, waitForFile(t, filepath.Join(dir, "run1_impact.csv"), 3*time.Second),
		"expected CSV report after the pair settled")
	assert.True(t, waitForFile(t, filepath.Join(dir, "run1_impact.json"), time.Second))

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherWaitsForCompletePair(t *testing.T) {
	w, dir := testWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "run2_results.csv"), spikeResults)

	// The settle period passes with half the pair missing; nothing fires.
	time.Sleep(200 * time.Millisecond)
	assert.False(t, fileExists(filepath.Join(dir, "run2_impact.csv")))

	writeFile(t, filepath.Join(dir, "run2_events.csv"), spikeEvents)
	assert.True(t, waitForFile(t, filepath.Join(dir, "run2_impact.csv"), 3*time.Second))
}

func TestWatcherPicksUpExistingPairs(t *testing.T) {
	w, dir := testWatcher(t)

	writeFile(t, filepath.Join(dir, "old_results.csv"), spikeResults)
	writeFile(t, filepath.Join(dir, "old_events.csv"), spikeEvents)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.True(t, waitForFile(t, filepath.Join(dir, "old_impact.csv"), 3*time.Second))
}

func TestWatcherWritesToOutputDir(t *testing.T) {
	w, dir := testWatcher(t)
	outDir := t.TempDir()
	w.outputDir = outDir

	writeFile(t, filepath.Join(dir, "run3_results.csv"), spikeResults)
	writeFile(t, filepath.Join(dir, "run3_events.csv"), spikeEvents)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.True(t, waitForFile(t, filepath.Join(outDir, "run3_impact.csv"), 3*time.Second))
	assert.False(t, fileExists(filepath.Join(dir, "run3_impact.csv")))
}

func TestPairKey(t *testing.T) {
	w, _ := testWatcher(t)

	tests := []struct {
		name    string
		wantKey string
		wantOK  bool
	}{
		{"/data/run1_results.csv", "run1", true},
		{"run1_events.csv", "run1", true},
		{"run1_impact.csv", "", false},
		{"notes.txt", "", false},
	}
	for _, tt := range tests {
		key, ok := w.pairKey(tt.name)
		assert.Equal(t, tt.wantOK, ok, tt.name)
		assert.Equal(t, tt.wantKey, key, tt.name)
	}
}

func TestNewValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Watch.Directory = t.TempDir()
	eng := engine.New(cfg, nil, zap.NewNop())

	_, err := New(cfg, nil, nil)
	assert.ErrorContains(t, err, "engine")

	noDir := config.DefaultConfig()
	_, err = New(noDir, eng, nil)
	assert.ErrorContains(t, err, "directory")

	same := config.DefaultConfig()
	same.Watch.Directory = cfg.Watch.Directory
	same.Watch.EventsSuffix = same.Watch.ResultsSuffix
	_, err = New(same, eng, nil)
	assert.ErrorContains(t, err, "differ")
}
