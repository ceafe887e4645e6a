// Package watch runs analyses automatically as load-test artifacts land in
// a directory.
//
// Responsibilities:
//   - Watch one directory for results/events CSV pairs that share a prefix
//     (<name>_results.csv + <name>_events.csv with the default suffixes)
//   - Hold each pair until it has been quiet for the settle period, so a
//     file still being written is never analyzed
//   - Run the engine on every completed pair and write its reports
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/config"
	"github.com/resilitics/resilitics/internal/engine"
	"github.com/resilitics/resilitics/internal/metrics"
)

// Report name suffixes, attached to the pair prefix.
const (
	reportCSVSuffix  = "_impact.csv"
	reportJSONSuffix = "_impact.json"
)

// Watcher triggers analysis runs from filesystem activity.
type Watcher struct {
	engine *engine.Engine
	logger *zap.Logger

	dir           string
	outputDir     string
	resultsSuffix string
	eventsSuffix  string
	settle        time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer // pair prefix -> settle timer
}

// New validates the watch configuration and builds a watcher.
func New(cfg *config.Config, eng *engine.Engine, logger *zap.Logger) (*Watcher, error) {
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if cfg.Watch.Directory == "" {
		return nil, errors.New("watch.directory is required")
	}
	if cfg.Watch.ResultsSuffix == "" || cfg.Watch.EventsSuffix == "" {
		return nil, errors.New("watch suffixes cannot be empty")
	}
	if cfg.Watch.ResultsSuffix == cfg.Watch.EventsSuffix {
		return nil, errors.New("results and events suffixes must differ")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settle := time.Duration(cfg.Watch.SettleSeconds) * time.Second
	if settle <= 0 {
		settle = time.Second
	}

	return &Watcher{
		engine:        eng,
		logger:        logger,
		dir:           cfg.Watch.Directory,
		outputDir:     cfg.Watch.OutputDir,
		resultsSuffix: cfg.Watch.ResultsSuffix,
		eventsSuffix:  cfg.Watch.EventsSuffix,
		settle:        settle,
		pending:       make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is cancelled. Pairs already sitting in the
// directory are scheduled on startup, so a run that finished before the
// watcher came up is still analyzed.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.logger.Info("watching for result pairs",
		zap.String("directory", w.dir),
		zap.String("results_suffix", w.resultsSuffix),
		zap.String("events_suffix", w.eventsSuffix),
		zap.Duration("settle", w.settle))

	w.scanExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			w.drainTimers()
			w.logger.Info("watch stopped")
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if key, ok := w.pairKey(event.Name); ok {
				w.schedule(ctx, key)
			}
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// pairKey maps a file name onto its pair prefix. Files matching neither
// suffix are not watch inputs.
func (w *Watcher) pairKey(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasSuffix(base, w.resultsSuffix) {
		return strings.TrimSuffix(base, w.resultsSuffix), true
	}
	if strings.HasSuffix(base, w.eventsSuffix) {
		return strings.TrimSuffix(base, w.eventsSuffix), true
	}
	return "", false
}

// schedule starts or resets the settle timer for a pair. The analysis only
// fires once the pair has been quiet for the full settle period.
func (w *Watcher) schedule(ctx context.Context, key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[key]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[key] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, key)
		w.mu.Unlock()
		w.maybeAnalyze(ctx, key)
	})
}

// scanExisting schedules pairs already complete on disk.
func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("initial directory scan failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), w.resultsSuffix) {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), w.resultsSuffix)
		if fileExists(filepath.Join(w.dir, key+w.eventsSuffix)) {
			w.schedule(ctx, key)
		}
	}
}

// maybeAnalyze runs the engine on a pair if both halves exist. An
// incomplete pair is left alone; the missing file's own event will
// reschedule it.
func (w *Watcher) maybeAnalyze(ctx context.Context, key string) {
	resultsPath := filepath.Join(w.dir, key+w.resultsSuffix)
	eventsPath := filepath.Join(w.dir, key+w.eventsSuffix)
	if !fileExists(resultsPath) || !fileExists(eventsPath) {
		w.logger.Debug("pair incomplete", zap.String("pair", key))
		return
	}

	metrics.WatchTriggersTotal.Inc()
	w.logger.Info("pair settled, analyzing", zap.String("pair", key))

	analysis, err := w.engine.Analyze(ctx, engine.Request{
		ResultsPath: resultsPath,
		EventsPath:  eventsPath,
	})
	if err != nil {
		w.logger.Error("triggered analysis failed", zap.String("pair", key), zap.Error(err))
		return
	}

	outDir := w.outputDir
	if outDir == "" {
		outDir = w.dir
	}
	csvPath := filepath.Join(outDir, key+reportCSVSuffix)
	jsonPath := filepath.Join(outDir, key+reportJSONSuffix)
	if err := w.engine.WriteReports(analysis, csvPath, jsonPath); err != nil {
		w.logger.Error("writing reports failed", zap.String("pair", key), zap.Error(err))
		return
	}

	w.logger.Info("triggered analysis complete",
		zap.String("pair", key),
		zap.String("run_id", analysis.RunID),
		zap.Int("events", len(analysis.Results)),
		zap.String("report", csvPath))
}

// drainTimers stops every pending settle timer.
func (w *Watcher) drainTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, timer := range w.pending {
		timer.Stop()
		delete(w.pending, key)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
