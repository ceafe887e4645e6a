package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/resilitics/resilitics/internal/metrics"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// schema defines the tables for the run persistence layer.
// Version is tracked in the schema_versions table.
var sqliteMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    strategy      TEXT NOT NULL DEFAULT 'global',
    results_path  TEXT NOT NULL DEFAULT '',
    events_path   TEXT NOT NULL DEFAULT '',
    baseline_path TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'running',
    error         TEXT NOT NULL DEFAULT '',
    event_count   INTEGER NOT NULL DEFAULT 0,
    created_at    DATETIME NOT NULL,
    completed_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS run_events (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    pod            TEXT NOT NULL,
    termination_ms INTEGER NOT NULL,
    outcome        TEXT NOT NULL,
    has_failures   BOOLEAN NOT NULL DEFAULT 0,
    success_rate   REAL NOT NULL DEFAULT 100.0,
    checks_seen    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, termination_ms ASC);

CREATE TABLE IF NOT EXISTS run_assessments (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id         INTEGER NOT NULL REFERENCES run_events(id) ON DELETE CASCADE,
    metric           TEXT NOT NULL,
    available        BOOLEAN NOT NULL DEFAULT 0,
    baseline_count   INTEGER NOT NULL DEFAULT 0,
    baseline_mean    REAL NOT NULL DEFAULT 0.0,
    baseline_std_dev REAL NOT NULL DEFAULT 0.0,
    before_count     INTEGER NOT NULL DEFAULT 0,
    before_mean      REAL NOT NULL DEFAULT 0.0,
    before_std_dev   REAL NOT NULL DEFAULT 0.0,
    after_count      INTEGER NOT NULL DEFAULT 0,
    after_mean       REAL NOT NULL DEFAULT 0.0,
    after_std_dev    REAL NOT NULL DEFAULT 0.0,
    z_score          REAL NOT NULL DEFAULT 0.0,
    percent_change   REAL NOT NULL DEFAULT 0.0,
    z_label          TEXT NOT NULL DEFAULT '',
    pct_label        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_run_assessments_event ON run_assessments(event_id);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints so cascading deletes work.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range sqliteMigrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqliteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	err := s.saveRun(ctx, rec)
	if err != nil {
		metrics.StoreWritesTotal.WithLabelValues("sqlite", "error").Inc()
		return err
	}
	metrics.StoreWritesTotal.WithLabelValues("sqlite", "ok").Inc()
	return nil
}

func (s *sqliteStore) saveRun(ctx context.Context, rec *RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs(id, strategy, results_path, events_path, baseline_path, status, error, event_count, created_at, completed_at)
        VALUES(?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            status       = excluded.status,
            error        = excluded.error,
            event_count  = excluded.event_count,
            completed_at = excluded.completed_at
    `,
		rec.ID, rec.Strategy, rec.ResultsPath, rec.EventsPath, rec.BaselinePath,
		rec.Status, rec.Error, rec.EventCount,
		rec.CreatedAt.UTC(), rec.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	// Replace children wholesale. The assessments cascade with their events.
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_events WHERE run_id=?`, rec.ID); err != nil {
		return fmt.Errorf("delete run events: %w", err)
	}

	for _, ev := range rec.Events {
		res, err := tx.ExecContext(ctx, `
            INSERT INTO run_events(run_id, pod, termination_ms, outcome, has_failures, success_rate, checks_seen)
            VALUES(?,?,?,?,?,?,?)
        `, rec.ID, ev.Pod, ev.TerminationMS, ev.Outcome, ev.HasFailures, ev.SuccessRate, ev.ChecksSeen)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		eventID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("event id: %w", err)
		}

		for _, a := range ev.Assessments {
			_, err := tx.ExecContext(ctx, `
                INSERT INTO run_assessments(event_id, metric, available,
                    baseline_count, baseline_mean, baseline_std_dev,
                    before_count, before_mean, before_std_dev,
                    after_count, after_mean, after_std_dev,
                    z_score, percent_change, z_label, pct_label)
                VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
            `, eventID, a.Metric, a.Available,
				a.BaselineCount, a.BaselineMean, a.BaselineStdDev,
				a.BeforeCount, a.BeforeMean, a.BeforeStdDev,
				a.AfterCount, a.AfterMean, a.AfterStdDev,
				a.ZScore, a.PercentChange, a.ZLabel, a.PctLabel)
			if err != nil {
				return fmt.Errorf("insert assessment: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,strategy,results_path,events_path,baseline_path,status,error,event_count,created_at,completed_at FROM runs WHERE id=?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	// events
	eRows, err := s.db.QueryContext(ctx, `SELECT id,pod,termination_ms,outcome,has_failures,success_rate,checks_seen FROM run_events WHERE run_id=? ORDER BY termination_ms ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer eRows.Close()

	byID := make(map[int64]int)
	for eRows.Next() {
		var ev EventRecord
		ev.RunID = id
		if err := eRows.Scan(&ev.ID, &ev.Pod, &ev.TerminationMS, &ev.Outcome, &ev.HasFailures, &ev.SuccessRate, &ev.ChecksSeen); err != nil {
			return nil, err
		}
		byID[ev.ID] = len(rec.Events)
		rec.Events = append(rec.Events, ev)
	}
	if err := eRows.Err(); err != nil {
		return nil, err
	}

	// assessments, bucketed onto their events
	aRows, err := s.db.QueryContext(ctx, `
        SELECT a.id, a.event_id, a.metric, a.available,
               a.baseline_count, a.baseline_mean, a.baseline_std_dev,
               a.before_count, a.before_mean, a.before_std_dev,
               a.after_count, a.after_mean, a.after_std_dev,
               a.z_score, a.percent_change, a.z_label, a.pct_label
        FROM run_assessments a
        JOIN run_events e ON a.event_id = e.id
        WHERE e.run_id=?
        ORDER BY a.event_id ASC, a.id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer aRows.Close()

	for aRows.Next() {
		var a AssessmentRecord
		if err := aRows.Scan(&a.ID, &a.EventID, &a.Metric, &a.Available,
			&a.BaselineCount, &a.BaselineMean, &a.BaselineStdDev,
			&a.BeforeCount, &a.BeforeMean, &a.BeforeStdDev,
			&a.AfterCount, &a.AfterMean, &a.AfterStdDev,
			&a.ZScore, &a.PercentChange, &a.ZLabel, &a.PctLabel); err != nil {
			return nil, err
		}
		if idx, ok := byID[a.EventID]; ok {
			rec.Events[idx].Assessments = append(rec.Events[idx].Assessments, a)
		}
	}
	return rec, aRows.Err()
}

func (s *sqliteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,strategy,results_path,events_path,baseline_path,status,error,event_count,created_at,completed_at FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id=?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	rec := &RunRecord{}
	var createdAt, completedAt string
	err := row.Scan(&rec.ID, &rec.Strategy, &rec.ResultsPath, &rec.EventsPath, &rec.BaselinePath,
		&rec.Status, &rec.Error, &rec.EventCount, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = parseDBTime(createdAt)
	rec.CompletedAt, _ = parseDBTime(completedAt)
	return rec, nil
}

// parseDBTime handles multiple SQLite datetime formats.
func parseDBTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
