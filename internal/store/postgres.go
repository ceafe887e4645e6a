package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/resilitics/resilitics/internal/metrics"
)

var postgresMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    strategy      TEXT NOT NULL DEFAULT 'global',
    results_path  TEXT NOT NULL DEFAULT '',
    events_path   TEXT NOT NULL DEFAULT '',
    baseline_path TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'running',
    error         TEXT NOT NULL DEFAULT '',
    event_count   INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL,
    completed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS run_events (
    id             BIGSERIAL PRIMARY KEY,
    run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    pod            TEXT NOT NULL,
    termination_ms BIGINT NOT NULL,
    outcome        TEXT NOT NULL,
    has_failures   BOOLEAN NOT NULL DEFAULT FALSE,
    success_rate   DOUBLE PRECISION NOT NULL DEFAULT 100.0,
    checks_seen    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, termination_ms ASC);

CREATE TABLE IF NOT EXISTS run_assessments (
    id               BIGSERIAL PRIMARY KEY,
    event_id         BIGINT NOT NULL REFERENCES run_events(id) ON DELETE CASCADE,
    metric           TEXT NOT NULL,
    available        BOOLEAN NOT NULL DEFAULT FALSE,
    baseline_count   INTEGER NOT NULL DEFAULT 0,
    baseline_mean    DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    baseline_std_dev DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    before_count     INTEGER NOT NULL DEFAULT 0,
    before_mean      DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    before_std_dev   DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    after_count      INTEGER NOT NULL DEFAULT 0,
    after_mean       DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    after_std_dev    DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    z_score          DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    percent_change   DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    z_label          TEXT NOT NULL DEFAULT '',
    pct_label        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_run_assessments_event ON run_assessments(event_id);
`,
	},
}

// postgresStore is the PostgreSQL-backed implementation of Store.
type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to PostgreSQL and runs pending schema migrations.
func NewPostgresStore(connectionString string) (Store, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &postgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *postgresStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range postgresMigrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = $1`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES($1)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *postgresStore) Close() error { return s.db.Close() }

func (s *postgresStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *postgresStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	err := s.saveRun(ctx, rec)
	if err != nil {
		metrics.StoreWritesTotal.WithLabelValues("postgres", "error").Inc()
		return err
	}
	metrics.StoreWritesTotal.WithLabelValues("postgres", "ok").Inc()
	return nil
}

func (s *postgresStore) saveRun(ctx context.Context, rec *RunRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs(id, strategy, results_path, events_path, baseline_path, status, error, event_count, created_at, completed_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_events WHERE run_id=$1`, rec.ID); err != nil {
		return fmt.Errorf("delete run events: %w", err)
	}

	for _, ev := range rec.Events {
		// lib/pq does not support LastInsertId, so the id comes back via RETURNING.
		var eventID int64
		err := tx.QueryRowContext(ctx, `
            INSERT INTO run_events(run_id, pod, termination_ms, outcome, has_failures, success_rate, checks_seen)
            VALUES($1,$2,$3,$4,$5,$6,$7)
            RETURNING id
        `, rec.ID, ev.Pod, ev.TerminationMS, ev.Outcome, ev.HasFailures, ev.SuccessRate, ev.ChecksSeen).Scan(&eventID)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		for _, a := range ev.Assessments {
			_, err := tx.ExecContext(ctx, `
                INSERT INTO run_assessments(event_id, metric, available,
                    baseline_count, baseline_mean, baseline_std_dev,
                    before_count, before_mean, before_std_dev,
                    after_count, after_mean, after_std_dev,
                    z_score, percent_change, z_label, pct_label)
                VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
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

func (s *postgresStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	rec := &RunRecord{}
	err := s.db.GetContext(ctx, rec, `
        SELECT id,strategy,results_path,events_path,baseline_path,status,error,event_count,created_at,completed_at
        FROM runs WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var events []EventRecord
	err = s.db.SelectContext(ctx, &events, `
        SELECT id,run_id,pod,termination_ms,outcome,has_failures,success_rate,checks_seen
        FROM run_events WHERE run_id=$1 ORDER BY termination_ms ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	rec.Events = events

	byID := make(map[int64]int, len(events))
	for i := range rec.Events {
		byID[rec.Events[i].ID] = i
	}

	var assessments []AssessmentRecord
	err = s.db.SelectContext(ctx, &assessments, `
        SELECT a.id, a.event_id, a.metric, a.available,
               a.baseline_count, a.baseline_mean, a.baseline_std_dev,
               a.before_count, a.before_mean, a.before_std_dev,
               a.after_count, a.after_mean, a.after_std_dev,
               a.z_score, a.percent_change, a.z_label, a.pct_label
        FROM run_assessments a
        JOIN run_events e ON a.event_id = e.id
        WHERE e.run_id=$1
        ORDER BY a.event_id ASC, a.id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	for _, a := range assessments {
		if idx, ok := byID[a.EventID]; ok {
			rec.Events[idx].Assessments = append(rec.Events[idx].Assessments, a)
		}
	}

	return rec, nil
}

func (s *postgresStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []*RunRecord
	err := s.db.SelectContext(ctx, &runs, `
        SELECT id,strategy,results_path,events_path,baseline_path,status,error,event_count,created_at,completed_at
        FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	return runs, err
}

func (s *postgresStore) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id=$1`, id)
	return err
}
