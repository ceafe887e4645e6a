// Package store persists impact analysis runs.
//
// Responsibilities:
//   - Record each analysis run with its inputs and status
//   - Persist per-event assessments so past runs can be compared
//   - Serve run history to the API server and CLI
//
// Two backends implement the Store interface: SQLite (default, pure Go,
// no CGO) and PostgreSQL for shared deployments.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run ID has no persisted record.
var ErrRunNotFound = errors.New("run not found")

// Run status values.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is the DB representation of one analysis run.
type RunRecord struct {
	ID           string    `json:"id" db:"id"`
	Strategy     string    `json:"strategy" db:"strategy"`
	ResultsPath  string    `json:"results_path" db:"results_path"`
	EventsPath   string    `json:"events_path" db:"events_path"`
	BaselinePath string    `json:"baseline_path" db:"baseline_path"`
	Status       string    `json:"status" db:"status"`
	Error        string    `json:"error" db:"error"`
	EventCount   int       `json:"event_count" db:"event_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	CompletedAt  time.Time `json:"completed_at" db:"completed_at"`

	// Events are loaded by GetRun and omitted by ListRuns.
	Events []EventRecord `json:"events,omitempty" db:"-"`
}

// EventRecord is one assessed termination event within a run.
type EventRecord struct {
	ID            int64   `json:"id" db:"id"`
	RunID         string  `json:"run_id" db:"run_id"`
	Pod           string  `json:"pod" db:"pod"`
	TerminationMS int64   `json:"termination_ms" db:"termination_ms"`
	Outcome       string  `json:"outcome" db:"outcome"`
	HasFailures   bool    `json:"has_failures" db:"has_failures"`
	SuccessRate   float64 `json:"success_rate" db:"success_rate"`
	ChecksSeen    int     `json:"checks_seen" db:"checks_seen"`

	Assessments []AssessmentRecord `json:"assessments,omitempty" db:"-"`
}

// AssessmentRecord is one metric deviation for one event.
type AssessmentRecord struct {
	ID             int64   `json:"id" db:"id"`
	EventID        int64   `json:"event_id" db:"event_id"`
	Metric         string  `json:"metric" db:"metric"`
	Available      bool    `json:"available" db:"available"`
	BaselineCount  int     `json:"baseline_count" db:"baseline_count"`
	BaselineMean   float64 `json:"baseline_mean" db:"baseline_mean"`
	BaselineStdDev float64 `json:"baseline_std_dev" db:"baseline_std_dev"`
	BeforeCount    int     `json:"before_count" db:"before_count"`
	BeforeMean     float64 `json:"before_mean" db:"before_mean"`
	BeforeStdDev   float64 `json:"before_std_dev" db:"before_std_dev"`
	AfterCount     int     `json:"after_count" db:"after_count"`
	AfterMean      float64 `json:"after_mean" db:"after_mean"`
	AfterStdDev    float64 `json:"after_std_dev" db:"after_std_dev"`
	ZScore         float64 `json:"z_score" db:"z_score"`
	PercentChange  float64 `json:"percent_change" db:"percent_change"`
	ZLabel         string  `json:"z_label" db:"z_label"`
	PctLabel       string  `json:"pct_label" db:"pct_label"`
}

// Store is the persistence interface for analysis runs.
type Store interface {
	// SaveRun creates or updates a run record along with its events and
	// assessments. An existing run's children are replaced wholesale.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun retrieves a run by ID, including events and assessments.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns run records without children, newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error)

	// DeleteRun removes a run and all its events and assessments.
	DeleteRun(ctx context.Context, id string) error

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// Config selects and parameterizes the storage backend.
type Config struct {
	Type        string // "sqlite" | "postgres"
	SQLitePath  string
	PostgresURL string
}

// New opens the store described by cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		return NewPostgresStore(cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown store type %q, must be one of: sqlite, postgres", cfg.Type)
	}
}
