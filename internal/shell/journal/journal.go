package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/flowstack/internal/shell/sequencer"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultPath is where the journal lives unless configured otherwise. It is
// outside the config directory so that cleanup keeps the history.
const DefaultPath = "/var/lib/flowstack/journal.db"

// =============================================================================
// Types
// =============================================================================

// RunMeta describes what a run was asked to do.
type RunMeta struct {
	Installation string
	Command      string
	Components   []string
	Domain       string
}

// Run is one journal entry.
type Run struct {
	ID           string
	Installation string
	Command      string
	Components   []string
	Domain       string
	Final        sequencer.State
	Missing      []string
	Error        string
	Started      time.Time
	Finished     time.Time
	Phases       []sequencer.PhaseRecord
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// =============================================================================
// Journal
// =============================================================================

// Journal stores runs in SQLite.
type Journal struct {
	db *sqlx.DB
}

// Open opens the journal at dsn and brings its schema up to date. The parent
// directory of a file path is created. ":memory:" opens a private database.
func Open(dsn string) (*Journal, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, NewStoreError("Open", "", "", err.Error(), ErrConnectionFailed)
		}
	}

	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("Open", "", "", "failed to open database", ErrConnectionFailed)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("Open", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("Open", "", "", err.Error(), ErrMigrationFailed)
	}

	return &Journal{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// =============================================================================
// Rows
// =============================================================================

type runRow struct {
	ID           string `db:"id"`
	Installation string `db:"installation"`
	Command      string `db:"command"`
	Components   string `db:"components"`
	Domain       string `db:"domain"`
	FinalState   string `db:"final_state"`
	Missing      string `db:"missing"`
	Error        string `db:"error"`
	StartedAt    string `db:"started_at"`
	FinishedAt   string `db:"finished_at"`
}

type phaseRow struct {
	RunID      string `db:"run_id"`
	Seq        int    `db:"seq"`
	Name       string `db:"name"`
	State      string `db:"state"`
	Status     string `db:"status"`
	Attempts   int    `db:"attempts"`
	DurationMS int64  `db:"duration_ms"`
	Error      string `db:"error"`
}

// =============================================================================
// Operations
// =============================================================================

// Record stores a finished run with its phase records in one transaction.
func (j *Journal) Record(ctx context.Context, meta RunMeta, report sequencer.Report) error {
	components, err := marshalList(meta.Components)
	if err != nil {
		return NewStoreError("Record", "run", report.RunID, err.Error(), ErrInvalidData)
	}
	missing, err := marshalList(report.Missing)
	if err != nil {
		return NewStoreError("Record", "run", report.RunID, err.Error(), ErrInvalidData)
	}

	row := runRow{
		ID:           report.RunID,
		Installation: meta.Installation,
		Command:      meta.Command,
		Components:   components,
		Domain:       meta.Domain,
		FinalState:   string(report.Final),
		Missing:      missing,
		StartedAt:    report.Started.UTC().Format(time.RFC3339Nano),
		FinishedAt:   report.Finished.UTC().Format(time.RFC3339Nano),
	}
	if report.Err != nil {
		row.Error = report.Err.Error()
	}

	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("Record", "run", report.RunID, "failed to begin transaction", ErrTxFailed)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, installation, command, components, domain, final_state, missing, error, started_at, finished_at)
		VALUES (:id, :installation, :command, :components, :domain, :final_state, :missing, :error, :started_at, :finished_at)`, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("Record", "run", report.RunID, "run already recorded", ErrDuplicateID)
		}
		return NewStoreError("Record", "run", report.RunID, err.Error(), err)
	}

	for i, p := range report.Phases {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO phases (run_id, seq, name, state, status, attempts, duration_ms, error)
			VALUES (:run_id, :seq, :name, :state, :status, :attempts, :duration_ms, :error)`, phaseRow{
			RunID:      report.RunID,
			Seq:        i,
			Name:       p.Name,
			State:      string(p.State),
			Status:     string(p.Status),
			Attempts:   p.Attempts,
			DurationMS: p.Duration.Milliseconds(),
			Error:      p.Error,
		})
		if err != nil {
			return NewStoreError("Record", "phase", p.Name, err.Error(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("Record", "run", report.RunID, "failed to commit transaction", ErrTxFailed)
	}
	return nil
}

// Get returns a run with its phases.
func (j *Journal) Get(ctx context.Context, id string) (*Run, error) {
	var row runRow
	err := j.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError("Get", "run", id, "run not found", ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("Get", "run", id, err.Error(), err)
	}

	run, err := rowToRun(row)
	if err != nil {
		return nil, err
	}

	var phases []phaseRow
	if err := j.db.SelectContext(ctx, &phases, `SELECT * FROM phases WHERE run_id = ? ORDER BY seq`, id); err != nil {
		return nil, NewStoreError("Get", "phase", id, err.Error(), err)
	}
	for _, p := range phases {
		run.Phases = append(run.Phases, sequencer.PhaseRecord{
			Name:     p.Name,
			State:    sequencer.State(p.State),
			Status:   sequencer.PhaseStatus(p.Status),
			Attempts: p.Attempts,
			Duration: time.Duration(p.DurationMS) * time.Millisecond,
			Error:    p.Error,
		})
	}
	return run, nil
}

// List returns the most recent runs first, without phases. A limit of zero
// or less returns every run.
func (j *Journal) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT * FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []runRow
	if err := j.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("List", "run", "", err.Error(), err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// =============================================================================
// Conversions
// =============================================================================

func rowToRun(row runRow) (*Run, error) {
	run := &Run{
		ID:           row.ID,
		Installation: row.Installation,
		Command:      row.Command,
		Domain:       row.Domain,
		Final:        sequencer.State(row.FinalState),
		Error:        row.Error,
	}

	var err error
	if run.Components, err = unmarshalList(row.Components); err != nil {
		return nil, NewStoreError("decode", "run", row.ID, "components: "+err.Error(), ErrInvalidData)
	}
	if run.Missing, err = unmarshalList(row.Missing); err != nil {
		return nil, NewStoreError("decode", "run", row.ID, "missing: "+err.Error(), ErrInvalidData)
	}
	if run.Started, err = time.Parse(time.RFC3339Nano, row.StartedAt); err != nil {
		return nil, NewStoreError("decode", "run", row.ID, "started_at: "+err.Error(), ErrInvalidData)
	}
	if run.Finished, err = time.Parse(time.RFC3339Nano, row.FinishedAt); err != nil {
		return nil, NewStoreError("decode", "run", row.ID, "finished_at: "+err.Error(), ErrInvalidData)
	}
	return run, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func unmarshalList(s string) ([]string, error) {
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, err
	}
	return items, nil
}
