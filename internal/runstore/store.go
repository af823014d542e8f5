// Package runstore keeps a SQLite ledger of reconciliation runs.
package runstore

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/colm-brandon-ul/cellmaps/internal/config"
	"github.com/colm-brandon-ul/cellmaps/internal/reconcile"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("runstore: run not found")

// Run is one recorded reconciliation.
type Run struct {
	RunID        string
	NucleusPath  string
	MembranePath string
	OutputPath   string
	Rows         int
	Cols         int
	Nuclei       int
	Matched      int
	Contested    int
	NoOverlap    int
	Faulted      int
	Skipped      int
	Distance     float64
	Elapsed      time.Duration
	Config       *config.ReconcileConfig
	CreatedAt    int64 // unix nanoseconds
}

// Orphans returns the number of nuclei that were grown instead of matched.
func (r *Run) Orphans() int { return r.Contested + r.NoOverlap + r.Faulted }

// NewRun summarises a reconciliation result. Paths are left for the caller.
func NewRun(res *reconcile.Result, cfg *config.ReconcileConfig) *Run {
	return &Run{
		Rows:      res.Final.Rows,
		Cols:      res.Final.Cols,
		Nuclei:    len(res.Correspondences) + res.Skipped,
		Matched:   res.Matched,
		Contested: res.Contested,
		NoOverlap: res.NoOverlap,
		Faulted:   res.Faulted,
		Skipped:   res.Skipped,
		Distance:  res.Distance,
		Elapsed:   res.Elapsed,
		Config:    cfg,
	}
}

// Store persists runs in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// m is not closed: that would close db.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Insert stores run, assigning RunID and CreatedAt when they are unset.
func (s *Store) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var cfgJSON sql.NullString
	if run.Config != nil {
		b, err := json.Marshal(run.Config)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		cfgJSON = sql.NullString{String: string(b), Valid: true}
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO reconcile_runs (
				run_id, nucleus_path, membrane_path, output_path, height, width,
				nuclei, matched, contested, no_overlap, faulted, skipped,
				distance, elapsed_ns, config_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.NucleusPath, run.MembranePath, run.OutputPath, run.Rows, run.Cols,
			run.Nuclei, run.Matched, run.Contested, run.NoOverlap, run.Faulted, run.Skipped,
			run.Distance, int64(run.Elapsed), cfgJSON, run.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

const selectRun = `
	SELECT run_id, nucleus_path, membrane_path, output_path, height, width,
	       nuclei, matched, contested, no_overlap, faulted, skipped,
	       distance, elapsed_ns, config_json, created_at
	FROM reconcile_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var elapsed int64
	var cfgJSON sql.NullString
	err := row.Scan(
		&r.RunID, &r.NucleusPath, &r.MembranePath, &r.OutputPath, &r.Rows, &r.Cols,
		&r.Nuclei, &r.Matched, &r.Contested, &r.NoOverlap, &r.Faulted, &r.Skipped,
		&r.Distance, &elapsed, &cfgJSON, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Elapsed = time.Duration(elapsed)
	if cfgJSON.Valid && cfgJSON.String != "" {
		r.Config = config.EmptyReconcileConfig()
		if err := json.Unmarshal([]byte(cfgJSON.String), r.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config for run %s: %w", r.RunID, err)
		}
	}
	return &r, nil
}

// Get returns the run with the given id.
func (s *Store) Get(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(selectRun+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (s *Store) List(limit int) ([]*Run, error) {
	query := selectRun + ` ORDER BY created_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const (
	busyRetries   = 5
	busyBaseDelay = 10 * time.Millisecond
)

// retryOnBusy runs fn, retrying with exponential backoff while SQLite
// reports the database as locked.
func retryOnBusy(fn func() error) error {
	var err error
	delay := busyBaseDelay
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); !isSQLiteBusy(err) {
			return err
		}
		if attempt < busyRetries-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("database busy after %d attempts: %w", busyRetries, err)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
