package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/genprop/genprop/pkg/engine"
	"github.com/genprop/genprop/pkg/results"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: is a separate database, so pin one that
	// never expires.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection. File databases use WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite&_txlock=immediate"
	if s.cfg.Path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = s.RollbackTx(tx)
		return err
	}
	if err := s.CommitTx(tx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func notFound(kind, id string) error {
	return engine.NewPermanentError(kind+" not found", nil).
		WithCode(engine.ErrCodeNotFound).
		WithResource(id)
}

// SaveEvidence stores the evidence of cache.SampleName, replacing whatever
// was stored for that sample before.
func (s *SQLiteStore) SaveEvidence(ctx context.Context, cache *engine.AssignmentCache) error {
	if cache == nil || cache.SampleName == "" {
		return engine.NewPermanentError("evidence has no sample name", nil).
			WithCode(engine.ErrCodeValidation)
	}

	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO samples (name, created_at, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at
		`, cache.SampleName, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert sample: %w", err)
		}

		for _, table := range []string{"sample_property_results", "sample_step_results", "sample_matches"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE sample = ?", cache.SampleName); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		if err := insertCache(ctx, tx, cache, "sample_property_results", "sample_step_results", ""); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO sample_matches (sample, identifier) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare match insert: %w", err)
		}
		defer stmt.Close()
		for _, ident := range cache.Matches() {
			if _, err := stmt.ExecContext(ctx, cache.SampleName, ident); err != nil {
				return fmt.Errorf("failed to insert match %s: %w", ident, err)
			}
		}

		return nil
	})
}

// insertCache writes the property and step results of cache. When runID is
// set, rows are keyed by run as well as sample.
func insertCache(ctx context.Context, tx *sql.Tx, cache *engine.AssignmentCache, propertyTable, stepTable, runID string) error {
	propertyQuery := "INSERT INTO " + propertyTable + " (sample, property_id, result) VALUES (?, ?, ?)"
	stepQuery := "INSERT INTO " + stepTable + " (sample, property_id, step_number, result) VALUES (?, ?, ?, ?)"
	if runID != "" {
		propertyQuery = "INSERT INTO " + propertyTable + " (run_id, sample, property_id, result) VALUES (?, ?, ?, ?)"
		stepQuery = "INSERT INTO " + stepTable + " (run_id, sample, property_id, step_number, result) VALUES (?, ?, ?, ?, ?)"
	}

	withRun := func(args ...any) []any {
		if runID == "" {
			return args
		}
		return append([]any{runID}, args...)
	}

	propertyStmt, err := tx.PrepareContext(ctx, propertyQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare property insert: %w", err)
	}
	defer propertyStmt.Close()

	for id, result := range cache.PropertyResults() {
		if _, err := propertyStmt.ExecContext(ctx, withRun(cache.SampleName, id, result.String())...); err != nil {
			return fmt.Errorf("failed to insert property result %s: %w", id, err)
		}
	}

	stepStmt, err := tx.PrepareContext(ctx, stepQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare step insert: %w", err)
	}
	defer stepStmt.Close()

	for id, byNumber := range cache.StepResults() {
		for number, result := range byNumber {
			if _, err := stepStmt.ExecContext(ctx, withRun(cache.SampleName, id, number, result.String())...); err != nil {
				return fmt.Errorf("failed to insert step result %s/%d: %w", id, number, err)
			}
		}
	}

	return nil
}

// LoadEvidence rebuilds the assignment cache stored for sample.
func (s *SQLiteStore) LoadEvidence(ctx context.Context, sample string) (*engine.AssignmentCache, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM samples WHERE name = ?`, sample).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, notFound("sample", sample)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sample: %w", err)
	}

	cache := engine.NewAssignmentCache(sample)
	if err := s.readResults(ctx, cache,
		`SELECT property_id, result FROM sample_property_results WHERE sample = ?`,
		`SELECT property_id, step_number, result FROM sample_step_results WHERE sample = ?`,
		sample,
	); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT identifier FROM sample_matches WHERE sample = ?`, sample)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ident string
		if err := rows.Scan(&ident); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		cache.AddMatches(ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}

	return cache, nil
}

// readResults fills cache from a property query and a step query that both
// take args.
func (s *SQLiteStore) readResults(ctx context.Context, cache *engine.AssignmentCache, propertyQuery, stepQuery string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, propertyQuery, args...)
	if err != nil {
		return fmt.Errorf("failed to query property results: %w", err)
	}
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan property result: %w", err)
		}
		result, err := engine.ParseResult(text)
		if err != nil {
			rows.Close()
			return fmt.Errorf("property %s: %w", id, err)
		}
		cache.CacheProperty(id, result)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating property results: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, stepQuery, args...)
	if err != nil {
		return fmt.Errorf("failed to query step results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			number int
			text   string
		)
		if err := rows.Scan(&id, &number, &text); err != nil {
			return fmt.Errorf("failed to scan step result: %w", err)
		}
		result, err := engine.ParseResult(text)
		if err != nil {
			return fmt.Errorf("step %s/%d: %w", id, number, err)
		}
		cache.CacheStep(id, number, result)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating step results: %w", err)
	}

	return nil
}

// ListSamples lists stored samples by name
func (s *SQLiteStore) ListSamples(ctx context.Context) ([]*Sample, error) {
	query := `
		SELECT s.name,
			(SELECT COUNT(*) FROM sample_property_results p WHERE p.sample = s.name),
			(SELECT COUNT(*) FROM sample_step_results st WHERE st.sample = s.name),
			(SELECT COUNT(*) FROM sample_matches m WHERE m.sample = s.name),
			s.created_at, s.updated_at
		FROM samples s
		ORDER BY s.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	samples := []*Sample{}
	for rows.Next() {
		sample := &Sample{}
		err := rows.Scan(
			&sample.Name,
			&sample.PropertyResults,
			&sample.StepResults,
			&sample.Matches,
			&sample.CreatedAt,
			&sample.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}

	return samples, nil
}

// DeleteSample deletes a sample and its evidence
func (s *SQLiteStore) DeleteSample(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete sample: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return notFound("sample", name)
	}

	return nil
}

// CreateRun creates a new run record. Zero timestamps are set to now.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, tree_path, root_property, status, parallelism, started_at, completed_at, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			run.TreePath,
			run.RootProperty,
			run.Status,
			run.Parallelism,
			run.StartedAt.UTC(),
			utcPtr(run.CompletedAt),
			run.Error,
			run.CreatedAt.UTC(),
			run.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}

		for i, sample := range run.Samples {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_samples (run_id, position, sample) VALUES (?, ?, ?)`,
				run.ID, i, sample,
			); err != nil {
				return fmt.Errorf("failed to add sample %s to run: %w", sample, err)
			}
		}

		return nil
	})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, tree_path, root_property, status, parallelism, started_at, completed_at, error, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.Samples, err = s.runSamples(ctx, id); err != nil {
		return nil, err
	}

	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID,
		&run.TreePath,
		&run.RootProperty,
		&run.Status,
		&run.Parallelism,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	return run, err
}

// runSamples returns the sample columns of a run in order.
func (s *SQLiteStore) runSamples(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sample FROM run_samples WHERE run_id = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run samples: %w", err)
	}
	defer rows.Close()

	samples := []string{}
	for rows.Next() {
		var sample string
		if err := rows.Scan(&sample); err != nil {
			return nil, fmt.Errorf("failed to scan run sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run samples: %w", err)
	}

	return samples, nil
}

// UpdateRunStatus updates the status of a run
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	var completedAt *time.Time
	if status.Done() {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return notFound("run", id)
	}

	return nil
}

// ListRuns lists runs with pagination, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, tree_path, root_property, status, parallelism, started_at, completed_at, error, created_at, updated_at
		FROM runs
		ORDER BY started_at DESC, id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	rows.Close()

	// Sample lists are read after the cursor is closed; an in-memory store
	// has a single connection.
	for _, run := range runs {
		if run.Samples, err = s.runSamples(ctx, run.ID); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

// DeleteRun deletes a run with its results and events
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return notFound("run", id)
	}

	return nil
}

// SaveResults stores the property and step tables of res under runID. The
// run's sample columns must match the columns of res.
func (s *SQLiteStore) SaveResults(ctx context.Context, runID string, res *results.Results) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	samples := res.Samples()
	if !equalStrings(run.Samples, samples) {
		return engine.NewPermanentError(
			fmt.Sprintf("run has samples %v, results have %v", run.Samples, samples), nil).
			WithCode(engine.ErrCodeValidation).
			WithResource(runID)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"run_property_results", "run_step_results"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for col, sample := range samples {
			cache := engine.NewAssignmentCache(sample)
			properties := res.Properties()
			for _, id := range properties.Keys() {
				cache.CacheProperty(id, properties.Lookup(id)[col])
			}
			steps := res.Steps()
			for _, key := range steps.Keys() {
				cache.CacheStep(key.PropertyID, key.Number, steps.Lookup(key)[col])
			}

			if err := insertCache(ctx, tx, cache, "run_property_results", "run_step_results", runID); err != nil {
				return err
			}
		}

		return nil
	})
}

// LoadResults rebuilds the result tables stored for runID. tree must be the
// tree the run was assigned against.
func (s *SQLiteStore) LoadResults(ctx context.Context, runID string, tree *engine.Tree) (*results.Results, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if tree != nil && tree.RootID() != run.RootProperty {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("run was assigned from root %s, tree has root %s", run.RootProperty, tree.RootID()), nil).
			WithCode(engine.ErrCodeValidation).
			WithResource(runID)
	}

	caches := make([]*engine.AssignmentCache, len(run.Samples))
	for i, sample := range run.Samples {
		caches[i] = engine.NewAssignmentCache(sample)
		if err := s.readResults(ctx, caches[i],
			`SELECT property_id, result FROM run_property_results WHERE run_id = ? AND sample = ?`,
			`SELECT property_id, step_number, result FROM run_step_results WHERE run_id = ? AND sample = ?`,
			runID, sample,
		); err != nil {
			return nil, err
		}
	}

	return results.Assemble(tree, caches...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AppendEvent appends an event to a run
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, sample, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.RunID,
		event.Sample,
		event.Level,
		event.Message,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves the events of a run in insertion order, optionally
// filtered by level
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, run_id, sample, level, message, timestamp
		FROM events
		WHERE run_id = ?
		  AND (? IS NULL OR level = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Sample,
			&event.Level,
			&event.Message,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
