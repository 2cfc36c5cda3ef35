package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/graphicspice/gspice/pkg/canvas"
	"github.com/graphicspice/gspice/pkg/circuit"
	"github.com/graphicspice/gspice/pkg/engine"
	"github.com/graphicspice/gspice/pkg/units"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ Store                = (*SQLiteStore)(nil)
	_ engine.StateManager  = (*SQLiteStore)(nil)
	_ canvas.ModelResolver = (*SQLiteStore)(nil)
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

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

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database, enables WAL mode and foreign keys.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"

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

// SaveRun creates or updates a run record
func (s *SQLiteStore) SaveRun(ctx context.Context, run *engine.Run) error {
	query := `
		INSERT INTO runs (id, status, requests, workers, started_at, completed_at, duration_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			requests = excluded.requests,
			workers = excluded.workers,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		string(run.Status),
		run.Requests,
		run.Workers,
		run.StartedAt,
		run.CompletedAt,
		run.Duration.Milliseconds(),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.Run, error) {
	query := `
		SELECT id, status, requests, workers, started_at, completed_at, duration_ms
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs with pagination, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*engine.Run, error) {
	query := `
		SELECT id, status, requests, workers, started_at, completed_at, duration_ms
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run and its simulations
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return expectRow(result, "run", id)
}

// SaveSimulation creates or updates a simulation record
func (s *SQLiteStore) SaveSimulation(ctx context.Context, sim *engine.SimulationRecord) error {
	query := `
		INSERT INTO simulations (run_id, request_id, analysis, worker, status, reason, points, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, request_id) DO UPDATE SET
			worker = excluded.worker,
			status = excluded.status,
			reason = excluded.reason,
			points = excluded.points,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		sim.RunID,
		sim.RequestID,
		sim.Analysis,
		sim.Worker,
		string(sim.Status),
		sim.Reason,
		sim.Points,
		sim.StartedAt,
		sim.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save simulation: %w", err)
	}

	return nil
}

// ListSimulations lists the simulations of a run in start order
func (s *SQLiteStore) ListSimulations(ctx context.Context, runID string) ([]*engine.SimulationRecord, error) {
	query := `
		SELECT run_id, request_id, analysis, worker, status, reason, points, started_at, completed_at
		FROM simulations
		WHERE run_id = ?
		ORDER BY started_at ASC, request_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulations: %w", err)
	}
	defer rows.Close()

	sims := []*engine.SimulationRecord{}
	for rows.Next() {
		sim := &engine.SimulationRecord{}
		var status string
		err := rows.Scan(
			&sim.RunID,
			&sim.RequestID,
			&sim.Analysis,
			&sim.Worker,
			&status,
			&sim.Reason,
			&sim.Points,
			&sim.StartedAt,
			&sim.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		sim.Status = engine.StatusKind(status)
		sims = append(sims, sim)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating simulations: %w", err)
	}

	return sims, nil
}

// UpsertModel inserts or replaces a device model. Names are case-insensitive.
func (s *SQLiteStore) UpsertModel(ctx context.Context, model *circuit.BJTModel, source string) error {
	return upsertModel(ctx, s.db, model, source)
}

// UpsertModels stores models in one transaction and returns how many were
// written.
func (s *SQLiteStore) UpsertModels(ctx context.Context, models []*circuit.BJTModel, source string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, m := range models {
		if err := upsertModel(ctx, tx, m, source); err != nil {
			_ = tx.Rollback()
			return i, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit models: %w", err)
	}
	return len(models), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertModel(ctx context.Context, db execer, model *circuit.BJTModel, source string) error {
	if model == nil || strings.TrimSpace(model.Name) == "" {
		return fmt.Errorf("model has no name")
	}
	// Rendering validates polarity and parameter names.
	if _, err := model.Directive(); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}

	params, err := json.Marshal(model.Params)
	if err != nil {
		return fmt.Errorf("failed to encode model parameters: %w", err)
	}
	if model.Params == nil {
		params = []byte("{}")
	}

	query := `
		INSERT INTO models (name_key, name, polarity, params, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name_key) DO UPDATE SET
			name = excluded.name,
			polarity = excluded.polarity,
			params = excluded.params,
			source = excluded.source,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	_, err = db.ExecContext(ctx, query,
		modelKey(model.Name),
		model.Name,
		string(model.Polarity),
		string(params),
		source,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert model %s: %w", model.Name, err)
	}

	return nil
}

// GetModel retrieves a model by name
func (s *SQLiteStore) GetModel(ctx context.Context, name string) (*ModelRecord, error) {
	query := `
		SELECT name, polarity, params, source, created_at, updated_at
		FROM models
		WHERE name_key = ?
	`

	rec, err := scanModel(s.db.QueryRowContext(ctx, query, modelKey(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	return rec, nil
}

// ListModels lists all models ordered by name
func (s *SQLiteStore) ListModels(ctx context.Context) ([]*ModelRecord, error) {
	query := `
		SELECT name, polarity, params, source, created_at, updated_at
		FROM models
		ORDER BY name_key ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	models := []*ModelRecord{}
	for rows.Next() {
		rec, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating models: %w", err)
	}

	return models, nil
}

// DeleteModel deletes a model by name
func (s *SQLiteStore) DeleteModel(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE name_key = ?`, modelKey(name))
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return expectRow(result, "model", name)
}

// ResolveBJT returns the transistor model called name.
func (s *SQLiteStore) ResolveBJT(ctx context.Context, name string) (*circuit.BJTModel, error) {
	rec, err := s.GetModel(ctx, name)
	if err != nil {
		return nil, err
	}
	return rec.Model(), nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*engine.Run, error) {
	run := &engine.Run{}
	var status string
	var durationMs int64
	err := row.Scan(
		&run.ID,
		&status,
		&run.Requests,
		&run.Workers,
		&run.StartedAt,
		&run.CompletedAt,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}
	run.Status = engine.MainStatus(status)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return run, nil
}

func scanModel(row scanner) (*ModelRecord, error) {
	rec := &ModelRecord{}
	var polarity, params string
	err := row.Scan(
		&rec.Name,
		&polarity,
		&params,
		&rec.Source,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Polarity = circuit.Polarity(polarity)
	rec.Params = make(map[string]units.Value)
	if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
		return nil, fmt.Errorf("model %s: failed to decode parameters: %w", rec.Name, err)
	}
	return rec, nil
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func modelKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
