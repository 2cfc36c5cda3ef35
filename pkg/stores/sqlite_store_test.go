package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/graphicspice/gspice/pkg/circuit"
	"github.com/graphicspice/gspice/pkg/engine"
	"github.com/graphicspice/gspice/pkg/units"
)

// setupTestStore creates a migrated SQLite store in a temporary directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "gspice.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func testModel(name string, polarity circuit.Polarity, bf string) *circuit.BJTModel {
	return &circuit.BJTModel{
		Name:     name,
		Polarity: polarity,
		Params: map[string]units.Value{
			"IS": units.MustParse("1.41f"),
			"BF": units.MustParse(bf),
		},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "lifecycle.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "simulations", "models"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

// TestRunCRUD tests run history operations
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute).Truncate(time.Millisecond)

	run := &engine.Run{
		ID:        "run-001",
		Status:    engine.MainRunning,
		Requests:  3,
		Workers:   2,
		StartedAt: started,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != engine.MainRunning || got.Requests != 3 || got.Workers != 2 {
		t.Errorf("unexpected run %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("expected no CompletedAt, got %v", got.CompletedAt)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	// Update
	completed := started.Add(1500 * time.Millisecond)
	run.Status = engine.MainDone
	run.CompletedAt = &completed
	run.Duration = 1500 * time.Millisecond
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("failed to update run: %v", err)
	}

	got, err = store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get updated run: %v", err)
	}
	if got.Status != engine.MainDone {
		t.Errorf("expected Status %s, got %s", engine.MainDone, got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completed)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", got.Duration)
	}

	// Delete
	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := store.GetRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"old", "middle", "new"} {
		run := &engine.Run{
			ID:        id,
			Status:    engine.MainDone,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "middle" {
		t.Errorf("unexpected page %v", runIDs(runs))
	}

	runs, err = store.ListRuns(ctx, 2, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "old" {
		t.Errorf("unexpected second page %v", runIDs(runs))
	}
}

func runIDs(runs []*engine.Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

// TestSimulationCRUD tests per-request records
func TestSimulationCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// Simulations reference their run.
	orphan := &engine.SimulationRecord{RunID: "missing", RequestID: "a", Analysis: "op", StartedAt: now}
	if err := store.SaveSimulation(ctx, orphan); err == nil {
		t.Error("expected foreign key violation for unknown run")
	}

	run := &engine.Run{ID: "run-002", Status: engine.MainRunning, StartedAt: now}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	sims := []*engine.SimulationRecord{
		{RunID: run.ID, RequestID: "tran", Analysis: "tran", Worker: 0, StartedAt: now},
		{RunID: run.ID, RequestID: "op", Analysis: "op", Worker: 1, StartedAt: now.Add(time.Millisecond)},
	}
	for _, sim := range sims {
		if err := store.SaveSimulation(ctx, sim); err != nil {
			t.Fatalf("failed to save simulation: %v", err)
		}
	}

	completed := now.Add(time.Second)
	sims[0].Status = engine.StatusFailed
	sims[0].Reason = "engine exited with status 1"
	sims[0].Points = 42
	sims[0].CompletedAt = &completed
	if err := store.SaveSimulation(ctx, sims[0]); err != nil {
		t.Fatalf("failed to update simulation: %v", err)
	}

	got, err := store.ListSimulations(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list simulations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 simulations, got %d", len(got))
	}
	if got[0].RequestID != "tran" || got[1].RequestID != "op" {
		t.Errorf("unexpected order %s, %s", got[0].RequestID, got[1].RequestID)
	}
	if got[0].Status != engine.StatusFailed || got[0].Reason != sims[0].Reason || got[0].Points != 42 {
		t.Errorf("update not persisted: %+v", got[0])
	}
	if got[0].CompletedAt == nil || got[1].CompletedAt != nil {
		t.Errorf("unexpected completion times %v, %v", got[0].CompletedAt, got[1].CompletedAt)
	}
	if got[1].Worker != 1 {
		t.Errorf("Worker = %d, want 1", got[1].Worker)
	}

	// Deleting the run cascades.
	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	got, err = store.ListSimulations(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list simulations: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected simulations to be deleted with their run, got %d", len(got))
	}
}

// TestModelCRUD tests the model library
func TestModelCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpsertModel(ctx, testModel("2N3906", circuit.PNP, "180.7"), "bjt.lib"); err != nil {
		t.Fatalf("failed to upsert model: %v", err)
	}

	rec, err := store.GetModel(ctx, "2n3906")
	if err != nil {
		t.Fatalf("failed to get model: %v", err)
	}
	if rec.Name != "2N3906" || rec.Polarity != circuit.PNP || rec.Source != "bjt.lib" {
		t.Errorf("unexpected record %+v", rec)
	}
	if got := rec.Params["IS"].String(); got != "1.41f" {
		t.Errorf("IS = %s, want 1.41f", got)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	// Replace keeps one row per case-insensitive name.
	if err := store.UpsertModel(ctx, testModel("2n3906", circuit.PNP, "200"), "other.lib"); err != nil {
		t.Fatalf("failed to replace model: %v", err)
	}
	models, err := store.ListModels(ctx)
	if err != nil {
		t.Fatalf("failed to list models: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	if models[0].Params["BF"].Float64() != 200 || models[0].Source != "other.lib" {
		t.Errorf("replace not persisted: %+v", models[0])
	}

	if err := store.DeleteModel(ctx, "2N3906"); err != nil {
		t.Fatalf("failed to delete model: %v", err)
	}
	if _, err := store.GetModel(ctx, "2N3906"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteModel(ctx, "2N3906"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestUpsertModelRejectsInvalid(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	invalid := []*circuit.BJTModel{
		nil,
		{Polarity: circuit.NPN},
		{Name: "Q1", Polarity: "JFET"},
		{Name: "Q1", Polarity: circuit.NPN, Params: map[string]units.Value{"VTO": units.Plain(1)}},
	}
	for i, m := range invalid {
		if err := store.UpsertModel(ctx, m, ""); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestUpsertModelsIsAtomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	n, err := store.UpsertModels(ctx, []*circuit.BJTModel{
		testModel("2N3904", circuit.NPN, "416.4"),
		testModel("2N3906", circuit.PNP, "180.7"),
	}, "bjt.lib")
	if err != nil || n != 2 {
		t.Fatalf("UpsertModels = %d, %v", n, err)
	}

	_, err = store.UpsertModels(ctx, []*circuit.BJTModel{
		testModel("BC547", circuit.NPN, "300"),
		{Name: "broken"},
	}, "broken.lib")
	if err == nil {
		t.Fatal("expected error for invalid model")
	}

	models, err := store.ListModels(ctx)
	if err != nil {
		t.Fatalf("failed to list models: %v", err)
	}
	if len(models) != 2 || models[0].Name != "2N3904" || models[1].Name != "2N3906" {
		t.Errorf("failed batch left partial writes: %d models", len(models))
	}
}

func TestResolveBJT(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpsertModel(ctx, testModel("Q2N2222", circuit.NPN, "255.9"), ""); err != nil {
		t.Fatalf("failed to upsert model: %v", err)
	}

	m, err := store.ResolveBJT(ctx, "q2n2222")
	if err != nil {
		t.Fatalf("ResolveBJT failed: %v", err)
	}
	d, err := m.Directive()
	if err != nil {
		t.Fatalf("Directive failed: %v", err)
	}
	if d != ".model Q2N2222 NPN(IS=1.41f BF=255.9)" {
		t.Errorf("Directive = %q", d)
	}

	if _, err := store.ResolveBJT(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
