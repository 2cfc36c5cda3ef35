package stores

import (
	"context"
	"errors"
	"time"

	"github.com/graphicspice/gspice/pkg/circuit"
	"github.com/graphicspice/gspice/pkg/engine"
	"github.com/graphicspice/gspice/pkg/units"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ModelRecord is a device model stored in the library.
type ModelRecord struct {
	Name      string                 `json:"name"`
	Polarity  circuit.Polarity       `json:"polarity"`
	Params    map[string]units.Value `json:"params"`
	Source    string                 `json:"source"` // file the model was imported from
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Model returns the record as a circuit model.
func (r *ModelRecord) Model() *circuit.BJTModel {
	return &circuit.BJTModel{
		Name:     r.Name,
		Polarity: r.Polarity,
		Params:   r.Params,
	}
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run history, written by the orchestrator
	SaveRun(ctx context.Context, run *engine.Run) error
	GetRun(ctx context.Context, id string) (*engine.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*engine.Run, error)
	DeleteRun(ctx context.Context, id string) error
	SaveSimulation(ctx context.Context, sim *engine.SimulationRecord) error
	ListSimulations(ctx context.Context, runID string) ([]*engine.SimulationRecord, error)

	// Model library
	UpsertModel(ctx context.Context, model *circuit.BJTModel, source string) error
	UpsertModels(ctx context.Context, models []*circuit.BJTModel, source string) (int, error)
	GetModel(ctx context.Context, name string) (*ModelRecord, error)
	ListModels(ctx context.Context) ([]*ModelRecord, error)
	DeleteModel(ctx context.Context, name string) error
	ResolveBJT(ctx context.Context, name string) (*circuit.BJTModel, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
