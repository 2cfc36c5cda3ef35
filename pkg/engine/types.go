package engine

import (
	"time"

	"github.com/graphicspice/gspice/pkg/ngspice"
)

// SimulationData is the value of every vector at one point of an analysis.
type SimulationData struct {
	// Computed is the number of vectors the engine computed for the point.
	Computed int `json:"computed"`

	// Index is the point index within the analysis.
	Index int `json:"index"`

	// Values holds one entry per vector, scale vector included.
	Values []ngspice.VectorValue `json:"values"`
}

func newSimulationData(v ngspice.VectorValuesAll) SimulationData {
	return SimulationData{Computed: v.Count, Index: v.Index, Values: v.Values}
}

// StatusEvent reports progress or the outcome of one request.
type StatusEvent struct {
	// ID is the request ID.
	ID string `json:"id"`

	// RunID is the run the request belongs to.
	RunID string `json:"run_id"`

	// Kind is the event kind.
	Kind StatusKind `json:"kind"`

	// Analysis names the running analysis for progress events.
	Analysis string `json:"analysis,omitempty"`

	// Percent is the progress percentage for progress events.
	Percent float64 `json:"percent,omitempty"`

	// Reason explains a Failed or Cancelled event.
	Reason string `json:"reason,omitempty"`

	// Worker is the worker that handled the request.
	Worker int `json:"worker"`
}

// DataEvent carries buffered data points of one request.
type DataEvent struct {
	// ID is the request ID.
	ID string `json:"id"`

	// RunID is the run the request belongs to.
	RunID string `json:"run_id"`

	// Data holds the points in the order the engine produced them.
	Data []SimulationData `json:"data"`

	// Worker is the worker that handled the request.
	Worker int `json:"worker"`
}

// Run is one invocation of Simulate.
type Run struct {
	// ID is the unique identifier of the run.
	ID string `json:"id"`

	// Status is the main status of the run.
	Status MainStatus `json:"status"`

	// Requests is the number of requests submitted.
	Requests int `json:"requests"`

	// Workers is the number of workers used.
	Workers int `json:"workers"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`
}

// SimulationRecord tracks one request through a run.
type SimulationRecord struct {
	// RunID is the run the request belongs to.
	RunID string `json:"run_id"`

	// RequestID is the caller supplied request ID.
	RequestID string `json:"request_id"`

	// Analysis is the analysis name, e.g. "tran".
	Analysis string `json:"analysis"`

	// Worker is the worker the request was assigned to.
	Worker int `json:"worker"`

	// Status is empty while the request is in flight, then its terminal kind.
	Status StatusKind `json:"status,omitempty"`

	// Reason explains a Failed or Cancelled request.
	Reason string `json:"reason,omitempty"`

	// Points is the number of data points delivered.
	Points int `json:"points"`

	// StartedAt is when the request was handed to the engine.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the request reached its terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
