package engine

import (
	"context"
	"time"

	"github.com/graphicspice/gspice/pkg/ngspice"
)

// Backend is one loaded engine instance owned by a single worker.
// *ngspice.Library satisfies it.
type Backend interface {
	// LoadCircuit sends a netlist to the engine line by line.
	LoadCircuit(lines []string) error

	// Command sends one command line, e.g. "bg_run" or "bg_halt".
	Command(command string) error

	// IsRunning reports whether the background analysis thread is running.
	IsRunning() bool

	// Close halts any analysis and releases the instance.
	Close() error
}

// BackendFactory opens the engine instance for one worker. Callbacks from the
// instance must be delivered to sink.
type BackendFactory interface {
	Open(worker int, sink ngspice.Sink) (Backend, error)
}

// BackendFactoryFunc adapts a function to BackendFactory.
type BackendFactoryFunc func(worker int, sink ngspice.Sink) (Backend, error)

// Open calls f.
func (f BackendFactoryFunc) Open(worker int, sink ngspice.Sink) (Backend, error) {
	return f(worker, sink)
}

// Emitter receives the events of a run. Workers call it concurrently; events
// of a single request always arrive from the same goroutine, in order.
type Emitter interface {
	// EmitStatus delivers a status event.
	EmitStatus(event StatusEvent)

	// EmitData delivers a batch of simulation data.
	EmitData(event DataEvent)
}

// StateManager persists run and simulation records.
type StateManager interface {
	// SaveRun creates or updates a run record.
	SaveRun(ctx context.Context, run *Run) error

	// SaveSimulation creates or updates a simulation record.
	SaveSimulation(ctx context.Context, sim *SimulationRecord) error
}

// MetricsRecorder receives orchestrator measurements.
type MetricsRecorder interface {
	// RecordSimulationStarted counts a request handed to the engine.
	RecordSimulationStarted(analysis string)

	// RecordSimulationFinished counts a request reaching a terminal status.
	RecordSimulationFinished(analysis, status string, duration time.Duration)

	// RecordDataFlush counts one flush of buffered data points.
	RecordDataFlush(points int)

	// SetWorkers reports how many workers are in status.
	SetWorkers(status string, count float64)
}
