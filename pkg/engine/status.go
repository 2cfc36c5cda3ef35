package engine

import "fmt"

// WorkerStatus is the state of one engine worker.
type WorkerStatus string

const (
	// WorkerIdle indicates the worker is ready to take its next request.
	WorkerIdle WorkerStatus = "idle"

	// WorkerRunning indicates an analysis is running on the worker's engine.
	WorkerRunning WorkerStatus = "running"

	// WorkerHalted indicates the run was cancelled and the worker is draining.
	WorkerHalted WorkerStatus = "halted"

	// WorkerDone indicates the worker has no more work.
	WorkerDone WorkerStatus = "done"

	// WorkerPanic indicates the engine exited and the worker gave up.
	WorkerPanic WorkerStatus = "panic"
)

// IsTerminal returns true if the worker will not change state again.
func (s WorkerStatus) IsTerminal() bool {
	return s == WorkerDone || s == WorkerPanic
}

// Validate checks if the worker status is valid.
func (s WorkerStatus) Validate() error {
	switch s {
	case WorkerIdle, WorkerRunning, WorkerHalted, WorkerDone, WorkerPanic:
		return nil
	default:
		return fmt.Errorf("invalid worker status: %s", s)
	}
}

// MainStatus is the state of a whole Simulate call.
type MainStatus string

const (
	// MainRunning indicates at least one worker is idle, running or halted.
	MainRunning MainStatus = "running"

	// MainDone indicates every worker is done or panicked.
	MainDone MainStatus = "done"
)

// StatusKind is the kind of a status event delivered to the caller.
type StatusKind string

const (
	// StatusSourceDeck indicates the engine accepted the netlist.
	StatusSourceDeck StatusKind = "SourceDeck"

	// StatusProgress reports analysis progress in percent.
	StatusProgress StatusKind = "Progress"

	// StatusReady indicates the request finished and all its data was delivered.
	StatusReady StatusKind = "Ready"

	// StatusFailed indicates the request could not be completed.
	StatusFailed StatusKind = "Failed"

	// StatusCancelled indicates the request was cancelled before completing.
	StatusCancelled StatusKind = "Cancelled"
)

// IsTerminal returns true if no further event follows for the request.
func (k StatusKind) IsTerminal() bool {
	return k == StatusReady || k == StatusFailed || k == StatusCancelled
}

// Validate checks if the status kind is valid.
func (k StatusKind) Validate() error {
	switch k {
	case StatusSourceDeck, StatusProgress, StatusReady, StatusFailed, StatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid status kind: %s", k)
	}
}
