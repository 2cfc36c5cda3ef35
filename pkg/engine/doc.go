// Package engine runs simulation requests on a pool of SPICE engine instances.
//
// # Overview
//
// An Orchestrator takes a compiled schematic and a batch of requests, each a
// request ID plus an analysis config. It validates every request and renders
// its netlist before touching an engine; a malformed batch fails as a whole.
// It then opens one engine instance per worker and hands the requests out
// round robin:
//
//	orch := engine.NewOrchestrator(engine.LibraryFactory{Pattern: "lib/libngspice.so.%d"})
//	run, err := orch.Simulate(ctx, schematic, requests, emitter)
//
// # Workers
//
// Each worker owns one instance and polls a small state machine on its own
// OS thread:
//
//	Idle -> Running -> Idle ... -> Done
//	Running -> Panic     (the engine exited)
//	Idle|Running -> Halted -> Done   (ctx cancelled)
//
// Engine callbacks only record into the worker's state under the run's lock.
// The worker flushes buffered data to the Emitter at most every flush
// interval and on completion, so data of a request is delivered in order,
// without loss or duplication, before its terminal event.
//
// # Events
//
// Every request receives exactly one terminal StatusEvent: Ready, Failed or
// Cancelled. SourceDeck and Progress events may precede it. DataEvents carry
// the vector values of each analysis point.
//
// # Errors
//
// Errors returned by Simulate are classified with EngineError:
//
//   - Permanent: malformed configs, duplicate IDs, unrenderable netlists
//   - Fatal: an engine instance could not be loaded or initialized
//
// Failures after the run started are reported as Failed events instead.
package engine
