package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/graphicspice/gspice/pkg/analysis"
	"github.com/graphicspice/gspice/pkg/circuit"
	"github.com/graphicspice/gspice/pkg/ngspice"
)

// Orchestrator defaults.
const (
	DefaultWorkers       = 4
	DefaultPollInterval  = 20 * time.Millisecond
	DefaultFlushInterval = 100 * time.Millisecond
)

// Orchestrator runs batches of simulation requests over a pool of engine
// instances, one instance per worker.
type Orchestrator struct {
	// backends opens the engine instance of each worker
	backends BackendFactory

	// workers is the maximum number of workers a run uses
	workers int

	// pollInterval is the sleep between two state checks of a worker
	pollInterval time.Duration

	// flushInterval is the minimum time between two data flushes of a worker
	flushInterval time.Duration

	// stateManager persists run and simulation records, if set
	stateManager StateManager

	// metrics receives measurements, if set
	metrics MetricsRecorder

	tracer trace.Tracer
	logger zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the maximum number of workers.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPollInterval sets how often workers check their state.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithFlushInterval sets the minimum time between data flushes.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.flushInterval = d
		}
	}
}

// WithStateManager records runs and simulations in sm.
func WithStateManager(sm StateManager) Option {
	return func(o *Orchestrator) {
		o.stateManager = sm
	}
}

// WithMetrics reports measurements to m.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for run and request spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator that opens engine instances with
// backends.
func NewOrchestrator(backends BackendFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backends:      backends,
		workers:       DefaultWorkers,
		pollInterval:  DefaultPollInterval,
		flushInterval: DefaultFlushInterval,
		tracer:        noop.NewTracerProvider().Tracer("gspice/engine"),
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// runState is the shared state of one Simulate call. Engine callbacks and
// workers only touch it under mu.
type runState struct {
	id      string
	mu      sync.Mutex
	status  MainStatus
	workers []*worker
}

type worker struct {
	id      int
	status  WorkerStatus
	ongoing *job
	queue   []*job

	// flushedAt is when buffered data was last handed to the emitter.
	flushedAt time.Time
	buffer    []SimulationData
	statuses  []string

	// finished is set when the background thread reports the end of an analysis.
	finished bool
	exit     *ngspice.Exit
}

// take empties the data buffer.
func (w *worker) take() []SimulationData {
	data := w.buffer
	w.buffer = nil
	return data
}

type job struct {
	request analysis.Request
	sim     analysis.Simulation
	lines   []string
	record  *SimulationRecord
	span    trace.Span
}

// Simulate runs every request against sch and reports progress, data and
// exactly one terminal status per request to emitter. Requests are validated
// and rendered before any engine is touched; a malformed request fails the
// whole call. Once running, failures are reported per request.
//
// Simulate returns when every worker is done. When ctx is cancelled the
// remaining requests are reported Cancelled and ctx.Err() is returned.
func (o *Orchestrator) Simulate(
	ctx context.Context,
	sch *circuit.Schematic,
	requests []analysis.Request,
	emitter Emitter,
) (*Run, error) {
	if sch == nil {
		return nil, NewPermanentError("schematic is nil", nil).WithCode(ErrCodeValidation)
	}
	if emitter == nil {
		return nil, NewPermanentError("emitter is nil", nil).WithCode(ErrCodeValidation)
	}

	run := &Run{
		ID:        uuid.New().String(),
		Status:    MainRunning,
		Requests:  len(requests),
		StartedAt: time.Now(),
	}

	jobs, err := o.prepare(run.ID, sch, requests)
	if err != nil {
		return nil, err
	}

	n := o.workers
	if len(jobs) < n {
		n = len(jobs)
	}
	run.Workers = n

	st := &runState{id: run.ID, status: MainRunning, workers: make([]*worker, n)}
	for i := range st.workers {
		st.workers[i] = &worker{id: i, status: WorkerIdle}
	}
	for i, j := range jobs {
		w := st.workers[i%n]
		j.record.Worker = w.id
		w.queue = append(w.queue, j)
	}

	backends, err := o.open(st)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With().Str("run_id", run.ID).Logger()
	ctx, span := o.tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("run.requests", len(jobs)),
		attribute.Int("run.workers", n),
	))
	defer span.End()

	o.saveRun(ctx, run)
	logger.Info().Int("requests", len(jobs)).Int("workers", n).Msg("Run started")

	var wg sync.WaitGroup
	for i, w := range st.workers {
		wg.Add(1)
		go func(w *worker, backend Backend) {
			defer wg.Done()
			o.work(ctx, st, w, backend, emitter)
		}(w, backends[i])
	}

	o.supervise(st)
	wg.Wait()

	for i, b := range backends {
		if err := b.Close(); err != nil {
			logger.Warn().Err(err).Int("worker", i).Msg("Failed to close engine")
		}
	}

	st.mu.Lock()
	run.Status = st.status
	st.mu.Unlock()

	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.Duration = completedAt.Sub(run.StartedAt)
	o.saveRun(context.WithoutCancel(ctx), run)

	logger.Info().Dur("duration", run.Duration).Msg("Run completed")
	return run, ctx.Err()
}

// prepare validates every request and renders its netlist.
func (o *Orchestrator) prepare(runID string, sch *circuit.Schematic, requests []analysis.Request) ([]*job, error) {
	seen := make(map[string]bool, len(requests))
	jobs := make([]*job, 0, len(requests))

	for _, r := range requests {
		sim, err := analysis.ParseRequest(r)
		if err != nil {
			return nil, NewPermanentError("malformed simulation config", err).
				WithRequest(r.ID).
				WithCode(ErrCodeValidation)
		}
		if seen[r.ID] {
			return nil, NewPermanentError("duplicate request id", nil).
				WithRequest(r.ID).
				WithCode(ErrCodeValidation)
		}
		seen[r.ID] = true

		lines, err := sch.NetlistLines(sim)
		if err != nil {
			return nil, NewPermanentError("failed to render netlist", err).
				WithRequest(r.ID).
				WithCode(ErrCodeNetlist)
		}

		jobs = append(jobs, &job{
			request: r,
			sim:     sim,
			lines:   lines,
			record: &SimulationRecord{
				RunID:     runID,
				RequestID: r.ID,
				Analysis:  sim.Name(),
			},
		})
	}

	return jobs, nil
}

// open loads one engine instance per worker. Instances already opened are
// closed when a later one fails.
func (o *Orchestrator) open(st *runState) ([]Backend, error) {
	backends := make([]Backend, 0, len(st.workers))
	for _, w := range st.workers {
		sink := &workerSink{
			st:     st,
			w:      w,
			logger: o.logger.With().Str("run_id", st.id).Int("worker", w.id).Logger(),
		}
		b, err := o.backends.Open(w.id, sink)
		if err != nil {
			for _, opened := range backends {
				_ = opened.Close()
			}
			return nil, NewFatalError("failed to open engine", err).
				WithWorker(w.id).
				WithCode(ErrCodeLibraryLoad)
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// supervise waits until every worker is done or panicked.
func (o *Orchestrator) supervise(st *runState) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		counts := make(map[WorkerStatus]int)
		done := true

		st.mu.Lock()
		for _, w := range st.workers {
			counts[w.status]++
			if !w.status.IsTerminal() {
				done = false
			}
		}
		if done {
			st.status = MainDone
		}
		st.mu.Unlock()

		if o.metrics != nil {
			for _, s := range []WorkerStatus{WorkerIdle, WorkerRunning, WorkerHalted, WorkerDone, WorkerPanic} {
				o.metrics.SetWorkers(string(s), float64(counts[s]))
			}
		}
		if done {
			return
		}
		<-ticker.C
	}
}

func (o *Orchestrator) saveRun(ctx context.Context, run *Run) {
	if o.stateManager == nil {
		return
	}
	if err := o.stateManager.SaveRun(ctx, run); err != nil {
		o.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to save run")
	}
}

func (o *Orchestrator) saveSimulation(ctx context.Context, rec *SimulationRecord) {
	if o.stateManager == nil {
		return
	}
	if err := o.stateManager.SaveSimulation(ctx, rec); err != nil {
		o.logger.Warn().Err(err).
			Str("run_id", rec.RunID).
			Str("request_id", rec.RequestID).
			Msg("Failed to save simulation")
	}
}

// exitReason describes a controlled exit of the engine.
func exitReason(exit ngspice.Exit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "engine exited with status %d", exit.Status)
	if exit.Quit {
		b.WriteString(" on quit")
	}
	return b.String()
}
