package engine

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphicspice/gspice/pkg/analysis"
)

// work drives one worker until it is done or panicked. The goroutine stays
// on one OS thread for the lifetime of the engine instance it talks to.
func (o *Orchestrator) work(ctx context.Context, st *runState, w *worker, backend Backend, emitter Emitter) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := o.logger.With().Str("run_id", st.id).Int("worker", w.id).Logger()
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			o.halt(st, w, backend, logger)
		}
		if !o.step(ctx, st, w, backend, emitter, logger) {
			logger.Debug().Msg("Worker stopped")
			return
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// halt moves an idle or running worker to Halted and stops its analysis.
func (o *Orchestrator) halt(st *runState, w *worker, backend Backend, logger zerolog.Logger) {
	st.mu.Lock()
	prev := w.status
	if prev == WorkerIdle || prev == WorkerRunning {
		w.status = WorkerHalted
	}
	st.mu.Unlock()

	if prev == WorkerRunning {
		if err := backend.Command("bg_halt"); err != nil {
			logger.Warn().Err(err).Msg("Failed to halt analysis")
		}
	}
}

// step performs one state transition. It returns false once the worker has
// reached a terminal status.
func (o *Orchestrator) step(
	ctx context.Context,
	st *runState,
	w *worker,
	backend Backend,
	emitter Emitter,
	logger zerolog.Logger,
) bool {
	st.mu.Lock()

	switch w.status {
	case WorkerIdle:
		if w.exit != nil {
			// The engine exited between two analyses.
			reason := exitReason(*w.exit)
			queued := w.queue
			w.queue = nil
			w.status = WorkerPanic
			st.mu.Unlock()

			logger.Error().Int("queued", len(queued)).Msg(reason)
			for _, q := range queued {
				o.finish(ctx, emitter, w.id, q, StatusFailed, "worker panicked")
			}
			return false
		}
		if len(w.queue) == 0 {
			w.status = WorkerDone
			st.mu.Unlock()
			return false
		}
		j := w.queue[0]
		w.queue = w.queue[1:]
		w.ongoing = j
		w.status = WorkerRunning
		w.finished = false
		w.buffer = nil
		w.statuses = nil
		w.flushedAt = time.Now()
		st.mu.Unlock()

		o.start(ctx, st, w, j, backend, emitter, logger)
		return true

	case WorkerRunning:
		j := w.ongoing
		pending := w.statuses
		w.statuses = nil

		switch {
		case w.exit != nil:
			reason := exitReason(*w.exit)
			data := w.take()
			queued := w.queue
			w.queue = nil
			w.ongoing = nil
			w.status = WorkerPanic
			st.mu.Unlock()

			logger.Error().Str("request_id", j.request.ID).Msg(reason)
			o.emitStatuses(emitter, w.id, j, pending, logger)
			o.flush(emitter, w.id, j, data)
			o.finish(ctx, emitter, w.id, j, StatusFailed, reason)
			for _, q := range queued {
				o.finish(ctx, emitter, w.id, q, StatusFailed, "worker panicked")
			}
			return false

		case w.finished:
			data := w.take()
			w.ongoing = nil
			w.status = WorkerIdle
			st.mu.Unlock()

			o.emitStatuses(emitter, w.id, j, pending, logger)
			o.flush(emitter, w.id, j, data)
			o.finish(ctx, emitter, w.id, j, StatusReady, "")
			return true

		case len(w.buffer) > 0 && time.Since(w.flushedAt) >= o.flushInterval:
			data := w.take()
			w.flushedAt = time.Now()
			st.mu.Unlock()

			o.emitStatuses(emitter, w.id, j, pending, logger)
			o.flush(emitter, w.id, j, data)
			return true
		}

		st.mu.Unlock()
		o.emitStatuses(emitter, w.id, j, pending, logger)
		return true

	case WorkerHalted:
		j := w.ongoing
		pending := w.statuses
		data := w.take()
		queued := w.queue
		w.statuses = nil
		w.queue = nil
		w.ongoing = nil
		w.status = WorkerDone
		st.mu.Unlock()

		if j != nil {
			o.emitStatuses(emitter, w.id, j, pending, logger)
			o.flush(emitter, w.id, j, data)
			o.finish(ctx, emitter, w.id, j, StatusCancelled, "cancelled")
		}
		for _, q := range queued {
			o.finish(ctx, emitter, w.id, q, StatusCancelled, "cancelled")
		}
		return false
	}

	st.mu.Unlock()
	return false
}

// start loads the netlist of j and starts its analysis in the background. On
// failure j is reported Failed and the worker returns to Idle, unless the
// engine exited meanwhile; the next step handles that.
func (o *Orchestrator) start(
	ctx context.Context,
	st *runState,
	w *worker,
	j *job,
	backend Backend,
	emitter Emitter,
	logger zerolog.Logger,
) {
	_, j.span = o.tracer.Start(ctx, "simulation.request", trace.WithAttributes(
		attribute.String("request.id", j.request.ID),
		attribute.String("analysis", j.sim.Name()),
		attribute.Int("worker", w.id),
	))
	j.record.StartedAt = time.Now()
	o.saveSimulation(ctx, j.record)
	if o.metrics != nil {
		o.metrics.RecordSimulationStarted(j.sim.Name())
	}

	logger.Debug().
		Str("request_id", j.request.ID).
		Str("analysis", j.sim.Name()).
		Msg("Starting simulation")

	code := ErrCodeNetlist
	err := backend.LoadCircuit(j.lines)
	if err == nil {
		code = ErrCodeCommand
		err = backend.Command("bg_run")
	}
	if err == nil {
		return
	}

	engineErr := NewTransientError("failed to start simulation", err).
		WithRequest(j.request.ID).
		WithWorker(w.id).
		WithCode(code)
	logger.Error().Err(engineErr).Msg("Simulation not started")

	st.mu.Lock()
	if w.exit != nil {
		st.mu.Unlock()
		return
	}
	w.ongoing = nil
	w.status = WorkerIdle
	w.statuses = nil
	w.buffer = nil
	st.mu.Unlock()

	o.finish(ctx, emitter, w.id, j, StatusFailed, err.Error())
}

// emitStatuses reports parsed status lines of j. The ready line is dropped;
// Ready is reported once the background thread finishes.
func (o *Orchestrator) emitStatuses(emitter Emitter, worker int, j *job, lines []string, logger zerolog.Logger) {
	for _, line := range lines {
		s, err := analysis.ParseStatus(line)
		if err != nil {
			logger.Debug().Err(err).Msg("Dropping status line")
			continue
		}

		switch s.Kind {
		case analysis.StatusSourceDeck:
			emitter.EmitStatus(StatusEvent{ID: j.request.ID, RunID: j.record.RunID, Kind: StatusSourceDeck, Worker: worker})
		case analysis.StatusProgress:
			emitter.EmitStatus(StatusEvent{
				ID:       j.request.ID,
				RunID:    j.record.RunID,
				Kind:     StatusProgress,
				Analysis: s.Analysis,
				Percent:  s.Percent,
				Worker:   worker,
			})
		}
	}
}

// flush hands buffered data of j to the emitter.
func (o *Orchestrator) flush(emitter Emitter, worker int, j *job, data []SimulationData) {
	if len(data) == 0 {
		return
	}
	j.record.Points += len(data)
	emitter.EmitData(DataEvent{ID: j.request.ID, RunID: j.record.RunID, Data: data, Worker: worker})
	if o.metrics != nil {
		o.metrics.RecordDataFlush(len(data))
	}
}

// finish reports the terminal status of j.
func (o *Orchestrator) finish(ctx context.Context, emitter Emitter, worker int, j *job, kind StatusKind, reason string) {
	now := time.Now()
	rec := j.record
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	rec.Worker = worker
	rec.Status = kind
	rec.Reason = reason
	rec.CompletedAt = &now

	emitter.EmitStatus(StatusEvent{ID: j.request.ID, RunID: rec.RunID, Kind: kind, Reason: reason, Worker: worker})

	o.saveSimulation(context.WithoutCancel(ctx), rec)
	if o.metrics != nil {
		o.metrics.RecordSimulationFinished(rec.Analysis, string(kind), now.Sub(rec.StartedAt))
	}
	if j.span != nil {
		j.span.SetAttributes(attribute.Int("points", rec.Points), attribute.String("status", string(kind)))
		if kind != StatusReady {
			j.span.SetStatus(codes.Error, reason)
		}
		j.span.End()
	}
}
