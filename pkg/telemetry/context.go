package telemetry

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing, metrics and lifecycle events.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config

	logCloser io.Closer
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// New creates a telemetry instance from configuration.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:    logger,
		Tracer:    tracer,
		Metrics:   metrics,
		Events:    NewEventPublisher(cfg.Events),
		Config:    cfg,
		logCloser: closer,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromContext retrieves the telemetry instance from the context, or nil.
func FromContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops the event publisher and the tracer, then closes the log
// output.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
		t.logCloser.Close(),
	)
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger zerolog.Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing and
// timing. Without telemetry in ctx the span is a no-op.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Span:   trace.SpanFromContext(ctx),
			Logger: *zerolog.Ctx(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	lctx := tel.Logger.With().Str("operation", operation)
	if sc := span.SpanContext(); sc.IsValid() {
		lctx = lctx.
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String())
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: lctx.Logger(),
		Timer:  NewTimer(),
	}
}

// End finishes the operation, recording success or failure on the span.
func (ic *InstrumentedContext) End(err error) {
	if err != nil {
		RecordError(ic.Span, err)
		ic.Logger.Debug().Err(err).Dur("duration", ic.Timer.Duration()).Msg("Operation failed")
	} else {
		RecordSuccess(ic.Span)
		ic.Logger.Debug().Dur("duration", ic.Timer.Duration()).Msg("Operation completed")
	}
	ic.Span.End()
}
