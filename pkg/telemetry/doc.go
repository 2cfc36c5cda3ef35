// Package telemetry provides observability instrumentation for gspice.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and a lifecycle event publisher.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//	tel.Metrics.Serve(ctx, tel.Logger)
//
// The orchestrator consumes the pieces through its options:
//
//	engine.NewOrchestrator(factory,
//	    engine.WithLogger(telemetry.ComponentLogger(tel.Logger, "engine")),
//	    engine.WithTracer(tel.Tracer.Tracer()),
//	    engine.WithMetrics(tel.Metrics),
//	)
//
// # Metrics
//
// Metrics are registered on a private registry under the configured
// namespace (default "gspice"):
//
//   - runs_started_total, runs_completed_total{outcome}, run_duration_seconds
//   - simulations_started_total{analysis}
//   - simulations_finished_total{analysis,status}
//   - simulation_duration_seconds{analysis}
//   - data_flushes_total, data_points_total
//   - workers{status}
//   - errors_by_class_total{class}, errors_by_code_total{code}
//   - models_loaded
//
// A Metrics built from a disabled configuration records nothing; its
// methods are safe to call.
//
// # Events
//
// EventPublisher delivers run and request lifecycle events to subscribers,
// either inline or in order from a background goroutine:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    logger.Info().Str("type", e.Type).Msg(e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
package telemetry
