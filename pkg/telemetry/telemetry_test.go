package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := ProductionConfig().Validate(); err == nil {
		t.Error("production config without OTLP endpoint should be invalid")
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no service name", func(c *Config) { c.ServiceName = "" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }},
		{"no buffer", func(c *Config) { c.Events.BufferSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, LoggingConfig{Level: "warn", Format: "json"})
	logger = WithRun(ComponentLogger(logger, "engine"), "run-1")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["component"] != "engine" || entry["run_id"] != "run-1" || entry["message"] != "shown" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Error("debug not parsed")
	}
	if ParseLevel("") != zerolog.InfoLevel || ParseLevel("bogus") != zerolog.InfoLevel {
		t.Error("expected info fallback")
	}
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordRunStarted()
	m.RecordSimulationStarted("tran")
	m.RecordSimulationStarted("tran")
	m.RecordSimulationFinished("tran", "Ready", time.Second)
	m.RecordSimulationFinished("tran", "Failed", time.Second)
	m.RecordDataFlush(10)
	m.RecordDataFlush(5)
	m.SetWorkers("running", 3)
	m.RecordError("fatal", "LIBRARY_LOAD")
	m.RecordRunCompleted("done", 2*time.Second)

	if got := testutil.ToFloat64(m.simulationsStarted.WithLabelValues("tran")); got != 2 {
		t.Errorf("simulations started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.simulationsFinished.WithLabelValues("tran", "Failed")); got != 1 {
		t.Errorf("failed simulations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dataPoints); got != 15 {
		t.Errorf("data points = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.dataFlushes); got != 2 {
		t.Errorf("data flushes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.workers.WithLabelValues("running")); got != 3 {
		t.Errorf("running workers = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.errorsByCode.WithLabelValues("LIBRARY_LOAD")); got != 1 {
		t.Errorf("error code count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeRuns); got != 0 {
		t.Errorf("active runs = %v, want 0", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "gspice_simulations_started_total") {
		t.Error("metrics endpoint does not expose simulation counters")
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	// None of these may panic.
	m.RecordRunStarted()
	m.RecordSimulationStarted("op")
	m.RecordSimulationFinished("op", "Ready", 0)
	m.RecordDataFlush(1)
	m.SetWorkers("idle", 1)
	m.RecordError("fatal", "")
	m.SetModelsLoaded(3)

	if m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordDataFlush(1)
}

func TestTracerDisabled(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "gspice", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	ctx, span := tr.StartSpan(context.Background(), "simulation.run", AttrRunID.String("r1"))
	RecordError(span, errors.New("boom"))
	span.End()

	if TraceID(ctx) != "" {
		t.Error("no-op tracer should not produce a trace ID")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestTracerSampling(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1}, "gspice", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer tr.Shutdown(context.Background())

	ctx, span := tr.Tracer().Start(context.Background(), "simulation.request")
	defer span.End()
	if TraceID(ctx) == "" {
		t.Error("expected a sampled trace ID")
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})
	defer ep.Shutdown(context.Background())

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByLevel(EventLevelWarning))

	if err := ep.PublishRunStarted("run-1", 3, 2); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := ep.PublishSimulationFinished("run-1", "tran", "Failed", "engine exited with status 1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := ep.PublishSimulationFinished("run-1", "op", "Cancelled", "cancelled"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 events at warning or above, got %d", len(got))
	}
	if got[0].Type != EventTypeSimulationFailed || got[0].Message != "engine exited with status 1" {
		t.Errorf("unexpected first event %+v", got[0])
	}
	if got[1].Type != EventTypeSimulationCancelled || got[1].ID == "" || got[1].Timestamp.IsZero() {
		t.Errorf("unexpected second event %+v", got[1])
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 16})

	var mu sync.Mutex
	var types []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	}, nil)
	ep.AddFilter(FilterByRunID("run-1"))

	_ = ep.PublishRunStarted("run-1", 1, 1)
	_ = ep.PublishRunStarted("run-2", 1, 1)
	_ = ep.PublishRunCompleted("run-1", time.Second, false)

	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(types) != 2 || types[0] != EventTypeRunStarted || types[1] != EventTypeRunCompleted {
		t.Errorf("unexpected delivery %v", types)
	}

	if err := ep.PublishModelsReloaded(1); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("expected ErrPublisherClosed, got %v", err)
	}
}

func TestEventPublisherDisabled(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	if err := ep.PublishModelsReloaded(4); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if called {
		t.Error("disabled publisher delivered an event")
	}
}

func TestStartOperation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Output = "stderr"
	cfg.Metrics.Enabled = false
	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	if FromContext(ctx) != tel {
		t.Fatal("telemetry not stored in context")
	}

	op := StartOperation(ctx, "models.import")
	op.End(errors.New("parse failure"))

	bare := StartOperation(context.Background(), "netlist")
	bare.End(nil)
}
