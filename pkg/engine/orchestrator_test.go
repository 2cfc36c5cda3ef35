package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/graphicspice/gspice/pkg/analysis"
	"github.com/graphicspice/gspice/pkg/circuit"
	"github.com/graphicspice/gspice/pkg/ngspice"
	"github.com/graphicspice/gspice/pkg/units"
)

// script plays the engine's background thread for one analysis.
type script func(e *fakeEngine, lines []string, halt <-chan struct{})

type fakeEngine struct {
	worker int
	sink   ngspice.Sink
	script script
	load   func(lines []string) error

	mu       sync.Mutex
	loads    [][]string
	commands []string
	running  bool
	halt     chan struct{}
	closed   bool
}

func (e *fakeEngine) LoadCircuit(lines []string) error {
	if e.load != nil {
		if err := e.load(lines); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads = append(e.loads, lines)
	return nil
}

func (e *fakeEngine) Command(command string) error {
	e.mu.Lock()
	e.commands = append(e.commands, command)

	switch command {
	case "bg_run":
		lines := e.loads[len(e.loads)-1]
		halt := make(chan struct{})
		e.halt = halt
		e.running = true
		e.mu.Unlock()

		go func() {
			e.sink.OnBackgroundState(false)
			e.script(e, lines, halt)
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			e.sink.OnBackgroundState(true)
		}()
		return nil

	case "bg_halt":
		if e.halt != nil {
			close(e.halt)
			e.halt = nil
		}
	}

	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type fakeFactory struct {
	script script
	load   func(lines []string) error
	failAt int

	mu      sync.Mutex
	engines []*fakeEngine
}

func newFactory(s script) *fakeFactory {
	return &fakeFactory{script: s, failAt: -1}
}

func (f *fakeFactory) Open(worker int, sink ngspice.Sink) (Backend, error) {
	if worker == f.failAt {
		return nil, &ngspice.LoadError{Path: fmt.Sprintf("libngspice.so.%d", worker), Err: errors.New("no such file")}
	}
	e := &fakeEngine{worker: worker, sink: sink, script: f.script, load: f.load}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.engines = append(f.engines, e)
	return e, nil
}

type recorder struct {
	mu       sync.Mutex
	statuses []StatusEvent
	data     []DataEvent
}

func (r *recorder) EmitStatus(ev StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev)
}

func (r *recorder) EmitData(ev DataEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, ev)
}

func (r *recorder) kinds(id string) []StatusKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []StatusKind
	for _, ev := range r.statuses {
		if ev.ID == id {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}

func (r *recorder) terminal(t *testing.T, id string) StatusEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []StatusEvent
	for _, ev := range r.statuses {
		if ev.ID == id && ev.Kind.IsTerminal() {
			found = append(found, ev)
		}
	}
	if len(found) != 1 {
		t.Fatalf("request %s: got %d terminal events, want 1: %+v", id, len(found), found)
	}
	return found[0]
}

func (r *recorder) indices(id string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var idx []int
	for _, ev := range r.data {
		if ev.ID != id {
			continue
		}
		for _, d := range ev.Data {
			idx = append(idx, d.Index)
		}
	}
	return idx
}

// pointsScript reports a source deck, n data points and the ready line.
func pointsScript(n int) script {
	return func(e *fakeEngine, lines []string, _ <-chan struct{}) {
		e.sink.OnStatus("Source Deck")
		for i := 0; i < n; i++ {
			if n > 1 && i == n/2 {
				e.sink.OnStatus("op: 50.0%")
			}
			e.sink.OnData(ngspice.VectorValuesAll{
				Count: 2,
				Index: i,
				Values: []ngspice.VectorValue{
					{Name: "v(n1)", Real: 5},
					{Name: "v1#branch", Real: -0.005},
				},
			})
		}
		e.sink.OnStatus("--ready--")
	}
}

func dividerSchematic(t *testing.T) *circuit.Schematic {
	t.Helper()
	s := circuit.NewSchematic()
	if err := s.Insert(&circuit.VoltageSource{ID: "1", Pos: "n1", Neg: "gnd", Waveform: circuit.DC{Value: units.MustParse("5")}}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := s.Insert(&circuit.Resistor{ID: "1", N1: "n1", N2: "gnd", Resistance: units.MustParse("1K")}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return s
}

func opRequest(id string) analysis.Request {
	return analysis.Request{ID: id, Config: analysis.Config{Op: &analysis.OpConfig{}}}
}

func tranRequest(id string) analysis.Request {
	return analysis.Request{ID: id, Config: analysis.Config{Tran: &analysis.TranConfig{TStep: "1u", TStop: "1m"}}}
}

func testOrchestrator(f *fakeFactory, opts ...Option) *Orchestrator {
	opts = append([]Option{WithPollInterval(time.Millisecond), WithFlushInterval(0)}, opts...)
	return NewOrchestrator(f, opts...)
}

func TestSimulateOperatingPoint(t *testing.T) {
	sch := dividerSchematic(t)
	f := newFactory(pointsScript(1))
	rec := &recorder{}

	run, err := testOrchestrator(f).Simulate(context.Background(), sch, []analysis.Request{opRequest("op-1")}, rec)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if run.Status != MainDone || run.Workers != 1 || run.CompletedAt == nil {
		t.Errorf("unexpected run %+v", run)
	}

	kinds := rec.kinds("op-1")
	want := []StatusKind{StatusSourceDeck, StatusReady}
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("status kinds = %v, want %v", kinds, want)
	}
	if got := rec.indices("op-1"); len(got) != 1 || got[0] != 0 {
		t.Errorf("data indices = %v, want [0]", got)
	}

	if len(f.engines) != 1 {
		t.Fatalf("opened %d engines, want 1", len(f.engines))
	}
	e := f.engines[0]
	wantLines, _ := sch.NetlistLines(analysis.Op{})
	if len(e.loads) != 1 || strings.Join(e.loads[0], "\n") != strings.Join(wantLines, "\n") {
		t.Errorf("engine loaded %v, want %v", e.loads, wantLines)
	}
	if len(e.commands) != 1 || e.commands[0] != "bg_run" {
		t.Errorf("commands = %v", e.commands)
	}
	if !e.closed {
		t.Error("engine was not closed")
	}
}

func TestSimulateDistributesRequests(t *testing.T) {
	f := newFactory(pointsScript(20))
	rec := &recorder{}

	var requests []analysis.Request
	for i := 0; i < 7; i++ {
		requests = append(requests, opRequest(fmt.Sprintf("r%d", i)))
	}

	run, err := testOrchestrator(f, WithWorkers(3)).Simulate(context.Background(), dividerSchematic(t), requests, rec)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if run.Workers != 3 {
		t.Errorf("run.Workers = %d, want 3", run.Workers)
	}

	for _, r := range requests {
		if ev := rec.terminal(t, r.ID); ev.Kind != StatusReady {
			t.Errorf("request %s ended %s: %s", r.ID, ev.Kind, ev.Reason)
		}
		idx := rec.indices(r.ID)
		if len(idx) != 20 {
			t.Fatalf("request %s: got %d points, want 20", r.ID, len(idx))
		}
		for i, v := range idx {
			if v != i {
				t.Fatalf("request %s: points out of order: %v", r.ID, idx)
			}
		}
	}

	for _, ev := range rec.data {
		if ev.RunID != run.ID {
			t.Errorf("data event of %s has run id %q, want %q", ev.ID, ev.RunID, run.ID)
		}
		for _, d := range ev.Data {
			if d.Computed != 2 || len(d.Values) != 2 {
				t.Fatalf("request %s point %d: computed = %d, values = %d, want 2", ev.ID, d.Index, d.Computed, len(d.Values))
			}
		}
	}
	for _, ev := range rec.statuses {
		if ev.RunID != run.ID {
			t.Errorf("status event %+v has run id %q, want %q", ev, ev.RunID, run.ID)
		}
	}

	loads := map[int]int{}
	for _, e := range f.engines {
		loads[e.worker] = len(e.loads)
	}
	if loads[0] != 3 || loads[1] != 2 || loads[2] != 2 {
		t.Errorf("loads per worker = %v, want round robin 3/2/2", loads)
	}
}

func TestSimulateTerminalIsLastEvent(t *testing.T) {
	f := newFactory(pointsScript(10))
	rec := &recorder{}

	requests := []analysis.Request{opRequest("a"), opRequest("b")}
	if _, err := testOrchestrator(f, WithWorkers(1)).Simulate(context.Background(), dividerSchematic(t), requests, rec); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	for _, id := range []string{"a", "b"} {
		kinds := rec.kinds(id)
		if len(kinds) == 0 || kinds[len(kinds)-1] != StatusReady {
			t.Errorf("request %s: kinds = %v, want Ready last", id, kinds)
		}
		for _, k := range kinds[:len(kinds)-1] {
			if k.IsTerminal() {
				t.Errorf("request %s: terminal event before the last: %v", id, kinds)
			}
		}
	}
}

func TestSimulateFewerRequestsThanWorkers(t *testing.T) {
	f := newFactory(pointsScript(1))
	requests := []analysis.Request{opRequest("a"), opRequest("b")}

	run, err := testOrchestrator(f).Simulate(context.Background(), dividerSchematic(t), requests, &recorder{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if run.Workers != 2 || len(f.engines) != 2 {
		t.Errorf("workers = %d, engines = %d, want 2", run.Workers, len(f.engines))
	}
}

func TestSimulateNoRequests(t *testing.T) {
	f := newFactory(pointsScript(1))
	run, err := testOrchestrator(f).Simulate(context.Background(), dividerSchematic(t), nil, &recorder{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if run.Status != MainDone || run.Workers != 0 || len(f.engines) != 0 {
		t.Errorf("unexpected run %+v with %d engines", run, len(f.engines))
	}
}

func TestSimulateLoadFailure(t *testing.T) {
	f := newFactory(pointsScript(3))
	f.load = func(lines []string) error {
		for _, l := range lines {
			if strings.HasPrefix(l, ".tran") {
				return &ngspice.CommandError{Command: "circbyline " + l, Code: 1}
			}
		}
		return nil
	}
	rec := &recorder{}

	requests := []analysis.Request{tranRequest("tran"), opRequest("op")}
	if _, err := testOrchestrator(f, WithWorkers(1)).Simulate(context.Background(), dividerSchematic(t), requests, rec); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	failed := rec.terminal(t, "tran")
	if failed.Kind != StatusFailed || !strings.Contains(failed.Reason, ".tran") {
		t.Errorf("tran ended %s: %q", failed.Kind, failed.Reason)
	}
	if ev := rec.terminal(t, "op"); ev.Kind != StatusReady {
		t.Errorf("op ended %s: %s", ev.Kind, ev.Reason)
	}
	if got := rec.indices("tran"); len(got) != 0 {
		t.Errorf("failed request received data %v", got)
	}
}

func TestSimulateControlledExit(t *testing.T) {
	f := newFactory(func(e *fakeEngine, lines []string, halt <-chan struct{}) {
		if e.worker == 0 {
			e.sink.OnData(ngspice.VectorValuesAll{Count: 1, Index: 0, Values: []ngspice.VectorValue{{Name: "v(n1)", Real: 1}}})
			e.sink.OnExit(ngspice.Exit{Status: 1, Immediate: true})
			return
		}
		pointsScript(2)(e, lines, halt)
	})
	rec := &recorder{}

	requests := []analysis.Request{opRequest("r0"), opRequest("r1"), opRequest("r2"), opRequest("r3")}
	run, err := testOrchestrator(f, WithWorkers(2)).Simulate(context.Background(), dividerSchematic(t), requests, rec)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if run.Status != MainDone {
		t.Errorf("run status = %s", run.Status)
	}

	r0 := rec.terminal(t, "r0")
	if r0.Kind != StatusFailed || r0.Reason != "engine exited with status 1" {
		t.Errorf("r0 ended %s: %q", r0.Kind, r0.Reason)
	}
	if got := rec.indices("r0"); len(got) != 1 {
		t.Errorf("partial data of r0 = %v, want one point", got)
	}
	r2 := rec.terminal(t, "r2")
	if r2.Kind != StatusFailed || r2.Reason != "worker panicked" {
		t.Errorf("r2 ended %s: %q", r2.Kind, r2.Reason)
	}
	for _, id := range []string{"r1", "r3"} {
		if ev := rec.terminal(t, id); ev.Kind != StatusReady {
			t.Errorf("%s ended %s: %s", id, ev.Kind, ev.Reason)
		}
	}
}

func TestSimulateCancel(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	f := newFactory(func(e *fakeEngine, lines []string, halt <-chan struct{}) {
		e.sink.OnStatus("Source Deck")
		e.sink.OnData(ngspice.VectorValuesAll{Count: 1, Index: 0, Values: []ngspice.VectorValue{{Name: "v(n1)", Real: 1}}})
		once.Do(func() { close(started) })
		<-halt
	})
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	requests := []analysis.Request{opRequest("a"), opRequest("b"), opRequest("c")}
	done := make(chan error, 1)
	go func() {
		_, err := testOrchestrator(f, WithWorkers(1)).Simulate(ctx, dividerSchematic(t), requests, rec)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Simulate returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Simulate did not return after cancellation")
	}

	for _, id := range []string{"a", "b", "c"} {
		if ev := rec.terminal(t, id); ev.Kind != StatusCancelled {
			t.Errorf("%s ended %s, want Cancelled", id, ev.Kind)
		}
	}

	e := f.engines[0]
	e.mu.Lock()
	commands := append([]string(nil), e.commands...)
	e.mu.Unlock()
	if len(commands) != 2 || commands[1] != "bg_halt" {
		t.Errorf("commands = %v, want [bg_run bg_halt]", commands)
	}
}

func TestSimulateMalformedConfig(t *testing.T) {
	f := newFactory(pointsScript(1))
	requests := []analysis.Request{
		opRequest("ok"),
		{ID: "bad", Config: analysis.Config{Tran: &analysis.TranConfig{TStep: "1u"}}},
	}

	_, err := testOrchestrator(f).Simulate(context.Background(), dividerSchematic(t), requests, &recorder{})
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	var merr *analysis.MalformedConfigError
	if !errors.As(err, &merr) {
		t.Errorf("expected MalformedConfigError in chain, got %v", err)
	}
	var eerr *EngineError
	if errors.As(err, &eerr) && eerr.Request != "bad" {
		t.Errorf("error names request %q, want bad", eerr.Request)
	}
	if len(f.engines) != 0 {
		t.Errorf("opened %d engines for a malformed batch", len(f.engines))
	}
}

func TestSimulateDuplicateRequestID(t *testing.T) {
	f := newFactory(pointsScript(1))
	_, err := testOrchestrator(f).Simulate(context.Background(), dividerSchematic(t),
		[]analysis.Request{opRequest("x"), opRequest("x")}, &recorder{})
	if !errors.Is(err, &EngineError{Class: ErrorClassPermanent, Code: ErrCodeValidation}) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSimulateNetlistError(t *testing.T) {
	sch := circuit.NewSchematic()
	if err := sch.Insert(&circuit.Resistor{ID: "1", N1: "n1", Resistance: units.MustParse("1K")}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	f := newFactory(pointsScript(1))
	_, err := testOrchestrator(f).Simulate(context.Background(), sch, []analysis.Request{opRequest("op")}, &recorder{})
	if !errors.Is(err, &EngineError{Class: ErrorClassPermanent, Code: ErrCodeNetlist}) {
		t.Fatalf("expected netlist error, got %v", err)
	}
	var serr *circuit.SerializationError
	if !errors.As(err, &serr) {
		t.Errorf("expected SerializationError in chain, got %v", err)
	}
}

func TestSimulateOpenFailure(t *testing.T) {
	f := newFactory(pointsScript(1))
	f.failAt = 1

	_, err := testOrchestrator(f, WithWorkers(2)).Simulate(context.Background(), dividerSchematic(t),
		[]analysis.Request{opRequest("a"), opRequest("b")}, &recorder{})
	if !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	var lerr *ngspice.LoadError
	if !errors.As(err, &lerr) {
		t.Errorf("expected LoadError in chain, got %v", err)
	}
	if len(f.engines) != 1 || !f.engines[0].closed {
		t.Errorf("engine opened before the failure was not closed")
	}
}

func TestSimulateRejectsNilArguments(t *testing.T) {
	o := testOrchestrator(newFactory(pointsScript(1)))
	if _, err := o.Simulate(context.Background(), nil, nil, &recorder{}); !IsPermanent(err) {
		t.Errorf("nil schematic: got %v", err)
	}
	if _, err := o.Simulate(context.Background(), circuit.NewSchematic(), nil, nil); !IsPermanent(err) {
		t.Errorf("nil emitter: got %v", err)
	}
}

type memoryState struct {
	mu   sync.Mutex
	runs []Run
	sims map[string]SimulationRecord
}

func (m *memoryState) SaveRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryState) SaveSimulation(_ context.Context, sim *SimulationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sims == nil {
		m.sims = make(map[string]SimulationRecord)
	}
	m.sims[sim.RequestID] = *sim
	return nil
}

type countingMetrics struct {
	mu       sync.Mutex
	started  int
	finished map[string]int
	points   int
}

func (c *countingMetrics) RecordSimulationStarted(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *countingMetrics) RecordSimulationFinished(_, status string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished == nil {
		c.finished = make(map[string]int)
	}
	c.finished[status]++
}

func (c *countingMetrics) RecordDataFlush(points int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.points += points
}

func (c *countingMetrics) SetWorkers(string, float64) {}

func TestSimulateRecordsStateAndMetrics(t *testing.T) {
	f := newFactory(pointsScript(4))
	state := &memoryState{}
	metrics := &countingMetrics{}

	requests := []analysis.Request{opRequest("a"), tranRequest("b")}
	run, err := testOrchestrator(f, WithStateManager(state), WithMetrics(metrics)).
		Simulate(context.Background(), dividerSchematic(t), requests, &recorder{})
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(state.runs) != 2 || state.runs[1].Status != MainDone || state.runs[1].ID != run.ID {
		t.Errorf("saved runs = %+v", state.runs)
	}
	for _, r := range requests {
		sim, ok := state.sims[r.ID]
		if !ok {
			t.Fatalf("no record for %s", r.ID)
		}
		if sim.Status != StatusReady || sim.Points != 4 || sim.RunID != run.ID || sim.CompletedAt == nil {
			t.Errorf("record for %s = %+v", r.ID, sim)
		}
	}
	if state.sims["b"].Analysis != "tran" {
		t.Errorf("analysis of b = %q", state.sims["b"].Analysis)
	}

	if metrics.started != 2 || metrics.finished[string(StatusReady)] != 2 || metrics.points != 8 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestSimulateFlushesOnInterval(t *testing.T) {
	const points = 50
	f := newFactory(func(e *fakeEngine, lines []string, _ <-chan struct{}) {
		e.sink.OnStatus("Source Deck")
		for i := 0; i < points; i++ {
			e.sink.OnData(ngspice.VectorValuesAll{
				Count:  1,
				Index:  i,
				Values: []ngspice.VectorValue{{Name: "time", Real: float64(i), IsScale: true}},
			})
			time.Sleep(2 * time.Millisecond)
		}
	})
	rec := &recorder{}

	o := NewOrchestrator(f, WithPollInterval(time.Millisecond), WithFlushInterval(30*time.Millisecond))
	if _, err := o.Simulate(context.Background(), dividerSchematic(t), []analysis.Request{tranRequest("t")}, rec); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if ev := rec.terminal(t, "t"); ev.Kind != StatusReady {
		t.Fatalf("request ended %s: %s", ev.Kind, ev.Reason)
	}

	rec.mu.Lock()
	batches := len(rec.data)
	rec.mu.Unlock()
	if batches < 2 || batches >= points {
		t.Errorf("got %d data batches for %d points, want buffered batches", batches, points)
	}

	idx := rec.indices("t")
	if len(idx) != points {
		t.Fatalf("got %d points, want %d", len(idx), points)
	}
	for i, v := range idx {
		if v != i {
			t.Fatalf("points out of order or duplicated: %v", idx)
		}
	}
}

func TestExitBetweenAnalysesPanicsWorker(t *testing.T) {
	o := testOrchestrator(newFactory(pointsScript(1)))
	jobs, err := o.prepare("run-1", dividerSchematic(t), []analysis.Request{opRequest("a"), opRequest("b")})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	w := &worker{id: 0, status: WorkerIdle, queue: jobs, exit: &ngspice.Exit{Status: 1}}
	st := &runState{id: "run-1", status: MainRunning, workers: []*worker{w}}
	backend := &fakeEngine{}
	rec := &recorder{}

	if o.step(context.Background(), st, w, backend, rec, zerolog.Nop()) {
		t.Fatal("worker kept running after the engine exited")
	}
	if w.status != WorkerPanic {
		t.Errorf("worker status = %s, want %s", w.status, WorkerPanic)
	}
	if len(backend.loads) != 0 {
		t.Errorf("engine loaded %d netlists after exiting", len(backend.loads))
	}
	for _, id := range []string{"a", "b"} {
		ev := rec.terminal(t, id)
		if ev.Kind != StatusFailed || ev.RunID != "run-1" {
			t.Errorf("request %s: got %+v, want Failed in run-1", id, ev)
		}
	}
}
