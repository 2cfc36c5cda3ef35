//go:build darwin || freebsd || linux

package ngspice

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/purego"
	"github.com/rs/zerolog"
)

// Entry points resolved from the library.
const (
	symInit     = "ngSpice_Init"
	symInitSync = "ngSpice_Init_Sync"
	symCommand  = "ngSpice_Command"
	symVecInfo  = "ngGet_Vec_Info"
	symCurPlot  = "ngSpice_CurPlot"
	symAllPlots = "ngSpice_AllPlots"
	symAllVecs  = "ngSpice_AllVecs"
	symRunning  = "ngSpice_running"
)

// Library is one loaded copy of the engine. Commands are serialized; the
// engine itself runs analyses on its background thread.
type Library struct {
	path   string
	handle uintptr
	sink   uintptr
	logger zerolog.Logger

	haltTimeout time.Duration

	mu     sync.Mutex
	closed bool

	ngInit     func(printfcn, statfcn, exitfcn, datafcn, initdatafcn, bgtrunfcn, userData uintptr) int32
	ngInitSync func(vsrcdata, isrcdata, syncdata uintptr, ident *int32, userData uintptr) int32
	ngCommand  func(command *byte) int32
	ngVecInfo  func(name *byte) *cVectorInfo
	ngCurPlot  func() *byte
	ngAllPlots func() **byte
	ngAllVecs  func(plot *byte) **byte
	ngRunning  func() bool
}

// Option configures Open.
type Option func(*Library)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Library) {
		l.logger = logger
	}
}

// WithHaltTimeout bounds how long Close waits for a running analysis to stop.
func WithHaltTimeout(d time.Duration) Option {
	return func(l *Library) {
		l.haltTimeout = d
	}
}

// Open loads the library at path, resolves its entry points and initializes
// the engine with callbacks delivered to sink. Nothing is returned when any
// step fails; the handle is released.
func Open(path string, sink Sink, opts ...Option) (*Library, error) {
	l := &Library{
		path:        path,
		logger:      zerolog.Nop(),
		haltTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	l.handle = handle

	if err := l.resolve(); err != nil {
		_ = purego.Dlclose(handle)
		return nil, err
	}

	l.sink = sinks.register(sink)
	cb := getTrampolines()

	if rc := l.ngInit(cb.sendChar, cb.sendStat, cb.controlledExit,
		cb.sendData, cb.sendInitData, cb.bgThreadRunning, l.sink); rc != 0 {
		l.release()
		return nil, &InitError{Function: symInit, Code: int(rc)}
	}

	var ident int32
	if rc := l.ngInitSync(0, 0, 0, &ident, l.sink); rc != 0 {
		l.release()
		return nil, &InitError{Function: symInitSync, Code: int(rc)}
	}

	l.logger.Debug().Str("path", path).Msg("Loaded ngspice library")
	return l, nil
}

func (l *Library) resolve() error {
	bind := func(fptr interface{}, name string) error {
		sym, err := purego.Dlsym(l.handle, name)
		if err != nil {
			return &SymbolError{Path: l.path, Symbol: name, Err: err}
		}
		purego.RegisterFunc(fptr, sym)
		return nil
	}

	for _, s := range []struct {
		fptr interface{}
		name string
	}{
		{&l.ngInit, symInit},
		{&l.ngInitSync, symInitSync},
		{&l.ngCommand, symCommand},
		{&l.ngVecInfo, symVecInfo},
		{&l.ngCurPlot, symCurPlot},
		{&l.ngAllPlots, symAllPlots},
		{&l.ngAllVecs, symAllVecs},
		{&l.ngRunning, symRunning},
	} {
		if err := bind(s.fptr, s.name); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// Command sends one command line to the engine.
func (l *Library) Command(command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.command(command)
}

func (l *Library) command(command string) error {
	buf := cString(command)
	if rc := l.ngCommand(&buf[0]); rc != 0 {
		return &CommandError{Command: command, Code: int(rc)}
	}
	return nil
}

// Reset clears the engine's control structures (a NULL command).
func (l *Library) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if rc := l.ngCommand(nil); rc != 0 {
		return &CommandError{Command: "<reset>", Code: int(rc)}
	}
	return nil
}

// LoadCircuit sends a netlist to the engine one line at a time.
func (l *Library) LoadCircuit(lines []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	for _, line := range lines {
		if err := l.command("circbyline " + line); err != nil {
			return err
		}
	}
	return nil
}

// IsRunning reports whether the background thread is running an analysis.
func (l *Library) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	return l.ngRunning()
}

// VectorInfo copies the vector called name out of the current plot.
func (l *Library) VectorInfo(name string) (Vector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Vector{}, ErrClosed
	}
	buf := cString(name)
	info := l.ngVecInfo(&buf[0])
	if info == nil {
		return Vector{}, fmt.Errorf("%w: %s", ErrVectorNotFound, name)
	}
	return copyVector(info), nil
}

// CurrentPlot returns the name of the current plot.
func (l *Library) CurrentPlot() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ""
	}
	return goString(l.ngCurPlot())
}

// AllPlots returns the names of all plots.
func (l *Library) AllPlots() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return goStrings(l.ngAllPlots())
}

// AllVectors returns the vector names of plot.
func (l *Library) AllVectors(plot string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	buf := cString(plot)
	return goStrings(l.ngAllVecs(&buf[0]))
}

// Close halts a running analysis, stops callback delivery and unloads the
// library. It is safe to call more than once.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}

	var haltErr error
	if l.ngRunning() {
		if err := l.command("bg_halt"); err != nil {
			haltErr = err
		}
		deadline := time.Now().Add(l.haltTimeout)
		for l.ngRunning() {
			if time.Now().After(deadline) {
				haltErr = ErrHaltTimeout
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	l.closed = true
	if haltErr != nil {
		// Unloading under a live background thread would crash the process.
		sinks.unregister(l.sink)
		l.logger.Warn().Err(haltErr).Str("path", l.path).Msg("Leaving ngspice library loaded")
		return haltErr
	}

	l.release()
	l.logger.Debug().Str("path", l.path).Msg("Unloaded ngspice library")
	return nil
}

func (l *Library) release() {
	if l.sink != 0 {
		sinks.unregister(l.sink)
	}
	if l.handle != 0 {
		if err := purego.Dlclose(l.handle); err != nil {
			l.logger.Warn().Err(err).Str("path", l.path).Msg("Failed to unload ngspice library")
		}
		l.handle = 0
	}
}

// cString returns s as a NUL terminated byte slice.
func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
