//go:build !(darwin || freebsd || linux)

package ngspice

import (
	"errors"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

var errUnsupported = errors.New("dynamic loading is not supported on " + runtime.GOOS)

// Library is unavailable on this platform; Open always fails.
type Library struct{}

// Option configures Open.
type Option func(*Library)

// WithLogger is accepted for API compatibility.
func WithLogger(zerolog.Logger) Option { return func(*Library) {} }

// WithHaltTimeout is accepted for API compatibility.
func WithHaltTimeout(time.Duration) Option { return func(*Library) {} }

// Open always fails on this platform.
func Open(path string, _ Sink, _ ...Option) (*Library, error) {
	return nil, &LoadError{Path: path, Err: errUnsupported}
}

func (l *Library) Path() string                      { return "" }
func (l *Library) Command(string) error              { return ErrClosed }
func (l *Library) Reset() error                      { return ErrClosed }
func (l *Library) LoadCircuit([]string) error        { return ErrClosed }
func (l *Library) IsRunning() bool                   { return false }
func (l *Library) VectorInfo(string) (Vector, error) { return Vector{}, ErrClosed }
func (l *Library) CurrentPlot() string               { return "" }
func (l *Library) AllPlots() []string                { return nil }
func (l *Library) AllVectors(string) []string        { return nil }
func (l *Library) Close() error                      { return nil }
