package ngspice

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by calls on a closed library.
	ErrClosed = errors.New("ngspice library is closed")

	// ErrVectorNotFound is returned when the engine has no vector of that name.
	ErrVectorNotFound = errors.New("vector not found")

	// ErrHaltTimeout is returned by Close when the background thread does not
	// stop in time.
	ErrHaltTimeout = errors.New("background thread did not halt")
)

// LoadError reports a library that could not be opened.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SymbolError reports an entry point missing from the library.
type SymbolError struct {
	Path   string
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("resolve %s in %s: %v", e.Symbol, e.Path, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// InitError reports a non-zero return from ngSpice_Init or ngSpice_Init_Sync.
type InitError struct {
	Function string
	Code     int
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Function, e.Code)
}

// CommandError reports a command the engine rejected.
type CommandError struct {
	Command string
	Code    int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed with code %d", e.Command, e.Code)
}
