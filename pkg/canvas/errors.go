package canvas

import (
	"errors"
	"fmt"
)

// ErrNoSchematic is returned for a graph without any circuit element.
var ErrNoSchematic = errors.New("no schematic found")

// FloatingNodeError reports an element with fewer connections than terminals.
type FloatingNodeError struct {
	Element   string
	Terminals int
	Connected int
}

// Error implements the error interface.
func (e *FloatingNodeError) Error() string {
	return fmt.Sprintf("floating node on element %s: %d of %d terminals connected",
		e.Element, e.Connected, e.Terminals)
}

// UnconfiguredElementError reports an element whose configuration is missing
// or incomplete.
type UnconfiguredElementError struct {
	Element string
	Field   string
	Err     error
}

// Error implements the error interface.
func (e *UnconfiguredElementError) Error() string {
	msg := fmt.Sprintf("element %s is not configured", e.Element)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field=%s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *UnconfiguredElementError) Unwrap() error {
	return e.Err
}

// UnitError reports an element value that is not valid engineering notation.
type UnitError struct {
	Element string
	Field   string
	Err     error
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	return fmt.Sprintf("element %s field %s: %v", e.Element, e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UnitError) Unwrap() error {
	return e.Err
}
