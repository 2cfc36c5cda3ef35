// Package circuit holds the closed set of circuit elements understood by the
// netlist compiler and turns a Schematic into engine netlist text.
package circuit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/graphicspice/gspice/pkg/units"
)

// GroundNode is the canonical ground node name written into netlists.
const GroundNode = "gnd"

// Kind identifies the element type and doubles as its netlist letter.
type Kind string

const (
	KindResistor      Kind = "R"
	KindCapacitor     Kind = "C"
	KindInductor      Kind = "L"
	KindVoltageSource Kind = "V"
	KindCurrentSource Kind = "I"
	KindVCVS          Kind = "E"
	KindCCCS          Kind = "F"
	KindVCCS          Kind = "G"
	KindCCVS          Kind = "H"
	KindBJT           Kind = "Q"
)

// Validate checks if the kind is one of the supported elements.
func (k Kind) Validate() error {
	switch k {
	case KindResistor, KindCapacitor, KindInductor, KindVoltageSource,
		KindCurrentSource, KindVCVS, KindCCCS, KindVCCS, KindCCVS, KindBJT:
		return nil
	default:
		return fmt.Errorf("invalid element kind: %s", k)
	}
}

// Terminals returns the number of nodes an element of this kind connects to.
func (k Kind) Terminals() int {
	switch k {
	case KindVCVS, KindVCCS:
		return 4
	case KindBJT:
		return 3
	default:
		return 2
	}
}

// NodeMapper rewrites a node name before it is written to the netlist.
type NodeMapper func(node string) string

// Element is a single circuit component.
type Element interface {
	// Name returns the element name without its kind letter.
	Name() string

	// Kind returns the element type.
	Kind() Kind

	// Nodes returns the terminal node names in netlist order.
	Nodes() []string

	// Line renders the element as one netlist line, without the trailing newline.
	Line(node NodeMapper) (string, error)
}

// ModelUser is implemented by elements that reference a device model which
// must be declared in the netlist.
type ModelUser interface {
	ModelDirective() (name, directive string, err error)
}

// ErrMissingOptional is returned when an optional waveform parameter is set
// while a preceding positional parameter is not.
var ErrMissingOptional = errors.New("optional parameter set after an unset one")

// SerializationError reports an element that could not be rendered.
type SerializationError struct {
	Element string
	Err     error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("element %s cannot be serialized: %v", e.Element, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// elementID returns the netlist identifier, kind letter followed by name.
func elementID(e Element) string {
	return string(e.Kind()) + e.Name()
}

func mapNodes(node NodeMapper, nodes ...string) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		if node != nil {
			n = node(n)
		}
		out[i] = n
	}
	return out
}

func checkNodes(e Element) error {
	for i, n := range e.Nodes() {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("terminal %d is not connected", i)
		}
		if strings.ContainsAny(n, " \t\r\n") {
			return fmt.Errorf("node name %q contains whitespace", n)
		}
	}
	return nil
}

// renderLine writes "<id> <nodes...> <rest...>".
func renderLine(e Element, node NodeMapper, rest ...string) (string, error) {
	if err := checkNodes(e); err != nil {
		return "", &SerializationError{Element: elementID(e), Err: err}
	}
	parts := append([]string{elementID(e)}, mapNodes(node, e.Nodes()...)...)
	parts = append(parts, rest...)
	return strings.Join(parts, " "), nil
}

// positional formats optional trailing parameters: each one may only be
// present when all of the preceding ones are.
func positional(values ...*units.Value) ([]string, error) {
	var out []string
	ended := false
	for _, v := range values {
		if v == nil {
			ended = true
			continue
		}
		if ended {
			return nil, ErrMissingOptional
		}
		out = append(out, v.String())
	}
	return out, nil
}
