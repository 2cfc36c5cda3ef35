package circuit

import (
	"fmt"
	"sort"
	"strings"
)

const (
	netlistHeader  = "Graphic Spice Netlist"
	netlistOptions = ".options savecurrents"
	netlistFooter  = ".end"
)

// Analysis is anything that renders to a single analysis directive line.
type Analysis interface {
	Directive() string
}

// Schematic is an ordered list of elements plus the set of node names that
// are aliases of ground. It is read-only once built.
type Schematic struct {
	elements      []Element
	names         map[string]struct{}
	groundAliases map[string]struct{}
}

// NewSchematic creates an empty schematic.
func NewSchematic() *Schematic {
	return &Schematic{
		names:         make(map[string]struct{}),
		groundAliases: make(map[string]struct{}),
	}
}

// Insert appends an element. Netlist identifiers (kind letter plus name) must
// be unique.
func (s *Schematic) Insert(e Element) error {
	if err := e.Kind().Validate(); err != nil {
		return err
	}
	id := strings.ToUpper(elementID(e))
	if _, exists := s.names[id]; exists {
		return fmt.Errorf("duplicate element %s", elementID(e))
	}
	s.names[id] = struct{}{}
	s.elements = append(s.elements, e)
	return nil
}

// InsertGroundAlias marks node as connected to ground.
func (s *Schematic) InsertGroundAlias(node string) {
	s.groundAliases[node] = struct{}{}
}

// IsGround reports whether node is ground or one of its aliases.
func (s *Schematic) IsGround(node string) bool {
	if node == GroundNode {
		return true
	}
	_, ok := s.groundAliases[node]
	return ok
}

// GroundAliases returns the alias set in sorted order.
func (s *Schematic) GroundAliases() []string {
	out := make([]string, 0, len(s.groundAliases))
	for a := range s.groundAliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Elements returns the elements in insertion order.
func (s *Schematic) Elements() []Element {
	out := make([]Element, len(s.elements))
	copy(out, s.elements)
	return out
}

// Len returns the number of elements.
func (s *Schematic) Len() int {
	return len(s.elements)
}

// Node maps a node name to its netlist spelling, rewriting ground aliases.
func (s *Schematic) Node(node string) string {
	if s.IsGround(node) {
		return GroundNode
	}
	return node
}

// Netlist renders the schematic with the given analysis:
//
//	Graphic Spice Netlist
//	<element lines, each .model after the first element that uses it>
//	.options savecurrents
//	<analysis directive>
//	.end
func (s *Schematic) Netlist(a Analysis) (string, error) {
	lines, err := s.NetlistLines(a)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// NetlistLines is Netlist split into lines, the form the engine loads one
// line at a time.
func (s *Schematic) NetlistLines(a Analysis) ([]string, error) {
	if a == nil {
		return nil, fmt.Errorf("no analysis given")
	}

	lines := make([]string, 0, len(s.elements)+4)
	lines = append(lines, netlistHeader)

	models := make(map[string]struct{})
	for _, e := range s.elements {
		line, err := e.Line(s.Node)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)

		mu, ok := e.(ModelUser)
		if !ok {
			continue
		}
		name, directive, err := mu.ModelDirective()
		if err != nil {
			return nil, err
		}
		key := strings.ToUpper(name)
		if _, done := models[key]; done {
			continue
		}
		models[key] = struct{}{}
		lines = append(lines, directive)
	}

	lines = append(lines, netlistOptions, a.Directive(), netlistFooter)
	return lines, nil
}
