package circuit

import (
	"errors"
	"strings"

	"github.com/graphicspice/gspice/pkg/units"
)

var errNoControl = errors.New("no controlling source")

// VCVS is a voltage-controlled voltage source (E).
type VCVS struct {
	ID               string
	Pos, Neg         string
	CtrlPos, CtrlNeg string
	Gain             units.Value
}

func (e *VCVS) Name() string    { return e.ID }
func (e *VCVS) Kind() Kind      { return KindVCVS }
func (e *VCVS) Nodes() []string { return []string{e.Pos, e.Neg, e.CtrlPos, e.CtrlNeg} }

func (e *VCVS) Line(node NodeMapper) (string, error) {
	return renderLine(e, node, e.Gain.String())
}

// VCCS is a voltage-controlled current source (G).
type VCCS struct {
	ID               string
	Pos, Neg         string
	CtrlPos, CtrlNeg string
	Transconductance units.Value
}

func (g *VCCS) Name() string    { return g.ID }
func (g *VCCS) Kind() Kind      { return KindVCCS }
func (g *VCCS) Nodes() []string { return []string{g.Pos, g.Neg, g.CtrlPos, g.CtrlNeg} }

func (g *VCCS) Line(node NodeMapper) (string, error) {
	return renderLine(g, node, g.Transconductance.String())
}

// CCCS is a current-controlled current source (F). Control is the netlist
// name of the voltage source whose current controls the output, e.g. "Vsense".
type CCCS struct {
	ID       string
	Pos, Neg string
	Control  string
	Gain     units.Value
}

func (f *CCCS) Name() string    { return f.ID }
func (f *CCCS) Kind() Kind      { return KindCCCS }
func (f *CCCS) Nodes() []string { return []string{f.Pos, f.Neg} }

func (f *CCCS) Line(node NodeMapper) (string, error) {
	if strings.TrimSpace(f.Control) == "" {
		return "", &SerializationError{Element: elementID(f), Err: errNoControl}
	}
	return renderLine(f, node, f.Control, f.Gain.String())
}

// CCVS is a current-controlled voltage source (H).
type CCVS struct {
	ID              string
	Pos, Neg        string
	Control         string
	Transresistance units.Value
}

func (h *CCVS) Name() string    { return h.ID }
func (h *CCVS) Kind() Kind      { return KindCCVS }
func (h *CCVS) Nodes() []string { return []string{h.Pos, h.Neg} }

func (h *CCVS) Line(node NodeMapper) (string, error) {
	if strings.TrimSpace(h.Control) == "" {
		return "", &SerializationError{Element: elementID(h), Err: errNoControl}
	}
	return renderLine(h, node, h.Control, h.Transresistance.String())
}
