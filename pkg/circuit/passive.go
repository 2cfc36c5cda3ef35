package circuit

import "github.com/graphicspice/gspice/pkg/units"

// Resistor is a two-terminal resistance.
type Resistor struct {
	ID         string
	N1, N2     string
	Resistance units.Value
}

func (r *Resistor) Name() string    { return r.ID }
func (r *Resistor) Kind() Kind      { return KindResistor }
func (r *Resistor) Nodes() []string { return []string{r.N1, r.N2} }

func (r *Resistor) Line(node NodeMapper) (string, error) {
	return renderLine(r, node, r.Resistance.String())
}

// Capacitor is a two-terminal capacitance.
type Capacitor struct {
	ID          string
	N1, N2      string
	Capacitance units.Value
}

func (c *Capacitor) Name() string    { return c.ID }
func (c *Capacitor) Kind() Kind      { return KindCapacitor }
func (c *Capacitor) Nodes() []string { return []string{c.N1, c.N2} }

func (c *Capacitor) Line(node NodeMapper) (string, error) {
	return renderLine(c, node, c.Capacitance.String())
}

// Inductor is a two-terminal inductance.
type Inductor struct {
	ID         string
	N1, N2     string
	Inductance units.Value
}

func (l *Inductor) Name() string    { return l.ID }
func (l *Inductor) Kind() Kind      { return KindInductor }
func (l *Inductor) Nodes() []string { return []string{l.N1, l.N2} }

func (l *Inductor) Line(node NodeMapper) (string, error) {
	return renderLine(l, node, l.Inductance.String())
}
