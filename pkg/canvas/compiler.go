package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/graphicspice/gspice/pkg/circuit"
	"github.com/graphicspice/gspice/pkg/units"
)

// ModelResolver looks up device models referenced by name.
type ModelResolver interface {
	ResolveBJT(ctx context.Context, name string) (*circuit.BJTModel, error)
}

// Compiler turns a Graph into a Schematic.
type Compiler struct {
	models   ModelResolver
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewCompiler creates a compiler. models may be nil when the graph holds no
// transistors.
func NewCompiler(models ModelResolver, logger zerolog.Logger) *Compiler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Compiler{
		models:   models,
		logger:   logger.With().Str("component", "canvas-compiler").Logger(),
		validate: v,
	}
}

// Compile compiles g with a compiler that does not log.
func Compile(ctx context.Context, g Graph, models ModelResolver) (*circuit.Schematic, error) {
	return NewCompiler(models, zerolog.Nop()).Compile(ctx, g)
}

// connection is one outgoing edge of an element: the port it leaves from and
// the node it reaches. The target names the net.
type connection struct {
	port   string
	target string
}

// Compile builds the schematic. Elements keep graph order. The terminals of
// each element are its outgoing connections sorted by port label, then by
// target, bound in order; surplus connections are ignored.
func (c *Compiler) Compile(ctx context.Context, g Graph) (*circuit.Schematic, error) {
	if err := c.validate.Struct(g); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}

	index := make(map[string]*Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if err := n.Type.Validate(); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %s", n.ID)
		}
		index[n.ID] = n
	}

	schematic := circuit.NewSchematic()
	for _, n := range g.Nodes {
		if n.Type == NodeGround {
			schematic.InsertGroundAlias(n.ID)
		}
	}

	conns := make(map[string][]connection)
	seen := make(map[string]map[connection]struct{})
	for _, e := range g.Edges {
		src, ok := index[e.Source]
		if !ok {
			return nil, fmt.Errorf("edge %s: unknown source node %s", e.ID, e.Source)
		}
		if _, ok := index[e.Target]; !ok {
			return nil, fmt.Errorf("edge %s: unknown target node %s", e.ID, e.Target)
		}
		if src.Type == NodeGround {
			schematic.InsertGroundAlias(e.Target)
			continue
		}
		conn := connection{port: e.SourceHandle, target: e.Target}
		if seen[e.Source] == nil {
			seen[e.Source] = make(map[connection]struct{})
		}
		if _, dup := seen[e.Source][conn]; dup {
			continue
		}
		seen[e.Source][conn] = struct{}{}
		conns[e.Source] = append(conns[e.Source], conn)
	}

	for _, n := range g.Nodes {
		if !n.Type.IsElement() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		list := conns[n.ID]
		sort.Slice(list, func(i, j int) bool {
			if list[i].port != list[j].port {
				return list[i].port < list[j].port
			}
			return list[i].target < list[j].target
		})
		nodes := make([]string, len(list))
		for i, cn := range list {
			nodes[i] = cn.target
		}

		elem, err := c.element(ctx, n, nodes, index)
		if err != nil {
			return nil, err
		}
		if err := schematic.Insert(elem); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
	}

	if schematic.Len() == 0 {
		return nil, ErrNoSchematic
	}

	c.logger.Debug().
		Int("elements", schematic.Len()).
		Int("ground_aliases", len(schematic.GroundAliases())).
		Msg("Compiled schematic")

	return schematic, nil
}

// element decodes the node data and binds the terminals.
func (c *Compiler) element(ctx context.Context, n Node, nodes []string, index map[string]*Node) (circuit.Element, error) {
	kind := circuit.Kind(n.Type)
	label := c.label(n)

	b := &builder{element: label}
	terminal := func(i int) string { return nodes[i] }

	bind := func() error {
		want := kind.Terminals()
		if len(nodes) < want {
			return &FloatingNodeError{Element: label, Terminals: want, Connected: len(nodes)}
		}
		if len(nodes) > want {
			c.logger.Warn().
				Str("element", label).
				Int("terminals", want).
				Int("connections", len(nodes)).
				Msg("Ignoring surplus connections")
		}
		return nil
	}

	switch kind {
	case circuit.KindResistor, circuit.KindCapacitor, circuit.KindInductor:
		var d PassiveData
		if err := c.decode(n, label, &d); err != nil {
			return nil, err
		}
		if err := bind(); err != nil {
			return nil, err
		}
		v := b.value("value", d.Value)
		if b.err != nil {
			return nil, b.err
		}
		switch kind {
		case circuit.KindResistor:
			return &circuit.Resistor{ID: d.Name, N1: terminal(0), N2: terminal(1), Resistance: v}, nil
		case circuit.KindCapacitor:
			return &circuit.Capacitor{ID: d.Name, N1: terminal(0), N2: terminal(1), Capacitance: v}, nil
		default:
			return &circuit.Inductor{ID: d.Name, N1: terminal(0), N2: terminal(1), Inductance: v}, nil
		}

	case circuit.KindVoltageSource, circuit.KindCurrentSource:
		var d SourceData
		if err := c.decode(n, label, &d); err != nil {
			return nil, err
		}
		if err := bind(); err != nil {
			return nil, err
		}
		w, err := b.waveform(d.TimeDomain)
		if err != nil {
			return nil, err
		}
		var ac *circuit.SmallSignal
		if d.SmallSignal != nil {
			ac = &circuit.SmallSignal{
				Magnitude: b.value("small_signal.amplitude", d.SmallSignal.Amplitude),
				Phase:     b.optional("small_signal.phase", d.SmallSignal.Phase),
			}
		}
		if b.err != nil {
			return nil, b.err
		}
		if kind == circuit.KindVoltageSource {
			return &circuit.VoltageSource{ID: d.Name, Pos: terminal(0), Neg: terminal(1), Waveform: w, AC: ac}, nil
		}
		return &circuit.CurrentSource{ID: d.Name, Pos: terminal(0), Neg: terminal(1), Waveform: w, AC: ac}, nil

	case circuit.KindVCVS, circuit.KindVCCS:
		var d GainData
		if err := c.decode(n, label, &d); err != nil {
			return nil, err
		}
		if err := bind(); err != nil {
			return nil, err
		}
		v := b.value("value", d.Value)
		if b.err != nil {
			return nil, b.err
		}
		if kind == circuit.KindVCVS {
			return &circuit.VCVS{ID: d.Name, Pos: terminal(0), Neg: terminal(1),
				CtrlPos: terminal(2), CtrlNeg: terminal(3), Gain: v}, nil
		}
		return &circuit.VCCS{ID: d.Name, Pos: terminal(0), Neg: terminal(1),
			CtrlPos: terminal(2), CtrlNeg: terminal(3), Transconductance: v}, nil

	case circuit.KindCCCS, circuit.KindCCVS:
		var d ControlledData
		if err := c.decode(n, label, &d); err != nil {
			return nil, err
		}
		control, err := c.controlSource(label, d.Control, index)
		if err != nil {
			return nil, err
		}
		if err := bind(); err != nil {
			return nil, err
		}
		v := b.value("value", d.Value)
		if b.err != nil {
			return nil, b.err
		}
		if kind == circuit.KindCCCS {
			return &circuit.CCCS{ID: d.Name, Pos: terminal(0), Neg: terminal(1), Control: control, Gain: v}, nil
		}
		return &circuit.CCVS{ID: d.Name, Pos: terminal(0), Neg: terminal(1), Control: control, Transresistance: v}, nil

	case circuit.KindBJT:
		var d BJTData
		if err := c.decode(n, label, &d); err != nil {
			return nil, err
		}
		if c.models == nil {
			return nil, &UnconfiguredElementError{Element: label, Field: "model", Err: errors.New("no model library")}
		}
		model, err := c.models.ResolveBJT(ctx, d.Model)
		if err != nil {
			return nil, &UnconfiguredElementError{Element: label, Field: "model", Err: err}
		}
		if err := bind(); err != nil {
			return nil, err
		}
		return &circuit.BJT{ID: d.Name, Collector: terminal(0), Base: terminal(1), Emitter: terminal(2), Model: model}, nil
	}

	return nil, fmt.Errorf("node %s: unsupported element type %s", n.ID, n.Type)
}

// label names the element the way it appears in the netlist, falling back to
// the node ID while the data cannot be read.
func (c *Compiler) label(n Node) string {
	var d nameOnly
	if len(n.Data) > 0 && json.Unmarshal(n.Data, &d) == nil && d.Name != "" {
		return string(n.Type) + d.Name
	}
	return string(n.Type) + "(" + n.ID + ")"
}

func (c *Compiler) decode(n Node, label string, dst interface{}) error {
	data := bytes.TrimSpace(n.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &UnconfiguredElementError{Element: label, Field: "data"}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &UnconfiguredElementError{Element: label, Field: "data", Err: err}
	}
	if err := c.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			_, field, _ := strings.Cut(verrs[0].Namespace(), ".")
			return &UnconfiguredElementError{Element: label, Field: field}
		}
		return &UnconfiguredElementError{Element: label, Err: err}
	}
	return nil
}

// controlSource resolves the node ID of a sensing voltage source to its
// netlist name.
func (c *Compiler) controlSource(label, id string, index map[string]*Node) (string, error) {
	n, ok := index[id]
	if !ok || n.Type != NodeVoltageSource {
		return "", &UnconfiguredElementError{
			Element: label,
			Field:   "control",
			Err:     fmt.Errorf("%s is not a voltage source", id),
		}
	}
	var d nameOnly
	if err := json.Unmarshal(n.Data, &d); err != nil || d.Name == "" {
		return "", &UnconfiguredElementError{
			Element: label,
			Field:   "control",
			Err:     fmt.Errorf("voltage source %s has no name", id),
		}
	}
	return string(circuit.KindVoltageSource) + d.Name, nil
}

// builder converts engineering-notation fields, keeping the first error.
type builder struct {
	element string
	err     error
}

func (b *builder) value(field, s string) units.Value {
	if b.err != nil {
		return units.Value{}
	}
	v, err := units.Parse(s)
	if err != nil {
		b.err = &UnitError{Element: b.element, Field: field, Err: err}
	}
	return v
}

func (b *builder) optional(field string, s *string) *units.Value {
	if s == nil {
		return nil
	}
	v := b.value(field, *s)
	return &v
}

func (b *builder) waveform(td *TimeDomainData) (circuit.Waveform, error) {
	var (
		w   circuit.Waveform
		set int
	)
	if td.Dc != nil {
		set++
		w = circuit.DC{Value: b.value("time_domain.Dc.value", td.Dc.Value)}
	}
	if p := td.Pulse; p != nil {
		set++
		w = circuit.Pulse{
			Initial: b.value("time_domain.Pulse.initial_value", p.InitialValue),
			Final:   b.value("time_domain.Pulse.final_value", p.FinalValue),
			Delay:   b.optional("time_domain.Pulse.delay", p.Delay),
			Rise:    b.optional("time_domain.Pulse.rise_time", p.RiseTime),
			Fall:    b.optional("time_domain.Pulse.fall_time", p.FallTime),
			Width:   b.optional("time_domain.Pulse.pulse_width", p.PulseWidth),
			Period:  b.optional("time_domain.Pulse.period", p.Period),
		}
	}
	if s := td.Sin; s != nil {
		set++
		w = circuit.Sin{
			Offset:    b.value("time_domain.Sin.offset", s.Offset),
			Amplitude: b.value("time_domain.Sin.amplitude", s.Amplitude),
			Frequency: b.optional("time_domain.Sin.frequency", s.Frequency),
			Delay:     b.optional("time_domain.Sin.delay", s.Delay),
			Damping:   b.optional("time_domain.Sin.damping_factor", s.DampingFactor),
		}
	}
	if e := td.Exp; e != nil {
		set++
		w = circuit.Exp{
			Initial:   b.value("time_domain.Exp.initial_value", e.InitialValue),
			Final:     b.value("time_domain.Exp.final_value", e.FinalValue),
			RiseDelay: b.optional("time_domain.Exp.rise_delay", e.RiseDelay),
			RiseTau:   b.optional("time_domain.Exp.rise_time", e.RiseTime),
			FallDelay: b.optional("time_domain.Exp.fall_delay", e.FallDelay),
			FallTau:   b.optional("time_domain.Exp.fall_time", e.FallTime),
		}
	}
	if f := td.Sffm; f != nil {
		set++
		w = circuit.SFFM{
			Offset:          b.value("time_domain.Sffm.offset", f.Offset),
			Amplitude:       b.value("time_domain.Sffm.amplitude", f.Amplitude),
			Carrier:         b.optional("time_domain.Sffm.carrier_frequency", f.CarrierFrequency),
			ModulationIndex: f.ModulationIndex,
			Signal:          b.optional("time_domain.Sffm.signal_frequency", f.SignalFrequency),
		}
	}
	if a := td.Am; a != nil {
		set++
		w = circuit.AM{
			Amplitude:  b.value("time_domain.Am.amplitude", a.Amplitude),
			Offset:     b.value("time_domain.Am.offset", a.Offset),
			Modulating: b.value("time_domain.Am.modulating_frequency", a.ModulatingFrequency),
			Carrier:    b.optional("time_domain.Am.carrier_frequency", a.CarrierFrequency),
			Delay:      b.optional("time_domain.Am.delay", a.Delay),
		}
	}

	if set != 1 {
		return nil, &UnconfiguredElementError{
			Element: b.element,
			Field:   "time_domain",
			Err:     fmt.Errorf("expected exactly one waveform, got %d", set),
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return w, nil
}
