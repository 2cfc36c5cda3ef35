package analysis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/graphicspice/gspice/pkg/units"
)

// Simulation is a validated analysis ready to be written into a netlist.
type Simulation interface {
	// Name is the analysis name the engine uses in progress reports, e.g. "tran".
	Name() string

	// Directive is the analysis line, e.g. ".tran 1u 1m".
	Directive() string
}

// Names lists the analyses the engine reports progress for.
func Names() []string {
	return []string{"tran", "ac", "dc", "noise", "disto", "pz", "sens", "op"}
}

// Request is one simulation job submitted by a caller.
type Request struct {
	ID     string `json:"id" yaml:"id"`
	Config Config `json:"config" yaml:"config"`
}

// ParseRequest validates a request and parses its config.
func ParseRequest(r Request) (Simulation, error) {
	if strings.TrimSpace(r.ID) == "" {
		return nil, &MalformedConfigError{Field: "id", Err: errors.New("request id is empty")}
	}
	sim, err := Parse(r.Config)
	if err != nil {
		var merr *MalformedConfigError
		if errors.As(err, &merr) {
			merr.Request = r.ID
			return nil, merr
		}
		return nil, &MalformedConfigError{Request: r.ID, Err: err}
	}
	return sim, nil
}

// Parse validates c and converts its engineering-notation strings into unit
// values.
func Parse(c Config) (Simulation, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	p := &fieldParser{}
	var sim Simulation
	switch {
	case c.Op != nil:
		sim = Op{}
	case c.Tran != nil:
		sim = p.tran(c.Tran)
	case c.Ac != nil:
		sim = AC{Sweep: p.sweep("Ac", c.Ac)}
	case c.Dc != nil:
		sim = p.dc(c.Dc)
	case c.Disto != nil:
		sim = p.disto(c.Disto)
	case c.Noise != nil:
		sim = p.noise(c.Noise)
	case c.Pz != nil:
		sim = p.pz(c.Pz)
	case c.Sens != nil:
		sim = p.sens(c.Sens)
	}
	if p.err != nil {
		return nil, p.err
	}
	return sim, nil
}

// fieldParser keeps the first error so the variant parsers read linearly.
type fieldParser struct {
	err error
}

func (p *fieldParser) value(field, s string) units.Value {
	if p.err != nil {
		return units.Value{}
	}
	v, err := units.Parse(s)
	if err != nil {
		p.err = &MalformedConfigError{Field: field, Err: err}
	}
	return v
}

func (p *fieldParser) optional(field string, s *string) *units.Value {
	if s == nil {
		return nil
	}
	v := p.value(field, *s)
	return &v
}

func (p *fieldParser) name(field, s string) string {
	s = strings.TrimSpace(s)
	if p.err == nil && strings.ContainsAny(s, " \t\r\n") {
		p.err = &MalformedConfigError{Field: field, Err: fmt.Errorf("%q contains whitespace", s)}
	}
	return s
}

func (p *fieldParser) tran(c *TranConfig) Tran {
	return Tran{
		Step:  p.value("Tran.tstep", c.TStep),
		Stop:  p.value("Tran.tstop", c.TStop),
		Start: p.optional("Tran.tstart", c.TStart),
		Max:   p.optional("Tran.tmax", c.TMax),
		UIC:   c.UIC,
	}
}

func (p *fieldParser) sweep(prefix string, c *AcConfig) FrequencySweep {
	return FrequencySweep{
		Type:   SweepType(c.Sweep),
		Points: c.Points,
		Start:  p.value(prefix+".fstart", c.FStart),
		Stop:   p.value(prefix+".fstop", c.FStop),
	}
}

func (p *fieldParser) dcSweep(prefix string, c DcSweep) SourceSweep {
	return SourceSweep{
		Source:    p.name(prefix+".source", c.Source),
		Start:     p.value(prefix+".start", c.Start),
		Stop:      p.value(prefix+".stop", c.Stop),
		Increment: p.value(prefix+".increment", c.Increment),
	}
}

func (p *fieldParser) dc(c *DcConfig) DC {
	d := DC{First: p.dcSweep("Dc", c.DcSweep)}
	if c.Second != nil {
		second := p.dcSweep("Dc.second", *c.Second)
		d.Second = &second
	}
	return d
}

func (p *fieldParser) disto(c *DistoConfig) Disto {
	return Disto{
		Sweep: FrequencySweep{
			Type:   SweepType(c.Sweep),
			Points: c.Points,
			Start:  p.value("Disto.fstart", c.FStart),
			Stop:   p.value("Disto.fstop", c.FStop),
		},
		F2OverF1: p.optional("Disto.f2overf1", c.F2OverF1),
	}
}

func (p *fieldParser) noise(c *NoiseConfig) Noise {
	n := Noise{
		Output: p.name("Noise.output", c.Output),
		Source: p.name("Noise.source", c.Source),
		Sweep: FrequencySweep{
			Type:   SweepType(c.Sweep),
			Points: c.Points,
			Start:  p.value("Noise.fstart", c.FStart),
			Stop:   p.value("Noise.fstop", c.FStop),
		},
		PointsPerSummary: c.PointsPerSummary,
	}
	if c.Reference != nil {
		n.Reference = p.name("Noise.reference", *c.Reference)
	}
	return n
}

func (p *fieldParser) pz(c *PzConfig) PZ {
	return PZ{
		InPos:    p.name("Pz.in_pos", c.InPos),
		InNeg:    p.name("Pz.in_neg", c.InNeg),
		OutPos:   p.name("Pz.out_pos", c.OutPos),
		OutNeg:   p.name("Pz.out_neg", c.OutNeg),
		Transfer: c.Transfer,
		Analysis: c.Analysis,
	}
}

func (p *fieldParser) sens(c *SensConfig) Sens {
	s := Sens{Output: p.name("Sens.output", c.Output)}
	if c.AC != nil {
		sw := p.sweep("Sens.ac", c.AC)
		s.AC = &sw
	}
	return s
}

// SweepType is the point distribution of a frequency sweep.
type SweepType string

const (
	SweepDecade SweepType = "dec"
	SweepOctave SweepType = "oct"
	SweepLinear SweepType = "lin"
)

// FrequencySweep is "<type> <points> <fstart> <fstop>".
type FrequencySweep struct {
	Type   SweepType
	Points int
	Start  units.Value
	Stop   units.Value
}

func (s FrequencySweep) String() string {
	return fmt.Sprintf("%s %d %s %s", s.Type, s.Points, s.Start, s.Stop)
}

// Op is the DC operating point.
type Op struct{}

func (Op) Name() string      { return "op" }
func (Op) Directive() string { return ".op" }

// Tran is a transient analysis.
type Tran struct {
	Step, Stop units.Value
	Start      *units.Value
	Max        *units.Value
	UIC        bool
}

func (Tran) Name() string { return "tran" }

func (t Tran) Directive() string {
	parts := []string{".tran", t.Step.String(), t.Stop.String()}
	switch {
	case t.Max != nil:
		start := units.Plain(0)
		if t.Start != nil {
			start = *t.Start
		}
		parts = append(parts, start.String(), t.Max.String())
	case t.Start != nil:
		parts = append(parts, t.Start.String())
	}
	if t.UIC {
		parts = append(parts, "uic")
	}
	return strings.Join(parts, " ")
}

// AC is a small-signal frequency sweep.
type AC struct {
	Sweep FrequencySweep
}

func (AC) Name() string        { return "ac" }
func (a AC) Directive() string { return ".ac " + a.Sweep.String() }

// SourceSweep sweeps one independent source.
type SourceSweep struct {
	Source                 string
	Start, Stop, Increment units.Value
}

func (s SourceSweep) String() string {
	return strings.Join([]string{s.Source, s.Start.String(), s.Stop.String(), s.Increment.String()}, " ")
}

// DC is a DC transfer curve analysis.
type DC struct {
	First  SourceSweep
	Second *SourceSweep
}

func (DC) Name() string { return "dc" }

func (d DC) Directive() string {
	out := ".dc " + d.First.String()
	if d.Second != nil {
		out += " " + d.Second.String()
	}
	return out
}

// Disto is a distortion analysis.
type Disto struct {
	Sweep    FrequencySweep
	F2OverF1 *units.Value
}

func (Disto) Name() string { return "disto" }

func (d Disto) Directive() string {
	out := ".disto " + d.Sweep.String()
	if d.F2OverF1 != nil {
		out += " " + d.F2OverF1.String()
	}
	return out
}

// Noise is a noise analysis.
type Noise struct {
	Output           string
	Reference        string
	Source           string
	Sweep            FrequencySweep
	PointsPerSummary *int
}

func (Noise) Name() string { return "noise" }

func (n Noise) Directive() string {
	out := "v(" + n.Output
	if n.Reference != "" {
		out += "," + n.Reference
	}
	out = ".noise " + out + ") " + n.Source + " " + n.Sweep.String()
	if n.PointsPerSummary != nil {
		out += " " + strconv.Itoa(*n.PointsPerSummary)
	}
	return out
}

// PZ is a pole-zero analysis.
type PZ struct {
	InPos, InNeg   string
	OutPos, OutNeg string
	Transfer       string
	Analysis       string
}

func (PZ) Name() string { return "pz" }

func (p PZ) Directive() string {
	return strings.Join([]string{".pz", p.InPos, p.InNeg, p.OutPos, p.OutNeg, p.Transfer, p.Analysis}, " ")
}

// Sens is a sensitivity analysis.
type Sens struct {
	Output string
	AC     *FrequencySweep
}

func (Sens) Name() string { return "sens" }

func (s Sens) Directive() string {
	out := ".sens " + s.Output
	if s.AC != nil {
		out += " ac " + s.AC.String()
	}
	return out
}
