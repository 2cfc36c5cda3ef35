package circuit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/graphicspice/gspice/pkg/units"
)

// Waveform is the time-domain description of an independent source.
// Implementations: DC, Pulse, Sin, Exp, SFFM, AM.
type Waveform interface {
	Spec() (string, error)
}

// DC is a constant level.
type DC struct {
	Value units.Value
}

func (w DC) Spec() (string, error) {
	return "DC " + w.Value.String(), nil
}

// Pulse is a trapezoidal pulse train.
type Pulse struct {
	Initial, Final units.Value
	Delay          *units.Value
	Rise           *units.Value
	Fall           *units.Value
	Width          *units.Value
	Period         *units.Value
}

func (w Pulse) Spec() (string, error) {
	return waveform("PULSE", []units.Value{w.Initial, w.Final},
		w.Delay, w.Rise, w.Fall, w.Width, w.Period)
}

// Sin is a damped sinusoid.
type Sin struct {
	Offset, Amplitude units.Value
	Frequency         *units.Value
	Delay             *units.Value
	Damping           *units.Value
}

func (w Sin) Spec() (string, error) {
	return waveform("SIN", []units.Value{w.Offset, w.Amplitude},
		w.Frequency, w.Delay, w.Damping)
}

// Exp is a two-time-constant exponential.
type Exp struct {
	Initial, Final units.Value
	RiseDelay      *units.Value
	RiseTau        *units.Value
	FallDelay      *units.Value
	FallTau        *units.Value
}

func (w Exp) Spec() (string, error) {
	return waveform("EXP", []units.Value{w.Initial, w.Final},
		w.RiseDelay, w.RiseTau, w.FallDelay, w.FallTau)
}

// SFFM is a single-frequency FM signal. ModulationIndex is an integer.
type SFFM struct {
	Offset, Amplitude units.Value
	Carrier           *units.Value
	ModulationIndex   *int
	Signal            *units.Value
}

func (w SFFM) Spec() (string, error) {
	var mdi *units.Value
	if w.ModulationIndex != nil {
		v := units.Plain(float64(*w.ModulationIndex))
		mdi = &v
	}
	return waveform("SFFM", []units.Value{w.Offset, w.Amplitude},
		w.Carrier, mdi, w.Signal)
}

// AM is an amplitude modulated signal.
type AM struct {
	Amplitude, Offset units.Value
	Modulating        units.Value
	Carrier           *units.Value
	Delay             *units.Value
}

func (w AM) Spec() (string, error) {
	return waveform("AM", []units.Value{w.Amplitude, w.Offset, w.Modulating},
		w.Carrier, w.Delay)
}

func waveform(fn string, required []units.Value, optional ...*units.Value) (string, error) {
	args := make([]string, 0, len(required)+len(optional))
	for _, v := range required {
		args = append(args, v.String())
	}
	rest, err := positional(optional...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", fn, err)
	}
	args = append(args, rest...)
	return fn + "(" + strings.Join(args, " ") + ")", nil
}

// SmallSignal is the AC descriptor of a source.
type SmallSignal struct {
	Magnitude units.Value
	Phase     *units.Value
}

func (s SmallSignal) Spec() string {
	if s.Phase == nil {
		return "AC " + s.Magnitude.String()
	}
	return "AC " + s.Magnitude.String() + " " + s.Phase.String()
}

var errNoWaveform = errors.New("no time-domain waveform")

func sourceLine(e Element, node NodeMapper, w Waveform, ac *SmallSignal) (string, error) {
	if w == nil {
		return "", &SerializationError{Element: elementID(e), Err: errNoWaveform}
	}
	spec, err := w.Spec()
	if err != nil {
		return "", &SerializationError{Element: elementID(e), Err: err}
	}
	rest := []string{spec}
	if ac != nil {
		rest = append(rest, ac.Spec())
	}
	return renderLine(e, node, rest...)
}

// VoltageSource is an independent voltage source.
type VoltageSource struct {
	ID       string
	Pos, Neg string
	Waveform Waveform
	AC       *SmallSignal
}

func (v *VoltageSource) Name() string    { return v.ID }
func (v *VoltageSource) Kind() Kind      { return KindVoltageSource }
func (v *VoltageSource) Nodes() []string { return []string{v.Pos, v.Neg} }

func (v *VoltageSource) Line(node NodeMapper) (string, error) {
	return sourceLine(v, node, v.Waveform, v.AC)
}

// CurrentSource is an independent current source.
type CurrentSource struct {
	ID       string
	Pos, Neg string
	Waveform Waveform
	AC       *SmallSignal
}

func (i *CurrentSource) Name() string    { return i.ID }
func (i *CurrentSource) Kind() Kind      { return KindCurrentSource }
func (i *CurrentSource) Nodes() []string { return []string{i.Pos, i.Neg} }

func (i *CurrentSource) Line(node NodeMapper) (string, error) {
	return sourceLine(i, node, i.Waveform, i.AC)
}
