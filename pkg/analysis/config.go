// Package analysis describes the simulations a caller can request, validates
// their wire form into engineering-notation values, and formats the matching
// analysis directive. It also parses the status lines the engine reports while
// an analysis runs.
package analysis

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Config is the wire form of an analysis: a keyed variant in which exactly one
// field is set, e.g. {"Tran": {"tstep": "1u", "tstop": "1m"}} or {"Op": {}}.
// Numeric fields are engineering-notation strings.
type Config struct {
	Tran  *TranConfig  `json:"Tran,omitempty" yaml:"Tran,omitempty"`
	Op    *OpConfig    `json:"Op,omitempty" yaml:"Op,omitempty"`
	Ac    *AcConfig    `json:"Ac,omitempty" yaml:"Ac,omitempty"`
	Dc    *DcConfig    `json:"Dc,omitempty" yaml:"Dc,omitempty"`
	Disto *DistoConfig `json:"Disto,omitempty" yaml:"Disto,omitempty"`
	Noise *NoiseConfig `json:"Noise,omitempty" yaml:"Noise,omitempty"`
	Pz    *PzConfig    `json:"Pz,omitempty" yaml:"Pz,omitempty"`
	Sens  *SensConfig  `json:"Sens,omitempty" yaml:"Sens,omitempty"`
}

// TranConfig is a transient analysis.
type TranConfig struct {
	TStep  string  `json:"tstep" yaml:"tstep" validate:"required"`
	TStop  string  `json:"tstop" yaml:"tstop" validate:"required"`
	TStart *string `json:"tstart,omitempty" yaml:"tstart,omitempty"`
	TMax   *string `json:"tmax,omitempty" yaml:"tmax,omitempty"`
	UIC    bool    `json:"uic,omitempty" yaml:"uic,omitempty"`
}

// OpConfig is the DC operating point. It has no parameters.
type OpConfig struct{}

// AcConfig is a small-signal frequency sweep.
type AcConfig struct {
	Sweep  string `json:"sweep" yaml:"sweep" validate:"required,oneof=dec oct lin"`
	Points int    `json:"points" yaml:"points" validate:"gt=0"`
	FStart string `json:"fstart" yaml:"fstart" validate:"required"`
	FStop  string `json:"fstop" yaml:"fstop" validate:"required"`
}

// DcSweep sweeps one source.
type DcSweep struct {
	Source    string `json:"source" yaml:"source" validate:"required"`
	Start     string `json:"start" yaml:"start" validate:"required"`
	Stop      string `json:"stop" yaml:"stop" validate:"required"`
	Increment string `json:"increment" yaml:"increment" validate:"required"`
}

// DcConfig is a DC transfer curve, optionally nested over a second source.
type DcConfig struct {
	DcSweep `yaml:",inline"`
	Second  *DcSweep `json:"second,omitempty" yaml:"second,omitempty"`
}

// DistoConfig is a small-signal distortion analysis.
type DistoConfig struct {
	Sweep    string  `json:"sweep" yaml:"sweep" validate:"required,oneof=dec oct lin"`
	Points   int     `json:"points" yaml:"points" validate:"gt=0"`
	FStart   string  `json:"fstart" yaml:"fstart" validate:"required"`
	FStop    string  `json:"fstop" yaml:"fstop" validate:"required"`
	F2OverF1 *string `json:"f2overf1,omitempty" yaml:"f2overf1,omitempty"`
}

// NoiseConfig is a noise analysis of v(Output[,Reference]) against Source.
type NoiseConfig struct {
	Output           string  `json:"output" yaml:"output" validate:"required"`
	Reference        *string `json:"reference,omitempty" yaml:"reference,omitempty"`
	Source           string  `json:"source" yaml:"source" validate:"required"`
	Sweep            string  `json:"sweep" yaml:"sweep" validate:"required,oneof=dec oct lin"`
	Points           int     `json:"points" yaml:"points" validate:"gt=0"`
	FStart           string  `json:"fstart" yaml:"fstart" validate:"required"`
	FStop            string  `json:"fstop" yaml:"fstop" validate:"required"`
	PointsPerSummary *int    `json:"points_per_summary,omitempty" yaml:"points_per_summary,omitempty" validate:"omitempty,gt=0"`
}

// PzConfig is a pole-zero analysis between two node pairs.
type PzConfig struct {
	InPos    string `json:"in_pos" yaml:"in_pos" validate:"required"`
	InNeg    string `json:"in_neg" yaml:"in_neg" validate:"required"`
	OutPos   string `json:"out_pos" yaml:"out_pos" validate:"required"`
	OutNeg   string `json:"out_neg" yaml:"out_neg" validate:"required"`
	Transfer string `json:"transfer" yaml:"transfer" validate:"required,oneof=cur vol"`
	Analysis string `json:"analysis" yaml:"analysis" validate:"required,oneof=pol zer pz"`
}

// SensConfig is a sensitivity analysis of Output, DC unless AC is set.
type SensConfig struct {
	Output string    `json:"output" yaml:"output" validate:"required"`
	AC     *AcConfig `json:"ac,omitempty" yaml:"ac,omitempty"`
}

// ErrNoAnalysis and ErrMultipleAnalyses reject configs that are not exactly
// one variant.
var (
	ErrNoAnalysis       = errors.New("no analysis selected")
	ErrMultipleAnalyses = errors.New("more than one analysis selected")
)

// MalformedConfigError reports a request config that cannot be turned into a
// simulation. Field is the wire path of the offending value.
type MalformedConfigError struct {
	Request string
	Field   string
	Err     error
}

// Error implements the error interface.
func (e *MalformedConfigError) Error() string {
	var b strings.Builder
	b.WriteString("malformed simulation config")
	if e.Request != "" {
		fmt.Fprintf(&b, " (request=%s)", e.Request)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *MalformedConfigError) Unwrap() error {
	return e.Err
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Kind returns the name of the selected variant, or "" when none or several are set.
func (c Config) Kind() string {
	kinds := c.selected()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (c Config) selected() []string {
	var out []string
	if c.Tran != nil {
		out = append(out, "Tran")
	}
	if c.Op != nil {
		out = append(out, "Op")
	}
	if c.Ac != nil {
		out = append(out, "Ac")
	}
	if c.Dc != nil {
		out = append(out, "Dc")
	}
	if c.Disto != nil {
		out = append(out, "Disto")
	}
	if c.Noise != nil {
		out = append(out, "Noise")
	}
	if c.Pz != nil {
		out = append(out, "Pz")
	}
	if c.Sens != nil {
		out = append(out, "Sens")
	}
	return out
}

// Validate checks the shape of the config: exactly one variant and every
// required field present. Unit values are checked by Parse.
func (c Config) Validate() error {
	kinds := c.selected()
	switch {
	case len(kinds) == 0:
		return &MalformedConfigError{Err: ErrNoAnalysis}
	case len(kinds) > 1:
		return &MalformedConfigError{Err: fmt.Errorf("%w: %s", ErrMultipleAnalyses, strings.Join(kinds, ", "))}
	}

	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &MalformedConfigError{
				Field: trimNamespace(fe.Namespace()),
				Err:   fmt.Errorf("failed on %q rule", fe.Tag()),
			}
		}
		return &MalformedConfigError{Err: err}
	}
	return nil
}

// trimNamespace drops the root struct name from a validator namespace.
func trimNamespace(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}
