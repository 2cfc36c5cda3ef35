package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrEmptyValue is returned when the input holds no value at all.
	ErrEmptyValue = errors.New("empty value")

	// ErrInvalidUnitOfMagnitude is returned when the input is neither a number
	// nor a number followed by a known magnitude suffix.
	ErrInvalidUnitOfMagnitude = errors.New("invalid unit of magnitude")

	// ErrNotFinite is returned for NaN and infinite bases.
	ErrNotFinite = errors.New("value is not finite")

	// ErrIncorrectMagnitude is returned for a prefix outside the known set.
	ErrIncorrectMagnitude = errors.New("incorrect magnitude")
)

// ParseError records a failed conversion of engineering-notation text.
type ParseError struct {
	Input string
	Err   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Value is a number in engineering notation. The zero Value is 0 with no prefix.
type Value struct {
	Prefix Prefix  `json:"prefix"`
	Base   float64 `json:"base"`
}

// New returns a value of base scaled by prefix.
func New(base float64, prefix Prefix) Value {
	return Value{Prefix: prefix, Base: base}
}

// Plain returns an unprefixed value.
func Plain(base float64) Value {
	return Value{Prefix: Base, Base: base}
}

// Parse converts engineering-notation text such as "10K", "4.7u" or "1e-3"
// into a Value. Suffixes are matched case-insensitively and must end the
// input; the part before the suffix must be a finite number.
func Parse(s string) (Value, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return Value{}, &ParseError{Input: s, Err: ErrEmptyValue}
	}
	lower := strings.ToLower(in)

	for _, p := range parseOrder {
		head, ok := strings.CutSuffix(lower, strings.ToLower(p.Suffix()))
		if !ok || head == "" {
			continue
		}
		base, err := parseBase(head)
		if err != nil {
			if errors.Is(err, ErrNotFinite) {
				return Value{}, &ParseError{Input: s, Err: err}
			}
			continue
		}
		return Value{Prefix: p, Base: base}, nil
	}

	base, err := parseBase(lower)
	if err != nil {
		if errors.Is(err, ErrNotFinite) {
			return Value{}, &ParseError{Input: s, Err: err}
		}
		return Value{}, &ParseError{Input: s, Err: ErrInvalidUnitOfMagnitude}
	}
	return Value{Prefix: Base, Base: base}, nil
}

// MustParse is like Parse but panics on error. Intended for constants in tests
// and model tables.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parseBase(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrNotFinite
	}
	return f, nil
}

// String formats the value in netlist notation: the base followed by the
// canonical suffix. Unprefixed values switch to exponent form outside
// (1e-3, 1e4).
func (v Value) String() string {
	if v.Prefix == Base {
		return formatBase(v.Base)
	}
	return strconv.FormatFloat(v.Base, 'f', -1, 64) + v.Prefix.Suffix()
}

// Format is an alias of String kept for call sites that read as netlist
// formatting.
func (v Value) Format() string {
	return v.String()
}

// Float64 returns the value in SI units.
func (v Value) Float64() float64 {
	return v.Base * v.Prefix.Multiplier()
}

// WithPrefix re-expresses the value using prefix p without changing its
// magnitude.
func (v Value) WithPrefix(p Prefix) Value {
	if p == v.Prefix {
		return v
	}
	return Value{Prefix: p, Base: v.Float64() / p.Multiplier()}
}

// IsZero reports whether the value is zero.
func (v Value) IsZero() bool {
	return v.Base == 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) {
	if err := v.Prefix.Validate(); err != nil {
		return nil, err
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Value) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func formatBase(f float64) string {
	abs := math.Abs(f)
	if f == 0 || (abs > 1e-3 && abs < 1e4) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	// strconv writes "1.5e-05"; netlists use the compact "1.5e-5".
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	n, err := strconv.Atoi(exp)
	if err != nil {
		return s
	}
	return mantissa + "e" + strconv.Itoa(n)
}
