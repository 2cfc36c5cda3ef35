package units

import "fmt"

// Prefix is a magnitude suffix of an engineering-notation value.
type Prefix int

const (
	// Base is an unscaled value.
	Base Prefix = iota
	Tera
	Giga
	Mega
	Kilo
	// Mil is a thousandth of an inch, expressed in metres (25.4e-6).
	Mil
	Milli
	Micro
	Nano
	Pico
	Femto
)

type prefixInfo struct {
	suffix     string
	multiplier float64
}

var prefixes = map[Prefix]prefixInfo{
	Base:  {"", 1},
	Tera:  {"T", 1e12},
	Giga:  {"G", 1e9},
	Mega:  {"Meg", 1e6},
	Kilo:  {"K", 1e3},
	Mil:   {"mil", 25.4e-6},
	Milli: {"m", 1e-3},
	Micro: {"u", 1e-6},
	Nano:  {"n", 1e-9},
	Pico:  {"p", 1e-12},
	Femto: {"f", 1e-15},
}

// parseOrder is the order in which suffixes are tried while parsing.
var parseOrder = []Prefix{Tera, Giga, Mega, Kilo, Mil, Milli, Micro, Nano, Pico, Femto}

// Suffix returns the canonical netlist suffix of the prefix.
func (p Prefix) Suffix() string {
	return prefixes[p].suffix
}

// Multiplier returns the SI scale factor of the prefix.
func (p Prefix) Multiplier() float64 {
	if info, ok := prefixes[p]; ok {
		return info.multiplier
	}
	return 1
}

// Validate checks that the prefix is one of the known magnitudes.
func (p Prefix) Validate() error {
	if _, ok := prefixes[p]; !ok {
		return fmt.Errorf("%w: %d", ErrIncorrectMagnitude, int(p))
	}
	return nil
}

// String returns a readable name of the prefix.
func (p Prefix) String() string {
	switch p {
	case Base:
		return "base"
	case Tera:
		return "tera"
	case Giga:
		return "giga"
	case Mega:
		return "mega"
	case Kilo:
		return "kilo"
	case Mil:
		return "mil"
	case Milli:
		return "milli"
	case Micro:
		return "micro"
	case Nano:
		return "nano"
	case Pico:
		return "pico"
	case Femto:
		return "femto"
	default:
		return fmt.Sprintf("prefix(%d)", int(p))
	}
}
