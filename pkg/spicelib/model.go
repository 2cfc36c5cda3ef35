package spicelib

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/graphicspice/gspice/pkg/circuit"
	"github.com/graphicspice/gspice/pkg/units"
)

var (
	// ErrNotModel is returned for directives other than .model.
	ErrNotModel = errors.New("not a .model directive")

	// ErrNotBJTModel is returned for .model directives of other device types.
	ErrNotBJTModel = errors.New("not a BJT model")
)

// ModelError reports a .model directive that could not be parsed.
type ModelError struct {
	Model string
	Param string
	Err   error
}

func (e *ModelError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("model %s: parameter %s: %v", e.Model, e.Param, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// ParseBJTModel parses ".model NAME NPN|PNP(K=V ...)". Parentheses, commas
// and spaces around "=" are optional. Parameters the netlist writer does not
// know are dropped.
func ParseBJTModel(directive string) (*circuit.BJTModel, error) {
	tokens := tokenize(directive)
	if len(tokens) == 0 || !strings.EqualFold(tokens[0], ".model") {
		return nil, ErrNotModel
	}
	if len(tokens) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrNotModel, directive)
	}

	name := tokens[1]
	polarity, err := circuit.ParsePolarity(tokens[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotBJTModel, name, tokens[2])
	}

	model := &circuit.BJTModel{
		Name:     name,
		Polarity: polarity,
		Params:   make(map[string]units.Value),
	}

	rest := tokens[3:]
	for len(rest) > 0 {
		if len(rest) < 3 || rest[1] != "=" {
			return nil, &ModelError{Model: name, Param: rest[0], Err: errors.New("expected KEY=VALUE")}
		}
		key, raw := strings.ToUpper(rest[0]), rest[2]
		rest = rest[3:]

		if !circuit.IsBJTParam(key) {
			continue
		}
		v, err := units.Parse(raw)
		if err != nil {
			return nil, &ModelError{Model: name, Param: key, Err: err}
		}
		model.Params[key] = v
	}

	return model, nil
}

// ParseLibrary reads every BJT model of a library file. Directives that are
// not BJT models are skipped.
func ParseLibrary(r io.Reader) ([]*circuit.BJTModel, error) {
	directives, err := NewDirectiveReader(r).All()
	if err != nil {
		return nil, err
	}

	var models []*circuit.BJTModel
	for _, d := range directives {
		m, err := ParseBJTModel(d)
		if errors.Is(err, ErrNotModel) || errors.Is(err, ErrNotBJTModel) {
			continue
		}
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func tokenize(directive string) []string {
	r := strings.NewReplacer("(", " ", ")", " ", ",", " ", "=", " = ")
	return strings.Fields(r.Replace(directive))
}
