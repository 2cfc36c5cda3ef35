package circuit

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/graphicspice/gspice/pkg/units"
)

// Polarity is the doping type of a bipolar transistor.
type Polarity string

const (
	NPN Polarity = "NPN"
	PNP Polarity = "PNP"
)

// ParsePolarity converts "npn"/"pnp" in any case.
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(NPN):
		return NPN, nil
	case string(PNP):
		return PNP, nil
	default:
		return "", fmt.Errorf("invalid BJT polarity: %q", s)
	}
}

// BJTParamOrder is the order in which Gummel-Poon parameters are written to
// a .model directive.
var BJTParamOrder = []string{
	"IS", "XTI", "EG", "VAF", "BF", "ISE", "NE", "IKF", "NK", "XTB", "BR",
	"ISC", "NC", "IKR", "RC", "CJC", "MJC", "VJC", "FC", "CJE", "MJE", "VJE",
	"TR", "TF", "ITF", "XTF", "VTF", "RB",
}

var bjtParamRank = func() map[string]int {
	m := make(map[string]int, len(BJTParamOrder))
	for i, p := range BJTParamOrder {
		m[p] = i
	}
	return m
}()

// IsBJTParam reports whether name is a known model parameter.
func IsBJTParam(name string) bool {
	_, ok := bjtParamRank[strings.ToUpper(name)]
	return ok
}

// BJTModel is a named bipolar transistor model. Params holds the parameters
// that are set; keys are upper case parameter names.
type BJTModel struct {
	Name     string                 `json:"name"`
	Polarity Polarity               `json:"polarity"`
	Params   map[string]units.Value `json:"params,omitempty"`
}

var errNoModelName = errors.New("model has no name")

// Directive renders the model as a .model line.
func (m *BJTModel) Directive() (string, error) {
	if strings.TrimSpace(m.Name) == "" {
		return "", errNoModelName
	}
	if m.Polarity != NPN && m.Polarity != PNP {
		return "", fmt.Errorf("model %s: invalid polarity %q", m.Name, m.Polarity)
	}

	names := make([]string, 0, len(m.Params))
	for k := range m.Params {
		key := strings.ToUpper(k)
		if _, ok := bjtParamRank[key]; !ok {
			return "", fmt.Errorf("model %s: unknown parameter %s", m.Name, k)
		}
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := bjtParamRank[strings.ToUpper(names[i])], bjtParamRank[strings.ToUpper(names[j])]
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})

	params := make([]string, 0, len(names))
	for _, k := range names {
		params = append(params, strings.ToUpper(k)+"="+m.Params[k].String())
	}
	return fmt.Sprintf(".model %s %s(%s)", m.Name, m.Polarity, strings.Join(params, " ")), nil
}

// BJT is a bipolar junction transistor (Q).
type BJT struct {
	ID                       string
	Collector, Base, Emitter string
	Model                    *BJTModel
}

func (q *BJT) Name() string    { return q.ID }
func (q *BJT) Kind() Kind      { return KindBJT }
func (q *BJT) Nodes() []string { return []string{q.Collector, q.Base, q.Emitter} }

func (q *BJT) Line(node NodeMapper) (string, error) {
	if q.Model == nil || strings.TrimSpace(q.Model.Name) == "" {
		return "", &SerializationError{Element: elementID(q), Err: errNoModelName}
	}
	return renderLine(q, node, q.Model.Name)
}

// ModelDirective returns the .model line the transistor depends on.
func (q *BJT) ModelDirective() (string, string, error) {
	if q.Model == nil {
		return "", "", &SerializationError{Element: elementID(q), Err: errNoModelName}
	}
	d, err := q.Model.Directive()
	if err != nil {
		return "", "", &SerializationError{Element: elementID(q), Err: err}
	}
	return q.Model.Name, d, nil
}
