package analysis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// StatusKind is the kind of a status line reported by the engine.
type StatusKind string

const (
	StatusSourceDeck StatusKind = "SourceDeck"
	StatusProgress   StatusKind = "Progress"
	StatusReady      StatusKind = "Ready"
)

// Status is a parsed engine status line.
type Status struct {
	Kind     StatusKind `json:"kind"`
	Analysis string     `json:"analysis,omitempty"`
	Percent  float64    `json:"percent,omitempty"`
}

var (
	ErrUnknownStatus   = errors.New("unknown status")
	ErrMalformedStatus = errors.New("malformed status")
)

// ParseStatus interprets a status line: "Source Deck", "--ready--" or
// "<analysis>: <percent>%".
func ParseStatus(line string) (Status, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "Source Deck":
		return Status{Kind: StatusSourceDeck}, nil
	case "--ready--":
		return Status{Kind: StatusReady}, nil
	}

	name, rest, ok := strings.Cut(line, ":")
	if !ok || !isAnalysisName(strings.TrimSpace(name)) {
		return Status{}, fmt.Errorf("%w: %q", ErrUnknownStatus, line)
	}

	pct := strings.TrimSuffix(strings.TrimSpace(rest), "%")
	percent, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}
	return Status{Kind: StatusProgress, Analysis: strings.TrimSpace(name), Percent: percent}, nil
}

func isAnalysisName(s string) bool {
	for _, n := range Names() {
		if s == n {
			return true
		}
	}
	return false
}
