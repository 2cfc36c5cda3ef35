package analysis

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/graphicspice/gspice/pkg/units"
)

func strPtr(s string) *string { return &s }

func TestDirectives(t *testing.T) {
	pps := 10
	tests := []struct {
		name   string
		config Config
		want   string
		kind   string
	}{
		{"op", Config{Op: &OpConfig{}}, ".op", "op"},
		{"tran minimal", Config{Tran: &TranConfig{TStep: "1u", TStop: "1m"}}, ".tran 1u 1m", "tran"},
		{
			"tran with tstart",
			Config{Tran: &TranConfig{TStep: "1u", TStop: "1m", TStart: strPtr("10u")}},
			".tran 1u 1m 10u", "tran",
		},
		{
			"tran with tmax only",
			Config{Tran: &TranConfig{TStep: "1u", TStop: "1m", TMax: strPtr("2u"), UIC: true}},
			".tran 1u 1m 0 2u uic", "tran",
		},
		{
			"ac",
			Config{Ac: &AcConfig{Sweep: "dec", Points: 10, FStart: "1", FStop: "1Meg"}},
			".ac dec 10 1 1Meg", "ac",
		},
		{
			"dc nested",
			Config{Dc: &DcConfig{
				DcSweep: DcSweep{Source: "V1", Start: "0", Stop: "5", Increment: "100m"},
				Second:  &DcSweep{Source: "V2", Start: "0", Stop: "1", Increment: "500m"},
			}},
			".dc V1 0 5 100m V2 0 1 500m", "dc",
		},
		{
			"disto",
			Config{Disto: &DistoConfig{Sweep: "oct", Points: 5, FStart: "1K", FStop: "100K", F2OverF1: strPtr("900m")}},
			".disto oct 5 1K 100K 900m", "disto",
		},
		{
			"noise",
			Config{Noise: &NoiseConfig{
				Output: "out", Reference: strPtr("ref"), Source: "V1",
				Sweep: "dec", Points: 10, FStart: "1", FStop: "1G", PointsPerSummary: &pps,
			}},
			".noise v(out,ref) V1 dec 10 1 1G 10", "noise",
		},
		{
			"pz",
			Config{Pz: &PzConfig{InPos: "1", InNeg: "0", OutPos: "3", OutNeg: "0", Transfer: "cur", Analysis: "pol"}},
			".pz 1 0 3 0 cur pol", "pz",
		},
		{"sens dc", Config{Sens: &SensConfig{Output: "v(out)"}}, ".sens v(out)", "sens"},
		{
			"sens ac",
			Config{Sens: &SensConfig{Output: "v(out)", AC: &AcConfig{Sweep: "lin", Points: 100, FStart: "1K", FStop: "10K"}}},
			".sens v(out) ac lin 100 1K 10K", "sens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, err := Parse(tt.config)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got := sim.Directive(); got != tt.want {
				t.Errorf("Directive() = %q, want %q", got, tt.want)
			}
			if sim.Name() != tt.kind {
				t.Errorf("Name() = %q, want %q", sim.Name(), tt.kind)
			}
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		field  string
		cause  error
	}{
		{"empty", Config{}, "", ErrNoAnalysis},
		{"two variants", Config{Op: &OpConfig{}, Tran: &TranConfig{TStep: "1", TStop: "2"}}, "", ErrMultipleAnalyses},
		{"bad unit", Config{Tran: &TranConfig{TStep: "1x", TStop: "1m"}}, "Tran.tstep", units.ErrInvalidUnitOfMagnitude},
		{"bad optional", Config{Tran: &TranConfig{TStep: "1u", TStop: "1m", TMax: strPtr("fast")}}, "Tran.tmax", units.ErrInvalidUnitOfMagnitude},
		{"missing field", Config{Tran: &TranConfig{TStep: "1u"}}, "Tran.tstop", nil},
		{"bad sweep", Config{Ac: &AcConfig{Sweep: "log", Points: 1, FStart: "1", FStop: "2"}}, "Ac.sweep", nil},
		{"zero points", Config{Ac: &AcConfig{Sweep: "dec", FStart: "1", FStop: "2"}}, "Ac.points", nil},
		{"spaced source", Config{Dc: &DcConfig{DcSweep: DcSweep{Source: "V 1", Start: "0", Stop: "1", Increment: "1"}}}, "Dc.source", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.config)
			if err == nil {
				t.Fatal("expected error")
			}
			var merr *MalformedConfigError
			if !errors.As(err, &merr) {
				t.Fatalf("expected *MalformedConfigError, got %T: %v", err, err)
			}
			if merr.Field != tt.field {
				t.Errorf("Field = %q, want %q", merr.Field, tt.field)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("error %v does not wrap %v", err, tt.cause)
			}
		})
	}
}

func TestParseRequestNamesRequest(t *testing.T) {
	_, err := ParseRequest(Request{ID: "sim-7", Config: Config{}})
	var merr *MalformedConfigError
	if !errors.As(err, &merr) {
		t.Fatalf("expected *MalformedConfigError, got %v", err)
	}
	if merr.Request != "sim-7" {
		t.Errorf("Request = %q, want sim-7", merr.Request)
	}

	if _, err := ParseRequest(Request{Config: Config{Op: &OpConfig{}}}); err == nil {
		t.Error("expected error for empty request id")
	}
}

func TestConfigWireShape(t *testing.T) {
	var c Config
	if err := json.Unmarshal([]byte(`{"Tran":{"tstep":"10u","tstop":"5m","uic":true}}`), &c); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if c.Kind() != "Tran" {
		t.Fatalf("Kind() = %q, want Tran", c.Kind())
	}
	sim, err := Parse(c)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := sim.Directive(); got != ".tran 10u 5m uic" {
		t.Errorf("Directive() = %q", got)
	}

	var op Config
	if err := json.Unmarshal([]byte(`{"Op":{}}`), &op); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if op.Kind() != "Op" {
		t.Errorf("Kind() = %q, want Op", op.Kind())
	}
}
