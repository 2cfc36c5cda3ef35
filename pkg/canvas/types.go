// Package canvas holds the node/edge graph a schematic editor produces and
// compiles it into a circuit.Schematic.
package canvas

import (
	"encoding/json"
	"fmt"

	"github.com/graphicspice/gspice/pkg/circuit"
)

// NodeType is the type of a graph node. Element types use the element's
// netlist letter; Gnd and Node are connection points.
type NodeType string

const (
	NodeResistor      NodeType = "R"
	NodeCapacitor     NodeType = "C"
	NodeInductor      NodeType = "L"
	NodeVoltageSource NodeType = "V"
	NodeCurrentSource NodeType = "I"
	NodeVCVS          NodeType = "E"
	NodeCCCS          NodeType = "F"
	NodeVCCS          NodeType = "G"
	NodeCCVS          NodeType = "H"
	NodeBJT           NodeType = "Q"
	NodeGround        NodeType = "Gnd"
	NodeJunction      NodeType = "Node"
)

// IsElement reports whether nodes of this type become circuit elements.
func (t NodeType) IsElement() bool {
	return circuit.Kind(t).Validate() == nil
}

// Validate checks if the node type is known.
func (t NodeType) Validate() error {
	if t == NodeGround || t == NodeJunction || t.IsElement() {
		return nil
	}
	return fmt.Errorf("invalid node type: %s", t)
}

// Node is a graph vertex. Data holds the type-specific configuration.
type Node struct {
	ID   string          `json:"id" validate:"required"`
	Type NodeType        `json:"type" validate:"required"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Edge connects port SourceHandle of node Source to node Target.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target" validate:"required"`
}

// Graph is the full editor document.
type Graph struct {
	Nodes []Node `json:"nodes" validate:"dive"`
	Edges []Edge `json:"edges" validate:"dive"`
}

// PassiveData configures R, C and L nodes.
type PassiveData struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// SourceData configures V and I nodes.
type SourceData struct {
	Name        string           `json:"name" validate:"required"`
	TimeDomain  *TimeDomainData  `json:"time_domain" validate:"required"`
	SmallSignal *SmallSignalData `json:"small_signal,omitempty"`
}

// TimeDomainData is a keyed variant; exactly one field is set.
type TimeDomainData struct {
	Dc    *DcData    `json:"Dc,omitempty"`
	Pulse *PulseData `json:"Pulse,omitempty"`
	Sin   *SinData   `json:"Sin,omitempty"`
	Exp   *ExpData   `json:"Exp,omitempty"`
	Sffm  *SffmData  `json:"Sffm,omitempty"`
	Am    *AmData    `json:"Am,omitempty"`
}

type DcData struct {
	Value string `json:"value" validate:"required"`
}

type PulseData struct {
	InitialValue string  `json:"initial_value" validate:"required"`
	FinalValue   string  `json:"final_value" validate:"required"`
	Delay        *string `json:"delay,omitempty"`
	RiseTime     *string `json:"rise_time,omitempty"`
	FallTime     *string `json:"fall_time,omitempty"`
	PulseWidth   *string `json:"pulse_width,omitempty"`
	Period       *string `json:"period,omitempty"`
}

type SinData struct {
	Offset        string  `json:"offset" validate:"required"`
	Amplitude     string  `json:"amplitude" validate:"required"`
	Frequency     *string `json:"frequency,omitempty"`
	Delay         *string `json:"delay,omitempty"`
	DampingFactor *string `json:"damping_factor,omitempty"`
}

type ExpData struct {
	InitialValue string  `json:"initial_value" validate:"required"`
	FinalValue   string  `json:"final_value" validate:"required"`
	RiseDelay    *string `json:"rise_delay,omitempty"`
	RiseTime     *string `json:"rise_time,omitempty"`
	FallDelay    *string `json:"fall_delay,omitempty"`
	FallTime     *string `json:"fall_time,omitempty"`
}

type SffmData struct {
	Offset           string  `json:"offset" validate:"required"`
	Amplitude        string  `json:"amplitude" validate:"required"`
	CarrierFrequency *string `json:"carrier_frequency,omitempty"`
	ModulationIndex  *int    `json:"modulation_index,omitempty"`
	SignalFrequency  *string `json:"signal_frequency,omitempty"`
}

type AmData struct {
	Amplitude           string  `json:"amplitude" validate:"required"`
	Offset              string  `json:"offset" validate:"required"`
	ModulatingFrequency string  `json:"modulating_frequency" validate:"required"`
	CarrierFrequency    *string `json:"carrier_frequency,omitempty"`
	Delay               *string `json:"delay,omitempty"`
}

// SmallSignalData is the AC descriptor of a source.
type SmallSignalData struct {
	Amplitude string  `json:"amplitude" validate:"required"`
	Phase     *string `json:"phase,omitempty"`
}

// GainData configures the voltage-controlled sources E and G.
type GainData struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// ControlledData configures the current-controlled sources F and H. Control
// is the node ID of the voltage source whose current is sensed.
type ControlledData struct {
	Name    string `json:"name" validate:"required"`
	Value   string `json:"value" validate:"required"`
	Control string `json:"control" validate:"required"`
}

// BJTData configures a Q node with a model from the model library.
type BJTData struct {
	Name  string `json:"name" validate:"required"`
	Model string `json:"model" validate:"required"`
}

// nameOnly decodes the element name before the full data is known to be valid.
type nameOnly struct {
	Name string `json:"name"`
}
