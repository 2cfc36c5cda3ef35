package commands

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/graphicspice/gspice/pkg/engine"
	"github.com/graphicspice/gspice/pkg/telemetry"
)

// eventLine is one line of simulate output.
type eventLine struct {
	Type   string              `json:"type"`
	Status *engine.StatusEvent `json:"status,omitempty"`
	Data   *engine.DataEvent   `json:"data,omitempty"`
}

// lineEmitter writes orchestrator events as JSON lines and publishes the
// terminal ones as lifecycle events. Workers call it concurrently.
type lineEmitter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	events *telemetry.EventPublisher
	logger zerolog.Logger
}

var _ engine.Emitter = (*lineEmitter)(nil)

func newLineEmitter(w io.Writer, events *telemetry.EventPublisher, logger zerolog.Logger) *lineEmitter {
	return &lineEmitter{enc: json.NewEncoder(w), events: events, logger: logger}
}

func (e *lineEmitter) EmitStatus(ev engine.StatusEvent) {
	e.write(eventLine{Type: "status", Status: &ev})

	if ev.Kind.IsTerminal() && e.events != nil {
		if err := e.events.PublishSimulationFinished(ev.RunID, ev.ID, string(ev.Kind), ev.Reason); err != nil {
			e.logger.Debug().Err(err).Str("request_id", ev.ID).Msg("Lifecycle event dropped")
		}
	}
}

func (e *lineEmitter) EmitData(ev engine.DataEvent) {
	e.write(eventLine{Type: "data", Data: &ev})
}

func (e *lineEmitter) write(line eventLine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(line); err != nil {
		e.logger.Error().Err(err).Msg("Failed to write event")
	}
}
