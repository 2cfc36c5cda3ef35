package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/graphicspice/gspice/pkg/ngspice"
)

// LibraryFactory opens one copy of the shared engine library per worker.
// Each worker needs its own file because the library keeps global state.
type LibraryFactory struct {
	// Pattern locates the copy of a worker, e.g. "lib/libngspice.so.%d".
	Pattern string

	// HaltTimeout bounds how long closing waits for a running analysis.
	HaltTimeout time.Duration

	Logger zerolog.Logger
}

// Open loads the library copy of worker.
func (f LibraryFactory) Open(worker int, sink ngspice.Sink) (Backend, error) {
	opts := []ngspice.Option{
		ngspice.WithLogger(f.Logger.With().Int("worker", worker).Logger()),
	}
	if f.HaltTimeout > 0 {
		opts = append(opts, ngspice.WithHaltTimeout(f.HaltTimeout))
	}

	lib, err := ngspice.Open(ngspice.LibraryPath(f.Pattern, worker), sink, opts...)
	if err != nil {
		return nil, err
	}
	return lib, nil
}
