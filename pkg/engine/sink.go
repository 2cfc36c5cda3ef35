package engine

import (
	"github.com/rs/zerolog"

	"github.com/graphicspice/gspice/pkg/ngspice"
)

// workerSink records engine callbacks of one worker. Callbacks run on engine
// threads, so they only append to the worker's state and never emit.
type workerSink struct {
	st     *runState
	w      *worker
	logger zerolog.Logger
}

func (s *workerSink) OnOutput(out ngspice.Output) {
	if out.Stream == ngspice.Stderr {
		s.logger.Warn().Str("stream", string(out.Stream)).Msg(out.Text)
		return
	}
	s.logger.Trace().Str("stream", string(out.Stream)).Msg(out.Text)
}

func (s *workerSink) OnStatus(status string) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.w.statuses = append(s.w.statuses, status)
}

func (s *workerSink) OnExit(exit ngspice.Exit) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.w.exit = &exit
}

func (s *workerSink) OnInitVectors(plot ngspice.PlotInfo) {
	s.logger.Debug().
		Str("plot", plot.Name).
		Str("type", plot.Type).
		Int("vectors", len(plot.Vectors)).
		Msg("Analysis vectors initialized")
}

func (s *workerSink) OnData(data ngspice.VectorValuesAll) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.w.buffer = append(s.w.buffer, newSimulationData(data))
}

func (s *workerSink) OnBackgroundState(finished bool) {
	if !finished {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.w.finished = true
}
