package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates the root logger for the given configuration. The
// returned closer releases the log file when Output names one.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, io.Closer, error) {
	var writer io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		writer, closer = file, file
	}

	return newLogger(writer, cfg), closer, nil
}

func newLogger(writer io.Writer, cfg LoggingConfig) zerolog.Logger {
	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: consoleTimeFormat(cfg.TimeFormat),
		}
	}

	switch cfg.TimeFormat {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "unixms":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	zlog := zerolog.New(writer).With().Timestamp().Logger().Level(ParseLevel(cfg.Level))
	if cfg.EnableCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return zlog
}

// ComponentLogger returns a child logger tagged with a component name.
func ComponentLogger(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// WithRun adds the run_id field.
func WithRun(l zerolog.Logger, runID string) zerolog.Logger {
	return l.With().Str("run_id", runID).Logger()
}

// ParseLevel converts a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func consoleTimeFormat(format string) string {
	if format == "unix" {
		return "unix"
	}
	return time.Kitchen
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
