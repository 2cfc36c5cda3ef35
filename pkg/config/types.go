package config

import (
	"time"

	"github.com/graphicspice/gspice/pkg/telemetry"
)

// Config is the gspice configuration file.
type Config struct {
	// Engine configures the simulation workers.
	Engine EngineConfig `yaml:"engine"`

	// Store configures the SQLite database holding models and run history.
	Store StoreConfig `yaml:"store"`

	// Models lists device model libraries to import.
	Models ModelsConfig `yaml:"models"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// EngineConfig configures the engine library and the worker pool.
type EngineConfig struct {
	// Library locates the per-worker copy of the shared engine library. A
	// single %d verb is replaced by the worker index.
	Library string `yaml:"library" validate:"required"`

	// Workers is the maximum number of concurrent engine instances.
	Workers int `yaml:"workers" validate:"min=1,max=64"`

	// PollInterval is the sleep between worker and supervisor polls.
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`

	// FlushInterval is the minimum time between data events of a request.
	FlushInterval time.Duration `yaml:"flush_interval" validate:"gte=0"`

	// HaltTimeout bounds how long closing an engine waits for a running
	// analysis to halt.
	HaltTimeout time.Duration `yaml:"halt_timeout" validate:"gte=0"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	// Path is the database file.
	Path string `yaml:"path" validate:"required"`

	// MaxOpenConns caps open connections; zero uses the store default.
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`

	// MaxIdleConns caps idle connections; zero uses the store default.
	MaxIdleConns int `yaml:"max_idle_conns" validate:"gte=0"`
}

// ModelsConfig configures the device model libraries.
type ModelsConfig struct {
	// Paths are library files or directories imported into the store.
	Paths []string `yaml:"paths" validate:"dive,required"`

	// Watch keeps the store in sync with Paths while a command runs.
	Watch bool `yaml:"watch"`
}
