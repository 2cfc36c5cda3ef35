package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/graphicspice/gspice/pkg/engine"
	"github.com/graphicspice/gspice/pkg/stores"
	"github.com/graphicspice/gspice/pkg/telemetry"
)

// Environment variables that override file settings.
const (
	EnvLibrary  = "GSPICE_LIBRARY"
	EnvWorkers  = "GSPICE_WORKERS"
	EnvDatabase = "GSPICE_DB"
	EnvLogLevel = "LOG_LEVEL"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	tel := telemetry.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			Library:       "lib/libngspice.so.%d",
			Workers:       engine.DefaultWorkers,
			PollInterval:  engine.DefaultPollInterval,
			FlushInterval: engine.DefaultFlushInterval,
			HaltTimeout:   5 * time.Second,
		},
		Store: StoreConfig{
			Path: "gspice.db",
		},
		Telemetry: *tel,
	}
}

// Load reads a YAML configuration file over the defaults, applies
// environment overrides and validates the result. An empty path loads the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are errors.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLibrary); ok && v != "" {
		c.Engine.Library = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Engine.Workers = n
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Store.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Telemetry.Logging.Level = v
	}
	return nil
}

// Validate checks struct constraints and the telemetry section.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if strings.Count(c.Engine.Library, "%") > 1 {
		return fmt.Errorf("invalid config: engine.library may hold at most one %%d verb")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}

// LibraryFactory returns the engine backend factory for the configured
// library.
func (c *Config) LibraryFactory(logger zerolog.Logger) engine.LibraryFactory {
	return engine.LibraryFactory{
		Pattern:     c.Engine.Library,
		HaltTimeout: c.Engine.HaltTimeout,
		Logger:      logger,
	}
}

// OrchestratorOptions returns the orchestrator options of the engine
// section.
func (c *Config) OrchestratorOptions() []engine.Option {
	return []engine.Option{
		engine.WithWorkers(c.Engine.Workers),
		engine.WithPollInterval(c.Engine.PollInterval),
		engine.WithFlushInterval(c.Engine.FlushInterval),
	}
}

// SQLite returns the SQLite store configuration.
func (c *Config) SQLite() stores.Config {
	return stores.Config{
		Path:         c.Store.Path,
		MaxOpenConns: c.Store.MaxOpenConns,
		MaxIdleConns: c.Store.MaxIdleConns,
	}
}
