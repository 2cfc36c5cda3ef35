package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/graphicspice/gspice/pkg/config"
	"github.com/graphicspice/gspice/pkg/stores"
	"github.com/graphicspice/gspice/pkg/telemetry"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	configPath string
	verbose    bool
	jsonOutput bool

	cfg    *config.Config
	tel    *telemetry.Telemetry
	logger zerolog.Logger
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return newRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "gspice",
		Short: "gspice - schematic simulation on a native SPICE engine",
		Long: `gspice compiles schematic graphs drawn in the editor into SPICE netlists
and runs them on a pool of native engine instances.

Features:
  - Graph to netlist compilation with engineering-notation values
  - Transient, operating point, AC, DC, distortion, noise, pole-zero and
    sensitivity analyses
  - Parallel workers, one engine library copy each
  - Device model library imported from .lib files, with hot reload
  - Run history in SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newSimulateCommand(a))
	rootCmd.AddCommand(newNetlistCommand(a))
	rootCmd.AddCommand(newModelsCommand(a))
	rootCmd.AddCommand(newRunsCommand(a))

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	tel, err := telemetry.New(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	tel.Events.Subscribe(func(e telemetry.Event) {
		tel.Logger.WithLevel(eventLevel(e.Level)).
			Str("event", e.Type).
			Str("run_id", e.RunID).
			Str("request_id", e.RequestID).
			Msg(e.Message)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	a.cfg = cfg
	a.tel = tel
	a.logger = tel.Logger
	cmd.SetContext(tel.WithContext(cmd.Context()))
	return nil
}

func (a *app) teardown() error {
	if a.tel == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.tel.Shutdown(ctx)
}

// openStore opens and migrates the configured database.
func (a *app) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(a.cfg.SQLite())
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func eventLevel(level string) zerolog.Level {
	switch level {
	case telemetry.EventLevelError:
		return zerolog.ErrorLevel
	case telemetry.EventLevelWarning:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
