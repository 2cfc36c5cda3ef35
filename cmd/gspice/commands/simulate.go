package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphicspice/gspice/pkg/engine"
	"github.com/graphicspice/gspice/pkg/telemetry"
)

func newSimulateCommand(a *app) *cobra.Command {
	var (
		graphPath    string
		requestsPath string
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run simulation requests against a schematic",
		Long: `Compile a schematic graph and run every request on the engine pool.

Events are written to stdout as JSON lines, one per status or data event.
Every request ends with exactly one terminal status: Ready, Failed or
Cancelled. Interrupting the command halts the engines and reports the
remaining requests as Cancelled.`,
		Example: `  # Transient and operating point analyses on four workers
  gspice simulate --graph divider.json --requests analyses.json

  # Use a specific library copy pattern
  GSPICE_LIBRARY=/opt/ngspice/libngspice.so.%d gspice simulate -g amp.json -r ac.yaml -w 2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if paths := a.cfg.Models.Paths; len(paths) > 0 {
				if _, err := importModels(ctx, a, store, paths); err != nil {
					return err
				}
				if a.cfg.Models.Watch {
					loader, err := watchModels(ctx, a, store, paths)
					if err != nil {
						return err
					}
					defer loader.StopWatching()
				}
			}

			sch, err := a.compileGraph(ctx, graphPath, store)
			if err != nil {
				return err
			}
			requests, err := readRequests(requestsPath)
			if err != nil {
				return err
			}

			if workers > 0 {
				a.cfg.Engine.Workers = workers
			}

			logger := telemetry.ComponentLogger(a.logger, "engine")
			opts := append(a.cfg.OrchestratorOptions(),
				engine.WithLogger(logger),
				engine.WithTracer(a.tel.Tracer.Tracer()),
				engine.WithMetrics(a.tel.Metrics),
				engine.WithStateManager(store),
			)
			orch := engine.NewOrchestrator(a.cfg.LibraryFactory(logger), opts...)

			a.tel.Metrics.Serve(ctx, a.logger)
			a.tel.Metrics.RecordRunStarted()

			op := telemetry.StartOperation(ctx, "simulate", telemetry.AttrPath.String(graphPath))
			emitter := newLineEmitter(cmd.OutOrStdout(), a.tel.Events, a.logger)
			run, err := orch.Simulate(op.Ctx, sch, requests, emitter)
			op.End(err)

			if run == nil {
				a.tel.Metrics.RecordRunCompleted("rejected", op.Timer.Duration())
				var eerr *engine.EngineError
				if errors.As(err, &eerr) {
					a.tel.Metrics.RecordError(string(eerr.Class), eerr.Code)
				}
				return err
			}

			outcome := string(run.Status)
			if err != nil {
				outcome = "cancelled"
			}
			a.tel.Metrics.RecordRunCompleted(outcome, run.Duration)
			_ = a.tel.Events.PublishRunCompleted(run.ID, run.Duration, err != nil)

			a.logger.Info().
				Str("run_id", run.ID).
				Int("requests", run.Requests).
				Int("workers", run.Workers).
				Dur("duration", run.Duration).
				Msg("Simulation run finished")

			if err != nil {
				return fmt.Errorf("run %s interrupted: %w", run.ID, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&graphPath, "graph", "g", "", "schematic graph file (JSON)")
	cmd.Flags().StringVarP(&requestsPath, "requests", "r", "", "simulation requests file (JSON or YAML list)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "maximum number of engine workers (default from config)")
	_ = cmd.MarkFlagRequired("graph")
	_ = cmd.MarkFlagRequired("requests")

	return cmd
}
