package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/graphicspice/gspice/pkg/circuit"
	"github.com/graphicspice/gspice/pkg/spicelib"
	"github.com/graphicspice/gspice/pkg/stores"
	"github.com/graphicspice/gspice/pkg/telemetry"
)

func newModelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the device model library",
		Long: `Import transistor models from SPICE library files and inspect the
library used to resolve the model names of Q elements.`,
	}

	cmd.AddCommand(newModelsImportCommand(a))
	cmd.AddCommand(newModelsListCommand(a))
	cmd.AddCommand(newModelsShowCommand(a))
	cmd.AddCommand(newModelsDeleteCommand(a))
	cmd.AddCommand(newModelsWatchCommand(a))

	return cmd
}

// importModels loads every library under paths into the store.
func importModels(ctx context.Context, a *app, store *stores.SQLiteStore, paths []string) (int, error) {
	op := telemetry.StartOperation(ctx, "models.import")
	loader := spicelib.NewLoader(a.logger)

	total := 0
	for _, path := range paths {
		models, err := loader.LoadFromPaths(op.Ctx, []string{path})
		if err != nil {
			op.End(err)
			return total, err
		}
		n, err := store.UpsertModels(op.Ctx, models, path)
		if err != nil {
			op.End(err)
			return total, fmt.Errorf("failed to import %s: %w", path, err)
		}
		total += n
	}
	op.End(nil)

	if all, err := store.ListModels(ctx); err == nil {
		a.tel.Metrics.SetModelsLoaded(len(all))
	}
	return total, nil
}

// watchModels re-imports the libraries under paths whenever they change.
// Callers stop the returned loader.
func watchModels(ctx context.Context, a *app, store *stores.SQLiteStore, paths []string) (*spicelib.Loader, error) {
	loader := spicelib.NewLoader(a.logger)
	err := loader.Watch(ctx, paths, func(models []*circuit.BJTModel) error {
		n, err := store.UpsertModels(ctx, models, "watch")
		if err != nil {
			return err
		}
		a.tel.Metrics.SetModelsLoaded(n)
		return a.tel.Events.PublishModelsReloaded(n)
	})
	if err != nil {
		return nil, err
	}
	return loader, nil
}

func newModelsImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [paths...]",
		Short: "Import models from library files or directories",
		Example: `  gspice models import models/bjt.lib
  gspice models import vendor/   # every .lib, .mod, .model, .cir and .sp file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = a.cfg.Models.Paths
			}
			if len(paths) == 0 {
				return fmt.Errorf("no library paths given and none configured")
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := importModels(cmd.Context(), a, store, paths)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d models\n", n)
			return nil
		},
	}
}

func newModelsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List models in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			models, err := store.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if a.jsonOutput {
				return json.NewEncoder(w).Encode(models)
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tPARAMS\tSOURCE")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.Name, m.Polarity, len(m.Params), m.Source)
			}
			return tw.Flush()
		},
	}
}

func newModelsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a model as a .model directive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(rec)
			}
			directive, err := rec.Model().Directive()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), directive)
			return nil
		},
	}
}

func newModelsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a model from the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			return store.DeleteModel(cmd.Context(), args[0])
		},
	}
}

func newModelsWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Keep the library in sync with library files",
		Long: `Import the given libraries, then re-import them whenever a library file
is written or created. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			paths := args
			if len(paths) == 0 {
				paths = a.cfg.Models.Paths
			}
			if len(paths) == 0 {
				return fmt.Errorf("no library paths given and none configured")
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := importModels(ctx, a, store, paths); err != nil {
				return err
			}

			loader, err := watchModels(ctx, a, store, paths)
			if err != nil {
				return err
			}
			defer loader.StopWatching()

			<-ctx.Done()
			return nil
		},
	}
}
