package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the simulation run history",
	}

	cmd.AddCommand(newRunsListCommand(a))
	cmd.AddCommand(newRunsShowCommand(a))
	cmd.AddCommand(newRunsDeleteCommand(a))

	return cmd
}

func newRunsListCommand(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if a.jsonOutput {
				return json.NewEncoder(w).Encode(runs)
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tREQUESTS\tWORKERS\tSTARTED\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Status, r.Requests, r.Workers,
					r.StartedAt.Format(time.RFC3339), r.Duration.Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newRunsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and the outcome of each request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sims, err := store.ListSimulations(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if a.jsonOutput {
				return json.NewEncoder(w).Encode(map[string]any{
					"run":         run,
					"simulations": sims,
				})
			}

			fmt.Fprintf(w, "Run %s: %s, %d requests on %d workers\n", run.ID, run.Status, run.Requests, run.Workers)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REQUEST\tANALYSIS\tWORKER\tSTATUS\tPOINTS\tREASON")
			for _, s := range sims {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
					s.RequestID, s.Analysis, s.Worker, s.Status, s.Points, s.Reason)
			}
			return tw.Flush()
		},
	}
}

func newRunsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its request records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			return store.DeleteRun(cmd.Context(), args[0])
		},
	}
}
