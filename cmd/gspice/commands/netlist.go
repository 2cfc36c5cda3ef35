package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphicspice/gspice/pkg/analysis"
)

type netlistOutput struct {
	ID      string   `json:"id"`
	Netlist []string `json:"netlist"`
}

func newNetlistCommand(a *app) *cobra.Command {
	var (
		graphPath    string
		requestsPath string
		only         string
	)

	cmd := &cobra.Command{
		Use:   "netlist",
		Short: "Print the netlists a simulation would load",
		Long: `Compile a schematic graph and print the netlist of each request without
starting an engine. Useful to check element lines, ground aliases and
analysis directives.`,
		Example: `  gspice netlist --graph divider.json --requests analyses.json
  gspice netlist -g divider.json -r analyses.json --id tran1 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sch, err := a.compileGraph(ctx, graphPath, store)
			if err != nil {
				return err
			}
			requests, err := readRequests(requestsPath)
			if err != nil {
				return err
			}

			var out []netlistOutput
			for _, r := range requests {
				if only != "" && r.ID != only {
					continue
				}
				sim, err := analysis.ParseRequest(r)
				if err != nil {
					return err
				}
				lines, err := sch.NetlistLines(sim)
				if err != nil {
					return fmt.Errorf("request %s: %w", r.ID, err)
				}
				out = append(out, netlistOutput{ID: r.ID, Netlist: lines})
			}
			if only != "" && len(out) == 0 {
				return fmt.Errorf("no request with id %q", only)
			}

			w := cmd.OutOrStdout()
			if a.jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			for i, n := range out {
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "* request %s\n", n.ID)
				for _, line := range n.Netlist {
					fmt.Fprintln(w, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&graphPath, "graph", "g", "", "schematic graph file (JSON)")
	cmd.Flags().StringVarP(&requestsPath, "requests", "r", "", "simulation requests file (JSON or YAML list)")
	cmd.Flags().StringVar(&only, "id", "", "only print the request with this id")
	_ = cmd.MarkFlagRequired("graph")
	_ = cmd.MarkFlagRequired("requests")

	return cmd
}
