package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/graphicspice/gspice/pkg/analysis"
	"github.com/graphicspice/gspice/pkg/canvas"
	"github.com/graphicspice/gspice/pkg/circuit"
)

// readGraph loads an editor document.
func readGraph(path string) (canvas.Graph, error) {
	var g canvas.Graph
	data, err := os.ReadFile(path)
	if err != nil {
		return g, fmt.Errorf("failed to read graph: %w", err)
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return g, fmt.Errorf("failed to parse graph %s: %w", path, err)
	}
	return g, nil
}

// readRequests loads simulation requests from a JSON or YAML list.
func readRequests(path string) ([]analysis.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}

	var requests []analysis.Request
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &requests)
	default:
		err = json.Unmarshal(data, &requests)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse requests %s: %w", path, err)
	}
	return requests, nil
}

// compileGraph compiles the graph at path, resolving transistor models
// through models.
func (a *app) compileGraph(ctx context.Context, path string, models canvas.ModelResolver) (*circuit.Schematic, error) {
	g, err := readGraph(path)
	if err != nil {
		return nil, err
	}

	compiler := canvas.NewCompiler(models, a.logger.With().Str("component", "compiler").Logger())
	sch, err := compiler.Compile(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", path, err)
	}
	return sch, nil
}
