package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/callgrind-index/internal/callgraph"
	"github.com/callgrind-index/internal/index"
	"github.com/callgrind-index/pkg/writer"
)

var (
	// Graph command flags
	graphOutput     string
	graphFormat     string
	graphGzip       bool
	graphMinNodePct float64
	graphMinEdgePct float64
	graphNoFilename bool
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <index>",
	Short: "Generate a call graph from a binary index",
	Long: `Generate a call graph from a preprocessed binary index, for
visualization or further processing.

Nodes carry self and inclusive costs per function; edges carry call
counts and summed call costs per call-site line. Low-weight nodes and
edges are pruned by percentage thresholds.

Supported output formats:
  - json      : plain call graph JSON (nodes + edges)
  - xdot_json : graphviz-compatible xdot JSON
  - dot       : graphviz DOT source`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)

	binName := BinName()
	graphCmd.Example = `  # Write the call graph as JSON to stdout
  ` + binName + ` graph ./trace.idx

  # Render DOT source for graphviz
  ` + binName + ` graph ./trace.idx --format dot -o trace.dot

  # Keep only significant nodes and edges, gzip the JSON
  ` + binName + ` graph ./trace.idx --min-node-pct 1.0 --min-edge-pct 0.5 -o graph.json.gz --gzip`

	graphCmd.Flags().StringVarP(&graphOutput, "output", "o", "", "Output file (default: stdout)")
	graphCmd.Flags().StringVar(&graphFormat, "format", "json", "Output format: json, xdot_json, or dot")
	graphCmd.Flags().BoolVar(&graphGzip, "gzip", false, "Gzip the output (json format only, requires --output)")
	graphCmd.Flags().Float64Var(&graphMinNodePct, "min-node-pct", 0.5, "Minimum inclusive-cost percentage for a node to be kept")
	graphCmd.Flags().Float64Var(&graphMinEdgePct, "min-edge-pct", 0.1, "Minimum weight percentage for an edge to be kept")
	graphCmd.Flags().BoolVar(&graphNoFilename, "no-filename", false, "Merge functions with the same name across files")
}

func runGraph(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	indexPath := args[0]

	r, err := index.Open(indexPath, index.UsecFormat())
	if err != nil {
		return err
	}
	defer r.Close()

	opts := callgraph.DefaultGeneratorOptions()
	opts.MinNodePct = graphMinNodePct
	opts.MinEdgePct = graphMinEdgePct
	opts.IncludeFilename = !graphNoFilename

	cg, err := callgraph.NewGenerator(opts).Generate(cmd.Context(), r)
	if err != nil {
		return fmt.Errorf("failed to generate call graph: %w", err)
	}

	log.Info("Call graph: %d nodes, %d edges (from %d functions)", len(cg.Nodes), len(cg.Edges), r.FunctionCount())

	return writeGraph(cg, graphFormat, graphOutput, graphGzip)
}

// writeGraph serializes a call graph in the requested format.
func writeGraph(cg *callgraph.CallGraph, format, output string, gzipped bool) error {
	if gzipped {
		if format != "json" {
			return fmt.Errorf("--gzip is only supported for the json format")
		}
		if output == "" {
			return fmt.Errorf("--gzip requires --output")
		}
		return writer.NewGzipWriter[*callgraph.CallGraph]().WriteToFile(cg, output)
	}

	switch format {
	case "json":
		w := callgraph.NewPrettyJSONWriter()
		if output == "" {
			return w.Write(cg, os.Stdout)
		}
		return w.WriteToFile(cg, output)
	case "xdot_json":
		w := callgraph.NewXDotWriter()
		if output == "" {
			return w.Write(cg, os.Stdout)
		}
		return w.WriteToFile(cg, output)
	case "dot":
		w := callgraph.NewDOTWriter()
		if output == "" {
			return w.Write(cg, os.Stdout)
		}
		return w.WriteToFile(cg, output)
	default:
		return fmt.Errorf("unknown graph format: %q (valid: json, xdot_json, dot)", format)
	}
}
