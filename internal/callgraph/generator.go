package callgraph

import (
	"context"

	"github.com/callgrind-index/internal/index"
)

// GeneratorOptions holds configuration options for the call graph generator.
type GeneratorOptions struct {
	// MinNodePct is the minimum inclusive-cost percentage for a node to be
	// included in the final graph.
	MinNodePct float64

	// MinEdgePct is the minimum weight percentage for an edge to be
	// included in the final graph.
	MinEdgePct float64

	// IncludeFilename includes the declaring filename in node identity and
	// labeling. When false, functions with the same name across different
	// files are merged into a single node.
	IncludeFilename bool

	// TopNFunctions specifies how many top functions to report in Stats-
	// adjacent summaries.
	TopNFunctions int
}

// DefaultGeneratorOptions returns default generator options.
func DefaultGeneratorOptions() *GeneratorOptions {
	return &GeneratorOptions{
		MinNodePct:      0.5,
		MinEdgePct:      0.1,
		IncludeFilename: true,
		TopNFunctions:   20,
	}
}

// Generator builds a CallGraph from a binary index.
type Generator struct {
	opts *GeneratorOptions
}

// NewGenerator creates a new call graph generator.
func NewGenerator(opts *GeneratorOptions) *Generator {
	if opts == nil {
		opts = DefaultGeneratorOptions()
	}
	return &Generator{opts: opts}
}

// Generate walks every function record in r and the sub-call edges hanging
// off it, building a CallGraph over the whole index. It respects ctx
// cancellation between functions since large indexes can hold hundreds of
// thousands of records.
func (g *Generator) Generate(ctx context.Context, r *index.Reader) (*CallGraph, error) {
	cg := NewCallGraph()

	n := r.FunctionCount()
	infos := make([]index.FunctionInfo, n)

	for i := uint32(0); i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		info, err := r.FunctionInfo(i)
		if err != nil {
			return nil, err
		}
		infos[i] = info

		filename := info.Filename
		if !g.opts.IncludeFilename {
			filename = ""
		}

		cg.AddNode(info.FunctionName, filename, info.SummedSelfCostRaw, info.SummedInclusiveCostRaw, info.InvocationCount)
		cg.TotalCost += info.SummedSelfCostRaw
	}

	for i := uint32(0); i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		info := infos[i]
		sourceFile := info.Filename
		if !g.opts.IncludeFilename {
			sourceFile = ""
		}

		for j := uint32(0); j < info.SubCallInfoCount; j++ {
			edge, err := r.SubCallInfo(i, j)
			if err != nil {
				return nil, err
			}

			target := infos[edge.FunctionNr]
			targetFile := target.Filename
			if !g.opts.IncludeFilename {
				targetFile = ""
			}

			cg.AddEdge(info.FunctionName, sourceFile, target.FunctionName, targetFile, edge.Line, edge.CallCount, edge.SummedCallCostRaw)
		}
	}

	cg.CalculatePercentages()
	cg.Cleanup(g.opts.MinNodePct, g.opts.MinEdgePct)

	return cg, nil
}
