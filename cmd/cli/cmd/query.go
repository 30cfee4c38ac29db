package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/callgrind-index/internal/index"
	"github.com/callgrind-index/pkg/writer"
)

var (
	// Query command flags
	queryCostFormat string
	queryFunction   int
	queryHeaders    []string
	queryEdges      bool
	queryOutput     string
	queryGzip       bool
	queryPretty     bool
)

// FunctionReport is the JSON shape emitted for one queried function.
type FunctionReport struct {
	Index      uint32              `json:"index"`
	Info       index.FunctionInfo  `json:"info"`
	CalledFrom []index.EdgeInfo    `json:"calledFrom,omitempty"`
	SubCalls   []index.EdgeInfo    `json:"subCalls,omitempty"`
}

// QueryReport is the top-level JSON shape for a query run.
type QueryReport struct {
	Index         string            `json:"index"`
	FunctionCount uint32            `json:"functionCount"`
	CostFormat    string            `json:"costFormat"`
	Headers       map[string]string `json:"headers,omitempty"`
	Functions     []FunctionReport  `json:"functions,omitempty"`
}

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <index>",
	Short: "Query a binary index for function statistics",
	Long: `Query a preprocessed binary index for per-function metadata, caller
sites, and callee sites, without rescanning the original trace.

Costs are rendered in the configured format: percent (of the trace's
summary total), msec, or usec (raw). Results are written as JSON to
stdout or to a file.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	binName := BinName()
	queryCmd.Example = `  # Dump every function with costs as percentages
  ` + binName + ` query ./trace.idx --format percent

  # Inspect one function with its caller/callee edges
  ` + binName + ` query ./trace.idx -f 3 --edges

  # Read trace headers
  ` + binName + ` query ./trace.idx --header summary --header cmd

  # Export the full report as gzipped JSON
  ` + binName + ` query ./trace.idx -o report.json.gz --gzip`

	queryCmd.Flags().StringVar(&queryCostFormat, "format", "usec", "Cost format: percent, msec, or usec")
	queryCmd.Flags().IntVarP(&queryFunction, "function", "f", -1, "Function index to query (default: all)")
	queryCmd.Flags().StringSliceVar(&queryHeaders, "header", nil, "Trace header to include (repeatable; e.g. summary, runs, cmd, creator)")
	queryCmd.Flags().BoolVar(&queryEdges, "edges", false, "Include caller/callee edge detail per function")
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", "", "Output file (default: stdout)")
	queryCmd.Flags().BoolVar(&queryGzip, "gzip", false, "Gzip the JSON output (requires --output)")
	queryCmd.Flags().BoolVar(&queryPretty, "pretty", false, "Pretty-print the JSON output")
}

func runQuery(cmd *cobra.Command, args []string) error {
	indexPath := args[0]

	r, err := openReader(indexPath, queryCostFormat)
	if err != nil {
		return err
	}
	defer r.Close()

	report := &QueryReport{
		Index:         indexPath,
		FunctionCount: r.FunctionCount(),
		CostFormat:    queryCostFormat,
	}

	if len(queryHeaders) > 0 {
		report.Headers = make(map[string]string, len(queryHeaders))
		for _, name := range queryHeaders {
			value, err := r.GetHeader(name)
			if err != nil {
				return err
			}
			report.Headers[name] = value
		}
	}

	if queryFunction >= 0 {
		fr, err := reportFunction(r, uint32(queryFunction))
		if err != nil {
			return err
		}
		report.Functions = []FunctionReport{fr}
	} else {
		for i := uint32(0); i < r.FunctionCount(); i++ {
			fr, err := reportFunction(r, i)
			if err != nil {
				return err
			}
			report.Functions = append(report.Functions, fr)
		}
	}

	return writeReport(report, queryOutput, queryGzip, queryPretty)
}

// reportFunction assembles one function's report, including edge detail when
// --edges is set.
func reportFunction(r *index.Reader, i uint32) (FunctionReport, error) {
	info, err := r.FunctionInfo(i)
	if err != nil {
		return FunctionReport{}, err
	}
	fr := FunctionReport{Index: i, Info: info}

	if !queryEdges {
		return fr, nil
	}
	for j := uint32(0); j < info.CalledFromInfoCount; j++ {
		edge, err := r.CalledFromInfo(i, j)
		if err != nil {
			return FunctionReport{}, err
		}
		fr.CalledFrom = append(fr.CalledFrom, edge)
	}
	for j := uint32(0); j < info.SubCallInfoCount; j++ {
		edge, err := r.SubCallInfo(i, j)
		if err != nil {
			return FunctionReport{}, err
		}
		fr.SubCalls = append(fr.SubCalls, edge)
	}
	return fr, nil
}

// openReader opens an index with the requested cost format. The percent
// format needs the trace's summary total, which lives behind the reader
// itself, so the reader is opened raw first and switched over once the
// summary header has been read.
func openReader(path, format string) (*index.Reader, error) {
	r, err := index.Open(path, index.UsecFormat())
	if err != nil {
		return nil, err
	}

	if format == "percent" {
		summaryValue, err := r.GetHeader("summary")
		if err != nil {
			r.Close()
			return nil, err
		}
		summary, err := strconv.ParseUint(summaryValue, 10, 64)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("bad summary header %q: %w", summaryValue, err)
		}
		r.SetCostFormat(index.PercentFormat(summary))
		return r, nil
	}

	r.SetCostFormat(index.ParseCostFormat(format, 0))
	return r, nil
}

// writeReport serializes a report to the requested destination.
func writeReport(report *QueryReport, output string, gzipped, pretty bool) error {
	if output == "" {
		if gzipped {
			return fmt.Errorf("--gzip requires --output")
		}
		w := writer.NewJSONWriter[*QueryReport]()
		if pretty {
			w = writer.NewPrettyJSONWriter[*QueryReport]()
		}
		return w.Write(report, os.Stdout)
	}

	if gzipped {
		return writer.NewGzipWriter[*QueryReport]().WriteToFile(report, output)
	}
	w := writer.NewJSONWriter[*QueryReport]()
	if pretty {
		w = writer.NewPrettyJSONWriter[*QueryReport]()
	}
	return w.WriteToFile(report, output)
}

// countIndexedFunctions opens an index just long enough to read its function
// count, for post-write bookkeeping.
func countIndexedFunctions(path string) (uint32, error) {
	r, err := index.Open(path, index.UsecFormat())
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.FunctionCount(), nil
}
