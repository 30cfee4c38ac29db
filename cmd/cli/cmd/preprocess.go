package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/callgrind-index/internal/callgrind"
	"github.com/callgrind-index/pkg/parallel"
	"github.com/callgrind-index/pkg/utils"
)

var (
	// Preprocess command flags
	preprocessOutput   string
	preprocessOutDir   string
	proxyFunctions     []string
	externalBinary     string
	preprocessWorkers  int
)

// preprocessCmd represents the preprocess command
var preprocessCmd = &cobra.Command{
	Use:   "preprocess <trace> [trace...]",
	Short: "Preprocess Callgrind traces into binary index files",
	Long: `Preprocess one or more Callgrind text traces into compact binary index
files optimized for random access.

Each trace is streamed once, aggregating per-function statistics and
call-site edges (with proxy-function rewriting applied), then written as
a version-7 binary index. Gzip- and zstd-compressed traces are detected
and decompressed transparently.

Multiple traces are processed concurrently across a bounded worker pool.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPreprocess,
}

func init() {
	rootCmd.AddCommand(preprocessCmd)

	binName := BinName()
	preprocessCmd.Example = `  # Preprocess a single trace next to itself (trace.out -> trace.out.idx)
  ` + binName + ` preprocess ./cachegrind.out.12345

  # Preprocess to an explicit output path
  ` + binName + ` preprocess ./trace.out -o ./trace.idx

  # Treat PHP's indirection helpers as transparent proxies
  ` + binName + ` preprocess ./trace.out --proxy call_user_func --proxy call_user_func_array

  # Batch-preprocess a directory's traces with 4 workers
  ` + binName + ` preprocess ./traces/*.out -d ./indexes -w 4`

	preprocessCmd.Flags().StringVarP(&preprocessOutput, "output", "o", "", "Output index path (single input only; default: <input>.idx)")
	preprocessCmd.Flags().StringVarP(&preprocessOutDir, "out-dir", "d", "", "Output directory for index files (default: alongside each input)")
	preprocessCmd.Flags().StringSliceVar(&proxyFunctions, "proxy", nil, "Function name to treat as a transparent proxy (repeatable)")
	preprocessCmd.Flags().StringVar(&externalBinary, "external-preprocessor", "", "External preprocessor binary to try before the in-process path")
	preprocessCmd.Flags().IntVarP(&preprocessWorkers, "workers", "w", 0, "Concurrent workers for batch preprocessing (default: CPU count, capped)")
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	if preprocessOutput != "" && len(args) > 1 {
		return fmt.Errorf("--output is only valid with a single input; use --out-dir for batches")
	}
	for _, input := range args {
		if _, err := os.Stat(input); err != nil {
			return fmt.Errorf("input file not found: %s", input)
		}
	}
	if preprocessOutDir != "" {
		if err := os.MkdirAll(preprocessOutDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	external := &callgrind.ExternalPreprocessor{BinaryPath: externalBinary}

	log.Info("Preprocessing %d trace(s)", len(args))
	if len(proxyFunctions) > 0 {
		log.Info("Proxy functions: %s", strings.Join(proxyFunctions, ", "))
	}

	timer := utils.NewTimer("preprocess", utils.WithLogger(log))
	phase := timer.Start("total")

	poolConfig := parallel.DefaultPoolConfig()
	if preprocessWorkers > 0 {
		poolConfig = poolConfig.WithWorkers(preprocessWorkers)
	}
	pool := parallel.NewWorkerPool[string, uint32](poolConfig)

	results := pool.ExecuteFunc(cmd.Context(), args, func(ctx context.Context, input string) (uint32, error) {
		return preprocessOne(ctx, external, input, outputPathFor(input))
	})

	phase.Stop()

	failed := 0
	for _, res := range results {
		if res.Error != nil {
			failed++
			log.Error("%s: %v", res.Input, res.Error)
			continue
		}
		log.Info("%s -> %s (%d functions, %v)", res.Input, outputPathFor(res.Input), res.Result, res.Duration)
	}

	log.Info("Done in %v: %d succeeded, %d failed", timer.GetDuration("total"), len(results)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d trace(s) failed", failed, len(results))
	}
	return nil
}

// outputPathFor maps an input trace path to its index output path per the
// --output/--out-dir flags.
func outputPathFor(input string) string {
	if preprocessOutput != "" {
		return preprocessOutput
	}
	name := filepath.Base(input) + ".idx"
	if preprocessOutDir != "" {
		return filepath.Join(preprocessOutDir, name)
	}
	return input + ".idx"
}

// preprocessOne produces the binary index for one trace, trying the external
// fast path first and falling back to the in-process pipeline. Returns the
// function count of the written index.
func preprocessOne(ctx context.Context, external *callgrind.ExternalPreprocessor, inputPath, outputPath string) (uint32, error) {
	if external.Available() {
		ok, err := external.Run(ctx, inputPath, outputPath, proxyFunctions)
		if err != nil {
			return 0, err
		}
		if ok {
			return countIndexedFunctions(outputPath)
		}
	}

	reader, closer, err := callgrind.OpenTraceReader(inputPath)
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	pre := callgrind.NewPreprocessor(callgrind.Options{ProxyFunctions: proxyFunctions})
	m, err := pre.Run(reader)
	if err != nil {
		return 0, err
	}

	if err := callgrind.WriteIndex(outputPath, m); err != nil {
		return 0, err
	}
	return uint32(len(m.Functions)), nil
}
