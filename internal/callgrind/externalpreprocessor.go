package callgrind

import (
	"context"
	"os/exec"
	"strings"
)

// ExternalPreprocessor delegates preprocessing to an external binary as an
// optional fast path. It is purely an optimization: the in-process
// Preprocessor/WriteIndex pair is complete and correct without it, and
// every caller must be prepared to fall back to that path.
type ExternalPreprocessor struct {
	// BinaryPath is the external preprocessor executable. Empty means the
	// fast path is not configured.
	BinaryPath string
}

// Available reports whether a fast-path binary is configured at all. It
// does not guarantee the binary is runnable; Run still falls back on any
// exec failure.
func (e *ExternalPreprocessor) Available() bool {
	return strings.TrimSpace(e.BinaryPath) != ""
}

// Run invokes the external binary as "<bin> <inputPath> <outputPath>
// <proxyFunctions...>". It returns (true, nil) on a clean exit, and
// (false, nil), never an error, for any condition that should fall back
// to the in-process path: the binary isn't configured, isn't found, or
// exits non-zero. A genuine context cancellation is the only error
// returned, since that reflects caller intent rather than a fast-path
// failure.
func (e *ExternalPreprocessor) Run(ctx context.Context, inputPath, outputPath string, proxyFunctions []string) (bool, error) {
	if !e.Available() {
		return false, nil
	}

	args := append([]string{inputPath, outputPath}, proxyFunctions...)
	cmd := exec.CommandContext(ctx, e.BinaryPath, args...)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, nil
}
