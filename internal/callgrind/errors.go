package callgrind

import apperrors "github.com/callgrind-index/pkg/errors"

// Sentinel failures the Preprocessor can surface. All carry
// apperrors.CodeMalformedInput, including ErrCostOverflow, which is raised
// by the writer at write time rather than during parsing.
var (
	// ErrMissingFn is returned when an fl= line is not immediately followed
	// by an fn= line.
	ErrMissingFn = apperrors.New(apperrors.CodeMalformedInput, "fl= not followed by fn=")

	// ErrTruncatedInput is returned when EOF is reached in the middle of a
	// line sequence a block requires (e.g. a cost line expected but never
	// seen).
	ErrTruncatedInput = apperrors.New(apperrors.CodeMalformedInput, "unexpected end of input")

	// ErrBadCostLine is returned when a line expected to be "<lnr> <cost>"
	// does not parse as such.
	ErrBadCostLine = apperrors.New(apperrors.CodeMalformedInput, "malformed cost line")

	// ErrDanglingCfn is returned when a cfn= block appears before any fl=
	// block has opened a current caller.
	ErrDanglingCfn = apperrors.New(apperrors.CodeMalformedInput, "cfn= with no open caller")

	// ErrEmptyProxyQueue is returned when a callee is configured as a proxy
	// but its queue has nothing pending to substitute. An empty queue means
	// the trace's proxy call pairing is broken; failing here beats
	// substituting garbage attribution.
	ErrEmptyProxyQueue = apperrors.New(apperrors.CodeMalformedInput, "proxy queue empty for callee")

	// ErrCostOverflow is returned by the writer when a 64-bit accumulated
	// cost does not fit the on-disk 32-bit word.
	ErrCostOverflow = apperrors.New(apperrors.CodeMalformedInput, "cost overflow on write")
)
