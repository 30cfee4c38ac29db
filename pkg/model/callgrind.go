// Package model defines the core data structures used throughout the application.
package model

import "github.com/callgrind-index/pkg/collections"

// EdgeKey identifies a caller/callee relationship at a specific call-site
// line. It is used both as the key into CalledFrom/SubCalls maps and as the
// on-disk (index, line) pair written for each edge.
type EdgeKey struct {
	Index uint32
	Line  uint32
}

// CallEdge aggregates the call count and summed cost observed across all
// invocations of a single call-site edge (one caller/callee pair at one
// line).
type CallEdge struct {
	CallCount      uint64
	SummedCallCost uint64
}

// FunctionRecord is the in-memory aggregate for one function observed while
// preprocessing a trace. Costs are accumulated in 64 bits internally so a
// long-running trace cannot silently wrap a 32-bit counter; the binary
// writer narrows (and saturates) to the on-disk word width.
type FunctionRecord struct {
	Name                string
	Filename            string
	Line                uint32
	InvocationCount     uint64
	SummedSelfCost      uint64
	SummedInclusiveCost uint64

	// CalledFrom maps (callerIndex, callerLine) -> aggregated edge data for
	// calls into this function.
	CalledFrom map[EdgeKey]*CallEdge

	// SubCalls maps (calleeIndex, callLine) -> aggregated edge data for
	// calls this function makes out to others. Dual view of CalledFrom on
	// the callee side: CalledFrom[(caller,l)] on the callee equals
	// SubCalls[(callee,l)] on the caller, field by field.
	SubCalls map[EdgeKey]*CallEdge
}

// NewFunctionRecord allocates a FunctionRecord for a newly observed function.
func NewFunctionRecord(name, filename string, line uint32) *FunctionRecord {
	return &FunctionRecord{
		Name:       name,
		Filename:   filename,
		Line:       line,
		CalledFrom: make(map[EdgeKey]*CallEdge),
		SubCalls:   make(map[EdgeKey]*CallEdge),
	}
}

// proxyCall is one pending (realCalleeIndex, line, cost) record captured at
// a proxy function's invocation site, awaiting consumption by whatever
// actually called the proxy.
type proxyCall struct {
	CalleeIndex uint32
	Line        uint32
	Cost        uint64
}

// ProxyQueue is the FIFO of pending proxy-call substitutions for one proxy
// function. A proxy's own record is never referenced as a callee in the
// final output; instead whoever calls it is redirected to whatever the
// proxy itself invoked, via this queue.
type ProxyQueue struct {
	pending collections.Queue[proxyCall]
}

// Enqueue appends a captured call made from inside a proxy function's body.
func (q *ProxyQueue) Enqueue(calleeIndex, line uint32, cost uint64) {
	q.pending.Enqueue(proxyCall{CalleeIndex: calleeIndex, Line: line, Cost: cost})
}

// Dequeue pops the oldest pending substitution. ok is false if the queue is
// empty; callers must treat that as a malformed-input condition rather
// than proceed with a nonexistent substitution.
func (q *ProxyQueue) Dequeue() (calleeIndex, line uint32, cost uint64, ok bool) {
	head, ok := q.pending.Dequeue()
	if !ok {
		return 0, 0, 0, false
	}
	return head.CalleeIndex, head.Line, head.Cost, true
}

// Headers is the ordered sequence of raw header lines captured while
// preprocessing (each containing ": "). Aggregation (summing
// "summary:" occurrences, overwriting everything else) happens lazily on
// the Reader side the first time a header is queried, not here; the
// Preprocessor's only job is to record the lines in file order.
type Headers struct {
	Lines []string
}

// Append records one raw header line in trace order.
func (h *Headers) Append(line string) {
	h.Lines = append(h.Lines, line)
}
