package callgrind

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/callgrind-index/pkg/compression"
	apperrors "github.com/callgrind-index/pkg/errors"
	"github.com/callgrind-index/pkg/model"
)

const entryPointName = "{main}"

// Options configures one Preprocessor run.
type Options struct {
	// ProxyFunctions is the set of function names treated as transparent
	// proxies.
	ProxyFunctions []string
}

func (o Options) proxySet() map[string]bool {
	set := make(map[string]bool, len(o.ProxyFunctions))
	for _, name := range o.ProxyFunctions {
		set[name] = true
	}
	return set
}

// Preprocessor streams a Callgrind text trace into an in-memory aggregation.
// One instance is good for exactly one run; callers that need to process
// many files concurrently create one Preprocessor per file.
type Preprocessor struct {
	proxies map[string]bool

	resolver *Resolver

	functions   []*model.FunctionRecord
	indexByName map[string]uint32
	queues      map[uint32]*model.ProxyQueue

	headers *model.Headers

	currentCaller uint32
	haveCaller    bool
}

// NewPreprocessor creates a Preprocessor configured with the given proxy
// function names.
func NewPreprocessor(opts Options) *Preprocessor {
	return &Preprocessor{
		proxies:     opts.proxySet(),
		resolver:    NewResolver(),
		indexByName: make(map[string]uint32),
		queues:      make(map[uint32]*model.ProxyQueue),
		headers:     &model.Headers{},
	}
}

// Model is the finished in-memory aggregation produced by a completed Run.
type Model struct {
	Functions []*model.FunctionRecord
	Headers   *model.Headers
}

// Run streams r to completion, aggregating per-function statistics and
// per-call-site edges. r is read exactly once, start to EOF; no seeking is
// performed.
func (p *Preprocessor) Run(r io.Reader) (*Model, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "fl="):
			if err := p.handleFl(scanner, line); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "cfn="):
			if err := p.handleCfn(scanner, line); err != nil {
				return nil, err
			}
		case strings.Contains(line, ": "):
			p.headers.Append(line)
		default:
			// Unrecognized, header-less line: ignored by design.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoRead, "reading trace", err)
	}

	return &Model{Functions: p.functions, Headers: p.headers}, nil
}

// handleFl processes one fl=/fn=/cost triplet (and, for the entry point, the
// three extra lines surrounding its summary header).
func (p *Preprocessor) handleFl(scanner *bufio.Scanner, flLine string) error {
	filename := p.resolver.Resolve(FileTable, strings.TrimPrefix(flLine, "fl="))

	fnLine, ok := nextLine(scanner)
	if !ok {
		return ErrTruncatedInput
	}
	if !strings.HasPrefix(fnLine, "fn=") {
		return ErrMissingFn
	}
	name := p.resolver.Resolve(FunctionTable, strings.TrimPrefix(fnLine, "fn="))

	if name == entryPointName {
		// The fn= line just consumed above is the first of three lines
		// that precede the cost line for the entry point (discard,
		// summary, discard); only the remaining summary+discard pair is
		// left to read before the cost line itself.
		summaryLine, ok := nextLine(scanner)
		if !ok {
			return ErrTruncatedInput
		}
		p.headers.Append(summaryLine)
		if _, ok := nextLine(scanner); !ok { // discarded
			return ErrTruncatedInput
		}
	}

	costLine, ok := nextLine(scanner)
	if !ok {
		return ErrTruncatedInput
	}
	lnr, cost, err := parseCostLine(costLine)
	if err != nil {
		return err
	}

	index := p.getOrCreateFunction(name)
	rec := p.functions[index]

	if rec.InvocationCount == 0 {
		rec.Filename = filename
		rec.Line = lnr
		rec.InvocationCount = 1
		rec.SummedSelfCost = cost
		rec.SummedInclusiveCost = cost
	} else {
		rec.InvocationCount++
		rec.SummedSelfCost += cost
		rec.SummedInclusiveCost += cost
	}

	p.currentCaller = index
	p.haveCaller = true
	return nil
}

// handleCfn processes one cfn=/calls=/cost triplet, applying proxy
// substitution and edge aggregation.
func (p *Preprocessor) handleCfn(scanner *bufio.Scanner, cfnLine string) error {
	if !p.haveCaller {
		return ErrDanglingCfn
	}
	calleeName := p.resolver.Resolve(FunctionTable, strings.TrimPrefix(cfnLine, "cfn="))

	if _, ok := nextLine(scanner); !ok { // calls= line, discarded
		return ErrTruncatedInput
	}
	costLine, ok := nextLine(scanner)
	if !ok {
		return ErrTruncatedInput
	}
	lnr, cost, err := parseCostLine(costLine)
	if err != nil {
		return err
	}

	callerIndex := p.currentCaller
	callerRec := p.functions[callerIndex]
	calleeIndex := p.getOrCreateFunction(calleeName)

	if p.proxies[callerRec.Name] {
		p.queueFor(callerIndex).Enqueue(calleeIndex, lnr, cost)
		return nil
	}

	finalCalleeIndex := calleeIndex
	finalCost := cost
	// The call site's line is always attributed to the outer triplet: a
	// proxy's internal line numbers belong to library code the caller never
	// sees. Only the callee identity and cost are ever substituted.
	finalLine := lnr

	calleeRec := p.functions[calleeIndex]
	if p.proxies[calleeRec.Name] {
		substCallee, _, substCost, ok := p.queueFor(calleeIndex).Dequeue()
		if !ok {
			return ErrEmptyProxyQueue
		}
		finalCalleeIndex = substCallee
		finalCost = substCost
	}

	callerRec.SummedInclusiveCost += finalCost

	finalCalleeRec := p.functions[finalCalleeIndex]
	inKey := model.EdgeKey{Index: callerIndex, Line: finalLine}
	inEdge := finalCalleeRec.CalledFrom[inKey]
	if inEdge == nil {
		inEdge = &model.CallEdge{}
		finalCalleeRec.CalledFrom[inKey] = inEdge
	}
	inEdge.CallCount++
	inEdge.SummedCallCost += finalCost

	outKey := model.EdgeKey{Index: finalCalleeIndex, Line: finalLine}
	outEdge := callerRec.SubCalls[outKey]
	if outEdge == nil {
		outEdge = &model.CallEdge{}
		callerRec.SubCalls[outKey] = outEdge
	}
	outEdge.CallCount++
	outEdge.SummedCallCost += finalCost

	return nil
}

// getOrCreateFunction resolves name to its dense index, allocating one in
// first-observation order if this is the first time name has been seen,
// whether that observation is an fl=/fn= header or a cfn= reference.
func (p *Preprocessor) getOrCreateFunction(name string) uint32 {
	if idx, ok := p.indexByName[name]; ok {
		return idx
	}
	idx := uint32(len(p.functions))
	p.functions = append(p.functions, model.NewFunctionRecord(name, "", 0))
	p.indexByName[name] = idx
	return idx
}

func (p *Preprocessor) queueFor(index uint32) *model.ProxyQueue {
	q, ok := p.queues[index]
	if !ok {
		q = &model.ProxyQueue{}
		p.queues[index] = q
	}
	return q
}

// nextLine advances the scanner once, returning false on EOF or scan error
// (the caller inspects scanner.Err() separately if it cares to distinguish).
func nextLine(scanner *bufio.Scanner) (string, bool) {
	if !scanner.Scan() {
		return "", false
	}
	return scanner.Text(), true
}

// parseCostLine parses the two-field "<lineNumber> <cost>" form shared by
// both fl=/fn= and cfn= blocks.
func parseCostLine(line string) (lnr uint32, cost uint64, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, ErrBadCostLine
	}
	n, e := strconv.ParseUint(fields[0], 10, 32)
	if e != nil {
		return 0, 0, ErrBadCostLine
	}
	c, e := strconv.ParseUint(fields[1], 10, 64)
	if e != nil {
		return 0, 0, ErrBadCostLine
	}
	return uint32(n), c, nil
}

// OpenTraceReader opens path and returns a reader over its decompressed
// contents, auto-detecting gzip or zstd input by magic bytes, or passing the
// stream through unchanged for plain-text traces. The returned io.Closer
// must be closed by the caller once done reading.
func OpenTraceReader(path string) (io.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeIoOpen, "opening trace file", err)
	}

	br := bufio.NewReaderSize(f, 64*1024)
	r, dec, err := compression.NewStreamReader(br)
	if err != nil {
		f.Close()
		return nil, nil, apperrors.Wrap(apperrors.CodeIoRead, "opening compressed stream", err)
	}
	return r, closerFunc(func() error {
		dec.Close()
		return f.Close()
	}), nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }
