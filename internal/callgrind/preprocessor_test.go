package callgrind

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callgrind-index/pkg/model"
)

func run(t *testing.T, opts Options, trace string) *Model {
	t.Helper()
	p := NewPreprocessor(opts)
	m, err := p.Run(strings.NewReader(trace))
	require.NoError(t, err)
	return m
}

func findFunc(m *Model, name string) *model.FunctionRecord {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Smallest well-formed trace: a single {main} block with header lines.
func TestPreprocessor_SmallestTrace(t *testing.T) {
	trace := "fl=main.php\n" +
		"fn={main}\n" +
		"summary: 42\n" +
		"0 0\n" +
		"10 5\n" +
		"cmd: /usr/bin/php\n"

	m := run(t, Options{}, trace)

	require.Len(t, m.Functions, 1)
	f := m.Functions[0]
	assert.Equal(t, "{main}", f.Name)
	assert.Equal(t, "main.php", f.Filename)
	assert.EqualValues(t, 10, f.Line)
	assert.EqualValues(t, 5, f.SummedSelfCost)
	assert.EqualValues(t, 5, f.SummedInclusiveCost)
	assert.EqualValues(t, 1, f.InvocationCount)
	assert.Empty(t, f.CalledFrom)
	assert.Empty(t, f.SubCalls)

	require.Len(t, m.Headers.Lines, 2)
	assert.Equal(t, "summary: 42", m.Headers.Lines[0])
	assert.Equal(t, "cmd: /usr/bin/php", m.Headers.Lines[1])
}

// A single call edge must appear in both directions: the callee's
// CalledFrom and the caller's SubCalls carry the same counts.
func TestPreprocessor_SingleCallEdge(t *testing.T) {
	trace := "fl=main.php\n" +
		"fn={main}\n" +
		"summary: 42\n" +
		"0 0\n" +
		"5 2\n" +
		"cfn=foo\n" +
		"calls=1 0\n" +
		"7 3\n" +
		"fl=foo.php\n" +
		"fn=foo\n" +
		"3 1\n"

	m := run(t, Options{}, trace)

	main := findFunc(m, "{main}")
	foo := findFunc(m, "foo")
	require.NotNil(t, main)
	require.NotNil(t, foo)

	assert.EqualValues(t, 2, main.SummedSelfCost)
	assert.EqualValues(t, 2+3, main.SummedInclusiveCost)

	edgeKey := model.EdgeKey{Index: 0, Line: 7}
	require.Contains(t, foo.CalledFrom, edgeKey)
	assert.EqualValues(t, 1, foo.CalledFrom[edgeKey].CallCount)
	assert.EqualValues(t, 3, foo.CalledFrom[edgeKey].SummedCallCost)

	dualKey := model.EdgeKey{Index: 1, Line: 7}
	require.Contains(t, main.SubCalls, dualKey)
	assert.Equal(t, *foo.CalledFrom[edgeKey], *main.SubCalls[dualKey])

	assert.EqualValues(t, 1, foo.InvocationCount)
	assert.EqualValues(t, 1, foo.SummedSelfCost)
}

// Proxy substitution. call_user_func's own block (enqueuing
// its call to target) must appear before {main}'s reference to it, per the
// FIFO proxy-queue discipline.
func TestPreprocessor_ProxySubstitution(t *testing.T) {
	trace := "fl=proxy.php\n" +
		"fn=call_user_func\n" +
		"1 9\n" +
		"cfn=target\n" +
		"calls=1 0\n" +
		"1 100\n" +
		"fl=main.php\n" +
		"fn={main}\n" +
		"summary: 1000\n" +
		"0 0\n" +
		"5 2\n" +
		"cfn=call_user_func\n" +
		"calls=1 0\n" +
		"20 100\n" +
		"fl=target.php\n" +
		"fn=target\n" +
		"1 5\n"

	m := run(t, Options{ProxyFunctions: []string{"call_user_func"}}, trace)

	main := findFunc(m, "{main}")
	proxy := findFunc(m, "call_user_func")
	target := findFunc(m, "target")
	require.NotNil(t, main)
	require.NotNil(t, proxy)
	require.NotNil(t, target)

	assert.Empty(t, proxy.CalledFrom, "no edges reference the proxy as callee")
	for _, f := range m.Functions {
		for k := range f.SubCalls {
			assert.NotEqual(t, proxy.Name, m.Functions[k.Index].Name)
		}
	}

	subKey := model.EdgeKey{Index: uint32(indexOf(m, "target")), Line: 20}
	require.Contains(t, main.SubCalls, subKey)
	assert.EqualValues(t, 1, main.SubCalls[subKey].CallCount)
	assert.EqualValues(t, 100, main.SubCalls[subKey].SummedCallCost)

	inKey := model.EdgeKey{Index: uint32(indexOf(m, "{main}")), Line: 20}
	require.Contains(t, target.CalledFrom, inKey)
	assert.EqualValues(t, 100, target.CalledFrom[inKey].SummedCallCost)
}

func indexOf(m *Model, name string) int {
	for i, f := range m.Functions {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Compressed names resolve both invocations to one function.
func TestPreprocessor_CompressedNames(t *testing.T) {
	trace := "fl=(1) /a/b.php\n" +
		"fn=(2) foo\n" +
		"1 1\n" +
		"fl=(1)\n" +
		"fn=(2)\n" +
		"2 3\n"

	m := run(t, Options{}, trace)

	require.Len(t, m.Functions, 1)
	f := m.Functions[0]
	assert.Equal(t, "foo", f.Name)
	assert.Equal(t, "/a/b.php", f.Filename)
	assert.EqualValues(t, 2, f.InvocationCount)
	assert.EqualValues(t, 1+3, f.SummedSelfCost)
}

// Summary aggregation across two {main} blocks is deferred to the Reader;
// the Preprocessor's job is just to capture both raw lines.
func TestPreprocessor_CapturesRepeatedSummaryLines(t *testing.T) {
	trace := "fl=main.php\n" +
		"fn={main}\n" +
		"summary: 100 2048\n" +
		"0 0\n" +
		"1 1\n" +
		"fl=main.php\n" +
		"fn={main}\n" +
		"summary: 100 2048\n" +
		"0 0\n" +
		"2 1\n"

	m := run(t, Options{}, trace)

	var summaryLines int
	for _, l := range m.Headers.Lines {
		if strings.HasPrefix(l, "summary: ") {
			summaryLines++
		}
	}
	assert.Equal(t, 2, summaryLines)
}

func TestPreprocessor_MissingFnAfterFl(t *testing.T) {
	trace := "fl=main.php\nnot-fn-line\n"
	_, err := NewPreprocessor(Options{}).Run(strings.NewReader(trace))
	assert.ErrorIs(t, err, ErrMissingFn)
}

func TestPreprocessor_EmptyProxyQueueIsMalformed(t *testing.T) {
	trace := "fl=main.php\n" +
		"fn={main}\n" +
		"summary: 1\n" +
		"0 0\n" +
		"1 1\n" +
		"cfn=call_user_func\n" +
		"calls=1 0\n" +
		"1 1\n"

	_, err := NewPreprocessor(Options{ProxyFunctions: []string{"call_user_func"}}).Run(strings.NewReader(trace))
	assert.ErrorIs(t, err, ErrEmptyProxyQueue)
}

func TestPreprocessor_DanglingCfn(t *testing.T) {
	trace := "cfn=foo\ncalls=1 0\n1 1\n"
	_, err := NewPreprocessor(Options{}).Run(strings.NewReader(trace))
	assert.ErrorIs(t, err, ErrDanglingCfn)
}
