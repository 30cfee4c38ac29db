package callgraph

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callgrind-index/internal/callgrind"
	"github.com/callgrind-index/internal/index"
)

func openIndex(t *testing.T, trace string) *index.Reader {
	t.Helper()
	p := callgrind.NewPreprocessor(callgrind.Options{})
	m, err := p.Run(strings.NewReader(trace))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "trace.idx")
	require.NoError(t, callgrind.WriteIndex(path, m))

	r, err := index.Open(path, index.UsecFormat())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestGenerator_Generate_Basic(t *testing.T) {
	trace := "fl=main.php\n" +
		"fn={main}\n" +
		"summary: 100\n" +
		"0 0\n" +
		"5 2\n" +
		"cfn=foo\n" +
		"calls=1 0\n" +
		"7 3\n" +
		"fl=foo.php\n" +
		"fn=foo\n" +
		"3 1\n"

	r := openIndex(t, trace)
	gen := NewGenerator(&GeneratorOptions{MinNodePct: 0, MinEdgePct: 0, IncludeFilename: true})
	cg, err := gen.Generate(context.Background(), r)

	require.NoError(t, err)
	require.NotNil(t, cg)

	assert.EqualValues(t, 3, cg.TotalCost) // 2 (main self) + 1 (foo self)
	require.Len(t, cg.Nodes, 2)
	require.Len(t, cg.Edges, 1)

	main := cg.GetNode("{main}", "main.php")
	require.NotNil(t, main)
	assert.EqualValues(t, 2, main.SelfCost)
	assert.EqualValues(t, 5, main.InclusiveCost)

	foo := cg.GetNode("foo", "foo.php")
	require.NotNil(t, foo)
	assert.EqualValues(t, 1, foo.SelfCost)

	edge := cg.GetEdge("{main}", "main.php", "foo", "foo.php", 7)
	require.NotNil(t, edge)
	assert.EqualValues(t, 1, edge.Count)
	assert.EqualValues(t, 3, edge.Cost)
}

func TestGenerator_Generate_SingleFunctionNoEdges(t *testing.T) {
	r := openIndex(t, "fl=x.php\nfn={main}\nsummary: 5\n0 0\n1 5\n")
	gen := NewGenerator(&GeneratorOptions{MinNodePct: 0, MinEdgePct: 0})
	cg, err := gen.Generate(context.Background(), r)

	require.NoError(t, err)
	require.NotNil(t, cg)
	assert.Len(t, cg.Nodes, 1)
	assert.Empty(t, cg.Edges)
}

func TestGenerator_Generate_ContextCancellation(t *testing.T) {
	r := openIndex(t, "fl=x.php\nfn={main}\nsummary: 0\n0 0\n1 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := NewGenerator(nil)
	_, err := gen.Generate(ctx, r)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerator_Generate_ExcludeFilenameDropsFilenameFromID(t *testing.T) {
	r := openIndex(t, "fl=a.c\nfn=helper\n1 10\n")
	gen := NewGenerator(&GeneratorOptions{IncludeFilename: false})
	cg, err := gen.Generate(context.Background(), r)

	require.NoError(t, err)
	require.Len(t, cg.Nodes, 1)
	assert.Equal(t, "helper", cg.Nodes[0].ID)
	assert.Equal(t, "", cg.Nodes[0].Filename)
}
