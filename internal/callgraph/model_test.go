package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallGraph(t *testing.T) {
	cg := NewCallGraph()

	assert.NotNil(t, cg.Nodes)
	assert.NotNil(t, cg.Edges)
	assert.NotNil(t, cg.nodeMap)
	assert.NotNil(t, cg.edgeMap)
	assert.Empty(t, cg.Nodes)
	assert.Empty(t, cg.Edges)
}

func TestCallGraph_AddNode(t *testing.T) {
	cg := NewCallGraph()

	node1 := cg.AddNode("func1", "file1.c", 100, 200, 1)
	node2 := cg.AddNode("func2", "", 50, 100, 1)

	assert.Len(t, cg.Nodes, 2)

	assert.Equal(t, "func1", node1.Name)
	assert.Equal(t, "file1.c", node1.Filename)
	assert.EqualValues(t, 100, node1.SelfCost)
	assert.EqualValues(t, 200, node1.InclusiveCost)

	assert.Equal(t, "func2", node2.Name)
	assert.Equal(t, "", node2.Filename)
}

func TestCallGraph_AddNode_Duplicate(t *testing.T) {
	cg := NewCallGraph()

	node1 := cg.AddNode("func1", "f.c", 100, 200, 1)
	node2 := cg.AddNode("func1", "f.c", 50, 100, 1) // duplicate

	assert.Len(t, cg.Nodes, 1)
	assert.Same(t, node1, node2)

	assert.EqualValues(t, 150, node1.SelfCost)
	assert.EqualValues(t, 300, node1.InclusiveCost)
	assert.EqualValues(t, 2, node1.Invocations)
}

func TestCallGraph_AddEdge(t *testing.T) {
	cg := NewCallGraph()

	edge := cg.AddEdge("func1", "f1.c", "func2", "f2.c", 7, 100, 500)

	assert.Len(t, cg.Edges, 1)
	assert.EqualValues(t, 100, edge.Count)
	assert.EqualValues(t, 500, edge.Cost)
	assert.EqualValues(t, 7, edge.Line)
	assert.Contains(t, edge.ID, "->")
}

func TestCallGraph_AddEdge_Duplicate(t *testing.T) {
	cg := NewCallGraph()

	edge1 := cg.AddEdge("func1", "", "func2", "", 3, 100, 500)
	edge2 := cg.AddEdge("func1", "", "func2", "", 3, 50, 250) // duplicate call site

	assert.Len(t, cg.Edges, 1)
	assert.Same(t, edge1, edge2)

	assert.EqualValues(t, 150, edge1.Count)
	assert.EqualValues(t, 750, edge1.Cost)
}

func TestCallGraph_AddEdge_SelfLoopMarksRecursive(t *testing.T) {
	cg := NewCallGraph()
	cg.AddNode("fib", "", 0, 100, 1)
	cg.AddEdge("fib", "", "fib", "", 12, 5, 50)

	node := cg.GetNode("fib", "")
	require.NotNil(t, node)
	assert.True(t, node.IsRecursive)
}

func TestCallGraph_GetNode(t *testing.T) {
	cg := NewCallGraph()
	cg.AddNode("func1", "mod.c", 100, 200, 1)

	node := cg.GetNode("func1", "mod.c")
	require.NotNil(t, node)
	assert.Equal(t, "func1", node.Name)

	assert.Nil(t, cg.GetNode("func2", "mod.c"))
}

func TestCallGraph_GetEdge(t *testing.T) {
	cg := NewCallGraph()
	cg.AddEdge("func1", "", "func2", "", 1, 100, 500)

	edge := cg.GetEdge("func1", "", "func2", "", 1)
	require.NotNil(t, edge)
	assert.EqualValues(t, 100, edge.Count)

	assert.Nil(t, cg.GetEdge("func1", "", "func3", "", 1))
}

func TestCallGraph_CalculatePercentages(t *testing.T) {
	cg := NewCallGraph()
	cg.TotalCost = 1000

	cg.AddNode("func1", "", 200, 500, 1) // 20% self, 50% inclusive
	cg.AddNode("func2", "", 100, 300, 1) // 10% self, 30% inclusive
	cg.AddEdge("func1", "", "func2", "", 5, 1, 200)

	cg.CalculatePercentages()

	node1 := cg.GetNode("func1", "")
	assert.InDelta(t, 20.0, node1.SelfPct, 0.01)
	assert.InDelta(t, 50.0, node1.InclusivePct, 0.01)

	node2 := cg.GetNode("func2", "")
	assert.InDelta(t, 10.0, node2.SelfPct, 0.01)
	assert.InDelta(t, 30.0, node2.InclusivePct, 0.01)

	edge := cg.GetEdge("func1", "", "func2", "", 5)
	assert.InDelta(t, 20.0, edge.Weight, 0.01)
}

func TestCallGraph_Cleanup(t *testing.T) {
	cg := NewCallGraph()
	cg.TotalCost = 1000

	cg.AddNode("hot_func", "", 500, 800, 1)  // 80% inclusive
	cg.AddNode("cold_func", "", 10, 30, 1)   // 3% inclusive
	cg.AddNode("tiny_func", "", 1, 2, 1)     // 0.2% inclusive

	cg.AddEdge("hot_func", "", "cold_func", "", 1, 1, 100)
	cg.AddEdge("hot_func", "", "tiny_func", "", 2, 1, 5)

	cg.CalculatePercentages()
	cg.Cleanup(5.0, 1.0)

	require.Len(t, cg.Nodes, 1)
	assert.Equal(t, "hot_func", cg.Nodes[0].Name)
	assert.Empty(t, cg.Edges)

	assert.Nil(t, cg.nodeMap)
	assert.Nil(t, cg.edgeMap)
}

func TestCallGraph_GetStats(t *testing.T) {
	cg := NewCallGraph()
	cg.TotalCost = 1000

	cg.AddNode("func1", "", 200, 500, 1)
	cg.AddNode("func2", "", 100, 300, 1)
	cg.AddEdge("func1", "", "func2", "", 1, 1, 200)

	cg.CalculatePercentages()
	stats := cg.GetStats()

	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, 1, stats.EdgeCount)
	assert.InDelta(t, 20.0, stats.MaxSelfPct, 0.01)
	assert.InDelta(t, 50.0, stats.MaxInclusivePct, 0.01)
}

func TestMakeNodeID(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"func", "", "func"},
		{"func", "mod.c", "func(mod.c)"},
		{"handle_request", "server.c", "handle_request(server.c)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := makeNodeID(tt.name, tt.filename)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallGraph_GetTopFunctionsBySelf(t *testing.T) {
	cg := NewCallGraph()
	cg.TotalCost = 1000

	cg.AddNode("hot1", "", 300, 500, 1)
	cg.AddNode("hot2", "", 200, 400, 1)
	cg.AddNode("cold", "", 10, 100, 1)

	cg.CalculatePercentages()

	top := cg.GetTopFunctionsBySelf(2)
	require.Len(t, top, 2)

	assert.Equal(t, "hot1", top[0].Name)
	assert.EqualValues(t, 300, top[0].SelfCost)

	assert.Equal(t, "hot2", top[1].Name)
	assert.EqualValues(t, 200, top[1].SelfCost)
}

func TestCallGraph_GetTopFunctionsByInclusive(t *testing.T) {
	cg := NewCallGraph()
	cg.TotalCost = 1000

	cg.AddNode("func1", "", 100, 800, 1)
	cg.AddNode("func2", "", 200, 600, 1)
	cg.AddNode("func3", "", 50, 200, 1)

	cg.CalculatePercentages()

	top := cg.GetTopFunctionsByInclusive(2)
	require.Len(t, top, 2)

	assert.Equal(t, "func1", top[0].Name)
	assert.EqualValues(t, 800, top[0].InclusiveCost)

	assert.Equal(t, "func2", top[1].Name)
	assert.EqualValues(t, 600, top[1].InclusiveCost)
}
