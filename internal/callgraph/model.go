// Package callgraph builds an in-memory, exportable call graph from a
// binary index opened via internal/index, for visualization and reporting
// on top of the preprocessed cost data.
package callgraph

import "strconv"

// Node represents a single function in the call graph.
type Node struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Filename      string  `json:"filename,omitempty"`
	Label         string  `json:"label,omitempty"`
	SelfPct       float64 `json:"selfPct"`
	InclusivePct  float64 `json:"inclusivePct"`
	SelfCost      uint64  `json:"selfCost"`
	InclusiveCost uint64  `json:"inclusiveCost"`
	Invocations   uint32  `json:"invocations"`
	IsRecursive   bool    `json:"isRecursive,omitempty"`
}

// Edge represents a call relationship between two nodes at a given call
// site line.
type Edge struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Line   uint32  `json:"line"`
	Weight float64 `json:"weight"`
	Count  uint32  `json:"count"`
	Cost   uint64  `json:"cost"`
}

// CallGraph is the complete graph structure, ready for export.
type CallGraph struct {
	Name      string  `json:"name,omitempty"`
	TotalCost uint64  `json:"totalCost"`
	Nodes     []*Node `json:"nodes"`
	Edges     []*Edge `json:"edges"`

	// Internal maps for building.
	nodeMap   map[string]*Node `json:"-"`
	edgeMap   map[string]*Edge `json:"-"`
	nodeIndex map[string]int   `json:"-"`
}

// NewCallGraph creates an empty call graph.
func NewCallGraph() *CallGraph {
	return &CallGraph{
		Nodes:     make([]*Node, 0),
		Edges:     make([]*Edge, 0),
		nodeMap:   make(map[string]*Node),
		edgeMap:   make(map[string]*Edge),
		nodeIndex: make(map[string]int),
	}
}

// AddNode adds or updates a node in the call graph. Costs accumulate on
// repeated calls with the same name/filename pair.
func (cg *CallGraph) AddNode(name, filename string, selfCost, inclusiveCost uint64, invocations uint32) *Node {
	nodeID := makeNodeID(name, filename)

	if node, exists := cg.nodeMap[nodeID]; exists {
		node.SelfCost += selfCost
		node.InclusiveCost += inclusiveCost
		node.Invocations += invocations
		return node
	}

	node := &Node{
		ID:            nodeID,
		Name:          name,
		Filename:      filename,
		Label:         name,
		SelfCost:      selfCost,
		InclusiveCost: inclusiveCost,
		Invocations:   invocations,
	}

	cg.nodeMap[nodeID] = node
	cg.nodeIndex[nodeID] = len(cg.Nodes)
	cg.Nodes = append(cg.Nodes, node)

	return node
}

// AddEdge adds or updates an edge in the call graph. A self-edge (same
// source and target) marks both endpoints as recursive.
func (cg *CallGraph) AddEdge(sourceName, sourceFile, targetName, targetFile string, line uint32, count uint32, cost uint64) *Edge {
	sourceID := makeNodeID(sourceName, sourceFile)
	targetID := makeNodeID(targetName, targetFile)
	id := edgeID(sourceID, targetID, line)

	if sourceID == targetID {
		if node := cg.nodeMap[sourceID]; node != nil {
			node.IsRecursive = true
		}
	}

	if edge, exists := cg.edgeMap[id]; exists {
		edge.Count += count
		edge.Cost += cost
		return edge
	}

	edge := &Edge{
		ID:     id,
		Source: sourceID,
		Target: targetID,
		Line:   line,
		Count:  count,
		Cost:   cost,
	}

	cg.edgeMap[id] = edge
	cg.Edges = append(cg.Edges, edge)

	return edge
}

// GetNode returns a node by name and filename. After Cleanup has released
// the lookup maps, it searches the remaining Nodes instead.
func (cg *CallGraph) GetNode(name, filename string) *Node {
	id := makeNodeID(name, filename)
	if cg.nodeMap == nil {
		for _, node := range cg.Nodes {
			if node.ID == id {
				return node
			}
		}
		return nil
	}
	return cg.nodeMap[id]
}

// GetEdge returns an edge by source, target and call-site line. After
// Cleanup has released the lookup maps, it searches the remaining Edges
// instead.
func (cg *CallGraph) GetEdge(sourceName, sourceFile, targetName, targetFile string, line uint32) *Edge {
	sourceID := makeNodeID(sourceName, sourceFile)
	targetID := makeNodeID(targetName, targetFile)
	id := edgeID(sourceID, targetID, line)
	if cg.edgeMap == nil {
		for _, edge := range cg.Edges {
			if edge.ID == id {
				return edge
			}
		}
		return nil
	}
	return cg.edgeMap[id]
}

// CalculatePercentages derives SelfPct/InclusivePct/Weight from TotalCost.
func (cg *CallGraph) CalculatePercentages() {
	if cg.TotalCost == 0 {
		return
	}

	total := float64(cg.TotalCost)

	for _, node := range cg.Nodes {
		node.SelfPct = float64(node.SelfCost) / total * 100
		node.InclusivePct = float64(node.InclusiveCost) / total * 100
	}

	for _, edge := range cg.Edges {
		edge.Weight = float64(edge.Cost) / total * 100
	}
}

// Cleanup clears internal maps and filters nodes/edges below threshold
// inclusive/weight percentages.
func (cg *CallGraph) Cleanup(minNodePct, minEdgePct float64) {
	cg.nodeMap = nil
	cg.edgeMap = nil
	cg.nodeIndex = nil

	if minNodePct <= 0 && minEdgePct <= 0 {
		return
	}

	if minNodePct > 0 {
		filteredNodes := make([]*Node, 0, len(cg.Nodes))
		keepNodes := make(map[string]bool)
		for _, node := range cg.Nodes {
			if node.InclusivePct >= minNodePct {
				filteredNodes = append(filteredNodes, node)
				keepNodes[node.ID] = true
			}
		}
		cg.Nodes = filteredNodes

		filteredEdges := make([]*Edge, 0, len(cg.Edges))
		for _, edge := range cg.Edges {
			if keepNodes[edge.Source] && keepNodes[edge.Target] {
				if minEdgePct <= 0 || edge.Weight >= minEdgePct {
					filteredEdges = append(filteredEdges, edge)
				}
			}
		}
		cg.Edges = filteredEdges
	} else if minEdgePct > 0 {
		filteredEdges := make([]*Edge, 0, len(cg.Edges))
		for _, edge := range cg.Edges {
			if edge.Weight >= minEdgePct {
				filteredEdges = append(filteredEdges, edge)
			}
		}
		cg.Edges = filteredEdges
	}
}

// GetTopFunctionsBySelf returns up to n nodes ordered by descending self cost.
func (cg *CallGraph) GetTopFunctionsBySelf(n int) []*Node {
	return topNodes(cg.Nodes, n, func(node *Node) uint64 { return node.SelfCost })
}

// GetTopFunctionsByInclusive returns up to n nodes ordered by descending
// inclusive cost.
func (cg *CallGraph) GetTopFunctionsByInclusive(n int) []*Node {
	return topNodes(cg.Nodes, n, func(node *Node) uint64 { return node.InclusiveCost })
}

func topNodes(nodes []*Node, n int, key func(*Node) uint64) []*Node {
	sorted := make([]*Node, len(nodes))
	copy(sorted, nodes)
	insertionSortNodes(sorted, key)
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func insertionSortNodes(nodes []*Node, key func(*Node) uint64) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && key(nodes[j]) > key(nodes[j-1]); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// makeNodeID creates a unique ID for a node from its name and declaring
// file, matching how Callgrind itself disambiguates same-named functions
// declared in different files.
func makeNodeID(name, filename string) string {
	if filename == "" {
		return name
	}
	return name + "(" + filename + ")"
}

func edgeID(sourceID, targetID string, line uint32) string {
	return sourceID + "->" + targetID + "@" + strconv.FormatUint(uint64(line), 10)
}

// Stats summarizes a call graph's shape.
type Stats struct {
	NodeCount       int
	EdgeCount       int
	MaxSelfPct      float64
	MaxInclusivePct float64
}

// GetStats returns aggregate statistics about the call graph.
func (cg *CallGraph) GetStats() *Stats {
	stats := &Stats{
		NodeCount: len(cg.Nodes),
		EdgeCount: len(cg.Edges),
	}

	for _, node := range cg.Nodes {
		if node.SelfPct > stats.MaxSelfPct {
			stats.MaxSelfPct = node.SelfPct
		}
		if node.InclusivePct > stats.MaxInclusivePct {
			stats.MaxInclusivePct = node.InclusivePct
		}
	}

	return stats
}
