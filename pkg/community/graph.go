// Package community implements weighted graph projection and two-level
// hierarchical community detection over the catalog graph.
package community

import "sort"

// Graph is an undirected weighted graph keyed by string node ids.
// Node ids in universal projections are type-prefixed ("Tool:<id>",
// "Workflow:<id>") to keep the key space unambiguous.
type Graph struct {
	adjacency map[string]map[string]float64
	nodeType  map[string]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		adjacency: make(map[string]map[string]float64),
		nodeType:  make(map[string]string),
	}
}

// AddNode registers a node. Re-adding an existing node is a no-op that
// keeps existing edges.
func (g *Graph) AddNode(id string) {
	if _, ok := g.adjacency[id]; !ok {
		g.adjacency[id] = make(map[string]float64)
	}
}

// AddTypedNode registers a node with a type tag.
func (g *Graph) AddTypedNode(id, nodeType string) {
	g.AddNode(id)
	g.nodeType[id] = nodeType
}

// NodeType returns the node's type tag, empty when untagged.
func (g *Graph) NodeType(id string) string {
	return g.nodeType[id]
}

// SetEdge sets the edge weight, overwriting any existing weight.
// Both endpoints are registered.
func (g *Graph) SetEdge(a, b string, weight float64) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.adjacency[a][b] = weight
	g.adjacency[b][a] = weight
}

// AddWeight adds to the edge weight, creating the edge when absent.
// Multi-source signals accumulate rather than overwrite.
func (g *Graph) AddWeight(a, b string, weight float64) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.adjacency[a][b] += weight
	g.adjacency[b][a] += weight
}

// HasEdge reports whether an edge exists between the nodes.
func (g *Graph) HasEdge(a, b string) bool {
	_, ok := g.adjacency[a][b]
	return ok
}

// Weight returns the edge weight, zero when absent.
func (g *Graph) Weight(a, b string) float64 {
	return g.adjacency[a][b]
}

// Neighbors returns the adjacency map of a node. The returned map is
// the graph's own storage, callers must not mutate it.
func (g *Graph) Neighbors(id string) map[string]float64 {
	return g.adjacency[id]
}

// Nodes returns all node ids in sorted order.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.adjacency))
	for id := range g.adjacency {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.adjacency)
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, neighbors := range g.adjacency {
		total += len(neighbors)
	}
	return total / 2
}

// TotalWeight returns the sum of all undirected edge weights.
func (g *Graph) TotalWeight() float64 {
	total := 0.0
	for _, neighbors := range g.adjacency {
		for _, w := range neighbors {
			total += w
		}
	}
	return total / 2
}

// InducedSubgraph returns the subgraph on the given nodes, keeping only
// edges whose both endpoints are included. Unknown ids are ignored.
func (g *Graph) InducedSubgraph(ids []string) *Graph {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := g.adjacency[id]; ok {
			keep[id] = struct{}{}
		}
	}

	sub := NewGraph()
	for id := range keep {
		sub.AddNode(id)
		if t, ok := g.nodeType[id]; ok {
			sub.nodeType[id] = t
		}
		for neighbor, weight := range g.adjacency[id] {
			if _, ok := keep[neighbor]; ok {
				sub.adjacency[id][neighbor] = weight
			}
		}
	}
	return sub
}
