package community

import (
	"math/rand"
	"sort"
)

// Partitioner assigns every node of a weighted graph to a community.
// The returned map is node id -> dense community index starting at 0.
// An empty graph partitions to an empty map.
type Partitioner interface {
	Partition(g *Graph, resolution float64) map[string]int
}

// Louvain is a seeded modularity-maximizing partitioner. The resolution
// parameter trades community size against count: higher values produce
// more, smaller communities.
//
// The node visit order is shuffled with a fixed seed so repeated runs on
// the same graph produce the same partition.
type Louvain struct {
	Seed int64

	// MaxPasses bounds the outer aggregation loop. Zero means the
	// default of 10, which is far beyond convergence in practice.
	MaxPasses int
}

// NewLouvain creates a partitioner with the given seed.
func NewLouvain(seed int64) *Louvain {
	return &Louvain{Seed: seed}
}

// Partition clusters the graph. Community indexes are densified and
// ordered by each community's smallest member id so output is stable.
func (l *Louvain) Partition(g *Graph, resolution float64) map[string]int {
	if g == nil || g.NodeCount() == 0 {
		return map[string]int{}
	}

	maxPasses := l.MaxPasses
	if maxPasses == 0 {
		maxPasses = 10
	}
	rng := rand.New(rand.NewSource(l.Seed))

	// Each node starts in its own community. membership maps original
	// node id -> current community of its aggregate node.
	working := g
	membership := make(map[string]int, g.NodeCount())
	aggregate := make(map[string][]string, g.NodeCount()) // aggregate node id -> original members
	for i, id := range g.Nodes() {
		membership[id] = i
		aggregate[id] = []string{id}
	}

	for pass := 0; pass < maxPasses; pass++ {
		communities, improved := localMoving(working, resolution, rng)
		if !improved && pass > 0 {
			break
		}

		// Re-point original nodes at their new communities
		for aggID, members := range aggregate {
			comm := communities[aggID]
			for _, original := range members {
				membership[original] = comm
			}
		}

		if !improved {
			break
		}

		// No shrinkage possible once every community is a single node
		if allSingletons(communities) {
			break
		}
		working, aggregate = aggregateGraph(working, communities, aggregate)
	}

	return densify(membership)
}

// localMoving runs the first Louvain phase: repeatedly move nodes to the
// neighboring community with the best modularity gain until no move
// improves.
func localMoving(g *Graph, resolution float64, rng *rand.Rand) (map[string]int, bool) {
	nodes := g.Nodes()
	rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

	community := make(map[string]int, len(nodes))
	for i, id := range g.Nodes() {
		community[id] = i
	}

	degree := make(map[string]float64, len(nodes))
	communityTotal := make(map[int]float64, len(nodes))
	for _, id := range g.Nodes() {
		d := 0.0
		for _, w := range g.Neighbors(id) {
			d += w
		}
		degree[id] = d
		communityTotal[community[id]] += d
	}

	m2 := 2 * g.TotalWeight()
	if m2 == 0 {
		// No edges: every node keeps its own community
		return community, false
	}

	improvedAny := false
	for {
		improved := false
		for _, id := range nodes {
			current := community[id]

			// Weight of links from id into each neighboring community
			links := make(map[int]float64)
			for neighbor, w := range g.Neighbors(id) {
				links[community[neighbor]] += w
			}

			// Remove id from its community
			communityTotal[current] -= degree[id]

			bestComm := current
			bestGain := links[current] - resolution*communityTotal[current]*degree[id]/m2
			for comm, link := range links {
				if comm == current {
					continue
				}
				gain := link - resolution*communityTotal[comm]*degree[id]/m2
				if gain > bestGain {
					bestGain = gain
					bestComm = comm
				}
			}

			communityTotal[bestComm] += degree[id]
			community[id] = bestComm
			if bestComm != current {
				improved = true
				improvedAny = true
			}
		}
		if !improved {
			break
		}
	}

	return community, improvedAny
}

// aggregateGraph runs the second Louvain phase: collapse each community
// into a single node, summing edge weights between communities.
func aggregateGraph(g *Graph, communities map[string]int, aggregate map[string][]string) (*Graph, map[string][]string) {
	// Name aggregate nodes by the smallest member id of each community
	// so node ordering stays deterministic.
	commName := make(map[int]string)
	for _, id := range g.Nodes() {
		comm := communities[id]
		if name, ok := commName[comm]; !ok || id < name {
			commName[comm] = id
		}
	}

	next := NewGraph()
	nextAggregate := make(map[string][]string)
	for _, id := range g.Nodes() {
		name := commName[communities[id]]
		next.AddNode(name)
		nextAggregate[name] = append(nextAggregate[name], aggregate[id]...)
	}

	for _, id := range g.Nodes() {
		a := commName[communities[id]]
		for neighbor, w := range g.Neighbors(id) {
			b := commName[communities[neighbor]]
			if a == b {
				continue
			}
			// Each undirected edge visits twice, halve the contribution
			next.adjacency[a][b] += w / 2
			next.adjacency[b][a] += w / 2
		}
	}

	for _, members := range nextAggregate {
		sort.Strings(members)
	}
	return next, nextAggregate
}

// densify renumbers community ids to a dense 0..n-1 range ordered by
// each community's smallest member id.
func densify(membership map[string]int) map[string]int {
	smallest := make(map[int]string)
	for id, comm := range membership {
		if cur, ok := smallest[comm]; !ok || id < cur {
			smallest[comm] = id
		}
	}

	reps := make([]string, 0, len(smallest))
	repComm := make(map[string]int, len(smallest))
	for comm, rep := range smallest {
		reps = append(reps, rep)
		repComm[rep] = comm
	}
	sort.Strings(reps)

	renumber := make(map[int]int, len(reps))
	for i, rep := range reps {
		renumber[repComm[rep]] = i
	}

	out := make(map[string]int, len(membership))
	for id, comm := range membership {
		out[id] = renumber[comm]
	}
	return out
}

func allSingletons(communities map[string]int) bool {
	seen := make(map[int]bool)
	for _, c := range communities {
		if seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}
