package catalog

import (
	"fmt"
	"sort"

	"github.com/runeward/toolgraph/pkg/storage"
)

// WeightedPair is an undirected co-membership signal between two tools.
// Source sorts before Target so each pair appears exactly once.
type WeightedPair struct {
	Source string
	Target string
	Weight float64
}

// EmbeddingsByLabel returns id -> embedding for every node with the
// label that carries an embedding property.
func EmbeddingsByLabel(engine storage.Engine, label string) (map[string][]float32, error) {
	nodes, err := engine.GetNodesByLabel(label)
	if err != nil {
		return nil, fmt.Errorf("fetch %s nodes: %w", label, err)
	}

	embeddings := make(map[string][]float32, len(nodes))
	for _, node := range nodes {
		if vec := node.Embedding(); len(vec) > 0 {
			embeddings[string(node.ID)] = vec
		}
	}
	return embeddings, nil
}

// ToolCooccurrence returns tool pairs that appear as steps of the same
// workflow. Each pair is counted once per shared workflow regardless of
// how many steps use the tools.
func ToolCooccurrence(engine storage.Engine) ([]WeightedPair, error) {
	workflows, err := engine.GetNodesByLabel(LabelWorkflow)
	if err != nil {
		return nil, fmt.Errorf("fetch workflows: %w", err)
	}

	counts := make(map[[2]string]float64)
	for _, wf := range workflows {
		toolSet, err := workflowStepTools(engine, wf.ID)
		if err != nil {
			return nil, err
		}

		tools := make([]string, 0, len(toolSet))
		for id := range toolSet {
			tools = append(tools, id)
		}
		sort.Strings(tools)

		for i := 0; i < len(tools); i++ {
			for j := i + 1; j < len(tools); j++ {
				counts[[2]string{tools[i], tools[j]}]++
			}
		}
	}

	return pairsFromCounts(counts), nil
}

// FormatCompatibility returns tool pairs where one tool produces a file
// format the other accepts. Weight is the number of shared formats.
func FormatCompatibility(engine storage.Engine) ([]WeightedPair, error) {
	formats, err := engine.GetNodesByLabel(LabelFileFormat)
	if err != nil {
		return nil, fmt.Errorf("fetch file formats: %w", err)
	}

	counts := make(map[[2]string]float64)
	for _, format := range formats {
		incoming, err := engine.GetIncomingEdges(format.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch edges into format %s: %w", format.ID, err)
		}

		var producers, consumers []string
		for _, edge := range incoming {
			switch edge.Type {
			case EdgeProducesOutput:
				producers = append(producers, string(edge.StartNode))
			case EdgeAcceptsInput:
				consumers = append(consumers, string(edge.StartNode))
			}
		}

		for _, p := range producers {
			for _, c := range consumers {
				if p == c {
					continue
				}
				key := [2]string{p, c}
				if key[0] > key[1] {
					key[0], key[1] = key[1], key[0]
				}
				counts[key]++
			}
		}
	}

	return pairsFromCounts(counts), nil
}

// ToolNeighborhood is the 1-hop context around a tool.
type ToolNeighborhood struct {
	Inputs    []string // accepted file format names
	Outputs   []string // produced file format names
	Workflows []string // names of workflows using the tool, sampled
}

// Neighborhood expands a tool's immediate context: accepted and produced
// formats plus up to workflowLimit workflows that use it as a step.
func Neighborhood(engine storage.Engine, toolID string, workflowLimit int) (*ToolNeighborhood, error) {
	ctx := &ToolNeighborhood{}

	outgoing, err := engine.GetOutgoingEdges(storage.NodeID(toolID))
	if err != nil {
		return nil, fmt.Errorf("fetch edges from tool %s: %w", toolID, err)
	}
	for _, edge := range outgoing {
		if edge.Type != EdgeAcceptsInput && edge.Type != EdgeProducesOutput {
			continue
		}
		format, err := engine.GetNode(edge.EndNode)
		if err != nil {
			continue
		}
		name := format.StringProp(PropName)
		if edge.Type == EdgeAcceptsInput {
			ctx.Inputs = appendUnique(ctx.Inputs, name)
		} else {
			ctx.Outputs = appendUnique(ctx.Outputs, name)
		}
	}

	// Workflows reach the tool through a step: follow USES_TOOL edges
	// backwards, then HAS_STEP edges backwards.
	incoming, err := engine.GetIncomingEdges(storage.NodeID(toolID))
	if err != nil {
		return nil, fmt.Errorf("fetch edges into tool %s: %w", toolID, err)
	}
	seen := make(map[string]struct{})
	for _, edge := range incoming {
		if edge.Type != EdgeUsesTool {
			continue
		}
		stepIncoming, err := engine.GetIncomingEdges(edge.StartNode)
		if err != nil {
			continue
		}
		for _, stepEdge := range stepIncoming {
			if stepEdge.Type != EdgeHasStep {
				continue
			}
			if _, ok := seen[string(stepEdge.StartNode)]; ok {
				continue
			}
			seen[string(stepEdge.StartNode)] = struct{}{}

			wf, err := engine.GetNode(stepEdge.StartNode)
			if err != nil {
				continue
			}
			ctx.Workflows = append(ctx.Workflows, wf.StringProp(PropName))
			if len(ctx.Workflows) >= workflowLimit {
				return ctx, nil
			}
		}
	}
	return ctx, nil
}

// CommunityMembers returns "Label: name - description" member lines for
// every node linked to the community by the membership edge type.
func CommunityMembers(engine storage.Engine, communityID storage.NodeID, edgeType string) ([]string, error) {
	incoming, err := engine.GetIncomingEdges(communityID)
	if err != nil {
		return nil, fmt.Errorf("fetch members of %s: %w", communityID, err)
	}

	var members []string
	for _, edge := range incoming {
		if edge.Type != edgeType {
			continue
		}
		node, err := engine.GetNode(edge.StartNode)
		if err != nil {
			continue
		}
		label := ""
		if len(node.Labels) > 0 {
			label = node.Labels[0]
		}
		members = append(members, fmt.Sprintf("%s: %s - %s",
			label, node.StringProp(PropName), node.StringProp(PropDescription)))
	}
	sort.Strings(members)
	return members, nil
}

func workflowStepTools(engine storage.Engine, workflowID storage.NodeID) (map[string]struct{}, error) {
	outgoing, err := engine.GetOutgoingEdges(workflowID)
	if err != nil {
		return nil, fmt.Errorf("fetch steps of workflow %s: %w", workflowID, err)
	}

	tools := make(map[string]struct{})
	for _, edge := range outgoing {
		if edge.Type != EdgeHasStep {
			continue
		}
		stepOut, err := engine.GetOutgoingEdges(edge.EndNode)
		if err != nil {
			return nil, err
		}
		for _, stepEdge := range stepOut {
			if stepEdge.Type == EdgeUsesTool {
				tools[string(stepEdge.EndNode)] = struct{}{}
			}
		}
	}
	return tools, nil
}

func pairsFromCounts(counts map[[2]string]float64) []WeightedPair {
	pairs := make([]WeightedPair, 0, len(counts))
	for key, weight := range counts {
		pairs = append(pairs, WeightedPair{Source: key[0], Target: key[1], Weight: weight})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Source != pairs[j].Source {
			return pairs[i].Source < pairs[j].Source
		}
		return pairs[i].Target < pairs[j].Target
	})
	return pairs
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
