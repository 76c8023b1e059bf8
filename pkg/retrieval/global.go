package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/genai"
	"github.com/runeward/toolgraph/pkg/storage"
)

// GlobalResult is the outcome of community-centric search.
type GlobalResult struct {
	// CommunityID is the chosen level-1 community, -1 when the model
	// produced no usable choice or no communities exist.
	CommunityID int

	CommunityName string
	Summary       string
	Reasoning     string
}

// GlobalSearch answers high-level queries by arbitrating over community
// summaries with the generation model.
type GlobalSearch struct {
	engine    storage.Engine
	completer genai.Completer
}

// NewGlobalSearch creates a global search service.
func NewGlobalSearch(engine storage.Engine, completer genai.Completer) *GlobalSearch {
	return &GlobalSearch{engine: engine, completer: completer}
}

// Search selects the best matching community for the query.
func (g *GlobalSearch) Search(ctx context.Context, query string) (*GlobalResult, error) {
	log.Printf("🔎 Global search: %q", query)

	communities, err := g.engine.GetNodesByLabel(catalog.LabelCommunity)
	if err != nil {
		return nil, fmt.Errorf("fetch communities: %w", err)
	}
	if len(communities) == 0 {
		return &GlobalResult{
			CommunityID: -1,
			Reasoning:   "No communities found in the graph.",
		}, nil
	}

	var lines []string
	byID := make(map[int]*storage.Node, len(communities))
	for _, comm := range communities {
		id, ok := comm.IntProp(catalog.PropCommunityID)
		if !ok {
			log.Printf("⚠️  Community node %s has no numeric id, skipping", comm.ID)
			continue
		}
		byID[id] = comm
		lines = append(lines, fmt.Sprintf("ID %d: %s - %s",
			id, comm.StringProp(catalog.PropName), comm.StringProp(catalog.PropSummary)))
	}

	prompt := fmt.Sprintf(`You are an intelligent assistant for a computational tool and workflow graph.

User Query: "%s"

Available Communities:
%s

1. Identify the single most relevant community for this query.
2. Explain why you chose it.
3. Return the Community ID.

Format:
Community_ID: <id>
Reasoning: <text>`, query, strings.Join(lines, "\n"))

	response, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("community arbitration: %w", err)
	}

	id, reasoning := genai.ParseCommunityChoice(response)
	result := &GlobalResult{CommunityID: id, Reasoning: reasoning}
	if chosen, ok := byID[id]; ok {
		result.CommunityName = chosen.StringProp(catalog.PropName)
		result.Summary = chosen.StringProp(catalog.PropSummary)
	} else if id != -1 {
		log.Printf("⚠️  Model chose unknown community id %d", id)
		result.CommunityID = -1
	}
	return result, nil
}
