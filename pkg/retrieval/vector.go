// Package retrieval implements the three search modes over the tool
// graph: global (community arbitration), local (entity-centric vector
// search with neighborhood expansion), and hybrid (vector search with
// structural filters).
package retrieval

import (
	"fmt"
	"sort"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/math/vector"
	"github.com/runeward/toolgraph/pkg/storage"
)

// ToolHit is one scored vector search result.
type ToolHit struct {
	ID          string
	Name        string
	Description string
	Score       float64
}

// vectorScan performs a linear cosine scan over all tool embeddings and
// returns the topK best hits in descending score order.
func vectorScan(engine storage.Engine, query []float32, topK int) ([]ToolHit, error) {
	tools, err := engine.GetNodesByLabel(catalog.LabelTool)
	if err != nil {
		return nil, fmt.Errorf("fetch tools: %w", err)
	}

	hits := make([]ToolHit, 0, len(tools))
	for _, tool := range tools {
		embedding := tool.Embedding()
		if len(embedding) == 0 {
			continue
		}
		hits = append(hits, ToolHit{
			ID:          string(tool.ID),
			Name:        tool.StringProp(catalog.PropName),
			Description: tool.StringProp(catalog.PropDescription),
			Score:       vector.CosineSimilarity(query, embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
