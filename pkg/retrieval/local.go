package retrieval

import (
	"context"
	"log"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/embed"
	"github.com/runeward/toolgraph/pkg/storage"
)

// LocalResult is one vector hit with its expanded 1-hop context.
type LocalResult struct {
	Tool    ToolHit
	Context catalog.ToolNeighborhood
}

// LocalSearch finds specific tools by vector similarity and expands
// their immediate graph neighborhood.
type LocalSearch struct {
	engine        storage.Engine
	embedder      embed.Embedder
	workflowLimit int
}

// NewLocalSearch creates a local search service. workflowLimit bounds
// how many workflows are sampled per hit; <= 0 defaults to 3.
func NewLocalSearch(engine storage.Engine, embedder embed.Embedder, workflowLimit int) *LocalSearch {
	if workflowLimit <= 0 {
		workflowLimit = 3
	}
	return &LocalSearch{engine: engine, embedder: embedder, workflowLimit: workflowLimit}
}

// Search returns the topK most similar tools with neighborhood context.
// A failed query embedding degrades to an empty result, not an error.
func (l *LocalSearch) Search(ctx context.Context, query string, topK int) ([]LocalResult, error) {
	log.Printf("🔎 Local search: %q", query)

	queryVec, err := l.embedder.Embed(ctx, query)
	if err != nil || len(queryVec) == 0 {
		log.Printf("⚠️  Query embedding failed, returning no results: %v", err)
		return []LocalResult{}, nil
	}

	hits, err := vectorScan(l.engine, queryVec, topK)
	if err != nil {
		return nil, err
	}

	results := make([]LocalResult, 0, len(hits))
	for _, hit := range hits {
		neighborhood, err := catalog.Neighborhood(l.engine, hit.ID, l.workflowLimit)
		if err != nil {
			return nil, err
		}
		results = append(results, LocalResult{Tool: hit, Context: *neighborhood})
	}
	return results, nil
}
