package retrieval

import (
	"context"
	"log"
	"strings"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/embed"
	"github.com/runeward/toolgraph/pkg/storage"
)

// HybridSearch combines vector similarity with structural graph filters.
type HybridSearch struct {
	engine   storage.Engine
	embedder embed.Embedder
}

// NewHybridSearch creates a hybrid search service.
func NewHybridSearch(engine storage.Engine, embedder embed.Embedder) *HybridSearch {
	return &HybridSearch{engine: engine, embedder: embedder}
}

// Search returns the topK most similar tools, optionally restricted to
// tools accepting a file format whose name contains inputFormat. The
// filter is conjunctive: failing tools are excluded outright, never
// just down-weighted.
func (h *HybridSearch) Search(ctx context.Context, query, inputFormat string, topK int) ([]ToolHit, error) {
	log.Printf("🔎 Hybrid search: %q (filter: %q)", query, inputFormat)

	queryVec, err := h.embedder.Embed(ctx, query)
	if err != nil || len(queryVec) == 0 {
		log.Printf("⚠️  Query embedding failed, returning no results: %v", err)
		return []ToolHit{}, nil
	}

	hits, err := vectorScan(h.engine, queryVec, topK)
	if err != nil {
		return nil, err
	}
	if inputFormat == "" {
		return hits, nil
	}

	filtered := make([]ToolHit, 0, len(hits))
	for _, hit := range hits {
		ok, err := h.acceptsFormat(hit.ID, inputFormat)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, hit)
		}
	}
	return filtered, nil
}

// acceptsFormat reports whether the tool accepts any file format whose
// name contains the given substring.
func (h *HybridSearch) acceptsFormat(toolID, inputFormat string) (bool, error) {
	outgoing, err := h.engine.GetOutgoingEdges(storage.NodeID(toolID))
	if err != nil {
		return false, err
	}
	for _, edge := range outgoing {
		if edge.Type != catalog.EdgeAcceptsInput {
			continue
		}
		format, err := h.engine.GetNode(edge.EndNode)
		if err != nil {
			continue
		}
		if strings.Contains(format.StringProp(catalog.PropName), inputFormat) {
			return true, nil
		}
	}
	return false, nil
}
