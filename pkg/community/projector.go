package community

import (
	"log"
	"sort"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/math/vector"
	"github.com/runeward/toolgraph/pkg/storage"
)

// Node type tags carried on projected graphs.
const (
	TypeTool     = "Tool"
	TypeWorkflow = "Workflow"
)

// SimilarityProjector builds the multi-source weighted tool graph.
//
// Three signals contribute edges:
//   - semantic: pairwise cosine similarity above the threshold
//   - workflow: co-occurrence as steps of the same workflow
//   - io: one tool producing a file format another accepts
//
// Signals accumulate additively so tools that are both semantically and
// functionally linked get stronger edges than either signal alone.
type SimilarityProjector struct {
	engine              storage.Engine
	similarityThreshold float64
	cooccurrenceWeight  float64
	ioWeight            float64
}

// NewSimilarityProjector creates a projector over the catalog graph.
func NewSimilarityProjector(engine storage.Engine, threshold, cooccurrenceWeight, ioWeight float64) *SimilarityProjector {
	return &SimilarityProjector{
		engine:              engine,
		similarityThreshold: threshold,
		cooccurrenceWeight:  cooccurrenceWeight,
		ioWeight:            ioWeight,
	}
}

// Project builds the weighted tool graph. When filter is non-nil, only
// tools whose ids are in the filter participate.
func (p *SimilarityProjector) Project(filter map[string]struct{}) (*Graph, error) {
	graph := NewGraph()

	embeddings, err := catalog.EmbeddingsByLabel(p.engine, catalog.LabelTool)
	if err != nil {
		return nil, err
	}

	ids, vectors := filterEmbeddings(embeddings, filter)
	if len(ids) == 0 {
		log.Printf("⚠️  No valid tool embeddings with dimension %d", catalog.EmbeddingDimensions)
		return graph, nil
	}

	for _, id := range ids {
		graph.AddTypedNode(id, TypeTool)
	}

	// Semantic similarity, upper triangle only
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sim := vector.CosineSimilarity(vectors[i], vectors[j])
			if sim > p.similarityThreshold {
				graph.SetEdge(ids[i], ids[j], sim)
			}
		}
	}

	inFilter := func(id string) bool {
		if filter == nil {
			return true
		}
		_, ok := filter[id]
		return ok
	}

	cooccurrences, err := catalog.ToolCooccurrence(p.engine)
	if err != nil {
		return nil, err
	}
	for _, pair := range cooccurrences {
		if inFilter(pair.Source) && inFilter(pair.Target) {
			graph.AddWeight(pair.Source, pair.Target, pair.Weight*p.cooccurrenceWeight)
		}
	}

	ioPairs, err := catalog.FormatCompatibility(p.engine)
	if err != nil {
		return nil, err
	}
	for _, pair := range ioPairs {
		if inFilter(pair.Source) && inFilter(pair.Target) {
			graph.AddWeight(pair.Source, pair.Target, pair.Weight*p.ioWeight)
		}
	}

	log.Printf("📊 Projected tool graph: %d nodes, %d edges", graph.NodeCount(), graph.EdgeCount())
	return graph, nil
}

// UniversalProjector builds the cross-type semantic graph over tools and
// workflows together. Node keys are type-prefixed and edges come purely
// from embedding similarity.
type UniversalProjector struct {
	engine              storage.Engine
	similarityThreshold float64
}

// NewUniversalProjector creates a universal projector.
func NewUniversalProjector(engine storage.Engine, threshold float64) *UniversalProjector {
	return &UniversalProjector{engine: engine, similarityThreshold: threshold}
}

// Project builds the universal semantic graph.
func (p *UniversalProjector) Project() (*Graph, error) {
	graph := NewGraph()

	toolEmbeddings, err := catalog.EmbeddingsByLabel(p.engine, catalog.LabelTool)
	if err != nil {
		return nil, err
	}
	wfEmbeddings, err := catalog.EmbeddingsByLabel(p.engine, catalog.LabelWorkflow)
	if err != nil {
		return nil, err
	}

	combined := make(map[string][]float32, len(toolEmbeddings)+len(wfEmbeddings))
	types := make(map[string]string, len(combined))
	for id, vec := range toolEmbeddings {
		key := TypeTool + ":" + id
		combined[key] = vec
		types[key] = TypeTool
	}
	for id, vec := range wfEmbeddings {
		key := TypeWorkflow + ":" + id
		combined[key] = vec
		types[key] = TypeWorkflow
	}

	keys, vectors := filterEmbeddings(combined, nil)
	if len(keys) == 0 {
		log.Printf("⚠️  No valid embeddings for universal graph")
		return graph, nil
	}

	for _, key := range keys {
		graph.AddTypedNode(key, types[key])
	}

	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			sim := vector.CosineSimilarity(vectors[i], vectors[j])
			if sim > p.similarityThreshold {
				graph.SetEdge(keys[i], keys[j], sim)
			}
		}
	}

	log.Printf("📊 Projected universal graph: %d nodes, %d edges", graph.NodeCount(), graph.EdgeCount())
	return graph, nil
}

// filterEmbeddings drops vectors with the wrong dimensionality and
// applies the optional id filter. Ids come back sorted so projection
// order is deterministic.
func filterEmbeddings(embeddings map[string][]float32, filter map[string]struct{}) ([]string, [][]float32) {
	ids := make([]string, 0, len(embeddings))
	for id, vec := range embeddings {
		if filter != nil {
			if _, ok := filter[id]; !ok {
				continue
			}
		}
		if len(vec) != catalog.EmbeddingDimensions {
			log.Printf("⚠️  Skipping %s: embedding dimension %d != %d", id, len(vec), catalog.EmbeddingDimensions)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	vectors := make([][]float32, len(ids))
	for i, id := range ids {
		vectors[i] = embeddings[id]
	}
	return ids, vectors
}
