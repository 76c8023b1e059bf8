package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/storage"
)

// axisVector returns a 384-dim unit vector along the given axis.
// Identical axes give cosine similarity 1, distinct axes give 0.
func axisVector(axis int) []float32 {
	vec := make([]float32, catalog.EmbeddingDimensions)
	vec[axis] = 1
	return vec
}

// unitBlend returns a 384-dim unit vector whose cosine similarity with
// axisVector(axisA) is exactly a.
func unitBlend(axisA, axisB int, a, b float32) []float32 {
	vec := make([]float32, catalog.EmbeddingDimensions)
	vec[axisA] = a
	vec[axisB] = b
	return vec
}

func addTool(t *testing.T, engine storage.Engine, id string, embedding []float32) {
	t.Helper()
	props := map[string]any{catalog.PropName: id, catalog.PropDescription: id + " tool"}
	if embedding != nil {
		props[catalog.PropEmbedding] = embedding
	}
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: storage.NodeID(id), Labels: []string{catalog.LabelTool}, Properties: props,
	}))
}

func addWorkflowWithSteps(t *testing.T, engine storage.Engine, id string, embedding []float32, toolIDs ...string) {
	t.Helper()
	props := map[string]any{catalog.PropName: id}
	if embedding != nil {
		props[catalog.PropEmbedding] = embedding
	}
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: storage.NodeID(id), Labels: []string{catalog.LabelWorkflow}, Properties: props,
	}))

	for i, toolID := range toolIDs {
		stepID := catalog.StepID(id, i+1)
		require.NoError(t, engine.MergeNode(&storage.Node{
			ID: storage.NodeID(stepID), Labels: []string{catalog.LabelWorkflowStep},
			Properties: map[string]any{catalog.PropStepNumber: i + 1},
		}))
		require.NoError(t, engine.MergeEdge(&storage.Edge{
			StartNode: storage.NodeID(id), EndNode: storage.NodeID(stepID), Type: catalog.EdgeHasStep,
		}))
		require.NoError(t, engine.MergeEdge(&storage.Edge{
			StartNode: storage.NodeID(stepID), EndNode: storage.NodeID(toolID), Type: catalog.EdgeUsesTool,
		}))
	}
}

func TestSimilarityProjector_SemanticEdges(t *testing.T) {
	engine := storage.NewMemoryEngine()
	addTool(t, engine, "t1", axisVector(0))
	addTool(t, engine, "t2", axisVector(0))   // identical to t1
	addTool(t, engine, "t3", axisVector(1))   // orthogonal
	addTool(t, engine, "bad", []float32{1})   // wrong dimension, excluded
	addTool(t, engine, "novec", nil)          // no embedding, excluded

	projector := NewSimilarityProjector(engine, 0.7, 1.0, 0.5)
	graph, err := projector.Project(nil)
	require.NoError(t, err)

	assert.Equal(t, 3, graph.NodeCount())
	assert.True(t, graph.HasEdge("t1", "t2"))
	assert.InDelta(t, 1.0, graph.Weight("t1", "t2"), 1e-6)
	assert.False(t, graph.HasEdge("t1", "t3"))
}

func TestSimilarityProjector_ThresholdIsStrict(t *testing.T) {
	engine := storage.NewMemoryEngine()
	// cos(t1, t2) = 0.6 which is below the 0.7 threshold
	addTool(t, engine, "t1", axisVector(0))
	addTool(t, engine, "t2", unitBlend(0, 1, 0.6, 0.8))

	projector := NewSimilarityProjector(engine, 0.7, 1.0, 0.5)
	graph, err := projector.Project(nil)
	require.NoError(t, err)
	assert.False(t, graph.HasEdge("t1", "t2"))
}

func TestSimilarityProjector_AdditiveWeights(t *testing.T) {
	engine := storage.NewMemoryEngine()
	addTool(t, engine, "t1", axisVector(0))
	addTool(t, engine, "t2", axisVector(0))
	// t1 and t2 co-occur in one workflow on top of their semantic edge
	addWorkflowWithSteps(t, engine, "wf-1", nil, "t1", "t2")

	projector := NewSimilarityProjector(engine, 0.7, 1.0, 0.5)
	graph, err := projector.Project(nil)
	require.NoError(t, err)

	// semantic 1.0 + co-occurrence 1x1.0 = 2.0
	assert.InDelta(t, 2.0, graph.Weight("t1", "t2"), 1e-6)
}

func TestSimilarityProjector_IOWeight(t *testing.T) {
	engine := storage.NewMemoryEngine()
	addTool(t, engine, "t1", axisVector(0))
	addTool(t, engine, "t2", axisVector(1))

	// t1 produces a format t2 accepts
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: "FileFormat:bam", Labels: []string{catalog.LabelFileFormat},
		Properties: map[string]any{catalog.PropName: "bam"},
	}))
	require.NoError(t, engine.MergeEdge(&storage.Edge{
		StartNode: "t1", EndNode: "FileFormat:bam", Type: catalog.EdgeProducesOutput,
	}))
	require.NoError(t, engine.MergeEdge(&storage.Edge{
		StartNode: "t2", EndNode: "FileFormat:bam", Type: catalog.EdgeAcceptsInput,
	}))

	projector := NewSimilarityProjector(engine, 0.7, 1.0, 0.5)
	graph, err := projector.Project(nil)
	require.NoError(t, err)

	// No semantic edge (orthogonal), io only: 1 shared format x 0.5
	assert.InDelta(t, 0.5, graph.Weight("t1", "t2"), 1e-6)
}

func TestSimilarityProjector_Filter(t *testing.T) {
	engine := storage.NewMemoryEngine()
	addTool(t, engine, "t1", axisVector(0))
	addTool(t, engine, "t2", axisVector(0))
	addTool(t, engine, "t3", axisVector(0))

	filter := map[string]struct{}{"t1": {}, "t2": {}}
	projector := NewSimilarityProjector(engine, 0.7, 1.0, 0.5)
	graph, err := projector.Project(filter)
	require.NoError(t, err)

	assert.Equal(t, 2, graph.NodeCount())
	assert.True(t, graph.HasEdge("t1", "t2"))
}

func TestSimilarityProjector_EmptyStore(t *testing.T) {
	engine := storage.NewMemoryEngine()
	projector := NewSimilarityProjector(engine, 0.7, 1.0, 0.5)
	graph, err := projector.Project(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, graph.NodeCount())
}

func TestUniversalProjector(t *testing.T) {
	engine := storage.NewMemoryEngine()
	addTool(t, engine, "t1", axisVector(0))
	addWorkflowWithSteps(t, engine, "wf-1", axisVector(0))
	addWorkflowWithSteps(t, engine, "wf-2", axisVector(1))

	projector := NewUniversalProjector(engine, 0.7)
	graph, err := projector.Project()
	require.NoError(t, err)

	assert.Equal(t, 3, graph.NodeCount())
	assert.Equal(t, TypeTool, graph.NodeType("Tool:t1"))
	assert.Equal(t, TypeWorkflow, graph.NodeType("Workflow:wf-1"))

	// Cross-type semantic edge
	assert.True(t, graph.HasEdge("Tool:t1", "Workflow:wf-1"))
	assert.False(t, graph.HasEdge("Tool:t1", "Workflow:wf-2"))
}
