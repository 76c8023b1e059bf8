package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runeward/toolgraph/pkg/storage"
)

// stubEmbedder returns a fixed-width vector per text, or fails for texts
// registered in failFor.
type stubEmbedder struct {
	dims    int
	failFor map[string]bool
	calls   int
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{dims: EmbeddingDimensions, failFor: make(map[string]bool)}
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.failFor[text] {
		return nil, fmt.Errorf("embedding unavailable")
	}
	vec := make([]float32, s.dims)
	for i := range vec {
		vec[i] = float32(len(text)%7) + float32(i)*0.001
	}
	return vec, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }

func sampleTools() []Tool {
	return []Tool{
		{
			ID: "bwa", Name: "BWA", Description: "Read aligner", HelpText: "Aligns reads",
			Category: "Mapping", InputFormats: []string{"fastq"}, OutputFormats: []string{"bam"},
		},
		{
			ID: "samtools_sort", Name: "Samtools Sort", Description: "Sorts alignments",
			Category: "SAM Tools", InputFormats: []string{"bam"}, OutputFormats: []string{"bam"},
		},
	}
}

func sampleWorkflows() []Workflow {
	return []Workflow{
		{
			ID: "wf-align", Name: "Alignment Pipeline", Description: "Align and sort reads",
			NumSteps: 2, IncludedTools: []string{"bwa", "samtools_sort"},
			Steps: []WorkflowStep{
				{StepNumber: 1, ToolID: "bwa"},
				{StepNumber: 2, ToolID: "samtools_sort"},
			},
		},
	}
}

func TestBuilder_BuildTools(t *testing.T) {
	engine := storage.NewMemoryEngine()
	builder := NewBuilder(engine, newStubEmbedder())

	require.NoError(t, builder.BuildTools(context.Background(), sampleTools()))

	tool, err := engine.GetNode("bwa")
	require.NoError(t, err)
	assert.Equal(t, "BWA", tool.StringProp(PropName))
	assert.Len(t, tool.Embedding(), EmbeddingDimensions)

	// Vocabulary nodes are name-keyed and deduplicated
	formats, err := engine.GetNodesByLabel(LabelFileFormat)
	require.NoError(t, err)
	assert.Len(t, formats, 2) // fastq, bam (shared between tools)

	categories, err := engine.GetNodesByLabel(LabelCategory)
	require.NoError(t, err)
	assert.Len(t, categories, 2)

	out, err := engine.GetOutgoingEdges("bwa")
	require.NoError(t, err)
	types := make(map[string]int)
	for _, e := range out {
		types[e.Type]++
	}
	assert.Equal(t, 1, types[EdgeAcceptsInput])
	assert.Equal(t, 1, types[EdgeProducesOutput])
	assert.Equal(t, 1, types[EdgeBelongsTo])
}

func TestBuilder_SkipsToolOnEmbeddingFailure(t *testing.T) {
	engine := storage.NewMemoryEngine()
	embedder := newStubEmbedder()
	tools := sampleTools()
	embedder.failFor[tools[0].EmbedText()] = true

	builder := NewBuilder(engine, embedder)
	require.NoError(t, builder.BuildTools(context.Background(), tools))

	_, err := engine.GetNode("bwa")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = engine.GetNode("samtools_sort")
	require.NoError(t, err)
}

func TestBuilder_BuildWorkflows(t *testing.T) {
	engine := storage.NewMemoryEngine()
	builder := NewBuilder(engine, newStubEmbedder())
	ctx := context.Background()

	require.NoError(t, builder.BuildTools(ctx, sampleTools()))
	require.NoError(t, builder.BuildWorkflows(ctx, sampleWorkflows()))

	wf, err := engine.GetNode("wf-align")
	require.NoError(t, err)
	numSteps, ok := wf.IntProp(PropNumSteps)
	require.True(t, ok)
	assert.Equal(t, 2, numSteps)
	assert.Len(t, wf.Embedding(), EmbeddingDimensions)

	// Step chain: HAS_STEP to both steps, NEXT_STEP between them
	step1, err := engine.GetNode(storage.NodeID(StepID("wf-align", 1)))
	require.NoError(t, err)
	assert.True(t, step1.HasLabel(LabelWorkflowStep))

	step1Out, err := engine.GetOutgoingEdges(step1.ID)
	require.NoError(t, err)
	var usesTool, nextStep bool
	for _, e := range step1Out {
		switch e.Type {
		case EdgeUsesTool:
			usesTool = true
			assert.Equal(t, storage.NodeID("bwa"), e.EndNode)
		case EdgeNextStep:
			nextStep = true
			assert.Equal(t, storage.NodeID(StepID("wf-align", 2)), e.EndNode)
		}
	}
	assert.True(t, usesTool)
	assert.True(t, nextStep)

	// Workflow membership edges
	wfOut, err := engine.GetOutgoingEdges("wf-align")
	require.NoError(t, err)
	includes := 0
	for _, e := range wfOut {
		if e.Type == EdgeIncludesTool {
			includes++
		}
	}
	assert.Equal(t, 2, includes)
}

func TestBuilder_RebuildIsIdempotent(t *testing.T) {
	engine := storage.NewMemoryEngine()
	builder := NewBuilder(engine, newStubEmbedder())
	ctx := context.Background()

	require.NoError(t, builder.BuildTools(ctx, sampleTools()))
	require.NoError(t, builder.BuildWorkflows(ctx, sampleWorkflows()))
	countAfterFirst := engine.NodeCount()

	require.NoError(t, builder.BuildTools(ctx, sampleTools()))
	require.NoError(t, builder.BuildWorkflows(ctx, sampleWorkflows()))

	assert.Equal(t, countAfterFirst, engine.NodeCount())

	out, err := engine.GetOutgoingEdges("wf-align")
	require.NoError(t, err)
	includes := 0
	for _, e := range out {
		if e.Type == EdgeIncludesTool {
			includes++
		}
	}
	assert.Equal(t, 2, includes, "rebuild must not duplicate edges")
}

func TestBuilder_BuildFromFiles(t *testing.T) {
	dir := t.TempDir()
	toolsPath := filepath.Join(dir, "tools.json")
	workflowsPath := filepath.Join(dir, "workflows.json")

	writeJSON(t, toolsPath, sampleTools())
	writeJSON(t, workflowsPath, sampleWorkflows())

	engine := storage.NewMemoryEngine()
	builder := NewBuilder(engine, newStubEmbedder())
	require.NoError(t, builder.Build(context.Background(), toolsPath, workflowsPath))

	assert.Greater(t, engine.NodeCount(), 0)

	t.Run("missing file", func(t *testing.T) {
		err := builder.Build(context.Background(), filepath.Join(dir, "absent.json"), workflowsPath)
		assert.Error(t, err)
	})
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}
