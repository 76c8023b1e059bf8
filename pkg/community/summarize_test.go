package community

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/storage"
)

// stubCompleter records prompts and returns canned responses.
type stubCompleter struct {
	prompts  []string
	response string
	err      error
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func seedSummaryFixture(t *testing.T, engine storage.Engine) {
	t.Helper()
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: CommunityNodeID(0), Labels: []string{catalog.LabelCommunity},
		Properties: map[string]any{catalog.PropCommunityID: 0},
	}))
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: "bwa", Labels: []string{catalog.LabelTool},
		Properties: map[string]any{catalog.PropName: "BWA", catalog.PropDescription: "Aligner"},
	}))
	require.NoError(t, engine.MergeEdge(&storage.Edge{
		StartNode: "bwa", EndNode: CommunityNodeID(0), Type: catalog.EdgeInCommunity,
	}))
}

func TestSummarizer_SummarizeAll(t *testing.T) {
	engine := storage.NewMemoryEngine()
	seedSummaryFixture(t, engine)

	completer := &stubCompleter{response: "Title: Read Alignment\nSummary: Tools that align reads."}
	summarizer := NewSummarizer(engine, completer, 50)

	require.NoError(t, summarizer.SummarizeAll(context.Background()))

	comm, err := engine.GetNode(CommunityNodeID(0))
	require.NoError(t, err)
	assert.Equal(t, "Read Alignment", comm.StringProp(catalog.PropName))
	assert.Equal(t, "Tools that align reads.", comm.StringProp(catalog.PropSummary))

	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], LevelTopic)
	assert.Contains(t, completer.prompts[0], "Tool: BWA - Aligner")
}

func TestSummarizer_GenerationFailureDegrades(t *testing.T) {
	engine := storage.NewMemoryEngine()
	seedSummaryFixture(t, engine)

	completer := &stubCompleter{err: fmt.Errorf("model offline")}
	summarizer := NewSummarizer(engine, completer, 50)

	require.NoError(t, summarizer.SummarizeAll(context.Background()))

	comm, err := engine.GetNode(CommunityNodeID(0))
	require.NoError(t, err)
	assert.Equal(t, "Error", comm.StringProp(catalog.PropName))
	assert.Equal(t, "Could not generate summary.", comm.StringProp(catalog.PropSummary))
}

func TestSummarizer_EmptyCommunity(t *testing.T) {
	engine := storage.NewMemoryEngine()
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: CommunityNodeID(1), Labels: []string{catalog.LabelCommunity},
	}))

	completer := &stubCompleter{response: "unused"}
	summarizer := NewSummarizer(engine, completer, 50)
	require.NoError(t, summarizer.SummarizeAll(context.Background()))

	comm, err := engine.GetNode(CommunityNodeID(1))
	require.NoError(t, err)
	assert.Equal(t, "Empty Community", comm.StringProp(catalog.PropName))
	assert.Equal(t, "No members found.", comm.StringProp(catalog.PropSummary))
	assert.Empty(t, completer.prompts, "no generation call for empty communities")
}

func TestSummarizer_MemberCap(t *testing.T) {
	engine := storage.NewMemoryEngine()
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: CommunityNodeID(0), Labels: []string{catalog.LabelCommunity},
	}))
	for i := 0; i < 10; i++ {
		id := storage.NodeID(fmt.Sprintf("tool-%02d", i))
		require.NoError(t, engine.MergeNode(&storage.Node{
			ID: id, Labels: []string{catalog.LabelTool},
			Properties: map[string]any{catalog.PropName: string(id), catalog.PropDescription: "d"},
		}))
		require.NoError(t, engine.MergeEdge(&storage.Edge{
			StartNode: id, EndNode: CommunityNodeID(0), Type: catalog.EdgeInCommunity,
		}))
	}

	completer := &stubCompleter{response: "Title: T\nSummary: S"}
	summarizer := NewSummarizer(engine, completer, 3)
	require.NoError(t, summarizer.SummarizeAll(context.Background()))

	require.Len(t, completer.prompts, 1)
	memberLines := 0
	for _, line := range strings.Split(completer.prompts[0], "\n") {
		if strings.HasPrefix(line, "Tool: ") {
			memberLines++
		}
	}
	assert.Equal(t, 3, memberLines)
}

func TestSummarizer_SubCommunityLevel(t *testing.T) {
	engine := storage.NewMemoryEngine()
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: SubCommunityNodeID("0_T_0"), Labels: []string{catalog.LabelSubCommunity},
	}))
	require.NoError(t, engine.MergeNode(&storage.Node{
		ID: "bwa", Labels: []string{catalog.LabelTool},
		Properties: map[string]any{catalog.PropName: "BWA", catalog.PropDescription: "Aligner"},
	}))
	require.NoError(t, engine.MergeEdge(&storage.Edge{
		StartNode: "bwa", EndNode: SubCommunityNodeID("0_T_0"), Type: catalog.EdgeInSubCommunity,
	}))

	completer := &stubCompleter{response: "Title: Aligners\nSummary: S"}
	summarizer := NewSummarizer(engine, completer, 50)
	require.NoError(t, summarizer.SummarizeAll(context.Background()))

	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], LevelSubGroup)
}
