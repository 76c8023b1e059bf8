package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadgerEngine(t *testing.T) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestBadgerEngine_NodeRoundTrip(t *testing.T) {
	engine := newTestBadgerEngine(t)

	node := &Node{
		ID:     "tool-bwa",
		Labels: []string{"Tool"},
		Properties: map[string]any{
			"name":      "BWA",
			"embedding": []float32{0.1, 0.2, 0.3},
		},
	}
	require.NoError(t, engine.CreateNode(node))

	stored, err := engine.GetNode("tool-bwa")
	require.NoError(t, err)
	assert.Equal(t, node.ID, stored.ID)
	assert.Equal(t, []string{"Tool"}, stored.Labels)
	assert.Equal(t, "BWA", stored.Properties["name"])
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, stored.Embedding())
	assert.Equal(t, 1, engine.NodeCount())

	err = engine.CreateNode(&Node{ID: "tool-bwa"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestBadgerEngine_MergeNode(t *testing.T) {
	engine := newTestBadgerEngine(t)

	require.NoError(t, engine.MergeNode(&Node{
		ID:         "wf-1",
		Labels:     []string{"Workflow"},
		Properties: map[string]any{"name": "rna-seq"},
	}))
	require.NoError(t, engine.MergeNode(&Node{
		ID:         "wf-1",
		Labels:     []string{"Workflow"},
		Properties: map[string]any{"owner": "core"},
	}))

	stored, err := engine.GetNode("wf-1")
	require.NoError(t, err)
	assert.Equal(t, "rna-seq", stored.Properties["name"])
	assert.Equal(t, "core", stored.Properties["owner"])
	assert.Equal(t, 1, engine.NodeCount())
}

func TestBadgerEngine_LabelIndex(t *testing.T) {
	engine := newTestBadgerEngine(t)

	require.NoError(t, engine.CreateNode(&Node{ID: "t1", Labels: []string{"Tool"}}))
	require.NoError(t, engine.CreateNode(&Node{ID: "t2", Labels: []string{"Tool"}}))
	require.NoError(t, engine.CreateNode(&Node{ID: "w1", Labels: []string{"Workflow"}}))

	tools, err := engine.GetNodesByLabel("Tool")
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	workflows, err := engine.GetNodesByLabel("Workflow")
	require.NoError(t, err)
	assert.Len(t, workflows, 1)

	none, err := engine.GetNodesByLabel("Community")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBadgerEngine_EdgeAdjacency(t *testing.T) {
	engine := newTestBadgerEngine(t)

	require.NoError(t, engine.CreateNode(&Node{ID: "a"}))
	require.NoError(t, engine.CreateNode(&Node{ID: "b"}))
	require.NoError(t, engine.CreateEdge(&Edge{
		ID: "e1", StartNode: "a", EndNode: "b", Type: "SIMILAR_TO",
		Properties: map[string]any{"weight": 0.75},
	}))

	out, err := engine.GetOutgoingEdges("a")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0.75, out[0].Properties["weight"])

	in, err := engine.GetIncomingEdges("b")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, EdgeID("e1"), in[0].ID)

	err = engine.CreateEdge(&Edge{ID: "e2", StartNode: "a", EndNode: "ghost", Type: "REL"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerEngine_MergeEdge(t *testing.T) {
	engine := newTestBadgerEngine(t)

	require.NoError(t, engine.CreateNode(&Node{ID: "a"}))
	require.NoError(t, engine.CreateNode(&Node{ID: "b"}))

	require.NoError(t, engine.MergeEdge(&Edge{
		StartNode: "a", EndNode: "b", Type: "SIMILAR_TO",
		Properties: map[string]any{"weight": 0.8},
	}))
	require.NoError(t, engine.MergeEdge(&Edge{
		StartNode: "a", EndNode: "b", Type: "SIMILAR_TO",
		Properties: map[string]any{"weight": 0.95},
	}))

	out, err := engine.GetOutgoingEdges("a")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0.95, out[0].Properties["weight"])
}

func TestBadgerEngine_DetachDeleteByLabel(t *testing.T) {
	engine := newTestBadgerEngine(t)

	require.NoError(t, engine.CreateNode(&Node{ID: "t1", Labels: []string{"Tool"}}))
	require.NoError(t, engine.CreateNode(&Node{ID: "c1", Labels: []string{"Community"}}))
	require.NoError(t, engine.CreateNode(&Node{ID: "s1", Labels: []string{"SubCommunity"}}))
	require.NoError(t, engine.CreateEdge(&Edge{ID: "e1", StartNode: "t1", EndNode: "c1", Type: "IN_COMMUNITY"}))
	require.NoError(t, engine.CreateEdge(&Edge{ID: "e2", StartNode: "s1", EndNode: "c1", Type: "BELONGS_TO"}))

	deleted, err := engine.DetachDeleteByLabel("Community", "SubCommunity")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 1, engine.NodeCount())

	out, err := engine.GetOutgoingEdges("t1")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBadgerEngine_ClearProperties(t *testing.T) {
	engine := newTestBadgerEngine(t)

	require.NoError(t, engine.CreateNode(&Node{
		ID: "t1", Labels: []string{"Tool"},
		Properties: map[string]any{"community_id": "c_0", "name": "bwa"},
	}))

	touched, err := engine.ClearProperties("Tool", "community_id")
	require.NoError(t, err)
	assert.Equal(t, 1, touched)

	stored, err := engine.GetNode("t1")
	require.NoError(t, err)
	assert.NotContains(t, stored.Properties, "community_id")
	assert.Equal(t, "bwa", stored.Properties["name"])
}

func TestBadgerEngine_Persistence(t *testing.T) {
	dir := t.TempDir()

	engine, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	require.NoError(t, engine.CreateNode(&Node{ID: "t1", Labels: []string{"Tool"}}))
	require.NoError(t, engine.Close())

	reopened, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.NodeCount())
	stored, err := reopened.GetNode("t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tool"}, stored.Labels)
}

func TestBadgerEngine_Encryption(t *testing.T) {
	dir := t.TempDir()

	salt, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)
	require.Len(t, salt, 32)

	// Salt must be stable across loads
	again, err := LoadOrCreateSalt(dir)
	require.NoError(t, err)
	assert.Equal(t, salt, again)

	key := DeriveKey([]byte("correct horse battery staple"), salt)
	require.Len(t, key, 32)

	engine, err := NewBadgerEngineWithOptions(BadgerOptions{DataDir: dir, EncryptionKey: key})
	require.NoError(t, err)
	require.NoError(t, engine.CreateNode(&Node{ID: "secret", Labels: []string{"Tool"}}))
	require.NoError(t, engine.Close())

	// Wrong key length is rejected up front
	_, err = NewBadgerEngineWithOptions(BadgerOptions{DataDir: dir, EncryptionKey: []byte("short")})
	assert.Error(t, err)

	// Correct key reopens the data
	reopened, err := NewBadgerEngineWithOptions(BadgerOptions{DataDir: dir, EncryptionKey: key})
	require.NoError(t, err)
	defer reopened.Close()
	_, err = reopened.GetNode("secret")
	require.NoError(t, err)
}
