// Package storage provides the property-graph store backing toolgraph.
//
// Two Engine implementations exist:
//   - MemoryEngine: thread-safe in-memory storage for tests and small datasets
//   - BadgerEngine: persistent disk-based storage using BadgerDB
//
// The store is the single source of truth for entities; in-memory graphs
// built by the projectors are ephemeral and rebuilt per run. All structural
// writes go through merge-upsert operations so a retried or re-run batch
// stage never duplicates nodes or edges.
package storage

import (
	"encoding/gob"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors returned by storage operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage is closed")
)

// NodeID uniquely identifies a node.
type NodeID string

// EdgeID uniquely identifies an edge.
type EdgeID string

// NewEdgeID generates a random edge id for edges created without one.
func NewEdgeID() EdgeID {
	return EdgeID(uuid.NewString())
}

// PropEmbedding is the node property key holding the embedding vector.
const PropEmbedding = "embedding"

// Node represents a labeled property-graph node.
//
// Entity ids double as node ids, which gives unique-constraint semantics
// for free: MergeNode keyed by ID can never create a duplicate entity.
type Node struct {
	ID         NodeID         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Edge represents a typed relationship between two nodes.
type Edge struct {
	ID         EdgeID         `json:"id"`
	StartNode  NodeID         `json:"start_node"`
	EndNode    NodeID         `json:"end_node"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Engine is the storage interface implemented by MemoryEngine and BadgerEngine.
//
// All methods are safe for concurrent use. Read operations may run with
// unlimited concurrency; the detection pipeline is the only writer and runs
// its stages sequentially.
type Engine interface {
	// CreateNode creates a new node. Fails with ErrAlreadyExists if the id is taken.
	CreateNode(node *Node) error

	// GetNode retrieves a node by id.
	GetNode(id NodeID) (*Node, error)

	// UpdateNode replaces an existing node.
	UpdateNode(node *Node) error

	// DeleteNode removes a node and all edges touching it.
	DeleteNode(id NodeID) error

	// MergeNode creates the node if absent, otherwise merges its labels and
	// properties onto the stored node. Create-if-absent semantics make
	// repeated pipeline runs converge rather than duplicate.
	MergeNode(node *Node) error

	// CreateEdge creates a new edge. Both endpoints must exist.
	CreateEdge(edge *Edge) error

	// MergeEdge creates the edge if no edge with the same
	// (start, type, end) triple exists, otherwise merges properties.
	MergeEdge(edge *Edge) error

	// GetNodesByLabel returns all nodes carrying the label.
	GetNodesByLabel(label string) ([]*Node, error)

	// GetOutgoingEdges returns edges starting at the node.
	GetOutgoingEdges(id NodeID) ([]*Edge, error)

	// GetIncomingEdges returns edges ending at the node.
	GetIncomingEdges(id NodeID) ([]*Edge, error)

	// DetachDeleteByLabel deletes every node carrying any of the labels,
	// together with all edges touching them, and returns the number of
	// nodes deleted. An empty match is a successful zero-count delete.
	DetachDeleteByLabel(labels ...string) (int, error)

	// ClearProperties removes the named properties from every node carrying
	// the label and returns the number of nodes touched.
	ClearProperties(label string, props ...string) (int, error)

	// NodeCount returns the total number of nodes.
	NodeCount() int

	// Close releases the engine's resources.
	Close() error
}

func init() {
	// Property values that cross the gob boundary in BadgerEngine.
	gob.Register([]float32{})
	gob.Register([]string{})
	gob.Register([]any{})
	gob.Register(map[string]any{})
	gob.Register(time.Time{})
}

// CopyNode returns a deep copy of a node.
// Engines hand out copies so callers can never mutate stored state.
func CopyNode(node *Node) *Node {
	if node == nil {
		return nil
	}
	copied := &Node{
		ID:        node.ID,
		Labels:    append([]string(nil), node.Labels...),
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
	}
	if node.Properties != nil {
		copied.Properties = make(map[string]any, len(node.Properties))
		for k, v := range node.Properties {
			copied.Properties[k] = v
		}
	}
	return copied
}

// CopyEdge returns a deep copy of an edge.
func CopyEdge(edge *Edge) *Edge {
	if edge == nil {
		return nil
	}
	copied := &Edge{
		ID:        edge.ID,
		StartNode: edge.StartNode,
		EndNode:   edge.EndNode,
		Type:      edge.Type,
		CreatedAt: edge.CreatedAt,
	}
	if edge.Properties != nil {
		copied.Properties = make(map[string]any, len(edge.Properties))
		for k, v := range edge.Properties {
			copied.Properties[k] = v
		}
	}
	return copied
}

// HasLabel reports whether the node carries the label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Embedding extracts the node's embedding vector, if any.
//
// Vectors round-trip through JSON fixtures as []any, so both the native
// []float32 form and the decoded generic forms are accepted.
func (n *Node) Embedding() []float32 {
	raw, ok := n.Properties[PropEmbedding]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []float32:
		return v
	case []float64:
		vec := make([]float32, len(v))
		for i, f := range v {
			vec[i] = float32(f)
		}
		return vec
	case []any:
		vec := make([]float32, len(v))
		for i, f := range v {
			switch n := f.(type) {
			case float64:
				vec[i] = float32(n)
			case float32:
				vec[i] = n
			default:
				return nil
			}
		}
		return vec
	default:
		return nil
	}
}

// StringProp returns a string property, or "" if absent or not a string.
func (n *Node) StringProp(key string) string {
	if v, ok := n.Properties[key].(string); ok {
		return v
	}
	return ""
}

// IntProp returns an int property, tolerating the numeric types that
// JSON and gob decoding produce. ok is false if absent or non-numeric.
func (n *Node) IntProp(key string) (int, bool) {
	switch v := n.Properties[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
