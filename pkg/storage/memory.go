// MemoryEngine is a thread-safe in-memory storage for testing and small datasets.
package storage

import (
	"sync"
	"time"
)

// MemoryEngine is an in-memory implementation of Engine.
// It's useful for:
// - Unit testing (no disk I/O)
// - Small catalogs that fit in RAM
// - Dry-run pipeline invocations
type MemoryEngine struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	// Indexes for efficient lookups
	nodesByLabel  map[string]map[NodeID]struct{}
	outgoingEdges map[NodeID]map[EdgeID]struct{}
	incomingEdges map[NodeID]map[EdgeID]struct{}

	closed bool
}

// NewMemoryEngine creates a new in-memory storage engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes:         make(map[NodeID]*Node),
		edges:         make(map[EdgeID]*Edge),
		nodesByLabel:  make(map[string]map[NodeID]struct{}),
		outgoingEdges: make(map[NodeID]map[EdgeID]struct{}),
		incomingEdges: make(map[NodeID]map[EdgeID]struct{}),
	}
}

// CreateNode creates a new node.
func (m *MemoryEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.nodes[node.ID]; exists {
		return ErrAlreadyExists
	}

	stored := CopyNode(node)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = stored.CreatedAt
	m.nodes[node.ID] = stored
	m.indexLabels(stored)

	return nil
}

// GetNode retrieves a node by ID.
func (m *MemoryEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	node, exists := m.nodes[id]
	if !exists {
		return nil, ErrNotFound
	}

	return CopyNode(node), nil
}

// UpdateNode replaces an existing node.
func (m *MemoryEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	existing, exists := m.nodes[node.ID]
	if !exists {
		return ErrNotFound
	}

	m.unindexLabels(existing)

	stored := CopyNode(node)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	m.nodes[node.ID] = stored
	m.indexLabels(stored)

	return nil
}

// MergeNode creates the node if absent, otherwise merges labels and properties.
func (m *MemoryEngine) MergeNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	existing, exists := m.nodes[node.ID]
	if !exists {
		stored := CopyNode(node)
		now := time.Now()
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		m.nodes[node.ID] = stored
		m.indexLabels(stored)
		return nil
	}

	merged := mergeNodeInto(existing, node)
	m.unindexLabels(existing)
	m.nodes[node.ID] = merged
	m.indexLabels(merged)

	return nil
}

// DeleteNode removes a node and all edges touching it.
func (m *MemoryEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	node, exists := m.nodes[id]
	if !exists {
		return ErrNotFound
	}

	m.detachDeleteLocked(node)
	return nil
}

// CreateEdge creates a new edge. Both endpoints must exist.
func (m *MemoryEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.StartNode == "" || edge.EndNode == "" {
		return ErrInvalidID
	}
	if edge.ID == "" {
		edge.ID = NewEdgeID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.edges[edge.ID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := m.nodes[edge.StartNode]; !exists {
		return ErrNotFound
	}
	if _, exists := m.nodes[edge.EndNode]; !exists {
		return ErrNotFound
	}

	stored := CopyEdge(edge)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.edges[edge.ID] = stored
	m.indexEdge(stored)

	return nil
}

// MergeEdge creates the edge unless one with the same (start, type, end)
// triple already exists, in which case properties are merged.
func (m *MemoryEngine) MergeEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.StartNode == "" || edge.EndNode == "" || edge.Type == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.nodes[edge.StartNode]; !exists {
		return ErrNotFound
	}
	if _, exists := m.nodes[edge.EndNode]; !exists {
		return ErrNotFound
	}

	// Match on the triple, not the id.
	for eid := range m.outgoingEdges[edge.StartNode] {
		existing := m.edges[eid]
		if existing.EndNode == edge.EndNode && existing.Type == edge.Type {
			for k, v := range edge.Properties {
				if existing.Properties == nil {
					existing.Properties = make(map[string]any)
				}
				existing.Properties[k] = v
			}
			return nil
		}
	}

	stored := CopyEdge(edge)
	if stored.ID == "" {
		stored.ID = EdgeID(string(edge.StartNode) + "|" + edge.Type + "|" + string(edge.EndNode))
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.edges[stored.ID] = stored
	m.indexEdge(stored)

	return nil
}

// GetNodesByLabel returns all nodes carrying the label.
func (m *MemoryEngine) GetNodesByLabel(label string) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	ids := m.nodesByLabel[label]
	nodes := make([]*Node, 0, len(ids))
	for id := range ids {
		nodes = append(nodes, CopyNode(m.nodes[id]))
	}
	return nodes, nil
}

// GetOutgoingEdges returns edges starting at the node.
func (m *MemoryEngine) GetOutgoingEdges(id NodeID) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edges := make([]*Edge, 0, len(m.outgoingEdges[id]))
	for eid := range m.outgoingEdges[id] {
		edges = append(edges, CopyEdge(m.edges[eid]))
	}
	return edges, nil
}

// GetIncomingEdges returns edges ending at the node.
func (m *MemoryEngine) GetIncomingEdges(id NodeID) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edges := make([]*Edge, 0, len(m.incomingEdges[id]))
	for eid := range m.incomingEdges[id] {
		edges = append(edges, CopyEdge(m.edges[eid]))
	}
	return edges, nil
}

// DetachDeleteByLabel deletes every node carrying any of the labels together
// with all edges touching them. Zero matches is a successful zero-count delete.
func (m *MemoryEngine) DetachDeleteByLabel(labels ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStorageClosed
	}

	targets := make(map[NodeID]struct{})
	for _, label := range labels {
		for id := range m.nodesByLabel[label] {
			targets[id] = struct{}{}
		}
	}

	for id := range targets {
		m.detachDeleteLocked(m.nodes[id])
	}
	return len(targets), nil
}

// ClearProperties removes the named properties from every node with the label.
func (m *MemoryEngine) ClearProperties(label string, props ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStorageClosed
	}

	touched := 0
	for id := range m.nodesByLabel[label] {
		node := m.nodes[id]
		changed := false
		for _, p := range props {
			if _, ok := node.Properties[p]; ok {
				delete(node.Properties, p)
				changed = true
			}
		}
		if changed {
			node.UpdatedAt = time.Now()
			touched++
		}
	}
	return touched, nil
}

// NodeCount returns the total number of nodes.
func (m *MemoryEngine) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Close marks the engine closed. Further operations fail with ErrStorageClosed.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// detachDeleteLocked removes a node and its edges. Caller holds the write lock.
func (m *MemoryEngine) detachDeleteLocked(node *Node) {
	for eid := range m.outgoingEdges[node.ID] {
		m.unindexEdge(m.edges[eid])
		delete(m.edges, eid)
	}
	for eid := range m.incomingEdges[node.ID] {
		m.unindexEdge(m.edges[eid])
		delete(m.edges, eid)
	}
	delete(m.outgoingEdges, node.ID)
	delete(m.incomingEdges, node.ID)

	m.unindexLabels(node)
	delete(m.nodes, node.ID)
}

func (m *MemoryEngine) indexLabels(node *Node) {
	for _, label := range node.Labels {
		if m.nodesByLabel[label] == nil {
			m.nodesByLabel[label] = make(map[NodeID]struct{})
		}
		m.nodesByLabel[label][node.ID] = struct{}{}
	}
}

func (m *MemoryEngine) unindexLabels(node *Node) {
	for _, label := range node.Labels {
		if m.nodesByLabel[label] != nil {
			delete(m.nodesByLabel[label], node.ID)
		}
	}
}

func (m *MemoryEngine) indexEdge(edge *Edge) {
	if m.outgoingEdges[edge.StartNode] == nil {
		m.outgoingEdges[edge.StartNode] = make(map[EdgeID]struct{})
	}
	m.outgoingEdges[edge.StartNode][edge.ID] = struct{}{}

	if m.incomingEdges[edge.EndNode] == nil {
		m.incomingEdges[edge.EndNode] = make(map[EdgeID]struct{})
	}
	m.incomingEdges[edge.EndNode][edge.ID] = struct{}{}
}

func (m *MemoryEngine) unindexEdge(edge *Edge) {
	if edge == nil {
		return
	}
	if m.outgoingEdges[edge.StartNode] != nil {
		delete(m.outgoingEdges[edge.StartNode], edge.ID)
	}
	if m.incomingEdges[edge.EndNode] != nil {
		delete(m.incomingEdges[edge.EndNode], edge.ID)
	}
}

// mergeNodeInto applies incoming labels and properties onto the stored node.
func mergeNodeInto(existing, incoming *Node) *Node {
	merged := CopyNode(existing)
	for _, label := range incoming.Labels {
		if !merged.HasLabel(label) {
			merged.Labels = append(merged.Labels, label)
		}
	}
	if len(incoming.Properties) > 0 && merged.Properties == nil {
		merged.Properties = make(map[string]any, len(incoming.Properties))
	}
	for k, v := range incoming.Properties {
		merged.Properties[k] = v
	}
	merged.UpdatedAt = time.Now()
	return merged
}
