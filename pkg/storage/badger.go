// BadgerEngine provides persistent disk-based storage using BadgerDB.
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization.
// Using single-byte prefixes for efficiency.
const (
	prefixNode          = byte(0x01) // node:nodeID -> Node
	prefixEdge          = byte(0x02) // edge:edgeID -> Edge
	prefixLabelIndex    = byte(0x03) // label:labelName:nodeID -> []byte{}
	prefixOutgoingIndex = byte(0x04) // outgoing:nodeID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:nodeID:edgeID -> []byte{}
	prefixTripleIndex   = byte(0x06) // triple:start:type:end -> edgeID (merge semantics)
)

// BadgerEngine is a persistent Engine implementation backed by BadgerDB.
//
// Features:
//   - ACID transactions for all operations
//   - Secondary indexes: labels, adjacency, (start, type, end) triples
//   - Optional AES encryption at rest
//   - Thread-safe concurrent access
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> gob(Node)
//   - Edges: 0x02 + edgeID -> gob(Edge)
//   - Label Index: 0x03 + label + 0x00 + nodeID -> empty
//   - Outgoing Index: 0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + nodeID + 0x00 + edgeID -> empty
//   - Triple Index: 0x06 + start + 0x00 + type + 0x00 + end -> edgeID
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
type BadgerEngine struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool

	// Cached count for O(1) stats (updated on create/delete)
	nodeCount atomic.Int64
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files. Required unless InMemory.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Useful for testing.
	InMemory bool

	// LowMemory enables memory-constrained settings.
	LowMemory bool

	// EncryptionKey is the 16, 24, or 32 byte key for AES encryption at rest.
	// Leave empty to disable encryption.
	EncryptionKey []byte
}

// NewBadgerEngine creates a persistent storage engine with default settings.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineWithOptions creates a persistent storage engine with explicit options.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	badgerOpts = badgerOpts.WithLogger(nil)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	if len(opts.EncryptionKey) > 0 {
		keyLen := len(opts.EncryptionKey)
		if keyLen != 16 && keyLen != 24 && keyLen != 32 {
			return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes (got %d bytes)", keyLen)
		}
		badgerOpts = badgerOpts.WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(32 << 20) // encryption requires an index cache
	}

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(8 << 20).
			WithValueLogFileSize(32 << 20).
			WithNumMemtables(1).
			WithNumLevelZeroTables(1).
			WithNumLevelZeroTablesStall(2).
			WithBlockCacheSize(8 << 20)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	engine := &BadgerEngine{db: db}

	// Recover the node count from the existing data.
	count, err := engine.countKeysWithPrefix([]byte{prefixNode})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count existing nodes: %w", err)
	}
	engine.nodeCount.Store(int64(count))

	return engine, nil
}

// CreateNode creates a new node in persistent storage.
func (b *BadgerEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	err := b.withUpdate(func(txn *badger.Txn) error {
		key := nodeKey(node.ID)
		if _, err := txn.Get(key); err == nil {
			return ErrAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		stored := CopyNode(node)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
		stored.UpdatedAt = stored.CreatedAt
		return b.putNode(txn, stored)
	})
	if err == nil {
		b.nodeCount.Add(1)
	}
	return err
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var node *Node
	err := b.withView(func(txn *badger.Txn) error {
		var err error
		node, err = b.readNode(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// UpdateNode replaces an existing node.
func (b *BadgerEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	return b.withUpdate(func(txn *badger.Txn) error {
		existing, err := b.readNode(txn, node.ID)
		if err != nil {
			return err
		}

		for _, label := range existing.Labels {
			if err := txn.Delete(labelIndexKey(label, node.ID)); err != nil {
				return err
			}
		}

		stored := CopyNode(node)
		stored.CreatedAt = existing.CreatedAt
		stored.UpdatedAt = time.Now()
		return b.putNode(txn, stored)
	})
}

// MergeNode creates the node if absent, otherwise merges labels and properties.
func (b *BadgerEngine) MergeNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	created := false
	err := b.withUpdate(func(txn *badger.Txn) error {
		existing, err := b.readNode(txn, node.ID)
		if err == ErrNotFound {
			created = true
			stored := CopyNode(node)
			now := time.Now()
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = now
			}
			stored.UpdatedAt = now
			return b.putNode(txn, stored)
		}
		if err != nil {
			return err
		}

		merged := mergeNodeInto(existing, node)
		return b.putNode(txn, merged)
	})
	if err == nil && created {
		b.nodeCount.Add(1)
	}
	return err
}

// DeleteNode removes a node and all edges touching it.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}

	err := b.withUpdate(func(txn *badger.Txn) error {
		node, err := b.readNode(txn, id)
		if err != nil {
			return err
		}
		return b.detachDeleteNode(txn, node)
	})
	if err == nil {
		b.nodeCount.Add(-1)
	}
	return err
}

// CreateEdge creates a new edge. Both endpoints must exist.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.StartNode == "" || edge.EndNode == "" {
		return ErrInvalidID
	}
	if edge.ID == "" {
		edge.ID = NewEdgeID()
	}

	return b.withUpdate(func(txn *badger.Txn) error {
		if _, err := txn.Get(edgeKey(edge.ID)); err == nil {
			return ErrAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := b.requireNode(txn, edge.StartNode); err != nil {
			return err
		}
		if err := b.requireNode(txn, edge.EndNode); err != nil {
			return err
		}

		stored := CopyEdge(edge)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
		return b.putEdge(txn, stored)
	})
}

// MergeEdge creates the edge unless one with the same (start, type, end)
// triple already exists, in which case properties are merged.
func (b *BadgerEngine) MergeEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.StartNode == "" || edge.EndNode == "" || edge.Type == "" {
		return ErrInvalidID
	}

	return b.withUpdate(func(txn *badger.Txn) error {
		if err := b.requireNode(txn, edge.StartNode); err != nil {
			return err
		}
		if err := b.requireNode(txn, edge.EndNode); err != nil {
			return err
		}

		tripleKey := tripleIndexKey(edge.StartNode, edge.Type, edge.EndNode)
		item, err := txn.Get(tripleKey)
		if err == nil {
			// Existing triple: merge properties onto the stored edge.
			var existingID EdgeID
			if err := item.Value(func(val []byte) error {
				existingID = EdgeID(val)
				return nil
			}); err != nil {
				return err
			}
			existing, err := b.readEdge(txn, existingID)
			if err != nil {
				return err
			}
			if len(edge.Properties) > 0 {
				if existing.Properties == nil {
					existing.Properties = make(map[string]any, len(edge.Properties))
				}
				for k, v := range edge.Properties {
					existing.Properties[k] = v
				}
				data, err := encodeEdge(existing)
				if err != nil {
					return err
				}
				return txn.Set(edgeKey(existing.ID), data)
			}
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		stored := CopyEdge(edge)
		if stored.ID == "" {
			stored.ID = EdgeID(string(edge.StartNode) + "|" + edge.Type + "|" + string(edge.EndNode))
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
		return b.putEdge(txn, stored)
	})
}

// GetNodesByLabel returns all nodes carrying the label.
func (b *BadgerEngine) GetNodesByLabel(label string) ([]*Node, error) {
	var nodes []*Node
	err := b.withView(func(txn *badger.Txn) error {
		prefix := labelIndexPrefix(label)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := NodeID(it.Item().Key()[len(prefix):])
			node, err := b.readNode(txn, id)
			if err != nil {
				return fmt.Errorf("label index points at missing node %s: %w", id, err)
			}
			nodes = append(nodes, node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetOutgoingEdges returns edges starting at the node.
func (b *BadgerEngine) GetOutgoingEdges(id NodeID) ([]*Edge, error) {
	return b.edgesByAdjacency(outgoingIndexPrefix(id))
}

// GetIncomingEdges returns edges ending at the node.
func (b *BadgerEngine) GetIncomingEdges(id NodeID) ([]*Edge, error) {
	return b.edgesByAdjacency(incomingIndexPrefix(id))
}

// DetachDeleteByLabel deletes every node carrying any of the labels together
// with all edges touching them. Zero matches is a successful zero-count delete.
func (b *BadgerEngine) DetachDeleteByLabel(labels ...string) (int, error) {
	// Collect ids first; deleting while iterating the same index is unsafe.
	targets := make(map[NodeID]struct{})
	err := b.withView(func(txn *badger.Txn) error {
		for _, label := range labels {
			prefix := labelIndexPrefix(label)
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			for it.Rewind(); it.Valid(); it.Next() {
				targets[NodeID(it.Item().Key()[len(prefix):])] = struct{}{}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for id := range targets {
		err := b.withUpdate(func(txn *badger.Txn) error {
			node, err := b.readNode(txn, id)
			if err != nil {
				return err
			}
			return b.detachDeleteNode(txn, node)
		})
		if err != nil {
			return deleted, fmt.Errorf("detach delete %s: %w", id, err)
		}
		b.nodeCount.Add(-1)
		deleted++
	}
	return deleted, nil
}

// ClearProperties removes the named properties from every node with the label.
func (b *BadgerEngine) ClearProperties(label string, props ...string) (int, error) {
	nodes, err := b.GetNodesByLabel(label)
	if err != nil {
		return 0, err
	}

	touched := 0
	for _, node := range nodes {
		changed := false
		for _, p := range props {
			if _, ok := node.Properties[p]; ok {
				delete(node.Properties, p)
				changed = true
			}
		}
		if !changed {
			continue
		}
		node.UpdatedAt = time.Now()
		err := b.withUpdate(func(txn *badger.Txn) error {
			data, err := encodeNode(node)
			if err != nil {
				return err
			}
			return txn.Set(nodeKey(node.ID), data)
		})
		if err != nil {
			return touched, err
		}
		touched++
	}
	return touched, nil
}

// NodeCount returns the total number of nodes. O(1).
func (b *BadgerEngine) NodeCount() int {
	return int(b.nodeCount.Load())
}

// Close closes the underlying BadgerDB.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// ============================================================================
// Transaction helpers
// ============================================================================

func (b *BadgerEngine) ensureOpen() error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrStorageClosed
	}
	return nil
}

func (b *BadgerEngine) withView(fn func(txn *badger.Txn) error) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.View(fn)
}

func (b *BadgerEngine) withUpdate(fn func(txn *badger.Txn) error) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.Update(fn)
}

func (b *BadgerEngine) requireNode(txn *badger.Txn, id NodeID) error {
	_, err := txn.Get(nodeKey(id))
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	return err
}

func (b *BadgerEngine) readNode(txn *badger.Txn, id NodeID) (*Node, error) {
	item, err := txn.Get(nodeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var node *Node
	err = item.Value(func(val []byte) error {
		node, err = decodeNode(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (b *BadgerEngine) readEdge(txn *badger.Txn, id EdgeID) (*Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var edge *Edge
	err = item.Value(func(val []byte) error {
		edge, err = decodeEdge(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// putNode writes the node and its label index entries.
func (b *BadgerEngine) putNode(txn *badger.Txn, node *Node) error {
	data, err := encodeNode(node)
	if err != nil {
		return fmt.Errorf("failed to encode node: %w", err)
	}
	if err := txn.Set(nodeKey(node.ID), data); err != nil {
		return err
	}
	for _, label := range node.Labels {
		if err := txn.Set(labelIndexKey(label, node.ID), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// putEdge writes the edge and its adjacency and triple index entries.
func (b *BadgerEngine) putEdge(txn *badger.Txn, edge *Edge) error {
	data, err := encodeEdge(edge)
	if err != nil {
		return fmt.Errorf("failed to encode edge: %w", err)
	}
	if err := txn.Set(edgeKey(edge.ID), data); err != nil {
		return err
	}
	if err := txn.Set(outgoingIndexKey(edge.StartNode, edge.ID), []byte{}); err != nil {
		return err
	}
	if err := txn.Set(incomingIndexKey(edge.EndNode, edge.ID), []byte{}); err != nil {
		return err
	}
	return txn.Set(tripleIndexKey(edge.StartNode, edge.Type, edge.EndNode), []byte(edge.ID))
}

// deleteEdge removes the edge and all its index entries.
func (b *BadgerEngine) deleteEdge(txn *badger.Txn, edge *Edge) error {
	if err := txn.Delete(edgeKey(edge.ID)); err != nil {
		return err
	}
	if err := txn.Delete(outgoingIndexKey(edge.StartNode, edge.ID)); err != nil {
		return err
	}
	if err := txn.Delete(incomingIndexKey(edge.EndNode, edge.ID)); err != nil {
		return err
	}
	return txn.Delete(tripleIndexKey(edge.StartNode, edge.Type, edge.EndNode))
}

// detachDeleteNode removes the node, its label entries, and every touching edge.
func (b *BadgerEngine) detachDeleteNode(txn *badger.Txn, node *Node) error {
	for _, prefix := range [][]byte{outgoingIndexPrefix(node.ID), incomingIndexPrefix(node.ID)} {
		var edgeIDs []EdgeID
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		for it.Rewind(); it.Valid(); it.Next() {
			edgeIDs = append(edgeIDs, EdgeID(it.Item().Key()[len(prefix):]))
		}
		it.Close()

		for _, eid := range edgeIDs {
			edge, err := b.readEdge(txn, eid)
			if err == ErrNotFound {
				continue // already removed via the opposite direction
			}
			if err != nil {
				return err
			}
			if err := b.deleteEdge(txn, edge); err != nil {
				return err
			}
		}
	}

	for _, label := range node.Labels {
		if err := txn.Delete(labelIndexKey(label, node.ID)); err != nil {
			return err
		}
	}
	return txn.Delete(nodeKey(node.ID))
}

func (b *BadgerEngine) edgesByAdjacency(prefix []byte) ([]*Edge, error) {
	var edges []*Edge
	err := b.withView(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			edge, err := b.readEdge(txn, EdgeID(it.Item().Key()[len(prefix):]))
			if err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (b *BadgerEngine) countKeysWithPrefix(prefix []byte) (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: false})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

// labelIndexKey format: prefix + label + 0x00 + nodeID
func labelIndexKey(label string, nodeID NodeID) []byte {
	key := make([]byte, 0, 1+len(label)+1+len(nodeID))
	key = append(key, prefixLabelIndex)
	key = append(key, []byte(label)...)
	key = append(key, 0x00)
	key = append(key, []byte(nodeID)...)
	return key
}

func labelIndexPrefix(label string) []byte {
	key := make([]byte, 0, 1+len(label)+1)
	key = append(key, prefixLabelIndex)
	key = append(key, []byte(label)...)
	key = append(key, 0x00)
	return key
}

func outgoingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1+len(edgeID))
	key = append(key, prefixOutgoingIndex)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	key = append(key, []byte(edgeID)...)
	return key
}

func outgoingIndexPrefix(nodeID NodeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1)
	key = append(key, prefixOutgoingIndex)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

func incomingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1+len(edgeID))
	key = append(key, prefixIncomingIndex)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	key = append(key, []byte(edgeID)...)
	return key
}

func incomingIndexPrefix(nodeID NodeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1)
	key = append(key, prefixIncomingIndex)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

// tripleIndexKey format: prefix + start + 0x00 + type + 0x00 + end
func tripleIndexKey(start NodeID, edgeType string, end NodeID) []byte {
	key := make([]byte, 0, 1+len(start)+1+len(edgeType)+1+len(end))
	key = append(key, prefixTripleIndex)
	key = append(key, []byte(start)...)
	key = append(key, 0x00)
	key = append(key, []byte(edgeType)...)
	key = append(key, 0x00)
	key = append(key, []byte(end)...)
	return key
}

// ============================================================================
// Value encoding (gob)
// ============================================================================

func encodeNode(node *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(node); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (*Node, error) {
	var node Node
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&node); err != nil {
		return nil, err
	}
	return &node, nil
}

func encodeEdge(edge *Edge) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(edge); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEdge(data []byte) (*Edge, error) {
	var edge Edge
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&edge); err != nil {
		return nil, err
	}
	return &edge, nil
}
