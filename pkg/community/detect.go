package community

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/storage"
)

// Assignment is one member's placement in the two-level hierarchy.
type Assignment struct {
	MemberID       string
	MemberType     string // TypeTool or TypeWorkflow
	CommunityID    int
	SubCommunityID string
}

// FormatSubCommunityID derives the composite sub-community id. The
// parent community id prefixes it so every id is globally unique.
func FormatSubCommunityID(parent int, memberType string, localIndex int) string {
	tag := "T"
	if memberType == TypeWorkflow {
		tag = "W"
	}
	return fmt.Sprintf("%d_%s_%d", parent, tag, localIndex)
}

// CommunityNodeID returns the store node id for a level-1 community.
func CommunityNodeID(id int) storage.NodeID {
	return storage.NodeID(catalog.LabelCommunity + ":" + strconv.Itoa(id))
}

// SubCommunityNodeID returns the store node id for a level-2 sub-community.
func SubCommunityNodeID(id string) storage.NodeID {
	return storage.NodeID(catalog.LabelSubCommunity + ":" + id)
}

// Options tunes the detection pipeline resolutions.
type Options struct {
	// ResolutionLevel1 drives the broad universal partition.
	ResolutionLevel1 float64

	// ResolutionLevel2Tools drives tool sub-communities. Higher than
	// level 1 to get finer functional grain.
	ResolutionLevel2Tools float64

	// ResolutionLevel2Workflows drives workflow sub-communities.
	ResolutionLevel2Workflows float64
}

// DefaultOptions returns the standard resolutions.
func DefaultOptions() Options {
	return Options{
		ResolutionLevel1:          1.0,
		ResolutionLevel2Tools:     1.2,
		ResolutionLevel2Workflows: 1.0,
	}
}

// Detector runs two-level hierarchical community detection.
//
// Level 1 partitions the universal semantic graph (tools and workflows
// together) into broad topic communities. Level 2 refines each
// community separately: tools through the multi-source similarity
// graph, workflows through the induced universal subgraph.
//
// A rebuild is destructive-then-idempotent: all prior community
// structure is removed before the new partition is computed, so reruns
// converge and no stale membership survives.
type Detector struct {
	engine      storage.Engine
	universal   *UniversalProjector
	tools       *SimilarityProjector
	partitioner Partitioner
	opts        Options
}

// NewDetector creates a detector.
func NewDetector(engine storage.Engine, universal *UniversalProjector, tools *SimilarityProjector, partitioner Partitioner, opts Options) *Detector {
	return &Detector{
		engine:      engine,
		universal:   universal,
		tools:       tools,
		partitioner: partitioner,
		opts:        opts,
	}
}

// Run executes the full detection pipeline. An empty projected graph is
// a warning, not an error. Any store write failure aborts the run.
func (d *Detector) Run(ctx context.Context) ([]Assignment, error) {
	log.Printf("🔍 Starting hierarchical community detection")

	if err := d.cleanup(); err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}

	univGraph, err := d.universal.Project()
	if err != nil {
		return nil, fmt.Errorf("project universal graph: %w", err)
	}

	partition := d.partitioner.Partition(univGraph, d.opts.ResolutionLevel1)
	if len(partition) == 0 {
		log.Printf("⚠️  Universal graph is empty, no communities to detect")
		return nil, nil
	}

	communities := groupByCommunity(partition)
	log.Printf("🔍 [Level 1] Found %d communities", len(communities))

	var assignments []Assignment
	for _, commID := range sortedKeys(communities) {
		members := communities[commID]
		log.Printf("🔍 Processing community %d (%d tools, %d workflows)",
			commID, len(members.tools), len(members.workflows))

		toolAssignments, err := d.refineTools(commID, members.tools)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, toolAssignments...)

		assignments = append(assignments, d.refineWorkflows(univGraph, commID, members.workflows)...)
	}

	if err := d.persist(ctx, assignments); err != nil {
		return nil, fmt.Errorf("persist communities: %w", err)
	}

	log.Printf("✅ Hierarchical detection complete: %d member assignments", len(assignments))
	return assignments, nil
}

func (d *Detector) cleanup() error {
	deleted, err := d.engine.DetachDeleteByLabel(catalog.LabelCommunity, catalog.LabelSubCommunity)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("🧹 Removed %d existing community nodes", deleted)
	}

	for _, label := range []string{catalog.LabelTool, catalog.LabelWorkflow} {
		if _, err := d.engine.ClearProperties(label, catalog.PropCommunityID, catalog.PropSubCommunityID); err != nil {
			return err
		}
	}
	return nil
}

// refineTools partitions a community's tools on the multi-source
// similarity graph restricted to those tools.
func (d *Detector) refineTools(commID int, toolIDs []string) ([]Assignment, error) {
	if len(toolIDs) == 0 {
		return nil, nil
	}

	filter := make(map[string]struct{}, len(toolIDs))
	for _, id := range toolIDs {
		filter[id] = struct{}{}
	}

	toolGraph, err := d.tools.Project(filter)
	if err != nil {
		return nil, fmt.Errorf("project tool graph for community %d: %w", commID, err)
	}

	partition := d.partitioner.Partition(toolGraph, d.opts.ResolutionLevel2Tools)

	assignments := make([]Assignment, 0, len(partition))
	for _, toolID := range sortedKeysStr(partition) {
		assignments = append(assignments, Assignment{
			MemberID:       toolID,
			MemberType:     TypeTool,
			CommunityID:    commID,
			SubCommunityID: FormatSubCommunityID(commID, TypeTool, partition[toolID]),
		})
	}
	return assignments, nil
}

// refineWorkflows partitions a community's workflows on the universal
// graph restricted to those workflows.
func (d *Detector) refineWorkflows(univGraph *Graph, commID int, workflowIDs []string) []Assignment {
	if len(workflowIDs) == 0 {
		return nil
	}

	keys := make([]string, len(workflowIDs))
	for i, id := range workflowIDs {
		keys[i] = TypeWorkflow + ":" + id
	}

	subgraph := univGraph.InducedSubgraph(keys)
	partition := d.partitioner.Partition(subgraph, d.opts.ResolutionLevel2Workflows)

	assignments := make([]Assignment, 0, len(partition))
	for _, key := range sortedKeysStr(partition) {
		workflowID := strings.SplitN(key, ":", 2)[1]
		assignments = append(assignments, Assignment{
			MemberID:       workflowID,
			MemberType:     TypeWorkflow,
			CommunityID:    commID,
			SubCommunityID: FormatSubCommunityID(commID, TypeWorkflow, partition[key]),
		})
	}
	return assignments
}

// persist writes membership properties onto member nodes and upserts the
// community and sub-community structure. All writes use merge semantics
// so reruns converge rather than duplicate.
func (d *Detector) persist(ctx context.Context, assignments []Assignment) error {
	commSizes := make(map[int]int)
	subSizes := make(map[string]int)
	for _, a := range assignments {
		commSizes[a.CommunityID]++
		subSizes[a.SubCommunityID]++
	}

	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return err
		}

		memberLabel := catalog.LabelTool
		if a.MemberType == TypeWorkflow {
			memberLabel = catalog.LabelWorkflow
		}

		err := d.engine.MergeNode(&storage.Node{
			ID:     storage.NodeID(a.MemberID),
			Labels: []string{memberLabel},
			Properties: map[string]any{
				catalog.PropCommunityID:    a.CommunityID,
				catalog.PropSubCommunityID: a.SubCommunityID,
			},
		})
		if err != nil {
			return fmt.Errorf("update member %s: %w", a.MemberID, err)
		}

		commNode := CommunityNodeID(a.CommunityID)
		err = d.engine.MergeNode(&storage.Node{
			ID:         commNode,
			Labels:     []string{catalog.LabelCommunity},
			Properties: map[string]any{
				catalog.PropCommunityID: a.CommunityID,
				catalog.PropSize:        commSizes[a.CommunityID],
			},
		})
		if err != nil {
			return fmt.Errorf("merge community %d: %w", a.CommunityID, err)
		}

		subNode := SubCommunityNodeID(a.SubCommunityID)
		err = d.engine.MergeNode(&storage.Node{
			ID:         subNode,
			Labels:     []string{catalog.LabelSubCommunity},
			Properties: map[string]any{
				catalog.PropSubCommunityID: a.SubCommunityID,
				catalog.PropSize:           subSizes[a.SubCommunityID],
			},
		})
		if err != nil {
			return fmt.Errorf("merge sub-community %s: %w", a.SubCommunityID, err)
		}

		edges := []*storage.Edge{
			{StartNode: storage.NodeID(a.MemberID), EndNode: commNode, Type: catalog.EdgeInCommunity},
			{StartNode: storage.NodeID(a.MemberID), EndNode: subNode, Type: catalog.EdgeInSubCommunity},
			{StartNode: subNode, EndNode: commNode, Type: catalog.EdgeBelongsTo},
		}
		for _, edge := range edges {
			if err := d.engine.MergeEdge(edge); err != nil {
				return fmt.Errorf("merge %s edge for %s: %w", edge.Type, a.MemberID, err)
			}
		}
	}
	return nil
}

type communityMembers struct {
	tools     []string
	workflows []string
}

// groupByCommunity splits a universal partition by community, parsing
// the type-prefixed node keys back into raw ids.
func groupByCommunity(partition map[string]int) map[int]*communityMembers {
	communities := make(map[int]*communityMembers)
	for key, commID := range partition {
		members, ok := communities[commID]
		if !ok {
			members = &communityMembers{}
			communities[commID] = members
		}

		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case TypeTool:
			members.tools = append(members.tools, parts[1])
		case TypeWorkflow:
			members.workflows = append(members.workflows, parts[1])
		}
	}

	for _, members := range communities {
		sort.Strings(members.tools)
		sort.Strings(members.workflows)
	}
	return communities
}

func sortedKeys(m map[int]*communityMembers) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedKeysStr(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
