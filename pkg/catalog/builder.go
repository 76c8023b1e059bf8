package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/runeward/toolgraph/pkg/embed"
	"github.com/runeward/toolgraph/pkg/storage"
)

// Builder loads extracted tool and workflow JSON and upserts the catalog
// graph. All writes use merge semantics so repeated builds converge
// instead of duplicating nodes or edges.
type Builder struct {
	engine   storage.Engine
	embedder embed.Embedder
}

// NewBuilder creates a catalog builder.
func NewBuilder(engine storage.Engine, embedder embed.Embedder) *Builder {
	return &Builder{engine: engine, embedder: embedder}
}

// Build loads both data files and constructs the full catalog graph.
func (b *Builder) Build(ctx context.Context, toolsPath, workflowsPath string) error {
	tools, err := loadJSON[[]Tool](toolsPath)
	if err != nil {
		return fmt.Errorf("load tools: %w", err)
	}
	workflows, err := loadJSON[[]Workflow](workflowsPath)
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}

	log.Printf("📦 Building catalog graph: %d tools, %d workflows", len(tools), len(workflows))

	if err := b.BuildTools(ctx, tools); err != nil {
		return err
	}
	if err := b.BuildWorkflows(ctx, workflows); err != nil {
		return err
	}

	log.Printf("✅ Catalog graph build complete (%d nodes)", b.engine.NodeCount())
	return nil
}

// BuildTools upserts tool nodes with embeddings, plus their category and
// file format vocabulary edges. A tool whose embedding cannot be
// generated is skipped entirely.
func (b *Builder) BuildTools(ctx context.Context, tools []Tool) error {
	skipped := 0
	for i := range tools {
		tool := &tools[i]
		if tool.ID == "" {
			continue
		}

		embedding, err := b.embedder.Embed(ctx, tool.EmbedText())
		if err != nil || len(embedding) == 0 {
			log.Printf("⚠️  Skipping tool %s: embedding failed: %v", tool.ID, err)
			skipped++
			continue
		}

		err = b.engine.MergeNode(&storage.Node{
			ID:     storage.NodeID(tool.ID),
			Labels: []string{LabelTool},
			Properties: map[string]any{
				PropName:        tool.Name,
				PropDescription: tool.Description,
				PropEmbedding:   embedding,
			},
		})
		if err != nil {
			return fmt.Errorf("merge tool %s: %w", tool.ID, err)
		}

		if tool.Category != "" {
			if err := b.mergeVocabularyEdge(tool.ID, LabelCategory, tool.Category, EdgeBelongsTo); err != nil {
				return err
			}
		}
		for _, format := range tool.InputFormats {
			if format == "" {
				continue
			}
			if err := b.mergeVocabularyEdge(tool.ID, LabelFileFormat, format, EdgeAcceptsInput); err != nil {
				return err
			}
		}
		for _, format := range tool.OutputFormats {
			if format == "" {
				continue
			}
			if err := b.mergeVocabularyEdge(tool.ID, LabelFileFormat, format, EdgeProducesOutput); err != nil {
				return err
			}
		}
	}

	if skipped > 0 {
		log.Printf("⚠️  Skipped %d tools with failed embeddings", skipped)
	}
	return nil
}

// BuildWorkflows upserts workflow nodes, their ordered step chains, and
// tool membership edges. A workflow whose embedding fails is still
// created, it just cannot participate in semantic projections.
func (b *Builder) BuildWorkflows(ctx context.Context, workflows []Workflow) error {
	for i := range workflows {
		wf := &workflows[i]
		if wf.ID == "" {
			continue
		}

		props := map[string]any{
			PropName:        wf.Name,
			PropDescription: wf.Description,
			PropNumSteps:    wf.NumSteps,
		}
		if embedding, err := b.embedder.Embed(ctx, wf.EmbedText()); err == nil && len(embedding) > 0 {
			props[PropEmbedding] = embedding
		} else {
			log.Printf("⚠️  Workflow %s has no embedding: %v", wf.ID, err)
		}

		err := b.engine.MergeNode(&storage.Node{
			ID:         storage.NodeID(wf.ID),
			Labels:     []string{LabelWorkflow},
			Properties: props,
		})
		if err != nil {
			return fmt.Errorf("merge workflow %s: %w", wf.ID, err)
		}

		if err := b.buildSteps(wf); err != nil {
			return err
		}

		for _, toolID := range wf.IncludedTools {
			if toolID == "" {
				continue
			}
			if _, err := b.engine.GetNode(storage.NodeID(toolID)); err != nil {
				continue // tool was skipped or never extracted
			}
			err := b.engine.MergeEdge(&storage.Edge{
				StartNode: storage.NodeID(wf.ID),
				EndNode:   storage.NodeID(toolID),
				Type:      EdgeIncludesTool,
			})
			if err != nil {
				return fmt.Errorf("merge INCLUDES_TOOL %s->%s: %w", wf.ID, toolID, err)
			}
		}
	}
	return nil
}

// buildSteps creates the step chain: workflow to each step, step to its
// tool, and successor links between consecutive steps.
func (b *Builder) buildSteps(wf *Workflow) error {
	var prevStepID string
	for _, step := range wf.Steps {
		stepID := StepID(wf.ID, step.StepNumber)
		err := b.engine.MergeNode(&storage.Node{
			ID:     storage.NodeID(stepID),
			Labels: []string{LabelWorkflowStep},
			Properties: map[string]any{
				PropStepNumber: step.StepNumber,
				PropWorkflowID: wf.ID,
				PropAnnotation: step.Annotation,
			},
		})
		if err != nil {
			return fmt.Errorf("merge step %s: %w", stepID, err)
		}

		err = b.engine.MergeEdge(&storage.Edge{
			StartNode: storage.NodeID(wf.ID),
			EndNode:   storage.NodeID(stepID),
			Type:      EdgeHasStep,
		})
		if err != nil {
			return fmt.Errorf("merge HAS_STEP %s->%s: %w", wf.ID, stepID, err)
		}

		if step.ToolID != "" {
			if _, err := b.engine.GetNode(storage.NodeID(step.ToolID)); err == nil {
				err = b.engine.MergeEdge(&storage.Edge{
					StartNode: storage.NodeID(stepID),
					EndNode:   storage.NodeID(step.ToolID),
					Type:      EdgeUsesTool,
				})
				if err != nil {
					return fmt.Errorf("merge USES_TOOL %s->%s: %w", stepID, step.ToolID, err)
				}
			}
		}

		if prevStepID != "" {
			err = b.engine.MergeEdge(&storage.Edge{
				StartNode: storage.NodeID(prevStepID),
				EndNode:   storage.NodeID(stepID),
				Type:      EdgeNextStep,
			})
			if err != nil {
				return fmt.Errorf("merge NEXT_STEP %s->%s: %w", prevStepID, stepID, err)
			}
		}
		prevStepID = stepID
	}
	return nil
}

// mergeVocabularyEdge upserts a name-keyed vocabulary node (category or
// file format) and links the tool to it.
func (b *Builder) mergeVocabularyEdge(toolID, label, name, edgeType string) error {
	vocabID := label + ":" + name
	err := b.engine.MergeNode(&storage.Node{
		ID:         storage.NodeID(vocabID),
		Labels:     []string{label},
		Properties: map[string]any{PropName: name},
	})
	if err != nil {
		return fmt.Errorf("merge %s %q: %w", label, name, err)
	}

	err = b.engine.MergeEdge(&storage.Edge{
		StartNode: storage.NodeID(toolID),
		EndNode:   storage.NodeID(vocabID),
		Type:      edgeType,
	})
	if err != nil {
		return fmt.Errorf("merge %s %s->%s: %w", edgeType, toolID, vocabID, err)
	}
	return nil
}

func loadJSON[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}
