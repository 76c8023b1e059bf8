package community

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/genai"
	"github.com/runeward/toolgraph/pkg/storage"
)

// Summary levels passed to the generation prompt.
const (
	LevelTopic    = "High-Level Topic"
	LevelSubGroup = "Functional Sub-Group"
)

// Summarizer generates titles and summaries for detected communities.
//
// Generation failures degrade gracefully: a community whose generation
// fails keeps placeholder values and the run continues.
type Summarizer struct {
	engine    storage.Engine
	completer genai.Completer

	// memberCap bounds how many member lines go into each prompt.
	memberCap int
}

// NewSummarizer creates a summarizer. memberCap <= 0 defaults to 50.
func NewSummarizer(engine storage.Engine, completer genai.Completer, memberCap int) *Summarizer {
	if memberCap <= 0 {
		memberCap = 50
	}
	return &Summarizer{engine: engine, completer: completer, memberCap: memberCap}
}

// SummarizeAll generates and stores summaries for every community and
// sub-community.
func (s *Summarizer) SummarizeAll(ctx context.Context) error {
	if err := s.summarizeLabel(ctx, catalog.LabelCommunity, catalog.EdgeInCommunity, LevelTopic); err != nil {
		return err
	}
	return s.summarizeLabel(ctx, catalog.LabelSubCommunity, catalog.EdgeInSubCommunity, LevelSubGroup)
}

func (s *Summarizer) summarizeLabel(ctx context.Context, label, membershipEdge, level string) error {
	nodes, err := s.engine.GetNodesByLabel(label)
	if err != nil {
		return fmt.Errorf("fetch %s nodes: %w", label, err)
	}
	log.Printf("📝 Summarizing %d %s nodes", len(nodes), label)

	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}

		members, err := catalog.CommunityMembers(s.engine, node.ID, membershipEdge)
		if err != nil {
			return err
		}

		title, summary := s.generate(ctx, members, level)

		err = s.engine.MergeNode(&storage.Node{
			ID:     node.ID,
			Labels: []string{label},
			Properties: map[string]any{
				catalog.PropName:    title,
				catalog.PropSummary: summary,
			},
		})
		if err != nil {
			return fmt.Errorf("store summary for %s: %w", node.ID, err)
		}
	}
	return nil
}

// generate builds the prompt and parses the response. Failures and
// malformed output degrade to placeholder values.
func (s *Summarizer) generate(ctx context.Context, members []string, level string) (title, summary string) {
	if len(members) == 0 {
		return "Empty Community", "No members found."
	}

	if len(members) > s.memberCap {
		members = members[:s.memberCap]
	}

	prompt := fmt.Sprintf(`You are an expert bioinformatician analyzing a computational workflow graph.

Level: %s
Members:
%s

1. Analyze the common functionality.
2. Provide a short, descriptive Title (e.g., "RNA-Seq Alignment").
3. Provide a concise Summary (2-3 sentences).

Format:
Title: <Title>
Summary: <Summary>`, level, strings.Join(members, "\n"))

	response, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		log.Printf("⚠️  Summary generation failed: %v", err)
		return "Error", "Could not generate summary."
	}

	return genai.ParseTitleSummary(response)
}
