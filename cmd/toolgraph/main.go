// Package main provides the toolgraph CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/runeward/toolgraph/pkg/catalog"
	"github.com/runeward/toolgraph/pkg/community"
	"github.com/runeward/toolgraph/pkg/config"
	"github.com/runeward/toolgraph/pkg/embed"
	"github.com/runeward/toolgraph/pkg/genai"
	"github.com/runeward/toolgraph/pkg/retrieval"
	"github.com/runeward/toolgraph/pkg/storage"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "toolgraph",
		Short: "ToolGraph - Knowledge graph over computational tools and workflows",
		Long: `ToolGraph builds a knowledge graph over computational tools and
workflows, detects hierarchical communities in it, and answers queries
through three retrieval modes.

Commands:
  build    Build the graph, detect communities, generate summaries
  query    Query the graph (global, local, or hybrid mode)
  version  Print version information`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("toolgraph %s (commit %s, built %s, %s)\n", version, commit, buildTime, runtime.Version())
		},
	})

	rootCmd.AddCommand(newBuildCmd(&configPath))
	rootCmd.AddCommand(newQueryCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newBuildCmd(configPath *string) *cobra.Command {
	var toolsPath, workflowsPath string
	var skipSummaries bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the graph, detect communities, generate summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			engine, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			embedder := newEmbedder(cfg)
			completer := newCompleter(cfg)

			start := time.Now()
			builder := catalog.NewBuilder(engine, embedder)
			if err := builder.Build(ctx, toolsPath, workflowsPath); err != nil {
				return fmt.Errorf("build catalog: %w", err)
			}

			detector := newDetector(engine, cfg)
			if _, err := detector.Run(ctx); err != nil {
				return fmt.Errorf("detect communities: %w", err)
			}

			if skipSummaries {
				fmt.Println("⏭️  Skipping summary generation")
			} else {
				summarizer := community.NewSummarizer(engine, completer, cfg.Detection.SummaryMemberCap)
				if err := summarizer.SummarizeAll(ctx); err != nil {
					return fmt.Errorf("generate summaries: %w", err)
				}
			}

			fmt.Printf("✅ Build complete in %s (%d nodes)\n", time.Since(start).Round(time.Millisecond), engine.NodeCount())
			return nil
		},
	}

	cmd.Flags().StringVar(&toolsPath, "tools", "data/tools.json", "Path to extracted tools JSON")
	cmd.Flags().StringVar(&workflowsPath, "workflows", "data/workflows.json", "Path to extracted workflows JSON")
	cmd.Flags().BoolVar(&skipSummaries, "skip-summaries", false, "Skip LLM summary generation")
	return cmd
}

func newQueryCmd(configPath *string) *cobra.Command {
	var mode, inputFormat string
	var topK int

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Query the graph",
		Long: `Query the graph in one of three modes:

  global  Pick the most relevant community via LLM arbitration
  local   Vector search for tools plus 1-hop neighborhood context
  hybrid  Vector search restricted by an accepted input format
  auto    global for long queries (more than five words), local otherwise`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")

			ctx, cancel := signalContext()
			defer cancel()

			engine, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			selected := mode
			if selected == "auto" {
				if len(strings.Fields(query)) > 5 {
					selected = "global"
				} else {
					selected = "local"
				}
				fmt.Printf("🤖 Auto mode selected: %s\n", selected)
			}

			switch selected {
			case "global":
				return runGlobal(ctx, engine, cfg, query)
			case "local":
				return runLocal(ctx, engine, cfg, query, topK)
			case "hybrid":
				return runHybrid(ctx, engine, cfg, query, inputFormat, topK)
			default:
				return fmt.Errorf("unknown mode %q (want global, local, hybrid, or auto)", mode)
			}
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "auto", "Search mode: global, local, hybrid, auto")
	cmd.Flags().StringVar(&inputFormat, "input-format", "", "Hybrid mode: restrict to tools accepting this format")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of results (0 uses the configured default)")
	return cmd
}

func runGlobal(ctx context.Context, engine storage.Engine, cfg *config.Config, query string) error {
	search := retrieval.NewGlobalSearch(engine, newCompleter(cfg))
	result, err := search.Search(ctx, query)
	if err != nil {
		return err
	}

	if result.CommunityID == -1 {
		fmt.Println(result.Reasoning)
		return nil
	}
	fmt.Printf("Community %d: %s\n", result.CommunityID, result.CommunityName)
	fmt.Printf("Summary:   %s\n", result.Summary)
	fmt.Printf("Reasoning: %s\n", result.Reasoning)
	return nil
}

func runLocal(ctx context.Context, engine storage.Engine, cfg *config.Config, query string, topK int) error {
	if topK <= 0 {
		topK = cfg.Retrieval.LocalTopK
	}
	search := retrieval.NewLocalSearch(engine, newEmbedder(cfg), cfg.Retrieval.WorkflowSampleLimit)
	results, err := search.Search(ctx, query, topK)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, r.Tool.Name, r.Tool.Score)
		fmt.Printf("   %s\n", r.Tool.Description)
		if len(r.Context.Inputs) > 0 {
			fmt.Printf("   Accepts:  %s\n", strings.Join(r.Context.Inputs, ", "))
		}
		if len(r.Context.Outputs) > 0 {
			fmt.Printf("   Produces: %s\n", strings.Join(r.Context.Outputs, ", "))
		}
		if len(r.Context.Workflows) > 0 {
			fmt.Printf("   Used in:  %s\n", strings.Join(r.Context.Workflows, ", "))
		}
	}
	return nil
}

func runHybrid(ctx context.Context, engine storage.Engine, cfg *config.Config, query, inputFormat string, topK int) error {
	if topK <= 0 {
		topK = cfg.Retrieval.HybridTopK
	}
	search := retrieval.NewHybridSearch(engine, newEmbedder(cfg))
	hits, err := search.Search(ctx, query, inputFormat, topK)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, hit := range hits {
		fmt.Printf("%d. %s (score %.3f)\n   %s\n", i+1, hit.Name, hit.Score, hit.Description)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openEngine opens the configured store: Badger on disk, optionally
// encrypted, or the in-memory engine when no data dir is set.
func openEngine(cfg *config.Config) (storage.Engine, error) {
	if cfg.Store.DataDir == "" {
		return storage.NewMemoryEngine(), nil
	}

	opts := storage.BadgerOptions{
		DataDir:   cfg.Store.DataDir,
		LowMemory: cfg.Store.LowMemory,
	}
	if cfg.Store.EncryptionEnabled {
		salt, err := storage.LoadOrCreateSalt(cfg.Store.DataDir)
		if err != nil {
			return nil, err
		}
		opts.EncryptionKey = storage.DeriveKey([]byte(cfg.Store.EncryptionPassword), salt)
		fmt.Println("🔒 Store encryption enabled (AES-256)")
	}

	engine, err := storage.NewBadgerEngineWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.Store.DataDir, err)
	}
	return engine, nil
}

func newEmbedder(cfg *config.Config) embed.Embedder {
	return embed.NewHTTP(&embed.Config{
		APIURL:       cfg.Embedding.APIURL,
		APIKey:       cfg.Embedding.APIKey,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
		MaxRetries:   cfg.Embedding.MaxRetries,
		RetryBackoff: cfg.Embedding.RetryBackoff,
		Timeout:      cfg.Embedding.Timeout,
	})
}

func newCompleter(cfg *config.Config) genai.Completer {
	return genai.NewHTTP(&genai.Config{
		APIURL:       cfg.LLM.APIURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		MaxRetries:   cfg.LLM.MaxRetries,
		RetryBackoff: cfg.LLM.RetryBackoff,
		Timeout:      cfg.LLM.Timeout,
	})
}

func newDetector(engine storage.Engine, cfg *config.Config) *community.Detector {
	seed := cfg.Detection.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return community.NewDetector(
		engine,
		community.NewUniversalProjector(engine, cfg.Detection.SimilarityThreshold),
		community.NewSimilarityProjector(engine, cfg.Detection.SimilarityThreshold,
			cfg.Detection.CooccurrenceWeight, cfg.Detection.IOWeight),
		community.NewLouvain(seed),
		community.Options{
			ResolutionLevel1:          cfg.Detection.ResolutionLevel1,
			ResolutionLevel2Tools:     cfg.Detection.ResolutionLevel2Tools,
			ResolutionLevel2Workflows: cfg.Detection.ResolutionLevel2Workflows,
		},
	)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
