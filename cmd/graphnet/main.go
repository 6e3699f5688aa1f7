package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/graphnet/internal/chunker"
	"github.com/ajitpratap0/graphnet/internal/config"
	"github.com/ajitpratap0/graphnet/internal/extract"
	"github.com/ajitpratap0/graphnet/internal/llm"
	"github.com/ajitpratap0/graphnet/internal/pipeline"
	"github.com/ajitpratap0/graphnet/internal/query"
	"github.com/ajitpratap0/graphnet/internal/resolver"
	"github.com/ajitpratap0/graphnet/internal/retry"
	"github.com/ajitpratap0/graphnet/internal/store"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "graphnet",
		Short: "GraphNet — knowledge graph extraction and querying from text",
		Long:  "GraphNet ingests plain text documents, extracts entities and relationships with Claude, merges them into a deduplicated knowledge graph, and answers natural language questions against it.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		ingestCmd(),
		queryCmd(),
		entitiesCmd(),
		statsCmd(),
		exportCmd(),
		clearCmd(),
		healthCmd(),
		serveCmd(),
		mcpCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newStore selects the graph backend: Neo4j when a URI is configured,
// otherwise the embedded in-memory store. The in-memory store does not
// persist across processes; one-shot CLI commands against it operate on an
// empty graph.
func newStore(ctx context.Context, logger *slog.Logger) (store.GraphStore, error) {
	if cfg.Neo4j.URI == "" {
		logger.Debug("no neo4j uri configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	st, err := store.NewNeo4jStore(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database, logger)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// newGenerator returns the Claude client, or nil when no API key is
// configured. A nil generator degrades extraction to zero candidates and
// query translation to heuristics.
func newGenerator(logger *slog.Logger) llm.Generator {
	if cfg.Claude.APIKey == "" {
		return nil
	}
	return llm.NewClaudeGenerator(cfg.Claude.APIKey, cfg.Claude.Model, logger)
}

// newPipeline assembles the full pipeline over the given store.
func newPipeline(st store.GraphStore, logger *slog.Logger) (*pipeline.Pipeline, error) {
	ch, err := chunker.New(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("building chunker: %w", err)
	}

	gen := newGenerator(logger)
	if gen == nil {
		logger.Warn("no ANTHROPIC_API_KEY configured; extraction and query translation run degraded")
	}

	ex := extract.New(gen, cfg.Pipeline.MinConfidence, cfg.Pipeline.MaxEntitiesPerChunk, logger)
	res := resolver.New(st, retry.DefaultPolicy(), logger)
	tr := query.NewTranslator(gen, logger)
	qe := query.NewExecutor(st, gen, cfg.Query.MaxResults, logger)

	opts := pipeline.Options{
		Concurrency: cfg.Pipeline.Concurrency,
		CallTimeout: time.Duration(cfg.Pipeline.TimeoutSeconds) * time.Second,
	}
	return pipeline.New(ch, ex, res, st, tr, qe, opts, logger), nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
