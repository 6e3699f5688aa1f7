package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/graphnet/internal/chunker"
	"github.com/ajitpratap0/graphnet/internal/extract"
	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/internal/pipeline"
	"github.com/ajitpratap0/graphnet/internal/query"
	"github.com/ajitpratap0/graphnet/internal/resolver"
	"github.com/ajitpratap0/graphnet/internal/retry"
	"github.com/ajitpratap0/graphnet/internal/store"
)

// mcpTestGenerator gives fixed extraction and translation responses.
type mcpTestGenerator struct{}

func (g *mcpTestGenerator) Generate(_ context.Context, _ string, prompt string) (string, error) {
	if strings.Contains(prompt, "Classify the question") {
		return `{"intent": "find_by_name", "name": "Alice"}`, nil
	}
	if strings.Contains(prompt, "Rewrite the findings") {
		return "Alice works at Acme Corp.", nil
	}
	return `{
		"entities": [
			{"name": "Alice", "type": "Person", "description": "An engineer", "confidence": 0.9},
			{"name": "Acme Corp", "type": "Organization", "description": "An employer", "confidence": 0.85}
		],
		"relationships": [
			{"source": "Alice", "target": "Acme Corp", "type": "WORKS_FOR", "confidence": 0.8}
		]
	}`, nil
}

// newMCPServer returns a Server backed by a MemoryStore and a deterministic
// generator.
func newMCPServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.NewMemoryStore()
	gen := &mcpTestGenerator{}

	ch, err := chunker.New(1000, 200)
	require.NoError(t, err)
	policy := retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	pipe := pipeline.New(
		ch,
		extract.New(gen, 0.3, 25, logger),
		resolver.New(st, policy, logger),
		st,
		query.NewTranslator(gen, logger),
		query.NewExecutor(st, gen, 25, logger),
		pipeline.Options{Concurrency: 2, CallTimeout: 5 * time.Second},
		logger,
	)

	return NewServer(pipe, st, logger), st
}

// makeReq builds a CallToolRequest with the given arguments.
func makeReq(toolName string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	return req
}

// textContent extracts the first TextContent string from a CallToolResult.
func textContent(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content item")
	tc, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func ingestDoc(t *testing.T, srv *Server) {
	t.Helper()
	result, err := srv.HandleIngest(context.Background(), makeReq("ingest_document", map[string]any{
		"document_id": "doc-1",
		"text":        "Alice works at Acme Corp.",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, textContent(t, result))
}

func TestIngestDocumentTool(t *testing.T) {
	srv, st := newMCPServer(t)
	ingestDoc(t, srv)

	export, err := st.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, export.Entities, 2)
	assert.Len(t, export.Relationships, 1)
}

func TestIngestDocumentToolRequiresText(t *testing.T) {
	srv, _ := newMCPServer(t)

	result, err := srv.HandleIngest(context.Background(), makeReq("ingest_document", map[string]any{
		"text": "   ",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestIngestDocumentToolReportsCounts(t *testing.T) {
	srv, _ := newMCPServer(t)

	result, err := srv.HandleIngest(context.Background(), makeReq("ingest_document", map[string]any{
		"document_id": "doc-1",
		"text":        "Alice works at Acme Corp.",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var report models.IngestionReport
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &report))
	assert.Equal(t, "doc-1", report.DocumentID)
	assert.Equal(t, 2, report.EntitiesCreated)
}

func TestAnswerQuestionTool(t *testing.T) {
	srv, _ := newMCPServer(t)
	ingestDoc(t, srv)

	result, err := srv.HandleAnswer(context.Background(), makeReq("answer_question", map[string]any{
		"question": "Who is Alice?",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var qr models.QueryResult
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &qr))
	require.Len(t, qr.Entities, 1)
	assert.Equal(t, "Alice", qr.Entities[0].Name)
}

func TestSearchEntitiesTool(t *testing.T) {
	srv, _ := newMCPServer(t)
	ingestDoc(t, srv)

	result, err := srv.HandleSearchEntities(context.Background(), makeReq("search_entities", map[string]any{
		"type": "Person",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body struct {
		Entities []models.CanonicalEntity `json:"entities"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &body))
	require.Len(t, body.Entities, 1)
	assert.Equal(t, "Alice", body.Entities[0].Name)
}

func TestSearchEntitiesToolRequiresFilter(t *testing.T) {
	srv, _ := newMCPServer(t)

	result, err := srv.HandleSearchEntities(context.Background(), makeReq("search_entities", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGraphStatsTool(t *testing.T) {
	srv, _ := newMCPServer(t)
	ingestDoc(t, srv)

	result, err := srv.HandleStats(context.Background(), makeReq("graph_stats", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var stats models.GraphStatistics
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &stats))
	assert.Equal(t, 2, stats.EntityCount)
	assert.Equal(t, 1, stats.RelationshipCount)
}

func TestClearGraphToolRequiresConfirmation(t *testing.T) {
	srv, st := newMCPServer(t)
	ingestDoc(t, srv)

	result, err := srv.handleClear(context.Background(), makeReq("clear_graph", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleClear(context.Background(), makeReq("clear_graph", map[string]any{"confirm": "true"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	export, err := st.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, export.Entities)
}

func TestToolsFailGracefullyWithoutDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := NewServer(nil, nil, logger)

	result, err := srv.HandleIngest(context.Background(), makeReq("ingest_document", map[string]any{"text": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.HandleStats(context.Background(), makeReq("graph_stats", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
