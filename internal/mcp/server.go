// Package mcp implements the Model Context Protocol server for graphnet.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/graphnet/internal/models"
	"github.com/ajitpratap0/graphnet/internal/pipeline"
	"github.com/ajitpratap0/graphnet/internal/store"
)

// Server wraps an MCPServer with graphnet dependencies.
type Server struct {
	mcp    *mcpserver.MCPServer
	pipe   *pipeline.Pipeline
	st     store.GraphStore
	logger *slog.Logger
}

// NewServer creates a new MCP server. If pipe or st are nil, the
// corresponding tool calls return an error response instead of panicking.
func NewServer(pipe *pipeline.Pipeline, st store.GraphStore, logger *slog.Logger) *Server {
	s := &Server{
		pipe:   pipe,
		st:     st,
		logger: logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"graphnet",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildIngestTool(), s.handleIngest)
	mcpSrv.AddTool(buildAnswerTool(), s.handleAnswer)
	mcpSrv.AddTool(buildSearchEntitiesTool(), s.handleSearchEntities)
	mcpSrv.AddTool(buildStatsTool(), s.handleStats)
	mcpSrv.AddTool(buildExportTool(), s.handleExport)
	mcpSrv.AddTool(buildClearTool(), s.handleClear)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleIngest is the exported handler for the "ingest_document" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleIngest(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleIngest(ctx, req)
}

// HandleAnswer is the exported handler for the "answer_question" tool.
func (s *Server) HandleAnswer(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleAnswer(ctx, req)
}

// HandleSearchEntities is the exported handler for the "search_entities" tool.
func (s *Server) HandleSearchEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearchEntities(ctx, req)
}

// HandleStats is the exported handler for the "graph_stats" tool.
func (s *Server) HandleStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStats(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildIngestTool() mcpgo.Tool {
	return mcpgo.NewTool("ingest_document",
		mcpgo.WithDescription("Ingest a text document: chunk it, extract entities and relationships, and merge them into the knowledge graph."),
		mcpgo.WithString("text",
			mcpgo.Required(),
			mcpgo.Description("The document text to ingest"),
		),
		mcpgo.WithString("document_id",
			mcpgo.Description("Stable document identifier; generated when omitted. Re-ingesting with the same id is idempotent."),
		),
		mcpgo.WithString("filename",
			mcpgo.Description("Original filename, recorded for provenance"),
		),
	)
}

func buildAnswerTool() mcpgo.Tool {
	return mcpgo.NewTool("answer_question",
		mcpgo.WithDescription("Answer a natural language question from the knowledge graph. Returns matching entities, relationships, and an explanation citing source chunks."),
		mcpgo.WithString("question",
			mcpgo.Required(),
			mcpgo.Description("The question to answer"),
		),
	)
}

func buildSearchEntitiesTool() mcpgo.Tool {
	return mcpgo.NewTool("search_entities",
		mcpgo.WithDescription("Look up graph entities by type or by name substring."),
		mcpgo.WithString("type",
			mcpgo.Description("Entity type: Person, Organization, Location, Concept, Product, Date, Event, Technology, or Other"),
		),
		mcpgo.WithString("name",
			mcpgo.Description("Case-insensitive name substring to match"),
		),
	)
}

func buildStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("graph_stats",
		mcpgo.WithDescription("Get graph statistics: node and edge counts, breakdowns by type, and the most connected entities."),
	)
}

func buildExportTool() mcpgo.Tool {
	return mcpgo.NewTool("export_graph",
		mcpgo.WithDescription("Export the full knowledge graph as JSON with all entity and relationship attributes."),
	)
}

func buildClearTool() mcpgo.Tool {
	return mcpgo.NewTool("clear_graph",
		mcpgo.WithDescription("Delete every node and edge in the knowledge graph. Irreversible."),
		mcpgo.WithString("confirm",
			mcpgo.Required(),
			mcpgo.Description("Must be the string \"true\" to proceed"),
		),
	)
}

// --- tool handlers ---

// handleIngest runs the full ingestion pipeline on the given text.
func (s *Server) handleIngest(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.pipe == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}

	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcpgo.NewToolResultError("text is required and must not be empty"), nil
	}

	docID := req.GetString("document_id", "")
	if docID == "" {
		docID = uuid.NewString()
	}
	filename := req.GetString("filename", "")

	report, err := s.pipe.IngestDocument(ctx, docID, filename, text)
	if err != nil {
		return mcpgo.NewToolResultErrorf("ingestion failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: ingested document",
		"document", docID, "chunks", report.ChunksTotal, "failed", report.ChunksFailed)
	return toolResultJSON(report)
}

// handleAnswer translates and executes a natural language question.
func (s *Server) handleAnswer(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.pipe == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}

	question := req.GetString("question", "")
	if strings.TrimSpace(question) == "" {
		return mcpgo.NewToolResultError("question is required and must not be empty"), nil
	}

	result, err := s.pipe.AnswerQuestion(ctx, question)
	if err != nil {
		return mcpgo.NewToolResultErrorf("query failed: %s", err.Error()), nil
	}
	return toolResultJSON(result)
}

// handleSearchEntities looks entities up by type or name.
func (s *Server) handleSearchEntities(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}

	typeParam := req.GetString("type", "")
	nameParam := req.GetString("name", "")

	var entities []models.CanonicalEntity
	var err error
	switch {
	case typeParam != "":
		entities, err = s.st.EntitiesByType(ctx, models.NormalizeEntityType(typeParam))
	case nameParam != "":
		entities, err = s.st.EntitiesByName(ctx, nameParam)
	default:
		return mcpgo.NewToolResultError("type or name is required"), nil
	}
	if err != nil {
		return mcpgo.NewToolResultErrorf("entity lookup failed: %s", err.Error()), nil
	}

	result := map[string]any{
		"entities": entities,
	}
	return toolResultJSON(result)
}

// handleStats returns graph statistics.
func (s *Server) handleStats(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.pipe == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}

	stats, err := s.pipe.Statistics(ctx)
	if err != nil {
		return mcpgo.NewToolResultErrorf("stats failed: %s", err.Error()), nil
	}
	return toolResultJSON(stats)
}

// handleExport returns the full graph.
func (s *Server) handleExport(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.pipe == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}

	export, err := s.pipe.Export(ctx)
	if err != nil {
		return mcpgo.NewToolResultErrorf("export failed: %s", err.Error()), nil
	}
	return toolResultJSON(export)
}

// handleClear wipes the graph after explicit confirmation.
func (s *Server) handleClear(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.pipe == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}

	if req.GetString("confirm", "") != "true" {
		return mcpgo.NewToolResultError("pass confirm=\"true\" to clear the graph"), nil
	}

	if err := s.pipe.Clear(ctx); err != nil {
		return mcpgo.NewToolResultErrorf("clear failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: cleared graph")
	result := map[string]any{
		"cleared": true,
	}
	return toolResultJSON(result)
}
