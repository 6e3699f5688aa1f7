package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	graphmcp "github.com/ajitpratap0/graphnet/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  ingest_document  — chunk, extract, and merge a document into the graph
  answer_question  — answer a natural language question with provenance
  search_entities  — look up entities by type or name
  graph_stats      — node/edge counts and centrality
  export_graph     — full graph as JSON
  clear_graph      — delete everything (requires confirm)

If Neo4j or the Claude API are unavailable at startup the server still starts;
individual tool calls will return MCP error responses on failure.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, storeErr := newStore(ctx, logger)
			if storeErr != nil {
				// Log to stderr and continue with a nil store.
				// Tool calls will return per-call errors rather than crashing.
				logger.Error("mcp: failed to connect to store; tool calls requiring storage will fail",
					"error", storeErr)
			}

			var srv *graphmcp.Server
			if st != nil {
				pipe, pipeErr := newPipeline(st, logger)
				if pipeErr != nil {
					return fmt.Errorf("mcp: %w", pipeErr)
				}
				srv = graphmcp.NewServer(pipe, st, logger)
			} else {
				srv = graphmcp.NewServer(nil, nil, logger)
			}

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: graphnet MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
