// ABOUTME: MCP command starts the Model Context Protocol server
// ABOUTME: Lets LLM agents ingest PDFs and ask questions over stdio
package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/pdfrag/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs pdfrag as an MCP (Model Context Protocol) server on stdio with the
ingest_pdf, ask_documents, search_documents and list_sources tools.
Logs go to stderr so they never interleave with the protocol stream.`,
		Args: cobra.NoArgs,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an MCP client)
  pdfrag mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "pdfrag": {
  #       "command": "pdfrag",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger().With("component", "mcp")

	if a.Config().LLM.APIKey == "" && a.Config().LLM.BaseURL == "" {
		logger.Warn("LLM_API_KEY not set - ask_documents will fail until it is configured")
	}

	server := mcpserver.NewMCPServer("pdfrag", versionInfo.Version)
	mcp.RegisterTools(server, a, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("MCP server starting on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
