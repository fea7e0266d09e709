// ABOUTME: MCP tool definitions and registration for the pdfrag server
// ABOUTME: Exposes ingestion, question answering, raw search and source listing
package mcp

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/harper/pdfrag/internal/answer"
	"github.com/harper/pdfrag/internal/index"
	"github.com/harper/pdfrag/internal/ingest"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Backend supplies the collaborators the tools need
type Backend interface {
	Pipeline(ctx context.Context) (*ingest.Pipeline, error)
	Answerer() (*answer.Answerer, error)
	Handle(ctx context.Context) (*index.Handle, error)
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, backend Backend, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.Default()
	}
	handlers := &Handlers{backend: backend, logger: logger}

	// 1. ingest_pdf - Index a PDF from the local filesystem
	server.AddTool(mcp.Tool{
		Name:        "ingest_pdf",
		Description: "Extract text, tables and image OCR from a local PDF and add it to the document index. Re-ingesting the same file replaces its previous entries.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the PDF file",
				},
			},
			Required: []string{"path"},
		},
	}, handlers.IngestPDF)

	// 2. ask_documents - Answer a question from the indexed documents
	server.AddTool(mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question using only the most relevant passages of the indexed PDFs.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question to answer",
				},
				"k": map[string]interface{}{
					"type":        "number",
					"description": "Number of passages to retrieve (default: 5)",
					"default":     answer.DefaultK,
				},
			},
			Required: []string{"question"},
		},
	}, handlers.AskDocuments)

	// 3. search_documents - Similarity search without generation
	server.AddTool(mcp.Tool{
		Name:        "search_documents",
		Description: "Return the indexed passages most similar to a query, with page, type and score.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"k": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of results to return (default: 5)",
					"default":     answer.DefaultK,
				},
			},
			Required: []string{"query"},
		},
	}, handlers.SearchDocuments)

	// 4. list_sources - Show what is indexed
	server.AddTool(mcp.Tool{
		Name:        "list_sources",
		Description: "List the indexed PDF sources with their document counts.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.ListSources)

	return handlers
}
