// ABOUTME: MCP tool handler implementations for the pdfrag server
// ABOUTME: Failures come back as tool error results so the agent can read them
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/harper/pdfrag/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

const maxK = 100

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	backend Backend
	logger  *log.Logger
}

type passage struct {
	Source  string  `json:"source"`
	Page    int     `json:"page"`
	Type    string  `json:"type"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// IngestPDF handles the ingest_pdf tool
func (h *Handlers) IngestPDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil || strings.TrimSpace(path) == "" {
		return mcp.NewToolResultError("path argument is required and must be a string"), nil
	}

	p, err := h.backend.Pipeline(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingestion unavailable: %v", err)), nil
	}
	reports, _, err := p.IngestPaths(ctx, []string{path})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingestion cancelled: %v", err)), nil
	}
	report := reports[0]
	if !report.OK() {
		return mcp.NewToolResultError(fmt.Sprintf("failed to ingest %s: %s", path, report.Error)), nil
	}

	h.logger.Info("ingested via mcp", "path", path, "documents", report.Documents)
	return jsonResult(report)
}

// AskDocuments handles the ask_documents tool
func (h *Handlers) AskDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}
	k, errResult := readK(request)
	if errResult != nil {
		return errResult, nil
	}

	ans, err := h.backend.Answerer()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answering unavailable: %v", err)), nil
	}
	handle, err := h.backend.Handle(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open index: %v", err)), nil
	}

	res, err := ans.WithK(k).Ask(ctx, question, handle)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	response := map[string]interface{}{
		"answer":        res.Answer,
		"empty_context": res.EmptyContext,
		"sources":       passages(res.Sources),
	}
	return jsonResult(response)
}

// SearchDocuments handles the search_documents tool
func (h *Handlers) SearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	k, errResult := readK(request)
	if errResult != nil {
		return errResult, nil
	}
	if k == 0 {
		k = 5
	}

	handle, err := h.backend.Handle(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open index: %v", err)), nil
	}
	results, err := handle.Search(ctx, query, k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	response := map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": passages(results),
	}
	return jsonResult(response)
}

// ListSources handles the list_sources tool
func (h *Handlers) ListSources(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	handle, err := h.backend.Handle(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open index: %v", err)), nil
	}
	sources, err := handle.Store().Sources(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sources: %v", err)), nil
	}
	if sources == nil {
		sources = []models.SourceInfo{}
	}
	return jsonResult(map[string]interface{}{"sources": sources})
}

func readK(request mcp.CallToolRequest) (int, *mcp.CallToolResult) {
	k := request.GetInt("k", 0)
	if k < 0 || k > maxK {
		return 0, mcp.NewToolResultError(fmt.Sprintf("k must be between 1 and %d", maxK))
	}
	return k, nil
}

func passages(results []models.SearchResult) []passage {
	out := make([]passage, len(results))
	for i, r := range results {
		out[i] = passage{
			Source:  r.Document.Source(),
			Page:    r.Document.Page(),
			Type:    string(r.Document.Kind()),
			Score:   r.Score,
			Content: r.Document.Content,
		}
	}
	return out
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
