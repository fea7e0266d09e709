// ABOUTME: Request handlers for the HTML form and the JSON API
// ABOUTME: Generation failures are reported as 502 and never replaced by a made-up answer
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/harper/pdfrag/internal/answer"
	"github.com/harper/pdfrag/internal/index"
	"github.com/harper/pdfrag/internal/ingest"
	"github.com/harper/pdfrag/internal/models"
)

// AskRequest is the body of POST /api/ask
type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// AskResponse is the body returned by POST /api/ask
type AskResponse struct {
	Answer       string                `json:"answer"`
	Sources      []models.SearchResult `json:"sources"`
	EmptyContext bool                  `json:"empty_context"`
}

// IngestResponse is the body returned by POST /api/ingest
type IngestResponse struct {
	Files     []ingest.FileReport `json:"files"`
	Documents int                 `json:"documents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type pageData struct {
	Question     string
	Error        string
	Reports      []ingest.FileReport
	Answered     bool
	Answer       string
	EmptyContext bool
	Sources      []models.SearchResult
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, pageData{})
}

// handleAskForm ingests any attached PDFs and answers the question in one request
func (s *Server) handleAskForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	files, cleanup, err := s.parseUploads(w, r)
	if err != nil {
		s.render(w, http.StatusBadRequest, pageData{Error: err.Error()})
		return
	}
	defer cleanup()

	data := pageData{Question: strings.TrimSpace(r.FormValue("question"))}
	if data.Question == "" {
		data.Error = "Please enter a question."
		s.render(w, http.StatusBadRequest, data)
		return
	}

	handle, reports, err := s.ingest(ctx, files)
	data.Reports = reports
	if err != nil {
		data.Error = err.Error()
		s.render(w, http.StatusInternalServerError, data)
		return
	}

	res, err := s.ask(ctx, data.Question, 0, handle)
	if err != nil {
		data.Error = err.Error()
		s.render(w, statusFor(err), data)
		return
	}
	data.Answered = true
	data.Answer = res.Answer
	data.EmptyContext = res.EmptyContext
	data.Sources = res.Sources
	s.render(w, http.StatusOK, data)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	files, cleanup, err := s.parseUploads(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cleanup()
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files uploaded"))
		return
	}

	handle, reports, err := s.ingest(r.Context(), files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := IngestResponse{Files: reports}
	if handle != nil {
		resp.Documents, _ = handle.Count(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.K < 0 || req.K > 100 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("k must be 1-100, got %d", req.K))
		return
	}

	res, err := s.ask(r.Context(), req.Question, req.K, nil)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{
		Answer:       res.Answer,
		Sources:      res.Sources,
		EmptyContext: res.EmptyContext,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseUploads opens every file in the "files" form field. The caller must
// run cleanup once the uploads have been consumed.
func (s *Server) parseUploads(w http.ResponseWriter, r *http.Request) ([]ingest.Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			return nil, nil, fmt.Errorf("upload exceeds %d MB", s.maxUpload>>20)
		}
		return nil, nil, fmt.Errorf("invalid form: %w", err)
	}

	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}

	headers := r.MultipartForm.File["files"]
	uploads := make([]ingest.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		uploads = append(uploads, ingest.Upload{Name: fh.Filename, Reader: f})
	}
	return uploads, cleanup, nil
}

// ingest runs the pipeline over the uploads. With none it returns a nil
// handle and the caller falls back to the existing index.
func (s *Server) ingest(ctx context.Context, uploads []ingest.Upload) (*index.Handle, []ingest.FileReport, error) {
	if len(uploads) == 0 {
		return nil, nil, nil
	}
	p, err := s.backend.Pipeline(ctx)
	if err != nil {
		return nil, nil, err
	}
	reports, handle, err := p.IngestFiles(ctx, uploads)
	return handle, reports, err
}

func (s *Server) ask(ctx context.Context, question string, k int, handle *index.Handle) (*answer.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, answer.ErrEmptyQuestion
	}
	ans, err := s.backend.Answerer()
	if err != nil {
		return nil, err
	}
	if handle == nil {
		if handle, err = s.backend.Handle(ctx); err != nil {
			return nil, err
		}
	}

	res, err := ans.WithK(k).Ask(ctx, question, handle)
	if err != nil {
		s.logger.Error("answer failed", "err", err)
		return nil, err
	}
	return res, nil
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error("render failed", "err", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, answer.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, answer.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
