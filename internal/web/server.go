// ABOUTME: HTTP surface: upload-and-ask HTML form plus JSON ingest and ask endpoints
// ABOUTME: Routes with gorilla/mux and serves prometheus metrics at /metrics
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/harper/pdfrag/internal/answer"
	"github.com/harper/pdfrag/internal/index"
	"github.com/harper/pdfrag/internal/ingest"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultMaxUploadBytes bounds a multipart request when no limit is configured
const DefaultMaxUploadBytes = 50 << 20

// Backend supplies the collaborators a request needs
type Backend interface {
	Pipeline(ctx context.Context) (*ingest.Pipeline, error)
	Answerer() (*answer.Answerer, error)
	Handle(ctx context.Context) (*index.Handle, error)
}

// Options configures the server
type Options struct {
	MaxUploadBytes int64
	Logger         *log.Logger
}

// Server handles web and API requests
type Server struct {
	backend   Backend
	logger    *log.Logger
	maxUpload int64
	page      *template.Template
	router    *mux.Router
}

// New creates a Server and registers its routes
func New(backend Backend, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{
		backend:   backend,
		logger:    opts.Logger,
		maxUpload: opts.MaxUploadBytes,
		page:      template.Must(template.ParseFS(templateFS, "templates/index.html")),
		router:    mux.NewRouter(),
	}

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/ask", s.handleAskForm).Methods(http.MethodPost)
	s.router.HandleFunc("/api/ingest", s.handleIngest).Methods(http.MethodPost)
	s.router.HandleFunc("/api/ask", s.handleAsk).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
