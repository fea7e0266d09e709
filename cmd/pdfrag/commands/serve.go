// ABOUTME: Serve command runs the upload-and-ask web UI and JSON API
// ABOUTME: Shuts down gracefully on SIGINT or SIGTERM
package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/pdfrag/internal/web"
	"github.com/spf13/cobra"
)

var serveAddr string

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and JSON API",
		Long: `Serve a form to upload PDFs and ask a question in one request,
plus JSON endpoints:

  POST /api/ingest   multipart "files" -> per-file reports
  POST /api/ask      {"question": "...", "k": 5} -> answer and sources
  GET  /healthz
  GET  /metrics      Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default $HTTP_ADDR or :8080)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = a.Config().HTTP.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Build the index handle up front so a broken store fails at startup
	if _, err := a.Handle(ctx); err != nil {
		return fmt.Errorf("opening index: %w", err)
	}

	srv := web.New(a, web.Options{
		MaxUploadBytes: a.Config().MaxUploadBytes(),
		Logger:         a.Logger().With("component", "web"),
	})
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", addr)
	}
	return srv.ListenAndServe(ctx, addr)
}
