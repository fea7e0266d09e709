// ABOUTME: CLI command to ingest PDFs into the persistent index
// ABOUTME: Reports pages, documents and skipped fragments per file
package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/harper/pdfrag/internal/ingest"
	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Add PDFs to the index",
		Long: `Extract text, tables and image OCR from each PDF and index it.

Files are processed in order. A file that cannot be opened or parsed is
reported and skipped; the others are still indexed. Re-ingesting a file
with the same contents replaces its previous entries.

Examples:
  pdfrag ingest report.pdf
  pdfrag ingest --format json *.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Pipeline(cmd.Context())
	if err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}

	reports, handle, err := p.IngestPaths(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("ingestion interrupted: %w", err)
	}

	total, err := handle.Count(cmd.Context())
	if err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		if err := printJSON(out, map[string]any{"files": reports, "documents": total}); err != nil {
			return err
		}
	} else {
		printIngestReports(out, reports)
		if !quiet {
			fmt.Fprintf(out, "\n%s\n", mutedStyle.Render(fmt.Sprintf("Index now holds %d document(s)", total)))
		}
	}

	failed := 0
	for _, r := range reports {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to ingest", failed, len(reports))
	}
	return nil
}

func printIngestReports(out io.Writer, reports []ingest.FileReport) {
	fmt.Fprintln(out, headerStyle.Render("Ingested files"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "FILE\tPAGES\tDOCS\tSKIPPED\tSTATUS\n")
	fmt.Fprintf(w, "----\t-----\t----\t-------\t------\n")
	for _, r := range reports {
		status := "ok"
		if !r.OK() {
			status = errorStyle.Render("failed: " + truncate(r.Error, 60))
		} else if r.Replaced > 0 {
			status = fmt.Sprintf("ok (replaced %d)", r.Replaced)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", truncate(r.Name, 40), r.Pages, r.Documents, len(r.Skipped), status)
	}
	w.Flush()

	if !verbose {
		return
	}
	for _, r := range reports {
		for _, d := range r.Skipped {
			fmt.Fprintf(out, "%s %s\n", warnStyle.Render("skipped"), d.String())
		}
	}
}
