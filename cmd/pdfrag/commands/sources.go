// ABOUTME: CLI commands to inspect and clear the persistent index
// ABOUTME: sources lists indexed files; reset removes every document
package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewSourcesCmd creates the sources command
func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List indexed PDFs",
		Long: `List the PDFs in the index with their document counts.

Examples:
  pdfrag sources
  pdfrag sources --format json`,
		Args: cobra.NoArgs,
		RunE: runSources,
	}

	return cmd
}

func runSources(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	handle, err := a.Handle(cmd.Context())
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	sources, err := handle.Store().Sources(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, sources)
	}

	if len(sources) == 0 {
		if !quiet {
			fmt.Fprintln(out, "No documents indexed yet. Run 'pdfrag ingest <file.pdf>' to add some.")
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SOURCE\tDOCS\tID\n")
	fmt.Fprintf(w, "------\t----\t--\n")
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%d\t%s\n", truncate(s.Source, 50), s.Documents, truncate(s.SourceID, 12))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(out, "\n%d source(s) in %s\n", len(sources), handle.Store().Location())
	}
	return nil
}

// NewResetCmd creates the reset command
func NewResetCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every document from the index",
		Long: `Remove every indexed document so the next ingest rebuilds from scratch.

Needed after switching embedding models, since stored vectors of a
different dimension cannot be mixed with new ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !confirm {
				fmt.Fprintln(out, "This will delete ALL indexed documents!")
				fmt.Fprintln(out, "Run with --confirm to proceed")
				return nil
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.Store(cmd.Context())
			if err != nil {
				return fmt.Errorf("opening index: %w", err)
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clearing index: %w", err)
			}

			fmt.Fprintf(out, "Cleared %s\n", store.Location())
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the reset")

	return cmd
}
