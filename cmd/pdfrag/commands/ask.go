// ABOUTME: CLI command to answer a question from the indexed PDFs
// ABOUTME: Prints the model's answer verbatim, optionally followed by its sources
package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	askK           int
	askShowSources bool
)

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed PDFs",
		Long: `Retrieve the passages most similar to the question and ask the
language model to answer from them only.

An empty index still produces an answer; a warning is logged since the
model had no context to work from.

Examples:
  pdfrag ask "What was the net revenue in 2023?"
  pdfrag ask --k 8 --sources "Which table lists expenses?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().IntVar(&askK, "k", 0, "Passages to retrieve (default from config)")
	cmd.Flags().BoolVar(&askShowSources, "sources", false, "Show the retrieved passages")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("k") {
		if err := validatePositiveInt(askK, "k"); err != nil {
			return err
		}
	}
	question := strings.Join(args, " ")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.Answerer()
	if err != nil {
		return fmt.Errorf("initializing answerer: %w", err)
	}
	handle, err := a.Handle(cmd.Context())
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}

	res, err := ans.WithK(askK).Ask(cmd.Context(), question, handle)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput() {
		return printJSON(out, res)
	}

	fmt.Fprintln(out, res.Answer)
	if !askShowSources || len(res.Sources) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\n%s\n", headerStyle.Render("Sources"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SCORE\tSOURCE\tPAGE\tTYPE\tPREVIEW\n")
	for _, r := range res.Sources {
		fmt.Fprintf(w, "%.3f\t%s\t%d\t%s\t%s\n",
			r.Score,
			truncate(r.Document.Source(), 30),
			r.Document.Page(),
			r.Document.Kind(),
			truncate(oneLine(r.Document.Content), 60))
	}
	return w.Flush()
}
