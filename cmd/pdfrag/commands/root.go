// ABOUTME: Root command, global flags and shared App construction for the CLI
// ABOUTME: Loads .env and config once per invocation and builds the logger from flags
package commands

import (
	"fmt"

	"github.com/harper/pdfrag/internal/app"
	"github.com/harper/pdfrag/internal/config"
	"github.com/harper/pdfrag/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
	configPath   string
)

const banner = `
██████╗ ██████╗ ███████╗██████╗  █████╗  ██████╗
██╔══██╗██╔══██╗██╔════╝██╔══██╗██╔══██╗██╔════╝
██████╔╝██║  ██║█████╗  ██████╔╝███████║██║  ███╗
██╔═══╝ ██║  ██║██╔══╝  ██╔══██╗██╔══██║██║   ██║
██║     ██████╔╝██║     ██║  ██║██║  ██║╚██████╔╝
╚═╝     ╚═════╝ ╚═╝     ╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝ `

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdfrag",
		Short: "Ask questions about your PDFs",
		Long: banner + `

Ingest PDFs (text, tables and OCR of embedded images), index them in a
vector store and answer questions from the most relevant passages using
a hosted language model.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch outputFormat {
			case "auto", "text", "json":
			default:
				return fmt.Errorf("--format must be auto, text or json, got %q", outputFormat)
			}
			_ = godotenv.Load()
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors and print results")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, text or json")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default $PDFRAG_CONFIG)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewAskCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewSourcesCmd())
	cmd.AddCommand(NewResetCmd())
	cmd.AddCommand(NewSyncCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// loadApp reads config and builds the application context. The caller owns Close.
func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	logger := logging.New(cmd.ErrOrStderr(), logging.Options{Level: level, Format: cfg.Log.Format})

	return app.New(cfg, logger), nil
}

// jsonOutput reports whether results should be printed as JSON
func jsonOutput() bool {
	return outputFormat == "json"
}
