package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/runid"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Config    string // explicit config file, searched for when empty
	LogFormat string // "console" | "json"
	Ledger    string // ledger path override
	NoLedger  bool

	// Logger, IDs and Now override the production logger, run ID generator
	// and clock (for testing). Nil selects the defaults.
	Logger *slog.Logger
	IDs    runid.Generator
	Now    func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidLogFormats defines the allowed log encodings.
var ValidLogFormats = []string{"console", "json"}

// NewRootCommand creates the root command for the fixity CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fixity",
		Short: "fixity - archival census, hashing and graph reconciliation",
		Long: `Verify that a digital archive and its knowledge-graph description agree.

fixity counts the files of an archival device, computes SHA-256 digests of
every file, and checks both against the records and hash codes published in
the device's named graph on a SPARQL endpoint. Every run is recorded in a
local ledger so digest drift between runs can be detected.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidLogFormats, opts.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (default: search for fixity.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "console", "log encoding on stderr (console|json)")
	cmd.PersistentFlags().StringVar(&opts.Ledger, "ledger", "", "run ledger database (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.NoLedger, "no-ledger", false, "do not record this run in the ledger")

	cmd.AddCommand(NewCensusCommand(opts))
	cmd.AddCommand(NewHashCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewIntegrityCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}
