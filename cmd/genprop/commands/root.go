package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// DefaultStorePath is the database used when --store is not given.
const DefaultStorePath = "genprop.db"

var (
	// Global flags
	storePath  string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "genprop",
		Short: "genprop - Genome property assignment",
		Long: `genprop assigns YES, PARTIAL or NO to every property and step of a genome
property tree, for one or more samples, from matched protein signatures and
observed leaf results.

Features:
  - Property trees in YAML, CUE or JSON
  - Long form and InterProScan TSV evidence
  - Parallel assignment of many samples
  - Differing and supported result views
  - JSON export of the annotated property tree
  - SQLite storage of evidence and runs`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "s", DefaultStorePath, "SQLite database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newAssignCommand())
	rootCmd.AddCommand(newCompareCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newSamplesCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
