package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/genprop/genprop/pkg/config"
)

func newImportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <sample> <evidence-file>...",
		Short: "Import sample evidence into the store",
		Long: `Parse evidence files for a sample and store them in the database.

Importing a sample again replaces its stored evidence. Stored samples can be
assigned later with "genprop assign --stored".

Evidence formats:
  - longform: property_id, step number or "-", and YES/PARTIAL/NO per line
  - interproscan: InterProScan TSV output; signature and InterPro accessions
    become matched identifiers`,
		Example: `  # Import InterProScan output for a genome
  genprop import GCF_000005845 GCF_000005845.tsv --format interproscan

  # Import observed results into a specific database
  genprop import sample-1 results.tsv --store runs.db`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sample := args[0]
			files := make([]config.EvidenceFile, 0, len(args)-1)
			for _, path := range args[1:] {
				files = append(files, config.EvidenceFile{Path: path, Format: config.EvidenceFormat(format)})
			}

			cache, err := config.LoadEvidence(sample, files...)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveEvidence(cmd.Context(), cache); err != nil {
				return fmt.Errorf("failed to save evidence for %s: %w", sample, err)
			}

			log.Debug().
				Str("sample", sample).
				Int("results", cache.Len()).
				Int("matches", len(cache.Matches())).
				Str("store", storePath).
				Msg("Evidence imported")

			pterm.Success.WithWriter(cmd.OutOrStdout()).Printf("Imported %s: %d results, %d matches\n",
				sample, cache.Len(), len(cache.Matches()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(config.EvidenceLongForm), "evidence format (longform, interproscan)")

	return cmd
}
