package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCompareCommand() *cobra.Command {
	var (
		treePath string
		view     string
		steps    bool
	)

	cmd := &cobra.Command{
		Use:   "compare <run-id>",
		Short: "Compare the samples of a stored run",
		Long: `Show the stored results of a run, one column per sample.

Views:
  - all: every property
  - differing: rows where the samples disagree
  - supported: rows with any YES or PARTIAL, plus rows that disagree`,
		Example: `  # Properties that differ between the samples of a run
  genprop compare 6f1c2a9e-8d4b-4c55-a0b3-1f2e3d4c5b6a --view differing

  # Include steps and use an updated tree for names
  genprop compare 6f1c2a9e-8d4b-4c55-a0b3-1f2e3d4c5b6a --steps --tree genprop.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]

			v, err := ParseView(view)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := loadRunResults(cmd.Context(), store, runID, treePath)
			if err != nil {
				return err
			}

			log.Debug().
				Str("run_id", runID).
				Strs("samples", res.Samples()).
				Str("view", view).
				Msg("Comparing run results")

			if jsonOutput {
				return res.WriteJSON(cmd.OutOrStdout())
			}
			return renderResults(cmd.OutOrStdout(), res, v, steps)
		},
	}

	cmd.Flags().StringVarP(&treePath, "tree", "t", "", "tree definition (default: the run's tree)")
	cmd.Flags().StringVar(&view, "view", string(ViewAll), "rows to show (all, differing, supported)")
	cmd.Flags().BoolVar(&steps, "steps", false, "also show step results")

	return cmd
}
