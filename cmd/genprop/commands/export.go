package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newExportCommand() *cobra.Command {
	var (
		treePath string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a stored run as an annotated JSON tree",
		Long: `Write the results of a stored run as JSON.

The document holds the sample names and the property tree from the root
down. Every property and step node carries one result per sample, in sample
order. Properties shared by several steps appear under each of them.`,
		Example: `  # Export to stdout
  genprop export 6f1c2a9e-8d4b-4c55-a0b3-1f2e3d4c5b6a

  # Export to a file
  genprop export 6f1c2a9e-8d4b-4c55-a0b3-1f2e3d4c5b6a -o results.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := loadRunResults(cmd.Context(), store, args[0], treePath)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return res.WriteJSON(cmd.OutOrStdout())
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := res.WriteJSON(f); err != nil {
				f.Close()
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", output, err)
			}

			pterm.Success.WithWriter(cmd.ErrOrStderr()).Printf("Exported %s to %s\n", args[0], output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&treePath, "tree", "t", "", "tree definition (default: the run's tree)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")

	return cmd
}
