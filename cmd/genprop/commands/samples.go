package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSamplesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Manage stored sample evidence",
	}

	cmd.AddCommand(newSamplesListCommand())
	cmd.AddCommand(newSamplesDeleteCommand())

	return cmd
}

func newSamplesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored samples",
		Example: `  # List samples in the default store
  genprop samples list

  # As JSON
  genprop samples list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			samples, err := store.ListSamples(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(samples)
			}

			if len(samples) == 0 {
				pterm.Info.WithWriter(out).Println("No samples stored")
				return nil
			}

			data := pterm.TableData{{"sample", "property results", "step results", "matches", "updated"}}
			for _, s := range samples {
				updated := s.UpdatedAt
				data = append(data, []string{
					s.Name,
					strconv.Itoa(s.PropertyResults),
					strconv.Itoa(s.StepResults),
					strconv.Itoa(s.Matches),
					formatTime(&updated),
				})
			}

			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}
			_, err = fmt.Fprintln(out, table)
			return err
		},
	}
}

func newSamplesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sample>...",
		Short: "Delete stored samples and their evidence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, name := range args {
				if err := store.DeleteSample(cmd.Context(), name); err != nil {
					return err
				}
				pterm.Success.WithWriter(cmd.OutOrStdout()).Printf("Deleted %s\n", name)
			}
			return nil
		},
	}
}
