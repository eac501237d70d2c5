package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/genprop/genprop/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded assignment runs",
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	cmd.AddCommand(newRunsDeleteCommand())

	return cmd
}

func newRunsListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				pterm.Info.WithWriter(out).Println("No runs recorded")
				return nil
			}

			data := pterm.TableData{{"run", "status", "root", "samples", "started", "completed"}}
			for _, run := range runs {
				started := run.StartedAt
				data = append(data, []string{
					run.ID,
					string(run.Status),
					run.RootProperty,
					strings.Join(run.Samples, ", "),
					formatTime(&started),
					formatTime(run.CompletedAt),
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

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var filter *stores.EventLevel
			if level != "" {
				l := stores.EventLevel(level)
				filter = &l
			}
			events, err := store.GetEvents(cmd.Context(), run.ID, filter, 1000, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"run": run, "events": events})
			}

			fmt.Fprintf(out, "Run:       %s\n", run.ID)
			fmt.Fprintf(out, "Status:    %s\n", run.Status)
			fmt.Fprintf(out, "Tree:      %s (root %s)\n", run.TreePath, run.RootProperty)
			fmt.Fprintf(out, "Samples:   %s\n", strings.Join(run.Samples, ", "))
			fmt.Fprintf(out, "Started:   %s\n", formatTime(&run.StartedAt))
			fmt.Fprintf(out, "Completed: %s\n", formatTime(run.CompletedAt))
			if run.Error != nil {
				fmt.Fprintf(out, "Error:     %s\n", *run.Error)
			}

			for _, e := range events {
				prefix := ""
				if e.Sample != nil {
					prefix = *e.Sample + ": "
				}
				fmt.Fprintf(out, "  [%s] %s%s\n", e.Level, prefix, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "only show events of this level")

	return cmd
}

func newRunsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete runs with their results and events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, id := range args {
				if err := store.DeleteRun(cmd.Context(), id); err != nil {
					return err
				}
				pterm.Success.WithWriter(cmd.OutOrStdout()).Printf("Deleted run %s\n", id)
			}
			return nil
		},
	}
}
