package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/genprop/genprop/pkg/config"
)

func newValidateCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "validate <tree>",
		Short: "Validate a property tree definition",
		Long: `Validate a property tree definition file or CUE package directory.

This command checks:
  - YAML, CUE or JSON syntax
  - Schema conformance
  - Field constraints such as step numbers and requirement modes
  - Unique step numbers, resolvable children and absence of cycles`,
		Example: `  # Validate a tree
  genprop validate genprop.yaml

  # Render the tree as Graphviz DOT
  genprop validate --dot genprop.yaml | dot -Tsvg > tree.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			log.Debug().Str("path", path).Msg("Validating property tree")

			tree, err := config.LoadTree(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case dot:
				_, err = fmt.Fprint(out, tree.ToDOT())
				return err
			case jsonOutput:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"valid":      true,
					"root":       tree.RootID(),
					"properties": tree.Len(),
				})
			default:
				pterm.Success.WithWriter(out).Printf("%s is valid: root %s, %d properties\n",
					path, tree.RootID(), tree.Len())
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "print the tree as Graphviz DOT")

	return cmd
}
