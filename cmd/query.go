package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/rigkit/internal/export"
)

func newQueryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "query <file.mvr> <jsonpath>",
		Short: "Evaluate a JSONPath expression against the scene",
		Long: `Evaluate a JSONPath expression against the scene document.

The document has the keys scene, layers, fixtures, fixture_types, classes
and diagnostics. For example:

  rigkit query show.mvr '$.fixtures[?(@.mode == "Extended")].name'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.openScene(cmd.Context(), cmd, args[0])
			if err != nil {
				return err
			}
			defer res.Close()

			matches, err := export.Query(export.Tree(res.Scene), args[1])
			if err != nil {
				return err
			}
			values := export.Values(matches)
			if ctx.output == "yaml" {
				_, err := ctx.emit(cmd, values)
				return err
			}
			return export.WriteJSON(cmd.OutOrStdout(), values)
		},
	}
}
