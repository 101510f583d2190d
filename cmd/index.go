package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/rigkit/internal/export"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "index <file.mvr> <output.db>",
		Short: "Write a SQLite index of the scene",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, output := args[0], args[1]

			res, err := ctx.openScene(cmd.Context(), cmd, source)
			if err != nil {
				return err
			}
			defer res.Close()

			if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", output, err)
			}
			start := time.Now()
			if err := export.Index(cmd.Context(), res.Scene, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d nodes into %s in %v.\n",
				res.Scene.Len(), output, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
