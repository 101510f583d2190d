package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/rigkit/internal/mvr"
)

func newWriteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "write <input.mvr> <output.mvr>",
		Short: "Rewrite a scene into a new MVR archive",
		Long: `Rewrite a scene into a new MVR archive. The descriptor is regenerated from
the scene graph; referenced mesh files and fixture types are copied in.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.openScene(cmd.Context(), cmd, args[0])
			if err != nil {
				return err
			}
			defer res.Close()

			assets, err := res.Scene.Assets(res.Resolver)
			if err != nil {
				ctx.logger.Warn("some assets were not copied", zap.Error(err))
			}

			f, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[1], err)
			}
			if err := mvr.WriteArchive(f, res.Scene.Document(), assets, res.Scene.Patch().UniverseSize()); err != nil {
				_ = f.Close()
				return fmt.Errorf("write %s: %w", args[1], err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d nodes, %d assets.\n", args[1], res.Scene.Len(), len(assets))
			return nil
		},
	}
}
