// Package cmd implements the rigkit command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "rigkit",
		Short:         "Inspect, query and rewrite MVR scenes and GDTF fixture types",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfigLoad"] == "true" {
				return nil
			}
			_, err := ctx.ensureConfig(cmd)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&ctx.logFormat, "log-format", "", "Log format: console or json")
	flags.StringSliceVar(&ctx.gdtfPaths, "gdtf-path", nil, "Directory of external .gdtf files (repeatable)")
	flags.IntVar(&ctx.universeSize, "universe-size", 0, "Channels per DMX universe")
	flags.StringVarP(&ctx.output, "output", "o", "table", "Output format: table, json or yaml")

	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newFixturesCommand(ctx))
	rootCmd.AddCommand(newTreeCommand(ctx))
	rootCmd.AddCommand(newQueryCommand(ctx))
	rootCmd.AddCommand(newIndexCommand(ctx))
	rootCmd.AddCommand(newWriteCommand(ctx))
	rootCmd.AddCommand(newGeometryCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
