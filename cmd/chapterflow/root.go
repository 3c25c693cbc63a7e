package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath     string
	nodeConfigPath string
	verbose        bool
}

func newRootCommand() *cobra.Command {
	options := &rootOptions{}

	rootCommand := &cobra.Command{
		Use:   "chapterflow",
		Short: "Chapter-parallel document summarization pipeline",
		Long: `chapterflow summarizes a folder of documents into per-chapter timelines.

Documents are assigned to chapters by keyword, each chapter is summarized
by its own branch running in parallel, and the branch timelines are merged
into one consolidated case timeline. Every stage is traced with bounded,
redacted input/output snapshots.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCommand.PersistentFlags().StringVarP(&options.configPath, "config", "c", "config.yaml", "pipeline config file")
	rootCommand.PersistentFlags().StringVar(&options.nodeConfigPath, "node-config", "node_config.yaml", "per-stage snapshot config file")
	rootCommand.PersistentFlags().BoolVarP(&options.verbose, "verbose", "v", false, "enable debug logging")

	rootCommand.AddCommand(newRunCommand(options))

	return rootCommand
}
