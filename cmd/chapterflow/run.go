package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chapterflow/graph"
	"chapterflow/instrument"
	"chapterflow/llm"
	"chapterflow/observability/zapobs"
	"chapterflow/summary"
)

const apiKeyEnv = "OPENROUTER_API_KEY"

type runOptions struct {
	folderID       string
	model          string
	maxConcurrency int
	archive        bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	options := &runOptions{}

	runCommand := &cobra.Command{
		Use:   "run",
		Short: "Run the summarization pipeline for one folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, root, options)
		},
	}

	runCommand.Flags().StringVarP(&options.folderID, "folder", "f", "", "folder ID to process (defaults to folder.id from config)")
	runCommand.Flags().StringVarP(&options.model, "model", "m", "openai/gpt-4o-mini", "model used for chapter summarization")
	runCommand.Flags().IntVar(&options.maxConcurrency, "max-concurrency", 0, "max parallel chapter branches (0 = unlimited)")
	runCommand.Flags().BoolVar(&options.archive, "archive", false, "archive the merged summary as a JSON artifact")

	return runCommand
}

func runPipeline(cmd *cobra.Command, root *rootOptions, options *runOptions) error {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load() //nolint:errcheck

	cfg, err := summary.LoadConfig(root.configPath)
	if err != nil {
		return err
	}
	if options.archive {
		cfg.Timeline.Progressive.ArchiveSummary = true
	}

	observer, err := newObserver(root.verbose)
	if err != nil {
		return err
	}

	nodeConfig := instrument.LoadConfig(root.nodeConfigPath, observer)
	recorder := instrument.NewRecorder(nodeConfig, instrument.WithObserver(observer))

	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("%s is not set", apiKeyEnv)
	}
	completer := llm.NewClient(apiKey, options.model)

	subgraphs, err := summary.NewTimelineBuilder(completer, recorder).
		BuildAll(cfg.Timeline.AvailableChapters)
	if err != nil {
		return err
	}

	pipeline, err := summary.BuildGraph(cfg, recorder, subgraphs,
		graph.WithObserver(observer),
		graph.WithMaxConcurrency(options.maxConcurrency),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initialState := graph.State{
		summary.KeyConfig:   cfg,
		summary.KeyFolderID: options.folderID,
	}

	finalState, err := pipeline.Execute(ctx, initialState)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(finalState[summary.KeyResult], "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	cmd.Println(string(encoded))

	archivePath, err := summary.ArchiveSummary(finalState, cfg)
	if err != nil {
		return err
	}
	if archivePath != "" {
		cmd.Printf("archived summary written to %s\n", archivePath)
	}

	return nil
}

func newObserver(verbose bool) (*zapobs.Observer, error) {
	if !verbose {
		return zapobs.New(), nil
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapobs.New(zapobs.WithLogger(logger)), nil
}
