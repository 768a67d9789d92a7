package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"content_draft_generator/config"
	"content_draft_generator/generator"
	"content_draft_generator/logger"
)

var rootCmd = &cobra.Command{
	Use:   "draftgen",
	Short: "Generate, critique and revise marketing drafts with a language model",
	Long: `draftgen chains model calls into a fixed pipeline (analyze, draft, critique, finalize)
and lets you revise the final draft with free-text feedback, from the terminal or over HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "draftgen.yaml", "path to a JSON or YAML config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")
}

// runtime bundles what every command needs.
type runtime struct {
	cfg   config.Config
	log   *logger.Logger
	agent *generator.Agent
}

func loadRuntime(ctx context.Context, cmd *cobra.Command, runnerOpts ...generator.RunnerOption) (*runtime, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode, verbose)
	if err != nil {
		return nil, err
	}

	llm, err := generator.NewTextCompletion(ctx, cfg.LLMSettings())
	if err != nil {
		return nil, err
	}
	opts := append([]generator.RunnerOption{
		generator.WithLogger(log),
		generator.WithDefaults(cfg.CompletionOptions()),
	}, runnerOpts...)
	runner, err := generator.NewRunner(llm, opts...)
	if err != nil {
		return nil, err
	}
	agent, err := generator.NewAgent(runner)
	if err != nil {
		return nil, err
	}
	log.Debug("runtime ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model, "api_key_set", cfg.LLM.APIKey != "")
	return &runtime{cfg: cfg, log: log, agent: agent}, nil
}
