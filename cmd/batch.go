package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"sigforge/batch"
	"sigforge/bootstrap"
	"sigforge/core"
	"sigforge/export"
)

// newBatchCmd creates the 'batch' subcommand for directory runs.
func newBatchCmd() *cobra.Command {
	var (
		excludes     []string
		workers      int
		failFast     bool
		strict       bool
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "batch [pattern...]",
		Short: "Generate test suites for every rule matching the patterns",
		Long: `Discover rule files by glob pattern (use ** for recursive descent), run
each one through the generation pipeline on a worker pool, and print a
per-rule report followed by a summary. Patterns default to the configured
input patterns when none are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, sugar := bootstrap.InitLogger(verbose)
			defer logger.Sync() //nolint:errcheck

			cfg, err := bootstrap.InitConfig(configFile, sugar)
			if err != nil {
				return err
			}

			includes := args
			if len(includes) == 0 {
				includes = cfg.Batch.InputPatterns
			}
			if len(includes) == 0 {
				return fmt.Errorf("no input patterns: pass them as arguments or set batch.input_patterns")
			}
			if cmd.Flags().Changed("exclude") {
				cfg.Batch.ExcludePatterns = excludes
			}
			if cmd.Flags().Changed("workers") {
				cfg.Batch.ParallelWorkers = workers
			}
			if cmd.Flags().Changed("fail-fast") {
				cfg.Batch.FailFast = failFast
			}
			if cmd.Flags().Changed("strict") {
				cfg.Validation.Strict = strict
			}

			paths, err := batch.FindRuleFiles(includes, cfg.Batch.ExcludePatterns)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				warningColor.Println("No rule files matched the input patterns")
				return nil
			}
			if !quiet && !outputJSON {
				infoColor.Printf("Discovered %d rule files\n", len(paths))
			}

			source, err := bootstrap.InitSeedSource(cfg, sugar)
			if err != nil {
				return err
			}
			targets, err := export.DefaultRegistry().Resolve(cfg.Platforms)
			if err != nil {
				return err
			}

			runner := batch.NewRunner(source, targets, batch.Options{
				Workers:     cfg.Batch.ParallelWorkers,
				FailFast:    cfg.Batch.FailFast,
				Strict:      cfg.Validation.Strict,
				Samples:     cfg.Samples,
				SeedSamples: cfg.SeedSamples,
				RandomSeed:  cfg.RandomSeed,
				OutputDir:   cfg.OutputDir,
			}, sugar)

			var s *spinner.Spinner
			if showProgress && !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = fmt.Sprintf(" Processing %d rules...", len(paths))
				s.Start()
			}

			results := runner.Run(ctx, paths)

			if s != nil {
				s.Stop()
			}

			summary := batch.Summarize(results)

			if outputJSON {
				return outputAsJSON(struct {
					Results []core.RuleTaskResult `json:"results"`
					Summary batch.Summary         `json:"summary"`
				}{results, summary})
			}

			renderResultsTable(results)
			renderSummary(summary)

			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d rule tasks failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "Exclude glob patterns")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of parallel workers")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Skip queued rules after the first failure")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail a rule task on any validation mismatch")
	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")

	return cmd
}
