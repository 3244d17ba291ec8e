package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sigforge/batch"
	"sigforge/bootstrap"
	"sigforge/core"
	"sigforge/export"
)

// newGenerateCmd creates the 'generate' subcommand for a single rule file.
func newGenerateCmd() *cobra.Command {
	var (
		samples     int
		seedSamples int
		randomSeed  int64
		outputDir   string
		platforms   []string
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "generate <rule-file>",
		Short: "Generate a test suite for one rule",
		Long: `Generate a labeled synthetic event corpus for a single rule file,
validate every event against the compiled rule, and export the accepted
cases for the configured platforms.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, sugar := bootstrap.InitLogger(verbose)
			defer logger.Sync() //nolint:errcheck

			cfg, err := bootstrap.InitConfig(configFile, sugar)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("samples") {
				cfg.Samples = samples
			}
			if cmd.Flags().Changed("seed-samples") {
				cfg.SeedSamples = seedSamples
			}
			if cmd.Flags().Changed("random-seed") {
				cfg.RandomSeed = randomSeed
			}
			if cmd.Flags().Changed("output") {
				cfg.OutputDir = outputDir
			}
			if cmd.Flags().Changed("platforms") {
				cfg.Platforms = platforms
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
				Workers:     1,
				Strict:      strict || cfg.Validation.Strict,
				Samples:     cfg.Samples,
				SeedSamples: cfg.SeedSamples,
				RandomSeed:  cfg.RandomSeed,
				OutputDir:   cfg.OutputDir,
			}, sugar)

			results := runner.Run(ctx, []string{args[0]})
			res := results[0]

			if outputJSON {
				if err := outputAsJSON(res); err != nil {
					return err
				}
			} else {
				renderTaskResult(res)
			}

			if res.Status == core.StatusFailed {
				return fmt.Errorf("rule task failed: %s", res.Error)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 0, "Target number of test cases")
	cmd.Flags().IntVar(&seedSamples, "seed-samples", 0, "Number of positive and negative seeds to request")
	cmd.Flags().Int64Var(&randomSeed, "random-seed", 0, "Random seed for deterministic expansion")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for exported artifacts")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "Export platforms (panther, splunk, elastic)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail the task on any validation mismatch")

	return cmd
}
