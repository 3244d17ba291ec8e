// Package batch discovers rule files and drives each one through the
// compile, seed, expand, validate, and export pipeline on a bounded worker
// pool.
package batch

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sigforge/core"
	"sigforge/detect"
	"sigforge/expand"
	"sigforge/export"
	"sigforge/metrics"
	"sigforge/seed"
	"sigforge/validate"
)

// Options carries the per-run knobs the pipeline needs.
type Options struct {
	Workers     int
	FailFast    bool
	Strict      bool
	Samples     int
	SeedSamples int
	RandomSeed  int64
	OutputDir   string
}

// Runner executes rule tasks. One runner is built per batch invocation;
// its collaborators are shared across workers and must be safe for
// concurrent use.
type Runner struct {
	loader    *core.Loader
	source    seed.Source
	validator *validate.Validator
	platforms []export.Platform
	opts      Options
	log       *zap.SugaredLogger
}

func NewRunner(source seed.Source, platforms []export.Platform, opts Options, log *zap.SugaredLogger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{
		loader:    core.NewLoader(),
		source:    source,
		validator: validate.New(log),
		platforms: platforms,
		opts:      opts,
		log:       log,
	}
}

// Run processes every rule file on a pool of Options.Workers goroutines and
// returns one result per file, in the discovery order of rulePaths.
//
// Fail-fast is cooperative: the first failure flips a shared flag, tasks
// still queued are recorded as skipped without running, and tasks already
// running finish normally with their real outcome.
func (r *Runner) Run(ctx context.Context, rulePaths []string) []core.RuleTaskResult {
	results := make([]core.RuleTaskResult, len(rulePaths))
	var resultsMu sync.Mutex

	var aborted atomic.Bool
	tasks := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				var res core.RuleTaskResult
				if aborted.Load() || ctx.Err() != nil {
					res = core.RuleTaskResult{
						RulePath: rulePaths[idx],
						Status:   core.StatusSkipped,
					}
				} else {
					res = r.runTask(ctx, rulePaths[idx])
					if res.Status == core.StatusFailed && r.opts.FailFast {
						aborted.Store(true)
					}
				}

				metrics.RulesProcessed.WithLabelValues(string(res.Status)).Inc()
				resultsMu.Lock()
				results[idx] = res
				resultsMu.Unlock()
			}
		}()
	}

	for idx := range rulePaths {
		tasks <- idx
	}
	close(tasks)
	wg.Wait()

	return results
}

// runTask is the whole per-rule pipeline. Every failure is caught here and
// recorded on the result; nothing escapes to the pool.
func (r *Runner) runTask(ctx context.Context, rulePath string) core.RuleTaskResult {
	start := time.Now()
	res := core.RuleTaskResult{RulePath: rulePath, Status: core.StatusRunning}

	fail := func(err error) core.RuleTaskResult {
		res.Status = core.StatusFailed
		res.Error = err.Error()
		res.Elapsed = time.Since(start)
		r.log.Errorw("rule task failed", "path", rulePath, "error", err)
		return res
	}

	rule, err := r.loader.LoadFile(rulePath)
	if err != nil {
		return fail(err)
	}
	res.RuleID = rule.ID

	compiled, err := detect.Compile(rule)
	if err != nil {
		return fail(fmt.Errorf("compile rule %s: %w", rule.ID, err))
	}

	stats := compiled.Stats()
	res.Diagnostics = append(res.Diagnostics, core.Diagnostic{
		Kind: core.DiagComplexity,
		Message: fmt.Sprintf("selections=%d fields=%d regex=%d condition_depth=%d quantifier_depth=%d",
			stats.SelectionCount, stats.FieldCount, stats.RegexModifiers, stats.ConditionDepth, stats.QuantifierDepth),
	})

	seeds, err := r.source.GetSeeds(ctx, rule, r.opts.SeedSamples)
	if err != nil {
		metrics.SeedRequests.WithLabelValues("failed").Inc()
		return fail(err)
	}
	metrics.SeedRequests.WithLabelValues("ok").Inc()

	expander := expand.New(rule.ID, compiled.FieldProfiles(), r.taskSeed(rule.ID))
	cases, expandDiags := expander.Expand(seeds, r.opts.Samples)
	res.Diagnostics = append(res.Diagnostics, expandDiags...)

	validation := r.validator.Validate(compiled, cases)
	res.Diagnostics = append(res.Diagnostics, validation.Diagnostics...)
	for _, tc := range validation.Accepted {
		metrics.TestCasesGenerated.WithLabelValues(string(tc.Label)).Inc()
	}
	for _, tc := range validation.Mismatches {
		metrics.ValidationMismatches.WithLabelValues(string(tc.MismatchReason)).Inc()
	}

	if r.opts.Strict && len(validation.Mismatches) > 0 {
		return fail(fmt.Errorf("strict mode: %d validation mismatches", len(validation.Mismatches)))
	}

	res.TestCases = validation.Accepted

	for _, platform := range r.platforms {
		artifact, err := platform.Export(rule, validation.Accepted, r.opts.OutputDir)
		if err != nil {
			return fail(fmt.Errorf("export %s: %w", platform.Name(), err))
		}
		res.ArtifactPaths = append(res.ArtifactPaths, artifact.Paths...)
		for _, w := range artifact.Warnings {
			res.Diagnostics = append(res.Diagnostics, core.Diagnostic{
				Kind:    core.DiagExportWarning,
				Message: fmt.Sprintf("%s: %s", platform.Name(), w),
			})
		}
	}

	res.Status = core.StatusOK
	res.Elapsed = time.Since(start)
	metrics.RuleTaskDuration.Observe(res.Elapsed.Seconds())
	r.log.Infow("rule task finished",
		"rule_id", rule.ID,
		"path", rulePath,
		"cases", len(res.TestCases),
		"mismatches", len(validation.Mismatches),
		"elapsed", res.Elapsed)
	return res
}

// taskSeed derives a per-rule random seed from the configured one, so
// expansion for a rule is stable no matter where the rule lands in the
// batch or how many workers run.
func (r *Runner) taskSeed(ruleID string) int64 {
	sum := sha256.Sum256([]byte(ruleID))
	return r.opts.RandomSeed ^ int64(binary.BigEndian.Uint64(sum[:8])&0x7fffffffffffffff)
}

// Summary aggregates a batch for reporting.
type Summary struct {
	Total     int
	OK        int
	Failed    int
	Skipped   int
	TestCases int
	Warnings  int
}

// Summarize folds the per-rule results into totals.
func Summarize(results []core.RuleTaskResult) Summary {
	var s Summary
	s.Total = len(results)
	for _, res := range results {
		switch res.Status {
		case core.StatusOK:
			s.OK++
		case core.StatusFailed:
			s.Failed++
		case core.StatusSkipped:
			s.Skipped++
		}
		s.TestCases += len(res.TestCases)
		for _, d := range res.Diagnostics {
			if d.Kind != core.DiagComplexity {
				s.Warnings++
			}
		}
	}
	return s
}
