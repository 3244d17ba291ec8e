// Package validate re-checks every test case against its compiled rule and
// splits the corpus into accepted cases and mismatches.
package validate

import (
	"fmt"

	"go.uber.org/zap"

	"sigforge/core"
	"sigforge/detect"
	"sigforge/expand"
)

// Result is the outcome of validating one rule's corpus.
type Result struct {
	// Accepted holds every case whose observed outcome equals its label.
	Accepted []core.TestCase
	// Mismatches holds the rejected cases, each with a MismatchReason.
	Mismatches []core.TestCase
	// Diagnostics carries one entry per mismatch for the task result.
	Diagnostics []core.Diagnostic
}

// Validator evaluates corpora against compiled rules.
type Validator struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Validator {
	return &Validator{log: log}
}

// Validate computes the actual match outcome for every test case and
// classifies disagreements. Cases whose outcome matches their label are
// accepted; the rest are retained as mismatches with a reason:
//
//   - seed-contradicts-rule: a seed event disagreed with its delivered
//     label, meaning the seed source produced a bad example.
//   - noise-field-altered-outcome: a noise-injection canary changed the
//     outcome, meaning a matching-semantics defect. Never silently dropped.
//   - mutation-flipped-unexpectedly: any other derived case whose mutation
//     had a different effect than predicted.
func (v *Validator) Validate(compiled *detect.CompiledRule, cases []core.TestCase) Result {
	var res Result

	for _, tc := range cases {
		tc.ActualMatch = compiled.Evaluate(tc.Event)

		if tc.ActualMatch == tc.ExpectedMatch {
			res.Accepted = append(res.Accepted, tc)
			continue
		}

		tc.MismatchReason = classify(tc)
		res.Mismatches = append(res.Mismatches, tc)
		res.Diagnostics = append(res.Diagnostics, core.Diagnostic{
			Kind: core.DiagValidationMismatch,
			Message: fmt.Sprintf("case %s (%s): expected match=%v, got %v (%s)",
				tc.ID, tc.Label, tc.ExpectedMatch, tc.ActualMatch, tc.MismatchReason),
		})

		if tc.MismatchReason == core.MismatchNoiseAlteredOutcome {
			v.log.Errorw("noise field altered match outcome",
				"rule_id", tc.RuleID,
				"case_id", tc.ID,
				"expected", tc.ExpectedMatch,
				"actual", tc.ActualMatch)
		} else {
			v.log.Debugw("validation mismatch",
				"rule_id", tc.RuleID,
				"case_id", tc.ID,
				"reason", tc.MismatchReason)
		}
	}

	return res
}

func classify(tc core.TestCase) core.MismatchReason {
	switch {
	case tc.Origin == core.OriginSeed:
		return core.MismatchSeedContradictsRule
	case tc.Operator == expand.OpNoiseInjection:
		return core.MismatchNoiseAlteredOutcome
	default:
		return core.MismatchMutationFlipped
	}
}
