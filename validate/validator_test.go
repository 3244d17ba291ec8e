package validate

import (
	"testing"

	"go.uber.org/zap"

	"sigforge/core"
	"sigforge/detect"
	"sigforge/expand"
)

func compiledFixture(t *testing.T) *detect.CompiledRule {
	t.Helper()
	rule := &core.Rule{
		ID:        "rule-1",
		Title:     "validator fixture",
		Level:     "medium",
		Condition: "selection",
		Selections: map[string]core.Selection{
			"selection": {Entries: []core.FieldMap{{"eventName": "CreateTrail"}}},
		},
	}
	compiled, err := detect.Compile(rule)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return compiled
}

func newValidator() *Validator {
	return New(zap.NewNop().Sugar())
}

// TestValidate_AcceptsConsistentCases verifies label-consistent cases land
// in the accepted set with ActualMatch filled in.
func TestValidate_AcceptsConsistentCases(t *testing.T) {
	compiled := compiledFixture(t)
	cases := []core.TestCase{
		{
			ID: "p1", RuleID: "rule-1", Label: core.LabelPositive, Origin: core.OriginSeed,
			Event: core.Event{"eventName": "CreateTrail"}, ExpectedMatch: true,
		},
		{
			ID: "n1", RuleID: "rule-1", Label: core.LabelNegative, Origin: core.OriginSeed,
			Event: core.Event{"eventName": "DescribeTrails"}, ExpectedMatch: false,
		},
	}

	res := newValidator().Validate(compiled, cases)

	if len(res.Accepted) != 2 || len(res.Mismatches) != 0 {
		t.Fatalf("expected 2 accepted / 0 mismatches, got %d / %d", len(res.Accepted), len(res.Mismatches))
	}
	for _, tc := range res.Accepted {
		if tc.ActualMatch != tc.ExpectedMatch {
			t.Errorf("case %s: accepted with inconsistent outcome", tc.ID)
		}
		if tc.MismatchReason != "" {
			t.Errorf("case %s: accepted case must carry no mismatch reason", tc.ID)
		}
	}
}

// TestValidate_ClassifiesMismatches covers the three mismatch reasons.
func TestValidate_ClassifiesMismatches(t *testing.T) {
	compiled := compiledFixture(t)

	tests := []struct {
		name   string
		tc     core.TestCase
		reason core.MismatchReason
	}{
		{
			name: "seed labeled positive but does not match",
			tc: core.TestCase{
				ID: "s1", Label: core.LabelPositive, Origin: core.OriginSeed,
				Event: core.Event{"eventName": "DeleteTrail"}, ExpectedMatch: true,
			},
			reason: core.MismatchSeedContradictsRule,
		},
		{
			name: "noise canary flipped",
			tc: core.TestCase{
				ID: "c1", Label: core.LabelNegative, Origin: core.OriginDerived,
				Operator: expand.OpNoiseInjection,
				Event:    core.Event{"eventName": "CreateTrail", "zz_noise": "x"},
				// Labeled negative but the event matches: a flip.
				ExpectedMatch: false,
			},
			reason: core.MismatchNoiseAlteredOutcome,
		},
		{
			name: "mutation flipped unexpectedly",
			tc: core.TestCase{
				ID: "d1", Label: core.LabelNegative, Origin: core.OriginDerived,
				Operator: expand.OpSelectionBreak,
				Event:    core.Event{"eventName": "CreateTrail"}, ExpectedMatch: false,
			},
			reason: core.MismatchMutationFlipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newValidator().Validate(compiled, []core.TestCase{tt.tc})
			if len(res.Mismatches) != 1 {
				t.Fatalf("expected 1 mismatch, got %d (accepted %d)", len(res.Mismatches), len(res.Accepted))
			}
			got := res.Mismatches[0]
			if got.MismatchReason != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, got.MismatchReason)
			}
			if len(res.Diagnostics) != 1 || res.Diagnostics[0].Kind != core.DiagValidationMismatch {
				t.Errorf("expected one validation-mismatch diagnostic, got %v", res.Diagnostics)
			}
		})
	}
}

// TestValidate_AcceptedSetIsLabelConsistent verifies the post-validation
// invariant over a mixed corpus.
func TestValidate_AcceptedSetIsLabelConsistent(t *testing.T) {
	compiled := compiledFixture(t)

	var cases []core.TestCase
	events := []core.Event{
		{"eventName": "CreateTrail"},
		{"eventName": "createtrail"},
		{"eventName": "DeleteTrail"},
		{"eventName": "CreateTrail", "extra": "noise"},
		{},
	}
	for i, ev := range events {
		// Deliberately label half of them wrong.
		cases = append(cases, core.TestCase{
			ID:            string(rune('a' + i)),
			Label:         core.LabelPositive,
			Origin:        core.OriginDerived,
			Operator:      expand.OpCaseVariation,
			Event:         ev,
			ExpectedMatch: true,
		})
	}

	res := newValidator().Validate(compiled, cases)

	for _, tc := range res.Accepted {
		if !compiled.Evaluate(tc.Event) {
			t.Errorf("accepted case %s does not satisfy its rule", tc.ID)
		}
	}
	if len(res.Accepted)+len(res.Mismatches) != len(cases) {
		t.Error("validation must account for every input case")
	}
}
