package core

// Label states whether a test case is meant to match its rule.
type Label string

const (
	// LabelPositive marks a test case that must match the rule.
	LabelPositive Label = "positive"
	// LabelNegative marks a test case that must not match the rule.
	LabelNegative Label = "negative"
)

// Matches reports the boolean the label represents.
func (l Label) Matches() bool { return l == LabelPositive }

// Origin tells where a test case's event came from.
type Origin string

const (
	// OriginSeed marks an event taken verbatim from the seed source.
	OriginSeed Origin = "seed"
	// OriginDerived marks an event produced by a mutation operator.
	OriginDerived Origin = "derived"
)

// MismatchReason classifies a label/outcome disagreement found by the
// validator.
type MismatchReason string

const (
	// MismatchSeedContradictsRule: a seed event's evaluated outcome
	// disagrees with the label it was delivered with.
	MismatchSeedContradictsRule MismatchReason = "seed-contradicts-rule"
	// MismatchMutationFlipped: a derived event's mutation changed the match
	// outcome when it was not supposed to.
	MismatchMutationFlipped MismatchReason = "mutation-flipped-unexpectedly"
	// MismatchNoiseAlteredOutcome: a noise-field injection changed the
	// outcome. Noise fields must never affect matching, so this signals a
	// likely modifier-semantics bug and is always surfaced.
	MismatchNoiseAlteredOutcome MismatchReason = "noise-field-altered-outcome"
)

// TestCase is one synthetic event together with its intended and observed
// match outcome. The expansion engine creates test cases; the validator is
// the only component that mutates them (filling ActualMatch and
// MismatchReason); after validation they are read-only.
type TestCase struct {
	ID     string `json:"id"`
	RuleID string `json:"rule_id"`
	Label  Label  `json:"label"`
	Event  Event  `json:"event"`
	Origin Origin `json:"origin"`

	// Operator names the mutation operator that derived this case. Empty
	// for seed cases. The validator uses it to recognize noise-injection
	// canaries.
	Operator string `json:"operator,omitempty"`

	ExpectedMatch  bool           `json:"expected_match"`
	ActualMatch    bool           `json:"actual_match"`
	MismatchReason MismatchReason `json:"mismatch_reason,omitempty"`
}

// Seed is one event delivered by the external seed source, together with
// the label the source intended for it.
type Seed struct {
	Event    Event
	Positive bool
}
