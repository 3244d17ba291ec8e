package expand

import (
	"reflect"
	"testing"

	"sigforge/core"
	"sigforge/detect"
)

func trailProfiles() []detect.FieldProfile {
	return []detect.FieldProfile{
		{Selection: "selection", Field: "eventName", Op: detect.OpEquals, Values: []string{"CreateTrail"}},
		{Selection: "selection", Field: "eventSource", Op: detect.OpEquals, Values: []string{"cloudtrail.amazonaws.com"}},
	}
}

func trailSeeds() []core.Seed {
	return []core.Seed{
		{
			Event: core.Event{
				"eventName":   "CreateTrail",
				"eventSource": "cloudtrail.amazonaws.com",
				"awsRegion":   "us-east-1",
				"userAgent":   "aws-cli/2.13.0",
			},
			Positive: true,
		},
		{
			Event: core.Event{
				"eventName":   "DescribeTrails",
				"eventSource": "cloudtrail.amazonaws.com",
				"awsRegion":   "eu-west-1",
				"userAgent":   "console.aws.amazon.com",
			},
			Positive: false,
		},
	}
}

// TestExpand_ReachesTarget verifies that expansion produces exactly the
// requested number of unique cases when the operators can supply them.
func TestExpand_ReachesTarget(t *testing.T) {
	e := New("rule-1", trailProfiles(), 42)
	cases, diags := e.Expand(trailSeeds(), 20)

	if len(cases) != 20 {
		t.Fatalf("expected 20 cases, got %d (diagnostics: %v)", len(cases), diags)
	}
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics at full target, got %v", diags)
	}
}

// TestExpand_Dedup verifies no two cases share identical canonical content.
func TestExpand_Dedup(t *testing.T) {
	e := New("rule-1", trailProfiles(), 42)
	cases, _ := e.Expand(trailSeeds(), 50)

	seen := map[string]bool{}
	for _, tc := range cases {
		hash := tc.Event.ContentHash()
		if seen[hash] {
			t.Fatalf("duplicate event content: %v", tc.Event)
		}
		seen[hash] = true
	}
}

// TestExpand_Deterministic verifies that identical inputs and random seed
// produce identical corpora.
func TestExpand_Deterministic(t *testing.T) {
	a, _ := New("rule-1", trailProfiles(), 7).Expand(trailSeeds(), 30)
	b, _ := New("rule-1", trailProfiles(), 7).Expand(trailSeeds(), 30)

	if len(a) != len(b) {
		t.Fatalf("corpus sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !reflect.DeepEqual(a[i].Event, b[i].Event) {
			t.Fatalf("case %d differs:\n%v\n%v", i, a[i].Event, b[i].Event)
		}
		if a[i].Label != b[i].Label || a[i].Operator != b[i].Operator {
			t.Fatalf("case %d metadata differs", i)
		}
	}
}

// TestExpand_SeedsFirst verifies that every seed appears verbatim at the
// front of the corpus with origin seed.
func TestExpand_SeedsFirst(t *testing.T) {
	seeds := trailSeeds()
	e := New("rule-1", trailProfiles(), 1)
	cases, _ := e.Expand(seeds, 10)

	if len(cases) < len(seeds) {
		t.Fatalf("expected at least %d cases, got %d", len(seeds), len(cases))
	}
	for i, seed := range seeds {
		if cases[i].Origin != core.OriginSeed {
			t.Errorf("case %d: expected seed origin, got %s", i, cases[i].Origin)
		}
		if cases[i].ExpectedMatch != seed.Positive {
			t.Errorf("case %d: expected match %v, got %v", i, seed.Positive, cases[i].ExpectedMatch)
		}
		if !reflect.DeepEqual(cases[i].Event, seed.Event) {
			t.Errorf("case %d: seed event altered", i)
		}
	}
}

// TestExpand_LabelPreservingOperators verifies that noise injection, case
// variation, whitespace edges, and field omission keep the seed's label.
func TestExpand_LabelPreservingOperators(t *testing.T) {
	preserving := map[string]bool{
		OpNoiseInjection: true,
		OpCaseVariation:  true,
		OpWhitespaceEdge: true,
		OpFieldOmission:  true,
	}

	e := New("rule-1", trailProfiles(), 99)
	cases, _ := e.Expand(trailSeeds()[:1], 40)

	for _, tc := range cases {
		if tc.Origin == core.OriginSeed {
			continue
		}
		if preserving[tc.Operator] && !tc.ExpectedMatch {
			t.Errorf("operator %s flipped the label of a positive seed", tc.Operator)
		}
	}
}

// TestExpand_NumericBoundaries verifies threshold probing emits values on
// both sides of the threshold with matching labels.
func TestExpand_NumericBoundaries(t *testing.T) {
	profiles := []detect.FieldProfile{
		{Selection: "selection", Field: "Count", Op: detect.ModifierGT, Threshold: 100, HasThreshold: true},
	}
	seeds := []core.Seed{
		{Event: core.Event{"Count": 150, "host": "web-1"}, Positive: true},
	}

	e := New("rule-1", profiles, 3)
	cases, _ := e.Expand(seeds, 30)

	var sawSatisfy, sawViolate bool
	for _, tc := range cases {
		if tc.Operator != OpNumericBoundary {
			continue
		}
		switch tc.Event["Count"] {
		case 101:
			sawSatisfy = true
			if !tc.ExpectedMatch {
				t.Error("value above threshold must be labeled positive")
			}
		case 100:
			sawViolate = true
			if tc.ExpectedMatch {
				t.Error("value at threshold must be labeled negative for strict gt")
			}
		}
	}
	if !sawSatisfy || !sawViolate {
		t.Errorf("expected boundary cases on both sides of the threshold (satisfy=%v violate=%v)", sawSatisfy, sawViolate)
	}
}

// TestExpand_Shortfall verifies that running out of unique variants yields
// a diagnostic rather than an error.
func TestExpand_Shortfall(t *testing.T) {
	// One seed with a single referenced field and nothing else to vary.
	profiles := []detect.FieldProfile{
		{Selection: "selection", Field: "a", Op: detect.OpEquals, Values: []string{"v"}},
	}
	seeds := []core.Seed{{Event: core.Event{"a": "v"}, Positive: true}}

	e := New("rule-1", profiles, 5)
	cases, diags := e.Expand(seeds, 10000)

	if len(cases) >= 10000 {
		t.Fatal("expected a shortfall with such a small mutation surface")
	}
	if len(diags) != 1 || diags[0].Kind != core.DiagExpansionShortfall {
		t.Errorf("expected one expansion-shortfall diagnostic, got %v", diags)
	}
}

// TestExpand_ZeroTarget verifies a non-positive target yields nothing.
func TestExpand_ZeroTarget(t *testing.T) {
	e := New("rule-1", trailProfiles(), 1)
	cases, diags := e.Expand(trailSeeds(), 0)
	if len(cases) != 0 || len(diags) != 0 {
		t.Errorf("expected empty result for zero target, got %d cases %d diagnostics", len(cases), len(diags))
	}
}

// TestNearMissValue verifies the single-character miss constructions.
func TestNearMissValue(t *testing.T) {
	tests := []struct {
		op    string
		value string
		check func(string) bool
	}{
		{detect.ModifierContains, "create", func(s string) bool { return s == "cre_ate" }},
		{detect.ModifierStartsWith, "cmd", func(s string) bool { return s == "_cmd" }},
		{detect.ModifierEndsWith, ".exe", func(s string) bool { return s == ".exe_" }},
	}
	for _, tc := range tests {
		got, ok := nearMissValue(detect.FieldProfile{Op: tc.op}, tc.value)
		if !ok {
			t.Errorf("op %s: expected a near-miss value", tc.op)
			continue
		}
		if !tc.check(got) {
			t.Errorf("op %s: unexpected near-miss %q", tc.op, got)
		}
	}
}
