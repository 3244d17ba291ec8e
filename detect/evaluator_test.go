package detect

import (
	"errors"
	"testing"

	"sigforge/core"
)

func testRule(condition string, selections map[string]core.Selection) *core.Rule {
	return &core.Rule{
		ID:         "00000000-0000-4000-8000-000000000001",
		Title:      "evaluator fixture",
		Level:      "medium",
		Condition:  condition,
		Selections: selections,
	}
}

func selectionOf(entries ...core.FieldMap) core.Selection {
	return core.Selection{Entries: entries}
}

func mustCompile(t *testing.T, rule *core.Rule) *CompiledRule {
	t.Helper()
	compiled, err := Compile(rule)
	if err != nil {
		t.Fatalf("Compile: unexpected error: %v", err)
	}
	return compiled
}

// TestEvaluate_CloudTrailTampering exercises a rule with two alternative
// event names joined by OR at the selection-entry level.
func TestEvaluate_CloudTrailTampering(t *testing.T) {
	rule := testRule("selection", map[string]core.Selection{
		"selection": selectionOf(
			core.FieldMap{"eventSource": "cloudtrail.amazonaws.com", "eventName": "StopLogging"},
			core.FieldMap{"eventSource": "cloudtrail.amazonaws.com", "eventName": "DeleteTrail"},
		),
	})
	compiled := mustCompile(t, rule)

	tests := []struct {
		name     string
		event    core.Event
		expected bool
	}{
		{
			name:     "stop logging matches",
			event:    core.Event{"eventSource": "cloudtrail.amazonaws.com", "eventName": "StopLogging"},
			expected: true,
		},
		{
			name:     "delete trail matches",
			event:    core.Event{"eventSource": "cloudtrail.amazonaws.com", "eventName": "DeleteTrail"},
			expected: true,
		},
		{
			name:     "benign event does not match",
			event:    core.Event{"eventSource": "cloudtrail.amazonaws.com", "eventName": "DescribeTrails"},
			expected: false,
		},
		{
			name:     "wrong source does not match",
			event:    core.Event{"eventSource": "s3.amazonaws.com", "eventName": "DeleteTrail"},
			expected: false,
		},
		{
			name:     "empty event does not match",
			event:    core.Event{},
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := compiled.Evaluate(tc.event); got != tc.expected {
				t.Errorf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

// TestEvaluate_FilterCondition exercises "selection and not filter", the
// most common exclusion shape.
func TestEvaluate_FilterCondition(t *testing.T) {
	rule := testRule("selection and not filter", map[string]core.Selection{
		"selection": selectionOf(core.FieldMap{"UserAction|contains": []interface{}{"create", "delete"}}),
		"filter":    selectionOf(core.FieldMap{"user": "svc-backup"}),
	})
	compiled := mustCompile(t, rule)

	if !compiled.Evaluate(core.Event{"UserAction": "CreateUser", "user": "alice"}) {
		t.Error("expected match on create action by regular user")
	}
	if compiled.Evaluate(core.Event{"UserAction": "DeleteSnapshot", "user": "svc-backup"}) {
		t.Error("filter selection must suppress the match")
	}
	if compiled.Evaluate(core.Event{"UserAction": "ListUsers", "user": "alice"}) {
		t.Error("non-matching action must not match")
	}
}

// TestEvaluate_NumericThreshold exercises gt with boundary values.
func TestEvaluate_NumericThreshold(t *testing.T) {
	rule := testRule("selection", map[string]core.Selection{
		"selection": selectionOf(core.FieldMap{"Count|gt": 100}),
	})
	compiled := mustCompile(t, rule)

	if !compiled.Evaluate(core.Event{"Count": 150}) {
		t.Error("150 > 100 must match")
	}
	if compiled.Evaluate(core.Event{"Count": 100}) {
		t.Error("100 > 100 must not match")
	}
	if compiled.Evaluate(core.Event{"Count": "lots"}) {
		t.Error("non-numeric value must not match and must not panic")
	}
}

// TestEvaluate_QuantifierOverSelections exercises "2 of them" against
// events satisfying varying subsets of the selections.
func TestEvaluate_QuantifierOverSelections(t *testing.T) {
	rule := testRule("2 of them", map[string]core.Selection{
		"sel_name": selectionOf(core.FieldMap{"name": "mimikatz"}),
		"sel_path": selectionOf(core.FieldMap{"path|contains": "temp"}),
		"sel_user": selectionOf(core.FieldMap{"user": "SYSTEM"}),
	})
	compiled := mustCompile(t, rule)

	if !compiled.Evaluate(core.Event{"name": "mimikatz", "path": "C:\\Temp\\m.exe", "user": "alice"}) {
		t.Error("two satisfied selections must match")
	}
	if compiled.Evaluate(core.Event{"name": "mimikatz", "path": "C:\\Program Files", "user": "alice"}) {
		t.Error("one satisfied selection must not match")
	}
	if !compiled.Evaluate(core.Event{"name": "mimikatz", "path": "/tmp/x", "user": "SYSTEM"}) {
		t.Error("three satisfied selections must match")
	}
}

// TestEvaluate_ExtraFieldsIgnored verifies that fields not referenced by any
// selection never change the outcome.
func TestEvaluate_ExtraFieldsIgnored(t *testing.T) {
	rule := testRule("selection", map[string]core.Selection{
		"selection": selectionOf(core.FieldMap{"eventName": "CreateTrail"}),
	})
	compiled := mustCompile(t, rule)

	base := core.Event{"eventName": "CreateTrail"}
	noisy := base.Clone()
	noisy["zz_injected"] = "anything"
	noisy["nested"] = map[string]interface{}{"deep": 42}

	if compiled.Evaluate(base) != compiled.Evaluate(noisy) {
		t.Error("unreferenced fields must not alter the outcome")
	}
}

// TestEvaluate_SelectionRepeatedInCondition verifies a selection referenced
// twice evaluates consistently (memoized once per call).
func TestEvaluate_SelectionRepeatedInCondition(t *testing.T) {
	rule := testRule("selection or (selection and filter)", map[string]core.Selection{
		"selection": selectionOf(core.FieldMap{"a": "1"}),
		"filter":    selectionOf(core.FieldMap{"b": "2"}),
	})
	compiled := mustCompile(t, rule)

	if !compiled.Evaluate(core.Event{"a": "1"}) {
		t.Error("expected match via left branch")
	}
	if compiled.Evaluate(core.Event{"b": "2"}) {
		t.Error("filter alone must not match")
	}
}

// TestEvaluateSelection verifies per-selection evaluation used by the
// expansion engine.
func TestEvaluateSelection(t *testing.T) {
	rule := testRule("selection and not filter", map[string]core.Selection{
		"selection": selectionOf(core.FieldMap{"eventName": "DeleteTrail"}),
		"filter":    selectionOf(core.FieldMap{"user": "auditor"}),
	})
	compiled := mustCompile(t, rule)

	event := core.Event{"eventName": "DeleteTrail", "user": "auditor"}
	if !compiled.EvaluateSelection("selection", event) {
		t.Error("selection must match independently of the condition")
	}
	if !compiled.EvaluateSelection("filter", event) {
		t.Error("filter must match independently of the condition")
	}
	if compiled.Evaluate(event) {
		t.Error("combined condition must not match")
	}
	if compiled.EvaluateSelection("nonexistent", event) {
		t.Error("unknown selection name must report false")
	}
}

// TestCompile_Errors verifies rule-level compile failures.
func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule *core.Rule
	}{
		{
			name: "no selections",
			rule: testRule("selection", map[string]core.Selection{}),
		},
		{
			name: "empty condition",
			rule: testRule("", map[string]core.Selection{
				"selection": selectionOf(core.FieldMap{"a": "1"}),
			}),
		},
		{
			name: "condition references unknown selection",
			rule: testRule("selection and missing", map[string]core.Selection{
				"selection": selectionOf(core.FieldMap{"a": "1"}),
			}),
		},
		{
			name: "bad modifier in selection",
			rule: testRule("selection", map[string]core.Selection{
				"selection": selectionOf(core.FieldMap{"a|bogus": "1"}),
			}),
		},
		{
			name: "invalid regex in selection",
			rule: testRule("selection", map[string]core.Selection{
				"selection": selectionOf(core.FieldMap{"a|re": "("}),
			}),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.rule)
			if err == nil {
				t.Fatal("expected compile error, got nil")
			}
			if !errors.Is(err, ErrCompile) {
				t.Errorf("error should unwrap to ErrCompile, got %v", err)
			}
		})
	}
}

// TestCompile_StatsAndProfiles verifies complexity stats and field profiles
// reflect the compiled matchers.
func TestCompile_StatsAndProfiles(t *testing.T) {
	rule := testRule("selection and not filter", map[string]core.Selection{
		"selection": selectionOf(core.FieldMap{
			"cmd|contains|all": []interface{}{"invoke", "bypass"},
			"user|re":          "^adm.*",
		}),
		"filter": selectionOf(core.FieldMap{"host": "buildbox"}),
	})
	compiled := mustCompile(t, rule)

	stats := compiled.Stats()
	if stats.SelectionCount != 2 {
		t.Errorf("expected 2 selections, got %d", stats.SelectionCount)
	}
	if stats.FieldCount != 3 {
		t.Errorf("expected 3 field matchers, got %d", stats.FieldCount)
	}
	if stats.RegexModifiers != 1 {
		t.Errorf("expected 1 regex modifier, got %d", stats.RegexModifiers)
	}
	if stats.ConditionDepth < 2 {
		t.Errorf("expected condition depth >= 2, got %d", stats.ConditionDepth)
	}

	profiles := compiled.FieldProfiles()
	if len(profiles) != 3 {
		t.Fatalf("expected 3 field profiles, got %d", len(profiles))
	}

	byField := map[string]FieldProfile{}
	for _, p := range profiles {
		byField[p.Field] = p
	}
	if p, ok := byField["cmd"]; !ok || p.Op != ModifierContains || !p.RequireAll || len(p.Values) != 2 {
		t.Errorf("unexpected cmd profile: %+v", p)
	}
	if p, ok := byField["user"]; !ok || p.Op != ModifierRegex {
		t.Errorf("unexpected user profile: %+v", p)
	}
	if p, ok := byField["host"]; !ok || p.Op != OpEquals || p.Selection != "filter" {
		t.Errorf("unexpected host profile: %+v", p)
	}
}
