package seed

import (
	"context"
	"fmt"

	"sigforge/core"
	"sigforge/detect"
	"sigforge/expand"
)

// StaticSource constructs seeds directly from the rule's compiled field
// profiles: positives satisfy every constraint, negatives break one. It
// needs no network and is fully deterministic, which makes it the default
// for offline runs and the stub of choice in tests.
type StaticSource struct{}

func NewStaticSource() *StaticSource { return &StaticSource{} }

// GetSeeds builds n positive and n negative seeds. Variant numbering keeps
// the events distinct so expansion has more than one starting point.
func (s *StaticSource) GetSeeds(_ context.Context, rule *core.Rule, n int) ([]core.Seed, error) {
	compiled, err := detect.Compile(rule)
	if err != nil {
		return nil, &SeedError{Op: "static-compile", Err: err}
	}
	profiles := compiled.FieldProfiles()
	if len(profiles) == 0 {
		return nil, &SeedError{Op: "static-build", Err: fmt.Errorf("rule %s has no usable field constraints", rule.ID)}
	}

	var seeds []core.Seed
	positives := 0
	for i := 0; i < n; i++ {
		if ev, ok := buildPositive(profiles, i); ok {
			seeds = append(seeds, core.Seed{Event: ev, Positive: true})
			positives++
		}
		if ev, ok := buildNegative(profiles, i); ok {
			seeds = append(seeds, core.Seed{Event: ev, Positive: false})
		}
	}
	if positives == 0 {
		return nil, &SeedError{Op: "static-build", Err: fmt.Errorf("rule %s: no satisfying values could be constructed", rule.ID)}
	}
	return seeds, nil
}

// buildPositive assembles an event satisfying every field constraint.
// Profiles that permit no generic satisfying value (regex, CIDR,
// transforms) make a positive construction impossible.
func buildPositive(profiles []detect.FieldProfile, variant int) (core.Event, bool) {
	ev := core.Event{}
	for _, p := range profiles {
		v, ok := expand.SatisfyingValue(p)
		if !ok {
			return nil, false
		}
		ev[p.Field] = v
	}
	ev["seq"] = variant
	return ev, true
}

// buildNegative starts from a positive construction when one exists and
// breaks the constraint chosen by the variant index; otherwise it emits a
// minimal event violating a single constraint.
func buildNegative(profiles []detect.FieldProfile, variant int) (core.Event, bool) {
	target := profiles[variant%len(profiles)]
	broken, ok := expand.ViolatingValue(target)
	if !ok {
		return nil, false
	}

	ev, ok := buildPositive(profiles, variant)
	if !ok {
		ev = core.Event{"seq": variant}
	}
	ev[target.Field] = broken
	return ev, true
}
