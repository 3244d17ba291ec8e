package expand

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/google/uuid"

	"sigforge/core"
	"sigforge/detect"
)

// Mutation operator names, recorded on every derived test case. The
// validator keys its mismatch classification on these.
const (
	OpCaseVariation   = "case-variation"
	OpWhitespaceEdge  = "whitespace-edge"
	OpNumericBoundary = "numeric-boundary"
	OpFieldOmission   = "field-omission"
	OpNoiseInjection  = "noise-injection"
	OpNearMiss        = "near-miss"
	OpSelectionBreak  = "selection-break"
)

// maxRounds bounds the number of full seed-by-operator passes. Each round
// varies the random choices, so additional rounds keep producing new
// candidates until the operators genuinely run dry.
const maxRounds = 16

// caseInsensitiveOps are the comparisons whose outcome survives case
// changes of the event value.
var caseInsensitiveOps = map[string]bool{
	detect.OpEquals:           true,
	detect.ModifierContains:   true,
	detect.ModifierStartsWith: true,
	detect.ModifierEndsWith:   true,
}

var noiseWords = []string{
	"audit", "session", "beacon", "replica", "kernel", "mirror",
	"shard", "cursor", "anchor", "ticket",
}

var edgeSuffixes = []string{
	" ", // no-break space
	"​", // zero-width space
	"\t",
	"  ",
	" 　", // ideographic space
}

// candidate is one derived event before dedup and test-case wrapping.
type candidate struct {
	event    core.Event
	positive bool
	operator string
}

// Expander derives test cases for one rule from its compiled field
// profiles.
type Expander struct {
	ruleID     string
	profiles   []detect.FieldProfile
	byField    map[string][]detect.FieldProfile
	referenced map[string]bool
	rng        *rand.Rand
}

// New builds an expander for one rule. The random seed fixes every choice
// the mutation operators make, so two runs with identical inputs produce
// identical corpora.
func New(ruleID string, profiles []detect.FieldProfile, randomSeed int64) *Expander {
	e := &Expander{
		ruleID:     ruleID,
		profiles:   profiles,
		byField:    make(map[string][]detect.FieldProfile),
		referenced: make(map[string]bool),
		rng:        rand.New(rand.NewSource(randomSeed)),
	}
	for _, p := range profiles {
		e.byField[p.Field] = append(e.byField[p.Field], p)
		e.referenced[p.Field] = true
	}
	return e
}

// Expand grows the seed set into at most targetCount unique test cases.
// Seeds are emitted first, verbatim; the mutation operators then run in
// rounds over every seed until the target is reached or a full round
// produces nothing new. A shortfall is reported as a diagnostic, never as
// an error.
func (e *Expander) Expand(seeds []core.Seed, targetCount int) ([]core.TestCase, []core.Diagnostic) {
	if targetCount <= 0 {
		return nil, nil
	}

	cases := make([]core.TestCase, 0, targetCount)
	seen := make(map[string]struct{}, targetCount)

	add := func(event core.Event, positive bool, origin core.Origin, operator string) bool {
		hash := event.ContentHash()
		if _, dup := seen[hash]; dup {
			return false
		}
		seen[hash] = struct{}{}

		label := core.LabelNegative
		if positive {
			label = core.LabelPositive
		}
		cases = append(cases, core.TestCase{
			ID:            caseID(e.ruleID, hash),
			RuleID:        e.ruleID,
			Label:         label,
			Event:         event,
			Origin:        origin,
			Operator:      operator,
			ExpectedMatch: positive,
		})
		return true
	}

	for _, seed := range seeds {
		if len(cases) >= targetCount {
			break
		}
		add(seed.Event.Clone(), seed.Positive, core.OriginSeed, "")
	}

	operators := []func(core.Seed) []candidate{
		e.caseVariation,
		e.numericBoundary,
		e.nearMiss,
		e.selectionBreak,
		e.noiseInjection,
		e.whitespaceEdge,
		e.fieldOmission,
	}

	for round := 0; round < maxRounds && len(cases) < targetCount; round++ {
		progress := false
		for _, seed := range seeds {
			for _, op := range operators {
				for _, c := range op(seed) {
					if len(cases) >= targetCount {
						break
					}
					if add(c.event, c.positive, core.OriginDerived, c.operator) {
						progress = true
					}
				}
			}
		}
		if !progress {
			break
		}
	}

	var diags []core.Diagnostic
	if len(cases) < targetCount {
		diags = append(diags, core.Diagnostic{
			Kind:    core.DiagExpansionShortfall,
			Message: fmt.Sprintf("mutation operators exhausted at %d of %d requested test cases", len(cases), targetCount),
		})
	}
	return cases, diags
}

// caseID derives a stable identifier from the rule and the event content, so
// repeated runs with the same seed emit the same IDs. Content hashes are
// unique within a rule's corpus by the dedup above.
func caseID(ruleID, contentHash string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(ruleID+"/"+contentHash)).String()
}

// caseVariation flips the casing of referenced string values whose
// comparison is case-insensitive. The match outcome is preserved by the
// comparison semantics themselves.
func (e *Expander) caseVariation(seed core.Seed) []candidate {
	variant := seed.Event.Clone()
	changed := false

	for _, field := range e.sortedFields(variant, true) {
		if !e.caseInsensitiveField(field) {
			continue
		}
		raw, ok := variant.Lookup(field)
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok || s == "" {
			continue
		}
		switch e.rng.Intn(3) {
		case 0:
			variant[field] = strings.ToUpper(s)
		case 1:
			variant[field] = strings.ToLower(s)
		default:
			variant[field] = flipCase(s)
		}
		changed = true
	}

	if !changed {
		return nil
	}
	return []candidate{{event: variant, positive: seed.Positive, operator: OpCaseVariation}}
}

// whitespaceEdge appends unusual whitespace to one unreferenced string
// field. Unreferenced fields never participate in matching, so the label is
// preserved.
func (e *Expander) whitespaceEdge(seed core.Seed) []candidate {
	fields := e.sortedFields(seed.Event, false)
	if len(fields) == 0 {
		return nil
	}
	field := fields[e.rng.Intn(len(fields))]
	raw := seed.Event[field]
	s, ok := raw.(string)
	if !ok {
		return nil
	}

	variant := seed.Event.Clone()
	variant[field] = s + edgeSuffixes[e.rng.Intn(len(edgeSuffixes))]
	return []candidate{{event: variant, positive: seed.Positive, operator: OpWhitespaceEdge}}
}

// numericBoundary probes each numeric threshold with the values directly on
// both sides of it. Applied to positive seeds only: a satisfying boundary
// keeps the seed positive, a violating one is expected to break the match.
func (e *Expander) numericBoundary(seed core.Seed) []candidate {
	if !seed.Positive {
		return nil
	}

	var out []candidate
	for _, p := range e.profiles {
		if !p.HasThreshold {
			continue
		}
		satisfy, violate, ok := boundaryValues(p)
		if !ok {
			continue
		}

		pos := seed.Event.Clone()
		pos[p.Field] = satisfy
		out = append(out, candidate{event: pos, positive: true, operator: OpNumericBoundary})

		neg := seed.Event.Clone()
		neg[p.Field] = violate
		out = append(out, candidate{event: neg, positive: false, operator: OpNumericBoundary})
	}
	return out
}

// fieldOmission drops one unreferenced field. Dropping a field the rule
// never reads must not change the outcome.
func (e *Expander) fieldOmission(seed core.Seed) []candidate {
	fields := e.sortedFields(seed.Event, false)
	if len(fields) == 0 {
		return nil
	}
	field := fields[e.rng.Intn(len(fields))]

	variant := seed.Event.Clone()
	delete(variant, field)
	return []candidate{{event: variant, positive: seed.Positive, operator: OpFieldOmission}}
}

// noiseInjection adds fields the rule never references. These cases are
// canaries: any outcome change on them is an evaluator or modifier bug,
// which the validator surfaces under its own mismatch reason.
func (e *Expander) noiseInjection(seed core.Seed) []candidate {
	variant := seed.Event.Clone()
	count := 1 + e.rng.Intn(2)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("zz_%s_%d", noiseWords[e.rng.Intn(len(noiseWords))], e.rng.Intn(1000))
		if e.referenced[name] {
			continue
		}
		variant[name] = noiseWords[e.rng.Intn(len(noiseWords))]
	}
	return []candidate{{event: variant, positive: seed.Positive, operator: OpNoiseInjection}}
}

// nearMiss rewrites one referenced string field of a positive seed to a
// value that misses its pattern by a single character.
func (e *Expander) nearMiss(seed core.Seed) []candidate {
	if !seed.Positive {
		return nil
	}

	var out []candidate
	for _, p := range e.profiles {
		if len(p.Values) == 0 {
			continue
		}
		miss, ok := nearMissValue(p, p.Values[e.rng.Intn(len(p.Values))])
		if !ok {
			continue
		}
		variant := seed.Event.Clone()
		variant[p.Field] = miss
		out = append(out, candidate{event: variant, positive: false, operator: OpNearMiss})
	}
	return out
}

// selectionBreak flips exactly one referenced field: on a positive seed it
// replaces a satisfying value with a value outside the allowed set, turning
// the case negative; on a negative seed it plants a satisfying value,
// proposing a positive. The validator confirms or rejects the proposal.
func (e *Expander) selectionBreak(seed core.Seed) []candidate {
	if len(e.profiles) == 0 {
		return nil
	}
	p := e.profiles[e.rng.Intn(len(e.profiles))]
	variant := seed.Event.Clone()

	if seed.Positive {
		broken, ok := ViolatingValue(p)
		if !ok {
			return nil
		}
		variant[p.Field] = broken
		return []candidate{{event: variant, positive: false, operator: OpSelectionBreak}}
	}

	planted, ok := SatisfyingValue(p)
	if !ok {
		return nil
	}
	variant[p.Field] = planted
	return []candidate{{event: variant, positive: true, operator: OpSelectionBreak}}
}

// sortedFields lists the event's top-level fields, filtered to referenced
// or unreferenced ones, in deterministic order.
func (e *Expander) sortedFields(event core.Event, referenced bool) []string {
	var fields []string
	for key := range event {
		if e.referenced[key] == referenced {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}

// caseInsensitiveField reports whether every comparison on the field
// tolerates case changes. A field also compared by regex or through a
// base64 transform does not.
func (e *Expander) caseInsensitiveField(field string) bool {
	profiles := e.byField[field]
	if len(profiles) == 0 {
		return false
	}
	for _, p := range profiles {
		if !caseInsensitiveOps[p.Op] || len(p.Transforms) > 0 {
			return false
		}
	}
	return true
}

// boundaryValues returns the event values directly on the satisfying and
// violating side of a numeric threshold.
func boundaryValues(p detect.FieldProfile) (satisfy, violate interface{}, ok bool) {
	t := p.Threshold
	switch p.Op {
	case detect.ModifierGT:
		return numValue(t + 1), numValue(t), true
	case detect.ModifierGTE:
		return numValue(t), numValue(t - 1), true
	case detect.ModifierLT:
		return numValue(t - 1), numValue(t), true
	case detect.ModifierLTE:
		return numValue(t), numValue(t + 1), true
	default:
		return nil, nil, false
	}
}

// nearMissValue builds a string that fails the comparison by one character.
func nearMissValue(p detect.FieldProfile, value string) (string, bool) {
	if value == "" {
		return "", false
	}
	switch p.Op {
	case detect.ModifierContains, detect.OpEquals, detect.ModifierRegex:
		return splitBreak(value)
	case detect.ModifierStartsWith:
		return "_" + value, true
	case detect.ModifierEndsWith:
		return value + "_", true
	default:
		return "", false
	}
}

// ViolatingValue produces a value guaranteed to fail the profile's own
// comparison.
func ViolatingValue(p detect.FieldProfile) (interface{}, bool) {
	if p.HasThreshold {
		_, violate, ok := boundaryValues(p)
		return violate, ok
	}
	if len(p.Values) == 0 {
		return nil, false
	}
	v := p.Values[0]
	switch p.Op {
	case detect.OpEquals:
		return v + "_notallowed", true
	case detect.ModifierContains, detect.ModifierRegex:
		return splitBreak(v)
	case detect.ModifierStartsWith:
		return "_" + v, true
	case detect.ModifierEndsWith:
		return v + "_", true
	case detect.ModifierCIDR:
		// An unparseable address can never sit inside any network.
		return "not-an-ip", true
	default:
		return nil, false
	}
}

// splitBreak inserts an underscore at the midpoint of a literal so no
// contiguous copy of it survives, then verifies the copy is really gone.
func splitBreak(v string) (string, bool) {
	if len(v) < 2 {
		return "", false
	}
	mid := len(v) / 2
	miss := v[:mid] + "_" + v[mid:]
	if strings.Contains(strings.ToLower(miss), strings.ToLower(v)) {
		return "", false
	}
	return miss, true
}

// SatisfyingValue produces a value that satisfies the profile's comparison
// when one can be constructed from the literals alone.
func SatisfyingValue(p detect.FieldProfile) (interface{}, bool) {
	if len(p.Transforms) > 0 {
		return nil, false
	}
	if p.HasThreshold {
		satisfy, _, ok := boundaryValues(p)
		return satisfy, ok
	}
	if len(p.Values) == 0 {
		return nil, false
	}
	v := p.Values[0]
	switch p.Op {
	case detect.OpEquals:
		return v, true
	case detect.ModifierContains:
		return "x" + v + "x", true
	case detect.ModifierStartsWith:
		return v + "xxx", true
	case detect.ModifierEndsWith:
		return "xxx" + v, true
	default:
		// Regex and CIDR literals have no generic satisfying construction.
		return nil, false
	}
}

// flipCase inverts the case of every letter.
func flipCase(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z':
			out[i] = r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			out[i] = r - 'A' + 'a'
		}
	}
	return string(out)
}

// numValue renders whole thresholds as integers, everything else as float.
func numValue(f float64) interface{} {
	if f == math.Trunc(f) {
		return int(f)
	}
	return f
}
