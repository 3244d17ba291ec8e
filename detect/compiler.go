package detect

import (
	"fmt"
	"sort"

	"sigforge/core"
)

// compiledSelection is one named selection: OR across entries, AND across
// the field matchers inside an entry.
type compiledSelection struct {
	name    string
	entries [][]*fieldMatcher
}

// RuleStats summarizes compile-time complexity signals used for
// diagnostics on unusually heavy rules.
type RuleStats struct {
	SelectionCount  int
	FieldCount      int
	RegexModifiers  int
	ConditionDepth  int
	QuantifierDepth int
}

// FieldProfile describes one compiled field constraint in a form usable
// without access to the matcher internals. The expansion engine derives
// satisfying and violating values from these.
type FieldProfile struct {
	Selection  string
	Field      string
	Op         string
	Values     []string
	RequireAll bool
	Transforms []string

	Threshold    float64
	HasThreshold bool
}

// CompiledRule is the executable form of a rule. Compilation resolves every
// identifier, regex, CIDR, and numeric threshold, so evaluation cannot fail.
type CompiledRule struct {
	Rule *core.Rule

	ast        *AST
	selections map[string]*compiledSelection
	order      []string
	profiles   []FieldProfile
	stats      RuleStats
}

// Compile turns a parsed rule into its executable form. It compiles every
// selection's field matchers, then the condition expression against the
// declared selection names. Errors wrap ErrCompile.
func Compile(rule *core.Rule) (*CompiledRule, error) {
	if len(rule.Selections) == 0 {
		return nil, fmt.Errorf("%w: rule %s has no selections", ErrCompile, rule.ID)
	}
	if rule.Condition == "" {
		return nil, fmt.Errorf("%w: rule %s has no condition", ErrCompile, rule.ID)
	}

	compiled := &CompiledRule{
		Rule:       rule,
		selections: make(map[string]*compiledSelection, len(rule.Selections)),
		order:      rule.SelectionNames(),
	}

	for _, name := range compiled.order {
		sel, err := compileSelection(name, rule.Selections[name])
		if err != nil {
			return nil, fmt.Errorf("selection %s: %w", name, err)
		}
		compiled.selections[name] = sel
	}

	ast, err := CompileCondition(rule.Condition, compiled.order)
	if err != nil {
		return nil, err
	}
	compiled.ast = ast

	compiled.collectProfiles()
	compiled.collectStats()
	return compiled, nil
}

func compileSelection(name string, sel core.Selection) (*compiledSelection, error) {
	if len(sel.Entries) == 0 {
		return nil, fmt.Errorf("%w: selection has no entries", ErrCompile)
	}
	out := &compiledSelection{name: name}
	for _, entry := range sel.Entries {
		keys := make([]string, 0, len(entry))
		for key := range entry {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		matchers := make([]*fieldMatcher, 0, len(keys))
		for _, key := range keys {
			m, err := compileFieldMatcher(key, entry[key])
			if err != nil {
				return nil, err
			}
			matchers = append(matchers, m)
		}
		out.entries = append(out.entries, matchers)
	}
	return out, nil
}

func (c *CompiledRule) collectProfiles() {
	for _, name := range c.order {
		for _, entry := range c.selections[name].entries {
			for _, m := range entry {
				p := FieldProfile{
					Selection:  name,
					Field:      m.field,
					Op:         m.op.String(),
					Values:     append([]string(nil), m.rawValues...),
					RequireAll: m.requireAll,
				}
				for _, tr := range m.transforms {
					switch tr {
					case transformBase64:
						p.Transforms = append(p.Transforms, ModifierBase64)
					case transformBase64Offset:
						p.Transforms = append(p.Transforms, ModifierBase64Offset)
					}
				}
				if len(m.numbers) > 0 {
					p.Threshold = m.numbers[0]
					p.HasThreshold = true
				}
				c.profiles = append(c.profiles, p)
			}
		}
	}
}

func (c *CompiledRule) collectStats() {
	c.stats = RuleStats{
		SelectionCount:  len(c.order),
		ConditionDepth:  c.ast.Depth(),
		QuantifierDepth: c.ast.QuantifierDepth(),
	}
	for _, sel := range c.selections {
		for _, entry := range sel.entries {
			c.stats.FieldCount += len(entry)
			for _, m := range entry {
				if m.op == opRegex {
					c.stats.RegexModifiers++
				}
			}
		}
	}
}

// SelectionNames returns the declared selection names in sorted order.
func (c *CompiledRule) SelectionNames() []string {
	return append([]string(nil), c.order...)
}

// FieldProfiles returns one profile per compiled field matcher, ordered by
// selection name then field-map key order.
func (c *CompiledRule) FieldProfiles() []FieldProfile {
	return append([]FieldProfile(nil), c.profiles...)
}

// Stats reports the compile-time complexity summary.
func (c *CompiledRule) Stats() RuleStats {
	return c.stats
}
