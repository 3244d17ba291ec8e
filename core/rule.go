package core

import (
	"errors"
	"sort"
	"strings"
)

// Logsource identifies the log taxonomy a rule applies to.
type Logsource struct {
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Product  string `json:"product,omitempty" yaml:"product,omitempty"`
	Service  string `json:"service,omitempty" yaml:"service,omitempty"`
}

// FieldMap is a single detection entry: it maps "field|modifier" keys to one
// or more literal values. All keys inside one FieldMap are AND'd; multiple
// values under one key are OR'd unless the key carries the "all" modifier.
type FieldMap map[string]interface{}

// Selection is one named detection block of a rule. It holds either a single
// FieldMap or an ordered sequence of FieldMaps; sequence entries are OR'd.
type Selection struct {
	// Entries is never empty for a valid selection. A scalar selection loads
	// as a single entry.
	Entries []FieldMap
}

// Rule is the typed representation of a parsed detection rule. A Rule is
// immutable after loading; the compiler reads it but never writes to it.
type Rule struct {
	ID          string
	Title       string
	Description string
	Status      string
	Level       string
	Author      string
	Tags        []string
	References  []string
	Logsource   Logsource

	// Selections maps selection names to their criteria. The map is built
	// from every detection key except "condition".
	Selections map[string]Selection

	// Condition is the raw boolean expression over selection names.
	Condition string

	// Fields lists every field path referenced by any selection, sorted and
	// deduplicated. Derived at load time.
	Fields []string

	// FilePath is the rule's source file, kept for error reporting.
	FilePath string
}

// SelectionNames returns the declared selection names in sorted order.
// Sorted output keeps wildcard resolution and diagnostics deterministic.
func (r *Rule) SelectionNames() []string {
	names := make([]string, 0, len(r.Selections))
	for name := range r.Selections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that a rule carries everything the pipeline needs.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return errors.New("rule ID is required")
	}
	if r.Title == "" {
		return errors.New("rule title is required")
	}
	if len(r.Selections) == 0 {
		return errors.New("rule has no detection selections")
	}
	if strings.TrimSpace(r.Condition) == "" {
		return errors.New("rule detection condition is required")
	}
	if r.Level != "" {
		validLevels := map[string]bool{
			"informational": true,
			"low":           true,
			"medium":        true,
			"high":          true,
			"critical":      true,
		}
		if !validLevels[r.Level] {
			return errors.New("invalid level: must be informational, low, medium, high, or critical")
		}
	}
	return nil
}

// SplitFieldKey separates a detection key into its field path and modifier
// chain, e.g. "CommandLine|contains|all" -> ("CommandLine", ["contains",
// "all"]). A key without '|' has no modifiers.
func SplitFieldKey(key string) (field string, modifiers []string) {
	parts := strings.Split(key, "|")
	field = parts[0]
	if len(parts) > 1 {
		modifiers = parts[1:]
	}
	return field, modifiers
}

// ReferencedFields collects the distinct field paths referenced by a set of
// selections, sorted for determinism.
func ReferencedFields(selections map[string]Selection) []string {
	seen := map[string]bool{}
	for _, sel := range selections {
		for _, entry := range sel.Entries {
			for key := range entry {
				field, _ := SplitFieldKey(key)
				seen[field] = true
			}
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
