// Package export serializes accepted test cases into the native test
// formats of downstream detection platforms.
package export

import (
	"fmt"
	"sort"
	"strings"

	"sigforge/core"
)

// Artifact describes what an exporter wrote for one rule.
type Artifact struct {
	// Paths lists every file written, main file first.
	Paths []string
	// Warnings are non-fatal compatibility findings. They never block the
	// export.
	Warnings []string
}

// Platform is one target format. Implementations must be safe for
// concurrent use: batch workers share them across rule tasks.
type Platform interface {
	// Name is the registry key, e.g. "panther".
	Name() string
	// Format names the primary output format, e.g. "json" or "spl".
	Format() string
	// Export writes the accepted cases for one rule under outputDir and
	// returns the artifact description. Compatibility warnings ride along
	// on the artifact rather than failing the export.
	Export(rule *core.Rule, cases []core.TestCase, outputDir string) (*Artifact, error)
}

// Registry resolves platform names to implementations.
type Registry struct {
	platforms map[string]Platform
}

// NewRegistry builds a registry over the given platforms.
func NewRegistry(platforms ...Platform) *Registry {
	r := &Registry{platforms: make(map[string]Platform, len(platforms))}
	for _, p := range platforms {
		r.platforms[p.Name()] = p
	}
	return r
}

// DefaultRegistry returns a registry with every built-in platform.
func DefaultRegistry() *Registry {
	return NewRegistry(NewPanther(), NewSplunk(), NewElastic())
}

// Names lists the registered platform names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps the requested names to platforms. An unknown name is an
// error listing what is available.
func (r *Registry) Resolve(names []string) ([]Platform, error) {
	out := make([]Platform, 0, len(names))
	for _, name := range names {
		p, ok := r.platforms[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown platform %q (available: %s)", name, strings.Join(r.Names(), ", "))
		}
		out = append(out, p)
	}
	return out, nil
}

// logsourceWarnings flags logsources a platform has no native schema for.
func logsourceWarnings(rule *core.Rule, supported map[string]bool, platform string) []string {
	product := rule.Logsource.Product
	if product == "" {
		product = rule.Logsource.Category
	}
	if product == "" || supported[strings.ToLower(product)] {
		return nil
	}
	return []string{fmt.Sprintf("logsource %s/%s may require a custom %s log schema",
		product, rule.Logsource.Service, platform)}
}

// sanitizeRuleID keeps rule-derived file names filesystem-safe.
func sanitizeRuleID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func countLabels(cases []core.TestCase) (positive, negative int) {
	for _, tc := range cases {
		if tc.ExpectedMatch {
			positive++
		} else {
			negative++
		}
	}
	return positive, negative
}
