package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sigforge/core"
)

// Panther writes one JSON test file per case plus a suite manifest, the
// layout Panther's rule tester consumes.
type Panther struct {
	supportedProducts map[string]bool
}

func NewPanther() *Panther {
	return &Panther{
		supportedProducts: map[string]bool{
			"aws": true, "gcp": true, "azure": true,
			"okta": true, "github": true, "cloudflare": true,
		},
	}
}

func (p *Panther) Name() string   { return "panther" }
func (p *Panther) Format() string { return "json" }

type pantherTestCase struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Log           core.Event `json:"log"`
	ShouldTrigger bool       `json:"should_trigger"`
	RuleID        string     `json:"rule_id"`
	Generator     string     `json:"generator"`
}

type pantherManifest struct {
	RuleID        string   `json:"rule_id"`
	Generator     string   `json:"generator"`
	TestCount     int      `json:"test_count"`
	PositiveTests int      `json:"positive_tests"`
	NegativeTests int      `json:"negative_tests"`
	TestFiles     []string `json:"test_files"`
}

func (p *Panther) Export(rule *core.Rule, cases []core.TestCase, outputDir string) (*Artifact, error) {
	dir := filepath.Join(outputDir, "panther", sanitizeRuleID(rule.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("panther export: %w", err)
	}

	artifact := &Artifact{
		Warnings: logsourceWarnings(rule, p.supportedProducts, "panther"),
	}

	files := make([]string, 0, len(cases))
	for i, tc := range cases {
		name := fmt.Sprintf("test_%03d.json", i)
		path := filepath.Join(dir, name)
		doc := pantherTestCase{
			ID:            fmt.Sprintf("%s-%d", rule.ID, i),
			Type:          "generated_test",
			Log:           tc.Event,
			ShouldTrigger: tc.ExpectedMatch,
			RuleID:        rule.ID,
			Generator:     "sigforge",
		}
		if err := writeJSON(path, doc); err != nil {
			return nil, fmt.Errorf("panther export: %w", err)
		}
		files = append(files, name)
		artifact.Paths = append(artifact.Paths, path)
	}

	positive, negative := countLabels(cases)
	manifestPath := filepath.Join(dir, "test_manifest.json")
	manifest := pantherManifest{
		RuleID:        rule.ID,
		Generator:     "sigforge",
		TestCount:     len(cases),
		PositiveTests: positive,
		NegativeTests: negative,
		TestFiles:     files,
	}
	if err := writeJSON(manifestPath, manifest); err != nil {
		return nil, fmt.Errorf("panther export: %w", err)
	}
	artifact.Paths = append([]string{manifestPath}, artifact.Paths...)
	return artifact, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
