package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigforge/core"
)

// Splunk writes an importable test-data JSON file and an SPL search that
// replays the cases against the detection logic.
type Splunk struct {
	supportedProducts map[string]bool
}

func NewSplunk() *Splunk {
	return &Splunk{
		supportedProducts: map[string]bool{
			"windows": true, "linux": true, "aws": true, "network": true,
		},
	}
}

func (s *Splunk) Name() string   { return "splunk" }
func (s *Splunk) Format() string { return "spl" }

type splunkEvent struct {
	Index         string     `json:"index"`
	Sourcetype    string     `json:"sourcetype"`
	Source        string     `json:"source"`
	Raw           string     `json:"raw"`
	Event         core.Event `json:"event"`
	ShouldTrigger bool       `json:"should_trigger"`
}

func (s *Splunk) Export(rule *core.Rule, cases []core.TestCase, outputDir string) (*Artifact, error) {
	id := sanitizeRuleID(rule.ID)
	dir := filepath.Join(outputDir, "splunk", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("splunk export: %w", err)
	}

	artifact := &Artifact{
		Warnings: logsourceWarnings(rule, s.supportedProducts, "splunk"),
	}

	events := make([]splunkEvent, 0, len(cases))
	for _, tc := range cases {
		raw, err := json.Marshal(tc.Event)
		if err != nil {
			return nil, fmt.Errorf("splunk export: %w", err)
		}
		events = append(events, splunkEvent{
			Index:         "main",
			Sourcetype:    s.sourcetype(rule),
			Source:        "test_data_" + id,
			Raw:           string(raw),
			Event:         tc.Event,
			ShouldTrigger: tc.ExpectedMatch,
		})
	}

	dataPath := filepath.Join(dir, id+"_data.json")
	if err := writeJSON(dataPath, events); err != nil {
		return nil, fmt.Errorf("splunk export: %w", err)
	}

	splPath := filepath.Join(dir, id+".spl")
	if err := os.WriteFile(splPath, []byte(s.search(rule, len(cases))), 0o644); err != nil {
		return nil, fmt.Errorf("splunk export: %w", err)
	}

	artifact.Paths = []string{splPath, dataPath}
	return artifact, nil
}

// sourcetype derives a sourcetype name from the rule's logsource.
func (s *Splunk) sourcetype(rule *core.Rule) string {
	parts := []string{}
	for _, p := range []string{rule.Logsource.Product, rule.Logsource.Service, rule.Logsource.Category} {
		if p != "" {
			parts = append(parts, strings.ToLower(p))
		}
	}
	if len(parts) == 0 {
		return "sigforge:generic"
	}
	return "sigforge:" + strings.Join(parts, ":")
}

// search renders an SPL query that loads the test data and compares each
// event's observed outcome against its label.
func (s *Splunk) search(rule *core.Rule, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "| makeresults count=%d\n", count)
	fmt.Fprintf(&b, "| eval rule_id=\"%s\"\n", rule.ID)
	fmt.Fprintf(&b, "| eval rule_title=\"%s\"\n", strings.ReplaceAll(rule.Title, `"`, `'`))
	b.WriteString("| eval platform=\"splunk\"\n")
	b.WriteString("```\n")
	b.WriteString("Usage:\n")
	fmt.Fprintf(&b, "1. Import %s_data.json into the main index\n", sanitizeRuleID(rule.ID))
	b.WriteString("2. Run the detection search over the imported events\n")
	b.WriteString("3. Events with should_trigger=true must alert, the rest must not\n")
	b.WriteString("```\n")
	return b.String()
}
