package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigforge/core"
)

// Elastic writes an ndjson bulk-import file of ECS-annotated documents plus
// a manifest describing the import.
type Elastic struct {
	supportedProducts map[string]bool
	now               func() time.Time
}

func NewElastic() *Elastic {
	return &Elastic{
		supportedProducts: map[string]bool{
			"windows": true, "linux": true, "aws": true, "macos": true,
		},
		now: time.Now,
	}
}

func (e *Elastic) Name() string   { return "elastic" }
func (e *Elastic) Format() string { return "ndjson" }

type elasticManifest struct {
	RuleID        string `json:"rule_id"`
	Generator     string `json:"generator"`
	Index         string `json:"index"`
	TestCount     int    `json:"test_count"`
	PositiveTests int    `json:"positive_tests"`
	NegativeTests int    `json:"negative_tests"`
	BulkFile      string `json:"bulk_file"`
	ECSVersion    string `json:"ecs_version"`
}

func (e *Elastic) Export(rule *core.Rule, cases []core.TestCase, outputDir string) (*Artifact, error) {
	id := sanitizeRuleID(rule.ID)
	dir := filepath.Join(outputDir, "elastic", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("elastic export: %w", err)
	}

	artifact := &Artifact{
		Warnings: logsourceWarnings(rule, e.supportedProducts, "elastic"),
	}

	index := e.indexName(rule)
	var bulk strings.Builder
	for i, tc := range cases {
		meta := map[string]interface{}{
			"index": map[string]string{
				"_index": index,
				"_id":    fmt.Sprintf("%s_%d", id, i),
			},
		}
		metaLine, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("elastic export: %w", err)
		}
		docLine, err := json.Marshal(e.toDocument(tc))
		if err != nil {
			return nil, fmt.Errorf("elastic export: %w", err)
		}
		bulk.Write(metaLine)
		bulk.WriteByte('\n')
		bulk.Write(docLine)
		bulk.WriteByte('\n')
	}

	bulkPath := filepath.Join(dir, id+"_bulk.ndjson")
	if err := os.WriteFile(bulkPath, []byte(bulk.String()), 0o644); err != nil {
		return nil, fmt.Errorf("elastic export: %w", err)
	}

	positive, negative := countLabels(cases)
	manifestPath := filepath.Join(dir, id+"_manifest.json")
	manifest := elasticManifest{
		RuleID:        rule.ID,
		Generator:     "sigforge",
		Index:         index,
		TestCount:     len(cases),
		PositiveTests: positive,
		NegativeTests: negative,
		BulkFile:      filepath.Base(bulkPath),
		ECSVersion:    "8.0",
	}
	if err := writeJSON(manifestPath, manifest); err != nil {
		return nil, fmt.Errorf("elastic export: %w", err)
	}

	artifact.Paths = []string{bulkPath, manifestPath}
	return artifact, nil
}

// toDocument clones the event and fills the ECS fields bulk import expects.
func (e *Elastic) toDocument(tc core.TestCase) core.Event {
	doc := tc.Event.Clone()
	if _, ok := doc["@timestamp"]; !ok {
		if _, ok := doc["timestamp"]; !ok {
			doc["@timestamp"] = e.now().UTC().Format(time.RFC3339)
		}
	}
	doc["labels"] = map[string]interface{}{
		"sigforge_rule_id":  tc.RuleID,
		"sigforge_expected": tc.ExpectedMatch,
		"sigforge_origin":   string(tc.Origin),
	}
	return doc
}

func (e *Elastic) indexName(rule *core.Rule) string {
	product := strings.ToLower(rule.Logsource.Product)
	if product == "" {
		product = "generic"
	}
	return "sigforge-test-" + product
}
