package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigforge/core"
)

func exportFixture() (*core.Rule, []core.TestCase) {
	rule := &core.Rule{
		ID:        "a1b2c3d4-0000-4000-8000-000000000001",
		Title:     "CloudTrail tampering",
		Level:     "high",
		Condition: "selection",
		Logsource: core.Logsource{Product: "aws", Service: "cloudtrail"},
		Selections: map[string]core.Selection{
			"selection": {Entries: []core.FieldMap{{"eventName": "DeleteTrail"}}},
		},
	}
	cases := []core.TestCase{
		{
			ID: "tc-1", RuleID: rule.ID, Label: core.LabelPositive, Origin: core.OriginSeed,
			Event:         core.Event{"eventName": "DeleteTrail"},
			ExpectedMatch: true, ActualMatch: true,
		},
		{
			ID: "tc-2", RuleID: rule.ID, Label: core.LabelNegative, Origin: core.OriginDerived,
			Event:         core.Event{"eventName": "DescribeTrails"},
			ExpectedMatch: false, ActualMatch: false,
		},
	}
	return rule, cases
}

func TestRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{"elastic", "panther", "splunk"}, r.Names())

	platforms, err := r.Resolve([]string{"panther", "ELASTIC"})
	require.NoError(t, err)
	require.Len(t, platforms, 2)
	assert.Equal(t, "panther", platforms[0].Name())
	assert.Equal(t, "elastic", platforms[1].Name())

	_, err = r.Resolve([]string{"qradar"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qradar")
	assert.Contains(t, err.Error(), "available")
}

func TestPanther_Export(t *testing.T) {
	rule, cases := exportFixture()
	dir := t.TempDir()

	artifact, err := NewPanther().Export(rule, cases, dir)
	require.NoError(t, err)
	require.NotEmpty(t, artifact.Paths)
	assert.Empty(t, artifact.Warnings, "aws logsource is natively supported")

	manifestPath := artifact.Paths[0]
	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	var manifest pantherManifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, rule.ID, manifest.RuleID)
	assert.Equal(t, 2, manifest.TestCount)
	assert.Equal(t, 1, manifest.PositiveTests)
	assert.Equal(t, 1, manifest.NegativeTests)
	assert.Equal(t, []string{"test_000.json", "test_001.json"}, manifest.TestFiles)

	var tc pantherTestCase
	data, err = os.ReadFile(filepath.Join(filepath.Dir(manifestPath), "test_000.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &tc))
	assert.True(t, tc.ShouldTrigger)
	assert.Equal(t, "DeleteTrail", tc.Log["eventName"])
	assert.Equal(t, "sigforge", tc.Generator)
}

func TestSplunk_Export(t *testing.T) {
	rule, cases := exportFixture()
	dir := t.TempDir()

	artifact, err := NewSplunk().Export(rule, cases, dir)
	require.NoError(t, err)
	require.Len(t, artifact.Paths, 2)

	spl, err := os.ReadFile(artifact.Paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(spl), "makeresults count=2")
	assert.Contains(t, string(spl), rule.ID)

	data, err := os.ReadFile(artifact.Paths[1])
	require.NoError(t, err)
	var events []splunkEvent
	require.NoError(t, json.Unmarshal(data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "sigforge:aws:cloudtrail", events[0].Sourcetype)
	assert.True(t, events[0].ShouldTrigger)
	assert.Contains(t, events[0].Raw, "DeleteTrail")
}

func TestElastic_Export(t *testing.T) {
	rule, cases := exportFixture()
	dir := t.TempDir()

	artifact, err := NewElastic().Export(rule, cases, dir)
	require.NoError(t, err)
	require.Len(t, artifact.Paths, 2)

	bulk, err := os.ReadFile(artifact.Paths[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(bulk)), "\n")
	require.Len(t, lines, 4, "two cases produce meta+doc line pairs")

	var meta map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, "sigforge-test-aws", meta["index"]["_index"])

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "DeleteTrail", doc["eventName"])
	assert.NotEmpty(t, doc["@timestamp"], "timestamp is added when missing")
	labels, ok := doc["labels"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, rule.ID, labels["sigforge_rule_id"])
}

func TestLogsourceWarnings(t *testing.T) {
	rule, cases := exportFixture()
	rule.Logsource = core.Logsource{Product: "zos", Service: "racf"}

	artifact, err := NewPanther().Export(rule, cases, t.TempDir())
	require.NoError(t, err)
	require.Len(t, artifact.Warnings, 1)
	assert.Contains(t, artifact.Warnings[0], "zos")
}
