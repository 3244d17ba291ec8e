package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed rule source file. It is fatal to that rule
// only; the batch orchestrator records it and moves on.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule parse error in %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("rule parse error in %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ruleSchema is the structural contract a rule document must satisfy before
// it is bound into the typed model. Field-level matching semantics are
// checked later by the condition compiler; this schema only guards shape.
const ruleSchema = `{
	"type": "object",
	"required": ["title", "id", "logsource", "detection"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"id": {"type": "string", "minLength": 1},
		"level": {"type": "string"},
		"status": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}},
		"references": {"type": "array", "items": {"type": "string"}},
		"logsource": {
			"type": "object",
			"properties": {
				"category": {"type": "string"},
				"product": {"type": "string"},
				"service": {"type": "string"}
			}
		},
		"detection": {
			"type": "object",
			"required": ["condition"],
			"properties": {
				"condition": {"type": "string", "minLength": 1}
			},
			"minProperties": 2
		}
	}
}`

var compiledRuleSchema = gojsonschema.NewStringLoader(ruleSchema)

// Loader parses rule source files into immutable Rule values.
type Loader struct{}

// NewLoader creates a rule loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile reads and parses one rule file. It returns a *ParseError for any
// malformed document so the orchestrator can attribute the failure to the
// offending path.
func (l *Loader) LoadFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "cannot read file", Err: err}
	}
	rule, err := l.LoadBytes(data)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
			return nil, pe
		}
		return nil, &ParseError{Path: path, Reason: "invalid rule", Err: err}
	}
	rule.FilePath = path
	return rule, nil
}

// LoadBytes parses a rule document from raw YAML bytes.
func (l *Loader) LoadBytes(data []byte) (*Rule, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: "invalid YAML", Err: err}
	}
	doc = normalizeKeys(doc).(map[string]interface{})

	result, err := gojsonschema.Validate(compiledRuleSchema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, &ParseError{Reason: "schema validation failed", Err: err}
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return nil, &ParseError{Reason: "schema violation: " + strings.Join(issues, "; ")}
	}

	return bindRule(doc)
}

// bindRule converts a schema-valid document into the typed Rule model.
func bindRule(doc map[string]interface{}) (*Rule, error) {
	rule := &Rule{
		ID:          stringField(doc, "id"),
		Title:       stringField(doc, "title"),
		Description: stringField(doc, "description"),
		Status:      stringField(doc, "status"),
		Level:       stringField(doc, "level"),
		Author:      stringField(doc, "author"),
		Tags:        stringList(doc["tags"]),
		References:  stringList(doc["references"]),
	}

	if ls, ok := doc["logsource"].(map[string]interface{}); ok {
		rule.Logsource = Logsource{
			Category: stringField(ls, "category"),
			Product:  stringField(ls, "product"),
			Service:  stringField(ls, "service"),
		}
	}

	detection, _ := doc["detection"].(map[string]interface{})
	rule.Condition = stringField(detection, "condition")
	rule.Selections = make(map[string]Selection)
	for name, raw := range detection {
		if name == "condition" {
			continue
		}
		sel, err := bindSelection(raw)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("selection %q: %v", name, err)}
		}
		rule.Selections[name] = sel
	}

	rule.Fields = ReferencedFields(rule.Selections)

	if err := rule.Validate(); err != nil {
		return nil, &ParseError{Reason: "invalid rule", Err: err}
	}
	return rule, nil
}

// bindSelection accepts either a single field-map or an ordered sequence of
// field-maps. Sequence entries are OR'd during evaluation.
func bindSelection(raw interface{}) (Selection, error) {
	switch v := raw.(type) {
	case map[string]interface{}:
		return Selection{Entries: []FieldMap{FieldMap(v)}}, nil
	case []interface{}:
		if len(v) == 0 {
			return Selection{}, fmt.Errorf("empty selection sequence")
		}
		entries := make([]FieldMap, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return Selection{}, fmt.Errorf("sequence entry %d is not a field map", i)
			}
			entries = append(entries, FieldMap(m))
		}
		return Selection{Entries: entries}, nil
	default:
		return Selection{}, fmt.Errorf("selection must be a map or a list of maps, got %T", raw)
	}
}

// normalizeKeys rewrites yaml.v3 output into JSON-compatible structures so
// the schema validator and downstream code see map[string]interface{}
// everywhere. Non-string map keys are stringified.
func normalizeKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeKeys(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeKeys(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeKeys(item)
		}
		return out
	default:
		return val
	}
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stringList(raw interface{}) []string {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
