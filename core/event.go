package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Event is a semi-structured log record: a mapping of dotted field paths to
// scalar or list values. Events have no fixed schema and may carry fields a
// rule never references; that is legal and expected (noise fields are used
// as an evaluator canary by the expansion engine).
type Event map[string]interface{}

// Lookup resolves a dotted field path against the event. It first tries the
// path as a literal top-level key (events commonly arrive pre-flattened),
// then walks nested maps segment by segment.
func (e Event) Lookup(path string) (interface{}, bool) {
	if v, ok := e[path]; ok {
		return v, true
	}

	segments := strings.Split(path, ".")
	if len(segments) == 1 {
		return nil, false
	}

	var current interface{} = map[string]interface{}(e)
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Clone returns a deep copy of the event. Mutation operators work on clones
// so a seed event is never modified in place.
func (e Event) Clone() Event {
	return Event(cloneValue(map[string]interface{}(e)).(map[string]interface{}))
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// Canonical renders the event into a deterministic byte form: field paths
// sorted lexicographically, values JSON-encoded. Two events with identical
// content always produce identical canonical bytes regardless of insertion
// order, which is what the dedup hash relies on.
func (e Event) Canonical() []byte {
	var b strings.Builder
	writeCanonical(&b, map[string]interface{}(e))
	return []byte(b.String())
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, _ := json.Marshal(k)
			b.Write(enc)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		enc, err := json.Marshal(val)
		if err != nil {
			enc, _ = json.Marshal(toStringFallback(val))
		}
		b.Write(enc)
	}
}

func toStringFallback(v interface{}) string {
	enc, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(enc)
}

// ContentHash returns the SHA-256 hex digest of the canonical event form.
// The expansion engine uses it to guarantee that no two test cases for the
// same rule share byte-identical event content.
func (e Event) ContentHash() string {
	sum := sha256.Sum256(e.Canonical())
	return hex.EncodeToString(sum[:])
}
