package detect

import (
	"encoding/base64"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"

	"sigforge/core"
)

// Modifier names accepted in field-map keys ("Field|modifier|modifier").
const (
	ModifierContains   = "contains"
	ModifierStartsWith = "startswith"
	ModifierEndsWith   = "endswith"
	ModifierRegex      = "re"
	ModifierCIDR       = "cidr"

	ModifierGT  = "gt"
	ModifierGTE = "gte"
	ModifierLT  = "lt"
	ModifierLTE = "lte"

	ModifierAll = "all"

	ModifierBase64       = "base64"
	ModifierBase64Offset = "base64offset"

	// OpEquals is the implicit comparison when no modifier is present.
	OpEquals = "equals"
)

type compareOp uint8

const (
	opEquals compareOp = iota
	opContains
	opStartsWith
	opEndsWith
	opRegex
	opCIDR
	opGT
	opGTE
	opLT
	opLTE
)

func (op compareOp) String() string {
	switch op {
	case opEquals:
		return OpEquals
	case opContains:
		return ModifierContains
	case opStartsWith:
		return ModifierStartsWith
	case opEndsWith:
		return ModifierEndsWith
	case opRegex:
		return ModifierRegex
	case opCIDR:
		return ModifierCIDR
	case opGT:
		return ModifierGT
	case opGTE:
		return ModifierGTE
	case opLT:
		return ModifierLT
	case opLTE:
		return ModifierLTE
	default:
		return "unknown"
	}
}

var comparisonOps = map[string]compareOp{
	ModifierContains:   opContains,
	ModifierStartsWith: opStartsWith,
	ModifierEndsWith:   opEndsWith,
	ModifierRegex:      opRegex,
	ModifierCIDR:       opCIDR,
	ModifierGT:         opGT,
	ModifierGTE:        opGTE,
	ModifierLT:         opLT,
	ModifierLTE:        opLTE,
}

type transformKind uint8

const (
	transformBase64 transformKind = iota
	transformBase64Offset
)

// Regex safety bounds. regexp2 backtracks, so patterns get a hard match
// timeout on top of compile-time size limits.
const (
	regexMatchTimeout     = 500 * time.Millisecond
	maxRegexPatternLength = 10000
	maxRegexQuantifier    = 1000
	regexCacheSize        = 512
)

var quantifierBoundPattern = regexp.MustCompile(`\{(\d+)(?:,(\d*))?\}`)

// regexCache holds compiled patterns shared across every rule compilation in
// the process. Rules in one corpus reuse the same patterns heavily, so a
// small bounded cache removes nearly all recompilation.
var regexCache *lru.Cache[string, *regexp2.Regexp]

func init() {
	cache, err := lru.New[string, *regexp2.Regexp](regexCacheSize)
	if err != nil {
		panic(fmt.Sprintf("regex cache init: %v", err))
	}
	regexCache = cache
}

// compileRegex validates and compiles a pattern, reusing cached automata.
func compileRegex(pattern string) (*regexp2.Regexp, error) {
	if err := validateRegexPattern(pattern); err != nil {
		return nil, err
	}
	if re, ok := regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp2.Compile(pattern, 0)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = regexMatchTimeout
	regexCache.Add(pattern, re)
	return re, nil
}

// validateRegexPattern rejects patterns whose compilation or matching could
// be unreasonably expensive: oversized patterns and huge {n,m} quantifiers.
func validateRegexPattern(pattern string) error {
	if len(pattern) > maxRegexPatternLength {
		return fmt.Errorf("regex pattern too long: %d bytes (max %d)", len(pattern), maxRegexPatternLength)
	}
	for _, match := range quantifierBoundPattern.FindAllStringSubmatch(pattern, -1) {
		for _, bound := range match[1:] {
			if bound == "" {
				continue
			}
			if n, err := strconv.Atoi(bound); err == nil && n > maxRegexQuantifier {
				return fmt.Errorf("regex quantifier too large: %d exceeds max %d", n, maxRegexQuantifier)
			}
		}
	}
	return nil
}

// fieldMatcher is one compiled "field|modifiers: values" entry. Everything
// fallible (regex compilation, CIDR parsing, threshold parsing) happened at
// compile time, so match is total.
type fieldMatcher struct {
	field      string
	key        string
	op         compareOp
	requireAll bool
	transforms []transformKind

	// rawValues keeps the original literal strings for field profiles.
	rawValues []string
	// loweredValues backs the case-insensitive string comparisons.
	loweredValues []string
	regexes       []*regexp2.Regexp
	networks      []*net.IPNet
	numbers       []float64
}

// compileFieldMatcher compiles one field-map key/value pair. Any defect in
// the key or its literals is a *ModifierError, which is fatal to the rule.
func compileFieldMatcher(key string, rawValue interface{}) (*fieldMatcher, error) {
	field, modifiers := core.SplitFieldKey(key)
	if field == "" {
		return nil, &ModifierError{Key: key, Reason: "empty field path"}
	}

	m := &fieldMatcher{field: field, key: key, op: opEquals}

	comparisonSeen := false
	for _, mod := range modifiers {
		if op, ok := comparisonOps[mod]; ok {
			if comparisonSeen {
				return nil, &ModifierError{Key: key, Reason: "multiple comparison modifiers"}
			}
			comparisonSeen = true
			m.op = op
			continue
		}
		switch mod {
		case ModifierAll:
			m.requireAll = true
		case ModifierBase64:
			m.transforms = append(m.transforms, transformBase64)
		case ModifierBase64Offset:
			m.transforms = append(m.transforms, transformBase64Offset)
		default:
			return nil, &ModifierError{Key: key, Reason: fmt.Sprintf("unknown modifier %q", mod)}
		}
	}

	values := listify(rawValue)
	if len(values) == 0 {
		return nil, &ModifierError{Key: key, Reason: "no values to match"}
	}

	for _, v := range values {
		literal := valueToString(v)
		m.rawValues = append(m.rawValues, literal)

		switch m.op {
		case opRegex:
			re, err := compileRegex(literal)
			if err != nil {
				return nil, &ModifierError{Key: key, Reason: "invalid regex", Err: err}
			}
			m.regexes = append(m.regexes, re)
		case opCIDR:
			_, network, err := net.ParseCIDR(literal)
			if err != nil {
				return nil, &ModifierError{Key: key, Reason: "invalid CIDR literal", Err: err}
			}
			m.networks = append(m.networks, network)
		case opGT, opGTE, opLT, opLTE:
			n, ok := toFloat64(v)
			if !ok {
				return nil, &ModifierError{Key: key, Reason: fmt.Sprintf("non-numeric comparison threshold %q", literal)}
			}
			m.numbers = append(m.numbers, n)
		default:
			m.loweredValues = append(m.loweredValues, strings.ToLower(literal))
		}
	}

	return m, nil
}

// match evaluates the matcher against an event. A missing field never
// matches. List-valued event fields match when any element satisfies the
// comparison; with the "all" modifier every rule literal must be satisfied
// by at least one element.
func (m *fieldMatcher) match(event core.Event) bool {
	raw, ok := event.Lookup(m.field)
	if !ok {
		return false
	}

	candidates := m.eventCandidates(raw)
	if len(candidates) == 0 {
		return false
	}

	if m.requireAll {
		for i := 0; i < m.valueCount(); i++ {
			matched := false
			for _, candidate := range candidates {
				if m.matchOne(candidate, i) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
		return true
	}

	for _, candidate := range candidates {
		for i := 0; i < m.valueCount(); i++ {
			if m.matchOne(candidate, i) {
				return true
			}
		}
	}
	return false
}

func (m *fieldMatcher) valueCount() int {
	switch m.op {
	case opRegex:
		return len(m.regexes)
	case opCIDR:
		return len(m.networks)
	case opGT, opGTE, opLT, opLTE:
		return len(m.numbers)
	default:
		return len(m.loweredValues)
	}
}

// eventCandidates flattens the event value into comparable scalars and
// applies transform modifiers. A candidate that fails to decode is dropped
// rather than failing the evaluation; decode failure simply cannot match.
func (m *fieldMatcher) eventCandidates(raw interface{}) []interface{} {
	values := listify(raw)
	if len(m.transforms) == 0 {
		return values
	}

	var out []interface{}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			s = valueToString(v)
		}
		decoded, ok := applyTransforms(s, m.transforms)
		if !ok {
			continue
		}
		out = append(out, decoded)
	}
	return out
}

// matchOne compares a single event candidate against the i-th rule literal.
func (m *fieldMatcher) matchOne(candidate interface{}, i int) bool {
	switch m.op {
	case opEquals:
		return strings.EqualFold(valueToString(candidate), m.rawValues[i])
	case opContains:
		return strings.Contains(strings.ToLower(valueToString(candidate)), m.loweredValues[i])
	case opStartsWith:
		return strings.HasPrefix(strings.ToLower(valueToString(candidate)), m.loweredValues[i])
	case opEndsWith:
		return strings.HasSuffix(strings.ToLower(valueToString(candidate)), m.loweredValues[i])
	case opRegex:
		matched, err := m.regexes[i].MatchString(valueToString(candidate))
		if err != nil {
			// Match timeout. Treat as no-match: evaluation stays total.
			return false
		}
		return matched
	case opCIDR:
		ip := net.ParseIP(strings.TrimSpace(valueToString(candidate)))
		if ip == nil {
			return false
		}
		return m.networks[i].Contains(ip)
	case opGT:
		n, ok := toFloat64(candidate)
		return ok && n > m.numbers[i]
	case opGTE:
		n, ok := toFloat64(candidate)
		return ok && n >= m.numbers[i]
	case opLT:
		n, ok := toFloat64(candidate)
		return ok && n < m.numbers[i]
	case opLTE:
		n, ok := toFloat64(candidate)
		return ok && n <= m.numbers[i]
	default:
		return false
	}
}

// applyTransforms runs the transform chain over an event string value.
func applyTransforms(s string, transforms []transformKind) (string, bool) {
	current := s
	for _, tr := range transforms {
		var ok bool
		switch tr {
		case transformBase64:
			current, ok = decodeBase64(current)
		case transformBase64Offset:
			current, ok = decodeBase64Offset(current)
		}
		if !ok {
			return "", false
		}
	}
	return current, true
}

// decodeBase64 tries the common base64 alphabets in order: standard,
// URL-safe, then the unpadded variants of both.
func decodeBase64(input string) (string, bool) {
	if input == "" {
		return "", true
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(input); err == nil {
			return string(decoded), true
		}
	}
	return "", false
}

// decodeBase64Offset decodes input that may start at byte boundary 0, 1,
// or 2. Leading 'A' characters (zero bytes in base64) simulate the offset
// and are stripped from the decoded result.
func decodeBase64Offset(input string) (string, bool) {
	if input == "" {
		return "", true
	}
	for offset := 0; offset <= 2; offset++ {
		padded := strings.Repeat("A", offset) + input
		padded += strings.Repeat("=", (4-len(padded)%4)%4)

		if decoded, err := base64.StdEncoding.DecodeString(padded); err == nil && len(decoded) >= offset {
			return string(decoded[offset:]), true
		}
		if decoded, err := base64.URLEncoding.DecodeString(padded); err == nil && len(decoded) >= offset {
			return string(decoded[offset:]), true
		}
	}
	return decodeBase64(input)
}

// listify normalizes a scalar-or-list value into a slice.
func listify(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	if v == nil {
		return nil
	}
	return []interface{}{v}
}

// valueToString renders scalars the way log pipelines usually do: integers
// without exponents, floats in their shortest form, booleans lowercase.
func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toFloat64 converts numeric scalars and numeric strings. Anything else
// reports false, which the comparison operators translate into no-match.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
