// Package detect implements the rule-condition compiler and evaluator.
//
// A rule's condition expression ("selection and not filter", "1 of sel_*",
// "all of them") is tokenized and parsed once per rule into an immutable
// arena-backed AST whose identifiers are fully resolved against the rule's
// declared selections; any unresolved identifier or empty quantifier pattern
// is a compile error. Selection criteria are compiled at the same time:
// regex patterns, CIDR literals, and numeric thresholds are parsed up front
// so that evaluation is pure and total - Evaluate always returns a boolean
// and never fails at runtime.
package detect
