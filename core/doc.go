// Package core defines the shared data model for sigforge: detection rules,
// semi-structured log events, generated test cases, and per-rule task results.
//
// Everything in this package is plain data. Rules are immutable once loaded,
// events are owned by exactly one task at a time, and test cases are mutated
// only by the validator (which fills in the actual match outcome). The
// compiler, evaluator, expander, and orchestrator all build on these types
// without adding behavior to them.
package core
