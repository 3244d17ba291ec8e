package core

import "time"

// TaskStatus is the lifecycle state of one rule task inside a batch run.
// Transitions: queued -> running -> {ok, failed}; queued -> skipped when
// fail-fast aborts the remainder of the batch.
type TaskStatus string

const (
	StatusQueued  TaskStatus = "queued"
	StatusRunning TaskStatus = "running"
	StatusOK      TaskStatus = "ok"
	StatusSkipped TaskStatus = "skipped"
	StatusFailed  TaskStatus = "failed"
)

// DiagnosticKind categorizes a non-fatal per-rule finding.
type DiagnosticKind string

const (
	// DiagExpansionShortfall: the expansion engine exhausted its operators
	// before reaching the target test-case count.
	DiagExpansionShortfall DiagnosticKind = "expansion-shortfall"
	// DiagValidationMismatch: a test case's actual outcome disagreed with
	// its label.
	DiagValidationMismatch DiagnosticKind = "validation-mismatch"
	// DiagExportWarning: a platform exporter reported a compatibility issue
	// that did not block export.
	DiagExportWarning DiagnosticKind = "export-warning"
	// DiagComplexity: the compile-time complexity summary for the rule.
	DiagComplexity DiagnosticKind = "complexity"
)

// Diagnostic is one non-fatal finding recorded on a rule task result.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
}

// RuleTaskResult is the complete outcome of processing one rule file. The
// orchestrator records it once per discovered rule; it is immutable after
// that.
type RuleTaskResult struct {
	RuleID   string     `json:"rule_id"`
	RulePath string     `json:"rule_path"`
	Status   TaskStatus `json:"status"`

	// Error holds the fatal per-rule error message for failed tasks.
	Error string `json:"error,omitempty"`

	// TestCases is the accepted corpus (label-consistent cases only).
	TestCases []TestCase `json:"test_cases,omitempty"`

	// Diagnostics lists every non-fatal finding, including mismatched
	// cases excluded from the accepted corpus.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// ArtifactPaths lists files written by exporters for this rule.
	ArtifactPaths []string `json:"artifact_paths,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}
