package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"sigforge/batch"
	"sigforge/core"
)

// renderTaskResult displays one rule task in detail.
func renderTaskResult(res core.RuleTaskResult) {
	headerColor.Println("═══════════════════════════════════════════════════════════════")
	headerColor.Printf("  Rule: %s\n", displayRuleID(res))
	headerColor.Println("═══════════════════════════════════════════════════════════════")

	printField("Path", res.RulePath)
	printField("Status", formatStatus(res.Status))
	if res.Error != "" {
		printField("Error", res.Error)
	}
	printField("Test Cases", fmt.Sprintf("%d", len(res.TestCases)))
	printField("Elapsed", res.Elapsed.String())

	positive, negative := 0, 0
	for _, tc := range res.TestCases {
		if tc.Label == core.LabelPositive {
			positive++
		} else {
			negative++
		}
	}
	printField("Labels", fmt.Sprintf("%d positive / %d negative", positive, negative))

	if len(res.ArtifactPaths) > 0 {
		fmt.Println()
		printSection("Artifacts")
		for _, p := range res.ArtifactPaths {
			fmt.Printf("  %s\n", p)
		}
	}

	warnings := nonComplexityDiagnostics(res.Diagnostics)
	if len(warnings) > 0 {
		fmt.Println()
		printSection("Warnings")
		for _, d := range warnings {
			warningColor.Printf("  [%s] %s\n", d.Kind, d.Message)
		}
	}
	fmt.Println()
}

// renderResultsTable displays one row per rule task.
func renderResultsTable(results []core.RuleTaskResult) {
	headerColor.Println("RULE TASKS")
	headerColor.Println(strings.Repeat("=", 100))
	fmt.Printf("%-30s %-28s %-9s %-7s %-9s %-10s\n",
		"Rule", "File", "Status", "Cases", "Warnings", "Elapsed")
	fmt.Println(strings.Repeat("-", 100))

	for _, res := range results {
		name := displayRuleID(res)
		if len(name) > 29 {
			name = name[:26] + "..."
		}
		file := filepath.Base(res.RulePath)
		if len(file) > 27 {
			file = file[:24] + "..."
		}
		fmt.Printf("%-30s %-28s %-9s %-7d %-9d %-10s\n",
			name, file, res.Status, len(res.TestCases),
			len(nonComplexityDiagnostics(res.Diagnostics)),
			res.Elapsed.Round(time.Millisecond).String())
	}
	fmt.Println(strings.Repeat("=", 100))
}

// renderSummary displays batch totals.
func renderSummary(s batch.Summary) {
	fmt.Println()
	printSection("Summary")
	printField("Rules", fmt.Sprintf("%d", s.Total))
	printField("OK", fmt.Sprintf("%d", s.OK))
	printField("Failed", fmt.Sprintf("%d", s.Failed))
	printField("Skipped", fmt.Sprintf("%d", s.Skipped))
	printField("Test Cases", fmt.Sprintf("%d", s.TestCases))
	printField("Warnings", fmt.Sprintf("%d", s.Warnings))

	if !quiet {
		fmt.Println()
		switch {
		case s.Failed > 0:
			errorColor.Printf("✗ %d/%d rule tasks failed\n", s.Failed, s.Total)
		case s.Skipped > 0:
			warningColor.Printf("⚠ %d rule tasks skipped\n", s.Skipped)
		default:
			successColor.Printf("✓ All %d rule tasks completed successfully\n", s.Total)
		}
	}
}

func displayRuleID(res core.RuleTaskResult) string {
	if res.RuleID != "" {
		return res.RuleID
	}
	return filepath.Base(res.RulePath)
}

func formatStatus(status core.TaskStatus) string {
	switch status {
	case core.StatusOK:
		return successColor.Sprint("ok")
	case core.StatusFailed:
		return errorColor.Sprint("failed")
	case core.StatusSkipped:
		return warningColor.Sprint("skipped")
	default:
		return string(status)
	}
}

// nonComplexityDiagnostics filters out the informational complexity entry
// every successful task carries.
func nonComplexityDiagnostics(diags []core.Diagnostic) []core.Diagnostic {
	var out []core.Diagnostic
	for _, d := range diags {
		if d.Kind != core.DiagComplexity {
			out = append(out, d)
		}
	}
	return out
}

func printSection(title string) {
	infoColor.Printf("%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printField(name, value string) {
	fmt.Printf("  %-14s %s\n", name+":", value)
}
