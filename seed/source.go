// Package seed acquires labeled seed events for a rule, either from an
// OpenAI-compatible completion service or from a deterministic local
// construction.
package seed

import (
	"context"
	"errors"
	"fmt"

	"sigforge/core"
)

// Source delivers labeled seed events for one rule. Implementations may be
// network-bound; callers bound them with the context.
type Source interface {
	// GetSeeds returns up to n positive and n negative seeds for the rule.
	GetSeeds(ctx context.Context, rule *core.Rule, n int) ([]core.Seed, error)
}

// SeedError reports a seed-acquisition failure. Retryable errors are worth
// another attempt after a backoff; the rest fail the rule task immediately.
type SeedError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *SeedError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("seed acquisition: %s: %s error: %v", e.Op, kind, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a SeedError marked retryable.
func IsRetryable(err error) bool {
	var se *SeedError
	return errors.As(err, &se) && se.Retryable
}
