package detect

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCompile is the sentinel every compile-time error unwraps to. Callers
// check errors.Is(err, ErrCompile) to distinguish a bad rule from an
// infrastructure failure.
var ErrCompile = errors.New("condition compile error")

// TokenizationError reports an invalid character in a condition expression.
type TokenizationError struct {
	Position    int
	InvalidChar rune
	Context     string
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("invalid character %q at position %d (near %q)",
		e.InvalidChar, e.Position, e.Context)
}

func (e *TokenizationError) Unwrap() error { return ErrCompile }

// SyntaxError reports a malformed condition expression: an unexpected token,
// a missing operand, or an unmatched parenthesis.
type SyntaxError struct {
	Position   int
	Token      TokenType
	TokenValue string
	Expected   string
	Context    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: got %s(%q), expected %s (%s)",
		e.Position, e.Token, e.TokenValue, e.Expected, e.Context)
}

func (e *SyntaxError) Unwrap() error { return ErrCompile }

// UnknownIdentifierError reports a condition identifier that resolves to no
// declared selection.
type UnknownIdentifierError struct {
	Name      string
	Available []string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown selection identifier %q (declared selections: %s)",
		e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownIdentifierError) Unwrap() error { return ErrCompile }

// QuantifierPatternError reports a quantifier whose pattern matched no
// declared selection ("1 of sel_*" with no sel_* selections).
type QuantifierPatternError struct {
	Pattern   string
	Available []string
}

func (e *QuantifierPatternError) Error() string {
	return fmt.Sprintf("quantifier pattern %q matches no selections (declared selections: %s)",
		e.Pattern, strings.Join(e.Available, ", "))
}

func (e *QuantifierPatternError) Unwrap() error { return ErrCompile }

// ModifierError reports an invalid field-map key or value discovered while
// compiling selection criteria: an unknown modifier, a regex that does not
// compile, a malformed CIDR literal, or a non-numeric comparison threshold.
type ModifierError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ModifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field key %q: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("field key %q: %s", e.Key, e.Reason)
}

func (e *ModifierError) Unwrap() error { return ErrCompile }
