package detect

import (
	"fmt"
	"regexp"
	"strconv"
)

// TokenType identifies the lexical class of a condition-expression token.
type TokenType int

const (
	// TokenEOF terminates every token stream.
	TokenEOF TokenType = iota
	// TokenAND is the binary AND operator.
	TokenAND
	// TokenOR is the binary OR operator.
	TokenOR
	// TokenNOT is the unary NOT operator.
	TokenNOT
	// TokenLParen is a left parenthesis.
	TokenLParen
	// TokenRParen is a right parenthesis.
	TokenRParen
	// TokenOF is the OF keyword in quantifier clauses.
	TokenOF
	// TokenALL is the ALL quantifier keyword.
	TokenALL
	// TokenANY is the ANY quantifier keyword (synonym for "1 of").
	TokenANY
	// TokenTHEM is the keyword denoting every declared selection.
	TokenTHEM
	// TokenNumber is a positive integer quantifier.
	TokenNumber
	// TokenIdent is a selection name, possibly containing '*' wildcards.
	TokenIdent
)

// String returns the token type name for error messages.
func (tt TokenType) String() string {
	switch tt {
	case TokenEOF:
		return "EOF"
	case TokenAND:
		return "AND"
	case TokenOR:
		return "OR"
	case TokenNOT:
		return "NOT"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenOF:
		return "OF"
	case TokenALL:
		return "ALL"
	case TokenANY:
		return "ANY"
	case TokenTHEM:
		return "THEM"
	case TokenNumber:
		return "NUMBER"
	case TokenIdent:
		return "IDENTIFIER"
	default:
		return "UNKNOWN"
	}
}

// Token is one lexeme with its byte offset in the original expression, kept
// for precise error reporting.
type Token struct {
	Type     TokenType
	Value    string
	Position int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at pos %d", t.Type, t.Value, t.Position)
}

type tokenPattern struct {
	Type    TokenType
	Pattern *regexp.Regexp
}

// tokenPatterns are tried in priority order. Keywords precede identifiers so
// "and" never lexes as an identifier; word boundaries prevent "android" from
// starting with an AND token.
var tokenPatterns = []tokenPattern{
	{TokenAND, regexp.MustCompile(`^(?i)\band\b`)},
	{TokenOR, regexp.MustCompile(`^(?i)\bor\b`)},
	{TokenNOT, regexp.MustCompile(`^(?i)\bnot\b`)},
	{TokenOF, regexp.MustCompile(`^(?i)\bof\b`)},
	{TokenALL, regexp.MustCompile(`^(?i)\ball\b`)},
	{TokenANY, regexp.MustCompile(`^(?i)\bany\b`)},
	{TokenTHEM, regexp.MustCompile(`^(?i)\bthem\b`)},
	{TokenNumber, regexp.MustCompile(`^\d+`)},
	{TokenLParen, regexp.MustCompile(`^\(`)},
	{TokenRParen, regexp.MustCompile(`^\)`)},
	// Identifiers allow '*' anywhere for wildcard patterns: sel*, *_win, *x*.
	{TokenIdent, regexp.MustCompile(`^[a-zA-Z0-9_*]+`)},
}

var whitespacePattern = regexp.MustCompile(`^\s+`)

// Tokenize performs lexical analysis of a condition expression. Keywords are
// matched case-insensitively. The returned stream always ends with an EOF
// token. Invalid characters produce a *TokenizationError with surrounding
// context.
func Tokenize(expression string) ([]Token, error) {
	if expression == "" {
		return []Token{{Type: TokenEOF, Position: 0}}, nil
	}

	var tokens []Token
	position := 0

	for position < len(expression) {
		if match := whitespacePattern.FindString(expression[position:]); match != "" {
			position += len(match)
			continue
		}

		matched := false
		for _, pattern := range tokenPatterns {
			if match := pattern.Pattern.FindString(expression[position:]); match != "" {
				tokens = append(tokens, Token{
					Type:     pattern.Type,
					Value:    match,
					Position: position,
				})
				position += len(match)
				matched = true
				break
			}
		}

		if !matched {
			start := position - 20
			if start < 0 {
				start = 0
			}
			end := position + 20
			if end > len(expression) {
				end = len(expression)
			}
			return nil, &TokenizationError{
				Position:    position,
				InvalidChar: rune(expression[position]),
				Context:     expression[start:end],
			}
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Position: position})
	return tokens, nil
}

// parseNumber extracts the integer value of a NUMBER token.
func parseNumber(token Token) (int, error) {
	if token.Type != TokenNumber {
		return 0, fmt.Errorf("expected NUMBER token, got %s at position %d", token.Type, token.Position)
	}
	value, err := strconv.Atoi(token.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q at position %d: %w", token.Value, token.Position, err)
	}
	return value, nil
}
