package detect

import (
	"strings"
)

// CompileCondition parses a condition expression against the rule's declared
// selection names and returns a fully resolved, arena-backed AST.
//
// Operator precedence, highest to lowest: parenthesized group, NOT, AND, OR.
// Binary operators are left-associative. Quantifier clauses have the form
// "<all|any|N> of <pattern>", where <pattern> is a literal selection name, a
// wildcard glob, or the keyword "them" denoting every declared selection.
//
// Resolution happens here, exactly once per rule:
//   - a literal identifier must name a declared selection,
//   - a wildcard identifier or quantifier pattern matching zero selections
//     is a compile error,
//   - "all of" lowers to an AND chain and "any of"/"1 of" to an OR chain
//     over the matched identifiers,
//   - "N of" (N >= 2) becomes a count node; N exceeding the number of
//     matched identifiers is legal and simply never evaluates true.
func CompileCondition(expression string, selectionNames []string) (*AST, error) {
	tokens, err := Tokenize(expression)
	if err != nil {
		return nil, err
	}

	p := &conditionParser{
		tokens:    tokens,
		available: selectionNames,
		ast:       &AST{},
	}

	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if !p.atEnd() {
		current := p.peek()
		return nil, &SyntaxError{
			Position:   current.Position,
			Token:      current.Type,
			TokenValue: current.Value,
			Expected:   "end of expression",
			Context:    "unexpected tokens remain after a complete expression",
		}
	}

	p.ast.Root = root
	return p.ast, nil
}

// conditionParser is a recursive descent parser over a token stream. It
// appends nodes to the arena as it reduces productions.
type conditionParser struct {
	tokens    []Token
	position  int
	available []string
	ast       *AST
}

// parseExpression starts at the lowest precedence level (OR).
func (p *conditionParser) parseExpression() (int, error) {
	return p.parseOr()
}

// parseOr handles "a or b or c" left-associatively.
func (p *conditionParser) parseOr() (int, error) {
	left, err := p.parseAnd()
	if err != nil {
		return 0, err
	}

	for p.peek().Type == TokenOR {
		orToken := p.consume()
		right, err := p.parseAnd()
		if err != nil {
			return 0, operandError(orToken, "OR", err)
		}
		left = p.ast.add(Node{Kind: NodeOr, Left: left, Right: right})
	}
	return left, nil
}

// parseAnd handles "a and b and c" left-associatively.
func (p *conditionParser) parseAnd() (int, error) {
	left, err := p.parseNot()
	if err != nil {
		return 0, err
	}

	for p.peek().Type == TokenAND {
		andToken := p.consume()
		right, err := p.parseNot()
		if err != nil {
			return 0, operandError(andToken, "AND", err)
		}
		left = p.ast.add(Node{Kind: NodeAnd, Left: left, Right: right})
	}
	return left, nil
}

// parseNot handles prefix NOT, including "not not a".
func (p *conditionParser) parseNot() (int, error) {
	if p.peek().Type == TokenNOT {
		notToken := p.consume()
		child, err := p.parseNot()
		if err != nil {
			return 0, operandError(notToken, "NOT", err)
		}
		return p.ast.add(Node{Kind: NodeNot, Left: child}), nil
	}
	return p.parsePrimary()
}

// parsePrimary handles parenthesized groups, identifiers, and quantifiers.
func (p *conditionParser) parsePrimary() (int, error) {
	current := p.peek()

	switch current.Type {
	case TokenLParen:
		p.consume()
		expr, err := p.parseExpression()
		if err != nil {
			return 0, err
		}
		closing := p.peek()
		if closing.Type != TokenRParen {
			return 0, &SyntaxError{
				Position:   closing.Position,
				Token:      closing.Type,
				TokenValue: closing.Value,
				Expected:   "closing parenthesis ')'",
				Context:    "unmatched opening parenthesis",
			}
		}
		p.consume()
		return expr, nil

	case TokenIdent:
		ident := p.consume()
		return p.resolveIdentifier(ident)

	case TokenALL, TokenANY, TokenNumber:
		if p.peekAhead(1).Type == TokenOF {
			return p.parseQuantifier()
		}
		return 0, &SyntaxError{
			Position:   current.Position,
			Token:      current.Type,
			TokenValue: current.Value,
			Expected:   "'of' keyword",
			Context:    "quantifier keyword without an 'of' clause",
		}

	case TokenEOF:
		return 0, &SyntaxError{
			Position:   current.Position,
			Token:      TokenEOF,
			Expected:   "identifier or expression",
			Context:    "unexpected end of expression",
		}

	case TokenRParen:
		return 0, &SyntaxError{
			Position:   current.Position,
			Token:      current.Type,
			TokenValue: current.Value,
			Expected:   "identifier or expression",
			Context:    "unmatched closing parenthesis",
		}

	default:
		return 0, &SyntaxError{
			Position:   current.Position,
			Token:      current.Type,
			TokenValue: current.Value,
			Expected:   "identifier, quantifier, or parenthesized expression",
			Context:    "operator missing its left operand",
		}
	}
}

// resolveIdentifier turns an identifier token into AST nodes. A literal name
// must be declared. A wildcard glob lowers to an OR chain over its matches,
// which is the same semantics as "1 of <glob>".
func (p *conditionParser) resolveIdentifier(token Token) (int, error) {
	if !strings.Contains(token.Value, "*") {
		for _, name := range p.available {
			if name == token.Value {
				return p.ast.add(Node{Kind: NodeIdent, Ident: name}), nil
			}
		}
		return 0, &UnknownIdentifierError{Name: token.Value, Available: p.available}
	}

	matches := matchSelectionPattern(token.Value, p.available)
	if len(matches) == 0 {
		return 0, &UnknownIdentifierError{Name: token.Value, Available: p.available}
	}
	return p.lowerChain(NodeOr, matches), nil
}

// parseQuantifier parses "<all|any|N> of <them|pattern>". The quantifier
// keyword has already been peeked by the caller.
func (p *conditionParser) parseQuantifier() (int, error) {
	quantToken := p.consume()

	var count int
	lowerAll := false
	switch quantToken.Type {
	case TokenALL:
		lowerAll = true
	case TokenANY:
		count = 1
	case TokenNumber:
		n, err := parseNumber(quantToken)
		if err != nil {
			return 0, &SyntaxError{
				Position:   quantToken.Position,
				Token:      quantToken.Type,
				TokenValue: quantToken.Value,
				Expected:   "positive integer quantifier",
				Context:    err.Error(),
			}
		}
		if n < 1 {
			return 0, &SyntaxError{
				Position:   quantToken.Position,
				Token:      quantToken.Type,
				TokenValue: quantToken.Value,
				Expected:   "positive integer quantifier",
				Context:    "quantifier must be at least 1",
			}
		}
		count = n
	}

	// The caller guaranteed the OF token is next.
	p.consume()

	target := p.peek()
	var pattern string
	switch target.Type {
	case TokenTHEM:
		p.consume()
		pattern = "them"
	case TokenIdent:
		p.consume()
		pattern = target.Value
	case TokenALL, TokenANY:
		// Keywords are not valid quantifier targets.
		return 0, &SyntaxError{
			Position:   target.Position,
			Token:      target.Type,
			TokenValue: target.Value,
			Expected:   "'them' or a selection pattern",
			Context:    "quantifier target must be a pattern, not a keyword",
		}
	default:
		return 0, &SyntaxError{
			Position:   target.Position,
			Token:      target.Type,
			TokenValue: target.Value,
			Expected:   "'them' or a selection pattern",
			Context:    "missing quantifier target after 'of'",
		}
	}

	matches := matchSelectionPattern(pattern, p.available)
	if len(matches) == 0 {
		return 0, &QuantifierPatternError{Pattern: pattern, Available: p.available}
	}

	switch {
	case lowerAll:
		return p.lowerChain(NodeAnd, matches), nil
	case count == 1:
		return p.lowerChain(NodeOr, matches), nil
	default:
		// A count above len(matches) stays legal: it evaluates false for
		// every event instead of failing compilation.
		return p.ast.add(Node{Kind: NodeCount, Idents: matches, Count: count}), nil
	}
}

// lowerChain builds a left-associative AND/OR chain of identifier nodes.
func (p *conditionParser) lowerChain(kind NodeKind, idents []string) int {
	left := p.ast.add(Node{Kind: NodeIdent, Ident: idents[0]})
	for _, name := range idents[1:] {
		right := p.ast.add(Node{Kind: NodeIdent, Ident: name})
		left = p.ast.add(Node{Kind: kind, Left: left, Right: right})
	}
	return left
}

func (p *conditionParser) peek() Token {
	if p.position >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.position]
}

func (p *conditionParser) peekAhead(offset int) Token {
	target := p.position + offset
	if target >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[target]
}

func (p *conditionParser) consume() Token {
	token := p.peek()
	if p.position < len(p.tokens) {
		p.position++
	}
	return token
}

func (p *conditionParser) atEnd() bool {
	return p.peek().Type == TokenEOF
}

func operandError(op Token, name string, err error) error {
	if syn, ok := err.(*SyntaxError); ok && syn.Token == TokenEOF {
		return &SyntaxError{
			Position:   op.Position,
			Token:      op.Type,
			TokenValue: op.Value,
			Expected:   "expression after " + name + " operator",
			Context:    name + " operator missing its operand",
		}
	}
	return err
}

// matchSelectionPattern resolves a quantifier or identifier pattern to the
// declared selections it covers. "them" matches everything; a pattern with
// '*' is glob-matched segment by segment; anything else is an exact match.
// Matching uses plain string scans, never regex, so pattern complexity stays
// linear in the input.
func matchSelectionPattern(pattern string, available []string) []string {
	if strings.EqualFold(pattern, "them") {
		out := make([]string, len(available))
		copy(out, available)
		return out
	}

	if !strings.Contains(pattern, "*") {
		for _, name := range available {
			if name == pattern {
				return []string{name}
			}
		}
		return nil
	}

	segments := strings.Split(pattern, "*")
	var matches []string
	for _, name := range available {
		if matchesGlobSegments(name, segments) {
			matches = append(matches, name)
		}
	}
	return matches
}

// matchesGlobSegments checks a name against the literal segments between
// '*' wildcards: the first segment anchors as a prefix, the last as a
// suffix, and middle segments must appear in order.
func matchesGlobSegments(name string, segments []string) bool {
	if len(segments) == 0 {
		return false
	}
	if len(segments) == 1 {
		return name == segments[0]
	}

	position := 0
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		switch {
		case i == 0:
			if !strings.HasPrefix(name, segment) {
				return false
			}
			position = len(segment)
		case i == len(segments)-1:
			if !strings.HasSuffix(name, segment) {
				return false
			}
			if strings.LastIndex(name, segment) < position {
				return false
			}
		default:
			idx := strings.Index(name[position:], segment)
			if idx == -1 {
				return false
			}
			position += idx + len(segment)
		}
	}
	return true
}
