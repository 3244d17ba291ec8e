package detect

import "sigforge/core"

// Evaluate runs the compiled condition against an event. It is total: on
// any event, including one missing every referenced field, it returns a
// boolean and never an error.
//
// Selection truth values are memoized per call so a selection referenced
// multiple times in the condition is evaluated against the event once.
func (c *CompiledRule) Evaluate(event core.Event) bool {
	eval := evaluation{
		rule:  c,
		event: event,
		memo:  make(map[string]bool, len(c.order)),
	}
	return eval.node(c.ast.Root)
}

// EvaluateSelection reports whether a single named selection matches the
// event, independent of the condition expression. Unknown names report
// false; the compiler guarantees the condition only references known ones.
func (c *CompiledRule) EvaluateSelection(name string, event core.Event) bool {
	sel, ok := c.selections[name]
	if !ok {
		return false
	}
	return sel.match(event)
}

type evaluation struct {
	rule  *CompiledRule
	event core.Event
	memo  map[string]bool
}

func (e *evaluation) node(idx int) bool {
	n := &e.rule.ast.Nodes[idx]
	switch n.Kind {
	case NodeIdent:
		return e.selection(n.Ident)
	case NodeNot:
		return !e.node(n.Left)
	case NodeAnd:
		return e.node(n.Left) && e.node(n.Right)
	case NodeOr:
		return e.node(n.Left) || e.node(n.Right)
	case NodeCount:
		matched := 0
		for _, name := range n.Idents {
			if e.selection(name) {
				matched++
				if matched >= n.Count {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

func (e *evaluation) selection(name string) bool {
	if v, ok := e.memo[name]; ok {
		return v
	}
	v := e.rule.selections[name].match(e.event)
	e.memo[name] = v
	return v
}

// match is OR across entries, AND across the matchers within an entry.
func (s *compiledSelection) match(event core.Event) bool {
	for _, entry := range s.entries {
		all := true
		for _, m := range entry {
			if !m.match(event) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
