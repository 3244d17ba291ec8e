package detect

// NodeKind discriminates the variants of a condition AST node.
type NodeKind uint8

const (
	// NodeIdent references one resolved selection by name.
	NodeIdent NodeKind = iota
	// NodeNot negates its Left child.
	NodeNot
	// NodeAnd is a short-circuiting conjunction of Left and Right.
	NodeAnd
	// NodeOr is a short-circuiting disjunction of Left and Right.
	NodeOr
	// NodeCount is a quantified clause requiring at least Count of its
	// resolved identifiers to evaluate true. "all of" and "1 of" clauses
	// are lowered to AND/OR chains at compile time, so only counted
	// quantifiers survive as dedicated nodes.
	NodeCount
)

// String returns the node kind name for diagnostics.
func (k NodeKind) String() string {
	switch k {
	case NodeIdent:
		return "identifier"
	case NodeNot:
		return "not"
	case NodeAnd:
		return "and"
	case NodeOr:
		return "or"
	case NodeCount:
		return "count"
	default:
		return "unknown"
	}
}

// Node is one slot in the AST arena. Which fields are meaningful depends on
// Kind: Ident for NodeIdent; Left for NodeNot; Left and Right for NodeAnd
// and NodeOr; Idents and Count for NodeCount. Children are addressed by
// arena index rather than pointer, so a compiled tree is trivially immutable
// and safe to share across worker goroutines.
type Node struct {
	Kind  NodeKind
	Ident string
	Left  int
	Right int

	// Idents are the selection names a quantifier pattern resolved to.
	Idents []string
	// Count is the quantifier threshold. A count larger than len(Idents)
	// is legal and simply never evaluates true.
	Count int
}

// AST is an immutable arena-backed condition tree. Root indexes Nodes.
type AST struct {
	Nodes []Node
	Root  int
}

// add appends a node and returns its arena index.
func (a *AST) add(n Node) int {
	a.Nodes = append(a.Nodes, n)
	return len(a.Nodes) - 1
}

// Depth returns the height of the tree, used in complexity diagnostics.
func (a *AST) Depth() int {
	if len(a.Nodes) == 0 {
		return 0
	}
	return a.depth(a.Root)
}

func (a *AST) depth(idx int) int {
	node := a.Nodes[idx]
	switch node.Kind {
	case NodeNot:
		return 1 + a.depth(node.Left)
	case NodeAnd, NodeOr:
		l := a.depth(node.Left)
		r := a.depth(node.Right)
		if r > l {
			l = r
		}
		return 1 + l
	default:
		return 1
	}
}

// QuantifierDepth returns the deepest nesting level at which a counted
// quantifier occurs, or zero when the condition has none.
func (a *AST) QuantifierDepth() int {
	if len(a.Nodes) == 0 {
		return 0
	}
	return a.quantDepth(a.Root, 1)
}

func (a *AST) quantDepth(idx, level int) int {
	node := a.Nodes[idx]
	switch node.Kind {
	case NodeCount:
		return level
	case NodeNot:
		return a.quantDepth(node.Left, level+1)
	case NodeAnd, NodeOr:
		l := a.quantDepth(node.Left, level+1)
		r := a.quantDepth(node.Right, level+1)
		if r > l {
			l = r
		}
		return l
	default:
		return 0
	}
}
