// Package plan models a relational-algebra query plan as an arena of nodes.
//
// Nodes are addressed by NodeID and link to their parent and children by id,
// so replacing a subtree only reassigns one slot in the parent.
package plan

import (
	"fmt"
	"strings"
)

// NodeID addresses a node inside a Plan.
type NodeID int

// NoNode is the null node id.
const NoNode NodeID = -1

// Kind identifies the operator a node represents.
type Kind int

const (
	// KindPattern is a statement pattern leaf.
	KindPattern Kind = iota
	// KindJoin is an inner join of all children.
	KindJoin
	// KindFilter keeps rows of its single child satisfying Condition.
	KindFilter
	// KindExtension adds computed bindings to its single child.
	KindExtension
	// KindProjection restricts its single child to Names.
	KindProjection
	// KindSingleton yields one empty row.
	KindSingleton
	// KindEmpty yields no rows.
	KindEmpty
	// KindBindings yields a fixed set of rows.
	KindBindings
)

var kindNames = [...]string{"Pattern", "Join", "Filter", "Extension", "Projection", "Singleton", "Empty", "Bindings"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Pattern is a quad pattern. A nil Context matches any graph.
type Pattern struct {
	Subject, Predicate, Object, Context *Var
}

// Node is one operator in the arena.
type Node struct {
	Kind      Kind
	Parent    NodeID
	Children  []NodeID
	Pattern   *Pattern
	Condition Expr
	Elems     []ExtensionElem
	Names     []string
	Bindings  *BindingSets
}

// Plan is an arena of nodes with a single root.
type Plan struct {
	nodes []Node
	root  NodeID
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{root: NoNode}
}

func (p *Plan) add(n Node, children ...NodeID) NodeID {
	id := NodeID(len(p.nodes))
	n.Parent = NoNode
	n.Children = append([]NodeID(nil), children...)
	p.nodes = append(p.nodes, n)
	for _, c := range children {
		p.nodes[c].Parent = id
	}
	p.root = id
	return id
}

// Root returns the root node id.
func (p *Plan) Root() NodeID { return p.root }

// SetRoot makes id the root.
func (p *Plan) SetRoot(id NodeID) {
	p.root = id
	if id != NoNode {
		p.nodes[id].Parent = NoNode
	}
}

// Node returns the node for id. The pointer stays valid until the next node is added.
func (p *Plan) Node(id NodeID) *Node { return &p.nodes[id] }

// Len returns the number of nodes ever allocated, attached or not.
func (p *Plan) Len() int { return len(p.nodes) }

// StatementPattern adds a pattern leaf.
func (p *Plan) StatementPattern(s, pred, o, c *Var) NodeID {
	return p.add(Node{Kind: KindPattern, Pattern: &Pattern{Subject: s, Predicate: pred, Object: o, Context: c}})
}

// Join adds a join over children.
func (p *Plan) Join(children ...NodeID) NodeID {
	return p.add(Node{Kind: KindJoin}, children...)
}

// Filter adds a filter over child.
func (p *Plan) Filter(child NodeID, cond Expr) NodeID {
	return p.add(Node{Kind: KindFilter, Condition: cond}, child)
}

// Extension adds BIND elements over child.
func (p *Plan) Extension(child NodeID, elems ...ExtensionElem) NodeID {
	return p.add(Node{Kind: KindExtension, Elems: elems}, child)
}

// Projection adds a projection over child.
func (p *Plan) Projection(child NodeID, names ...string) NodeID {
	return p.add(Node{Kind: KindProjection, Names: names}, child)
}

// Singleton adds a detached zero-column placeholder.
func (p *Plan) Singleton() NodeID {
	return p.detached(Node{Kind: KindSingleton})
}

// Empty adds a detached empty-result marker.
func (p *Plan) Empty() NodeID {
	return p.detached(Node{Kind: KindEmpty})
}

// BindingSetAssignment adds a detached node yielding rows.
func (p *Plan) BindingSetAssignment(rows *BindingSets) NodeID {
	return p.detached(Node{Kind: KindBindings, Bindings: rows})
}

func (p *Plan) detached(n Node) NodeID {
	root := p.root
	id := p.add(n)
	p.root = root
	return id
}

// Clone returns a deep copy sharing only immutable values.
func (p *Plan) Clone() *Plan {
	c := &Plan{nodes: make([]Node, len(p.nodes)), root: p.root}
	for i, n := range p.nodes {
		n.Children = append([]NodeID(nil), n.Children...)
		if n.Pattern != nil {
			pat := *n.Pattern
			pat.Subject = cloneVar(pat.Subject)
			pat.Predicate = cloneVar(pat.Predicate)
			pat.Object = cloneVar(pat.Object)
			pat.Context = cloneVar(pat.Context)
			n.Pattern = &pat
		}
		n.Elems = append([]ExtensionElem(nil), n.Elems...)
		n.Condition = cloneExpr(n.Condition)
		for j := range n.Elems {
			n.Elems[j].Expr = cloneExpr(n.Elems[j].Expr)
		}
		c.nodes[i] = n
	}
	return c
}

func cloneVar(v *Var) *Var {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneExpr(e Expr) Expr {
	switch t := e.(type) {
	case nil:
		return nil
	case *VarRef:
		cp := *t
		return &cp
	case *Constant:
		cp := *t
		return &cp
	case *FuncCall:
		args := make([]Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = cloneExpr(a)
		}
		return &FuncCall{URI: t.URI, Args: args}
	case *Compare:
		return &Compare{Op: t.Op, Left: cloneExpr(t.Left), Right: cloneExpr(t.Right)}
	case *And:
		return &And{Left: cloneExpr(t.Left), Right: cloneExpr(t.Right)}
	default:
		panic(fmt.Sprintf("plan: unknown expression %T", e))
	}
}

// Walk visits every node reachable from the root in pre-order.
func (p *Plan) Walk(fn func(id NodeID, n *Node)) {
	if p.root == NoNode {
		return
	}
	var visit func(id NodeID)
	visit = func(id NodeID) {
		fn(id, &p.nodes[id])
		for _, c := range p.nodes[id].Children {
			visit(c)
		}
	}
	visit(p.root)
}

// IsDescendant reports whether id lies in the subtree rooted at ancestor.
func (p *Plan) IsDescendant(id, ancestor NodeID) bool {
	for cur := id; cur != NoNode; cur = p.nodes[cur].Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Replace puts replacement into old's slot. old is left detached.
func (p *Plan) Replace(old, replacement NodeID) {
	parent := p.nodes[old].Parent
	p.nodes[old].Parent = NoNode
	if parent == NoNode {
		if p.root == old {
			p.SetRoot(replacement)
		}
		return
	}
	children := p.nodes[parent].Children
	for i, c := range children {
		if c == old {
			children[i] = replacement
			break
		}
	}
	p.nodes[replacement].Parent = parent
}

// ReplaceWithSingleton swaps id for a fresh placeholder and returns it.
func (p *Plan) ReplaceWithSingleton(id NodeID) NodeID {
	s := p.Singleton()
	p.Replace(id, s)
	return s
}

// splice replaces a unary node by its only child.
func (p *Plan) splice(id NodeID) {
	child := p.nodes[id].Children[0]
	p.nodes[id].Children = nil
	p.Replace(id, child)
}

// RemoveCondition removes target from the filter's condition. When the
// condition becomes vacuous the filter is spliced out of the plan.
func (p *Plan) RemoveCondition(filter NodeID, target Expr) bool {
	n := &p.nodes[filter]
	if n.Kind != KindFilter {
		return false
	}
	if n.Condition == target {
		p.splice(filter)
		return true
	}
	cond, ok := removeConjunct(n.Condition, target)
	if ok {
		n.Condition = cond
	}
	return ok
}

func removeConjunct(e, target Expr) (Expr, bool) {
	and, ok := e.(*And)
	if !ok {
		return e, false
	}
	if and.Left == target {
		return and.Right, true
	}
	if and.Right == target {
		return and.Left, true
	}
	if l, ok := removeConjunct(and.Left, target); ok {
		and.Left = l
		return and, true
	}
	if r, ok := removeConjunct(and.Right, target); ok {
		and.Right = r
		return and, true
	}
	return e, false
}

// RemoveExtensionElem drops the BIND of name. An extension left without
// elements is spliced out of the plan.
func (p *Plan) RemoveExtensionElem(ext NodeID, name string) bool {
	n := &p.nodes[ext]
	if n.Kind != KindExtension {
		return false
	}
	for i, el := range n.Elems {
		if el.Name == name {
			n.Elems = append(n.Elems[:i:i], n.Elems[i+1:]...)
			if len(n.Elems) == 0 {
				p.splice(ext)
			}
			return true
		}
	}
	return false
}

// ContainsCondition reports whether target occurs in e as e itself or a conjunct.
func ContainsCondition(e, target Expr) bool {
	if e == target {
		return true
	}
	if and, ok := e.(*And); ok {
		return ContainsCondition(and.Left, target) || ContainsCondition(and.Right, target)
	}
	return false
}

// String renders the attached tree, one node per line.
func (p *Plan) String() string {
	var sb strings.Builder
	if p.root == NoNode {
		return "<empty plan>"
	}
	var visit func(id NodeID, depth int)
	visit = func(id NodeID, depth int) {
		n := &p.nodes[id]
		sb.WriteString(strings.Repeat("   ", depth))
		sb.WriteString(n.Kind.String())
		switch n.Kind {
		case KindPattern:
			pat := n.Pattern
			fmt.Fprintf(&sb, " %s %s %s", pat.Subject, pat.Predicate, pat.Object)
			if pat.Context != nil {
				fmt.Fprintf(&sb, " %s", pat.Context)
			}
		case KindFilter:
			fmt.Fprintf(&sb, " %s", n.Condition)
		case KindExtension:
			for _, el := range n.Elems {
				fmt.Fprintf(&sb, " ?%s=%s", el.Name, el.Expr)
			}
		case KindProjection:
			fmt.Fprintf(&sb, " %v", n.Names)
		case KindBindings:
			fmt.Fprintf(&sb, " rows=%d", n.Bindings.Len())
		}
		sb.WriteByte('\n')
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(p.root, 0)
	return sb.String()
}
