package plan

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// Var is a query variable, optionally bound to a constant.
type Var struct {
	Name  string
	Value rdf.Value
}

// HasValue reports whether the variable is a constant.
func (v *Var) HasValue() bool { return v != nil && v.Value != nil }

// NewVar returns an unbound variable.
func NewVar(name string) *Var { return &Var{Name: name} }

// Const returns a variable bound to value. The name is derived from the value
// so that equal constants compare equal.
func Const(value rdf.Value) *Var {
	return &Var{Name: "_const_" + rdf.Key(value), Value: value}
}

func (v *Var) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.HasValue() {
		return rdf.Key(v.Value)
	}
	return "?" + v.Name
}

// SameVar reports whether a and b refer to the same variable.
func SameVar(a, b *Var) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Name == b.Name && rdf.Equal(a.Value, b.Value)
}

// Expr is a value expression used by Filter conditions and Extension elements.
type Expr interface {
	fmt.Stringer
	expr()
}

// VarRef refers to a variable by name.
type VarRef struct {
	Name string
}

// Constant is a literal value inside an expression.
type Constant struct {
	Value rdf.Value
}

// FuncCall invokes a function identified by IRI.
type FuncCall struct {
	URI  rdf.IRI
	Args []Expr
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpEQ CompareOp = "="
	OpNE CompareOp = "!="
)

// Compare applies Op to two operands.
type Compare struct {
	Op          CompareOp
	Left, Right Expr
}

// And is a conjunction of two conditions.
type And struct {
	Left, Right Expr
}

func (*VarRef) expr()   {}
func (*Constant) expr() {}
func (*FuncCall) expr() {}
func (*Compare) expr()  {}
func (*And) expr()      {}

func (e *VarRef) String() string   { return "?" + e.Name }
func (e *Constant) String() string { return rdf.Key(e.Value) }

func (e *FuncCall) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return "<" + string(e.URI) + ">(" + strings.Join(args, ", ") + ")"
}

func (e *Compare) String() string {
	return "(" + e.Left.String() + " " + string(e.Op) + " " + e.Right.String() + ")"
}

func (e *And) String() string {
	return "(" + e.Left.String() + " && " + e.Right.String() + ")"
}

// Call builds a function call expression.
func Call(uri rdf.IRI, args ...Expr) *FuncCall {
	return &FuncCall{URI: uri, Args: args}
}

// Ref builds a variable reference.
func Ref(name string) *VarRef { return &VarRef{Name: name} }

// Lit builds a constant expression.
func Lit(v rdf.Value) *Constant { return &Constant{Value: v} }

// ExtensionElem binds the value of Expr to Name (SPARQL BIND).
type ExtensionElem struct {
	Name string
	Expr Expr
}
