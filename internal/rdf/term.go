// Package rdf provides the RDF term model shared by the store, the search
// index and the query plan.
package rdf

import (
	"strconv"
	"strings"
)

// Value is any RDF term: an IRI, a blank node or a literal.
type Value interface {
	// String returns the N-Triples style rendering of the term.
	String() string
	isValue()
}

// Resource is a Value that can appear in subject or context position.
type Resource interface {
	Value
	isResource()
}

// IRI is an absolute internationalized resource identifier.
type IRI string

func (i IRI) String() string { return string(i) }
func (IRI) isValue()          {}
func (IRI) isResource()       {}

// Namespace returns everything up to and including the last '#', '/' or ':'.
func (i IRI) Namespace() string {
	s := string(i)
	if idx := strings.LastIndexAny(s, "#/:"); idx >= 0 {
		return s[:idx+1]
	}
	return ""
}

// LocalName returns the part of the IRI after its namespace.
func (i IRI) LocalName() string {
	return string(i)[len(i.Namespace()):]
}

// BNode is a blank node identified by a store-local label.
type BNode string

func (b BNode) String() string { return "_:" + string(b) }
func (BNode) isValue()          {}
func (BNode) isResource()       {}

// Literal is a lexical value with an optional language tag or datatype.
// Language-tagged literals carry rdf:langString as datatype.
type Literal struct {
	Label    string
	Lang     string
	Datatype IRI
}

func (*Literal) isValue() {}

func (l *Literal) String() string {
	q := strconv.Quote(l.Label)
	switch {
	case l.Lang != "":
		return q + "@" + l.Lang
	case l.Datatype != "" && l.Datatype != XSDString:
		return q + "^^<" + string(l.Datatype) + ">"
	default:
		return q
	}
}

// NewLiteral returns a plain xsd:string literal.
func NewLiteral(label string) *Literal {
	return &Literal{Label: label, Datatype: XSDString}
}

// NewLangLiteral returns a language-tagged literal.
func NewLangLiteral(label, lang string) *Literal {
	return &Literal{Label: label, Lang: lang, Datatype: RDFLangString}
}

// NewTypedLiteral returns a literal with the given datatype.
func NewTypedLiteral(label string, datatype IRI) *Literal {
	if datatype == "" {
		datatype = XSDString
	}
	return &Literal{Label: label, Datatype: datatype}
}

// NewDoubleLiteral returns an xsd:double literal.
func NewDoubleLiteral(v float64) *Literal {
	return NewTypedLiteral(strconv.FormatFloat(v, 'g', -1, 64), XSDDouble)
}

// NewFloatLiteral returns an xsd:float literal.
func NewFloatLiteral(v float32) *Literal {
	return NewTypedLiteral(strconv.FormatFloat(float64(v), 'g', -1, 32), XSDFloat)
}

// NewBooleanLiteral returns an xsd:boolean literal.
func NewBooleanLiteral(v bool) *Literal {
	return NewTypedLiteral(strconv.FormatBool(v), XSDBoolean)
}

// NewWKTLiteral returns a geo:wktLiteral.
func NewWKTLiteral(wkt string) *Literal {
	return NewTypedLiteral(wkt, GeoWKTLiteral)
}

// Float parses the label as a floating point number.
func (l *Literal) Float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(l.Label), 64)
}

// Equal reports whether two values denote the same term.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	la, aok := a.(*Literal)
	lb, bok := b.(*Literal)
	if aok || bok {
		if !aok || !bok {
			return false
		}
		return *la == *lb
	}
	return a == b
}

// Key returns a string uniquely identifying the term, usable as a map key.
func Key(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case IRI:
		return "<" + string(t) + ">"
	case BNode:
		return t.String()
	case *Literal:
		if t.Lang != "" {
			return strconv.Quote(t.Label) + "@" + strings.ToLower(t.Lang)
		}
		return strconv.Quote(t.Label) + "^^<" + string(t.Datatype) + ">"
	default:
		return v.String()
	}
}

// IsLiteral reports whether v is a literal.
func IsLiteral(v Value) bool {
	_, ok := v.(*Literal)
	return ok
}

// AsResource returns v as a Resource when it is one.
func AsResource(v Value) (Resource, bool) {
	r, ok := v.(Resource)
	return r, ok
}
