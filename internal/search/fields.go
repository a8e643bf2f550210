package search

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// Reserved document fields.
const (
	// URIField holds the resource id of a document.
	URIField = "uri"
	// ContextField holds the context id of a document.
	ContextField = "context"

	// NullContext is the context id of the default graph.
	NullContext = "null"

	// BNodePrefix marks blank node resource ids.
	BNodePrefix = "_:"

	idSeparator = '|'
	idEscape    = '\\'
)

// ResourceID returns the id under which a subject is indexed.
func ResourceID(r rdf.Resource) string {
	switch t := r.(type) {
	case rdf.BNode:
		return BNodePrefix + string(t)
	case rdf.IRI:
		return string(t)
	default:
		return r.String()
	}
}

// ContextID returns the id of a context; the default graph maps to NullContext.
func ContextID(c rdf.Resource) string {
	if c == nil {
		return NullContext
	}
	return ResourceID(c)
}

// ParseResource is the inverse of ResourceID.
func ParseResource(id string) rdf.Resource {
	if strings.HasPrefix(id, BNodePrefix) {
		return rdf.BNode(id[len(BNodePrefix):])
	}
	return rdf.IRI(id)
}

// ParseContext is the inverse of ContextID.
func ParseContext(id string) rdf.Resource {
	if id == NullContext || id == "" {
		return nil
	}
	return ParseResource(id)
}

// FormID joins a resource id and a context id into a document id. Separator and
// escape characters inside either part are escaped so the mapping is bijective.
func FormID(resourceID, contextID string) string {
	var b strings.Builder
	b.Grow(len(resourceID) + len(contextID) + 1)
	writeEscaped(&b, resourceID)
	b.WriteByte(idSeparator)
	writeEscaped(&b, contextID)
	return b.String()
}

func writeEscaped(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == idSeparator || c == idEscape {
			b.WriteByte(idEscape)
		}
		b.WriteByte(s[i])
	}
}

// ParseID splits a document id produced by FormID.
func ParseID(id string) (resourceID, contextID string, err error) {
	var cur strings.Builder
	sep := -1
	var parts [2]string
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c == idEscape:
			if i+1 >= len(id) {
				return "", "", fmt.Errorf("dangling escape in document id %q", id)
			}
			i++
			cur.WriteByte(id[i])
		case c == idSeparator:
			if sep >= 0 {
				return "", "", fmt.Errorf("unescaped separator in document id %q", id)
			}
			sep = i
			parts[0] = cur.String()
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if sep < 0 {
		return "", "", fmt.Errorf("missing separator in document id %q", id)
	}
	parts[1] = cur.String()
	return parts[0], parts[1], nil
}

// PropertyField returns the document field storing values of predicate.
func PropertyField(predicate rdf.IRI) string {
	return string(predicate)
}

// LiteralValue returns the indexed string of a statement's object, if it is a literal.
func LiteralValue(st rdf.Statement) (string, bool) {
	lit, ok := st.Object.(*rdf.Literal)
	if !ok || lit == nil {
		return "", false
	}
	return lit.Label, true
}

// ScoreLiteral renders a relevance score.
func ScoreLiteral(score float64) *rdf.Literal {
	return rdf.NewFloatLiteral(float32(score))
}

// DistanceLiteral renders a distance in the query's unit.
func DistanceLiteral(d float64) *rdf.Literal {
	return rdf.NewDoubleLiteral(d)
}

// WKTLiteral renders a stored geometry.
func WKTLiteral(wkt string) *rdf.Literal {
	return rdf.NewWKTLiteral(wkt)
}
