package rdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual_ComparesLiteralsByValue(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same plain literal", NewLiteral("a"), NewLiteral("a"), true},
		{"different language", NewLangLiteral("a", "en"), NewLangLiteral("a", "de"), false},
		{"iri vs literal", IRI("urn:a"), NewLiteral("urn:a"), false},
		{"same iri", IRI("urn:a"), IRI("urn:a"), true},
		{"bnode vs iri", BNode("a"), IRI("a"), false},
		{"both nil", nil, nil, true},
		{"one nil", IRI("urn:a"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestIRI_NamespaceAndLocalName(t *testing.T) {
	iri := IRI("http://example.org/ns#name")
	assert.Equal(t, "http://example.org/ns#", iri.Namespace())
	assert.Equal(t, "name", iri.LocalName())
}

func TestStatementSet_KeepsInsertionOrderAndContextIdentity(t *testing.T) {
	// Given: the same triple in two contexts
	s1 := NewStatement(IRI("urn:s"), IRI("urn:p"), NewLiteral("v"), nil)
	s2 := NewStatement(IRI("urn:s"), IRI("urn:p"), NewLiteral("v"), IRI("urn:g"))

	// When: both are added, one twice
	set := NewStatementSet(s2, s1)
	added := set.Add(s2)

	// Then: they are distinct members in insertion order
	assert.False(t, added)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []Statement{s2, s1}, set.Slice())

	assert.True(t, set.Remove(s2))
	assert.False(t, set.Contains(s2))
	assert.True(t, set.Contains(s1))
	assert.Equal(t, 1, set.Len())

	// Re-adding after removal appends at the end.
	set.Add(s2)
	assert.Equal(t, []Statement{s1, s2}, set.Slice())
}

func TestLiteral_String(t *testing.T) {
	assert.Equal(t, `"a"`, NewLiteral("a").String())
	assert.Equal(t, `"a"@en`, NewLangLiteral("a", "en").String())
	assert.Equal(t, `"1.5"^^<http://www.w3.org/2001/XMLSchema#double>`, NewDoubleLiteral(1.5).String())
}
