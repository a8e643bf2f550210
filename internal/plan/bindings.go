package plan

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// BindingSet is one solution row.
type BindingSet map[string]rdf.Value

// Clone returns a shallow copy.
func (b BindingSet) Clone() BindingSet {
	out := make(BindingSet, len(b)+2)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Key renders the row canonically so equal rows produce equal keys.
func (b BindingSet) Key() string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(rdf.Key(b[n]))
		sb.WriteByte(';')
	}
	return sb.String()
}

// Compatible reports whether the rows agree on every shared variable.
func (b BindingSet) Compatible(o BindingSet) bool {
	for k, v := range b {
		if w, ok := o[k]; ok && !rdf.Equal(v, w) {
			return false
		}
	}
	return true
}

// Merge returns the union of two compatible rows.
func (b BindingSet) Merge(o BindingSet) BindingSet {
	out := b.Clone()
	for k, v := range o {
		out[k] = v
	}
	return out
}

// BindingSets is an insertion-ordered, duplicate-free collection of rows.
type BindingSets struct {
	Names []string
	Rows  []BindingSet
	seen  map[string]struct{}
}

// NewBindingSets returns an empty collection declaring the given names.
func NewBindingSets(names ...string) *BindingSets {
	return &BindingSets{Names: names, seen: make(map[string]struct{})}
}

// Add appends row unless an equal row is already present.
func (s *BindingSets) Add(row BindingSet) bool {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	k := row.Key()
	if _, dup := s.seen[k]; dup {
		return false
	}
	s.seen[k] = struct{}{}
	s.Rows = append(s.Rows, row)
	return true
}

// Len returns the row count.
func (s *BindingSets) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}
