package rdf

import "strings"

// Statement is a quad. A nil Context denotes the default graph.
type Statement struct {
	Subject   Resource
	Predicate IRI
	Object    Value
	Context   Resource
}

// NewStatement builds a statement in the given context.
func NewStatement(s Resource, p IRI, o Value, c Resource) Statement {
	return Statement{Subject: s, Predicate: p, Object: o, Context: c}
}

// Key identifies the statement including its context.
func (s Statement) Key() string {
	var b strings.Builder
	b.WriteString(Key(s.Subject))
	b.WriteByte(' ')
	b.WriteString(Key(s.Predicate))
	b.WriteByte(' ')
	b.WriteString(Key(s.Object))
	b.WriteByte(' ')
	b.WriteString(Key(s.Context))
	return b.String()
}

func (s Statement) String() string {
	str := Key(s.Subject) + " " + Key(s.Predicate) + " " + Key(s.Object)
	if s.Context != nil {
		str += " " + Key(s.Context)
	}
	return str + " ."
}

// StatementSet is an insertion-ordered set of statements keyed by Statement.Key.
type StatementSet struct {
	index map[string]int
	items []Statement
	live  []bool
	size  int
}

// NewStatementSet returns a set holding the given statements.
func NewStatementSet(stmts ...Statement) *StatementSet {
	s := &StatementSet{index: make(map[string]int)}
	for _, st := range stmts {
		s.Add(st)
	}
	return s
}

// Add inserts st and reports whether it was absent.
func (s *StatementSet) Add(st Statement) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	k := st.Key()
	if i, ok := s.index[k]; ok && s.live[i] {
		return false
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, st)
	s.live = append(s.live, true)
	s.size++
	return true
}

// Remove deletes st and reports whether it was present.
func (s *StatementSet) Remove(st Statement) bool {
	if s == nil || s.index == nil {
		return false
	}
	k := st.Key()
	i, ok := s.index[k]
	if !ok || !s.live[i] {
		return false
	}
	s.live[i] = false
	delete(s.index, k)
	s.size--
	return true
}

// Contains reports whether st is a member.
func (s *StatementSet) Contains(st Statement) bool {
	if s == nil || s.index == nil {
		return false
	}
	i, ok := s.index[st.Key()]
	return ok && s.live[i]
}

// Len returns the number of members.
func (s *StatementSet) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

// Slice returns the members in insertion order.
func (s *StatementSet) Slice() []Statement {
	if s == nil {
		return nil
	}
	out := make([]Statement, 0, s.size)
	for i, st := range s.items {
		if s.live[i] {
			out = append(out, st)
		}
	}
	return out
}
