package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// ErrUnsupported is returned by Materialize for operators it cannot run.
var ErrUnsupported = errors.New("unsupported plan operator")

// Source answers statement pattern lookups. A nil subject, predicate or
// object is a wildcard; no contexts means any graph, a nil context the default graph.
type Source interface {
	Statements(ctx context.Context, subj rdf.Resource, pred rdf.IRI, obj rdf.Value, contexts ...rdf.Resource) ([]rdf.Statement, error)
}

// Materialize evaluates a rewritten plan that contains only patterns, joins,
// projections and materialized rows. It is a nested-loop evaluator intended
// for search-driven queries, not a general SPARQL engine.
func Materialize(ctx context.Context, p *Plan, src Source) (*BindingSets, error) {
	if p.Root() == NoNode {
		return NewBindingSets(), nil
	}
	rows, err := eval(ctx, p, p.Root(), []BindingSet{{}}, src)
	if err != nil {
		return nil, err
	}
	var names []string
	if n := p.Node(p.Root()); n.Kind == KindProjection {
		names = n.Names
	}
	out := NewBindingSets(names...)
	for _, r := range rows {
		out.Add(r)
	}
	return out, nil
}

func eval(ctx context.Context, p *Plan, id NodeID, input []BindingSet, src Source) ([]BindingSet, error) {
	n := p.Node(id)
	switch n.Kind {
	case KindSingleton:
		return input, nil
	case KindEmpty:
		return nil, nil
	case KindBindings:
		var out []BindingSet
		for _, in := range input {
			for _, r := range n.Bindings.Rows {
				if in.Compatible(r) {
					out = append(out, in.Merge(r))
				}
			}
		}
		return out, nil
	case KindJoin:
		rows := input
		for _, c := range n.Children {
			var err error
			if rows, err = eval(ctx, p, c, rows, src); err != nil {
				return nil, err
			}
		}
		return rows, nil
	case KindProjection:
		rows, err := eval(ctx, p, n.Children[0], input, src)
		if err != nil {
			return nil, err
		}
		out := make([]BindingSet, 0, len(rows))
		for _, r := range rows {
			proj := make(BindingSet, len(n.Names))
			for _, name := range n.Names {
				if v, ok := r[name]; ok {
					proj[name] = v
				}
			}
			out = append(out, proj)
		}
		return out, nil
	case KindPattern:
		if src == nil {
			return nil, fmt.Errorf("%w: pattern without source", ErrUnsupported)
		}
		return evalPattern(ctx, n.Pattern, input, src)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, n.Kind)
	}
}

func evalPattern(ctx context.Context, pat *Pattern, input []BindingSet, src Source) ([]BindingSet, error) {
	var out []BindingSet
	for _, in := range input {
		s := resolve(pat.Subject, in)
		pr := resolve(pat.Predicate, in)
		o := resolve(pat.Object, in)
		var subj rdf.Resource
		if s != nil {
			r, ok := s.(rdf.Resource)
			if !ok {
				continue
			}
			subj = r
		}
		var pred rdf.IRI
		if pr != nil {
			iri, ok := pr.(rdf.IRI)
			if !ok {
				continue
			}
			pred = iri
		}
		var contexts []rdf.Resource
		if pat.Context != nil {
			if c := resolve(pat.Context, in); c != nil {
				r, ok := c.(rdf.Resource)
				if !ok {
					continue
				}
				contexts = []rdf.Resource{r}
			}
		}
		stmts, err := src.Statements(ctx, subj, pred, o, contexts...)
		if err != nil {
			return nil, err
		}
		for _, st := range stmts {
			row := in.Clone()
			if bind(row, pat.Subject, st.Subject) && bind(row, pat.Predicate, st.Predicate) &&
				bind(row, pat.Object, st.Object) && (pat.Context == nil || st.Context == nil || bind(row, pat.Context, st.Context)) {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func resolve(v *Var, row BindingSet) rdf.Value {
	if v == nil {
		return nil
	}
	if v.HasValue() {
		return v.Value
	}
	return row[v.Name]
}

func bind(row BindingSet, v *Var, value rdf.Value) bool {
	if v == nil || v.HasValue() {
		return true
	}
	if cur, ok := row[v.Name]; ok {
		return rdf.Equal(cur, value)
	}
	row[v.Name] = value
	return true
}
