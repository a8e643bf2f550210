package interpret

import (
	"log/slog"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/search"
)

// relationTest is a filter conjunct testing a geo function's value.
type relationTest struct {
	call      *plan.FuncCall
	alias     string
	extension plan.NodeID
}

func (x *extraction) relationQueries() ([]*search.GeoRelationQuery, error) {
	var out []*search.GeoRelationQuery
	for _, filter := range x.filters() {
		for _, cond := range conjuncts(x.plan.Node(filter).Condition) {
			t, ok := x.relationTest(filter, cond)
			if !ok {
				continue
			}
			q, serr := x.relationQuery(filter, cond, t)
			if serr != nil {
				if err := x.failOrWarn(serr); err != nil {
					return nil, err
				}
				continue
			}
			if q != nil {
				x.claim(q.GeoPattern)
				out = append(out, q)
			}
		}
	}
	return out, nil
}

// relationTest matches f, ?alias, and either compared to true, where f is a
// two-argument geof call.
func (x *extraction) relationTest(filter plan.NodeID, cond plan.Expr) (relationTest, bool) {
	operand := cond
	if cmp, ok := cond.(*plan.Compare); ok {
		if cmp.Op != plan.OpEQ {
			return relationTest{}, false
		}
		switch {
		case isTrue(cmp.Right):
			operand = cmp.Left
		case isTrue(cmp.Left):
			operand = cmp.Right
		default:
			return relationTest{}, false
		}
	}

	t := relationTest{extension: plan.NoNode}
	switch e := operand.(type) {
	case *plan.FuncCall:
		t.call = e
	case *plan.VarRef:
		ext, expr := x.binding(filter, e.Name)
		call, ok := expr.(*plan.FuncCall)
		if !ok {
			return relationTest{}, false
		}
		t.call, t.alias, t.extension = call, e.Name, ext
	default:
		return relationTest{}, false
	}
	if t.call.URI.Namespace() != rdf.GeofNamespace || len(t.call.Args) != 2 {
		return relationTest{}, false
	}
	return t, true
}

func isTrue(e plan.Expr) bool {
	c, ok := e.(*plan.Constant)
	if !ok {
		return false
	}
	return rdf.Equal(c.Value, rdf.NewBooleanLiteral(true))
}

func (x *extraction) relationQuery(filter plan.NodeID, cond plan.Expr, t relationTest) (*search.GeoRelationQuery, *errors.SearchError) {
	rel, ok := search.RelationFor(t.call.URI)
	if !ok {
		x.Logger.Debug("geo_function_not_supported", slog.String("function", string(t.call.URI)))
		return nil, nil
	}
	if _, ok := t.call.Args[0].(*plan.Constant); !ok {
		return nil, nil
	}
	geoRef, ok := t.call.Args[1].(*plan.VarRef)
	if !ok {
		return nil, nil
	}
	patID, prop := x.geometryPattern(filter, geoRef.Name)
	if patID == plan.NoNode {
		return nil, nil
	}

	lit, shape, serr := x.wktShape(t.call.Args[0])
	if serr != nil {
		return nil, serr
	}

	pat := x.plan.Node(patID).Pattern
	return &search.GeoRelationQuery{
		Function:         t.call.URI,
		Relation:         rel,
		QueryGeometry:    lit,
		Shape:            shape,
		GeoProperty:      prop,
		SubjectVar:       pat.Subject.Name,
		GeoVar:           geoRef.Name,
		FunctionValueVar: t.alias,
		ContextVar:       x.contextVar(pat),
		GeoPattern:       patID,
		Filter:           filter,
		Condition:        cond,
		Extension:        t.extension,
	}, nil
}
