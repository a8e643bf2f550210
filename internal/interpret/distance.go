package interpret

import (
	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/search"
)

// distanceBound is a "distance < N" condition.
type distanceBound struct {
	call  *plan.FuncCall
	bound float64
	// alias is the BIND variable holding the distance, empty for a direct call.
	alias     string
	extension plan.NodeID
}

func (x *extraction) distanceQueries() ([]*search.DistanceQuery, error) {
	var out []*search.DistanceQuery
	for _, filter := range x.filters() {
		for _, cond := range conjuncts(x.plan.Node(filter).Condition) {
			b, ok := x.distanceBound(filter, cond)
			if !ok {
				continue
			}
			q, serr := x.distanceQuery(filter, cond, b)
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

// distanceBound matches "f < N" and "N > f" where f is a distance call or a
// variable bound to one.
func (x *extraction) distanceBound(filter plan.NodeID, cond plan.Expr) (distanceBound, bool) {
	cmp, ok := cond.(*plan.Compare)
	if !ok {
		return distanceBound{}, false
	}
	var operand, limit plan.Expr
	switch cmp.Op {
	case plan.OpLT:
		operand, limit = cmp.Left, cmp.Right
	case plan.OpGT:
		operand, limit = cmp.Right, cmp.Left
	default:
		return distanceBound{}, false
	}

	c, ok := limit.(*plan.Constant)
	if !ok {
		return distanceBound{}, false
	}
	lit, ok := c.Value.(*rdf.Literal)
	if !ok {
		return distanceBound{}, false
	}
	bound, err := lit.Float()
	if err != nil {
		return distanceBound{}, false
	}

	b := distanceBound{bound: bound, extension: plan.NoNode}
	switch e := operand.(type) {
	case *plan.FuncCall:
		b.call = e
	case *plan.VarRef:
		ext, expr := x.binding(filter, e.Name)
		call, ok := expr.(*plan.FuncCall)
		if !ok {
			return distanceBound{}, false
		}
		b.call, b.alias, b.extension = call, e.Name, ext
	default:
		return distanceBound{}, false
	}
	if b.call.URI != rdf.GeofDistance || len(b.call.Args) != 3 {
		return distanceBound{}, false
	}
	return b, true
}

// distanceQuery resolves the call arguments and the geometry pattern. A nil
// query without error means no indexed geometry pattern takes part.
func (x *extraction) distanceQuery(filter plan.NodeID, cond plan.Expr, b distanceBound) (*search.DistanceQuery, *errors.SearchError) {
	geoRef, ok := b.call.Args[1].(*plan.VarRef)
	if !ok {
		return nil, nil
	}
	patID, prop := x.geometryPattern(filter, geoRef.Name)
	if patID == plan.NoNode {
		return nil, nil
	}

	from, shape, serr := x.wktShape(b.call.Args[0])
	if serr != nil {
		return nil, serr
	}
	if !shape.IsPoint() {
		return nil, errors.New(errors.ErrCodeMalformedGeometry, "distance origin must be a point: "+from.Label, nil)
	}

	unitsConst, ok := b.call.Args[2].(*plan.Constant)
	if !ok {
		return nil, invalidGeo("distance units must be a constant IRI")
	}
	units, ok := unitsConst.Value.(rdf.IRI)
	if !ok {
		return nil, invalidGeo("distance units must be a constant IRI")
	}

	pat := x.plan.Node(patID).Pattern
	return &search.DistanceQuery{
		From:        from,
		Origin:      shape.Point(),
		Units:       units,
		Distance:    b.bound,
		GeoProperty: prop,
		SubjectVar:  pat.Subject.Name,
		GeoVar:      geoRef.Name,
		DistanceVar: b.alias,
		ContextVar:  x.contextVar(pat),
		GeoPattern:  patID,
		Filter:      filter,
		Condition:   cond,
		Extension:   b.extension,
	}, nil
}
