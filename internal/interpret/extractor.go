// Package interpret recognizes search requests inside query plans.
//
// An Extractor walks a plan, turns magic-predicate patterns and GeoSPARQL
// filter functions into search.QuerySpec values and leaves the plan untouched.
// Callers excise each spec and splice the evaluated rows into its placeholder.
package interpret

import (
	"log/slog"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/geo"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/search"
)

// GeoFieldLookup reports whether a predicate is indexed as a geometry.
type GeoFieldLookup interface {
	IsGeoField(field string) bool
}

// Extractor builds query specs from plans.
type Extractor struct {
	// Strict turns malformed search patterns into errors instead of warnings.
	Strict bool
	// IndexID keeps only text searches addressed to this index. Empty accepts all.
	IndexID rdf.IRI
	// Geo limits geo extraction to indexed geometry predicates. Nil accepts all.
	Geo    GeoFieldLookup
	Parser geo.Parser
	Logger *slog.Logger
}

// Extract returns the specs found in p. External bindings resolve variables
// the plan leaves open. The plan is not modified.
func (e *Extractor) Extract(p *plan.Plan, bindings plan.BindingSet) ([]search.QuerySpec, error) {
	if p == nil || p.Root() == plan.NoNode {
		return nil, nil
	}
	x := &extraction{Extractor: e, plan: p, bindings: bindings}
	if x.Parser == nil {
		x.Parser = geo.WKTParser{}
	}
	if x.Logger == nil {
		x.Logger = slog.Default()
	}

	text, err := x.textQueries()
	if err != nil {
		return nil, err
	}
	dist, err := x.distanceQueries()
	if err != nil {
		return nil, err
	}
	rel, err := x.relationQueries()
	if err != nil {
		return nil, err
	}

	specs := make([]search.QuerySpec, 0, len(text)+len(dist)+len(rel))
	for _, s := range text {
		specs = append(specs, s)
	}
	for _, s := range dist {
		specs = append(specs, s)
	}
	for _, s := range rel {
		specs = append(specs, s)
	}
	return specs, nil
}

// extraction holds the state of one Extract call.
type extraction struct {
	*Extractor
	plan     *plan.Plan
	bindings plan.BindingSet

	// claimed geometry patterns, so one pattern feeds at most one geo spec.
	claimed map[plan.NodeID]bool
}

// value resolves v against its constant or the external bindings.
func (x *extraction) value(v *plan.Var) rdf.Value {
	if v == nil {
		return nil
	}
	if v.HasValue() {
		return v.Value
	}
	if x.bindings != nil {
		return x.bindings[v.Name]
	}
	return nil
}

// failOrWarn reports a malformed search. A nil return means the caller should
// drop the spec and carry on.
func (x *extraction) failOrWarn(err *errors.SearchError) error {
	if x.Strict {
		return err
	}
	x.Logger.Warn("search_pattern_ignored", errors.LogAttrs(err)...)
	return nil
}

func invalidText(msg string) *errors.SearchError {
	return errors.QueryError(msg)
}

func invalidGeo(msg string) *errors.SearchError {
	return errors.New(errors.ErrCodeInvalidQuery, "invalid geo query: "+msg, nil)
}

// patterns returns the attached statement patterns in pre-order.
func (x *extraction) patterns() []plan.NodeID {
	var out []plan.NodeID
	x.plan.Walk(func(id plan.NodeID, n *plan.Node) {
		if n.Kind == plan.KindPattern {
			out = append(out, id)
		}
	})
	return out
}

// filters returns the attached filter nodes in pre-order.
func (x *extraction) filters() []plan.NodeID {
	var out []plan.NodeID
	x.plan.Walk(func(id plan.NodeID, n *plan.Node) {
		if n.Kind == plan.KindFilter {
			out = append(out, id)
		}
	})
	return out
}

// conjuncts flattens nested And conditions.
func conjuncts(e plan.Expr) []plan.Expr {
	if and, ok := e.(*plan.And); ok {
		return append(conjuncts(and.Left), conjuncts(and.Right)...)
	}
	return []plan.Expr{e}
}

// binding finds the extension under filter that binds name.
func (x *extraction) binding(filter plan.NodeID, name string) (plan.NodeID, plan.Expr) {
	found, expr := plan.NoNode, plan.Expr(nil)
	x.plan.Walk(func(id plan.NodeID, n *plan.Node) {
		if found != plan.NoNode || n.Kind != plan.KindExtension || !x.plan.IsDescendant(id, filter) {
			return
		}
		for _, el := range n.Elems {
			if el.Name == name {
				found, expr = id, el.Expr
				return
			}
		}
	})
	return found, expr
}

// geometryPattern finds the unclaimed pattern under filter whose object is the
// unbound variable name and whose predicate is a bound geometry property.
func (x *extraction) geometryPattern(filter plan.NodeID, name string) (plan.NodeID, rdf.IRI) {
	for _, id := range x.patterns() {
		if x.claimed[id] || !x.plan.IsDescendant(id, filter) {
			continue
		}
		pat := x.plan.Node(id).Pattern
		if pat.Object == nil || pat.Object.HasValue() || pat.Object.Name != name {
			continue
		}
		if x.value(pat.Subject) != nil {
			continue
		}
		pred, ok := x.value(pat.Predicate).(rdf.IRI)
		if !ok {
			continue
		}
		if x.Geo != nil && !x.Geo.IsGeoField(string(pred)) {
			x.Logger.Debug("geo_property_not_indexed", slog.String("property", string(pred)))
			continue
		}
		return id, pred
	}
	return plan.NoNode, ""
}

func (x *extraction) claim(id plan.NodeID) {
	if x.claimed == nil {
		x.claimed = make(map[plan.NodeID]bool)
	}
	x.claimed[id] = true
}

// wktShape validates a literal geometry argument.
func (x *extraction) wktShape(e plan.Expr) (*rdf.Literal, geo.Shape, *errors.SearchError) {
	c, ok := e.(*plan.Constant)
	if !ok {
		return nil, geo.Shape{}, invalidGeo("geometry argument must be a literal")
	}
	lit, ok := c.Value.(*rdf.Literal)
	if !ok || lit.Datatype != rdf.GeoWKTLiteral {
		return nil, geo.Shape{}, errors.New(errors.ErrCodeMalformedGeometry,
			"geometry argument is not a "+string(rdf.GeoWKTLiteral), nil)
	}
	shape, err := x.Parser.Parse(lit.Label)
	if err != nil {
		return nil, geo.Shape{}, errors.New(errors.ErrCodeMalformedGeometry, err.Error(), err)
	}
	return lit, shape, nil
}

// contextVar copies the pattern's graph variable, resolving external bindings.
func (x *extraction) contextVar(pat *plan.Pattern) *plan.Var {
	if pat.Context == nil {
		return nil
	}
	cp := *pat.Context
	if !cp.HasValue() {
		cp.Value = x.value(pat.Context)
	}
	return &cp
}
