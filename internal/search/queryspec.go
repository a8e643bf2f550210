package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Aman-CERP/rdfsearch/internal/geo"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// QuerySpec is a search request extracted from a query plan. The set of
// implementations is closed: TextQuery, DistanceQuery and GeoRelationQuery.
type QuerySpec interface {
	// Excise removes the matched patterns from p and returns the placeholder
	// that is later replaced by the search results.
	Excise(p *plan.Plan) plan.NodeID
	fmt.Stringer
	querySpec()
}

// TextParam is one query string of a text search together with its outputs.
type TextParam struct {
	Query string
	// Property restricts the query to one predicate; empty searches all fields.
	Property rdf.IRI
	Boost    float64

	// SnippetVar receives highlighted fragments.
	SnippetVar string
	// PropertyVar receives the predicate a fragment was found in. Only used
	// when Property is empty.
	PropertyVar string
}

// TextQuery is a full-text search.
type TextQuery struct {
	// MatchesVar is bound to matching resources; empty when Subject is a constant.
	MatchesVar string
	// Subject restricts the search to one resource.
	Subject  rdf.Resource
	Params   []TextParam
	ScoreVar string

	MatchesPattern plan.NodeID
	// Patterns holds every other pattern consumed by the search.
	Patterns []plan.NodeID
}

func (*TextQuery) querySpec() {}

// Highlight reports whether any output needs snippets.
func (q *TextQuery) Highlight() bool {
	for _, p := range q.Params {
		if p.SnippetVar != "" || p.PropertyVar != "" {
			return true
		}
	}
	return false
}

// Excise replaces every search pattern with a placeholder. The matches
// pattern's placeholder is returned.
func (q *TextQuery) Excise(p *plan.Plan) plan.NodeID {
	for _, id := range q.Patterns {
		replaceIfAttached(p, id)
	}
	return p.ReplaceWithSingleton(q.MatchesPattern)
}

func (q *TextQuery) String() string {
	queries := make([]string, len(q.Params))
	for i, p := range q.Params {
		queries[i] = strconv.Quote(p.Query)
		if p.Property != "" {
			queries[i] += " in " + string(p.Property)
		}
	}
	target := "?" + q.MatchesVar
	if q.Subject != nil {
		target = q.Subject.String()
	}
	return fmt.Sprintf("TextQuery{%s matches %s}", target, strings.Join(queries, ", "))
}

// DistanceQuery finds geometries within a distance of a point.
type DistanceQuery struct {
	From   *rdf.Literal
	Origin geo.Point
	Units  rdf.IRI
	// Distance is the exclusive bound expressed in Units.
	Distance    float64
	GeoProperty rdf.IRI

	SubjectVar  string
	GeoVar      string
	DistanceVar string
	ContextVar  *plan.Var

	GeoPattern plan.NodeID
	Filter     plan.NodeID
	Condition  plan.Expr
	// Extension is the node binding DistanceVar, NoNode for a direct comparison.
	Extension plan.NodeID
}

func (*DistanceQuery) querySpec() {}

// Excise implements QuerySpec.
func (q *DistanceQuery) Excise(p *plan.Plan) plan.NodeID {
	exciseGeo(p, q.Filter, q.Condition, q.Extension, q.DistanceVar)
	return p.ReplaceWithSingleton(q.GeoPattern)
}

func (q *DistanceQuery) String() string {
	return fmt.Sprintf("DistanceQuery{%s within %g%s of %s}", q.GeoProperty, q.Distance, geo.UnitSymbol(q.Units), q.From.Label)
}

// GeoRelationQuery tests a spatial relation between a literal geometry and
// indexed geometries.
type GeoRelationQuery struct {
	Function      rdf.IRI
	Relation      Relation
	QueryGeometry *rdf.Literal
	Shape         geo.Shape
	GeoProperty   rdf.IRI

	SubjectVar       string
	GeoVar           string
	FunctionValueVar string
	ContextVar       *plan.Var

	GeoPattern plan.NodeID
	Filter     plan.NodeID
	Condition  plan.Expr
	Extension  plan.NodeID
}

func (*GeoRelationQuery) querySpec() {}

// Excise implements QuerySpec.
func (q *GeoRelationQuery) Excise(p *plan.Plan) plan.NodeID {
	exciseGeo(p, q.Filter, q.Condition, q.Extension, q.FunctionValueVar)
	return p.ReplaceWithSingleton(q.GeoPattern)
}

func (q *GeoRelationQuery) String() string {
	return fmt.Sprintf("GeoRelationQuery{%s %s %s}", q.GeoProperty, q.Function.LocalName(), q.QueryGeometry.Label)
}

func exciseGeo(p *plan.Plan, filter plan.NodeID, cond plan.Expr, ext plan.NodeID, bindName string) {
	if filter != plan.NoNode && cond != nil {
		p.RemoveCondition(filter, cond)
	}
	if ext != plan.NoNode && bindName != "" {
		p.RemoveExtensionElem(ext, bindName)
	}
}

func replaceIfAttached(p *plan.Plan, id plan.NodeID) {
	if id == plan.NoNode {
		return
	}
	if n := p.Node(id); n.Kind == plan.KindPattern && (n.Parent != plan.NoNode || p.Root() == id) {
		p.ReplaceWithSingleton(id)
	}
}

// RelationFor maps a GeoSPARQL function whose first argument is the query
// geometry onto the engine relation it implies for indexed geometries.
func RelationFor(fn rdf.IRI) (Relation, bool) {
	switch fn {
	case rdf.GeofSfIntersects:
		return RelationIntersects, true
	case rdf.GeofSfWithin, rdf.GeofEhCoveredBy:
		return RelationContains, true
	case rdf.GeofSfContains, rdf.GeofEhCovers:
		return RelationWithin, true
	default:
		return "", false
	}
}
