package interpret

import (
	"fmt"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/search"
)

// textPatterns groups statement patterns by the search predicate they use.
type textPatterns struct {
	matches, query, property, score, snippet, typ, indexID, boost []plan.NodeID
}

func (x *extraction) collectText() textPatterns {
	var tp textPatterns
	for _, id := range x.patterns() {
		pat := x.plan.Node(id).Pattern
		pred, ok := x.value(pat.Predicate).(rdf.IRI)
		if !ok {
			continue
		}
		switch pred {
		case rdf.SearchMatches:
			tp.matches = append(tp.matches, id)
		case rdf.SearchQuery:
			tp.query = append(tp.query, id)
		case rdf.SearchProperty:
			tp.property = append(tp.property, id)
		case rdf.SearchScore:
			tp.score = append(tp.score, id)
		case rdf.SearchSnippet:
			tp.snippet = append(tp.snippet, id)
		case rdf.SearchIndexID:
			tp.indexID = append(tp.indexID, id)
		case rdf.SearchBoost:
			tp.boost = append(tp.boost, id)
		case rdf.RDFType:
			if obj, ok := x.value(pat.Object).(rdf.IRI); ok && obj == rdf.SearchLuceneQuery {
				tp.typ = append(tp.typ, id)
			}
		}
	}
	return tp
}

// pattern returns the single pattern in candidates with subject v.
func (x *extraction) pattern(v *plan.Var, candidates []plan.NodeID) (plan.NodeID, *errors.SearchError) {
	found := plan.NoNode
	for _, id := range candidates {
		if !plan.SameVar(x.plan.Node(id).Pattern.Subject, v) {
			continue
		}
		if found != plan.NoNode {
			pred := x.value(x.plan.Node(id).Pattern.Predicate)
			return plan.NoNode, invalidText(fmt.Sprintf("multiple %s patterns found for %s", rdf.Key(pred), v))
		}
		found = id
	}
	return found, nil
}

// queryPatterns returns the query patterns attached to v. Either a single
// pattern with a literal object, or any number of field groups.
func (x *extraction) queryPatterns(v *plan.Var, candidates []plan.NodeID) ([]plan.NodeID, *errors.SearchError) {
	var out []plan.NodeID
	literals := 0
	for _, id := range candidates {
		pat := x.plan.Node(id).Pattern
		if !plan.SameVar(pat.Subject, v) {
			continue
		}
		if rdf.IsLiteral(x.value(pat.Object)) {
			literals++
		}
		out = append(out, id)
	}
	if literals > 0 && len(out) > 1 {
		return nil, invalidText("a literal query cannot be combined with other queries for " + v.String())
	}
	return out, nil
}

func (x *extraction) textQueries() ([]*search.TextQuery, error) {
	tp := x.collectText()
	var out []*search.TextQuery
	for _, matchesID := range tp.matches {
		q, serr := x.textQuery(tp, matchesID)
		if serr != nil {
			if err := x.failOrWarn(serr); err != nil {
				return nil, err
			}
			continue
		}
		if q != nil {
			out = append(out, q)
		}
	}
	return out, nil
}

// textQuery builds the search rooted at one matches pattern. A nil query with
// a nil error means the pattern is addressed to another index.
func (x *extraction) textQuery(tp textPatterns, matchesID plan.NodeID) (*search.TextQuery, *errors.SearchError) {
	mp := x.plan.Node(matchesID).Pattern

	q := &search.TextQuery{MatchesPattern: matchesID}
	switch subj := x.value(mp.Subject).(type) {
	case nil:
		q.MatchesVar = mp.Subject.Name
	case rdf.Resource:
		q.Subject = subj
	default:
		return nil, invalidText("the subject of " + string(rdf.SearchMatches) + " must be a resource or a variable")
	}

	queryVar := mp.Object
	if queryVar == nil || x.value(queryVar) != nil {
		return nil, invalidText("the object of " + string(rdf.SearchMatches) + " must be an unbound variable")
	}

	if x.IndexID != "" {
		idPattern, serr := x.pattern(queryVar, tp.indexID)
		if serr != nil {
			return nil, serr
		}
		if idPattern == plan.NoNode {
			return nil, nil
		}
		if id, ok := x.value(x.plan.Node(idPattern).Pattern.Object).(rdf.IRI); !ok || id != x.IndexID {
			return nil, nil
		}
		q.Patterns = append(q.Patterns, idPattern)
	} else if idPattern, serr := x.pattern(queryVar, tp.indexID); serr != nil {
		return nil, serr
	} else if idPattern != plan.NoNode {
		q.Patterns = append(q.Patterns, idPattern)
	}

	typePattern, serr := x.pattern(queryVar, tp.typ)
	if serr != nil {
		return nil, serr
	}
	if typePattern != plan.NoNode {
		q.Patterns = append(q.Patterns, typePattern)
	}

	queries, serr := x.queryPatterns(queryVar, tp.query)
	if serr != nil {
		return nil, serr
	}
	if len(queries) == 0 {
		return nil, invalidText("missing " + string(rdf.SearchQuery) + " for " + queryVar.String())
	}
	q.Patterns = append(q.Patterns, queries...)

	propertyPattern, serr := x.pattern(queryVar, tp.property)
	if serr != nil {
		return nil, serr
	}
	snippetPattern, serr := x.pattern(queryVar, tp.snippet)
	if serr != nil {
		return nil, serr
	}
	scorePattern, serr := x.pattern(queryVar, tp.score)
	if serr != nil {
		return nil, serr
	}

	if scorePattern != plan.NoNode {
		v := x.plan.Node(scorePattern).Pattern.Object
		if x.value(v) != nil {
			return nil, invalidText("the object of " + string(rdf.SearchScore) + " must be an unbound variable")
		}
		q.ScoreVar = v.Name
		q.Patterns = append(q.Patterns, scorePattern)
	}

	first := x.value(x.plan.Node(queries[0]).Pattern.Object)
	switch v := first.(type) {
	case *rdf.Literal:
		param := search.TextParam{Query: v.Label}
		if err := x.propertyOutput(propertyPattern, &param, q); err != nil {
			return nil, err
		}
		if err := x.snippetOutput(snippetPattern, &param, q); err != nil {
			return nil, err
		}
		q.Params = []search.TextParam{param}
	case nil:
		if propertyPattern != plan.NoNode {
			return nil, invalidText(string(rdf.SearchProperty) + " cannot be combined with field queries; set it per field")
		}
		if snippetPattern != plan.NoNode {
			return nil, invalidText(string(rdf.SearchSnippet) + " cannot be combined with field queries; set it per field")
		}
		for _, id := range queries {
			param, used, serr := x.fieldParam(tp, x.plan.Node(id).Pattern.Object)
			if serr != nil {
				if err := x.failOrWarn(serr); err != nil {
					return nil, serr
				}
				continue
			}
			q.Params = append(q.Params, param)
			q.Patterns = append(q.Patterns, used...)
		}
		if len(q.Params) == 0 {
			return nil, invalidText("no usable field query for " + queryVar.String())
		}
	default:
		return nil, invalidText("the object of " + string(rdf.SearchQuery) + " must be a literal or a field group")
	}
	return q, nil
}

// fieldParam reads one {query, property, boost, snippet} group.
func (x *extraction) fieldParam(tp textPatterns, group *plan.Var) (search.TextParam, []plan.NodeID, *errors.SearchError) {
	var param search.TextParam
	var used []plan.NodeID

	queryID, serr := x.pattern(group, tp.query)
	if serr != nil {
		return param, nil, serr
	}
	if queryID == plan.NoNode {
		return param, nil, invalidText("missing " + string(rdf.SearchQuery) + " in field group " + group.String())
	}
	lit, ok := x.value(x.plan.Node(queryID).Pattern.Object).(*rdf.Literal)
	if !ok {
		return param, nil, invalidText("field query of " + group.String() + " must be a literal")
	}
	param.Query = lit.Label
	used = append(used, queryID)

	boostID, serr := x.pattern(group, tp.boost)
	if serr != nil {
		return param, nil, serr
	}
	if boostID != plan.NoNode {
		b, ok := x.value(x.plan.Node(boostID).Pattern.Object).(*rdf.Literal)
		if !ok {
			return param, nil, invalidText("boost of " + group.String() + " must be a numeric literal")
		}
		f, err := b.Float()
		if err != nil {
			return param, nil, invalidText("boost of " + group.String() + " must be a numeric literal")
		}
		param.Boost = f
		used = append(used, boostID)
	}

	propertyID, serr := x.pattern(group, tp.property)
	if serr != nil {
		return param, nil, serr
	}
	snippetID, serr := x.pattern(group, tp.snippet)
	if serr != nil {
		return param, nil, serr
	}
	var sink search.TextQuery
	if serr := x.propertyOutput(propertyID, &param, &sink); serr != nil {
		return param, nil, serr
	}
	if serr := x.snippetOutput(snippetID, &param, &sink); serr != nil {
		return param, nil, serr
	}
	return param, append(used, sink.Patterns...), nil
}

// propertyOutput applies a property pattern: a constant predicate restricts
// the search, a variable receives the matched predicate.
func (x *extraction) propertyOutput(id plan.NodeID, param *search.TextParam, q *search.TextQuery) *errors.SearchError {
	if id == plan.NoNode {
		return nil
	}
	v := x.plan.Node(id).Pattern.Object
	switch val := x.value(v).(type) {
	case nil:
		param.PropertyVar = v.Name
	case rdf.IRI:
		param.Property = val
	default:
		return invalidText("the object of " + string(rdf.SearchProperty) + " must be an IRI or a variable")
	}
	q.Patterns = append(q.Patterns, id)
	return nil
}

func (x *extraction) snippetOutput(id plan.NodeID, param *search.TextParam, q *search.TextQuery) *errors.SearchError {
	if id == plan.NoNode {
		return nil
	}
	v := x.plan.Node(id).Pattern.Object
	if x.value(v) != nil {
		return invalidText("the object of " + string(rdf.SearchSnippet) + " must be an unbound variable")
	}
	param.SnippetVar = v.Name
	q.Patterns = append(q.Patterns, id)
	return nil
}
