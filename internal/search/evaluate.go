package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/geo"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// Evaluate runs spec against the current snapshot.
func (idx *DocumentIndex) Evaluate(ctx context.Context, spec QuerySpec) (*plan.BindingSets, error) {
	m, err := idx.Acquire()
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.EndReading() }()
	return idx.EvaluateWith(ctx, m, spec)
}

// EvaluateWith runs spec against the snapshot of a monitor the caller is reading from.
// It panics on a QuerySpec implementation it does not know.
func (idx *DocumentIndex) EvaluateWith(ctx context.Context, m *ReaderMonitor, spec QuerySpec) (*plan.BindingSets, error) {
	start := time.Now()
	var (
		kind string
		rows *plan.BindingSets
		err  error
	)
	switch q := spec.(type) {
	case *TextQuery:
		kind = "text"
		rows, err = idx.evaluateText(ctx, m.Snapshot(), q)
	case *DistanceQuery:
		kind = "distance"
		rows, err = idx.evaluateDistance(ctx, m.Snapshot(), q)
	case *GeoRelationQuery:
		kind = "relation"
		rows, err = idx.evaluateRelation(ctx, m.Snapshot(), q)
	default:
		panic(fmt.Sprintf("search: unsupported query spec %T", spec))
	}
	idx.metrics.RecordQuery(kind, time.Since(start), rows.Len(), err)
	if err != nil {
		idx.logger.Error("search_failed",
			slog.String("query", spec.String()),
			slog.String("error", err.Error()))
		return nil, errors.New(errors.ErrCodeSearchFailed, "failed to evaluate "+spec.String(), err)
	}
	return rows, nil
}

func (idx *DocumentIndex) evaluateText(ctx context.Context, snap Snapshot, q *TextQuery) (*plan.BindingSets, error) {
	var names []string
	if q.MatchesVar != "" {
		names = append(names, q.MatchesVar)
	}
	if q.ScoreVar != "" {
		names = append(names, q.ScoreVar)
	}
	for _, p := range q.Params {
		if p.SnippetVar != "" {
			names = append(names, p.SnippetVar)
		}
		if p.PropertyVar != "" && p.Property == "" {
			names = append(names, p.PropertyVar)
		}
	}
	out := plan.NewBindingSets(names...)

	req := TextRequest{Highlight: q.Highlight(), Limit: idx.maxDocs}
	for _, p := range q.Params {
		if p.Query == "" {
			continue
		}
		clause := TextClause{Query: p.Query, Boost: p.Boost}
		if p.Property != "" {
			clause.Field = PropertyField(p.Property)
		}
		req.Clauses = append(req.Clauses, clause)
	}
	if len(req.Clauses) == 0 {
		return out, nil
	}
	if q.Subject != nil {
		req.ResourceID = ResourceID(q.Subject)
	}

	hits, err := snap.SearchText(ctx, req)
	if err != nil {
		return nil, err
	}

	degraded := false
	for _, hit := range hits {
		if hit.Doc == nil {
			continue
		}
		derived := plan.BindingSet{}
		if q.MatchesVar != "" {
			derived[q.MatchesVar] = ParseResource(hit.Doc.ResourceID())
		}
		if q.ScoreVar != "" && hit.Score > 0 {
			derived[q.ScoreVar] = ScoreLiteral(hit.Score)
		}

		if !req.Highlight {
			out.Add(derived)
			continue
		}
		if !hit.Highlighted() {
			// Keep the hit without snippets; an empty fragment list is handled below.
			degraded = true
			out.Add(derived)
			continue
		}
		for _, p := range q.Params {
			if p.SnippetVar == "" && p.PropertyVar == "" {
				continue
			}
			fields := hit.Doc.PropertyNames()
			if p.Property != "" {
				fields = []string{PropertyField(p.Property)}
			}
			for _, field := range fields {
				snippets := hit.Snippets(field)
				if snippets == nil {
					continue
				}
				for _, s := range snippets {
					if s == "" {
						continue
					}
					row := derived.Clone()
					if p.SnippetVar != "" {
						row[p.SnippetVar] = rdf.NewLiteral(s)
					}
					if p.PropertyVar != "" && p.Property == "" {
						row[p.PropertyVar] = rdf.IRI(field)
					}
					out.Add(row)
				}
			}
		}
	}
	if degraded {
		idx.metrics.RecordDegraded("text")
		idx.logger.Warn("snippets_unavailable",
			slog.String("query", q.String()),
			slog.String("reason", "query requests snippets but no highlighting was produced"))
	}
	return out, nil
}

func (idx *DocumentIndex) evaluateDistance(ctx context.Context, snap Snapshot, q *DistanceQuery) (*plan.BindingSets, error) {
	names := geoBindingNames(q.SubjectVar, q.GeoVar, q.DistanceVar, q.ContextVar)
	out := plan.NewBindingSets(names...)

	radius, err := geo.ToMetres(q.Distance, q.Units)
	if err != nil {
		return nil, err
	}
	field := PropertyField(q.GeoProperty)
	hits, err := snap.SearchDistance(ctx, DistanceRequest{
		Field:        field,
		Origin:       q.Origin,
		RadiusMetres: radius,
		ContextID:    boundContextID(q.ContextVar),
		Limit:        idx.maxDocs,
	})
	if err != nil {
		return nil, err
	}

	for _, hit := range hits {
		if hit.Doc == nil {
			continue
		}
		for _, wkt := range hit.Doc.Property(field) {
			shape, err := idx.parser.Parse(wkt)
			if err != nil {
				idx.logger.Debug("stored_geometry_unparseable",
					slog.String("document", hit.Doc.ID()),
					slog.String("error", err.Error()))
				continue
			}
			// The engine may over-include shapes near the search disc.
			d, _ := geo.FromMetres(geo.MinDistanceMetres(q.Origin, shape), q.Units)
			if d >= q.Distance {
				continue
			}
			row := geoRow(hit.Doc, q.SubjectVar, q.GeoVar, q.ContextVar, wkt)
			if q.DistanceVar != "" {
				row[q.DistanceVar] = DistanceLiteral(d)
			}
			out.Add(row)
		}
	}
	return out, nil
}

func (idx *DocumentIndex) evaluateRelation(ctx context.Context, snap Snapshot, q *GeoRelationQuery) (*plan.BindingSets, error) {
	names := geoBindingNames(q.SubjectVar, q.GeoVar, q.FunctionValueVar, q.ContextVar)
	out := plan.NewBindingSets(names...)

	field := PropertyField(q.GeoProperty)
	hits, err := snap.SearchRelation(ctx, RelationRequest{
		Field:     field,
		Relation:  q.Relation,
		Shape:     q.Shape,
		ContextID: boundContextID(q.ContextVar),
		Limit:     idx.maxDocs,
	})
	if err != nil {
		return nil, err
	}

	for _, hit := range hits {
		if hit.Doc == nil {
			continue
		}
		for _, wkt := range hit.Doc.Property(field) {
			row := geoRow(hit.Doc, q.SubjectVar, q.GeoVar, q.ContextVar, wkt)
			if q.FunctionValueVar != "" {
				row[q.FunctionValueVar] = rdf.NewBooleanLiteral(true)
			}
			out.Add(row)
		}
	}
	return out, nil
}

func geoBindingNames(subjectVar, geoVar, valueVar string, contextVar *plan.Var) []string {
	var names []string
	for _, n := range []string{subjectVar, geoVar, valueVar} {
		if n != "" {
			names = append(names, n)
		}
	}
	if contextVar != nil && !contextVar.HasValue() {
		names = append(names, contextVar.Name)
	}
	return names
}

func geoRow(doc *Document, subjectVar, geoVar string, contextVar *plan.Var, wkt string) plan.BindingSet {
	row := plan.BindingSet{}
	if subjectVar != "" {
		row[subjectVar] = ParseResource(doc.ResourceID())
	}
	if contextVar != nil && !contextVar.HasValue() {
		if c := ParseContext(doc.ContextID()); c != nil {
			row[contextVar.Name] = c
		}
	}
	if geoVar != "" {
		row[geoVar] = WKTLiteral(wkt)
	}
	return row
}

func boundContextID(v *plan.Var) string {
	if v == nil || !v.HasValue() {
		return ""
	}
	if r, ok := v.Value.(rdf.Resource); ok {
		return ContextID(r)
	}
	return ""
}
