package search

import (
	"context"

	"github.com/Aman-CERP/rdfsearch/internal/geo"
)

// Engine is the document store backing a DocumentIndex.
type Engine interface {
	// Snapshot pins the committed state for reading.
	Snapshot() (Snapshot, error)

	// Apply writes the mutations atomically.
	Apply(ctx context.Context, muts []Mutation) error

	// DocumentIDs returns the ids of committed documents, restricted to one
	// context when contextID is non-empty.
	DocumentIDs(ctx context.Context, contextID string) ([]string, error)

	// DocCount returns the number of committed documents.
	DocCount() (uint64, error)

	Close() error
}

// Snapshot is a pinned, read-only view of the engine.
type Snapshot interface {
	// Document returns the stored document or nil when absent.
	Document(id string) (*Document, error)

	SearchText(ctx context.Context, req TextRequest) ([]Hit, error)
	SearchDistance(ctx context.Context, req DistanceRequest) ([]Hit, error)
	SearchRelation(ctx context.Context, req RelationRequest) ([]Hit, error)

	Close() error
}

// Mutation is one write in an engine batch.
type Mutation struct {
	ID     string
	Doc    *Document
	Delete bool
}

// TextClause is one query string, optionally scoped to a field.
type TextClause struct {
	Query string
	Field string
	Boost float64
}

// TextRequest is a full-text search.
type TextRequest struct {
	Clauses []TextClause
	// ResourceID restricts hits to one resource when set.
	ResourceID string
	Highlight  bool
	Limit      int
}

// DistanceRequest finds documents with a geometry near Origin.
type DistanceRequest struct {
	Field        string
	Origin       geo.Point
	RadiusMetres float64
	ContextID    string
	Limit        int
}

// RelationRequest finds documents whose geometry relates to Shape.
type RelationRequest struct {
	Field     string
	Relation  Relation
	Shape     geo.Shape
	ContextID string
	Limit     int
}

// Relation is a spatial predicate supported by the engine, evaluated as
// "indexed geometry <relation> query geometry".
type Relation string

const (
	RelationIntersects Relation = "intersects"
	RelationWithin     Relation = "within"
	RelationContains   Relation = "contains"
)

// Hit is one search result.
type Hit struct {
	Doc   *Document
	Score float64
	// Fragments maps fields to highlighted snippets. A nil map means the
	// engine produced no highlighting for this hit.
	Fragments map[string][]string
}

// Highlighted reports whether highlighting information is attached.
func (h Hit) Highlighted() bool { return h.Fragments != nil }

// Snippets returns the fragments of one field, nil when the field has none.
func (h Hit) Snippets(field string) []string {
	if h.Fragments == nil {
		return nil
	}
	return h.Fragments[field]
}
