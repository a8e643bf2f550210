package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// fakeEngine keeps committed documents in a map. Snapshots copy the map so
// later commits are invisible to them.
type fakeEngine struct {
	mu       sync.Mutex
	docs     map[string]*Document
	applyErr error
	applied  [][]Mutation
	closed   bool
	opened   int
	released int

	// hits overrides geo searches when set.
	distanceHits []Hit
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{docs: make(map[string]*Document)}
}

func (e *fakeEngine) Snapshot() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("closed")
	}
	view := make(map[string]*Document, len(e.docs))
	for id, d := range e.docs {
		view[id] = d
	}
	e.opened++
	return &fakeSnapshot{engine: e, docs: view}, nil
}

func (e *fakeEngine) Apply(_ context.Context, muts []Mutation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applyErr != nil {
		return e.applyErr
	}
	e.applied = append(e.applied, muts)
	for _, m := range muts {
		if m.Delete {
			delete(e.docs, m.ID)
		} else {
			e.docs[m.ID] = m.Doc
		}
	}
	return nil
}

func (e *fakeEngine) DocumentIDs(_ context.Context, contextID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for id, d := range e.docs {
		if contextID == "" || d.ContextID() == contextID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (e *fakeEngine) DocCount() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(len(e.docs)), nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) doc(id string) *Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docs[id]
}

type fakeSnapshot struct {
	engine *fakeEngine
	docs   map[string]*Document
	closed bool
}

func (s *fakeSnapshot) Document(id string) (*Document, error) { return s.docs[id], nil }

// SearchText matches documents containing the query as a substring of any
// value of the clause field, or of any field when unscoped.
func (s *fakeSnapshot) SearchText(_ context.Context, req TextRequest) ([]Hit, error) {
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var hits []Hit
	for _, id := range ids {
		d := s.docs[id]
		if req.ResourceID != "" && d.ResourceID() != req.ResourceID {
			continue
		}
		frags := map[string][]string{}
		for _, c := range req.Clauses {
			fields := d.PropertyNames()
			if c.Field != "" {
				fields = []string{c.Field}
			}
			for _, f := range fields {
				for _, v := range d.Property(f) {
					if strings.Contains(v, c.Query) {
						frags[f] = append(frags[f], strings.ReplaceAll(v, c.Query, "<b>"+c.Query+"</b>"))
					}
				}
			}
		}
		if len(frags) == 0 {
			continue
		}
		hit := Hit{Doc: d, Score: 1}
		if req.Highlight {
			hit.Fragments = frags
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *fakeSnapshot) SearchDistance(context.Context, DistanceRequest) ([]Hit, error) {
	return s.engine.distanceHits, nil
}

func (s *fakeSnapshot) SearchRelation(context.Context, RelationRequest) ([]Hit, error) {
	return s.engine.distanceHits, nil
}

func (s *fakeSnapshot) Close() error {
	if !s.closed {
		s.closed = true
		s.engine.mu.Lock()
		s.engine.released++
		s.engine.mu.Unlock()
	}
	return nil
}
