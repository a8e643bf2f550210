package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	"github.com/blevesearch/bleve/v2/search/highlight"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	rserrors "github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/geo"
	"github.com/Aman-CERP/rdfsearch/internal/search"
)

// Field name prefixes. Property IRIs are base64url encoded because bleve
// treats '.' in field names as a path separator.
const (
	propertyPrefix = "p_"
	geoPointPrefix = "gp_"
	geoShapePrefix = "gs_"
)

func encodeField(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name))
}

func propertyFieldName(name string) string { return propertyPrefix + encodeField(name) }

// GeoPointField is the engine field indexing geometries of a WKT property as points.
func GeoPointField(name string) string { return geoPointPrefix + encodeField(name) }

// GeoShapeField is the engine field indexing geometries of a WKT property as shapes.
func GeoShapeField(name string) string { return geoShapePrefix + encodeField(name) }

func decodePropertyField(field string) (string, bool) {
	if !strings.HasPrefix(field, propertyPrefix) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(field[len(propertyPrefix):])
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// EngineConfig configures a BleveEngine.
type EngineConfig struct {
	// GeoFields are the property names holding WKT literals.
	GeoFields []string
	// Parser parses stored WKT for the geo fields. Defaults to geo.WKTParser.
	Parser geo.Parser
	Logger *slog.Logger
	// Lock configures retries while another process holds the index.
	Lock rserrors.RetryConfig
}

// BleveEngine implements search.Engine on a bleve index.
type BleveEngine struct {
	mu        sync.RWMutex
	index     bleve.Index
	path      string
	geoFields map[string]bool
	parser    geo.Parser
	logger    *slog.Logger
	lock      *dirLock
	recreated bool
	closed    bool
}

var _ search.Engine = (*BleveEngine)(nil)

// OpenBleve opens or creates the index at path. An empty path creates an
// in-memory index.
func OpenBleve(ctx context.Context, path string, cfg EngineConfig) (*BleveEngine, error) {
	e := &BleveEngine{
		path:      path,
		geoFields: make(map[string]bool, len(cfg.GeoFields)),
		parser:    cfg.Parser,
		logger:    cfg.Logger,
	}
	for _, f := range cfg.GeoFields {
		e.geoFields[f] = true
	}
	if e.parser == nil {
		e.parser = geo.WKTParser{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	indexMapping := createIndexMapping(cfg.GeoFields)

	if path == "" {
		idx, err := bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, rserrors.New(rserrors.ErrCodeStoreFailed, "failed to create in-memory index", err)
		}
		e.index = idx
		return e, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, rserrors.New(rserrors.ErrCodeStoreFailed, "failed to create index directory", err)
	}

	lockCfg := cfg.Lock
	if lockCfg.MaxRetries == 0 && lockCfg.InitialDelay == 0 {
		lockCfg = rserrors.DefaultRetryConfig()
	}
	e.lock = newDirLock(path)
	if err := e.lock.acquire(ctx, lockCfg); err != nil {
		return nil, err
	}

	idx, err := e.openOrCreate(path, indexMapping)
	if err != nil {
		_ = e.lock.release()
		return nil, err
	}
	e.index = idx
	return e, nil
}

func (e *BleveEngine) openOrCreate(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	if validErr := validateIndexIntegrity(path); validErr != nil {
		e.logger.Warn("index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := e.clear(path); err != nil {
			return nil, rserrors.New(rserrors.ErrCodeCorruptIndex,
				fmt.Sprintf("index corrupted at %s and cannot be removed", path), err)
		}
	}

	idx, err := bleve.Open(path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		idx, err = bleve.New(path, indexMapping)
		if err == nil && e.recreated {
			e.logger.Info("index_recreated", slog.String("path", path))
		}
	case err != nil && isCorruptionError(err):
		e.logger.Warn("index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if clearErr := e.clear(path); clearErr != nil {
			return nil, rserrors.New(rserrors.ErrCodeCorruptIndex,
				fmt.Sprintf("index corrupted at %s and cannot be removed", path), clearErr)
		}
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, rserrors.New(rserrors.ErrCodeStoreFailed, "failed to create/open index", err)
	}
	return idx, nil
}

func (e *BleveEngine) clear(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	e.recreated = true
	e.logger.Info("index_cleared",
		slog.String("path", path),
		slog.String("reason", "corruption detected, reindex required"))
	return nil
}

// Recreated reports whether a corrupt index was discarded on open. The
// caller is expected to reindex from the base store.
func (e *BleveEngine) Recreated() bool { return e.recreated }

// validateIndexIntegrity checks index_meta.json of an existing index.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// createIndexMapping maps text properties dynamically and geo properties
// explicitly. Reserved id fields are exact-match keywords excluded from _all.
func createIndexMapping(geoFields []string) *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	dm := indexMapping.DefaultMapping

	for _, name := range []string{search.URIField, search.ContextField} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		dm.AddFieldMappingsAt(name, fm)
	}

	for _, name := range geoFields {
		stored := bleve.NewTextFieldMapping()
		stored.Index = false
		stored.IncludeInAll = false
		stored.IncludeTermVectors = false
		dm.AddSubDocumentMapping(propertyFieldName(name), staticMapping(stored))

		point := bleve.NewGeoPointFieldMapping()
		point.Store = false
		point.IncludeInAll = false
		dm.AddSubDocumentMapping(GeoPointField(name), staticMapping(point))

		shape := bleve.NewGeoShapeFieldMapping()
		shape.Store = false
		shape.IncludeInAll = false
		dm.AddSubDocumentMapping(GeoShapeField(name), staticMapping(shape))
	}
	return indexMapping
}

func staticMapping(fm *mapping.FieldMapping) *mapping.DocumentMapping {
	sub := bleve.NewDocumentStaticMapping()
	sub.AddFieldMapping(fm)
	return sub
}

// Apply writes all mutations in one bleve batch.
func (e *BleveEngine) Apply(ctx context.Context, muts []search.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("index is closed")
	}

	batch := e.index.NewBatch()
	for _, m := range muts {
		if m.Delete || m.Doc == nil {
			batch.Delete(m.ID)
			continue
		}
		if err := batch.Index(m.ID, e.toBleve(m.Doc)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", m.ID, err)
		}
	}
	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	return nil
}

// toBleve flattens a document into the map indexed by bleve.
func (e *BleveEngine) toBleve(doc *search.Document) map[string]interface{} {
	out := map[string]interface{}{
		search.URIField:     doc.ResourceID(),
		search.ContextField: doc.ContextID(),
	}
	for _, name := range doc.PropertyNames() {
		values := doc.Property(name)
		if len(values) == 0 {
			continue
		}
		out[propertyFieldName(name)] = oneOrMany(values)

		if !e.geoFields[name] {
			continue
		}
		var points, shapes []interface{}
		for _, wkt := range values {
			shape, err := e.parser.Parse(wkt)
			if err != nil {
				e.logger.Warn("geometry_not_indexed",
					slog.String("document", doc.ID()),
					slog.String("field", name),
					slog.String("error", err.Error()))
				continue
			}
			c := shape.Center()
			points = append(points, map[string]interface{}{"lon": c.Lon, "lat": c.Lat})
			shapes = append(shapes, shape.GeoJSON())
		}
		if len(points) > 0 {
			out[GeoPointField(name)] = oneOrMany(points)
			out[GeoShapeField(name)] = oneOrMany(shapes)
		}
	}
	return out
}

func oneOrMany[T any](vs []T) interface{} {
	if len(vs) == 1 {
		return vs[0]
	}
	return vs
}

// DocumentIDs lists committed document ids, optionally for one context.
func (e *BleveEngine) DocumentIDs(ctx context.Context, contextID string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("index is closed")
	}

	count, err := e.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	var q query.Query = bleve.NewMatchAllQuery()
	if contextID != "" {
		q = termQuery(search.ContextField, contextID)
	}
	req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
	req.Fields = []string{}

	res, err := e.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list document ids: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// DocCount returns the number of committed documents.
func (e *BleveEngine) DocCount() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return 0, fmt.Errorf("index is closed")
	}
	return e.index.DocCount()
}

// Snapshot pins an index reader. Searches and document loads through the
// snapshot see the index as of this call.
func (e *BleveEngine) Snapshot() (search.Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("index is closed")
	}

	adv, err := e.index.Advanced()
	if err != nil {
		return nil, fmt.Errorf("failed to access index: %w", err)
	}
	reader, err := adv.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open reader: %w", err)
	}
	return &bleveSnapshot{engine: e, reader: reader, mapping: e.index.Mapping()}, nil
}

// Close closes the index and releases the directory lock.
func (e *BleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if e.index != nil {
		err = e.index.Close()
	}
	if e.lock != nil {
		if lerr := e.lock.release(); err == nil {
			err = lerr
		}
	}
	return err
}

func termQuery(field, term string) *query.TermQuery {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

// bleveSnapshot runs searches and document loads on one pinned reader.
type bleveSnapshot struct {
	engine  *BleveEngine
	reader  index.IndexReader
	mapping mapping.IndexMapping
	once    sync.Once
	err     error
}

func (s *bleveSnapshot) Document(id string) (*search.Document, error) {
	d, err := s.reader.Document(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	if d == nil {
		return nil, nil
	}
	return s.engine.fromBleve(d), nil
}

// fromBleve rebuilds a document from its stored fields.
func (e *BleveEngine) fromBleve(d index.Document) *search.Document {
	var resourceID, contextID string
	type value struct{ name, v string }
	var values []value

	d.VisitFields(func(f index.Field) {
		switch name := f.Name(); name {
		case search.URIField:
			resourceID = string(f.Value())
		case search.ContextField:
			contextID = string(f.Value())
		default:
			if prop, ok := decodePropertyField(name); ok {
				values = append(values, value{prop, string(f.Value())})
			}
		}
	})

	doc := search.NewDocument(d.ID(), resourceID, contextID)
	for _, v := range values {
		if e.geoFields[v.name] {
			doc.AddGeoProperty(v.name, v.v)
		} else {
			doc.AddProperty(v.name, v.v)
		}
	}
	return doc
}

func (s *bleveSnapshot) SearchText(ctx context.Context, req search.TextRequest) ([]search.Hit, error) {
	if len(req.Clauses) == 0 {
		return nil, nil
	}

	clauses := make([]query.Query, 0, len(req.Clauses))
	for _, c := range req.Clauses {
		clauses = append(clauses, textClause(c))
	}
	var q query.Query = clauses[0]
	if len(clauses) > 1 {
		q = bleve.NewDisjunctionQuery(clauses...)
	}
	if req.ResourceID != "" {
		q = bleve.NewConjunctionQuery(q, termQuery(search.URIField, req.ResourceID))
	}
	return s.run(ctx, q, req.Limit, req.Highlight)
}

func textClause(c search.TextClause) query.Query {
	if c.Field == "" {
		q := bleve.NewQueryStringQuery(c.Query)
		if c.Boost > 0 {
			q.SetBoost(c.Boost)
		}
		return q
	}
	q := bleve.NewMatchQuery(c.Query)
	q.SetField(propertyFieldName(c.Field))
	if c.Boost > 0 {
		q.SetBoost(c.Boost)
	}
	return q
}

// SearchDistance matches geometries whose indexed centre lies within the
// radius, or whose shape reaches into the search disc.
func (s *bleveSnapshot) SearchDistance(ctx context.Context, req search.DistanceRequest) ([]search.Hit, error) {
	radius := fmt.Sprintf("%fm", req.RadiusMetres)
	dq := bleve.NewGeoDistanceQuery(req.Origin.Lon, req.Origin.Lat, radius)
	dq.SetField(GeoPointField(req.Field))

	cq, err := bleve.NewGeoShapeCircleQuery([]float64{req.Origin.Lon, req.Origin.Lat}, radius, string(search.RelationIntersects))
	if err != nil {
		return nil, rserrors.New(rserrors.ErrCodeMalformedGeometry, "invalid search disc", err)
	}
	cq.SetField(GeoShapeField(req.Field))

	return s.run(ctx, withContext(bleve.NewDisjunctionQuery(dq, cq), req.ContextID), req.Limit, false)
}

func (s *bleveSnapshot) SearchRelation(ctx context.Context, req search.RelationRequest) ([]search.Hit, error) {
	var (
		sq  *query.GeoShapeQuery
		err error
	)
	if req.Shape.Type == geo.TypeCollection {
		coords, types := req.Shape.CollectionCoordinates()
		sq, err = bleve.NewGeometryCollectionQuery(coords, types, string(req.Relation))
	} else {
		sq, err = bleve.NewGeoShapeQuery(req.Shape.Coordinates(), string(req.Shape.Type), string(req.Relation))
	}
	if err != nil {
		return nil, rserrors.New(rserrors.ErrCodeMalformedGeometry, "unsupported query geometry", err)
	}
	sq.SetField(GeoShapeField(req.Field))
	return s.run(ctx, withContext(sq, req.ContextID), req.Limit, false)
}

func withContext(q query.Query, contextID string) query.Query {
	if contextID == "" {
		return q
	}
	return bleve.NewConjunctionQuery(q, termQuery(search.ContextField, contextID))
}

// byScore orders hits the way bleve.SearchRequest does by default.
var byScore = bsearch.SortOrder{&bsearch.SortScore{Desc: true}}

// run executes q on the pinned reader. A non-positive limit returns every match.
func (s *bleveSnapshot) run(ctx context.Context, q query.Query, limit int, withHighlight bool) ([]search.Hit, error) {
	if limit <= 0 {
		n, err := s.reader.DocCount()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		limit = int(n)
	}

	s.engine.mu.RLock()
	defer s.engine.mu.RUnlock()
	if s.engine.closed {
		return nil, fmt.Errorf("index is closed")
	}

	searcher, err := q.Searcher(ctx, s.reader, s.mapping, bsearch.SearcherOptions{
		IncludeTermVectors: withHighlight,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build searcher: %w", err)
	}
	defer func() { _ = searcher.Close() }()

	coll := collector.NewTopNCollector(limit, 0, byScore)
	if err := coll.Collect(ctx, searcher, s.reader); err != nil {
		return nil, fmt.Errorf("failed to collect hits: %w", err)
	}

	req, hl, err := highlightRequest(q, withHighlight)
	if err != nil {
		return nil, err
	}

	results := coll.Results()
	hits := make([]search.Hit, 0, len(results))
	for _, h := range results {
		if hl != nil {
			if err, _ := bleve.LoadAndHighlightFields(h, req, "", s.reader, hl); err != nil {
				return nil, fmt.Errorf("failed to highlight %s: %w", h.ID, err)
			}
		}
		doc, err := s.Document(h.ID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		hit := search.Hit{Doc: doc, Score: h.Score}
		if hl != nil && h.Fragments != nil {
			hit.Fragments = make(map[string][]string, len(h.Fragments))
			for field, frags := range h.Fragments {
				if prop, ok := decodePropertyField(field); ok {
					hit.Fragments[prop] = frags
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// highlightRequest returns the request and highlighter used to annotate hits,
// or nils when highlighting is off.
func highlightRequest(q query.Query, on bool) (*bleve.SearchRequest, highlight.Highlighter, error) {
	if !on {
		return nil, nil, nil
	}
	req := bleve.NewSearchRequest(q)
	req.Highlight = bleve.NewHighlight()
	hl, err := bleve.Config.Cache.HighlighterNamed(bleve.Config.DefaultHighlighter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load highlighter: %w", err)
	}
	return req, hl, nil
}

func (s *bleveSnapshot) Close() error {
	s.once.Do(func() { s.err = s.reader.Close() })
	return s.err
}
