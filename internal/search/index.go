// Package search maps RDF statements onto search engine documents and
// evaluates search requests extracted from query plans.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/geo"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/telemetry"
)

// Options configures which statements reach the index and how results are capped.
type Options struct {
	// MaxDocuments caps the hits of one search; <= 0 means all documents.
	MaxDocuments int
	// WKTFields lists predicates whose values are WKT geometries.
	// Nil means geo:asWKT only.
	WKTFields []rdf.IRI
	// IndexedLanguages, when non-empty, is the allow-list of language tags.
	IndexedLanguages []string
	// IndexedTypes maps a type predicate to the objects that make a subject indexable.
	// Nil disables type filtering.
	IndexedTypes map[rdf.IRI][]rdf.IRI
}

// DefaultOptions returns the options used when Configure is never called.
func DefaultOptions() Options {
	return Options{WKTFields: []rdf.IRI{rdf.GeoAsWKT}}
}

// rejectedDatatypes are never worth indexing.
var rejectedDatatypes = map[rdf.IRI]bool{
	rdf.XSDFloat: true,
}

// DocumentIndex maps statements onto documents of an Engine.
//
// Mutations are assumed to come from one writer at a time and are staged in
// a transaction until Commit. Readers use ReaderMonitor snapshots and never
// block writers.
type DocumentIndex struct {
	engine  Engine
	parser  geo.Parser
	logger  *slog.Logger
	metrics *telemetry.Metrics

	maxDocs     int
	wktFields   map[string]bool
	langs       map[string]bool
	typeMapping map[rdf.IRI]map[rdf.IRI]bool

	writeMu sync.Mutex
	tx      *txn

	monMu   sync.Mutex
	current *ReaderMonitor
	old     map[*ReaderMonitor]struct{}
	closed  bool
}

// IndexOption customizes a DocumentIndex.
type IndexOption func(*DocumentIndex)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) IndexOption {
	return func(idx *DocumentIndex) { idx.logger = l }
}

// WithParser sets the WKT parser used to check distances.
func WithParser(p geo.Parser) IndexOption {
	return func(idx *DocumentIndex) { idx.parser = p }
}

// WithMetrics attaches metric collectors.
func WithMetrics(m *telemetry.Metrics) IndexOption {
	return func(idx *DocumentIndex) { idx.metrics = m }
}

// NewDocumentIndex wraps engine with DefaultOptions.
func NewDocumentIndex(engine Engine, opts ...IndexOption) *DocumentIndex {
	idx := &DocumentIndex{
		engine: engine,
		parser: geo.WKTParser{},
		logger: slog.Default(),
		old:    make(map[*ReaderMonitor]struct{}),
	}
	for _, opt := range opts {
		opt(idx)
	}
	_ = idx.Configure(DefaultOptions())
	return idx
}

// Configure applies opts. It must run before any statement is indexed.
func (idx *DocumentIndex) Configure(opts Options) error {
	if opts.MaxDocuments < 0 {
		opts.MaxDocuments = 0
	}
	idx.maxDocs = opts.MaxDocuments

	wkt := opts.WKTFields
	if wkt == nil {
		wkt = DefaultOptions().WKTFields
	}
	idx.wktFields = make(map[string]bool, len(wkt))
	for _, f := range wkt {
		idx.wktFields[PropertyField(f)] = true
	}

	idx.langs = nil
	if len(opts.IndexedLanguages) > 0 {
		idx.langs = make(map[string]bool, len(opts.IndexedLanguages))
		for _, l := range opts.IndexedLanguages {
			idx.langs[strings.ToLower(l)] = true
		}
	}

	idx.typeMapping = nil
	if opts.IndexedTypes != nil {
		idx.typeMapping = make(map[rdf.IRI]map[rdf.IRI]bool, len(opts.IndexedTypes))
		for pred, objs := range opts.IndexedTypes {
			if len(objs) == 0 {
				return errors.ConfigError(fmt.Sprintf("indexed type predicate %s has no types", pred), nil)
			}
			set := make(map[rdf.IRI]bool, len(objs))
			for _, o := range objs {
				set[o] = true
			}
			idx.typeMapping[pred] = set
		}
	}
	return nil
}

// Accept reports whether a literal is indexable.
func (idx *DocumentIndex) Accept(lit *rdf.Literal) bool {
	if lit == nil {
		return false
	}
	if rejectedDatatypes[lit.Datatype] {
		return false
	}
	if idx.langs != nil && (lit.Lang == "" || !idx.langs[strings.ToLower(lit.Lang)]) {
		return false
	}
	return true
}

// IsGeoField reports whether field holds WKT geometries.
func (idx *DocumentIndex) IsGeoField(field string) bool { return idx.wktFields[field] }

// TypeFilteringEnabled reports whether only subjects of indexed types are indexed.
func (idx *DocumentIndex) TypeFilteringEnabled() bool { return idx.typeMapping != nil }

// IsTypeStatement reports whether st assigns a type relevant to type filtering.
func (idx *DocumentIndex) IsTypeStatement(st rdf.Statement) bool {
	if !idx.TypeFilteringEnabled() {
		return false
	}
	_, isIRI := st.Object.(rdf.IRI)
	return isIRI && idx.typeMapping[st.Predicate] != nil
}

// IsIndexedTypeStatement reports whether st makes its subject indexable.
func (idx *DocumentIndex) IsIndexedTypeStatement(st rdf.Statement) bool {
	if !idx.TypeFilteringEnabled() {
		return false
	}
	obj, isIRI := st.Object.(rdf.IRI)
	return isIRI && idx.typeMapping[st.Predicate][obj]
}

// IndexedTypeMapping returns the type predicate mapping, nil when disabled.
func (idx *DocumentIndex) IndexedTypeMapping() map[rdf.IRI]map[rdf.IRI]bool {
	return idx.typeMapping
}

// txn stages documents until Commit. A nil document marks a deletion.
type txn struct {
	overlay map[string]*Document
	order   []string
}

func newTxn() *txn {
	return &txn{overlay: make(map[string]*Document)}
}

func (t *txn) put(id string, doc *Document) {
	if _, ok := t.overlay[id]; !ok {
		t.order = append(t.order, id)
	}
	t.overlay[id] = doc
}

// Begin starts a transaction, discarding nothing: an implicit transaction
// already holding staged work is kept.
func (idx *DocumentIndex) Begin() error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if idx.tx == nil {
		idx.tx = newTxn()
	}
	return nil
}

// Commit writes the staged documents as one engine batch and retires the
// current snapshot.
func (idx *DocumentIndex) Commit(ctx context.Context) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if idx.tx == nil || len(idx.tx.order) == 0 {
		idx.tx = nil
		return nil
	}

	start := time.Now()
	muts := make([]Mutation, 0, len(idx.tx.order))
	for _, id := range idx.tx.order {
		doc := idx.tx.overlay[id]
		muts = append(muts, Mutation{ID: id, Doc: doc, Delete: doc == nil})
	}
	if err := idx.engine.Apply(ctx, muts); err != nil {
		idx.metrics.RecordCommit(time.Since(start), len(muts), err)
		return errors.New(errors.ErrCodeIndexFailed, "failed to commit index batch", err)
	}
	idx.tx = nil
	idx.invalidateReaders()

	idx.metrics.RecordCommit(time.Since(start), len(muts), nil)
	idx.logger.Debug("index_commit",
		slog.Int("mutations", len(muts)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Rollback discards staged work.
func (idx *DocumentIndex) Rollback() error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	idx.tx = nil
	return nil
}

func (idx *DocumentIndex) staging() *txn {
	if idx.tx == nil {
		idx.tx = newTxn()
	}
	return idx.tx
}

// document returns the latest version of a document visible to the writer.
func (idx *DocumentIndex) document(snap Snapshot, id string) (*Document, error) {
	if idx.tx != nil {
		if doc, ok := idx.tx.overlay[id]; ok {
			return doc, nil
		}
	}
	return snap.Document(id)
}

// withSnapshot runs fn against the current snapshot.
func (idx *DocumentIndex) withSnapshot(fn func(Snapshot) error) error {
	m, err := idx.Acquire()
	if err != nil {
		return err
	}
	defer func() { _ = m.EndReading() }()
	return fn(m.Snapshot())
}

func (idx *DocumentIndex) addProperty(doc *Document, field, value string) {
	if idx.IsGeoField(field) {
		doc.AddGeoProperty(field, value)
	} else {
		doc.AddProperty(field, value)
	}
}

// AddStatement indexes a single statement.
func (idx *DocumentIndex) AddStatement(st rdf.Statement) error {
	value, ok := LiteralValue(st)
	if !ok || !idx.Accept(st.Object.(*rdf.Literal)) {
		return nil
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	field := PropertyField(st.Predicate)
	resourceID := ResourceID(st.Subject)
	contextID := ContextID(st.Context)
	id := FormID(resourceID, contextID)

	return idx.withSnapshot(func(snap Snapshot) error {
		doc, err := idx.document(snap, id)
		if err != nil {
			return err
		}
		if doc == nil {
			doc = NewDocument(id, resourceID, contextID)
			idx.addProperty(doc, field, value)
			idx.staging().put(id, doc)
			idx.metrics.RecordMutations("add", 1)
			return nil
		}
		if doc.HasProperty(field, value) {
			return nil
		}
		updated := doc.Copy()
		idx.addProperty(updated, field, value)
		idx.staging().put(id, updated)
		idx.metrics.RecordMutations("update", 1)
		return nil
	})
}

// RemoveStatement removes a single statement from its document.
func (idx *DocumentIndex) RemoveStatement(st rdf.Statement) error {
	value, ok := LiteralValue(st)
	if !ok {
		return nil
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	field := PropertyField(st.Predicate)
	id := FormID(ResourceID(st.Subject), ContextID(st.Context))

	return idx.withSnapshot(func(snap Snapshot) error {
		doc, err := idx.document(snap, id)
		if err != nil || doc == nil || !doc.HasProperty(field, value) {
			return err
		}
		if doc.NumValues() == 1 {
			idx.staging().put(id, nil)
			idx.metrics.RecordMutations("delete", 1)
			return nil
		}
		updated, mutated := doc.CopyWithout(map[string]map[string]bool{field: {value: true}})
		if mutated {
			idx.staging().put(id, updated)
			idx.metrics.RecordMutations("update", 1)
		}
		return nil
	})
}

// resourceBucket groups the statements of one subject by context id.
type resourceBucket struct {
	resource rdf.Resource
	contexts []string
	added    map[string][]rdf.Statement
	removed  map[string][]rdf.Statement
}

// AddRemoveStatements applies added and removed statements in one bulk
// update. The two sets are disjoint.
func (idx *DocumentIndex) AddRemoveStatements(added, removed []rdf.Statement) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	var order []string
	buckets := make(map[string]*resourceBucket)
	bucket := func(st rdf.Statement) *resourceBucket {
		rid := ResourceID(st.Subject)
		b, ok := buckets[rid]
		if !ok {
			b = &resourceBucket{
				resource: st.Subject,
				added:    make(map[string][]rdf.Statement),
				removed:  make(map[string][]rdf.Statement),
			}
			buckets[rid] = b
			order = append(order, rid)
		}
		cid := ContextID(st.Context)
		if _, seen := b.added[cid]; !seen {
			if _, seen := b.removed[cid]; !seen {
				b.contexts = append(b.contexts, cid)
			}
		}
		return b
	}
	for _, st := range added {
		b := bucket(st)
		cid := ContextID(st.Context)
		b.added[cid] = append(b.added[cid], st)
	}
	for _, st := range removed {
		b := bucket(st)
		cid := ContextID(st.Context)
		b.removed[cid] = append(b.removed[cid], st)
	}

	idx.logger.Debug("index_add_remove",
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)))

	return idx.withSnapshot(func(snap Snapshot) error {
		updater := idx.newBulkUpdate()
		for _, rid := range order {
			b := buckets[rid]
			for _, cid := range b.contexts {
				if err := idx.updateDocument(snap, updater, rid, cid, b); err != nil {
					return err
				}
			}
		}
		return updater.End()
	})
}

func (idx *DocumentIndex) updateDocument(snap Snapshot, updater *BulkUpdater, rid, cid string, b *resourceBucket) error {
	id := FormID(rid, cid)
	existing, err := idx.document(snap, id)
	if err != nil {
		return err
	}

	if existing == nil {
		doc := NewDocument(id, rid, cid)
		for _, st := range b.added[cid] {
			if v, ok := LiteralValue(st); ok {
				idx.addProperty(doc, PropertyField(st.Predicate), v)
			}
		}
		updater.Add(doc)
		if len(b.removed[cid]) > 0 {
			idx.logger.Info("unexpected_removal_on_new_document",
				slog.String("resource", b.resource.String()),
				slog.String("context", cid))
		}
		return nil
	}

	var removedValues map[string]map[string]bool
	if rs := b.removed[cid]; len(rs) > 0 {
		removedValues = make(map[string]map[string]bool)
		for _, st := range rs {
			v, ok := LiteralValue(st)
			if !ok {
				continue
			}
			field := PropertyField(st.Predicate)
			if removedValues[field] == nil {
				removedValues[field] = make(map[string]bool)
			}
			removedValues[field][v] = true
		}
	}

	doc, mutated := existing.CopyWithout(removedValues)
	if as := b.added[cid]; len(as) > 0 {
		cache := newPropertyCache(doc)
		for _, st := range as {
			v, ok := LiteralValue(st)
			if !ok {
				continue
			}
			field := PropertyField(st.Predicate)
			if !cache.hasProperty(field, v) {
				idx.addProperty(doc, field, v)
				cache.add(field, v)
				mutated = true
			}
		}
	}

	switch {
	case doc.NumValues() == 0:
		updater.Delete(id)
	case mutated:
		updater.Update(doc)
	}
	return nil
}

// AddDocuments indexes all statements of subject from scratch, one document
// per context. Any previous documents must already be deleted.
func (idx *DocumentIndex) AddDocuments(subject rdf.Resource, stmts []rdf.Statement) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	rid := ResourceID(subject)
	docs := make(map[string]*Document)
	var order []string
	for _, st := range stmts {
		v, ok := LiteralValue(st)
		if !ok {
			continue
		}
		cid := ContextID(st.Context)
		doc, exists := docs[cid]
		if !exists {
			doc = NewDocument(FormID(rid, cid), rid, cid)
			docs[cid] = doc
			order = append(order, cid)
		}
		idx.addProperty(doc, PropertyField(st.Predicate), v)
	}

	updater := idx.newBulkUpdate()
	for _, cid := range order {
		updater.Add(docs[cid])
	}
	return updater.End()
}

// Clear deletes every document.
func (idx *DocumentIndex) Clear(ctx context.Context) error {
	return idx.clear(ctx, "")
}

// ClearContexts deletes the documents of the given contexts. A nil context
// denotes the default graph.
func (idx *DocumentIndex) ClearContexts(ctx context.Context, contexts ...rdf.Resource) error {
	for _, c := range contexts {
		if err := idx.clear(ctx, ContextID(c)); err != nil {
			return err
		}
	}
	return nil
}

func (idx *DocumentIndex) clear(ctx context.Context, contextID string) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	ids, err := idx.engine.DocumentIDs(ctx, contextID)
	if err != nil {
		return errors.New(errors.ErrCodeIndexFailed, "failed to list documents", err)
	}
	tx := idx.staging()
	for _, id := range ids {
		tx.put(id, nil)
	}
	for _, id := range tx.order {
		if doc := tx.overlay[id]; doc != nil && (contextID == "" || doc.ContextID() == contextID) {
			tx.put(id, nil)
		}
	}
	idx.metrics.RecordMutations("delete", len(ids))
	return nil
}

// BulkUpdater collects document writes and stages them on End.
type BulkUpdater struct {
	idx  *DocumentIndex
	muts []Mutation
}

func (idx *DocumentIndex) newBulkUpdate() *BulkUpdater {
	return &BulkUpdater{idx: idx}
}

// Add queues a new document.
func (u *BulkUpdater) Add(doc *Document) {
	u.muts = append(u.muts, Mutation{ID: doc.ID(), Doc: doc})
}

// Update queues a replacement document.
func (u *BulkUpdater) Update(doc *Document) {
	u.muts = append(u.muts, Mutation{ID: doc.ID(), Doc: doc})
}

// Delete queues a document removal.
func (u *BulkUpdater) Delete(id string) {
	u.muts = append(u.muts, Mutation{ID: id, Delete: true})
}

// End flushes the queued writes into the current transaction.
func (u *BulkUpdater) End() error {
	tx := u.idx.staging()
	for _, m := range u.muts {
		if m.Delete {
			tx.put(m.ID, nil)
		} else {
			tx.put(m.ID, m.Doc)
		}
	}
	u.idx.metrics.RecordMutations("bulk", len(u.muts))
	u.muts = nil
	return nil
}

// Acquire returns the current monitor with a read registered. Callers must
// call EndReading when done.
func (idx *DocumentIndex) Acquire() (*ReaderMonitor, error) {
	for {
		m, err := idx.currentMonitor()
		if err != nil {
			return nil, err
		}
		if err := m.BeginReading(); err == nil {
			return m, nil
		}
		// Retired between lookup and registration; the next lookup opens a new one.
	}
}

func (idx *DocumentIndex) currentMonitor() (*ReaderMonitor, error) {
	idx.monMu.Lock()
	defer idx.monMu.Unlock()
	if idx.closed {
		return nil, ErrMonitorClosed
	}
	if idx.current == nil {
		snap, err := idx.engine.Snapshot()
		if err != nil {
			return nil, errors.New(errors.ErrCodeSearchFailed, "failed to open index snapshot", err)
		}
		idx.current = newReaderMonitor(idx, snap)
	}
	return idx.current, nil
}

// invalidateReaders retires the current monitor; it closes once its readers finish.
func (idx *DocumentIndex) invalidateReaders() {
	idx.monMu.Lock()
	defer idx.monMu.Unlock()
	m := idx.current
	if m == nil {
		return
	}
	idx.current = nil
	idx.old[m] = struct{}{}
	closed, err := m.CloseWhenPossible()
	if err != nil {
		idx.logger.Warn("reader_close_failed", slog.String("error", err.Error()))
	}
	if closed {
		delete(idx.old, m)
	}
	idx.metrics.SetOutstandingMonitors(len(idx.old))
}

func (idx *DocumentIndex) removeMonitor(m *ReaderMonitor) {
	idx.monMu.Lock()
	defer idx.monMu.Unlock()
	delete(idx.old, m)
	idx.metrics.SetOutstandingMonitors(len(idx.old))
}

// Stats describes the committed index.
type Stats struct {
	Documents           uint64
	OutstandingMonitors int
	Pending             int
}

// Stats returns document and monitor counts.
func (idx *DocumentIndex) Stats() (Stats, error) {
	n, err := idx.engine.DocCount()
	if err != nil {
		return Stats{}, err
	}
	idx.monMu.Lock()
	outstanding := len(idx.old)
	idx.monMu.Unlock()

	idx.writeMu.Lock()
	pending := 0
	if idx.tx != nil {
		pending = len(idx.tx.order)
	}
	idx.writeMu.Unlock()
	return Stats{Documents: n, OutstandingMonitors: outstanding, Pending: pending}, nil
}

// Close closes the current and every outstanding monitor, then the engine.
func (idx *DocumentIndex) Close() error {
	idx.monMu.Lock()
	if idx.closed {
		idx.monMu.Unlock()
		return nil
	}
	idx.closed = true
	monitors := make([]*ReaderMonitor, 0, len(idx.old)+1)
	if idx.current != nil {
		monitors = append(monitors, idx.current)
		idx.current = nil
	}
	for m := range idx.old {
		monitors = append(monitors, m)
	}
	idx.old = make(map[*ReaderMonitor]struct{})
	idx.monMu.Unlock()

	var firstErr error
	for _, m := range monitors {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := idx.engine.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
