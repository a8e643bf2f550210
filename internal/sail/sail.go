// Package sail couples the quad store with the search index: statement changes
// made through a Connection are buffered and replayed into the index on
// commit, and queries have their search patterns answered by the index.
package sail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/geo"
	"github.com/Aman-CERP/rdfsearch/internal/interpret"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/search"
	"github.com/Aman-CERP/rdfsearch/internal/store"
	"github.com/Aman-CERP/rdfsearch/internal/telemetry"
)

// BacktraceMode controls how the index follows type membership changes when
// type filtering is enabled.
type BacktraceMode string

const (
	// BacktraceNone only indexes properties added after the type.
	BacktraceNone BacktraceMode = "none"
	// BacktraceInsert also indexes the stored properties of a subject that
	// just gained an indexed type.
	BacktraceInsert BacktraceMode = "insert"
	// BacktraceComplete additionally unindexes the properties of a subject
	// that lost its type.
	BacktraceComplete BacktraceMode = "complete"
)

// ParseBacktraceMode parses a mode name; empty means none.
func ParseBacktraceMode(s string) (BacktraceMode, error) {
	switch m := BacktraceMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", BacktraceNone:
		return BacktraceNone, nil
	case BacktraceInsert, BacktraceComplete:
		return m, nil
	default:
		return "", errors.ConfigError(fmt.Sprintf("unknown type backtrace mode %q", s), nil).
			WithSuggestion("use one of: none, insert, complete")
	}
}

func (m BacktraceMode) insert() bool { return m == BacktraceInsert || m == BacktraceComplete }
func (m BacktraceMode) delete() bool { return m == BacktraceComplete }

// Options configures a Sail.
type Options struct {
	// IndexPath is the bleve index directory, in memory when empty.
	IndexPath string
	// StorePath is the SQLite quad store file, in memory when empty.
	StorePath string
	// QueryLogPath is a separate SQLite file for query statistics. Empty disables it.
	QueryLogPath string
	// GeoCacheSize is the number of parsed geometries kept; 0 disables caching.
	GeoCacheSize int

	Search search.Options
	// IndexID restricts text searches to those naming this index.
	IndexID rdf.IRI
	// Strict fails queries with malformed search patterns instead of ignoring them.
	Strict    bool
	Backtrace BacktraceMode

	// IndexedFields, when non-empty, lists the only predicates that are indexed.
	IndexedFields []rdf.IRI
	// FieldMapping renames predicates before indexing.
	FieldMapping map[rdf.IRI]rdf.IRI
}

// Sail owns the store and the index.
type Sail struct {
	store     *store.QuadStore
	index     *search.DocumentIndex
	extractor *interpret.Extractor
	opts      Options

	indexed map[rdf.IRI]bool

	logger   *slog.Logger
	metrics  *telemetry.Metrics
	queryLog *telemetry.QueryLog
	closers  []func() error

	// replayMu serializes index replays of concurrent connections.
	replayMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Option configures optional collaborators.
type Option func(*Sail)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sail) { s.logger = l }
}

// WithMetrics records index and query metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Sail) { s.metrics = m }
}

// WithQueryLog records every evaluated search.
func WithQueryLog(q *telemetry.QueryLog) Option {
	return func(s *Sail) { s.queryLog = q }
}

// Open creates the store, the engine and the index described by opts. An
// index that had to be recreated is rebuilt from the store.
func Open(ctx context.Context, opts Options, o ...Option) (*Sail, error) {
	s := &Sail{logger: slog.Default()}
	for _, opt := range o {
		opt(s)
	}

	var parser geo.Parser = geo.WKTParser{}
	if opts.GeoCacheSize > 0 {
		cached, err := geo.NewCachedParser(parser, opts.GeoCacheSize)
		if err != nil {
			return nil, err
		}
		parser = cached
	}

	qs, err := store.OpenQuadStore(opts.StorePath, s.logger)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreFailed, "failed to open quad store", err)
	}

	wkt := opts.Search.WKTFields
	if wkt == nil {
		wkt = search.DefaultOptions().WKTFields
	}
	geoFields := make([]string, len(wkt))
	for i, f := range wkt {
		geoFields[i] = search.PropertyField(f)
	}
	engine, err := store.OpenBleve(ctx, opts.IndexPath, store.EngineConfig{
		GeoFields: geoFields,
		Parser:    parser,
		Logger:    s.logger,
	})
	if err != nil {
		_ = qs.Close()
		return nil, err
	}

	idx := search.NewDocumentIndex(engine,
		search.WithLogger(s.logger),
		search.WithParser(parser),
		search.WithMetrics(s.metrics))

	if opts.QueryLogPath != "" && s.queryLog == nil {
		db, err := store.OpenDB(opts.QueryLogPath)
		if err == nil {
			err = telemetry.InitSchema(db)
		}
		if err == nil {
			s.queryLog, err = telemetry.NewQueryLog(db)
		}
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			_ = idx.Close()
			_ = qs.Close()
			return nil, errors.New(errors.ErrCodeStoreFailed, "failed to open query log", err)
		}
		s.closers = append(s.closers, db.Close)
	}

	if err := s.init(qs, idx, opts); err != nil {
		_ = s.Close()
		return nil, err
	}

	if engine.Recreated() {
		s.logger.Warn("index_rebuild_required", slog.String("path", opts.IndexPath))
		if err := s.Reindex(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wires an existing store and index.
func New(qs *store.QuadStore, idx *search.DocumentIndex, opts Options, o ...Option) (*Sail, error) {
	s := &Sail{logger: slog.Default()}
	for _, opt := range o {
		opt(s)
	}
	if err := s.init(qs, idx, opts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sail) init(qs *store.QuadStore, idx *search.DocumentIndex, opts Options) error {
	s.store, s.index = qs, idx
	if opts.Backtrace == "" {
		opts.Backtrace = BacktraceNone
	}
	s.opts = opts
	if err := idx.Configure(opts.Search); err != nil {
		return err
	}
	if len(opts.IndexedFields) > 0 {
		s.indexed = make(map[rdf.IRI]bool, len(opts.IndexedFields))
		for _, f := range opts.IndexedFields {
			s.indexed[f] = true
		}
	}
	s.extractor = &interpret.Extractor{
		Strict:  opts.Strict,
		IndexID: opts.IndexID,
		Geo:     idx,
		Logger:  s.logger,
	}
	return nil
}

// Store returns the base store.
func (s *Sail) Store() *store.QuadStore { return s.store }

// Index returns the search index.
func (s *Sail) Index() *search.DocumentIndex { return s.index }

// MapStatement applies the indexed-fields selection and the field mapping.
// It reports false for statements that must not be indexed.
func (s *Sail) MapStatement(st rdf.Statement) (rdf.Statement, bool) {
	if s.indexed != nil && !s.indexed[st.Predicate] {
		if _, mapped := s.opts.FieldMapping[st.Predicate]; !mapped {
			return rdf.Statement{}, false
		}
	}
	if to, ok := s.opts.FieldMapping[st.Predicate]; ok {
		st.Predicate = to
	}
	return st, true
}

// indexable maps st and checks its literal against the index.
func (s *Sail) indexable(st rdf.Statement) (rdf.Statement, bool) {
	lit, ok := st.Object.(*rdf.Literal)
	if !ok {
		return rdf.Statement{}, false
	}
	mapped, ok := s.MapStatement(st)
	if !ok || !s.index.Accept(lit) {
		return rdf.Statement{}, false
	}
	return mapped, true
}

// Connect opens a connection.
func (s *Sail) Connect() *Connection {
	return newConnection(s)
}

// Evaluate answers p against the committed store.
func (s *Sail) Evaluate(ctx context.Context, p *plan.Plan, bindings plan.BindingSet) (*plan.BindingSets, error) {
	return s.evaluate(ctx, p, bindings, s.store)
}

func (s *Sail) evaluate(ctx context.Context, p *plan.Plan, bindings plan.BindingSet, src plan.Source) (*plan.BindingSets, error) {
	q := p.Clone()
	inlineBindings(q, bindings)

	specs, err := s.extractor.Extract(q, bindings)
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		if err := s.answer(ctx, q, specs); err != nil {
			return nil, err
		}
	}

	rows, err := plan.Materialize(ctx, q, src)
	if err != nil {
		return nil, fmt.Errorf("evaluate plan: %w", err)
	}
	return withBindings(rows, bindings), nil
}

// answer evaluates specs against one snapshot and splices the results into q.
func (s *Sail) answer(ctx context.Context, q *plan.Plan, specs []search.QuerySpec) error {
	m, err := s.index.Acquire()
	if err != nil {
		return err
	}
	defer func() { _ = m.EndReading() }()

	results := make([]*plan.BindingSets, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			start := time.Now()
			rows, err := s.index.EvaluateWith(gctx, m, spec)
			if err != nil {
				return err
			}
			results[i] = rows
			s.logQuery(spec, rows.Len(), time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, spec := range specs {
		placeholder := spec.Excise(q)
		if results[i].Len() == 0 {
			q.Replace(placeholder, q.Empty())
			continue
		}
		q.Replace(placeholder, q.BindingSetAssignment(results[i]))
	}
	return nil
}

func (s *Sail) logQuery(spec search.QuerySpec, rows int, latency time.Duration) {
	if s.queryLog == nil {
		return
	}
	kind := "text"
	switch spec.(type) {
	case *search.DistanceQuery:
		kind = "distance"
	case *search.GeoRelationQuery:
		kind = "relation"
	}
	if err := s.queryLog.Record(telemetry.QueryEvent{Kind: kind, Query: spec.String(), Rows: rows, Latency: latency}); err != nil {
		s.logger.Debug("query_log_failed", slog.String("error", err.Error()))
	}
}

// inlineBindings turns externally bound pattern variables into constants.
func inlineBindings(p *plan.Plan, bindings plan.BindingSet) {
	if len(bindings) == 0 {
		return
	}
	p.Walk(func(_ plan.NodeID, n *plan.Node) {
		if n.Kind != plan.KindPattern {
			return
		}
		for _, v := range []*plan.Var{n.Pattern.Subject, n.Pattern.Predicate, n.Pattern.Object, n.Pattern.Context} {
			if v == nil || v.HasValue() {
				continue
			}
			if val, ok := bindings[v.Name]; ok {
				v.Value = val
			}
		}
	})
}

// withBindings adds the external bindings to every row that declares them.
func withBindings(rows *plan.BindingSets, bindings plan.BindingSet) *plan.BindingSets {
	if len(bindings) == 0 {
		return rows
	}
	declared := make(map[string]bool, len(rows.Names))
	for _, n := range rows.Names {
		declared[n] = true
	}
	out := plan.NewBindingSets(rows.Names...)
	for _, r := range rows.Rows {
		for name, v := range bindings {
			if _, ok := r[name]; !ok && (len(declared) == 0 || declared[name]) {
				r[name] = v
			}
		}
		out.Add(r)
	}
	return out
}

// Reindex rebuilds the index from the store in one transaction.
func (s *Sail) Reindex(ctx context.Context) error {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	start := time.Now()
	if err := s.index.Begin(); err != nil {
		return err
	}
	fail := func(err error) error {
		_ = s.index.Rollback()
		s.logger.Error("reindex_failed", errors.LogAttrs(err)...)
		return err
	}
	if err := s.index.Clear(ctx); err != nil {
		return fail(err)
	}

	var (
		subject  rdf.Resource
		pending  []rdf.Statement
		subjects int
		filter   = newTypeFilter(s)
	)
	flush := func() error {
		if subject == nil || len(pending) == 0 {
			return nil
		}
		keep, err := filter.indexed(ctx, subject)
		if err != nil {
			return err
		}
		if keep {
			subjects++
			return s.index.AddDocuments(subject, pending)
		}
		return nil
	}
	err := s.store.ForEach(ctx, func(st rdf.Statement) error {
		if subject == nil || rdf.Key(st.Subject) != rdf.Key(subject) {
			if err := flush(); err != nil {
				return err
			}
			subject, pending = st.Subject, pending[:0]
		}
		if mapped, ok := s.indexable(st); ok {
			pending = append(pending, mapped)
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return fail(err)
	}
	if err := s.index.Commit(ctx); err != nil {
		return fail(err)
	}
	s.logger.Info("reindex_complete",
		slog.Int("subjects", subjects),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Stats describes the store and the index.
type Stats struct {
	Statements int
	search.Stats
}

// Stats returns current counts.
func (s *Sail) Stats(ctx context.Context) (Stats, error) {
	n, err := s.store.Size(ctx)
	if err != nil {
		return Stats{}, err
	}
	is, err := s.index.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Statements: n, Stats: is}, nil
}

// QueryLog returns the query log, nil when disabled.
func (s *Sail) QueryLog() *telemetry.QueryLog { return s.queryLog }

// Close closes the index, the store and the query log.
func (s *Sail) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.index != nil {
			errs = append(errs, s.index.Close())
		}
		if s.store != nil {
			errs = append(errs, s.store.Close())
		}
		for _, c := range s.closers {
			errs = append(errs, c())
		}
		for _, err := range errs {
			if err != nil {
				s.closeErr = err
				break
			}
		}
	})
	return s.closeErr
}
