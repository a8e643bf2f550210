package sail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/rdfsearch/internal/buffer"
	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/store"
)

// ErrNoTransaction is returned by write operations outside Begin/Commit.
var ErrNoTransaction = fmt.Errorf("no active transaction")

// Connection is a session on a Sail. Writes happen inside a transaction and
// reach the index when it commits.
type Connection struct {
	sail *Sail

	// mu serializes transaction control with listener callbacks.
	mu     sync.Mutex
	tx     *store.Tx
	buf    *buffer.Buffer
	closed atomic.Bool
}

func newConnection(s *Sail) *Connection {
	c := &Connection{sail: s}
	c.buf = buffer.New(s.index.TypeFilteringEnabled(),
		buffer.WithCompleter(c.complete),
		buffer.WithLogger(s.logger),
		buffer.WithMetrics(s.metrics))
	return c
}

// listener forwards store changes of the connection's transaction into its buffer.
type listener struct{ c *Connection }

func (l listener) StatementAdded(st rdf.Statement) {
	s := l.c.sail
	if _, ok := st.Object.(*rdf.Literal); ok {
		if mapped, ok := s.indexable(st); ok {
			l.c.buf.Add(mapped)
		}
		return
	}
	if s.index.IsTypeStatement(st) {
		l.c.buf.AddTypeStatement(st, s.index.IsIndexedTypeStatement(st))
	}
}

func (l listener) StatementRemoved(st rdf.Statement) {
	s := l.c.sail
	if _, ok := st.Object.(*rdf.Literal); ok {
		if mapped, ok := s.indexable(st); ok {
			l.c.buf.Remove(mapped)
		}
		return
	}
	if s.index.IsTypeStatement(st) {
		l.c.buf.RemoveTypeStatement(st)
	}
}

// Begin starts a transaction.
func (c *Connection) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return fmt.Errorf("connection closed")
	}
	if c.tx != nil {
		return fmt.Errorf("transaction already active")
	}
	tx, err := c.sail.store.Begin(ctx, listener{c})
	if err != nil {
		return err
	}
	c.tx = tx
	c.buf.Reset()
	return nil
}

// AddStatement stores st.
func (c *Connection) AddStatement(ctx context.Context, st rdf.Statement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return ErrNoTransaction
	}
	_, err := c.tx.Add(ctx, st)
	return err
}

// RemoveStatements deletes the statements matching the pattern. Nil terms
// are wildcards; no contexts means every graph.
func (c *Connection) RemoveStatements(ctx context.Context, subj rdf.Resource, pred rdf.IRI, obj rdf.Value, contexts ...rdf.Resource) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return 0, ErrNoTransaction
	}
	removed, err := c.tx.Remove(ctx, subj, pred, obj, contexts...)
	return len(removed), err
}

// Clear deletes the given contexts, or everything when none are given.
func (c *Connection) Clear(ctx context.Context, contexts ...rdf.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return ErrNoTransaction
	}
	if _, err := c.tx.Clear(ctx, contexts...); err != nil {
		return err
	}
	c.buf.Clear(contexts...)
	return nil
}

// Commit commits the store transaction, then replays the buffered changes
// into the index. A replay failure leaves the store committed and the index
// behind it; a reindex reconciles the two.
func (c *Connection) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		c.buf.Reset()
		return err
	}

	c.sail.logger.Debug("connection_commit", slog.Int("operations", c.buf.Len()))
	c.buf.Optimize()

	c.sail.replayMu.Lock()
	defer c.sail.replayMu.Unlock()
	defer c.buf.Reset()
	return c.buf.Replay(ctx, c.sail.index)
}

// Rollback discards the transaction.
func (c *Connection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tx.Rollback()
}

// Evaluate answers p, seeing the connection's uncommitted statements in the
// store but only committed documents in the index.
func (c *Connection) Evaluate(ctx context.Context, p *plan.Plan, bindings plan.BindingSet) (*plan.BindingSets, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil, fmt.Errorf("connection closed")
	}
	var src plan.Source = c.sail.store
	if c.tx != nil {
		src = c.tx
	}
	return c.sail.evaluate(ctx, p, bindings, src)
}

// Close rolls back an open transaction. It is idempotent.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.Rollback()
}

// complete applies type filtering to an operation about to be replayed.
// Additions of subjects without an indexed type are dropped; with
// backtracing, subjects that gained a type get their stored properties
// indexed and subjects that lost one get them removed.
func (c *Connection) complete(ctx context.Context, op *buffer.AddRemoveOperation) error {
	s := c.sail
	if !s.index.TypeFilteringEnabled() {
		return nil
	}
	filter := newTypeFilter(s)
	for subj, indexed := range op.TypeAdded {
		filter.remember(subj, indexed)
	}

	for _, st := range op.Added.Slice() {
		ok, err := filter.indexed(ctx, st.Subject, st.Context)
		if err != nil {
			return err
		}
		if !ok {
			op.Added.Remove(st)
		}
	}

	if s.opts.Backtrace.insert() {
		for subj, indexed := range op.TypeAdded {
			if !indexed {
				continue
			}
			if err := s.eachIndexable(ctx, subj, func(st rdf.Statement) { op.Added.Add(st) }); err != nil {
				return err
			}
		}
	}
	if s.opts.Backtrace.delete() {
		for subj := range op.TypeRemoved {
			if err := s.eachIndexable(ctx, subj, func(st rdf.Statement) { op.Removed.Add(st) }); err != nil {
				return err
			}
		}
	}
	return nil
}

// eachIndexable calls fn with every stored, indexable statement of subj.
func (s *Sail) eachIndexable(ctx context.Context, subj rdf.Resource, fn func(rdf.Statement)) error {
	stmts, err := s.store.Statements(ctx, subj, "", nil)
	if err != nil {
		return err
	}
	for _, st := range stmts {
		if mapped, ok := s.indexable(st); ok {
			fn(mapped)
		}
	}
	return nil
}

// typeFilter decides whether a subject is of an indexed type, caching answers.
type typeFilter struct {
	s     *Sail
	known map[rdf.Resource]bool
}

func newTypeFilter(s *Sail) *typeFilter {
	return &typeFilter{s: s, known: make(map[rdf.Resource]bool)}
}

func (f *typeFilter) remember(subj rdf.Resource, indexed bool) {
	f.known[subj] = indexed
}

// indexed looks the subject's type up in the store. A nil context searches
// the default graph; no context at all searches every graph.
func (f *typeFilter) indexed(ctx context.Context, subj rdf.Resource, contexts ...rdf.Resource) (bool, error) {
	mapping := f.s.index.IndexedTypeMapping()
	if mapping == nil {
		return true, nil
	}
	if v, ok := f.known[subj]; ok {
		return v, nil
	}
	for pred, types := range mapping {
		stmts, err := f.s.store.Statements(ctx, subj, pred, nil, contexts...)
		if err != nil {
			return false, err
		}
		for _, st := range stmts {
			if iri, ok := st.Object.(rdf.IRI); ok && types[iri] {
				f.known[subj] = true
				return true, nil
			}
		}
	}
	f.known[subj] = false
	return false, nil
}
