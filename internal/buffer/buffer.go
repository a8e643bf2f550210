// Package buffer collects index changes made inside a store transaction and
// replays them into the search index on commit.
package buffer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/telemetry"
)

// Replayer is the index side of a replay. Every operation runs in its own
// Begin/Commit pair.
type Replayer interface {
	Begin() error
	Commit(ctx context.Context) error
	Rollback() error
	AddRemoveStatements(added, removed []rdf.Statement) error
	Clear(ctx context.Context) error
	ClearContexts(ctx context.Context, contexts ...rdf.Resource) error
}

// Completer may rewrite an AddRemoveOperation right before it is replayed,
// inside the operation's index transaction.
type Completer func(ctx context.Context, op *AddRemoveOperation) error

// ReplayError reports a replay that stopped part way.
type ReplayError struct {
	// Op is the operation that failed.
	Op        Operation
	Replayed  int
	Discarded int
	Err       error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replaying %s failed after %d operations, %d discarded: %v", e.Op, e.Replayed, e.Discarded, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// Buffer is the operation log of one connection. It is not safe for
// concurrent use; the owning connection serializes access.
type Buffer struct {
	ops           []Operation
	typeFiltering bool

	completer Completer
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithCompleter installs the hook run before each AddRemoveOperation replay.
func WithCompleter(c Completer) Option {
	return func(b *Buffer) { b.completer = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Buffer) { b.logger = l }
}

// WithMetrics records replay outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Buffer) { b.metrics = m }
}

// New returns an empty buffer. Type statements are only tracked when
// typeFiltering is set.
func New(typeFiltering bool, opts ...Option) *Buffer {
	b := &Buffer{typeFiltering: typeFiltering, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// addRemove returns the last operation when it is an AddRemoveOperation,
// opening one otherwise.
func (b *Buffer) addRemove() *AddRemoveOperation {
	if n := len(b.ops); n > 0 {
		if op, ok := b.ops[n-1].(*AddRemoveOperation); ok {
			return op
		}
	}
	op := newAddRemoveOperation()
	b.ops = append(b.ops, op)
	return op
}

// Add records an added statement, cancelling a pending removal of it.
func (b *Buffer) Add(st rdf.Statement) {
	b.addRemove().add(st)
}

// Remove records a removed statement, cancelling a pending addition of it.
func (b *Buffer) Remove(st rdf.Statement) {
	b.addRemove().remove(st)
}

// AddTypeStatement records that the subject of st gained a type. indexed
// tells whether that type makes the subject indexable.
func (b *Buffer) AddTypeStatement(st rdf.Statement, indexed bool) {
	if !b.typeFiltering {
		return
	}
	b.addRemove().addType(st.Subject, indexed)
}

// RemoveTypeStatement records that the subject of st lost a type.
func (b *Buffer) RemoveTypeStatement(st rdf.Statement) {
	if !b.typeFiltering {
		return
	}
	b.addRemove().removeType(st.Subject)
}

// Clear records the removal of the given contexts, or of everything when
// none are given.
func (b *Buffer) Clear(contexts ...rdf.Resource) {
	if len(contexts) == 0 {
		b.ops = append(b.ops, &ClearOperation{})
		return
	}
	if n := len(b.ops); n > 0 {
		if op, ok := b.ops[n-1].(*ClearContextOperation); ok {
			op.Contexts = append(op.Contexts, contexts...)
			return
		}
	}
	b.ops = append(b.ops, &ClearContextOperation{Contexts: append([]rdf.Resource(nil), contexts...)})
}

// Optimize drops every operation made obsolete by the latest global clear.
func (b *Buffer) Optimize() {
	for i := len(b.ops) - 1; i > 0; i-- {
		if _, ok := b.ops[i].(*ClearOperation); ok {
			b.ops = append([]Operation(nil), b.ops[i:]...)
			return
		}
	}
}

// Operations returns the buffered operations in order.
func (b *Buffer) Operations() []Operation {
	return b.ops
}

// Len returns the number of buffered operations.
func (b *Buffer) Len() int { return len(b.ops) }

// Reset drops all operations.
func (b *Buffer) Reset() {
	b.ops = nil
}

// Replay applies the operations to r in order and empties the buffer. When an
// operation fails its transaction is rolled back and the remaining operations
// are discarded; the returned error wraps a *ReplayError.
func (b *Buffer) Replay(ctx context.Context, r Replayer) error {
	ops := b.ops
	b.ops = nil

	b.logger.Debug("buffer_replay_started", slog.Int("operations", len(ops)))
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return b.replayFailed(op, i, len(ops), err)
		}
		if err := b.replayOne(ctx, r, op); err != nil {
			return b.replayFailed(op, i, len(ops), err)
		}
	}
	b.metrics.RecordReplay(len(ops), 0)
	return nil
}

func (b *Buffer) replayFailed(op Operation, replayed, total int, err error) error {
	rerr := &ReplayError{Op: op, Replayed: replayed, Discarded: total - replayed - 1, Err: err}
	b.metrics.RecordReplay(replayed, rerr.Discarded)
	b.logger.Error("buffer_replay_failed",
		slog.String("operation", op.String()),
		slog.Int("replayed", replayed),
		slog.Int("discarded", rerr.Discarded),
		slog.String("state", "index needs external reconciliation"),
		slog.String("error", err.Error()))
	return errors.New(errors.ErrCodeReplayFailed, rerr.Error(), rerr).
		WithSuggestion("run 'rdfsearch reindex' to rebuild the index from the store")
}

func (b *Buffer) replayOne(ctx context.Context, r Replayer, op Operation) error {
	if err := r.Begin(); err != nil {
		return err
	}
	if err := b.apply(ctx, r, op); err != nil {
		if rbErr := r.Rollback(); rbErr != nil {
			b.logger.Warn("buffer_rollback_failed", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := r.Commit(ctx); err != nil {
		_ = r.Rollback()
		return err
	}
	return nil
}

func (b *Buffer) apply(ctx context.Context, r Replayer, op Operation) error {
	switch op := op.(type) {
	case *AddRemoveOperation:
		if b.completer != nil {
			if err := b.completer(ctx, op); err != nil {
				return err
			}
		}
		b.logger.Debug("buffer_replay_add_remove",
			slog.Int("added", op.Added.Len()),
			slog.Int("removed", op.Removed.Len()))
		return r.AddRemoveStatements(op.Added.Slice(), op.Removed.Slice())
	case *ClearContextOperation:
		return r.ClearContexts(ctx, op.Contexts...)
	case *ClearOperation:
		b.logger.Debug("buffer_replay_clear")
		return r.Clear(ctx)
	default:
		panic(fmt.Sprintf("buffer: unknown operation %T", op))
	}
}
