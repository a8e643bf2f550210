package buffer

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

var (
	exName = rdf.IRI("http://example.org/name")
	exG1   = rdf.IRI("http://example.org/g1")
	exG2   = rdf.IRI("http://example.org/g2")
)

func stmt(subject string, value string, ctx rdf.Resource) rdf.Statement {
	return rdf.NewStatement(rdf.IRI("http://example.org/"+subject), exName, rdf.NewLiteral(value), ctx)
}

// recordingReplayer logs every call and fails calls equal to failOn.
type recordingReplayer struct {
	calls  []string
	failOn string
}

func (r *recordingReplayer) record(call string) error {
	r.calls = append(r.calls, call)
	if r.failOn != "" && call == r.failOn {
		return fmt.Errorf("%s failed", call)
	}
	return nil
}

func (r *recordingReplayer) Begin() error                 { return r.record("begin") }
func (r *recordingReplayer) Commit(context.Context) error { return r.record("commit") }
func (r *recordingReplayer) Rollback() error              { return r.record("rollback") }

func (r *recordingReplayer) AddRemoveStatements(added, removed []rdf.Statement) error {
	return r.record(fmt.Sprintf("addremove +%d -%d", len(added), len(removed)))
}

func (r *recordingReplayer) Clear(context.Context) error { return r.record("clear") }

func (r *recordingReplayer) ClearContexts(_ context.Context, contexts ...rdf.Resource) error {
	return r.record(fmt.Sprintf("clearcontexts %d", len(contexts)))
}

func TestBuffer_AddThenRemoveCancels(t *testing.T) {
	tests := []struct {
		name        string
		ops         func(b *Buffer, st rdf.Statement)
		wantAdded   int
		wantRemoved int
	}{
		{"add then remove", func(b *Buffer, st rdf.Statement) { b.Add(st); b.Remove(st) }, 0, 0},
		{"remove then add", func(b *Buffer, st rdf.Statement) { b.Remove(st); b.Add(st) }, 0, 0},
		{"add twice", func(b *Buffer, st rdf.Statement) { b.Add(st); b.Add(st) }, 1, 0},
		{"remove only", func(b *Buffer, st rdf.Statement) { b.Remove(st) }, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(false)
			tt.ops(b, stmt("r1", "alice", nil))

			require.Equal(t, 1, b.Len())
			op := b.Operations()[0].(*AddRemoveOperation)
			assert.Equal(t, tt.wantAdded, op.Added.Len())
			assert.Equal(t, tt.wantRemoved, op.Removed.Len())
		})
	}
}

func TestBuffer_StatementEqualityIncludesContext(t *testing.T) {
	// Given: the same triple in two graphs
	b := New(false)
	b.Add(stmt("r1", "alice", exG1))

	// When: the triple is removed from the other graph
	b.Remove(stmt("r1", "alice", exG2))

	// Then: nothing cancels
	op := b.Operations()[0].(*AddRemoveOperation)
	assert.Equal(t, 1, op.Added.Len())
	assert.Equal(t, 1, op.Removed.Len())
}

func TestBuffer_TypeStatements(t *testing.T) {
	typeSt := rdf.NewStatement(rdf.IRI("http://example.org/r1"), rdf.RDFType, rdf.IRI("http://example.org/Person"), nil)

	t.Run("ignored without type filtering", func(t *testing.T) {
		b := New(false)
		b.AddTypeStatement(typeSt, true)
		assert.Equal(t, 0, b.Len())
	})

	t.Run("add then remove cancels", func(t *testing.T) {
		b := New(true)
		b.AddTypeStatement(typeSt, true)
		b.RemoveTypeStatement(typeSt)

		op := b.Operations()[0].(*AddRemoveOperation)
		assert.True(t, op.Empty())
	})

	t.Run("any indexed type wins", func(t *testing.T) {
		b := New(true)
		b.AddTypeStatement(typeSt, true)
		b.AddTypeStatement(typeSt, false)

		op := b.Operations()[0].(*AddRemoveOperation)
		assert.Equal(t, map[rdf.Resource]bool{typeSt.Subject: true}, op.TypeAdded)
	})

	t.Run("removal recorded", func(t *testing.T) {
		b := New(true)
		b.RemoveTypeStatement(typeSt)

		op := b.Operations()[0].(*AddRemoveOperation)
		assert.Contains(t, op.TypeRemoved, typeSt.Subject)
	})
}

func TestBuffer_OperationsMergeBySameKind(t *testing.T) {
	// Given
	b := New(false)

	// When: adds, context clears, adds again
	b.Add(stmt("r1", "a", nil))
	b.Add(stmt("r2", "b", nil))
	b.Clear(exG1)
	b.Clear(exG2)
	b.Add(stmt("r3", "c", nil))

	// Then
	ops := b.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, 2, ops[0].(*AddRemoveOperation).Added.Len())
	assert.Equal(t, []rdf.Resource{exG1, exG2}, ops[1].(*ClearContextOperation).Contexts)
	assert.Equal(t, 1, ops[2].(*AddRemoveOperation).Added.Len())
}

func TestBuffer_Optimize(t *testing.T) {
	t.Run("keeps the last clear and what follows", func(t *testing.T) {
		// Given: work, a clear, then three adds
		b := New(false)
		b.Add(stmt("r0", "x", nil))
		b.Clear(exG1)
		b.Clear()
		for i := 1; i <= 3; i++ {
			b.Add(stmt(fmt.Sprintf("r%d", i), "v", nil))
		}

		// When
		b.Optimize()

		// Then
		ops := b.Operations()
		require.Len(t, ops, 2)
		assert.IsType(t, &ClearOperation{}, ops[0])
		assert.Equal(t, 3, ops[1].(*AddRemoveOperation).Added.Len())
	})

	t.Run("later clear prunes everything before it", func(t *testing.T) {
		b := New(false)
		b.Clear()
		b.Add(stmt("r1", "v", nil))
		b.Clear()

		b.Optimize()

		require.Len(t, b.Operations(), 1)
		assert.IsType(t, &ClearOperation{}, b.Operations()[0])
	})

	t.Run("no clear keeps everything", func(t *testing.T) {
		b := New(false)
		b.Add(stmt("r1", "v", nil))
		b.Clear(exG1)

		b.Optimize()

		assert.Len(t, b.Operations(), 2)
	})
}

func TestBuffer_Replay(t *testing.T) {
	// Given
	b := New(false)
	b.Add(stmt("r1", "a", nil))
	b.Remove(stmt("r2", "b", nil))
	b.Clear(exG1)
	b.Clear()
	r := &recordingReplayer{}

	// When
	err := b.Replay(context.Background(), r)

	// Then: one transaction per operation, buffer emptied
	require.NoError(t, err)
	assert.Equal(t, []string{
		"begin", "addremove +1 -1", "commit",
		"begin", "clearcontexts 1", "commit",
		"begin", "clear", "commit",
	}, r.calls)
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_ReplayFailure(t *testing.T) {
	// Given: the context clear fails
	b := New(false)
	b.Add(stmt("r1", "a", nil))
	b.Clear(exG1)
	b.Clear()
	b.Add(stmt("r2", "b", nil))
	r := &recordingReplayer{failOn: "clearcontexts 1"}

	// When
	err := b.Replay(context.Background(), r)

	// Then: the failed step is rolled back and the rest discarded
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeReplayFailed, errors.GetCode(err))

	var rerr *ReplayError
	require.True(t, stderrors.As(err, &rerr))
	assert.Equal(t, 1, rerr.Replayed)
	assert.Equal(t, 2, rerr.Discarded)
	assert.IsType(t, &ClearContextOperation{}, rerr.Op)

	assert.Equal(t, []string{
		"begin", "addremove +1 -0", "commit",
		"begin", "clearcontexts 1", "rollback",
	}, r.calls)
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_ReplayCommitFailureRollsBack(t *testing.T) {
	b := New(false)
	b.Clear()
	r := &recordingReplayer{failOn: "commit"}

	err := b.Replay(context.Background(), r)

	require.Error(t, err)
	assert.Equal(t, []string{"begin", "clear", "commit", "rollback"}, r.calls)
}

func TestBuffer_Completer(t *testing.T) {
	// Given: a completer that drops every addition of r2
	drop := stmt("r2", "b", nil)
	var seen int
	b := New(true, WithCompleter(func(_ context.Context, op *AddRemoveOperation) error {
		seen++
		op.Added.Remove(drop)
		return nil
	}))
	b.Add(stmt("r1", "a", nil))
	b.Add(drop)
	r := &recordingReplayer{}

	// When
	require.NoError(t, b.Replay(context.Background(), r))

	// Then
	assert.Equal(t, 1, seen)
	assert.Contains(t, r.calls, "addremove +1 -0")
}

func TestBuffer_CompleterFailureRollsBack(t *testing.T) {
	b := New(true, WithCompleter(func(context.Context, *AddRemoveOperation) error {
		return stderrors.New("store unavailable")
	}))
	b.Add(stmt("r1", "a", nil))
	r := &recordingReplayer{}

	err := b.Replay(context.Background(), r)

	require.Error(t, err)
	assert.ErrorContains(t, err, "store unavailable")
	assert.Equal(t, []string{"begin", "rollback"}, r.calls)
}

func TestBuffer_Reset(t *testing.T) {
	b := New(false)
	b.Add(stmt("r1", "a", nil))
	b.Clear()

	b.Reset()

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Operations())
}
