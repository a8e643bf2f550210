package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

type recordingListener struct {
	added, removed []rdf.Statement
}

func (l *recordingListener) StatementAdded(st rdf.Statement)   { l.added = append(l.added, st) }
func (l *recordingListener) StatementRemoved(st rdf.Statement) { l.removed = append(l.removed, st) }

func openQuads(t *testing.T) *QuadStore {
	t.Helper()
	s, err := OpenQuadStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var (
	r1    = rdf.IRI("http://example.org/r1")
	r2    = rdf.BNode("b0")
	g1    = rdf.IRI("http://example.org/g1")
	label = rdf.IRI(labelProp)
)

func addAll(t *testing.T, s *QuadStore, stmts ...rdf.Statement) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, st := range stmts {
		_, err := tx.Add(ctx, st)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
}

func TestQuadStore_TermRoundTrip(t *testing.T) {
	s := openQuads(t)
	stmts := []rdf.Statement{
		rdf.NewStatement(r1, label, rdf.NewLangLiteral("Erde", "de"), nil),
		rdf.NewStatement(r1, label, rdf.NewLiteral("Earth"), g1),
		rdf.NewStatement(r2, rdf.RDFType, rdf.IRI("http://example.org/Planet"), nil),
		rdf.NewStatement(r2, rdf.IRI("http://example.org/mass"), rdf.NewDoubleLiteral(5.97e24), g1),
		rdf.NewStatement(r1, rdf.IRI("http://example.org/moon"), r2, nil),
	}
	addAll(t, s, stmts...)

	got, err := s.Statements(context.Background(), nil, "", nil)
	require.NoError(t, err)
	require.Len(t, got, len(stmts))

	want := make(map[string]bool)
	for _, st := range stmts {
		want[st.Key()] = true
	}
	for _, st := range got {
		assert.True(t, want[st.Key()], "unexpected %s", st)
	}
}

func TestQuadStore_Statements_Patterns(t *testing.T) {
	s := openQuads(t)
	addAll(t, s,
		rdf.NewStatement(r1, label, rdf.NewLiteral("one"), nil),
		rdf.NewStatement(r1, label, rdf.NewLiteral("uno"), g1),
		rdf.NewStatement(r2, label, rdf.NewLiteral("two"), g1),
	)

	tests := []struct {
		name     string
		subj     rdf.Resource
		obj      rdf.Value
		contexts []rdf.Resource
		want     int
	}{
		{"all", nil, nil, nil, 3},
		{"by subject", r1, nil, nil, 2},
		{"by object", nil, rdf.NewLiteral("two"), nil, 1},
		{"default graph", nil, nil, []rdf.Resource{nil}, 1},
		{"named graph", nil, nil, []rdf.Resource{g1}, 2},
		{"both graphs", r1, nil, []rdf.Resource{nil, g1}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Statements(context.Background(), tt.subj, "", tt.obj, tt.contexts...)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestTx_ListenersSeeEffectiveChangesOnly(t *testing.T) {
	// Given: a store with one statement
	s := openQuads(t)
	existing := rdf.NewStatement(r1, label, rdf.NewLiteral("one"), nil)
	addAll(t, s, existing)

	ctx := context.Background()
	l := &recordingListener{}
	tx, err := s.Begin(ctx, l)
	require.NoError(t, err)

	// When: re-adding it, adding a new one and removing by pattern
	added, err := tx.Add(ctx, existing)
	require.NoError(t, err)
	assert.False(t, added)

	fresh := rdf.NewStatement(r2, label, rdf.NewLiteral("two"), g1)
	added, err = tx.Add(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, added)

	removed, err := tx.Remove(ctx, r1, "", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// Then: listeners saw exactly the effective changes
	assert.Equal(t, []rdf.Statement{fresh}, l.added)
	assert.Equal(t, []rdf.Statement{existing}, l.removed)
	assert.Len(t, removed, 1)

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTx_RollbackAndClear(t *testing.T) {
	s := openQuads(t)
	ctx := context.Background()
	addAll(t, s,
		rdf.NewStatement(r1, label, rdf.NewLiteral("one"), nil),
		rdf.NewStatement(r1, label, rdf.NewLiteral("uno"), g1),
	)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Clear(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "rollback restores cleared statements")

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	cleared, err := tx.Clear(ctx, g1)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(1), cleared)

	got, err := s.Statements(ctx, nil, "", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Context)
}

func TestQuadStore_ForEachGroupsBySubject(t *testing.T) {
	s := openQuads(t)
	addAll(t, s,
		rdf.NewStatement(r1, label, rdf.NewLiteral("a"), nil),
		rdf.NewStatement(r2, label, rdf.NewLiteral("b"), nil),
		rdf.NewStatement(r1, rdf.RDFType, rdf.IRI("http://example.org/T"), nil),
	)

	var subjects []string
	err := s.ForEach(context.Background(), func(st rdf.Statement) error {
		subjects = append(subjects, rdf.Key(st.Subject))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, subjects, 3)
	assert.Equal(t, subjects[0], subjects[1], "statements of one subject are adjacent")
}

func TestOpenQuadStore_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "store.db")
	s, err := OpenQuadStore(path, nil)
	require.NoError(t, err)
	addAll(t, s, rdf.NewStatement(r1, label, rdf.NewLiteral("kept"), nil))
	require.NoError(t, s.Close())

	s, err = OpenQuadStore(path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	n, err := s.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStatements_AfterClose(t *testing.T) {
	s, err := OpenQuadStore("", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Statements(context.Background(), nil, "", nil)
	assert.Error(t, err)
}
