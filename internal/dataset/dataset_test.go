package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

const sample = `
prefixes:
  ex: http://example.org/
graph: ex:g1
statements:
  - {subject: ex:r1, predicate: ex:name, literal: alice, lang: en}
  - {subject: ex:r1, predicate: rdf:type, iri: ex:Person}
  - {subject: ex:r1, predicate: geo:asWKT, literal: "POINT(2.35 48.85)", datatype: geo:wktLiteral}
  - {subject: _:b1, predicate: ex:knows, bnode: _:b2, graph: <urn:graph:other>}
  - {subject: ex:r2, predicate: <http://example.org/name>, literal: bob}
`

func TestParse(t *testing.T) {
	// Given / When
	ds, err := Parse([]byte(sample))

	// Then
	require.NoError(t, err)
	g1 := rdf.IRI("http://example.org/g1")
	assert.Equal(t, []rdf.Statement{
		rdf.NewStatement(rdf.IRI("http://example.org/r1"), "http://example.org/name", rdf.NewLangLiteral("alice", "en"), g1),
		rdf.NewStatement(rdf.IRI("http://example.org/r1"), rdf.RDFType, rdf.IRI("http://example.org/Person"), g1),
		rdf.NewStatement(rdf.IRI("http://example.org/r1"), rdf.GeoAsWKT, rdf.NewWKTLiteral("POINT(2.35 48.85)"), g1),
		rdf.NewStatement(rdf.BNode("b1"), "http://example.org/knows", rdf.BNode("b2"), rdf.IRI("urn:graph:other")),
		rdf.NewStatement(rdf.IRI("http://example.org/r2"), "http://example.org/name", rdf.NewLiteral("bob"), g1),
	}, ds.Statements)
}

func TestParse_DefaultGraph(t *testing.T) {
	ds, err := Parse([]byte("statements:\n  - {subject: urn:a, predicate: urn:p, literal: x}\n"))

	require.NoError(t, err)
	require.Len(t, ds.Statements, 1)
	assert.Nil(t, ds.Statements[0].Context)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"malformed", "statements: [", "failed to parse"},
		{"no object", "statements:\n  - {subject: urn:a, predicate: urn:p}\n", "exactly one of"},
		{"two objects", "statements:\n  - {subject: urn:a, predicate: urn:p, iri: urn:b, literal: x}\n", "exactly one of"},
		{"lang and datatype", "statements:\n  - {subject: urn:a, predicate: urn:p, literal: x, lang: en, datatype: xsd:string}\n", "both lang and datatype"},
		{"relative subject", "statements:\n  - {subject: alice, predicate: urn:p, literal: x}\n", "statement 1: subject"},
		{"empty predicate", "statements:\n  - {subject: urn:a, literal: x}\n", "predicate"},
		{"empty bnode", "statements:\n  - {subject: '_:', predicate: urn:p, literal: x}\n", "blank node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandIRI(t *testing.T) {
	tests := []struct {
		in      string
		want    rdf.IRI
		wantErr bool
	}{
		{"geo:asWKT", rdf.GeoAsWKT, false},
		{"<http://example.org/name>", "http://example.org/name", false},
		{"http://example.org/name", "http://example.org/name", false},
		{"urn:x", "urn:x", false},
		{"name", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandIRI(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_RecordsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	ds, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, path, ds.Path)
	assert.Len(t, ds.Statements, 5)
}

func TestLoad_ErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode string
	}{
		{"missing file", "", errors.ErrCodeFileNotFound},
		{"unparseable file", "statements: [", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a dataset path that is absent or holds broken YAML
			path := filepath.Join(t.TempDir(), "data.yaml")
			if tt.content != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			}

			// When: loading it
			_, err := Load(path)

			// Then: only the absent file carries the not-found code
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

// fakeWriter records the transaction it receives.
type fakeWriter struct {
	added     []rdf.Statement
	removed   []rdf.Statement
	committed bool
	rolled    bool
	failAdd   bool
}

func (f *fakeWriter) Begin(context.Context) error { return nil }

func (f *fakeWriter) AddStatement(_ context.Context, st rdf.Statement) error {
	if f.failAdd {
		return fmt.Errorf("disk full")
	}
	f.added = append(f.added, st)
	return nil
}

func (f *fakeWriter) RemoveStatements(_ context.Context, s rdf.Resource, p rdf.IRI, o rdf.Value, c ...rdf.Resource) (int, error) {
	var ctx rdf.Resource
	if len(c) > 0 {
		ctx = c[0]
	}
	f.removed = append(f.removed, rdf.NewStatement(s, p, o, ctx))
	return 1, nil
}

func (f *fakeWriter) Commit(context.Context) error { f.committed = true; return nil }
func (f *fakeWriter) Rollback() error              { f.rolled = true; return nil }

func TestSync_AppliesDifference(t *testing.T) {
	// Given: r1 stays, r2 goes, r3 arrives
	st := func(s, v string) rdf.Statement {
		return rdf.NewStatement(rdf.IRI("urn:"+s), "urn:name", rdf.NewLiteral(v), nil)
	}
	prev := &Dataset{Statements: []rdf.Statement{st("r1", "alice"), st("r2", "bob")}}
	next := &Dataset{Statements: []rdf.Statement{st("r1", "alice"), st("r3", "carol")}}
	w := &fakeWriter{}

	// When
	ch, err := Sync(context.Background(), w, prev, next)

	// Then
	require.NoError(t, err)
	assert.Equal(t, Changes{Added: 1, Removed: 1}, ch)
	assert.Equal(t, []rdf.Statement{st("r3", "carol")}, w.added)
	assert.Equal(t, []rdf.Statement{st("r2", "bob")}, w.removed)
	assert.True(t, w.committed)
}

func TestSync_FailureRollsBack(t *testing.T) {
	w := &fakeWriter{failAdd: true}
	next := &Dataset{Statements: []rdf.Statement{rdf.NewStatement(rdf.IRI("urn:a"), "urn:p", rdf.NewLiteral("x"), nil)}}

	_, err := Sync(context.Background(), w, nil, next)

	require.Error(t, err)
	assert.True(t, w.rolled)
	assert.False(t, w.committed)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	// Given: a watched dataset
	dir := t.TempDir()
	path := filepath.Join(dir, "data.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))
	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var reloads atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			reloads.Add(1)
			cancel()
			return nil
		})
	}()

	// When: an unrelated file and then the dataset change
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(path, []byte(sample+"\n"), 0644))

	// Then: exactly one reload fires
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(6 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Equal(t, int32(1), reloads.Load())
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "data.yaml"), 0, nil)
	assert.Error(t, err)
}
