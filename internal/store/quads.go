package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/rdfsearch/internal/plan"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// OpenDB opens a SQLite database with the pragmas every rdfsearch database
// uses. An empty path opens a private in-memory database.
func OpenDB(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: an in-memory database lives in its connection, and
	// a single writer avoids lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

// Object kinds stored in quads.o_kind.
const (
	kindIRI     = 0
	kindBNode   = 1
	kindLiteral = 2
)

// QuadStore is the base triple store. Statements live in one SQLite table
// keyed by the canonical term encoding of each position.
type QuadStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *slog.Logger
	closed bool
}

var _ plan.Source = (*QuadStore)(nil)

// OpenQuadStore opens the store at path, in memory when path is empty.
func OpenQuadStore(path string, logger *slog.Logger) (*QuadStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	s := &QuadStore{db: db, path: path, logger: logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *QuadStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- ctx is '' for the default graph
	CREATE TABLE IF NOT EXISTS quads (
		subj TEXT NOT NULL,
		pred TEXT NOT NULL,
		obj TEXT NOT NULL,
		ctx TEXT NOT NULL DEFAULT '',
		o_kind INTEGER NOT NULL,
		o_label TEXT NOT NULL,
		o_lang TEXT NOT NULL DEFAULT '',
		o_datatype TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (subj, pred, obj, ctx)
	);
	CREATE INDEX IF NOT EXISTS idx_quads_pred ON quads(pred, obj);
	CREATE INDEX IF NOT EXISTS idx_quads_ctx ON quads(ctx);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Statements returns the statements matching the pattern.
func (s *QuadStore) Statements(ctx context.Context, subj rdf.Resource, pred rdf.IRI, obj rdf.Value, contexts ...rdf.Resource) ([]rdf.Statement, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return queryStatements(ctx, s.db, subj, pred, obj, contexts)
}

// Size counts the stored statements.
func (s *QuadStore) Size(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM quads").Scan(&n)
	return n, err
}

// ForEach visits every statement ordered by subject then context, so that
// all statements of one document arrive together.
func (s *QuadStore) ForEach(ctx context.Context, fn func(rdf.Statement) error) error {
	if err := s.check(); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY subj, ctx, pred")
	if err != nil {
		return fmt.Errorf("failed to scan statements: %w", err)
	}
	// Collect first: fn may query the store, which needs the single connection.
	stmts, err := scanStatements(rows)
	if err != nil {
		return err
	}
	for _, st := range stmts {
		if err := fn(st); err != nil {
			return err
		}
	}
	return nil
}

func (s *QuadStore) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Close checkpoints and closes the database.
func (s *QuadStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Listener observes effective changes made through a Tx.
type Listener interface {
	StatementAdded(st rdf.Statement)
	StatementRemoved(st rdf.Statement)
}

// Tx is a write transaction. While a Tx is open it holds the store's only
// connection, so reads during the transaction must go through the Tx.
type Tx struct {
	tx        *sql.Tx
	listeners []Listener
	done      bool
}

var _ plan.Source = (*Tx)(nil)

// Begin starts a transaction that notifies listeners of every statement it
// actually adds or removes.
func (s *QuadStore) Begin(ctx context.Context, listeners ...Listener) (*Tx, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, listeners: listeners}, nil
}

// Add stores st and reports whether it was new.
func (t *Tx) Add(ctx context.Context, st rdf.Statement) (bool, error) {
	if st.Subject == nil || st.Predicate == "" || st.Object == nil {
		return false, fmt.Errorf("incomplete statement %s", st)
	}
	kind, label, lang, dt := objectColumns(st.Object)
	res, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO quads (subj, pred, obj, ctx, o_kind, o_label, o_lang, o_datatype)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rdf.Key(st.Subject), string(st.Predicate), rdf.Key(st.Object), contextKey(st.Context), kind, label, lang, dt)
	if err != nil {
		return false, fmt.Errorf("failed to add statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	for _, l := range t.listeners {
		l.StatementAdded(st)
	}
	return true, nil
}

// Remove deletes the statements matching the pattern and returns them.
func (t *Tx) Remove(ctx context.Context, subj rdf.Resource, pred rdf.IRI, obj rdf.Value, contexts ...rdf.Resource) ([]rdf.Statement, error) {
	matched, err := queryStatements(ctx, t.tx, subj, pred, obj, contexts)
	if err != nil {
		return nil, err
	}
	for _, st := range matched {
		if err := t.delete(ctx, st); err != nil {
			return nil, err
		}
		for _, l := range t.listeners {
			l.StatementRemoved(st)
		}
	}
	return matched, nil
}

// Clear deletes all statements of the given contexts, or every statement
// when none are given. Listeners are not notified per statement.
func (t *Tx) Clear(ctx context.Context, contexts ...rdf.Resource) (int64, error) {
	where, args := contextFilter(contexts)
	q := "DELETE FROM quads"
	if where != "" {
		q += " WHERE " + where
	}
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear statements: %w", err)
	}
	return res.RowsAffected()
}

func (t *Tx) delete(ctx context.Context, st rdf.Statement) error {
	_, err := t.tx.ExecContext(ctx,
		"DELETE FROM quads WHERE subj = ? AND pred = ? AND obj = ? AND ctx = ?",
		rdf.Key(st.Subject), string(st.Predicate), rdf.Key(st.Object), contextKey(st.Context))
	if err != nil {
		return fmt.Errorf("failed to remove statement: %w", err)
	}
	return nil
}

// Statements reads through the transaction.
func (t *Tx) Statements(ctx context.Context, subj rdf.Resource, pred rdf.IRI, obj rdf.Value, contexts ...rdf.Resource) ([]rdf.Statement, error) {
	return queryStatements(ctx, t.tx, subj, pred, obj, contexts)
}

// Commit makes the transaction's changes durable.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const selectColumns = "SELECT subj, pred, ctx, o_kind, o_label, o_lang, o_datatype FROM quads"

func queryStatements(ctx context.Context, q querier, subj rdf.Resource, pred rdf.IRI, obj rdf.Value, contexts []rdf.Resource) ([]rdf.Statement, error) {
	var conds []string
	var args []any
	if subj != nil {
		conds = append(conds, "subj = ?")
		args = append(args, rdf.Key(subj))
	}
	if pred != "" {
		conds = append(conds, "pred = ?")
		args = append(args, string(pred))
	}
	if obj != nil {
		conds = append(conds, "obj = ?")
		args = append(args, rdf.Key(obj))
	}
	if where, cargs := contextFilter(contexts); where != "" {
		conds = append(conds, where)
		args = append(args, cargs...)
	}

	sqlText := selectColumns
	if len(conds) > 0 {
		sqlText += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	return scanStatements(rows)
}

func scanStatements(rows *sql.Rows) ([]rdf.Statement, error) {
	defer rows.Close()

	var out []rdf.Statement
	for rows.Next() {
		var subj, pred, ctxKey, label, lang, dt string
		var kind int
		if err := rows.Scan(&subj, &pred, &ctxKey, &kind, &label, &lang, &dt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		s, err := parseResourceKey(subj)
		if err != nil {
			return nil, err
		}
		var c rdf.Resource
		if ctxKey != "" {
			if c, err = parseResourceKey(ctxKey); err != nil {
				return nil, err
			}
		}
		out = append(out, rdf.NewStatement(s, rdf.IRI(pred), objectValue(kind, label, lang, dt), c))
	}
	return out, rows.Err()
}

// contextFilter renders a ctx IN (...) condition; nil contexts match the default graph.
func contextFilter(contexts []rdf.Resource) (string, []any) {
	if len(contexts) == 0 {
		return "", nil
	}
	marks := make([]string, len(contexts))
	args := make([]any, len(contexts))
	for i, c := range contexts {
		marks[i] = "?"
		args[i] = contextKey(c)
	}
	return "ctx IN (" + strings.Join(marks, ", ") + ")", args
}

func contextKey(c rdf.Resource) string {
	if c == nil {
		return ""
	}
	return rdf.Key(c)
}

func parseResourceKey(key string) (rdf.Resource, error) {
	switch {
	case strings.HasPrefix(key, "<") && strings.HasSuffix(key, ">"):
		return rdf.IRI(key[1 : len(key)-1]), nil
	case strings.HasPrefix(key, "_:"):
		return rdf.BNode(key[2:]), nil
	default:
		return nil, fmt.Errorf("invalid resource key %q", key)
	}
}

func objectColumns(v rdf.Value) (kind int, label, lang, datatype string) {
	switch t := v.(type) {
	case rdf.IRI:
		return kindIRI, string(t), "", ""
	case rdf.BNode:
		return kindBNode, string(t), "", ""
	case *rdf.Literal:
		return kindLiteral, t.Label, t.Lang, string(t.Datatype)
	default:
		return kindLiteral, v.String(), "", ""
	}
}

func objectValue(kind int, label, lang, datatype string) rdf.Value {
	switch kind {
	case kindIRI:
		return rdf.IRI(label)
	case kindBNode:
		return rdf.BNode(label)
	default:
		if lang != "" {
			return rdf.NewLangLiteral(label, lang)
		}
		return rdf.NewTypedLiteral(label, rdf.IRI(datatype))
	}
}
