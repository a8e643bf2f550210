// Package dataset reads statements from YAML dataset files and keeps a
// sail in sync with them.
//
// A dataset file looks like:
//
//	prefixes:
//	  ex: http://example.org/
//	graph: ex:g1            # default context, omitted means the default graph
//	statements:
//	  - {subject: ex:r1, predicate: ex:name, literal: alice, lang: en}
//	  - {subject: ex:r1, predicate: rdf:type, iri: ex:Person}
//	  - {subject: ex:r1, predicate: geo:asWKT, literal: "POINT(2.35 48.85)", datatype: geo:wktLiteral}
//
// Subjects and objects written as _:name are blank nodes.
package dataset

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

// wellKnownPrefixes are available without declaration.
var wellKnownPrefixes = map[string]string{
	"rdf":    rdf.RDFNamespace,
	"xsd":    rdf.XSDNamespace,
	"geo":    rdf.GeoNamespace,
	"geof":   rdf.GeofNamespace,
	"uom":    rdf.UOMNamespace,
	"search": rdf.SearchNamespace,
}

// File is the YAML layout of a dataset.
type File struct {
	Prefixes   map[string]string `yaml:"prefixes"`
	Graph      string            `yaml:"graph"`
	Statements []Entry           `yaml:"statements"`
}

// Entry is one statement. Exactly one of IRI, BNode and Literal is set.
type Entry struct {
	Subject   string  `yaml:"subject"`
	Predicate string  `yaml:"predicate"`
	IRI       string  `yaml:"iri,omitempty"`
	BNode     string  `yaml:"bnode,omitempty"`
	Literal   *string `yaml:"literal,omitempty"`
	Lang      string  `yaml:"lang,omitempty"`
	Datatype  string  `yaml:"datatype,omitempty"`
	Graph     string  `yaml:"graph,omitempty"`
}

// Dataset is a parsed dataset file.
type Dataset struct {
	Path       string
	Statements []rdf.Statement
}

// Load reads and parses the dataset at path.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFileNotFound, "dataset not found: "+path, err).
			WithSuggestion("check the dataset path")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	ds.Path = path
	return ds, nil
}

// Parse parses dataset YAML.
func Parse(data []byte) (*Dataset, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	r := resolver{prefixes: f.Prefixes}

	var graph rdf.Resource
	if f.Graph != "" {
		g, err := r.resource(f.Graph)
		if err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
		graph = g
	}

	ds := &Dataset{Statements: make([]rdf.Statement, 0, len(f.Statements))}
	for i, e := range f.Statements {
		st, err := r.statement(e, graph)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		ds.Statements = append(ds.Statements, st)
	}
	return ds, nil
}

type resolver struct {
	prefixes map[string]string
}

// ExpandIRI resolves s the way dataset files do, with only the well-known
// prefixes declared.
func ExpandIRI(s string) (rdf.IRI, error) {
	return resolver{}.iri(s)
}

// iri expands a prefixed name. Strings with "://" or a scheme-only form such
// as urn: are taken literally.
func (r resolver) iri(s string) (rdf.IRI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty IRI")
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		return rdf.IRI(s[1 : len(s)-1]), nil
	}
	prefix, local, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("%q is neither an IRI nor a prefixed name", s)
	}
	if ns, ok := r.prefixes[prefix]; ok {
		return rdf.IRI(ns + local), nil
	}
	if ns, ok := wellKnownPrefixes[prefix]; ok {
		return rdf.IRI(ns + local), nil
	}
	return rdf.IRI(s), nil
}

func (r resolver) resource(s string) (rdf.Resource, error) {
	if name, ok := strings.CutPrefix(strings.TrimSpace(s), "_:"); ok {
		if name == "" {
			return nil, fmt.Errorf("empty blank node label")
		}
		return rdf.BNode(name), nil
	}
	return r.iri(s)
}

func (r resolver) statement(e Entry, graph rdf.Resource) (rdf.Statement, error) {
	subj, err := r.resource(e.Subject)
	if err != nil {
		return rdf.Statement{}, fmt.Errorf("subject: %w", err)
	}
	pred, err := r.iri(e.Predicate)
	if err != nil {
		return rdf.Statement{}, fmt.Errorf("predicate: %w", err)
	}

	var obj rdf.Value
	set := 0
	if e.IRI != "" {
		set++
		if obj, err = r.iri(e.IRI); err != nil {
			return rdf.Statement{}, fmt.Errorf("object: %w", err)
		}
	}
	if e.BNode != "" {
		set++
		obj = rdf.BNode(strings.TrimPrefix(e.BNode, "_:"))
	}
	if e.Literal != nil {
		set++
		switch {
		case e.Lang != "" && e.Datatype != "":
			return rdf.Statement{}, fmt.Errorf("literal has both lang and datatype")
		case e.Lang != "":
			obj = rdf.NewLangLiteral(*e.Literal, e.Lang)
		case e.Datatype != "":
			dt, err := r.iri(e.Datatype)
			if err != nil {
				return rdf.Statement{}, fmt.Errorf("datatype: %w", err)
			}
			obj = rdf.NewTypedLiteral(*e.Literal, dt)
		default:
			obj = rdf.NewLiteral(*e.Literal)
		}
	}
	if set != 1 {
		return rdf.Statement{}, fmt.Errorf("exactly one of iri, bnode and literal is required, got %d", set)
	}

	ctx := graph
	if e.Graph != "" {
		if ctx, err = r.resource(e.Graph); err != nil {
			return rdf.Statement{}, fmt.Errorf("graph: %w", err)
		}
	}
	return rdf.NewStatement(subj, pred, obj, ctx), nil
}

// Writer is the part of a sail connection that Sync needs.
type Writer interface {
	Begin(ctx context.Context) error
	AddStatement(ctx context.Context, st rdf.Statement) error
	RemoveStatements(ctx context.Context, subj rdf.Resource, pred rdf.IRI, obj rdf.Value, contexts ...rdf.Resource) (int, error)
	Commit(ctx context.Context) error
	Rollback() error
}

// Changes counts what Sync applied.
type Changes struct {
	Added   int
	Removed int
}

// Sync makes the statements of prev that are missing from next disappear and
// adds the new ones, in one transaction. prev may be nil.
func Sync(ctx context.Context, w Writer, prev, next *Dataset) (Changes, error) {
	before := rdf.NewStatementSet()
	if prev != nil {
		before = rdf.NewStatementSet(prev.Statements...)
	}
	after := rdf.NewStatementSet(next.Statements...)

	if err := w.Begin(ctx); err != nil {
		return Changes{}, err
	}
	var ch Changes
	apply := func() error {
		for _, st := range before.Slice() {
			if after.Contains(st) {
				continue
			}
			n, err := w.RemoveStatements(ctx, st.Subject, st.Predicate, st.Object, st.Context)
			if err != nil {
				return err
			}
			ch.Removed += n
		}
		for _, st := range after.Slice() {
			if before.Contains(st) {
				continue
			}
			if err := w.AddStatement(ctx, st); err != nil {
				return err
			}
			ch.Added++
		}
		return nil
	}
	if err := apply(); err != nil {
		_ = w.Rollback()
		return Changes{}, err
	}
	if err := w.Commit(ctx); err != nil {
		return Changes{}, err
	}
	return ch, nil
}
