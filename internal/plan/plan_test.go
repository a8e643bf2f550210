package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

func TestPlan_ReplaceWithSingleton_KeepsJoinWellFormed(t *testing.T) {
	// Given: a join of two patterns
	p := New()
	a := p.StatementPattern(NewVar("s"), Const(rdf.IRI("urn:p")), NewVar("o"), nil)
	b := p.StatementPattern(NewVar("s"), Const(rdf.IRI("urn:q")), NewVar("x"), nil)
	join := p.Join(a, b)
	p.Projection(join, "s")

	// When: the first pattern is excised
	placeholder := p.ReplaceWithSingleton(a)

	// Then: the join still has two children and the placeholder sits in a's slot
	require.Len(t, p.Node(join).Children, 2)
	assert.Equal(t, placeholder, p.Node(join).Children[0])
	assert.Equal(t, join, p.Node(placeholder).Parent)
	assert.Equal(t, NoNode, p.Node(a).Parent)
	assert.Equal(t, KindSingleton, p.Node(placeholder).Kind)
}

func TestPlan_RemoveCondition(t *testing.T) {
	dist := Call(rdf.GeofDistance, Ref("g"), Lit(rdf.NewWKTLiteral("POINT(0 0)")), Lit(rdf.UOMMetre))
	cmp := &Compare{Op: OpLT, Left: Ref("d"), Right: Lit(rdf.NewDoubleLiteral(10))}
	other := &Compare{Op: OpGT, Left: Ref("age"), Right: Lit(rdf.NewDoubleLiteral(3))}

	t.Run("sole condition splices the filter out", func(t *testing.T) {
		p := New()
		pat := p.StatementPattern(NewVar("s"), Const(rdf.GeoAsWKT), NewVar("g"), nil)
		ext := p.Extension(pat, ExtensionElem{Name: "d", Expr: dist})
		f := p.Filter(ext, cmp)
		root := p.Projection(f, "s")

		assert.True(t, p.RemoveCondition(f, cmp))

		assert.Equal(t, []NodeID{ext}, p.Node(root).Children)
		assert.Equal(t, root, p.Node(ext).Parent)
	})

	t.Run("conjunct is removed and the sibling kept", func(t *testing.T) {
		p := New()
		pat := p.StatementPattern(NewVar("s"), Const(rdf.GeoAsWKT), NewVar("g"), nil)
		f := p.Filter(pat, &And{Left: other, Right: cmp})

		assert.True(t, p.RemoveCondition(f, cmp))

		assert.Equal(t, Expr(other), p.Node(f).Condition)
		assert.Equal(t, KindFilter, p.Node(p.Root()).Kind)
	})

	t.Run("unrelated condition is untouched", func(t *testing.T) {
		p := New()
		pat := p.StatementPattern(NewVar("s"), Const(rdf.GeoAsWKT), NewVar("g"), nil)
		f := p.Filter(pat, other)

		assert.False(t, p.RemoveCondition(f, cmp))
		assert.Equal(t, Expr(other), p.Node(f).Condition)
	})
}

func TestPlan_RemoveExtensionElem(t *testing.T) {
	p := New()
	pat := p.StatementPattern(NewVar("s"), Const(rdf.GeoAsWKT), NewVar("g"), nil)
	ext := p.Extension(pat,
		ExtensionElem{Name: "d", Expr: Ref("g")},
		ExtensionElem{Name: "e", Expr: Ref("s")},
	)
	root := p.Projection(ext, "s")

	// When: one of two elements is removed the extension survives
	require.True(t, p.RemoveExtensionElem(ext, "d"))
	require.Len(t, p.Node(ext).Elems, 1)
	assert.Equal(t, []NodeID{ext}, p.Node(root).Children)

	// When: the last element is removed the extension disappears
	require.True(t, p.RemoveExtensionElem(ext, "e"))
	assert.Equal(t, []NodeID{pat}, p.Node(root).Children)
	assert.False(t, p.RemoveExtensionElem(ext, "missing"))
}

func TestPlan_Replace_Root(t *testing.T) {
	p := New()
	pat := p.StatementPattern(NewVar("s"), NewVar("p"), NewVar("o"), nil)
	empty := p.Empty()

	p.Replace(pat, empty)

	assert.Equal(t, empty, p.Root())
}

func TestPlan_Clone_IsIndependent(t *testing.T) {
	p := New()
	pat := p.StatementPattern(NewVar("s"), NewVar("p"), NewVar("o"), nil)
	p.Projection(pat, "s")

	c := p.Clone()
	c.ReplaceWithSingleton(pat)
	c.Node(pat).Pattern.Subject.Value = rdf.IRI("urn:x")

	assert.Equal(t, KindPattern, p.Node(p.Node(p.Root()).Children[0]).Kind)
	assert.False(t, p.Node(pat).Pattern.Subject.HasValue())
}

func TestBindingSets_DeduplicatesInInsertionOrder(t *testing.T) {
	set := NewBindingSets("s")
	assert.True(t, set.Add(BindingSet{"s": rdf.IRI("urn:b")}))
	assert.True(t, set.Add(BindingSet{"s": rdf.IRI("urn:a")}))
	assert.False(t, set.Add(BindingSet{"s": rdf.IRI("urn:b")}))

	require.Equal(t, 2, set.Len())
	assert.Equal(t, rdf.IRI("urn:b"), set.Rows[0]["s"])
	assert.Equal(t, rdf.IRI("urn:a"), set.Rows[1]["s"])
}

type sliceSource []rdf.Statement

func (s sliceSource) Statements(_ context.Context, subj rdf.Resource, pred rdf.IRI, obj rdf.Value, _ ...rdf.Resource) ([]rdf.Statement, error) {
	var out []rdf.Statement
	for _, st := range s {
		if subj != nil && !rdf.Equal(subj, st.Subject) {
			continue
		}
		if pred != "" && pred != st.Predicate {
			continue
		}
		if obj != nil && !rdf.Equal(obj, st.Object) {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func TestMaterialize_JoinsRowsWithPatterns(t *testing.T) {
	// Given: search rows joined with a stored property
	src := sliceSource{
		rdf.NewStatement(rdf.IRI("urn:r1"), "urn:age", rdf.NewLiteral("30"), nil),
		rdf.NewStatement(rdf.IRI("urn:r2"), "urn:age", rdf.NewLiteral("40"), nil),
	}
	p := New()
	pat := p.StatementPattern(NewVar("s"), Const(rdf.IRI("urn:age")), NewVar("age"), nil)
	rows := NewBindingSets("s")
	rows.Add(BindingSet{"s": rdf.IRI("urn:r1")})
	bsa := p.BindingSetAssignment(rows)
	join := p.Join(bsa, pat)
	p.Projection(join, "s", "age")

	// When
	out, err := Materialize(context.Background(), p, src)

	// Then
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, rdf.NewLiteral("30"), out.Rows[0]["age"])
}

func TestMaterialize_RejectsFilters(t *testing.T) {
	p := New()
	p.Filter(p.Singleton(), Ref("x"))

	_, err := Materialize(context.Background(), p, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}
