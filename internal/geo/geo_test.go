package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
)

func TestWKTParser_Parse(t *testing.T) {
	tests := []struct {
		name     string
		wkt      string
		wantType ShapeType
		want     orb.Geometry
	}{
		{"point", "POINT(2.35 48.85)", TypePoint, orb.Point{2.35, 48.85}},
		{"lower case with spaces", "  point ( 2.35   48.85 ) ", TypePoint, orb.Point{2.35, 48.85}},
		{"crs prefix", "<http://www.opengis.net/def/crs/OGC/1.3/CRS84> POINT(1 2)", TypePoint, orb.Point{1, 2}},
		{"linestring", "LINESTRING(0 0, 1 1, 2 2)", TypeLineString, orb.LineString{{0, 0}, {1, 1}, {2, 2}}},
		{"polygon", "POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))", TypePolygon,
			orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}},
		{"polygon with hole", "POLYGON((0 0, 4 0, 4 4, 0 4, 0 0), (1 1, 2 1, 2 2, 1 1))", TypePolygon,
			orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}, {{1, 1}, {2, 1}, {2, 2}, {1, 1}}}},
		{"multipoint", "MULTIPOINT((1 2), (3 4))", TypeMultiPoint, orb.MultiPoint{{1, 2}, {3, 4}}},
		{"multilinestring", "MULTILINESTRING((0 0, 1 1), (2 2, 3 3))", TypeMultiLineString,
			orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}}},
		{"multipolygon", "MULTIPOLYGON(((0 0, 1 0, 1 1, 0 0)), ((5 5, 6 5, 6 6, 5 5)))", TypeMultiPolygon,
			orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, {{{5, 5}, {6, 5}, {6, 6}, {5, 5}}}}},
		{"geometry collection", "GEOMETRYCOLLECTION(POINT(1 2), LINESTRING(3 4, 5 6))", TypeCollection,
			orb.Collection{orb.Point{1, 2}, orb.LineString{{3, 4}, {5, 6}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := WKTParser{}.Parse(tt.wkt)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, s.Type)
			assert.Equal(t, tt.want, s.Geometry)
		})
	}
}

func TestWKTParser_RejectsMalformed(t *testing.T) {
	for _, wkt := range []string{
		"",
		"POINT",
		"POINT(1)",
		"POINT(1 2, 3 4)",
		"POINT(500 0)",
		"POINT EMPTY",
		"CIRCLE(1 2 3)",
		"LINESTRING(0 0)",
		"POLYGON((0 0, 1 0, 1 1))",
		"POLYGON((0 0, 1 0, 1 1, 0 1))",
		"MULTIPOINT EMPTY",
		"GEOMETRYCOLLECTION EMPTY",
		"GEOMETRYCOLLECTION(POINT(1 2), POINT(200 0))",
		"<urn:crs POINT(1 2)",
	} {
		t.Run(wkt, func(t *testing.T) {
			_, err := WKTParser{}.Parse(wkt)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeMalformedGeometry, errors.GetCode(err))
		})
	}
}

func TestShape_CenterAndCoordinates(t *testing.T) {
	s, err := WKTParser{}.Parse("POLYGON((0 0, 2 0, 2 2, 0 2, 0 0))")
	require.NoError(t, err)

	c := s.Center()
	assert.InDelta(t, 1.0, c.Lon, 1e-9)
	assert.InDelta(t, 1.0, c.Lat, 1e-9)
	coords := s.Coordinates()
	require.Len(t, coords, 1)
	require.Len(t, coords[0], 1)
	assert.Len(t, coords[0][0], 5)

	p, err := WKTParser{}.Parse("POINT(3 4)")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "point", "coordinates": []float64{3, 4}}, p.GeoJSON())
	assert.Equal(t, Point{Lon: 3, Lat: 4}, p.Point())
}

func TestShape_Collection(t *testing.T) {
	// Given: a collection of a point and a line
	s, err := WKTParser{}.Parse("GEOMETRYCOLLECTION(POINT(1 2), LINESTRING(3 4, 5 6))")
	require.NoError(t, err)

	// When
	coords, types := s.CollectionCoordinates()

	// Then: members keep their order and bleve layout
	assert.Equal(t, []string{"point", "linestring"}, types)
	assert.Equal(t, [][][][][]float64{
		{{{{1, 2}}}},
		{{{{3, 4}, {5, 6}}}},
	}, coords)
	assert.Equal(t, map[string]any{
		"type": "geometrycollection",
		"geometries": []any{
			map[string]any{"type": "point", "coordinates": []float64{1, 2}},
			map[string]any{"type": "linestring", "coordinates": [][]float64{{3, 4}, {5, 6}}},
		},
	}, s.GeoJSON())
}

func TestShape_MembersFlattenNestedCollections(t *testing.T) {
	s, err := NewShape(orb.Collection{
		orb.Point{1, 2},
		orb.Collection{orb.LineString{{3, 4}, {5, 6}}, orb.Point{7, 8}},
	})
	require.NoError(t, err)

	var types []ShapeType
	for _, m := range s.Members() {
		types = append(types, m.Type)
	}
	assert.Equal(t, []ShapeType{TypePoint, TypeLineString, TypePoint}, types)
}

func TestNewShape_RejectsBounds(t *testing.T) {
	_, err := NewShape(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}})
	assert.Error(t, err)
}

func TestMinDistanceMetres(t *testing.T) {
	// One degree of latitude or of longitude at the equator is about 111.2 km.
	const degree = 111195.0
	tests := []struct {
		name   string
		origin Point
		wkt    string
		want   float64
		delta  float64
	}{
		{"point", Point{0, 0}, "POINT(0 1)", degree, 500},
		{"nearest of several points", Point{0, 0}, "MULTIPOINT((0 3), (2 0))", 2 * degree, 1000},
		{"middle of an edge", Point{0, 0}, "LINESTRING(-1 1, 1 1)", degree, 500},
		{"beyond the end of an edge", Point{0, 0}, "LINESTRING(1 0, 2 0)", degree, 500},
		{"inside a polygon", Point{2, 2}, "POLYGON((0 0, 4 0, 4 4, 0 4, 0 0))", 0, 0},
		{"outside near an edge", Point{2, -1}, "POLYGON((0 0, 4 0, 4 4, 0 4, 0 0))", degree, 500},
		{"inside a hole", Point{2, 2}, "POLYGON((0 0, 4 0, 4 4, 0 4, 0 0), (1 1, 3 1, 3 3, 1 3, 1 1))", degree, 500},
		{"closest collection member", Point{0, 0}, "GEOMETRYCOLLECTION(POINT(0 5), LINESTRING(-1 2, 1 2))", 2 * degree, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := WKTParser{}.Parse(tt.wkt)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, MinDistanceMetres(tt.origin, s), tt.delta)
		})
	}
}

func TestDistanceMetres(t *testing.T) {
	// One degree of latitude is roughly 111 km.
	d := DistanceMetres(Point{Lon: 0, Lat: 0}, Point{Lon: 0, Lat: 1})
	assert.InDelta(t, 111195, d, 500)
	assert.InDelta(t, 0.0, DistanceMetres(Point{Lon: 5, Lat: 5}, Point{Lon: 5, Lat: 5}), 1e-6)
}

func TestUnits(t *testing.T) {
	m, err := ToMetres(1, rdf.UOMDegree)
	require.NoError(t, err)
	assert.InDelta(t, 111195, m, 10)

	back, err := FromMetres(m, rdf.UOMDegree)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, back, 1e-9)

	_, err = ToMetres(1, rdf.IRI("urn:furlong"))
	assert.Equal(t, errors.ErrCodeUnsupportedUnit, errors.GetCode(err))
}

type countingParser struct{ calls int }

func (c *countingParser) Parse(wkt string) (Shape, error) {
	c.calls++
	return WKTParser{}.Parse(wkt)
}

func TestCachedParser_MemoizesSuccessOnly(t *testing.T) {
	inner := &countingParser{}
	p, err := NewCachedParser(inner, 4)
	require.NoError(t, err)

	_, err = p.Parse("POINT(1 1)")
	require.NoError(t, err)
	_, err = p.Parse("POINT(1 1)")
	require.NoError(t, err)
	_, err = p.Parse("nope")
	require.Error(t, err)
	_, err = p.Parse("nope")
	require.Error(t, err)

	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 1, p.Len())
}
