// Package geo parses WKT geometries and computes distances for geospatial search.
package geo

import (
	"fmt"
	"math"

	bgeo "github.com/blevesearch/bleve/v2/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ShapeType names a geometry kind the way bleve's geoshape fields do.
type ShapeType string

const (
	TypePoint           ShapeType = "point"
	TypeMultiPoint      ShapeType = "multipoint"
	TypeLineString      ShapeType = "linestring"
	TypeMultiLineString ShapeType = "multilinestring"
	TypePolygon         ShapeType = "polygon"
	TypeMultiPolygon    ShapeType = "multipolygon"
	TypeCollection      ShapeType = "geometrycollection"
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lon, Lat float64
}

func (p Point) toOrb() orb.Point { return orb.Point{p.Lon, p.Lat} }

func fromOrb(p orb.Point) Point { return Point{Lon: p.Lon(), Lat: p.Lat()} }

// Shape is a parsed geometry.
type Shape struct {
	Type     ShapeType
	Geometry orb.Geometry
}

// NewShape wraps g. Bounds and bare rings are rejected.
func NewShape(g orb.Geometry) (Shape, error) {
	var t ShapeType
	switch g.(type) {
	case orb.Point:
		t = TypePoint
	case orb.MultiPoint:
		t = TypeMultiPoint
	case orb.LineString:
		t = TypeLineString
	case orb.MultiLineString:
		t = TypeMultiLineString
	case orb.Polygon:
		t = TypePolygon
	case orb.MultiPolygon:
		t = TypeMultiPolygon
	case orb.Collection:
		t = TypeCollection
	default:
		return Shape{}, fmt.Errorf("unsupported geometry %T", g)
	}
	return Shape{Type: t, Geometry: g}, nil
}

// IsPoint reports whether the shape is a single point.
func (s Shape) IsPoint() bool { return s.Type == TypePoint }

// Point returns the coordinate of a point shape, the zero Point otherwise.
func (s Shape) Point() Point {
	p, _ := s.Geometry.(orb.Point)
	return fromOrb(p)
}

// Center returns the point indexed for distance search: the point itself, or
// the centroid of the shape.
func (s Shape) Center() Point {
	if s.IsPoint() {
		return s.Point()
	}
	c, _ := planar.CentroidArea(s.Geometry)
	return fromOrb(c)
}

// Members returns the shapes of a collection, flattening nested
// collections, or the shape itself.
func (s Shape) Members() []Shape {
	c, ok := s.Geometry.(orb.Collection)
	if !ok {
		return []Shape{s}
	}
	var out []Shape
	for _, g := range c {
		m, err := NewShape(g)
		if err != nil {
			continue
		}
		out = append(out, m.Members()...)
	}
	return out
}

// Coordinates renders a non-collection shape in the nested layout bleve's
// geoshape query expects.
func (s Shape) Coordinates() [][][][]float64 {
	switch g := s.Geometry.(type) {
	case orb.Point:
		return [][][][]float64{{{pair(g)}}}
	case orb.MultiPoint:
		return [][][][]float64{{pairs(g)}}
	case orb.LineString:
		return [][][][]float64{{pairs(g)}}
	case orb.Polygon:
		return [][][][]float64{polygonPairs(g)}
	case orb.MultiLineString:
		lines := make([][][]float64, len(g))
		for i, ls := range g {
			lines[i] = pairs(ls)
		}
		return [][][][]float64{lines}
	case orb.MultiPolygon:
		polys := make([][][][]float64, len(g))
		for i, p := range g {
			polys[i] = polygonPairs(p)
		}
		return polys
	}
	return nil
}

// CollectionCoordinates renders the members of a shape for bleve's
// geometry collection query.
func (s Shape) CollectionCoordinates() ([][][][][]float64, []string) {
	members := s.Members()
	coords := make([][][][][]float64, len(members))
	types := make([]string, len(members))
	for i, m := range members {
		coords[i] = m.Coordinates()
		types[i] = string(m.Type)
	}
	return coords, types
}

// GeoJSON renders the shape as the map bleve accepts for geoshape fields.
func (s Shape) GeoJSON() map[string]any {
	if s.Type == TypeCollection {
		members := s.Members()
		geometries := make([]any, len(members))
		for i, m := range members {
			geometries[i] = m.GeoJSON()
		}
		return map[string]any{"type": string(s.Type), "geometries": geometries}
	}

	coords := s.Coordinates()
	var c any
	switch s.Type {
	case TypePoint:
		c = coords[0][0][0]
	case TypeMultiPoint, TypeLineString:
		c = coords[0][0]
	case TypePolygon, TypeMultiLineString:
		c = coords[0]
	default:
		c = coords
	}
	return map[string]any{"type": string(s.Type), "coordinates": c}
}

func pair(p orb.Point) []float64 { return []float64{p.Lon(), p.Lat()} }

func pairs(pts []orb.Point) [][]float64 {
	out := make([][]float64, len(pts))
	for i, p := range pts {
		out[i] = pair(p)
	}
	return out
}

func polygonPairs(p orb.Polygon) [][][]float64 {
	rings := make([][][]float64, len(p))
	for i, r := range p {
		rings[i] = pairs(r)
	}
	return rings
}

// DistanceMetres returns the great-circle distance between two points.
func DistanceMetres(a, b Point) float64 {
	return bgeo.Haversin(a.Lon, a.Lat, b.Lon, b.Lat) * 1000
}

// MinDistanceMetres returns the distance from origin to the closest point of
// s. It is zero when a polygon contains origin. The closest point of an edge
// is found in an equirectangular projection centred on origin and then
// measured on the sphere, which is exact at the vertices and close for edges
// of up to a few hundred kilometres.
func MinDistanceMetres(origin Point, s Shape) float64 {
	return minDistance(origin, s.Geometry)
}

func minDistance(o Point, g orb.Geometry) float64 {
	best := math.Inf(1)
	switch g := g.(type) {
	case orb.Point:
		return DistanceMetres(o, fromOrb(g))
	case orb.MultiPoint:
		for _, p := range g {
			best = math.Min(best, DistanceMetres(o, fromOrb(p)))
		}
	case orb.LineString:
		return lineDistance(o, g)
	case orb.MultiLineString:
		for _, ls := range g {
			best = math.Min(best, lineDistance(o, ls))
		}
	case orb.Polygon:
		if planar.PolygonContains(g, o.toOrb()) {
			return 0
		}
		for _, r := range g {
			best = math.Min(best, lineDistance(o, r))
		}
	case orb.MultiPolygon:
		for _, p := range g {
			best = math.Min(best, minDistance(o, p))
		}
	case orb.Collection:
		for _, m := range g {
			best = math.Min(best, minDistance(o, m))
		}
	}
	return best
}

func lineDistance(o Point, pts []orb.Point) float64 {
	if len(pts) == 1 {
		return DistanceMetres(o, fromOrb(pts[0]))
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(pts); i++ {
		best = math.Min(best, segmentDistance(o, fromOrb(pts[i]), fromOrb(pts[i+1])))
	}
	return best
}

// segmentDistance measures from o to the closest point of segment ab.
func segmentDistance(o, a, b Point) float64 {
	k := math.Cos(o.Lat * math.Pi / 180)
	if k < 1e-9 {
		return math.Min(DistanceMetres(o, a), DistanceMetres(o, b))
	}
	ax, ay := lonDelta(a.Lon, o.Lon)*k, a.Lat-o.Lat
	bx, by := lonDelta(b.Lon, o.Lon)*k, b.Lat-o.Lat
	dx, dy := bx-ax, by-ay

	var t float64
	if l := dx*dx + dy*dy; l > 0 {
		t = -(ax*dx + ay*dy) / l
	}
	switch {
	case t <= 0:
		return DistanceMetres(o, a)
	case t >= 1:
		return DistanceMetres(o, b)
	}
	closest := Point{Lon: o.Lon + (ax+t*dx)/k, Lat: o.Lat + ay + t*dy}
	return DistanceMetres(o, closest)
}

// lonDelta returns lon-origin wrapped into [-180, 180).
func lonDelta(lon, origin float64) float64 {
	return math.Mod(lon-origin+540, 360) - 180
}
