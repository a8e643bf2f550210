package geo

import (
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
)

// Parser turns WKT text into a Shape.
type Parser interface {
	Parse(wkt string) (Shape, error)
}

// WKTParser parses the OGC simple feature geometries: points, line strings,
// polygons, their MULTI forms and geometry collections. A leading CRS IRI in
// angle brackets, as allowed in geo:wktLiteral, is skipped.
type WKTParser struct{}

var _ Parser = WKTParser{}

// Parse implements Parser.
func (WKTParser) Parse(text string) (Shape, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "<") {
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return Shape{}, malformed(text, "unterminated CRS IRI")
		}
		s = s[end+1:]
	}

	g, err := wkt.Unmarshal(normalizeWKT(s))
	if err != nil {
		return Shape{}, malformed(text, err.Error())
	}
	if reason := validate(g); reason != "" {
		return Shape{}, malformed(text, reason)
	}
	shape, err := NewShape(g)
	if err != nil {
		return Shape{}, malformed(text, err.Error())
	}
	return shape, nil
}

// normalizeWKT collapses whitespace runs and drops spaces around commas, the
// layout orb's collection splitter expects.
func normalizeWKT(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " ,", ",")
	return strings.ReplaceAll(s, ", ", ",")
}

// validate returns why g is not a usable geometry, or "" when it is.
func validate(g orb.Geometry) string {
	switch g := g.(type) {
	case orb.Point:
		return validPoint(g)
	case orb.MultiPoint:
		if len(g) == 0 {
			return "empty multipoint"
		}
		return validPoints(g)
	case orb.LineString:
		if len(g) < 2 {
			return "linestring needs at least two coordinates"
		}
		return validPoints(g)
	case orb.MultiLineString:
		if len(g) == 0 {
			return "empty multilinestring"
		}
		for _, ls := range g {
			if r := validate(ls); r != "" {
				return r
			}
		}
	case orb.Polygon:
		if len(g) == 0 {
			return "polygon without rings"
		}
		for _, ring := range g {
			if len(ring) < 4 || !ring.Closed() {
				return "polygon ring must be closed with at least four coordinates"
			}
			if r := validPoints(ring); r != "" {
				return r
			}
		}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return "empty multipolygon"
		}
		for _, p := range g {
			if r := validate(p); r != "" {
				return r
			}
		}
	case orb.Collection:
		if len(g) == 0 {
			return "empty geometry collection"
		}
		for _, member := range g {
			if r := validate(member); r != "" {
				return r
			}
		}
	}
	return ""
}

func validPoints(pts []orb.Point) string {
	for _, p := range pts {
		if r := validPoint(p); r != "" {
			return r
		}
	}
	return ""
}

func validPoint(p orb.Point) string {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return "coordinate out of range"
	}
	return ""
}

func malformed(text, reason string) error {
	return errors.New(errors.ErrCodeMalformedGeometry, "malformed WKT: "+reason, nil).
		WithDetail("wkt", text)
}

// CachedParser memoizes parse results of a delegate parser.
type CachedParser struct {
	delegate Parser
	cache    *lru.Cache[string, Shape]
}

var _ Parser = (*CachedParser)(nil)

// NewCachedParser wraps delegate with an LRU of the given size.
func NewCachedParser(delegate Parser, size int) (*CachedParser, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, Shape](size)
	if err != nil {
		return nil, err
	}
	return &CachedParser{delegate: delegate, cache: cache}, nil
}

// Parse implements Parser. Failures are not cached.
func (c *CachedParser) Parse(wkt string) (Shape, error) {
	if s, ok := c.cache.Get(wkt); ok {
		return s, nil
	}
	s, err := c.delegate.Parse(wkt)
	if err != nil {
		return Shape{}, err
	}
	c.cache.Add(wkt, s)
	return s, nil
}

// Len returns the number of cached shapes.
func (c *CachedParser) Len() int { return c.cache.Len() }
