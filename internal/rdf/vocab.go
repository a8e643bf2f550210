package rdf

// XML Schema datatypes.
const (
	XSDNamespace = "http://www.w3.org/2001/XMLSchema#"

	XSDString  IRI = XSDNamespace + "string"
	XSDBoolean IRI = XSDNamespace + "boolean"
	XSDInteger IRI = XSDNamespace + "integer"
	XSDDecimal IRI = XSDNamespace + "decimal"
	XSDFloat   IRI = XSDNamespace + "float"
	XSDDouble  IRI = XSDNamespace + "double"
)

// RDF vocabulary.
const (
	RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

	RDFType       IRI = RDFNamespace + "type"
	RDFLangString IRI = RDFNamespace + "langString"
)

// GeoSPARQL ontology.
const (
	GeoNamespace = "http://www.opengis.net/ont/geosparql#"

	GeoAsWKT      IRI = GeoNamespace + "asWKT"
	GeoWKTLiteral IRI = GeoNamespace + "wktLiteral"
)

// GeoSPARQL functions.
const (
	GeofNamespace = "http://www.opengis.net/def/function/geosparql/"

	GeofDistance     IRI = GeofNamespace + "distance"
	GeofSfEquals     IRI = GeofNamespace + "sfEquals"
	GeofSfDisjoint   IRI = GeofNamespace + "sfDisjoint"
	GeofSfIntersects IRI = GeofNamespace + "sfIntersects"
	GeofSfTouches    IRI = GeofNamespace + "sfTouches"
	GeofSfCrosses    IRI = GeofNamespace + "sfCrosses"
	GeofSfWithin     IRI = GeofNamespace + "sfWithin"
	GeofSfContains   IRI = GeofNamespace + "sfContains"
	GeofSfOverlaps   IRI = GeofNamespace + "sfOverlaps"
	GeofEhCovers     IRI = GeofNamespace + "ehCovers"
	GeofEhCoveredBy  IRI = GeofNamespace + "ehCoveredBy"
)

// OGC units of measure.
const (
	UOMNamespace = "http://www.opengis.net/def/uom/OGC/1.0/"

	UOMMetre  IRI = UOMNamespace + "metre"
	UOMRadian IRI = UOMNamespace + "radian"
	UOMDegree IRI = UOMNamespace + "degree"
)

// Search vocabulary for magic predicates.
const (
	SearchNamespace = "http://www.openrdf.org/contrib/lucenesail#"

	SearchMatches     IRI = SearchNamespace + "matches"
	SearchQuery       IRI = SearchNamespace + "query"
	SearchProperty    IRI = SearchNamespace + "property"
	SearchScore       IRI = SearchNamespace + "score"
	SearchSnippet     IRI = SearchNamespace + "snippet"
	SearchIndexID     IRI = SearchNamespace + "indexid"
	SearchBoost       IRI = SearchNamespace + "boost"
	SearchLuceneQuery IRI = SearchNamespace + "LuceneQuery"
)
