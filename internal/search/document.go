package search

// Document is the searchable projection of one (resource, context) pair.
// Documents read from the engine are never updated in place: mutations build
// a copy so that index-only data is regenerated from the stored fields.
type Document struct {
	id         string
	resourceID string
	contextID  string

	names  []string
	values map[string][]string
	geo    map[string]bool
}

// NewDocument returns an empty document for the given ids.
func NewDocument(id, resourceID, contextID string) *Document {
	return &Document{
		id:         id,
		resourceID: resourceID,
		contextID:  contextID,
		values:     make(map[string][]string),
		geo:        make(map[string]bool),
	}
}

func (d *Document) ID() string         { return d.id }
func (d *Document) ResourceID() string { return d.resourceID }
func (d *Document) ContextID() string  { return d.contextID }

// AddField declares a property without adding a value.
func (d *Document) AddField(field string) {
	if _, ok := d.values[field]; !ok {
		d.names = append(d.names, field)
		d.values[field] = nil
	}
}

// AddProperty appends a text value.
func (d *Document) AddProperty(field, value string) {
	d.AddField(field)
	d.values[field] = append(d.values[field], value)
}

// AddGeoProperty appends a WKT value of a geo field.
func (d *Document) AddGeoProperty(field, value string) {
	d.AddProperty(field, value)
	d.geo[field] = true
}

// HasProperty reports whether value is stored under field.
func (d *Document) HasProperty(field, value string) bool {
	for _, v := range d.values[field] {
		if v == value {
			return true
		}
	}
	return false
}

// Property returns the values of field, nil if absent.
func (d *Document) Property(field string) []string { return d.values[field] }

// PropertyNames returns field names in insertion order.
func (d *Document) PropertyNames() []string { return d.names }

// IsGeoField reports whether field carries geometries.
func (d *Document) IsGeoField(field string) bool { return d.geo[field] }

// NumValues counts the property values across all fields.
func (d *Document) NumValues() int {
	n := 0
	for _, vs := range d.values {
		n += len(vs)
	}
	return n
}

// Copy returns a document with the same ids and stored properties.
func (d *Document) Copy() *Document {
	c, _ := d.CopyWithout(nil)
	return c
}

// CopyWithout copies the document while dropping removed field values. It
// reports whether anything was dropped.
func (d *Document) CopyWithout(removed map[string]map[string]bool) (*Document, bool) {
	c := NewDocument(d.id, d.resourceID, d.contextID)
	mutated := false
	for _, field := range d.names {
		c.AddField(field)
		if d.geo[field] {
			c.geo[field] = true
		}
		drop := removed[field]
		for _, v := range d.values[field] {
			if drop[v] {
				mutated = true
				continue
			}
			c.values[field] = append(c.values[field], v)
		}
	}
	return c, mutated
}

// propertyCache answers membership checks without rescanning value lists.
type propertyCache struct {
	doc  *Document
	seen map[string]map[string]bool
}

func newPropertyCache(doc *Document) *propertyCache {
	return &propertyCache{doc: doc, seen: make(map[string]map[string]bool)}
}

func (c *propertyCache) hasProperty(field, value string) bool {
	set, ok := c.seen[field]
	if !ok {
		set = make(map[string]bool, len(c.doc.values[field]))
		for _, v := range c.doc.values[field] {
			set[v] = true
		}
		c.seen[field] = set
	}
	return set[value]
}

func (c *propertyCache) add(field, value string) {
	if set, ok := c.seen[field]; ok {
		set[value] = true
	}
}
