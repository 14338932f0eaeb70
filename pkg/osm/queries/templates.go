// Package queries builds Overpass QL queries for map regions.
package queries

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NERVsystems/osmtopology/pkg/geo"
)

// DefaultTimeout is the server-side query timeout in seconds
const DefaultTimeout = 25

// OverpassBuilder provides a fluent interface for building Overpass API
// queries over a bounding box
type OverpassBuilder struct {
	format   string
	timeout  int
	maxSize  int64
	bbox     *geo.BoundingBox
	elements []string
	recurse  bool
	output   string
}

// NewOverpassBuilder creates a builder producing XML output, the format
// the loader reads
func NewOverpassBuilder() *OverpassBuilder {
	return &OverpassBuilder{
		format:  "xml",
		timeout: DefaultTimeout,
		output:  "body",
	}
}

// WithFormat sets the output format ("xml" or "json")
func (b *OverpassBuilder) WithFormat(format string) *OverpassBuilder {
	b.format = format
	return b
}

// WithTimeout sets the query timeout in seconds
func (b *OverpassBuilder) WithTimeout(seconds int) *OverpassBuilder {
	b.timeout = seconds
	return b
}

// WithMaxSize limits the server-side memory of the query in bytes
func (b *OverpassBuilder) WithMaxSize(bytes int64) *OverpassBuilder {
	b.maxSize = bytes
	return b
}

// WithBBox restricts every statement of the query to the box
func (b *OverpassBuilder) WithBBox(bbox geo.BoundingBox) *OverpassBuilder {
	b.bbox = &bbox
	return b
}

// WithNodes selects nodes carrying the given tags. An empty value only
// requires the key to be present.
func (b *OverpassBuilder) WithNodes(tags map[string]string) *OverpassBuilder {
	b.elements = append(b.elements, "node"+tagFilters(tags))
	return b
}

// WithWays selects ways carrying the given tags
func (b *OverpassBuilder) WithWays(tags map[string]string) *OverpassBuilder {
	b.elements = append(b.elements, "way"+tagFilters(tags))
	return b
}

// WithRelations selects relations carrying the given tags
func (b *OverpassBuilder) WithRelations(tags map[string]string) *OverpassBuilder {
	b.elements = append(b.elements, "relation"+tagFilters(tags))
	return b
}

// WithRecurseDown adds every node and way referenced by the selection, so
// ways and multipolygons crossing the box edge are complete
func (b *OverpassBuilder) WithRecurseDown() *OverpassBuilder {
	b.recurse = true
	return b
}

// WithOutput sets the verbosity of the out statement (default "body")
func (b *OverpassBuilder) WithOutput(output string) *OverpassBuilder {
	b.output = output
	return b
}

// Build returns the complete Overpass query string
func (b *OverpassBuilder) Build() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "[out:%s][timeout:%d]", b.format, b.timeout)
	if b.maxSize > 0 {
		fmt.Fprintf(&buf, "[maxsize:%d]", b.maxSize)
	}
	if b.bbox != nil {
		fmt.Fprintf(&buf, "[bbox:%f,%f,%f,%f]", b.bbox.MinLat, b.bbox.MinLon, b.bbox.MaxLat, b.bbox.MaxLon)
	}
	buf.WriteString(";")

	buf.WriteString("(")
	for _, e := range b.elements {
		buf.WriteString(e)
		buf.WriteString(";")
	}
	buf.WriteString(");")

	if b.recurse {
		buf.WriteString("(._;>;);")
	}
	fmt.Fprintf(&buf, "out %s;", b.output)

	return buf.String()
}

// RegionQuery returns the query for every node, way and relation in the
// box together with everything they reference
func RegionQuery(bbox geo.BoundingBox, timeout int) string {
	return NewOverpassBuilder().
		WithTimeout(timeout).
		WithBBox(bbox).
		WithNodes(nil).
		WithWays(nil).
		WithRelations(nil).
		WithRecurseDown().
		Build()
}

// tagFilters renders tag filters in key order
func tagFilters(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		if v := tags[k]; v != "" {
			fmt.Fprintf(&sb, "[%q=%q]", k, v)
		} else {
			fmt.Fprintf(&sb, "[%q]", k)
		}
	}
	return sb.String()
}
