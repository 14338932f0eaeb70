// Package mapdata holds the dataset of a conversion run: map elements in an
// arena addressed by stable handles, and the confirmed overlaps between them.
package mapdata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmtopology/pkg/geo"
)

// Handle addresses an element inside its Dataset
type Handle int

// Kind is the shape variant of an element
type Kind uint8

// Element kinds
const (
	KindNode Kind = iota + 1
	KindWay
	KindArea
)

// String returns the lowercase OSM-style name of the kind
func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindArea:
		return "area"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Element is a node (one position), a way (vertex chain) or an area
// (polygon with holes). Elements are immutable once created; their
// overlaps live in the owning Dataset. Tags and the geometry returned by
// Chain, Polygon, Anchors and Vertices are shared with every copy of the
// element and must not be modified.
type Element struct {
	ID   string
	Tags map[string]string

	kind    Kind
	pos     orb.Point
	chain   []orb.Point
	polygon orb.Polygon
	bounds  orb.Bound
}

// NewNode creates a point element
func NewNode(id string, pos orb.Point, tags map[string]string) Element {
	return Element{
		ID:     id,
		Tags:   tags,
		kind:   KindNode,
		pos:    pos,
		bounds: pos.Bound(),
	}
}

// NewWay creates a way from its vertex chain. The chain needs at least two
// distinct vertices.
func NewWay(id string, chain []orb.Point, tags map[string]string) (Element, error) {
	if len(geo.Segments(chain)) == 0 {
		return Element{}, fmt.Errorf("way %s: %w", id, geo.ErrEmptyGeometry)
	}
	c := make([]orb.Point, len(chain))
	copy(c, chain)
	return Element{
		ID:     id,
		Tags:   tags,
		kind:   KindWay,
		chain:  c,
		bounds: orb.LineString(c).Bound(),
	}, nil
}

// NewArea creates an area from a polygon whose first ring is the outer
// boundary and whose remaining rings are holes
func NewArea(id string, polygon orb.Polygon, tags map[string]string) (Element, error) {
	if len(polygon) == 0 {
		return Element{}, fmt.Errorf("area %s: %w", id, geo.ErrEmptyGeometry)
	}
	p, err := geo.NewPolygon(polygon[0], polygon[1:]...)
	if err != nil {
		return Element{}, fmt.Errorf("area %s: %w", id, err)
	}
	return Element{
		ID:      id,
		Tags:    tags,
		kind:    KindArea,
		polygon: p,
		bounds:  p[0].Bound(),
	}, nil
}

// Kind returns the shape variant
func (e Element) Kind() Kind { return e.kind }

// Position returns the location of a node
func (e Element) Position() orb.Point { return e.pos }

// Chain returns the vertex chain of a way. The slice is shared, not copied.
func (e Element) Chain() []orb.Point { return e.chain }

// Polygon returns the polygon of an area. The rings are shared, not copied.
func (e Element) Polygon() orb.Polygon { return e.polygon }

// Bounds returns the axis-aligned bounding box of the element
func (e Element) Bounds() orb.Bound { return e.bounds }

// Anchors returns the points that decide index placement: the position of
// a node, every vertex of a way, the outer boundary vertices of an area.
// Holes never influence placement.
func (e Element) Anchors() []orb.Point {
	switch e.kind {
	case KindNode:
		return []orb.Point{e.pos}
	case KindWay:
		return e.chain
	case KindArea:
		return geo.RingVertices(e.polygon[0])
	default:
		panic(fmt.Sprintf("mapdata: anchors requested for element %q of unknown kind %v", e.ID, e.kind))
	}
}

// Vertices returns every vertex of the element, including hole vertices
func (e Element) Vertices() []orb.Point {
	switch e.kind {
	case KindNode:
		return []orb.Point{e.pos}
	case KindWay:
		return e.chain
	case KindArea:
		return geo.Vertices(e.polygon)
	default:
		return nil
	}
}

// Segments returns the way segments, or all boundary segments of an area
func (e Element) Segments() []geo.Segment {
	switch e.kind {
	case KindWay:
		return geo.Segments(e.chain)
	case KindArea:
		return geo.BoundarySegments(e.polygon)
	default:
		return nil
	}
}

// Describe returns a short description used in logs, e.g.
// "way/42 [highway=residential]"
func (e Element) Describe() string {
	id := e.ID
	if id == "" {
		id = e.kind.String()
	}
	if len(e.Tags) == 0 {
		return id
	}

	keys := make([]string, 0, len(e.Tags))
	for k := range e.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(id)
	b.WriteString(" [")
	for i, k := range keys {
		if i == 3 {
			b.WriteString(", ...")
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(e.Tags[k])
	}
	b.WriteString("]")
	return b.String()
}
