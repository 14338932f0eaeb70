package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrEmptyGeometry is returned when a shape has too few distinct vertices
var ErrEmptyGeometry = errors.New("geometry has too few distinct vertices")

// NewPolygon builds a polygon with holes from an outer ring and optional
// inner rings. Rings are closed if needed; a ring needs at least three
// distinct vertices.
func NewPolygon(outer orb.Ring, holes ...orb.Ring) (orb.Polygon, error) {
	o, err := closeRing(outer)
	if err != nil {
		return nil, fmt.Errorf("outer ring: %w", err)
	}
	poly := orb.Polygon{o}
	for i, h := range holes {
		r, err := closeRing(h)
		if err != nil {
			return nil, fmt.Errorf("hole %d: %w", i, err)
		}
		poly = append(poly, r)
	}
	return poly, nil
}

func closeRing(r orb.Ring) (orb.Ring, error) {
	distinct := make(map[orb.Point]struct{}, len(r))
	for _, p := range r {
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, ErrEmptyGeometry
	}
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	if !out.Closed() {
		out = append(out, out[0])
	}
	return out, nil
}

// RingVertices returns the vertices of a closed ring without the
// repeated closing vertex
func RingVertices(r orb.Ring) []orb.Point {
	if len(r) > 1 && r.Closed() {
		return r[:len(r)-1]
	}
	return r
}

// Vertices returns the vertices of all rings of the polygon
func Vertices(p orb.Polygon) []orb.Point {
	var out []orb.Point
	for _, r := range p {
		out = append(out, RingVertices(r)...)
	}
	return out
}

// OuterSegments returns the segments of the outer boundary
func OuterSegments(p orb.Polygon) []Segment {
	if len(p) == 0 {
		return nil
	}
	return Segments(p[0])
}

// BoundarySegments returns the segments of the outer ring and all holes
func BoundarySegments(p orb.Polygon) []Segment {
	var out []Segment
	for _, r := range p {
		out = append(out, Segments(r)...)
	}
	return out
}

// Contains reports whether the point lies inside the polygon and outside
// all of its holes. Points on the outer boundary count as inside.
func Contains(p orb.Polygon, pt orb.Point) bool {
	return planar.PolygonContains(p, pt)
}

// IntersectionPositions returns every point where the segment crosses a
// ring of the polygon
func IntersectionPositions(p orb.Polygon, s Segment) []orb.Point {
	var out []orb.Point
	for _, b := range BoundarySegments(p) {
		if pos, ok := s.Intersection(b); ok {
			out = append(out, pos)
		}
	}
	return out
}

// IntersectsSegment reports whether the segment crosses any ring of the polygon
func IntersectsSegment(p orb.Polygon, s Segment) bool {
	for _, b := range BoundarySegments(p) {
		if _, ok := s.Intersection(b); ok {
			return true
		}
	}
	return false
}

// ContainsSegment reports whether the segment lies completely inside the polygon
func ContainsSegment(p orb.Polygon, s Segment) bool {
	return !IntersectsSegment(p, s) && Contains(p, s.Center())
}

// ContainsRing reports whether every vertex and every edge midpoint of the
// ring lies inside the polygon. An edge can still leave a concave polygon
// and re-enter it; callers rule that out with the crossing positions.
func ContainsRing(p orb.Polygon, r orb.Ring) bool {
	for _, v := range RingVertices(r) {
		if !Contains(p, v) {
			return false
		}
	}
	for _, s := range Segments(r) {
		if !Contains(p, s.Center()) {
			return false
		}
	}
	return true
}

// PolygonIntersectionPositions returns every point where a ring of p
// crosses a ring of q
func PolygonIntersectionPositions(p, q orb.Polygon) []orb.Point {
	qSegments := BoundarySegments(q)
	qBounds := make([]orb.Bound, len(qSegments))
	for i, s := range qSegments {
		qBounds[i] = s.Bound()
	}

	var out []orb.Point
	for _, a := range BoundarySegments(p) {
		ab := a.Bound()
		for i, b := range qSegments {
			if !ab.Intersects(qBounds[i]) {
				continue
			}
			if pos, ok := a.Intersection(b); ok {
				out = append(out, pos)
			}
		}
	}
	return out
}
