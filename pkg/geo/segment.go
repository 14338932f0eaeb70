package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Segment is a straight line between two XZ points
type Segment struct {
	P1 orb.Point `json:"p1"`
	P2 orb.Point `json:"p2"`
}

// Length returns the euclidean length of the segment
func (s Segment) Length() float64 {
	return planar.Distance(s.P1, s.P2)
}

// Center returns the midpoint of the segment
func (s Segment) Center() orb.Point {
	return orb.Point{(s.P1[0] + s.P2[0]) / 2, (s.P1[1] + s.P2[1]) / 2}
}

// Reversed returns the segment with swapped endpoints
func (s Segment) Reversed() Segment {
	return Segment{P1: s.P2, P2: s.P1}
}

// Bound returns the axis-aligned bounding box of the segment
func (s Segment) Bound() orb.Bound {
	return orb.Bound{Min: s.P1, Max: s.P1}.Extend(s.P2)
}

// SameEndpoints reports whether both segments connect the same two points,
// in either direction
func (s Segment) SameEndpoints(o Segment) bool {
	return (s.P1 == o.P1 && s.P2 == o.P2) || (s.P1 == o.P2 && s.P2 == o.P1)
}

// HasEndpoint reports whether p is one of the segment's endpoints
func (s Segment) HasEndpoint(p orb.Point) bool {
	return s.P1 == p || s.P2 == p
}

// DistanceTo returns the distance between the segment and a point
func (s Segment) DistanceTo(p orb.Point) float64 {
	return planar.DistanceFromSegment(s.P1, s.P2, p)
}

// Intersection returns the crossing point of two segments
func (s Segment) Intersection(o Segment) (orb.Point, bool) {
	return SegmentIntersection(s.P1, s.P2, o.P1, o.P2)
}

// SegmentIntersection returns the point where segment a1-a2 crosses
// segment b1-b2. Endpoints count as part of the segments. Parallel and
// collinear segments never intersect; shared edges are detected separately
// through SameEndpoints.
func SegmentIntersection(a1, a2, b1, b2 orb.Point) (orb.Point, bool) {
	rx, rz := a2[0]-a1[0], a2[1]-a1[1]
	sx, sz := b2[0]-b1[0], b2[1]-b1[1]

	denom := rx*sz - rz*sx
	if denom == 0 {
		return orb.Point{}, false
	}

	qx, qz := b1[0]-a1[0], b1[1]-a1[1]
	t := (qx*sz - qz*sx) / denom
	u := (qx*rz - qz*rx) / denom

	if t < 0 || t > 1 || u < 0 || u > 1 {
		return orb.Point{}, false
	}

	return orb.Point{a1[0] + t*rx, a1[1] + t*rz}, true
}

// Segments splits a vertex chain into its consecutive segments.
// Zero-length segments from duplicate consecutive vertices are dropped.
func Segments(chain []orb.Point) []Segment {
	if len(chain) < 2 {
		return nil
	}
	out := make([]Segment, 0, len(chain)-1)
	for i := 0; i+1 < len(chain); i++ {
		if chain[i] == chain[i+1] {
			continue
		}
		out = append(out, Segment{P1: chain[i], P2: chain[i+1]})
	}
	return out
}
