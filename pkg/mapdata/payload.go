package mapdata

import (
	"fmt"
	"slices"
	"sort"

	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmtopology/pkg/geo"
)

// WayArea is the payload of an overlap between a way and an area
type WayArea struct {
	kind      OverlapKind
	chain     []orb.Point
	area      orb.Polygon
	positions []orb.Point
	segments  []geo.Segment
}

// NewWayArea creates a way-area payload. positions and segments are
// parallel: segments[i] is the area boundary segment crossed at
// positions[i].
func NewWayArea(kind OverlapKind, chain []orb.Point, area orb.Polygon, positions []orb.Point, segments []geo.Segment) *WayArea {
	if len(positions) != len(segments) {
		panic(fmt.Sprintf("mapdata: %d intersection positions but %d intersecting segments", len(positions), len(segments)))
	}
	return &WayArea{
		kind:      kind,
		chain:     chain,
		area:      area,
		positions: positions,
		segments:  segments,
	}
}

// Kind returns the overlap kind of the payload
func (w *WayArea) Kind() OverlapKind { return w.kind }

// IntersectionPositions returns a copy of the points where the way crosses
// the area boundary
func (w *WayArea) IntersectionPositions() []orb.Point { return slices.Clone(w.positions) }

// IntersectingSegments returns a copy of the crossed area boundary
// segments, parallel to IntersectionPositions
func (w *WayArea) IntersectingSegments() []geo.Segment { return slices.Clone(w.segments) }

// OverlappedSegments returns the parts of the way that run inside the area.
//
// For Intersect the way is cut at every intersection position and the
// pieces whose middle lies inside the area are kept. For Contain this is
// the whole way. A shared boundary segment does not overlap the interior,
// so ShareSegment yields nothing.
func (w *WayArea) OverlappedSegments() []geo.Segment {
	switch w.kind {
	case Contain:
		return geo.Segments(w.chain)
	case Intersect:
	default:
		return nil
	}

	total := geo.ChainLength(w.chain)
	cuts := make([]float64, 0, len(w.positions)+2)
	cuts = append(cuts, 0, total)
	for _, p := range w.positions {
		cuts = append(cuts, geo.LocateOnChain(w.chain, p))
	}
	sort.Float64s(cuts)

	eps := total * 1e-9
	var out []geo.Segment
	for i := 0; i+1 < len(cuts); i++ {
		s0, s1 := cuts[i], cuts[i+1]
		if s1-s0 <= eps {
			continue
		}
		mid := geo.PointAlongChain(w.chain, (s0+s1)/2)
		if !geo.Contains(w.area, mid) {
			continue
		}
		out = append(out, geo.Segments(geo.SubChain(w.chain, s0, s1))...)
	}
	return out
}

// SharedSegments returns the area boundary segments that coincide with a
// segment of the way. It panics if a ShareSegment payload has no such
// segment, since the overlap would then be inconsistent with its geometry.
func (w *WayArea) SharedSegments() []geo.Segment {
	if w.kind != ShareSegment {
		return nil
	}
	shared := matchingSegments(geo.BoundarySegments(w.area), geo.Segments(w.chain))
	if len(shared) == 0 {
		panic(fmt.Sprintf("mapdata: way-area %s overlap without a shared boundary segment", w.kind))
	}
	return shared
}

// WayWay is the payload of an overlap between two ways
type WayWay struct {
	kind          OverlapKind
	first, second []orb.Point
	positions     []orb.Point
}

// NewWayWay creates a way-way payload from both vertex chains
func NewWayWay(kind OverlapKind, first, second []orb.Point, positions []orb.Point) *WayWay {
	return &WayWay{kind: kind, first: first, second: second, positions: positions}
}

// Kind returns the overlap kind of the payload
func (w *WayWay) Kind() OverlapKind { return w.kind }

// IntersectionPositions returns a copy of the crossings of the two ways
func (w *WayWay) IntersectionPositions() []orb.Point { return slices.Clone(w.positions) }

// SharedSegments returns the segments of the first way that the second way
// also runs along. It panics if a ShareSegment payload has none.
func (w *WayWay) SharedSegments() []geo.Segment {
	if w.kind != ShareSegment {
		return nil
	}
	shared := matchingSegments(geo.Segments(w.first), geo.Segments(w.second))
	if len(shared) == 0 {
		panic(fmt.Sprintf("mapdata: way-way %s overlap without a shared segment", w.kind))
	}
	return shared
}

// matchingSegments returns the segments of from that connect the same two
// vertices as some segment of other
func matchingSegments(from, other []geo.Segment) []geo.Segment {
	var out []geo.Segment
	for _, s := range from {
		for _, o := range other {
			if s.SameEndpoints(o) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
