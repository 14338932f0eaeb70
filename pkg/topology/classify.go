package topology

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/NERVsystems/osmtopology/pkg/geo"
	"github.com/NERVsystems/osmtopology/pkg/mapdata"
)

const (
	// crossings closer than this fraction of a way segment's length to a
	// vertex shared with the area do not count as intersections
	connectedSegmentTolerance = 0.01
	// crossings closer than this to a vertex shared by two areas do not
	// count as intersections
	commonVertexTolerance = 0.01
	// positions closer than this are reported once
	samePositionTolerance = 1e-9
)

// Classify runs the narrow-phase test for two elements and returns the
// overlaps between them, none when they do not overlap. A way can yield
// two overlaps with one partner: SHARE_SEGMENT for the segments the two
// have in common and INTERSECT or CONTAIN for the rest of its chain. The
// participants are ordered by the payload: way before area, way before way
// in argument order, container before contained element.
func Classify(ds *mapdata.Dataset, a, b mapdata.Handle) ([]mapdata.Overlap, error) {
	ea, eb := ds.Element(a), ds.Element(b)

	switch {
	case ea.Kind() == mapdata.KindWay && eb.Kind() == mapdata.KindWay:
		return classifyWayWay(a, ea, b, eb), nil
	case ea.Kind() == mapdata.KindWay && eb.Kind() == mapdata.KindArea:
		return classifyWayArea(a, ea, b, eb), nil
	case ea.Kind() == mapdata.KindArea && eb.Kind() == mapdata.KindWay:
		return classifyWayArea(b, eb, a, ea), nil
	case ea.Kind() == mapdata.KindArea && eb.Kind() == mapdata.KindArea:
		return classifyAreaArea(a, ea, b, eb), nil
	case ea.Kind() == mapdata.KindNode && eb.Kind() == mapdata.KindArea:
		return classifyNodeArea(a, ea, b, eb), nil
	case ea.Kind() == mapdata.KindArea && eb.Kind() == mapdata.KindNode:
		return classifyNodeArea(b, eb, a, ea), nil
	case ea.Kind() == mapdata.KindNode && (eb.Kind() == mapdata.KindNode || eb.Kind() == mapdata.KindWay),
		ea.Kind() == mapdata.KindWay && eb.Kind() == mapdata.KindNode:
		return nil, nil
	default:
		return nil, fmt.Errorf("cannot classify %s against %s", ea.Kind(), eb.Kind())
	}
}

func classifyWayWay(a mapdata.Handle, ea mapdata.Element, b mapdata.Handle, eb mapdata.Element) []mapdata.Overlap {
	if !ea.Bounds().Intersects(eb.Bounds()) {
		return nil
	}

	var overlaps []mapdata.Overlap
	segsA, segsB := ea.Segments(), eb.Segments()
	if sharesSegment(segsA, segsB) {
		overlaps = append(overlaps, mapdata.NewWayWayOverlap(a, b,
			mapdata.NewWayWay(mapdata.ShareSegment, ea.Chain(), eb.Chain(), nil)))
		segsA, segsB = withoutShared(segsA, segsB), withoutShared(segsB, segsA)
	}

	var positions []orb.Point
	for _, sa := range segsA {
		ba := sa.Bound()
		for _, sb := range segsB {
			// segments meeting at a shared vertex are connected, not crossing
			if sa.HasEndpoint(sb.P1) || sa.HasEndpoint(sb.P2) {
				continue
			}
			if !ba.Intersects(sb.Bound()) {
				continue
			}
			if pos, ok := sa.Intersection(sb); ok {
				positions = appendUnique(positions, pos)
			}
		}
	}

	if len(positions) > 0 {
		overlaps = append(overlaps, mapdata.NewWayWayOverlap(a, b,
			mapdata.NewWayWay(mapdata.Intersect, ea.Chain(), eb.Chain(), positions)))
	}
	return overlaps
}

func classifyWayArea(w mapdata.Handle, way mapdata.Element, a mapdata.Handle, area mapdata.Element) []mapdata.Overlap {
	if !way.Bounds().Intersects(area.Bounds()) {
		return nil
	}

	chain, polygon := way.Chain(), area.Polygon()
	waySegments := way.Segments()
	areaSegments := area.Segments()

	var overlaps []mapdata.Overlap
	if sharesSegment(waySegments, areaSegments) {
		overlaps = append(overlaps, mapdata.NewWayAreaOverlap(w, a,
			mapdata.NewWayArea(mapdata.ShareSegment, chain, polygon, nil, nil)))
		waySegments = withoutShared(waySegments, areaSegments)
		if len(waySegments) == 0 {
			return overlaps
		}
	}

	common := commonVertices(way.Vertices(), area.Vertices())

	var (
		positions  []orb.Point
		segments   []geo.Segment
		intersects bool
		contains   = true
	)
	for _, ws := range waySegments {
		tolerance := ws.Length() * connectedSegmentTolerance
		bound := ws.Bound()
		for _, as := range areaSegments {
			if !bound.Intersects(as.Bound()) {
				continue
			}
			pos, ok := ws.Intersection(as)
			if !ok {
				continue
			}
			if !nearCommonEndpoint(ws, pos, common, tolerance) {
				intersects = true
			}
			if !containsPair(positions, segments, pos, as) {
				positions = append(positions, pos)
				segments = append(segments, as)
			}
		}
		if !geo.Contains(polygon, ws.Center()) {
			contains = false
		}
	}

	switch {
	case intersects:
		overlaps = append(overlaps, mapdata.NewWayAreaOverlap(w, a,
			mapdata.NewWayArea(mapdata.Intersect, chain, polygon, positions, segments)))
	case contains:
		overlaps = append(overlaps, mapdata.NewWayAreaOverlap(w, a,
			mapdata.NewWayArea(mapdata.Contain, chain, polygon, nil, nil)))
	}
	return overlaps
}

// classifyAreaArea reports at most one overlap. A common boundary
// segment wins over crossings and containment.
func classifyAreaArea(a mapdata.Handle, ea mapdata.Element, b mapdata.Handle, eb mapdata.Element) []mapdata.Overlap {
	if !ea.Bounds().Intersects(eb.Bounds()) {
		return nil
	}

	if sharesSegment(ea.Segments(), eb.Segments()) {
		return []mapdata.Overlap{mapdata.NewOverlap(a, b, mapdata.ShareSegment, nil)}
	}

	pa, pb := ea.Polygon(), eb.Polygon()
	common := commonVertices(ea.Vertices(), eb.Vertices())

	var positions []orb.Point
	for _, pos := range geo.PolygonIntersectionPositions(pa, pb) {
		if nearAny(pos, common, commonVertexTolerance) {
			continue
		}
		positions = appendUnique(positions, pos)
	}

	// outlines crossing away from common vertices rule out containment,
	// however many vertices of one area lie inside the other
	switch {
	case len(positions) > 0:
		return []mapdata.Overlap{mapdata.NewOverlap(a, b, mapdata.Intersect, positions)}
	case geo.ContainsRing(pa, pb[0]):
		return []mapdata.Overlap{mapdata.NewOverlap(a, b, mapdata.Contain, nil)}
	case geo.ContainsRing(pb, pa[0]):
		return []mapdata.Overlap{mapdata.NewOverlap(b, a, mapdata.Contain, nil)}
	default:
		return nil
	}
}

func classifyNodeArea(n mapdata.Handle, node mapdata.Element, a mapdata.Handle, area mapdata.Element) []mapdata.Overlap {
	if !geo.Contains(area.Polygon(), node.Position()) {
		return nil
	}
	return []mapdata.Overlap{mapdata.NewOverlap(a, n, mapdata.Contain, nil)}
}

func sharesSegment(a, b []geo.Segment) bool {
	for _, sa := range a {
		for _, sb := range b {
			if sa.SameEndpoints(sb) {
				return true
			}
		}
	}
	return false
}

// withoutShared returns the segments of a that have no counterpart in b
func withoutShared(a, b []geo.Segment) []geo.Segment {
	out := make([]geo.Segment, 0, len(a))
	for _, sa := range a {
		if !sharesSegment([]geo.Segment{sa}, b) {
			out = append(out, sa)
		}
	}
	return out
}

func commonVertices(a, b []orb.Point) []orb.Point {
	set := make(map[orb.Point]struct{}, len(b))
	for _, p := range b {
		set[p] = struct{}{}
	}
	var out []orb.Point
	for _, p := range a {
		if _, ok := set[p]; ok {
			out = append(out, p)
			delete(set, p)
		}
	}
	return out
}

// nearCommonEndpoint reports whether pos lies within tolerance of an
// endpoint of s that the way shares with the area
func nearCommonEndpoint(s geo.Segment, pos orb.Point, common []orb.Point, tolerance float64) bool {
	for _, c := range common {
		if !s.HasEndpoint(c) {
			continue
		}
		if planar.Distance(pos, c) <= tolerance {
			return true
		}
	}
	return false
}

func nearAny(pos orb.Point, points []orb.Point, tolerance float64) bool {
	for _, p := range points {
		if planar.Distance(pos, p) < tolerance {
			return true
		}
	}
	return false
}

func appendUnique(positions []orb.Point, pos orb.Point) []orb.Point {
	if nearAny(pos, positions, samePositionTolerance) {
		return positions
	}
	return append(positions, pos)
}

func containsPair(positions []orb.Point, segments []geo.Segment, pos orb.Point, s geo.Segment) bool {
	for i := range positions {
		if segments[i] == s && planar.Distance(positions[i], pos) < samePositionTolerance {
			return true
		}
	}
	return false
}
