package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// ChainLength returns the length of a vertex chain
func ChainLength(chain []orb.Point) float64 {
	var l float64
	for _, s := range Segments(chain) {
		l += s.Length()
	}
	return l
}

// LocateOnChain returns the distance along the chain, measured from its
// first vertex, of the chain point closest to p
func LocateOnChain(chain []orb.Point, p orb.Point) float64 {
	var (
		cum      float64
		best     float64
		bestDist = math.Inf(1)
	)
	for _, s := range Segments(chain) {
		l := s.Length()
		if d := s.DistanceTo(p); d < bestDist {
			dx, dz := s.P2[0]-s.P1[0], s.P2[1]-s.P1[1]
			t := ((p[0]-s.P1[0])*dx + (p[1]-s.P1[1])*dz) / (l * l)
			t = math.Max(0, math.Min(1, t))
			best = cum + t*l
			bestDist = d
		}
		cum += l
	}
	return best
}

// PointAlongChain returns the point at distance s along the chain. Values
// beyond either end are clamped to the end vertices.
func PointAlongChain(chain []orb.Point, s float64) orb.Point {
	if len(chain) == 0 {
		return orb.Point{}
	}
	if s <= 0 {
		return chain[0]
	}
	var cum float64
	for _, seg := range Segments(chain) {
		l := seg.Length()
		if s <= cum+l {
			t := (s - cum) / l
			return orb.Point{
				seg.P1[0] + t*(seg.P2[0]-seg.P1[0]),
				seg.P1[1] + t*(seg.P2[1]-seg.P1[1]),
			}
		}
		cum += l
	}
	return chain[len(chain)-1]
}

// SubChain returns the portion of the chain between the distances s0 and
// s1, with interpolated end points
func SubChain(chain []orb.Point, s0, s1 float64) []orb.Point {
	out := []orb.Point{PointAlongChain(chain, s0)}
	var cum float64
	for _, seg := range Segments(chain) {
		cum += seg.Length()
		if cum > s0 && cum < s1 {
			out = append(out, seg.P2)
		}
	}
	return append(out, PointAlongChain(chain, s1))
}
