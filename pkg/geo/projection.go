package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Projection maps lat/lon coordinates to a local metric XZ plane centered
// on an origin. It uses Web Mercator scaled by cos(origin latitude), which
// keeps distances close to meters for regions of a few kilometers.
type Projection struct {
	origin orb.Point // mercator coordinates of the origin
	scale  float64
}

// NewProjection creates a projection with its origin at the given coordinate
func NewProjection(lat, lon float64) *Projection {
	return &Projection{
		origin: project.WGS84.ToMercator(orb.Point{lon, lat}),
		scale:  math.Cos(lat * math.Pi / 180),
	}
}

// ToXZ projects a lon/lat point (orb order) into the XZ plane
func (p *Projection) ToXZ(ll orb.Point) orb.Point {
	m := project.WGS84.ToMercator(ll)
	return orb.Point{
		(m[0] - p.origin[0]) * p.scale,
		(m[1] - p.origin[1]) * p.scale,
	}
}

// ToLonLat reverses ToXZ
func (p *Projection) ToLonLat(xz orb.Point) orb.Point {
	m := orb.Point{
		xz[0]/p.scale + p.origin[0],
		xz[1]/p.scale + p.origin[1],
	}
	return project.Mercator.ToWGS84(m)
}

// Ring projects every vertex of a lon/lat ring
func (p *Projection) Ring(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, pt := range r {
		out[i] = p.ToXZ(pt)
	}
	return out
}

// LineString projects every vertex of a lon/lat line string
func (p *Projection) LineString(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, pt := range ls {
		out[i] = p.ToXZ(pt)
	}
	return out
}

// Bound projects the corners of a lon/lat bound
func (p *Projection) Bound(b orb.Bound) orb.Bound {
	return orb.Bound{Min: p.ToXZ(b.Min), Max: p.ToXZ(b.Max)}
}

// Polygon projects every ring of a lon/lat polygon
func (p *Projection) Polygon(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, r := range poly {
		out[i] = p.Ring(r)
	}
	return out
}
