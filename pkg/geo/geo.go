// Package geo provides the planar geometry used by the topology index:
// lat/lon request boxes, the local XZ projection, segments, polygons with
// holes, and the exact predicates the narrow phase relies on.
//
// XZ points are orb.Point values where index 0 is X (east) and index 1 is
// Z (north), both in meters relative to a projection origin.
package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the spherical Web Mercator radius in meters
const EarthRadius = 6378137.0

// MaxRequestSpan limits the lat/lon extent of a single region request (degrees)
const MaxRequestSpan = 0.5

// BoundingBox is a lat/lon rectangle used to request map regions
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// NewBoundingBox creates an empty bounding box that grows with ExtendWithPoint
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{
		MinLat: math.Inf(1),
		MinLon: math.Inf(1),
		MaxLat: math.Inf(-1),
		MaxLon: math.Inf(-1),
	}
}

// ExtendWithPoint grows the box to include the given coordinate
func (b *BoundingBox) ExtendWithPoint(lat, lon float64) {
	b.MinLat = math.Min(b.MinLat, lat)
	b.MinLon = math.Min(b.MinLon, lon)
	b.MaxLat = math.Max(b.MaxLat, lat)
	b.MaxLon = math.Max(b.MaxLon, lon)
}

// IsEmpty reports whether no point has been added to the box
func (b BoundingBox) IsEmpty() bool {
	return b.MinLat > b.MaxLat || b.MinLon > b.MaxLon
}

// Center returns the midpoint of the box
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Validate checks coordinate ranges, ordering and the maximum request span
func (b BoundingBox) Validate() error {
	if b.MinLat < -90 || b.MinLat > 90 || b.MaxLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %f..%f", b.MinLat, b.MaxLat)
	}
	if b.MinLon < -180 || b.MinLon > 180 || b.MaxLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %f..%f", b.MinLon, b.MaxLon)
	}
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return fmt.Errorf("minLat/minLon must be smaller than maxLat/maxLon")
	}
	if b.MaxLat-b.MinLat > MaxRequestSpan || b.MaxLon-b.MinLon > MaxRequestSpan {
		return fmt.Errorf("bounding box too large: span must not exceed %.1f degrees", MaxRequestSpan)
	}
	return nil
}

// Key returns a normalised string form used for caching region responses.
// Coordinates are rounded to 1e-5 degrees (about a meter).
func (b BoundingBox) Key() string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}
