// Package loader turns OpenStreetMap data into a topology dataset.
//
// Features are converted with osmgeojson, so multipolygon relations are
// assembled into polygons with holes. Coordinates are projected into a
// local metric XZ plane centered on the data.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"

	"github.com/NERVsystems/osmtopology/pkg/geo"
	"github.com/NERVsystems/osmtopology/pkg/mapdata"
	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/topology"
)

// Skip reasons reported in logs and metrics
const (
	SkipUntagged    = "untagged"
	SkipDegenerate  = "degenerate_geometry"
	SkipUnsupported = "unsupported_geometry"
)

// ErrNoData is returned when the input holds nothing to convert
var ErrNoData = errors.New("no map data")

// Options configure the conversion
type Options struct {
	// KeepUntagged also converts features without tags
	KeepUntagged bool
	Logger       *slog.Logger
}

// Stats counts converted and skipped features
type Stats struct {
	Nodes   int            `json:"nodes"`
	Ways    int            `json:"ways"`
	Areas   int            `json:"areas"`
	Skipped map[string]int `json:"skipped,omitempty"`
}

// Region is a converted map region
type Region struct {
	Dataset    *mapdata.Dataset
	Projection *geo.Projection
	Stats      Stats
}

type skipError struct {
	reason string
	err    error
}

func (e *skipError) Error() string {
	if e.err == nil {
		return e.reason
	}
	return e.reason + ": " + e.err.Error()
}

func (e *skipError) Unwrap() error { return e.err }

// FromOSM converts OSM data into a dataset. The data boundary is taken
// from the document's bounds when present.
func FromOSM(ctx context.Context, o *osm.OSM, opts Options) (*Region, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "loader")

	fc, err := osmgeojson.Convert(o,
		osmgeojson.NoMeta(true),
		osmgeojson.NoRelationMembership(true))
	if err != nil {
		return nil, fmt.Errorf("convert osm data: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, ErrNoData
	}

	var lonLat orb.Bound
	if o.Bounds != nil {
		lonLat = orb.Bound{
			Min: orb.Point{o.Bounds.MinLon, o.Bounds.MinLat},
			Max: orb.Point{o.Bounds.MaxLon, o.Bounds.MaxLat},
		}
	} else {
		lonLat = featureBounds(fc.Features)
	}
	center := lonLat.Center()
	proj := geo.NewProjection(center.Lat(), center.Lon())

	region := &Region{
		Dataset:    mapdata.NewDataset(),
		Projection: proj,
		Stats:      Stats{Skipped: make(map[string]int)},
	}
	if o.Bounds != nil {
		region.Dataset.SetBounds(proj.Bound(lonLat))
	}

	describe := func(f *geojson.Feature) string { return fmt.Sprint(f.ID) }
	failures, err := topology.Iterate(ctx, logger, "load", fc.Features, describe, func(f *geojson.Feature) error {
		err := region.add(f, proj, opts.KeepUntagged)
		var skip *skipError
		if errors.As(err, &skip) {
			region.Stats.Skipped[skip.reason]++
			monitoring.RecordSkippedFeature(skip.reason)
			logger.Debug("skipping feature", "feature", describe(f), "reason", skip)
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if failures > 0 {
		region.Stats.Skipped["failed"] += failures
	}

	logger.Info("region loaded",
		"nodes", region.Stats.Nodes,
		"ways", region.Stats.Ways,
		"areas", region.Stats.Areas,
		"skipped", region.Stats.Skipped)
	return region, nil
}

func (r *Region) add(f *geojson.Feature, proj *geo.Projection, keepUntagged bool) error {
	id := fmt.Sprint(f.ID)
	tags, _ := f.Properties["tags"].(map[string]string)
	if len(tags) == 0 && !keepUntagged {
		return &skipError{reason: SkipUntagged}
	}

	switch g := f.Geometry.(type) {
	case orb.Point:
		r.Dataset.Add(mapdata.NewNode(id, proj.ToXZ(g), tags))
		r.count(mapdata.KindNode)
	case orb.LineString:
		return r.addWay(id, proj.LineString(g), tags)
	case orb.MultiLineString:
		for i, ls := range g {
			if err := r.addWay(fmt.Sprintf("%s#%d", id, i), proj.LineString(ls), tags); err != nil {
				return err
			}
		}
	case orb.Polygon:
		return r.addArea(id, proj.Polygon(g), tags)
	case orb.MultiPolygon:
		for i, p := range g {
			if err := r.addArea(fmt.Sprintf("%s#%d", id, i), proj.Polygon(p), tags); err != nil {
				return err
			}
		}
	default:
		return &skipError{reason: SkipUnsupported, err: fmt.Errorf("%T", f.Geometry)}
	}
	return nil
}

func (r *Region) addWay(id string, ls orb.LineString, tags map[string]string) error {
	e, err := mapdata.NewWay(id, ls, tags)
	if err != nil {
		return &skipError{reason: SkipDegenerate, err: err}
	}
	r.Dataset.Add(e)
	r.count(mapdata.KindWay)
	return nil
}

func (r *Region) addArea(id string, p orb.Polygon, tags map[string]string) error {
	e, err := mapdata.NewArea(id, p, tags)
	if err != nil {
		return &skipError{reason: SkipDegenerate, err: err}
	}
	r.Dataset.Add(e)
	r.count(mapdata.KindArea)
	return nil
}

func (r *Region) count(k mapdata.Kind) {
	switch k {
	case mapdata.KindNode:
		r.Stats.Nodes++
	case mapdata.KindWay:
		r.Stats.Ways++
	case mapdata.KindArea:
		r.Stats.Areas++
	}
	monitoring.RecordLoadedElement(k.String())
}

func featureBounds(features []*geojson.Feature) orb.Bound {
	b := features[0].Geometry.Bound()
	for _, f := range features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}
