package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"

	"github.com/NERVsystems/osmtopology/pkg/core"
	"github.com/NERVsystems/osmtopology/pkg/geo"
	"github.com/NERVsystems/osmtopology/pkg/loader"
	"github.com/NERVsystems/osmtopology/pkg/mapdata"
	"github.com/NERVsystems/osmtopology/pkg/topology"
)

const (
	defaultOverlapLimit = 50
	maxOverlapLimit     = 1000

	formatSummary = "summary"
	formatGeoJSON = "geojson"
)

// RegionFetcher downloads the OSM data of a bounding box
type RegionFetcher interface {
	FetchRegion(ctx context.Context, bbox geo.BoundingBox) (*osm.OSM, error)
}

// AnalyzerOptions configure an Analyzer
type AnalyzerOptions struct {
	Fetcher RegionFetcher
	Loader  loader.Options
	// Builder is the template for every build; the index is chosen per request
	Builder topology.Options
	Logger  *slog.Logger
}

// Analyzer fetches regions and computes their topology
type Analyzer struct {
	fetcher RegionFetcher
	loader  loader.Options
	builder topology.Options
	logger  *slog.Logger
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Loader.Logger == nil {
		opts.Loader.Logger = logger
	}
	if opts.Builder.Logger == nil {
		opts.Builder.Logger = logger
	}
	return &Analyzer{
		fetcher: opts.Fetcher,
		loader:  opts.Loader,
		builder: opts.Builder,
		logger:  logger,
	}
}

// Analysis is a region together with its computed topology
type Analysis struct {
	Region *loader.Region
	Result topology.Result
}

// Analyze fetches the region inside bbox and builds its topology with the
// given index
func (a *Analyzer) Analyze(ctx context.Context, bbox geo.BoundingBox, kind topology.IndexKind) (*Analysis, error) {
	o, err := a.fetcher.FetchRegion(ctx, bbox)
	if err != nil {
		return nil, err
	}

	region, err := loader.FromOSM(ctx, o, a.loader)
	if errors.Is(err, loader.ErrNoData) {
		return nil, core.NewError(core.ErrNoResults, "no map elements in region").
			WithGuidance("Try a larger bounding box or a populated area")
	}
	if err != nil {
		return nil, core.NewError(core.ErrParseError, "failed to convert region").WithCause(err)
	}

	opts := a.builder
	opts.Index = kind
	b, err := topology.NewBuilder(opts)
	if err != nil {
		return nil, err
	}
	res, err := b.Build(ctx, region.Dataset)
	if err != nil {
		return nil, err
	}
	return &Analysis{Region: region, Result: res}, nil
}

// OverlapInfo describes one overlap with positions in [lon, lat]
type OverlapInfo struct {
	A                 string              `json:"a"`
	B                 string              `json:"b"`
	Kind              mapdata.OverlapKind `json:"kind"`
	Positions         []orb.Point         `json:"positions,omitempty"`
	MGRS              []string            `json:"mgrs,omitempty"`
	OverlappedLengthM float64             `json:"overlappedLengthM,omitempty"`
	SharedLengthM     float64             `json:"sharedLengthM,omitempty"`
}

// AnalyzeOutput is the result of analyze_topology
type AnalyzeOutput struct {
	BBox      geo.BoundingBox `json:"bbox"`
	Loaded    loader.Stats    `json:"loaded"`
	Topology  topology.Result `json:"topology"`
	Overlaps  []OverlapInfo   `json:"overlaps"`
	Truncated bool            `json:"truncated,omitempty"`
}

// ElementOverlapsOutput is the result of element_overlaps
type ElementOverlapsOutput struct {
	Element  string            `json:"element"`
	Kind     string            `json:"kind"`
	Tags     map[string]string `json:"tags,omitempty"`
	Overlaps []OverlapInfo     `json:"overlaps"`
}

func bboxOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("minLat", mcp.Required(), mcp.Description("Southern edge of the region")),
		mcp.WithNumber("minLon", mcp.Required(), mcp.Description("Western edge of the region")),
		mcp.WithNumber("maxLat", mcp.Required(), mcp.Description("Northern edge of the region")),
		mcp.WithNumber("maxLon", mcp.Required(), mcp.Description("Eastern edge of the region")),
		mcp.WithString("index",
			mcp.Description("Spatial index used to find candidate pairs: tree or grid"),
			mcp.Enum(string(topology.IndexTree), string(topology.IndexGrid)),
			mcp.DefaultString(string(topology.IndexTree)),
		),
	}
}

// AnalyzeTopologyTool returns the analyze_topology tool definition
func AnalyzeTopologyTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Find every intersection, containment and shared segment between the nodes, ways and areas of an OpenStreetMap region"),
	}, bboxOptions()...)
	opts = append(opts,
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of overlaps to list"),
			mcp.DefaultNumber(defaultOverlapLimit),
		),
		mcp.WithString("format",
			mcp.Description("summary returns JSON counts and overlaps, geojson a FeatureCollection of overlap locations"),
			mcp.Enum(formatSummary, formatGeoJSON),
			mcp.DefaultString(formatSummary),
		),
	)
	return mcp.NewTool("analyze_topology", opts...)
}

// ElementOverlapsTool returns the element_overlaps tool definition
func ElementOverlapsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List the overlaps of a single element of an OpenStreetMap region"),
	}, bboxOptions()...)
	opts = append(opts,
		mcp.WithString("element", mcp.Required(), mcp.Description("Element id such as way/123 or node/42")),
	)
	return mcp.NewTool("element_overlaps", opts...)
}

// parseRegionRequest reads the bounding box and index of a request
func parseRegionRequest(req mcp.CallToolRequest, logger *slog.Logger) (geo.BoundingBox, topology.IndexKind, error) {
	bbox, err := core.ParseBBoxWithLog(req, logger)
	if err != nil {
		return geo.BoundingBox{}, "", err
	}
	kind, err := topology.ParseIndexKind(mcp.ParseString(req, "index", ""))
	if err != nil {
		return geo.BoundingBox{}, "", core.NewValidationError(core.ErrInvalidIndex, err.Error()).
			WithSuggestions(string(topology.IndexTree), string(topology.IndexGrid))
	}
	return bbox, kind, nil
}

// HandleAnalyzeTopology implements analyze_topology
func (a *Analyzer) HandleAnalyzeTopology(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := a.logger.With("tool", "analyze_topology")

	bbox, kind, err := parseRegionRequest(req, logger)
	if err != nil {
		return core.AsError(err).ToMCPResult(), nil
	}
	limit, err := core.ParseLimit(req, "limit", defaultOverlapLimit, maxOverlapLimit)
	if err != nil {
		return core.AsError(err).ToMCPResult(), nil
	}
	format := mcp.ParseString(req, "format", formatSummary)
	if format != formatSummary && format != formatGeoJSON {
		return core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("unknown format %q", format)).
			WithSuggestions(formatSummary, formatGeoJSON).ToMCPResult(), nil
	}

	analysis, err := a.Analyze(ctx, bbox, kind)
	if err != nil {
		return errorResult(logger, "topology analysis failed", err), nil
	}

	ds := analysis.Region.Dataset
	overlaps := ds.AllOverlaps()
	truncated := len(overlaps) > limit
	if truncated {
		overlaps = overlaps[:limit]
	}

	if format == formatGeoJSON {
		return jsonResult(logger, overlapFeatures(analysis.Region, overlaps))
	}

	out := AnalyzeOutput{
		BBox:      bbox,
		Loaded:    analysis.Region.Stats,
		Topology:  analysis.Result,
		Overlaps:  make([]OverlapInfo, 0, len(overlaps)),
		Truncated: truncated,
	}
	for _, o := range overlaps {
		out.Overlaps = append(out.Overlaps, DescribeOverlap(analysis.Region, o))
	}
	return jsonResult(logger, out)
}

// HandleElementOverlaps implements element_overlaps
func (a *Analyzer) HandleElementOverlaps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := a.logger.With("tool", "element_overlaps")

	id := mcp.ParseString(req, "element", "")
	if id == "" {
		return core.NewValidationError(core.ErrMissingParameter, "element is required").
			WithSuggestions("way/123", "node/42").ToMCPResult(), nil
	}
	bbox, kind, err := parseRegionRequest(req, logger)
	if err != nil {
		return core.AsError(err).ToMCPResult(), nil
	}

	analysis, err := a.Analyze(ctx, bbox, kind)
	if err != nil {
		return errorResult(logger, "topology analysis failed", err), nil
	}

	ds := analysis.Region.Dataset
	h, ok := findElement(ds, id)
	if !ok {
		return core.NewError(core.ErrNoResults, fmt.Sprintf("element %s not found in region", id)).
			WithGuidance("Untagged elements are not loaded; check the id and the bounding box").
			ToMCPResult(), nil
	}

	e := ds.Element(h)
	out := ElementOverlapsOutput{
		Element:  e.ID,
		Kind:     e.Kind().String(),
		Tags:     e.Tags,
		Overlaps: []OverlapInfo{},
	}
	for _, o := range ds.Overlaps(h) {
		out.Overlaps = append(out.Overlaps, DescribeOverlap(analysis.Region, o))
	}
	return jsonResult(logger, out)
}

// findElement looks up an element by id. Multi-part features are matched
// by their first part.
func findElement(ds *mapdata.Dataset, id string) (mapdata.Handle, bool) {
	for _, h := range ds.Handles() {
		if e := ds.Element(h); e.ID == id || e.ID == id+"#0" {
			return h, true
		}
	}
	return 0, false
}

// DescribeOverlap converts an overlap of region into its reported form
func DescribeOverlap(region *loader.Region, o mapdata.Overlap) OverlapInfo {
	ds := region.Dataset
	info := OverlapInfo{
		A:         ds.Element(o.A).ID,
		B:         ds.Element(o.B).ID,
		Kind:      o.Kind,
		Positions: lonLats(region.Projection, o.Positions()),
	}
	info.MGRS = mgrsRefs(info.Positions)
	if wa := o.WayArea(); wa != nil {
		info.OverlappedLengthM = round(segmentLength(wa.OverlappedSegments()))
		info.SharedLengthM = round(segmentLength(wa.SharedSegments()))
	}
	if ww := o.WayWay(); ww != nil {
		info.SharedLengthM = round(segmentLength(ww.SharedSegments()))
	}
	return info
}

// overlapFeatures places every overlap as a GeoJSON feature: its
// intersection positions when it has any, otherwise the center of the
// region both elements share
func overlapFeatures(region *loader.Region, overlaps []mapdata.Overlap) *geojson.FeatureCollection {
	ds := region.Dataset
	fc := geojson.NewFeatureCollection()
	for _, o := range overlaps {
		var g orb.Geometry
		if ps := lonLats(region.Projection, o.Positions()); len(ps) > 0 {
			g = orb.MultiPoint(ps)
		} else {
			shared := commonBound(ds.Element(o.A).Bounds(), ds.Element(o.B).Bounds())
			g = region.Projection.ToLonLat(shared.Center())
		}

		f := geojson.NewFeature(g)
		f.Properties["a"] = ds.Element(o.A).ID
		f.Properties["b"] = ds.Element(o.B).ID
		f.Properties["kind"] = o.Kind.String()
		fc.Append(f)
	}
	return fc
}

func commonBound(a, b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
}

func round(m float64) float64 {
	return math.Round(m*100) / 100
}
