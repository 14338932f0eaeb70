package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/NERVsystems/osmtopology/pkg/core"
	"github.com/NERVsystems/osmtopology/pkg/geo"
	"github.com/NERVsystems/osmtopology/pkg/loader"
	"github.com/NERVsystems/osmtopology/pkg/mapdata"
	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/version"
)

// a park crossed by a road, with a fountain inside the park
const parkXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <bounds minlat="52.510" minlon="13.360" maxlat="52.520" maxlon="13.390"/>
  <node id="1" lat="52.511" lon="13.371"/>
  <node id="2" lat="52.511" lon="13.379"/>
  <node id="3" lat="52.519" lon="13.379"/>
  <node id="4" lat="52.519" lon="13.371"/>
  <node id="5" lat="52.515" lon="13.365"/>
  <node id="6" lat="52.515" lon="13.385"/>
  <node id="7" lat="52.516" lon="13.376">
    <tag k="amenity" v="fountain"/>
  </node>
  <way id="10">
    <nd ref="1"/>
    <nd ref="2"/>
    <nd ref="3"/>
    <nd ref="4"/>
    <nd ref="1"/>
    <tag k="leisure" v="park"/>
  </way>
  <way id="11">
    <nd ref="5"/>
    <nd ref="6"/>
    <tag k="highway" v="residential"/>
  </way>
</osm>`

type fakeFetcher struct {
	data  string
	err   error
	calls int
}

func (f *fakeFetcher) FetchRegion(ctx context.Context, bbox geo.BoundingBox) (*osm.OSM, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return loader.ReadXML(strings.NewReader(f.data))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAnalyzer(f *fakeFetcher) *Analyzer {
	return NewAnalyzer(AnalyzerOptions{Fetcher: f, Logger: quietLogger()})
}

func newRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func regionArgs(extra map[string]any) map[string]any {
	args := map[string]any{
		"minLat": 52.51,
		"minLon": 13.36,
		"maxLat": 52.52,
		"maxLon": 13.39,
	}
	for k, v := range extra {
		args[k] = v
	}
	return args
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("expected a result with content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult, out any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %s", resultText(t, result))
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), out); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
}

func errorCode(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected an error result, got %s", resultText(t, result))
	}
	var e core.Error
	if err := json.Unmarshal([]byte(resultText(t, result)), &e); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	return e.Code
}

func TestGetToolDefinitions(t *testing.T) {
	analyzer := newAnalyzer(&fakeFetcher{data: parkXML})

	names := NewRegistry(quietLogger(), analyzer, nil).GetToolNames()
	want := []string{"get_version", "analyze_topology", "element_overlaps"}
	if !slices.Equal(names, want) {
		t.Errorf("expected tools %v, got %v", want, names)
	}

	health := monitoring.NewHealthChecker(monitoring.ServiceName, version.BuildVersion)
	defer health.Shutdown()
	names = NewRegistry(quietLogger(), analyzer, health).GetToolNames()
	if !slices.Contains(names, "get_health") {
		t.Errorf("expected get_health with a health checker, got %v", names)
	}

	for _, def := range NewRegistry(quietLogger(), analyzer, health).GetToolDefinitions() {
		if def.Tool.Name != def.Name {
			t.Errorf("tool %s is registered as %s", def.Tool.Name, def.Name)
		}
	}
}

func TestHandleAnalyzeTopology(t *testing.T) {
	for _, index := range []string{"tree", "grid"} {
		t.Run(index, func(t *testing.T) {
			fetcher := &fakeFetcher{data: parkXML}
			result, err := newAnalyzer(fetcher).HandleAnalyzeTopology(context.Background(),
				newRequest("analyze_topology", regionArgs(map[string]any{"index": index})))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var out AnalyzeOutput
			decodeResult(t, result, &out)

			if string(out.Topology.Index) != index {
				t.Errorf("expected index %s, got %s", index, out.Topology.Index)
			}
			if out.Loaded.Nodes != 1 || out.Loaded.Ways != 1 || out.Loaded.Areas != 1 {
				t.Errorf("unexpected load stats %+v", out.Loaded)
			}
			if out.Topology.ByKind[mapdata.Intersect] != 1 || out.Topology.ByKind[mapdata.Contain] != 1 {
				t.Errorf("expected one INTERSECT and one CONTAIN, got %v", out.Topology.ByKind)
			}
			if len(out.Overlaps) != 2 || out.Truncated {
				t.Fatalf("expected 2 listed overlaps, got %d (truncated %v)", len(out.Overlaps), out.Truncated)
			}

			for _, o := range out.Overlaps {
				if o.Kind != mapdata.Intersect {
					continue
				}
				if o.A != "way/11" || o.B != "way/10" {
					t.Errorf("expected the road to cross the park, got %s and %s", o.A, o.B)
				}
				if len(o.Positions) != 2 {
					t.Fatalf("expected 2 crossing positions, got %v", o.Positions)
				}
				for _, p := range o.Positions {
					if p.Lat() < 52.5149 || p.Lat() > 52.5151 {
						t.Errorf("expected crossings on the road at lat 52.515, got %v", p)
					}
				}
				if len(o.MGRS) != len(o.Positions) {
					t.Fatalf("expected an MGRS reference per position, got %v", o.MGRS)
				}
				for _, ref := range o.MGRS {
					if !strings.HasPrefix(ref, "33U") {
						t.Errorf("expected a Berlin reference in grid zone 33U, got %q", ref)
					}
				}
				if o.OverlappedLengthM < 500 || o.OverlappedLengthM > 600 {
					t.Errorf("expected about 540 m of road inside the park, got %.1f", o.OverlappedLengthM)
				}
			}
		})
	}
}

func TestHandleAnalyzeTopologyGeoJSON(t *testing.T) {
	result, err := newAnalyzer(&fakeFetcher{data: parkXML}).HandleAnalyzeTopology(context.Background(),
		newRequest("analyze_topology", regionArgs(map[string]any{"format": "geojson"})))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got %s", resultText(t, result))
	}

	fc, err := geojson.UnmarshalFeatureCollection([]byte(resultText(t, result)))
	if err != nil {
		t.Fatalf("invalid feature collection: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	for _, f := range fc.Features {
		if f.Properties.MustString("kind") == "CONTAIN" {
			p := f.Point()
			if p.Lon() < 13.371 || p.Lon() > 13.379 || p.Lat() < 52.511 || p.Lat() > 52.519 {
				t.Errorf("expected the containment inside the park, got %v", p)
			}
		}
	}
}

func TestHandleAnalyzeTopologyLimit(t *testing.T) {
	result, _ := newAnalyzer(&fakeFetcher{data: parkXML}).HandleAnalyzeTopology(context.Background(),
		newRequest("analyze_topology", regionArgs(map[string]any{"limit": 1})))

	var out AnalyzeOutput
	decodeResult(t, result, &out)
	if len(out.Overlaps) != 1 || !out.Truncated {
		t.Errorf("expected 1 overlap and a truncation flag, got %d (truncated %v)", len(out.Overlaps), out.Truncated)
	}
	if out.Topology.Overlaps != 2 {
		t.Errorf("expected the totals to count every overlap, got %d", out.Topology.Overlaps)
	}
}

func TestHandleAnalyzeTopologyErrors(t *testing.T) {
	tests := []struct {
		name      string
		fetcher   *fakeFetcher
		args      map[string]any
		wantCode  core.ErrorCode
		wantFetch bool
	}{
		{
			name:     "inverted bbox",
			fetcher:  &fakeFetcher{data: parkXML},
			args:     map[string]any{"minLat": 52.52, "minLon": 13.36, "maxLat": 52.51, "maxLon": 13.39},
			wantCode: core.ErrInvalidBBox,
		},
		{
			name:     "region too large",
			fetcher:  &fakeFetcher{data: parkXML},
			args:     map[string]any{"minLat": 50, "minLon": 10, "maxLat": 52, "maxLon": 13},
			wantCode: core.ErrRegionTooLarge,
		},
		{
			name:     "unknown index",
			fetcher:  &fakeFetcher{data: parkXML},
			args:     regionArgs(map[string]any{"index": "quadtree"}),
			wantCode: core.ErrInvalidIndex,
		},
		{
			name:     "unknown format",
			fetcher:  &fakeFetcher{data: parkXML},
			args:     regionArgs(map[string]any{"format": "kml"}),
			wantCode: core.ErrInvalidInput,
		},
		{
			name:      "upstream rate limit",
			fetcher:   &fakeFetcher{err: core.ServiceError("overpass", http.StatusTooManyRequests, "slow down")},
			args:      regionArgs(nil),
			wantCode:  core.ErrRateLimit,
			wantFetch: true,
		},
		{
			name:      "empty region",
			fetcher:   &fakeFetcher{data: `<osm version="0.6"></osm>`},
			args:      regionArgs(nil),
			wantCode:  core.ErrNoResults,
			wantFetch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newAnalyzer(tt.fetcher).HandleAnalyzeTopology(context.Background(),
				newRequest("analyze_topology", tt.args))
			if err != nil {
				t.Fatalf("tool errors must be returned as results, got %v", err)
			}
			if code := errorCode(t, result); code != string(tt.wantCode) {
				t.Errorf("expected %s, got %s", tt.wantCode, code)
			}
			if fetched := tt.fetcher.calls > 0; fetched != tt.wantFetch {
				t.Errorf("expected fetch %v, got %d calls", tt.wantFetch, tt.fetcher.calls)
			}
		})
	}
}

func TestHandleElementOverlaps(t *testing.T) {
	analyzer := newAnalyzer(&fakeFetcher{data: parkXML})

	result, err := analyzer.HandleElementOverlaps(context.Background(),
		newRequest("element_overlaps", regionArgs(map[string]any{"element": "way/10"})))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out ElementOverlapsOutput
	decodeResult(t, result, &out)
	if out.Kind != "area" || out.Tags["leisure"] != "park" {
		t.Errorf("expected the park area, got %s with %v", out.Kind, out.Tags)
	}
	if len(out.Overlaps) != 2 {
		t.Fatalf("expected the park to overlap the road and the fountain, got %d overlaps", len(out.Overlaps))
	}

	result, _ = analyzer.HandleElementOverlaps(context.Background(),
		newRequest("element_overlaps", regionArgs(map[string]any{"element": "way/999"})))
	if code := errorCode(t, result); code != string(core.ErrNoResults) {
		t.Errorf("expected NO_RESULTS for an unknown element, got %s", code)
	}

	result, _ = analyzer.HandleElementOverlaps(context.Background(),
		newRequest("element_overlaps", regionArgs(nil)))
	if code := errorCode(t, result); code != string(core.ErrMissingParameter) {
		t.Errorf("expected MISSING_PARAMETER without an element, got %s", code)
	}
}

func TestHandleGetVersion(t *testing.T) {
	result, err := HandleGetVersion(context.Background(), newRequest("get_version", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var info VersionInfo
	decodeResult(t, result, &info)
	if info.Version != version.BuildVersion {
		t.Errorf("expected version %s, got %s", version.BuildVersion, info.Version)
	}
}

func TestHandleGetHealth(t *testing.T) {
	health := monitoring.NewHealthChecker(monitoring.ServiceName, version.BuildVersion)
	defer health.Shutdown()
	health.UpdateConnection("overpass", monitoring.StatusConnected, 12, nil)

	result, err := HandleGetHealth(health)(context.Background(), newRequest("get_health", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report monitoring.ServiceHealth
	decodeResult(t, result, &report)
	if report.Service != monitoring.ServiceName {
		t.Errorf("expected service %s, got %s", monitoring.ServiceName, report.Service)
	}
	if report.Connections["overpass"].Status != monitoring.StatusConnected {
		t.Errorf("expected overpass to be connected, got %+v", report.Connections)
	}
}

func TestWrapWithTracingRecordsRequests(t *testing.T) {
	registry := NewRegistry(quietLogger(), newAnalyzer(&fakeFetcher{data: parkXML}), nil)

	ok := registry.wrapWithTracing("wrap_test", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("{}"), nil
	})
	failing := registry.wrapWithTracing("wrap_test", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return ErrorResponse("boom"), nil
	})

	successes := testutil.ToFloat64(monitoring.MCPRequestsTotal.WithLabelValues("wrap_test", "success"))
	errs := testutil.ToFloat64(monitoring.MCPRequestsTotal.WithLabelValues("wrap_test", "error"))

	if _, err := ok(context.Background(), newRequest("wrap_test", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := failing(context.Background(), newRequest("wrap_test", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(monitoring.MCPRequestsTotal.WithLabelValues("wrap_test", "success")) - successes; got != 1 {
		t.Errorf("expected 1 successful request, got %v", got)
	}
	if got := testutil.ToFloat64(monitoring.MCPRequestsTotal.WithLabelValues("wrap_test", "error")) - errs; got != 1 {
		t.Errorf("expected 1 failed request, got %v", got)
	}
}
