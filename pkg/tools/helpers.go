package tools

import (
	"encoding/json"
	"log/slog"

	"github.com/akhenakh/mgrs"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmtopology/pkg/core"
	"github.com/NERVsystems/osmtopology/pkg/geo"
)

const mgrsPrecision = 5

// ErrorResponse creates a tool error result with a plain message
func ErrorResponse(message string) *mcp.CallToolResult {
	return core.NewError(core.ErrInternalError, message).ToMCPResult()
}

// jsonResult marshals v into a text result
func jsonResult(logger *slog.Logger, v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult converts any error into a structured tool error
func errorResult(logger *slog.Logger, msg string, err error) *mcp.CallToolResult {
	logger.Error(msg, "error", err)
	return core.AsError(err).ToMCPResult()
}

// lonLats converts XZ points back to [lon, lat] pairs
func lonLats(proj *geo.Projection, points []orb.Point) []orb.Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]orb.Point, len(points))
	for i, p := range points {
		out[i] = proj.ToLonLat(p)
	}
	return out
}

// mgrsRefs converts lon/lat points to 1 m MGRS references. Points the
// grid cannot represent, such as polar ones, are left blank.
func mgrsRefs(points []orb.Point) []string {
	if len(points) == 0 {
		return nil
	}
	refs := make([]string, len(points))
	for i, p := range points {
		if ref, err := mgrs.LatLngToMGRS(p.Lat(), p.Lon(), mgrsPrecision); err == nil {
			refs[i] = ref
		}
	}
	return refs
}

// segmentLength sums the planar lengths of segments in meters
func segmentLength(segments []geo.Segment) float64 {
	total := 0.0
	for _, s := range segments {
		total += s.Length()
	}
	return total
}
