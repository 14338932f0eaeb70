package core

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmtopology/pkg/geo"
)

// ValidateBBox checks a region request and converts failures to tool errors
func ValidateBBox(bbox geo.BoundingBox) error {
	if err := bbox.Validate(); err != nil {
		code := ErrInvalidBBox
		if strings.Contains(err.Error(), "too large") {
			code = ErrRegionTooLarge
		}
		return NewValidationError(code, err.Error()).WithCause(err).
			WithSuggestions(fmt.Sprintf("Keep both spans at or below %.1f degrees", geo.MaxRequestSpan))
	}
	return nil
}

// ParseBBox extracts and validates a bounding box from the minLat, minLon,
// maxLat and maxLon arguments of a request
func ParseBBox(req mcp.CallToolRequest) (geo.BoundingBox, error) {
	bbox := geo.BoundingBox{
		MinLat: mcp.ParseFloat64(req, "minLat", 0),
		MinLon: mcp.ParseFloat64(req, "minLon", 0),
		MaxLat: mcp.ParseFloat64(req, "maxLat", 0),
		MaxLon: mcp.ParseFloat64(req, "maxLon", 0),
	}
	if err := ValidateBBox(bbox); err != nil {
		return geo.BoundingBox{}, err
	}
	return bbox, nil
}

// ParseLimit extracts a positive result limit, capped at maxLimit
func ParseLimit(req mcp.CallToolRequest, key string, defaultLimit, maxLimit int) (int, error) {
	limit := int(mcp.ParseFloat64(req, key, float64(defaultLimit)))
	if limit < 0 {
		return 0, NewValidationError(ErrInvalidInput, fmt.Sprintf("%s must not be negative, got %d", key, limit))
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

// ParseBBoxWithLog parses a bounding box and logs any errors
func ParseBBoxWithLog(req mcp.CallToolRequest, logger *slog.Logger) (geo.BoundingBox, error) {
	bbox, err := ParseBBox(req)
	if err != nil {
		logger.Error("invalid bounding box", "error", err)
	}
	return bbox, err
}
