// Package osm downloads OpenStreetMap regions from the Overpass API.
package osm

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/osm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmtopology/pkg/cache"
	"github.com/NERVsystems/osmtopology/pkg/core"
	"github.com/NERVsystems/osmtopology/pkg/geo"
	"github.com/NERVsystems/osmtopology/pkg/osm/queries"
	"github.com/NERVsystems/osmtopology/pkg/tracing"
	"github.com/NERVsystems/osmtopology/pkg/version"
)

const (
	// OverpassBaseURL is the public Overpass API interpreter
	OverpassBaseURL = "https://overpass-api.de/api/interpreter"

	// DefaultMaxResponseBytes caps the size of a region download
	DefaultMaxResponseBytes = 256 << 20

	// DefaultQueryTimeout is the server-side timeout of region queries in seconds
	DefaultQueryTimeout = 90
)

// ErrResponseTooLarge is returned when a region exceeds the download limit
var ErrResponseTooLarge = errors.New("region response exceeds size limit")

// DefaultUserAgent identifies the tool to the Overpass operators
func DefaultUserAgent() string {
	return "osmtopo/" + version.BuildVersion
}

// ClientOptions configure a Client
type ClientOptions struct {
	BaseURL   string
	UserAgent string
	// RateLimit is the number of requests per second, Burst the
	// number of requests that may be issued at once
	RateLimit        float64
	Burst            int
	QueryTimeout     int
	MaxResponseBytes int64
	Retry            core.RetryOptions
	HTTPClient       *http.Client
	Cache            *cache.RegionCache
	Logger           *slog.Logger
}

// Client fetches map regions. Concurrent requests for the same region
// share a single download.
type Client struct {
	baseURL      string
	queryTimeout int
	maxBytes     int64
	retry        core.RetryOptions
	http         *http.Client
	cache        *cache.RegionCache
	group        singleflight.Group
	logger       *slog.Logger
}

// NewClient creates an Overpass client
func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = OverpassBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = core.DefaultRetryOptions
	}
	base := opts.HTTPClient
	if base == nil {
		base = core.DefaultClient
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      opts.BaseURL,
		queryTimeout: opts.QueryTimeout,
		maxBytes:     opts.MaxResponseBytes,
		retry:        opts.Retry,
		http: &http.Client{
			Timeout: base.Timeout,
			Transport: &monitoredTransport{
				base:      transport,
				limiter:   rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
				userAgent: opts.UserAgent,
				service:   tracing.ServiceOverpass,
				operation: "region",
			},
		},
		cache:  opts.Cache,
		logger: logger.With("service", tracing.ServiceOverpass),
	}
}

// FetchRegion returns every node, way and relation inside the box,
// including the members and nodes they reference
func (c *Client) FetchRegion(ctx context.Context, bbox geo.BoundingBox) (*osm.OSM, error) {
	if err := core.ValidateBBox(bbox); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "osm.fetch_region",
		trace.WithAttributes(attribute.String(tracing.AttrRegionBBox, bbox.Key())))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	data, err := c.regionData(ctx, bbox)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int(tracing.AttrRegionBytes, len(data)))

	o, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if o.Bounds == nil {
		o.Bounds = &osm.Bounds{MinLat: bbox.MinLat, MaxLat: bbox.MaxLat, MinLon: bbox.MinLon, MaxLon: bbox.MaxLon}
	}

	c.logger.Debug("region fetched",
		"bbox", bbox.Key(),
		"bytes", len(data),
		"nodes", len(o.Nodes),
		"ways", len(o.Ways),
		"relations", len(o.Relations))
	return o, nil
}

// regionData returns the raw XML of a region from the cache or Overpass
func (c *Client) regionData(ctx context.Context, bbox geo.BoundingBox) ([]byte, error) {
	if c.cache != nil {
		if data, ok := c.cache.Get(ctx, bbox); ok {
			c.logger.Debug("region cache hit", "bbox", bbox.Key())
			return data, nil
		}
	}

	v, err, shared := c.group.Do(bbox.Key(), func() (any, error) {
		data, err := c.download(ctx, bbox)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Put(ctx, bbox, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight region download", "bbox", bbox.Key())
	}
	return v.([]byte), nil
}

func (c *Client) download(ctx context.Context, bbox geo.BoundingBox) ([]byte, error) {
	query := queries.RegionQuery(bbox, c.queryTimeout)
	form := url.Values{"data": {query}}.Encode()

	factory := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	start := time.Now()
	resp, err := core.WithRetry(ctx, factory, c.http, c.retry, c.logger)
	if err != nil {
		return nil, fmt.Errorf("fetch region %s: %w", bbox.Key(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, core.NewError(core.ErrNetworkError, "failed to read region response").WithCause(err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, core.NewError(core.ErrRegionTooLarge, ErrResponseTooLarge.Error()).
			WithCause(ErrResponseTooLarge).
			WithGuidance("Request a smaller bounding box")
	}

	c.logger.Info("region downloaded", "bbox", bbox.Key(), "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

// Decode parses an OSM XML document
func Decode(data []byte) (*osm.OSM, error) {
	o := &osm.OSM{}
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(o); err != nil {
		return nil, core.NewError(core.ErrParseError, "invalid OSM XML").WithCause(err)
	}
	return o, nil
}

// CheckHealth probes the Overpass status endpoint
func (c *Client) CheckHealth(ctx context.Context) error {
	statusURL := strings.TrimSuffix(c.baseURL, "/interpreter") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create overpass health check request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("overpass health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("overpass health check returned status %d", resp.StatusCode)
	}
	return nil
}
