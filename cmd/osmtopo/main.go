package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/osmtopology/pkg/cache"
	"github.com/NERVsystems/osmtopology/pkg/loader"
	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/osm"
	"github.com/NERVsystems/osmtopology/pkg/server"
	"github.com/NERVsystems/osmtopology/pkg/tools"
	"github.com/NERVsystems/osmtopology/pkg/topology"
	"github.com/NERVsystems/osmtopology/pkg/tracing"
	ver "github.com/NERVsystems/osmtopology/pkg/version"
)

var (
	showVersionFlag bool
	debug           bool

	// Input
	inputFile    string
	bboxFlag     string
	keepUntagged bool
	listOverlaps bool

	// Topology
	indexName      string
	splitThreshold int
	minShrink      int
	gridCells      string
	workers        int

	// Overpass
	overpassURL   string
	userAgent     string
	overpassRPS   float64
	overpassBurst int
	cacheSize     int
	cacheTTL      time.Duration

	// Serving
	serveMCP      bool
	httpAddr      string
	httpAuthToken string
	httpRPS       float64

	// Monitoring
	enableMonitoring bool
	monitoringAddr   string
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")

	flag.StringVar(&inputFile, "input", "", "Analyze an OSM XML (.osm) or PBF (.pbf) file")
	flag.StringVar(&bboxFlag, "bbox", "", "Analyze a region fetched from Overpass: minLat,minLon,maxLat,maxLon")
	flag.BoolVar(&keepUntagged, "keep-untagged", false, "Also load features without tags")
	flag.BoolVar(&listOverlaps, "overlaps", false, "List every overlap in the report")

	flag.StringVar(&indexName, "index", string(topology.IndexTree), "Spatial index: tree or grid")
	flag.IntVar(&splitThreshold, "split-threshold", 0, "Tree leaf size at which a split is attempted (0 = default)")
	flag.IntVar(&minShrink, "min-shrink", 0, "Minimum shrink of both halves for a tree split to be kept (0 = default)")
	flag.StringVar(&gridCells, "grid-cells", "", "Grid size as N or X,Z (empty = sized from the data)")
	flag.IntVar(&workers, "workers", 0, "Concurrent pair classifications (0 = GOMAXPROCS)")

	flag.StringVar(&overpassURL, "overpass-url", osm.OverpassBaseURL, "Overpass API interpreter URL")
	flag.StringVar(&userAgent, "user-agent", osm.DefaultUserAgent(), "User-Agent string for Overpass requests")
	flag.Float64Var(&overpassRPS, "overpass-rps", 1.0, "Overpass rate limit in requests per second")
	flag.IntVar(&overpassBurst, "overpass-burst", 1, "Overpass rate limit burst size")
	flag.IntVar(&cacheSize, "cache-size", cache.DefaultMaxItems, "Number of regions kept in memory")
	flag.DurationVar(&cacheTTL, "cache-ttl", cache.DefaultTTL, "Lifetime of cached regions")

	flag.BoolVar(&serveMCP, "mcp", false, "Serve the topology tools over MCP stdio")
	flag.StringVar(&httpAddr, "http-addr", "", "Also serve MCP over streamable HTTP on this address")
	flag.StringVar(&httpAuthToken, "http-auth-token", "", "Bearer token required by the HTTP transport")
	flag.Float64Var(&httpRPS, "http-rps", server.DefaultHTTPTransportConfig().RateLimit, "HTTP requests per second per client (0 = unlimited)")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Enable Prometheus metrics and health endpoints while serving")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	flag.Parse()

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if showVersionFlag {
		fmt.Println(ver.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, tracing.ConfigFromEnv(ver.BuildVersion))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
	}

	opts, err := builderOptions(indexName, splitThreshold, minShrink, gridCells, workers)
	if err != nil {
		logger.Error("invalid topology options", "error", err)
		os.Exit(2)
	}
	opts.Logger = logger

	osm.SetMonitoringHooks(osm.PrometheusHooks())

	cacheOpts := cache.Options{MaxItems: cacheSize, TTL: cacheTTL, Logger: logger}
	redisStore := cache.OpenRedisFromEnv()
	if redisStore != nil {
		cacheOpts.Store = redisStore
		defer redisStore.Close()
	}
	regionCache := cache.NewRegionCache(cacheOpts)

	client := osm.NewClient(osm.ClientOptions{
		BaseURL:   overpassURL,
		UserAgent: userAgent,
		RateLimit: overpassRPS,
		Burst:     overpassBurst,
		Cache:     regionCache,
		Logger:    logger,
	})

	if !serveMCP && httpAddr == "" {
		if err := analyze(ctx, logger, client, opts); err != nil {
			logger.Error("analysis failed", "error", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("starting topology MCP server",
		"version", ver.BuildVersion,
		"log_level", logLevel.String(),
		"index", opts.Index,
		"user_agent", userAgent,
		"overpass_rps", overpassRPS,
		"overpass_burst", overpassBurst,
		"redis", redisStore != nil,
		"stdio", serveMCP,
		"http_addr", httpAddr,
		"monitoring_enabled", enableMonitoring)

	var healthChecker *monitoring.HealthChecker
	if enableMonitoring {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
		defer healthChecker.Shutdown()

		healthChecker.Monitor(tracing.ServiceOverpass, 30*time.Second, client.CheckHealth)
		if redisStore != nil {
			healthChecker.Monitor(tracing.ServiceRedis, 30*time.Second, regionCache.CheckStore)
		}
		startMonitoringServer(ctx, logger, healthChecker)
	}

	analyzer := tools.NewAnalyzer(tools.AnalyzerOptions{
		Fetcher: client,
		Loader:  loader.Options{KeepUntagged: keepUntagged},
		Builder: opts,
		Logger:  logger,
	})
	s := server.NewServer(tools.NewRegistry(logger, analyzer, healthChecker), logger)

	if httpAddr != "" {
		config := server.DefaultHTTPTransportConfig()
		config.Addr = httpAddr
		config.AuthToken = httpAuthToken
		config.RateLimit = httpRPS

		transport := server.NewHTTPTransport(s.GetMCPServer(), config, logger)
		if healthChecker != nil {
			transport.SetHealthChecker(healthChecker)
		}
		go func() {
			if err := transport.Start(); err != nil {
				logger.Error("HTTP transport error", "error", err)
				stop()
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := transport.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown HTTP transport", "error", err)
			}
		}()
	}

	if serveMCP {
		logger.Info("transport_enabled", "type", "stdio")
		if err := s.RunWithContext(ctx); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	} else {
		<-ctx.Done()
		logger.Info("shutdown signal received")
	}

	logger.Info("server stopped")
}

// startMonitoringServer serves Prometheus metrics and the health report
func startMonitoringServer(ctx context.Context, logger *slog.Logger, healthChecker *monitoring.HealthChecker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/health", healthChecker.HealthHandler())

	monitoringServer := &http.Server{
		Addr:              monitoringAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting monitoring server", "addr", monitoringAddr)
		if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}()
}

// report is the JSON document printed by a one-shot analysis
type report struct {
	Source   string              `json:"source"`
	Loaded   loader.Stats        `json:"loaded"`
	Topology topology.Result     `json:"topology"`
	Overlaps []tools.OverlapInfo `json:"overlaps,omitempty"`
}

// analyze loads the input, builds its topology and prints a report
func analyze(ctx context.Context, logger *slog.Logger, client *osm.Client, opts topology.Options) error {
	region, source, err := loadRegion(ctx, client, logger)
	if err != nil {
		return err
	}

	b, err := topology.NewBuilder(opts)
	if err != nil {
		return err
	}
	res, err := b.Build(ctx, region.Dataset)
	if err != nil {
		return err
	}

	out := report{Source: source, Loaded: region.Stats, Topology: res}
	if listOverlaps {
		for _, o := range region.Dataset.AllOverlaps() {
			out.Overlaps = append(out.Overlaps, tools.DescribeOverlap(region, o))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func loadRegion(ctx context.Context, client *osm.Client, logger *slog.Logger) (*loader.Region, string, error) {
	opts := loader.Options{KeepUntagged: keepUntagged, Logger: logger}

	switch {
	case inputFile != "":
		o, err := loader.ReadFile(ctx, inputFile)
		if err != nil {
			return nil, "", err
		}
		region, err := loader.FromOSM(ctx, o, opts)
		return region, inputFile, err
	case bboxFlag != "":
		bbox, err := parseBBox(bboxFlag)
		if err != nil {
			return nil, "", err
		}
		o, err := client.FetchRegion(ctx, bbox)
		if err != nil {
			return nil, "", err
		}
		region, err := loader.FromOSM(ctx, o, opts)
		return region, "overpass:" + bbox.Key(), err
	default:
		return nil, "", errors.New("nothing to do: pass -input, -bbox, -mcp or -http-addr")
	}
}
