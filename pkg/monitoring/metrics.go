package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Service name for metrics
	ServiceName = "osmtopo"
)

var (
	// Topology build metrics
	TopologyBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_topology_builds_total",
			Help: "Total number of topology builds",
		},
		[]string{"index", "status"},
	)

	TopologyBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmtopo_topology_build_duration_seconds",
			Help:    "Topology build duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"index"},
	)

	TopologyCandidatePairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_topology_candidate_pairs_total",
			Help: "Total number of element pairs sharing an index leaf",
		},
		[]string{"index"},
	)

	TopologyDuplicatePairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_topology_duplicate_pairs_total",
			Help: "Total number of candidate pairs skipped because another leaf already produced them",
		},
		[]string{"index"},
	)

	TopologyOverlapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_topology_overlaps_total",
			Help: "Total number of confirmed overlaps",
		},
		[]string{"kind"},
	)

	TopologyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_topology_failures_total",
			Help: "Total number of elements or pairs skipped after a failure",
		},
		[]string{"stage"},
	)

	// Index shape
	IndexLeaves = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmtopo_index_leaves",
			Help: "Number of non-empty leaves of the last built index",
		},
		[]string{"index"},
	)

	IndexMaxLeafSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmtopo_index_max_leaf_size",
			Help: "Largest leaf of the last built index",
		},
		[]string{"index"},
	)

	// Loader metrics
	LoaderElementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_loader_elements_total",
			Help: "Total number of map elements loaded",
		},
		[]string{"kind"},
	)

	LoaderSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_loader_skipped_total",
			Help: "Total number of OSM features skipped while loading",
		},
		[]string{"reason"},
	)

	// MCP request metrics
	MCPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_mcp_requests_total",
			Help: "Total number of MCP requests processed",
		},
		[]string{"tool", "status"},
	)

	MCPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmtopo_mcp_request_duration_seconds",
			Help:    "MCP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"tool"},
	)

	// External service metrics
	ExternalServiceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_external_service_requests_total",
			Help: "Total number of external service requests",
		},
		[]string{"service", "operation", "status"},
	)

	ExternalServiceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmtopo_external_service_request_duration_seconds",
			Help:    "External service request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"service", "operation"},
	)

	// Rate limiting metrics
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmtopo_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"service"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmtopo_cache_size",
			Help: "Current number of items in cache",
		},
		[]string{"cache_type"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmtopo_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmtopo_system_info",
			Help: "System information",
		},
		[]string{"version", "go_version", "build_commit", "build_date"},
	)

	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmtopo_goroutines",
			Help: "Number of goroutines",
		},
	)

	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmtopo_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)
)

// Helper functions for common metric updates

// RecordTopologyBuild records the outcome of one topology build
func RecordTopologyBuild(index string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	TopologyBuildsTotal.WithLabelValues(index, status).Inc()
	TopologyBuildDuration.WithLabelValues(index).Observe(duration.Seconds())
}

func RecordCandidatePairs(index string, candidates, duplicates int) {
	TopologyCandidatePairs.WithLabelValues(index).Add(float64(candidates))
	TopologyDuplicatePairs.WithLabelValues(index).Add(float64(duplicates))
}

func RecordOverlap(kind string) {
	TopologyOverlapsTotal.WithLabelValues(kind).Inc()
}

func RecordTopologyFailure(stage string) {
	TopologyFailures.WithLabelValues(stage).Inc()
}

func UpdateIndexShape(index string, leaves, maxLeafSize int) {
	IndexLeaves.WithLabelValues(index).Set(float64(leaves))
	IndexMaxLeafSize.WithLabelValues(index).Set(float64(maxLeafSize))
}

func RecordLoadedElement(kind string) {
	LoaderElementsTotal.WithLabelValues(kind).Inc()
}

func RecordSkippedFeature(reason string) {
	LoaderSkippedTotal.WithLabelValues(reason).Inc()
}

func RecordMCPRequest(tool string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	MCPRequestsTotal.WithLabelValues(tool, status).Inc()
	MCPRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordExternalServiceRequest(service, operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ExternalServiceRequestsTotal.WithLabelValues(service, operation, status).Inc()
	ExternalServiceRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

func UpdateCacheSize(cacheType string, size int) {
	CacheSize.WithLabelValues(cacheType).Set(float64(size))
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
