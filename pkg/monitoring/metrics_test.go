package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	metrics := []prometheus.Collector{
		TopologyBuildsTotal,
		TopologyBuildDuration,
		TopologyCandidatePairs,
		TopologyDuplicatePairs,
		TopologyOverlapsTotal,
		TopologyFailures,
		IndexLeaves,
		IndexMaxLeafSize,
		LoaderElementsTotal,
		LoaderSkippedTotal,
		MCPRequestsTotal,
		MCPRequestDuration,
		ExternalServiceRequestsTotal,
		ExternalServiceRequestDuration,
		RateLimitWaitTime,
		CacheHits,
		CacheMisses,
		CacheSize,
		ErrorsTotal,
		SystemInfo,
		GoRoutines,
		MemoryUsage,
	}

	for _, metric := range metrics {
		if metric == nil {
			t.Error("Metric is nil")
		}
	}
}

func TestRecordTopologyBuild(t *testing.T) {
	TopologyBuildsTotal.Reset()

	RecordTopologyBuild("tree", 120*time.Millisecond, true)
	RecordTopologyBuild("tree", 80*time.Millisecond, false)
	RecordTopologyBuild("grid", 50*time.Millisecond, true)

	if got := testutil.ToFloat64(TopologyBuildsTotal.WithLabelValues("tree", "success")); got != 1 {
		t.Errorf("Expected 1 successful tree build, got %v", got)
	}
	if got := testutil.ToFloat64(TopologyBuildsTotal.WithLabelValues("tree", "error")); got != 1 {
		t.Errorf("Expected 1 failed tree build, got %v", got)
	}
	if got := testutil.CollectAndCount(TopologyBuildsTotal); got != 3 {
		t.Errorf("Expected 3 label combinations, got %d", got)
	}
}

func TestTopologyCounters(t *testing.T) {
	TopologyCandidatePairs.Reset()
	TopologyDuplicatePairs.Reset()
	TopologyOverlapsTotal.Reset()
	TopologyFailures.Reset()
	IndexLeaves.Reset()
	IndexMaxLeafSize.Reset()

	RecordCandidatePairs("grid", 40, 7)
	RecordOverlap("INTERSECT")
	RecordOverlap("INTERSECT")
	RecordTopologyFailure("classify")
	UpdateIndexShape("grid", 12, 9)

	if got := testutil.ToFloat64(TopologyCandidatePairs.WithLabelValues("grid")); got != 40 {
		t.Errorf("Expected 40 candidate pairs, got %v", got)
	}
	if got := testutil.ToFloat64(TopologyDuplicatePairs.WithLabelValues("grid")); got != 7 {
		t.Errorf("Expected 7 duplicate pairs, got %v", got)
	}
	if got := testutil.ToFloat64(TopologyOverlapsTotal.WithLabelValues("INTERSECT")); got != 2 {
		t.Errorf("Expected 2 intersect overlaps, got %v", got)
	}
	if got := testutil.ToFloat64(TopologyFailures.WithLabelValues("classify")); got != 1 {
		t.Errorf("Expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(IndexMaxLeafSize.WithLabelValues("grid")); got != 9 {
		t.Errorf("Expected max leaf size 9, got %v", got)
	}
}

func TestRecordExternalServiceRequest(t *testing.T) {
	ExternalServiceRequestsTotal.Reset()

	RecordExternalServiceRequest("overpass", "region", 500*time.Millisecond, true)
	if got := testutil.ToFloat64(ExternalServiceRequestsTotal.WithLabelValues("overpass", "region", "success")); got != 1 {
		t.Errorf("Expected 1 successful external request, got %v", got)
	}

	RecordExternalServiceRequest("overpass", "region", 300*time.Millisecond, false)
	if got := testutil.ToFloat64(ExternalServiceRequestsTotal.WithLabelValues("overpass", "region", "error")); got != 1 {
		t.Errorf("Expected 1 failed external request, got %v", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	CacheHits.Reset()
	CacheMisses.Reset()
	CacheSize.Reset()

	RecordCacheHit("region")
	if got := testutil.ToFloat64(CacheHits.WithLabelValues("region")); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}

	RecordCacheMiss("region")
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("region")); got != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got)
	}

	UpdateCacheSize("region", 42)
	if got := testutil.ToFloat64(CacheSize.WithLabelValues("region")); got != 42 {
		t.Errorf("Expected cache size 42, got %v", got)
	}
}

func TestRecordMCPRequest(t *testing.T) {
	MCPRequestsTotal.Reset()

	RecordMCPRequest("analyze_topology", 100*time.Millisecond, true)
	RecordMCPRequest("analyze_topology", 200*time.Millisecond, false)

	if got := testutil.ToFloat64(MCPRequestsTotal.WithLabelValues("analyze_topology", "success")); got != 1 {
		t.Errorf("Expected 1 successful request, got %v", got)
	}
	if got := testutil.ToFloat64(MCPRequestsTotal.WithLabelValues("analyze_topology", "error")); got != 1 {
		t.Errorf("Expected 1 failed request, got %v", got)
	}
}
