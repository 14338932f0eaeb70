package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/NERVsystems/osmtopology/pkg/version"
)

// Connection states
const (
	StatusConnected = "connected"
	StatusDegraded  = "degraded"
	StatusError     = "error"
)

// ServiceHealth is the health report of the process
type ServiceHealth struct {
	Service       string                `json:"service"`
	Version       string                `json:"version"`
	Status        string                `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time"`
	Connections   map[string]ConnStatus `json:"connections"`
	Goroutines    int                   `json:"goroutines"`
	MemoryAllocMB uint64                `json:"memory_alloc_mb"`
}

// ConnStatus is the last known state of an external dependency
type ConnStatus struct {
	Status    string    `json:"status"`
	Latency   int64     `json:"latency_ms,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthChecker tracks the state of external dependencies such as the
// Overpass API and the Redis region cache, and keeps the runtime gauges
// current
type HealthChecker struct {
	serviceName string
	version     string
	startTime   time.Time

	mu          sync.RWMutex
	connections map[string]ConnStatus

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthChecker creates a health checker and starts collecting runtime metrics
func NewHealthChecker(serviceName, version string) *HealthChecker {
	ctx, cancel := context.WithCancel(context.Background())
	h := &HealthChecker{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		connections: make(map[string]ConnStatus),
		cancel:      cancel,
	}

	h.updateSystemMetrics()
	h.every(ctx, 15*time.Second, h.updateSystemMetrics)
	return h
}

// UpdateConnection records the result of a check of an external dependency
func (h *HealthChecker) UpdateConnection(name, status string, latencyMs int64, err error) {
	c := ConnStatus{Status: status, Latency: latencyMs, CheckedAt: time.Now()}
	if err != nil {
		c.LastError = err.Error()
	}

	h.mu.Lock()
	h.connections[name] = c
	h.mu.Unlock()
}

// Monitor runs check now and then at every interval until Shutdown,
// recording the outcome under name
func (h *HealthChecker) Monitor(name string, interval time.Duration, check func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	prev := h.cancel
	h.cancel = func() { prev(); cancel() }
	h.mu.Unlock()

	run := func() {
		checkCtx, done := context.WithTimeout(ctx, interval)
		defer done()

		start := time.Now()
		err := check(checkCtx)
		status := StatusConnected
		if err != nil {
			status = StatusError
		}
		h.UpdateConnection(name, status, time.Since(start).Milliseconds(), err)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		run()
	}()
	h.every(ctx, interval, run)
}

func (h *HealthChecker) every(ctx context.Context, interval time.Duration, fn func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// GetHealth returns the current health report
func (h *HealthChecker) GetHealth() ServiceHealth {
	h.mu.RLock()
	connections := make(map[string]ConnStatus, len(h.connections))
	errorCount, degradedCount := 0, 0
	for k, c := range h.connections {
		connections[k] = c
		switch c.Status {
		case StatusError:
			errorCount++
		case StatusDegraded:
			degradedCount++
		}
	}
	h.mu.RUnlock()

	status := "healthy"
	switch {
	case errorCount > 0 && errorCount > len(connections)/2:
		status = "unhealthy"
	case errorCount > 0 || degradedCount > 0:
		status = "degraded"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ServiceHealth{
		Service:       h.serviceName,
		Version:       h.version,
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		StartTime:     h.startTime,
		Connections:   connections,
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: m.Alloc / 1024 / 1024,
	}
}

// HealthHandler returns an HTTP handler serving the health report
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	}
}

func (h *HealthChecker) updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	GoRoutines.Set(float64(runtime.NumGoroutine()))
	MemoryUsage.Set(float64(m.Alloc))

	info := version.Info()
	SystemInfo.WithLabelValues(
		info["version"],
		info["go_version"],
		info["commit"],
		info["build_date"],
	).Set(1)
}

// Shutdown stops all monitors and waits for them to exit
func (h *HealthChecker) Shutdown() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	cancel()
	h.wg.Wait()
}
