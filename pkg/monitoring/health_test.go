package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewHealthChecker(t *testing.T) {
	hc := NewHealthChecker("test-service", "1.0.0")
	defer hc.Shutdown()

	health := hc.GetHealth()
	if health.Service != "test-service" {
		t.Errorf("Expected service name 'test-service', got %s", health.Service)
	}
	if health.Version != "1.0.0" {
		t.Errorf("Expected version '1.0.0', got %s", health.Version)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected healthy without connections, got %s", health.Status)
	}
}

func TestHealthStatusFromConnections(t *testing.T) {
	tests := []struct {
		name        string
		connections map[string]error
		want        string
	}{
		{"all connected", map[string]error{"overpass": nil, "redis": nil}, "healthy"},
		{"one of three failing", map[string]error{"overpass": nil, "redis": errors.New("refused"), "other": nil}, "degraded"},
		{"all failing", map[string]error{"overpass": errors.New("timeout"), "redis": errors.New("refused")}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("test-service", "1.0.0")
			defer hc.Shutdown()

			for name, err := range tt.connections {
				status := StatusConnected
				if err != nil {
					status = StatusError
				}
				hc.UpdateConnection(name, status, 5, err)
			}

			if got := hc.GetHealth().Status; got != tt.want {
				t.Errorf("Expected status %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMonitorRecordsCheckResult(t *testing.T) {
	hc := NewHealthChecker("test-service", "1.0.0")

	var calls atomic.Int32
	hc.Monitor("overpass", time.Hour, func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("status 504")
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := hc.GetHealth().Connections["overpass"]; ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	hc.Shutdown()

	conn, ok := hc.GetHealth().Connections["overpass"]
	if !ok {
		t.Fatal("Expected overpass connection to be recorded")
	}
	if conn.Status != StatusError || conn.LastError != "status 504" {
		t.Errorf("Unexpected connection status %+v", conn)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly one check, got %d", calls.Load())
	}
}

func TestHealthHandler(t *testing.T) {
	hc := NewHealthChecker("test-service", "1.0.0")
	defer hc.Shutdown()
	hc.UpdateConnection("overpass", StatusError, 0, errors.New("down"))

	rec := httptest.NewRecorder()
	hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for unhealthy service, got %d", rec.Code)
	}

	var health ServiceHealth
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if health.Connections["overpass"].LastError != "down" {
		t.Errorf("Expected last error in response, got %+v", health.Connections)
	}
}
