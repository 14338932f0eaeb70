package osm

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/tracing"
)

// significantWait is the shortest rate limiter wait reported to hooks
const significantWait = 100 * time.Millisecond

// MonitoringHooks defines hooks for monitoring HTTP requests
type MonitoringHooks struct {
	// OnRequest is called before making an HTTP request
	OnRequest func(service, operation string)

	// OnResponse is called after receiving an HTTP response
	OnResponse func(service, operation string, duration time.Duration, success bool)

	// OnRateLimit is called when a request had to wait for the rate limiter
	OnRateLimit func(service string, waitTime time.Duration)

	// OnError is called when an error occurs
	OnError func(service, errorType string)
}

var (
	globalHooks *MonitoringHooks
	hooksMutex  sync.RWMutex
)

// SetMonitoringHooks sets global monitoring hooks
func SetMonitoringHooks(hooks *MonitoringHooks) {
	hooksMutex.Lock()
	defer hooksMutex.Unlock()
	globalHooks = hooks
}

func getMonitoringHooks() *MonitoringHooks {
	hooksMutex.RLock()
	defer hooksMutex.RUnlock()
	return globalHooks
}

// PrometheusHooks returns hooks that feed the Prometheus metrics
func PrometheusHooks() *MonitoringHooks {
	return &MonitoringHooks{
		OnResponse: func(service, operation string, duration time.Duration, success bool) {
			monitoring.RecordExternalServiceRequest(service, operation, duration, success)
		},
		OnRateLimit: func(service string, waitTime time.Duration) {
			monitoring.RecordRateLimitWait(service, waitTime)
		},
		OnError: func(service, errorType string) {
			monitoring.RecordError(service, errorType)
		},
	}
}

// monitoredTransport applies the user agent and rate limit to every
// request, including retries, and reports it to the monitoring hooks
type monitoredTransport struct {
	base      http.RoundTripper
	limiter   *rate.Limiter
	userAgent string
	service   string
	operation string
}

func (t *monitoredTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	hooks := getMonitoringHooks()

	if hooks != nil && hooks.OnRequest != nil {
		hooks.OnRequest(t.service, t.operation)
	}

	if err := t.wait(ctx, hooks); err != nil {
		if hooks != nil && hooks.OnError != nil {
			hooks.OnError(t.service, "rate_limit_wait_error")
		}
		return nil, err
	}

	// RoundTrippers must not modify the caller's request
	req = req.Clone(ctx)
	req.Header.Set("User-Agent", t.userAgent)

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	success := err == nil && resp.StatusCode < 400
	if hooks != nil && hooks.OnResponse != nil {
		hooks.OnResponse(t.service, t.operation, duration, success)
	}
	if err != nil && hooks != nil && hooks.OnError != nil {
		hooks.OnError(t.service, "request_error")
	}

	return resp, err
}

func (t *monitoredTransport) wait(ctx context.Context, hooks *MonitoringHooks) error {
	if t.limiter == nil || t.limiter.Allow() {
		return nil
	}

	start := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(attribute.String(tracing.AttrRateLimitService, t.service)))

	err := t.limiter.Wait(ctx)

	waited := time.Since(start)
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, t.service),
		attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()),
	)
	if waited > significantWait && hooks != nil && hooks.OnRateLimit != nil {
		hooks.OnRateLimit(t.service, waited)
	}
	return err
}
