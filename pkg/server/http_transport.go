package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmtopology/pkg/core"
	"github.com/NERVsystems/osmtopology/pkg/monitoring"
)

// HTTPTransportConfig holds configuration for the HTTP transport
type HTTPTransportConfig struct {
	Addr     string `json:"addr"`
	Endpoint string `json:"endpoint"`
	// AuthToken enables bearer authentication on the MCP endpoint when set
	AuthToken      string  `json:"-"`
	RateLimit      float64 `json:"rate_limit"` // requests per second per IP, 0 disables
	RateBurst      int     `json:"rate_burst"`
	MaxRequestSize int64   `json:"max_request_size"`
}

// DefaultHTTPTransportConfig returns sensible defaults
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Addr:           ":7082",
		Endpoint:       "/mcp",
		RateLimit:      5,
		RateBurst:      10,
		MaxRequestSize: 1 << 20,
	}
}

// HTTPTransport serves the MCP server over streamable HTTP, next to the
// health endpoint
type HTTPTransport struct {
	config        HTTPTransportConfig
	logger        *slog.Logger
	streamable    *mcpserver.StreamableHTTPServer
	handler       http.Handler
	httpSrv       *http.Server
	healthChecker *monitoring.HealthChecker
	mu            sync.RWMutex
}

// NewHTTPTransport creates a new HTTP transport instance
func NewHTTPTransport(mcpServer *mcpserver.MCPServer, config HTTPTransportConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultHTTPTransportConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = defaults.MaxRequestSize
	}

	t := &HTTPTransport{
		config:     config,
		logger:     logger.With("transport", "http"),
		streamable: mcpserver.NewStreamableHTTPServer(mcpServer, mcpserver.WithEndpointPath(config.Endpoint)),
	}

	var mcpHandler http.Handler = t.streamable
	if config.AuthToken != "" {
		mcpHandler = BearerAuth(config.AuthToken, t.logger)(mcpHandler)
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		mcpHandler = NewRateLimiter(rate.Limit(config.RateLimit), burst).Middleware(mcpHandler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", t.handleHealth)
	mux.Handle(config.Endpoint, mcpHandler)

	handler := http.Handler(mux)
	handler = TracingMiddleware()(handler)
	handler = LoggingMiddleware(t.logger)(handler)
	handler = SecurityHeaders(handler)
	t.handler = RequestSizeLimiter(config.MaxRequestSize)(handler)

	return t
}

// SetHealthChecker sets the health checker reported on /health
func (t *HTTPTransport) SetHealthChecker(hc *monitoring.HealthChecker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healthChecker = hc
}

// Handler returns the complete handler with all middleware applied
func (t *HTTPTransport) Handler() http.Handler {
	return t.handler
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	t.mu.RLock()
	hc := t.healthChecker
	t.mu.RUnlock()

	if hc != nil {
		hc.HealthHandler()(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		t.logger.Error("failed to encode health response", "error", err)
	}
}

// Start begins serving HTTP requests and blocks until the server stops
func (t *HTTPTransport) Start() error {
	t.mu.Lock()
	if t.httpSrv != nil {
		t.mu.Unlock()
		return core.NewError(core.ErrInternalError, "HTTP transport already started")
	}
	t.httpSrv = &http.Server{
		Addr:              t.config.Addr,
		Handler:           t.handler,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := t.httpSrv
	t.mu.Unlock()

	t.logger.Info("starting HTTP transport",
		"addr", t.config.Addr,
		"endpoint", t.config.Endpoint,
		"auth", t.config.AuthToken != "",
		"rate_limit", t.config.RateLimit)

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP transport
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.httpSrv == nil {
		return nil
	}
	t.logger.Info("shutting down HTTP transport")

	if err := t.streamable.Shutdown(ctx); err != nil {
		t.logger.Error("failed to shutdown streamable server", "error", err)
	}
	err := t.httpSrv.Shutdown(ctx)
	t.httpSrv = nil
	return err
}
