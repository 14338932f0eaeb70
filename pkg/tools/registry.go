// Package tools provides the MCP tools of the topology server.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/tracing"
)

// Handler is the signature of every tool handler
type Handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger   *slog.Logger
	analyzer *Analyzer
	health   *monitoring.HealthChecker
}

// NewRegistry creates a new tool registry. health may be nil, in which
// case get_health is not offered.
func NewRegistry(logger *slog.Logger, analyzer *Analyzer, health *monitoring.HealthChecker) *Registry {
	return &Registry{
		logger:   logger,
		analyzer: analyzer,
		health:   health,
	}
}

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     Handler
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	defs := []ToolDefinition{
		{
			Name:        "get_version",
			Description: "Get the version information for this topology server",
			Tool:        GetVersionTool(),
			Handler:     HandleGetVersion,
		},
		{
			Name:        "analyze_topology",
			Description: "Compute the overlaps between all map elements of a region. Parameters: minLat, minLon, maxLat, maxLon (numbers), index (string: tree, grid), limit (number)",
			Tool:        AnalyzeTopologyTool(),
			Handler:     r.analyzer.HandleAnalyzeTopology,
		},
		{
			Name:        "element_overlaps",
			Description: "List the overlaps of one map element. Parameters: minLat, minLon, maxLat, maxLon (numbers), element (string like way/123)",
			Tool:        ElementOverlapsTool(),
			Handler:     r.analyzer.HandleElementOverlaps,
		},
	}

	if r.health != nil {
		defs = append(defs, ToolDefinition{
			Name:        "get_health",
			Description: "Get the health of the server and its upstream services",
			Tool:        GetHealthTool(),
			Handler:     HandleGetHealth(r.health),
		})
	}

	return defs
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, r.wrapWithTracing(def.Name, def.Handler))
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// wrapWithTracing wraps a tool handler with a span and request metrics
func (r *Registry) wrapWithTracing(toolName string, handler Handler) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("mcp.tool.%s", toolName),
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(startTime)

		// tool errors are reported in the result, not as a Go error
		status := tracing.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = tracing.StatusError
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, duration.Milliseconds(), resultSize)...)
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", duration.Milliseconds(),
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}
