package tools

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/osmtopology/pkg/monitoring"
	"github.com/NERVsystems/osmtopology/pkg/version"
)

// VersionInfo represents version information for the service
type VersionInfo struct {
	Version     string            `json:"version"`
	GoVersion   string            `json:"go_version,omitempty"`
	BuildTime   string            `json:"build_time,omitempty"`
	VCSRevision string            `json:"vcs_revision,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`
}

// GetVersionTool returns a tool definition for retrieving version information
func GetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the version and build information of the topology server"),
	)
}

// HandleGetVersion implements version information retrieval
func HandleGetVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := slog.Default().With("tool", "get_version")

	info := VersionInfo{
		Version:     version.BuildVersion,
		VCSRevision: version.BuildCommit,
		BuildTime:   version.BuildDate,
		Settings:    make(map[string]string),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision", "vcs.time":
			default:
				info.Settings[s.Key] = s.Value
			}
		}
	}

	return jsonResult(logger, info)
}

// GetHealthTool returns a tool definition for the health report
func GetHealthTool() mcp.Tool {
	return mcp.NewTool("get_health",
		mcp.WithDescription("Get the health of the topology server and the state of the Overpass API and region cache"),
	)
}

// HandleGetHealth reports the state tracked by the health checker
func HandleGetHealth(checker *monitoring.HealthChecker) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(slog.Default().With("tool", "get_health"), checker.GetHealth())
	}
}
