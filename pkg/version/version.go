// Package version reports build information of the osmtopo binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time with -ldflags "-X github.com/NERVsystems/osmtopology/pkg/version.BuildVersion=..."
var (
	BuildVersion = "dev"
	BuildCommit  = ""
	BuildDate    = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if BuildCommit == "" {
				BuildCommit = s.Value
			}
		case "vcs.time":
			if BuildDate == "" {
				BuildDate = s.Value
			}
		}
	}
}

// Info returns the build information as a flat map
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"go_version": runtime.Version(),
		"commit":     BuildCommit,
		"build_date": BuildDate,
	}
}

// String returns a one-line version description
func String() string {
	s := fmt.Sprintf("osmtopo %s (%s)", BuildVersion, runtime.Version())
	if BuildCommit != "" {
		s += " commit " + BuildCommit
	}
	if BuildDate != "" {
		s += " built " + BuildDate
	}
	return s
}
