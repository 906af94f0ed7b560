// Package version exposes build-time version information.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info returns a map with all version information.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
	}
}

// Short returns a single-line version string for logs and banners.
func Short() string {
	return fmt.Sprintf("fusemem %s (%s)", Version, GitCommit)
}
