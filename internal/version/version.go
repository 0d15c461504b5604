package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit, build time and platform.
func Full() string {
	return fmt.Sprintf("pg-embed %s (commit: %s, built at: %s, %s/%s)",
		Version, Commit, BuildTime, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent with every artifact download.
func UserAgent() string {
	return "pg-embed/" + Version
}
