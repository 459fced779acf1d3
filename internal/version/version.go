// Package version holds build metadata injected at link time.
package version

import "fmt"

var (
	// Version is the release tag, overridden via -ldflags.
	Version = "dev"
	// Commit is the short git hash of the build.
	Commit = "unknown"
)

// Info returns a human-readable version line.
func Info() string {
	return fmt.Sprintf("fleet-tasks %s (%s)", Version, Commit)
}
