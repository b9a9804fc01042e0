// Package version exposes build metadata set via -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// Commit is the short git commit hash of the build.
	Commit = "unknown"
)

// GetInfo returns a human-readable version string.
func GetInfo() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
