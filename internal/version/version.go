// Package version holds build metadata, set with -ldflags at build time:
//
//	-X github.com/banshee-data/psn.report/internal/version.Version=v0.3.0
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders all three fields on one line.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
