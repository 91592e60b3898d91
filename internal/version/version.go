// Package version holds build-time version metadata, injected via
// -ldflags at release build time and defaulting to "dev" otherwise.
package version

import "fmt"

// Set via -ldflags "-X github.com/sgn-project/sgnd/internal/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Info is the full version record.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build's version Info.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

// String renders a long-form version string.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.BuildDate)
}

// Short renders just the version number.
func (i Info) Short() string {
	return i.Version
}
