// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

// Get returns the current version info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
	}
}

// String returns the bare version.
func (i Info) String() string {
	return i.Version
}

// Long returns the multi-line form printed by `sitesift version`.
func (i Info) Long() string {
	return fmt.Sprintf("sitesift %s\n  commit: %s\n  built:  %s\n  go:     %s", i.Version, i.Commit, i.Date, i.GoVersion)
}
