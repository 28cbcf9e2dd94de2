// Package version carries build metadata injected with -ldflags.
package version

import "runtime/debug"

// Build metadata. Release builds override these with
// -ldflags "-X github.com/Sumatoshi-tech/ccdb/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = ""
)

// Info is the printable build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns the build metadata, filling the commit from the embedded VCS
// stamp when ldflags did not set it.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}

	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	info.GoVersion = build.GoVersion

	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "<unknown>" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = setting.Value
			}
		}
	}

	return info
}
