// Package buildinfo carries version stamps set with -ldflags "-X".
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuiltAt   string `json:"builtAt,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Get returns the stamped values, filling Commit from VCS metadata when the
// binary was built without ldflags.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuiltAt: BuiltAt}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.BuiltAt == "":
				info.BuiltAt = s.Value
			}
		}
	}
	return info
}
