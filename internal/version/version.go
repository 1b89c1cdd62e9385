// Package version reports the build of the tracelens binary. Release builds
// set the variables with -ldflags; other builds fall back to the module build
// info.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

func String() string {
	version, commit, date := resolve()
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

// Short returns only the version, used as the OpenTelemetry service version.
func Short() string {
	version, _, _ := resolve()
	return version
}

func resolve() (string, string, string) {
	version, commit, date := Version, Commit, Date
	if version != "dev" {
		return version, commit, date
	}
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return version, commit, date
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		version = v
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if commit == "none" && setting.Value != "" {
				commit = setting.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		case "vcs.time":
			if date == "unknown" && setting.Value != "" {
				date = setting.Value
			}
		}
	}
	return version, commit, date
}
