// Package version holds the chipctl release version.
package version

import (
	"runtime/debug"
	"strings"
)

// Version and Commit are set at build time with
//
//	-ldflags "-X github.com/xtools-at/esp5791/internal/version.Version=v0.3.0
//	          -X github.com/xtools-at/esp5791/internal/version.Commit=abc1234"
var (
	Version = "dev"
	Commit  = ""
)

// shortCommit is the length of the commit shown in version output.
const shortCommit = 7

// String returns the version with a single 'v' prefix for display.
func String() string {
	return "v" + strings.TrimPrefix(Version, "v")
}

// Revision returns the short commit the binary was built from. Without an
// ldflags value it falls back to the VCS stamp of the Go build, and to ""
// when neither is present.
func Revision() string {
	return revision(Commit, debug.ReadBuildInfo)
}

func revision(commit string, read func() (*debug.BuildInfo, bool)) string {
	if commit == "" {
		if info, ok := read(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
					break
				}
			}
		}
	}
	if len(commit) > shortCommit {
		commit = commit[:shortCommit]
	}
	return commit
}

// Full returns the display version followed by the commit, if known:
// "v0.3.0 (abc1234)".
func Full() string {
	if rev := Revision(); rev != "" {
		return String() + " (" + rev + ")"
	}
	return String()
}
