// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/longkey1/flowchat/internal/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// BuildInfo is the machine-readable form of Info.
type BuildInfo struct {
	Version   string `json:"version"`
	CommitSHA string `json:"commit"`
	BuildTime string `json:"built"`
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata. When the binary was built without ldflags,
// the VCS revision recorded by the Go toolchain is used for the commit.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		CommitSHA: CommitSHA,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.CommitSHA != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				info.CommitSHA = s.Value
			}
		}
	}
	return info
}

// Short returns the version number only
func Short() string {
	return Version
}

// Info returns version, commit, build time and Go version
func Info() string {
	b := Get()
	return fmt.Sprintf("flowchat %s\nCommit: %s\nBuilt: %s\nGo: %s %s",
		b.Version, b.CommitSHA, b.BuildTime, b.GoVersion, b.Platform)
}
