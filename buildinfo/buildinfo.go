// Package buildinfo reports the gostack version, from ldflags when set and
// from the module build info otherwise.
//
//	go build -ldflags "-X github.com/nomis52/gostack/buildinfo.version=v0.3.0 \
//	    -X github.com/nomis52/gostack/buildinfo.gitCommit=$(git rev-parse HEAD)"
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Properties describes the running binary.
type Properties struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// String returns a one line description for --version output.
func (p Properties) String() string {
	commit := p.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("gostack %s (commit %s, built %s, %s)", p.Version, commit, p.BuildTime, p.GoVersion)
}

var (
	version   = ""
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the build properties of the running binary.
func Get() Properties {
	p := Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		fromBuildInfo(&p, info)
	}
	if p.Version == "" {
		p.Version = "devel"
	}
	return p
}

// fromBuildInfo fills what ldflags left unset.
func fromBuildInfo(p *Properties, info *debug.BuildInfo) {
	if p.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		p.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if p.GitCommit == "unknown" {
				p.GitCommit = s.Value
			}
		case "vcs.time":
			if p.BuildTime == "unknown" {
				p.BuildTime = s.Value
			}
		}
	}
}
