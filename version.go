package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"

	"github.com/matteobertozzi/aesfs/internal/tlog"
)

const (
	gitVersionNotSet     = "[GitVersion not set - set with -ldflags -X]"
	gitVersionFuseNotSet = "[GitVersionFuse not set - set with -ldflags -X]"
	buildDateNotSet      = "0000-00-00"
)

var (
	// GitVersion is the aesfs version according to git, set with -ldflags -X
	GitVersion = gitVersionNotSet
	// GitVersionFuse is the go-fuse library version, set with -ldflags -X
	GitVersionFuse = gitVersionFuseNotSet
	// BuildDate is a date string like "2017-09-06", set with -ldflags -X
	BuildDate = buildDateNotSet
)

func init() {
	versionFromBuildInfo()
}

// printVersion prints a version string like this:
// aesfs v0.3-2-g1a2b3c4; go-fuse v2.8.0; 2026-05-12 go1.23 linux/amd64
func printVersion() {
	fmt.Printf("%s %s; go-fuse %s; %s %s %s/%s\n",
		tlog.ProgramName, GitVersion, GitVersionFuse, BuildDate, runtime.Version(),
		runtime.GOOS, runtime.GOARCH)
}

// versionFromBuildInfo tries to get some information out of the information baked in
// by the Go compiler. Does nothing for values set with -ldflags.
func versionFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		tlog.Debug.Println("versionFromBuildInfo: ReadBuildInfo() failed")
		return
	}
	// Parse BuildSettings
	var vcsRevision, vcsTime string
	var vcsModified bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			vcsRevision = s.Value
		case "vcs.time":
			vcsTime = s.Value
		case "vcs.modified":
			vcsModified, _ = strconv.ParseBool(s.Value)
		}
	}
	// Fill our version strings
	if GitVersion == gitVersionNotSet {
		GitVersion = info.Main.Version
		if GitVersion == "(devel)" && vcsRevision != "" {
			GitVersion = fmt.Sprintf("vcs.revision=%s", vcsRevision)
		}
		if vcsModified {
			GitVersion += "-dirty"
		}
	}
	if GitVersionFuse == gitVersionFuseNotSet {
		for _, m := range info.Deps {
			if m.Path == "github.com/hanwen/go-fuse/v2" {
				GitVersionFuse = m.Version
				if m.Replace != nil {
					GitVersionFuse = m.Replace.Version
				}
				break
			}
		}
	}
	if BuildDate == buildDateNotSet {
		if vcsTime != "" {
			BuildDate = fmt.Sprintf("vcs.time=%s", vcsTime)
		}
	}
}
