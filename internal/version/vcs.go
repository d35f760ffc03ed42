package version

import (
	"fmt"
	"runtime/debug"
)

// Version is stamped at release time with -ldflags "-X ...version.Version=v1.2.3"
var Version = "dev"

type gitInfo struct {
	BuildTime string
	Commit    string
	Dirty     bool
}

// GetVersion returns the name, release and VCS details of the running
// binary, as printed by --version.
func GetVersion() string {
	name := "nslcd"

	info, ok := debug.ReadBuildInfo()

	if !ok {
		return fmt.Sprintf("%s %s\nNon-release build", name, Version)
	}

	gitInfo := vcsInfo(info.Settings)

	if !gitInfo.Dirty {
		return fmt.Sprintf(`%s %s
Build time: %s
Commit: %s`, name, Version, gitInfo.BuildTime, gitInfo.Commit)
	}

	return fmt.Sprintf(`%s
Non-release build based on tag %s
Build time: %s
Commit: %s`, name, Version, gitInfo.BuildTime, gitInfo.Commit)
}

// Revision is the VCS commit the binary was built from, "n/a" when unknown
func Revision(settings []debug.BuildSetting) string {
	if c := vcsInfo(settings).Commit; c != "unknown" {
		return c
	}
	return "n/a"
}

func vcsInfo(settings []debug.BuildSetting) *gitInfo {
	info := new(gitInfo)

	info.BuildTime = "unknown"
	info.Commit = "unknown"
	info.Dirty = false

	for _, v := range settings {
		switch v.Key {
		case "vcs.revision":
			info.Commit = v.Value
		case "vcs.modified":
			info.Dirty = v.Value == "true"
		case "vcs.time":
			info.BuildTime = v.Value
		}
	}

	return info
}
