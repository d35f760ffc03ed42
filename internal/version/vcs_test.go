package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVCSInfo(t *testing.T) {
	info := vcsInfo([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0a1b2c"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2024-01-02T03:04:05Z"},
		{Key: "GOOS", Value: "linux"},
	})

	assert.Equal(t, &gitInfo{BuildTime: "2024-01-02T03:04:05Z", Commit: "0a1b2c", Dirty: true}, info)
}

func TestRevision(t *testing.T) {
	assert.Equal(t, "0a1b2c", Revision([]debug.BuildSetting{{Key: "vcs.revision", Value: "0a1b2c"}}))
	assert.Equal(t, "n/a", Revision(nil))
}

func TestGetVersionNamesTheBinary(t *testing.T) {
	assert.Contains(t, GetVersion(), "nslcd")
}
