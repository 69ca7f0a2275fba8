package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildInfo_Defaults(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
	assert.True(t, info.BuildTime.IsZero(), "unknown build date must not produce a build time")
}

func TestGetBuildInfo_ParsesValidDate(t *testing.T) {
	originalBuildDate := BuildDate
	defer func() { BuildDate = originalBuildDate }()

	BuildDate = "2026-01-13T20:00:00Z"
	info := GetBuildInfo()

	expected, _ := time.Parse(time.RFC3339, BuildDate)
	assert.True(t, info.BuildTime.Equal(expected))
}

func TestBuildInfo_String(t *testing.T) {
	info := BuildInfo{Version: "v1.0.0", GitCommit: "abc123", BuildDate: "2026-01-13", Platform: "linux/amd64"}
	assert.Equal(t, "resultmail v1.0.0 (commit: abc123, built: 2026-01-13, linux/amd64)", info.String())
}
