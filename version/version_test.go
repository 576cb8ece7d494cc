package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	require.NotNil(t, info)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotNil(t, info.Dependencies)
	for i := 1; i < len(info.Dependencies); i++ {
		assert.LessOrEqual(t, info.Dependencies[i-1].Path, info.Dependencies[i].Path,
			"dependencies must be sorted by path")
	}
}

func TestGetDependencyUnknownModule(t *testing.T) {
	assert.Nil(t, GetDependency("example.com/not/a/real/module"))
}
