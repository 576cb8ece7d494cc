package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	assert.Equal(t, "running (healthy)", describe("running", "healthy"))
	assert.Equal(t, "exited", describe("exited", ""))
}

func TestExitCodeError(t *testing.T) {
	err := &exitCodeError{code: 2, msg: "degraded"}
	assert.Equal(t, "degraded", err.Error())
	assert.Equal(t, 2, err.code)
}

func TestFixRejectsUnknownUnit(t *testing.T) {
	err := fixRestartCmd.RunE(fixRestartCmd, []string{"bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown unit")
	assert.Contains(t, err.Error(), "postgres")

	err = fixLogsCmd.RunE(fixLogsCmd, []string{"bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown unit")
}

func TestVersionDepUnknownModule(t *testing.T) {
	depQuery = "example.com/not/a/real/module"
	defer func() { depQuery = "" }()

	err := versionCmd.RunE(versionCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not compiled")
}
