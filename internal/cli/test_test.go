package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTest_Testdata(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), scenariosDir, "--golden", goldenDir)
	require.Error(t, err, "the loop scenario never goes quiet")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 5, resp.Data.Total)
	assert.Equal(t, 4, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	for _, s := range resp.Data.Scenarios {
		assert.Equal(t, "match", s.Golden, s.Name)
		assert.Equal(t, s.Name != "loop", s.Pass, s.Name)
	}
}

func TestTest_Filter(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenariosDir, "--golden", goldenDir, "--filter", "d*")
	require.NoError(t, err)
	assert.Equal(t, "✓ doubler\n\n1 passed, 0 failed, 1 total\n", out)

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenariosDir, "--filter", "zzz*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTest_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(scenariosDir + "/overflow.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overflow.yaml"), src, 0o644))

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ overflow (golden updated)")

	written, err := os.ReadFile(filepath.Join(dir, "golden", "overflow.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(goldenDir + "/overflow.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	_, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "overflow.golden"), []byte("scenario: other\n"), 0o644))
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, `golden mismatch at line 1: want "scenario: other", got "scenario: overflow"`)
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFirstDifference(t *testing.T) {
	assert.Equal(t,
		`golden mismatch at line 2: want "b", got "" (run with --update to regenerate)`,
		firstDifference([]byte("a\nb\n"), []byte("a\n")))
}
