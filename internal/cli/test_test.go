package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := copyTestdata(t)
	scenarios := filepath.Join(dir, "scenarios")

	out, err := execute(t, NewTestCommand(testOptions(t, "text")), scenarios, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(golden updated)")
	assert.FileExists(t, filepath.Join(scenarios, "golden", "household_walk.golden"))
	assert.FileExists(t, filepath.Join(scenarios, "golden", "crash_recovery.golden"))

	out, err = execute(t, NewTestCommand(testOptions(t, "text")), scenarios)
	require.NoError(t, err, out)
	assert.NotContains(t, out, "golden updated")
	assert.Contains(t, out, "✓ household_walk\n")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := copyTestdata(t)
	scenarios := filepath.Join(dir, "scenarios")

	_, err := execute(t, NewTestCommand(testOptions(t, "text")), scenarios, "--update", "--filter", "household*")
	require.NoError(t, err)

	golden := filepath.Join(scenarios, "golden", "household_walk.golden")
	require.NoError(t, os.WriteFile(golden, []byte("{}"), 0o644))

	out, err := execute(t, NewTestCommand(testOptions(t, "text")), scenarios, "--filter", "household*")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommandJSON(t *testing.T) {
	dir := copyTestdata(t)

	out, err := execute(t, NewTestCommand(testOptions(t, "json")), filepath.Join(dir, "scenarios"))
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
	assert.Zero(t, resp.Data.Failed)
	for _, sr := range resp.Data.Scenarios {
		assert.Equal(t, "missing", sr.Golden, sr.Name)
	}
}

func TestTestCommandLoadFailure(t *testing.T) {
	dir := copyTestdata(t)
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "broken.yaml"), []byte("name: broken\n"), 0o644))

	out, err := execute(t, NewTestCommand(testOptions(t, "text")), scenarios, "--filter", "broken")
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandMissingDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(testOptions(t, "text")), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandBadFilter(t *testing.T) {
	_, err := execute(t, NewTestCommand(testOptions(t, "text")), t.TempDir(), "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt", "golden/a.yaml", "nested/c.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)

	files, err = findScenarioFiles(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yml")}, files)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "walk.golden"), goldenFilePath(filepath.Join("s", "walk.yaml")))
}
