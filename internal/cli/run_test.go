package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formwalk/internal/harness"
)

const householdWalk = "../harness/testdata/scenarios/household_walk.yaml"

func TestRunScenario(t *testing.T) {
	out, err := execute(t, NewRunCommand(testOptions(t, "text")), householdWalk, "--trace")
	require.NoError(t, err)
	assert.Contains(t, out, "household_walk")
	assert.Contains(t, out, "Trace:")
	assert.Contains(t, out, "form_start")
	assert.Contains(t, out, "status: complete")
	assert.Contains(t, out, "✓ household_walk passed")
}

func TestRunScenarioJSON(t *testing.T) {
	out, err := execute(t, NewRunCommand(testOptions(t, "json")), householdWalk)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   harness.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.NotEmpty(t, resp.Data.Steps)
	assert.NotEmpty(t, resp.Data.Trace)
}

func TestRunScenarioFailure(t *testing.T) {
	dir := copyTestdata(t)
	path := filepath.Join(dir, "scenarios", "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: wrong
description: "Expects the wrong first question"
form: ../forms/household.cue
choices:
  regions:
    - {value: n, label: North}
steps:
  - action: forward
    expect: {index: size}
assertions:
  - type: trace_contains
    kind: form_start
`), 0o644))

	out, err := execute(t, NewRunCommand(testOptions(t, "text")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong failed")
}

func TestRunScenarioMissing(t *testing.T) {
	_, err := execute(t, NewRunCommand(testOptions(t, "text")), "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunUsesConfiguredNavigation(t *testing.T) {
	dir := copyTestdata(t)
	path := filepath.Join(dir, "scenarios", "locked.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: locked_by_config
description: "Backward is ignored when the configuration locks navigation"
form: ../forms/household.cue
choices:
  regions:
    - {value: n, label: North}
steps:
  - action: forward
  - action: answer
    index: hh_name
    value: "Ada"
  - action: forward
    expect: {result: moved, index: size}
  - action: backward
    expect: {result: ignored, index: size}
assertions:
  - type: trace_count
    kind: question
    count: 2
`), 0o644))

	opts := testOptions(t, "text")
	opts.cfg.Navigation.AllowBackwards = false
	out, err := execute(t, NewRunCommand(opts), path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ locked_by_config passed")
}
