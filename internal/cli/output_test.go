package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad args")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitSuccess, "inner", errors.New("cause")))
	assert.Equal(t, ExitSuccess, GetExitCode(wrapped))
}

func TestExitErrorMessage(t *testing.T) {
	assert.Equal(t, "bad args", NewExitError(ExitCommandError, "bad args").Error())

	cause := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to open", cause)
	assert.Equal(t, "failed to open: no such file", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestFormatterJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"n": 1}))
	var ok CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ok))
	assert.Equal(t, "ok", ok.Status)
	assert.Nil(t, ok.Error)

	buf.Reset()
	require.NoError(t, f.Error(ErrCodeNotFound, "missing", nil))
	var bad CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &bad))
	assert.Equal(t, "error", bad.Status)
	require.NotNil(t, bad.Error)
	assert.Equal(t, ErrCodeNotFound, bad.Error.Code)
	assert.Equal(t, "missing", bad.Error.Message)
}

func TestFormatterText(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, ErrWriter: errBuf}

	require.NoError(t, f.Error(ErrCodeInvalid, "form validation failed", nil))
	assert.Equal(t, "✗ [E003]: form validation failed\n", buf.String())

	f.VerboseLog("hidden")
	assert.Empty(t, errBuf.String())

	f.Verbose = true
	f.VerboseLog("shown %d", 1)
	assert.Equal(t, "shown 1\n", errBuf.String())
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "complete", statusText("complete"))
	assert.Equal(t, "incomplete", statusText("incomplete"))
}
