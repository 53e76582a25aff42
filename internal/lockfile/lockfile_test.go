package lockfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "inst.lock")

	first, err := Acquire(path, "session-1")
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	_, err = Acquire(path, "session-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "owner=session-1"))

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "idempotent")

	second, err := Acquire(path, "session-2")
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestAcquireEmptyPath(t *testing.T) {
	_, err := Acquire("", "x")
	assert.Error(t, err)
}

func TestNilLock(t *testing.T) {
	var l *Lock
	assert.Equal(t, "", l.Path())
	assert.NoError(t, l.Release())
}
