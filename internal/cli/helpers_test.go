package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formwalk/internal/config"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// testOptions returns root options whose configuration keeps every file
// under a temp dir.
func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.InstancesDir = filepath.Join(dir, "instances")
	cfg.Storage.CacheDir = filepath.Join(dir, "cache")
	cfg.Storage.Database = filepath.Join(dir, "formwalk.db")
	return &RootOptions{Format: format, cfg: cfg}
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

const householdForm = "../harness/testdata/forms/household.cue"

// copyTestdata copies the harness forms and scenarios into a temp dir so
// golden files can be written next to the scenarios.
func copyTestdata(t *testing.T) string {
	t.Helper()
	dst := t.TempDir()
	src := filepath.Join("..", "harness", "testdata")
	for _, sub := range []string{"forms", "scenarios"} {
		entries, err := os.ReadDir(filepath.Join(src, sub))
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Join(dst, sub), 0o755))
		for _, e := range entries {
			b, err := os.ReadFile(filepath.Join(src, sub, e.Name()))
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(dst, sub, e.Name()), b, 0o644))
		}
	}
	return dst
}
