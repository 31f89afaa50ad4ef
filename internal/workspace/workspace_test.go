// Package workspace provides unit tests for workspace management.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManager_Ensure tests directory creation and write verification.
func TestManager_Ensure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "workload")
	m := New(root)

	require.NoError(t, m.Ensure())

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// The probe file must not survive.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Re-running on an existing directory is fine.
	require.NoError(t, m.Ensure())
}

// TestManager_Ensure_Unwritable tests the fatal error for a read-only root.
func TestManager_Ensure_Unwritable(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	require.NoError(t, os.Chmod(root, 0555))
	t.Cleanup(func() { os.Chmod(root, 0755) }) //nolint:errcheck

	err := New(root).Ensure()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkspaceUnavailable)
}

// TestManager_TransientDirNames tests the naming conventions and uniqueness.
func TestManager_TransientDirNames(t *testing.T) {
	m := New("/mnt/t")

	repo := m.NewTransientRepoDir()
	assert.True(t, strings.HasPrefix(filepath.Base(repo), "test_repo_"))

	venv := m.NewTransientVenvDir()
	assert.True(t, strings.HasPrefix(filepath.Base(venv), "test_venv_"))

	assert.NotEqual(t, m.NewTransientRepoDir(), m.NewTransientRepoDir())

	assert.Equal(t, "/mnt/t/setup_venv_pandas_import", m.SetupVenvDir("pandas_import"))
}

// TestManager_PurgeTransient tests that only transient artifacts go.
func TestManager_PurgeTransient(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	for _, dir := range []string{"test_repo_a1b2c3d4", "test_venv_e5f6a7b8", "setup_venv_pandas_import"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir, "sub"), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "test_repo_not_a_dir"), []byte("x"), 0644))

	require.NoError(t, m.PurgeTransient())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	// Persistent environment and plain files stay put.
	assert.ElementsMatch(t, []string{"setup_venv_pandas_import", "test_repo_not_a_dir"}, names)

	// Second purge is a no-op.
	require.NoError(t, m.PurgeTransient())
}

// TestManager_PurgeTransient_MissingRoot tests purging a never-created root.
func TestManager_PurgeTransient_MissingRoot(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "never_created"))
	assert.NoError(t, m.PurgeTransient())
}

// TestManager_PurgeAll tests full teardown including persistent artifacts.
func TestManager_PurgeAll(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "test_repo_a1b2c3d4"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "setup_venv_pandas_import"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.log"), []byte("x"), 0644))

	require.NoError(t, m.PurgeAll())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, m.PurgeAll())
}
