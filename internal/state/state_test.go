package state_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/rejfix/internal/state"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRevertRestoresLastRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	existing := filepath.Join(root, "output", "fix.patch")
	created := filepath.Join(root, "output", "kernel", "foo.c")
	write(t, existing, "old patch\n")

	m, err := state.New(context.Background(), root)
	require.NoError(t, err)

	runID := m.Begin()
	assert.NotEmpty(t, runID)
	require.NoError(t, m.Track(existing, created))
	assert.NoFileExists(t, existing, "overwritten files move to the trash")

	write(t, existing, "new patch\n")
	write(t, created, "int x;\n")
	require.NoError(t, m.Commit())

	// A fresh manager sees the persisted history.
	m, err = state.New(context.Background(), root)
	require.NoError(t, err)

	reverted, failed, err := m.Revert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.ElementsMatch(t, []string{existing, created}, reverted)

	assert.Equal(t, "old patch\n", read(t, existing))
	assert.NoFileExists(t, created)
	assert.NoDirExists(t, filepath.Dir(created), "empty parents are removed")

	reverted, failed, err = m.Revert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, reverted)
	assert.Empty(t, failed)
}

func TestRevertSkipsFilesChangedSinceRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	created := filepath.Join(root, "out.patch")

	m, err := state.New(context.Background(), root)
	require.NoError(t, err)
	m.Begin()
	require.NoError(t, m.Track(created))
	write(t, created, "generated\n")
	require.NoError(t, m.Commit())

	write(t, created, "edited by hand\n")

	var progress []int
	reverted, failed, err := m.Revert(context.Background(), func(current, total int) {
		progress = append(progress, current, total)
	})
	require.NoError(t, err)
	assert.Empty(t, reverted)
	assert.Equal(t, []string{created}, failed)
	assert.Equal(t, []int{1, 1}, progress)
	assert.Equal(t, "edited by hand\n", read(t, created))
}

func TestCommitWithoutWritesKeepsHistory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m, err := state.New(context.Background(), root)
	require.NoError(t, err)

	m.Begin()
	require.NoError(t, m.Commit())
	assert.NoFileExists(t, filepath.Join(m.StateDir, "state.rejfix"))

	require.Error(t, (&state.Manager{}).Track("x"))
}
