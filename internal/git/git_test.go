package git_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/rejfix/internal/git"
)

func requireGit(t *testing.T) {
	t.Helper()
	if !git.Available() {
		t.Skip("git not installed")
	}
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	base := []string{"-c", "user.name=rejfix", "-c", "user.email=rejfix@example.com", "-c", "commit.gpgsign=false"}
	cmd := exec.Command("git", append(base, args...)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func newRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	gitCmd(t, dir, "add", "a.txt")
	gitCmd(t, dir, "commit", "-q", "-m", "init")
	return dir
}

func TestDiffNoIndex(t *testing.T) {
	requireGit(t)
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(a, []byte("one\ntwo\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("one\ntwo\n"), 0o644))
	require.NoError(t, os.WriteFile(c, []byte("one\nthree\n"), 0o644))

	out, differ, err := git.DiffNoIndex(context.Background(), a, b)
	require.NoError(t, err)
	assert.False(t, differ)
	assert.Empty(t, out)

	out, differ, err = git.DiffNoIndex(context.Background(), a, c)
	require.NoError(t, err)
	assert.True(t, differ)
	assert.Contains(t, out, "-two")
	assert.Contains(t, out, "+three")
}

func TestCloneAndCheckout(t *testing.T) {
	requireGit(t)
	t.Parallel()

	src := newRepo(t)
	dst := filepath.Join(t.TempDir(), "work", "clone")

	cloned, err := git.Clone(context.Background(), src, "main", dst)
	require.NoError(t, err)
	assert.True(t, cloned)
	assert.FileExists(t, filepath.Join(dst, "a.txt"))

	cloned, err = git.Clone(context.Background(), src, "main", dst)
	require.NoError(t, err)
	assert.False(t, cloned, "existing directories are reused")

	require.NoError(t, git.Checkout(context.Background(), dst, ""))
	require.ErrorIs(t, git.Checkout(context.Background(), dst, "deadbeef"), git.ErrCommandFailed)

	_, err = git.Clone(context.Background(), filepath.Join(t.TempDir(), "nope"), "main", filepath.Join(t.TempDir(), "x"))
	require.ErrorIs(t, err, git.ErrCommandFailed)
}

func TestFindRoot(t *testing.T) {
	requireGit(t)
	t.Parallel()

	repo := newRepo(t)
	sub := filepath.Join(repo, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	root, err := git.FindRoot(context.Background(), sub)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(repo)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
