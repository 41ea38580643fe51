package rejfix_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/rejfix/cli"
	"github.com/sokinpui/rejfix/rejfix"
)

const targetSource = "int x;\nfoo();\nbar();\nint y;\n"

const rejectText = `--- a/kernel/a.c
+++ b/kernel/a.c
@@ -2,2 +2,3 @@
 foo();
 bar();
+baz();
`

// newWorkspace lays out a source tree and a rejects directory under a temp
// root and returns a config pointing at them.
func newWorkspace(t *testing.T) *cli.Config {
	t.Helper()
	root := t.TempDir()

	cfg := &cli.Config{
		RepoDir:            root,
		RejectsDir:         filepath.Join(root, "rejects"),
		OutputDir:          filepath.Join(root, "output"),
		Source:             cli.RepoConfig{Dir: filepath.Join(root, "src")},
		Patches:            cli.RepoConfig{Dir: filepath.Join(root, "patches")},
		SkipClone:          true,
		ProcessRejectsOnly: true,
		ReservedPatchNames: []string{cli.ReservedPatchName},
		Match:              cli.MatchConfig{Window: 50, JunkMinLines: 0},
		Boundary:           cli.BoundaryConfig{HookFile: "core_hook.c", Guard: "#ifdef CONFIG_KSU_SUSFS"},
		Diff:               cli.DiffConfig{Tool: "builtin"},
	}

	for _, dir := range []string{cfg.RejectsDir, cfg.Patches.Dir, filepath.Join(cfg.Source.Dir, "kernel")} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Source.Dir, "kernel", "a.c"), []byte(targetSource), 0o644))
	return cfg
}

func TestExecuteRecoversAndReverts(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RejectsDir, "a.c.rej"), []byte(rejectText), 0o644))

	app, err := rejfix.New(cfg)
	require.NoError(t, err)

	var ticks []int
	app.SetProgressCallback(func(current, _ int) { ticks = append(ticks, current) })

	summary, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []int{1}, ticks)
	require.Len(t, summary.Groups, 1)
	assert.Equal(t, "a.c.patch", summary.Groups[0].PatchName)
	assert.Equal(t, []string{"kernel/a.c"}, summary.Groups[0].Recovered)

	output := filepath.Join(cfg.OutputDir, "kernel", "a.c")
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "int x;\nfoo();\nbar();\nbaz();\nint y;\n", string(got))

	patch, err := os.ReadFile(filepath.Join(cfg.OutputDir, "a.c.patch"))
	require.NoError(t, err)
	assert.Contains(t, string(patch), "+baz();")

	src, err := os.ReadFile(filepath.Join(cfg.Source.Dir, "kernel", "a.c"))
	require.NoError(t, err)
	assert.Equal(t, targetSource, string(src))

	revertCfg := *cfg
	revertCfg.ProcessRejectsOnly = false
	revertCfg.Revert = true
	reverter, err := rejfix.New(&revertCfg)
	require.NoError(t, err)

	summary, err = reverter.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Reverted last run.", summary.Message)
	assert.NotEmpty(t, summary.Reverted)
	assert.Empty(t, summary.Failed)
	assert.NoFileExists(t, output)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "a.c.patch"))

	summary, err = reverter.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No run to revert.", summary.Message)
}

func TestExecuteWithoutRejects(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t)
	app, err := rejfix.New(cfg)
	require.NoError(t, err)

	summary, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No reject files found. Nothing to do.", summary.Message)
	assert.Empty(t, summary.Groups)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestExecuteMissingPatchIsReported(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t)
	cfg.ProcessRejectsOnly = false
	cfg.PatchName = "missing.patch"

	app, err := rejfix.New(cfg)
	require.NoError(t, err)

	summary, err := app.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"missing.patch"}, summary.Failed)
	assert.Equal(t, "No reject files found. Nothing to do.", summary.Message)
}

func TestExecuteSkipCloneNeedsRepos(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t)
	cfg.Source.Dir = filepath.Join(cfg.RepoDir, "absent")

	app, err := rejfix.New(cfg)
	require.NoError(t, err)

	_, err = app.Execute(context.Background())
	assert.ErrorContains(t, err, "skip_clone")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t)
	cfg.Revert = true
	cfg.PatchName = "x.patch"

	_, err := rejfix.New(cfg)
	assert.ErrorIs(t, err, cli.ErrMutuallyExclusive)
}

func TestInspect(t *testing.T) {
	t.Parallel()

	cfg := newWorkspace(t)
	app, err := rejfix.New(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "paste.md")
	content := "First:\n\n```diff\n" + rejectText + "```\n\nSecond:\n\n```rej\n@@ -1 +1 @@\n-old\n+new\n```\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := app.Inspect(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, path+"#1", records[0].Path)
	require.Len(t, records[0].Hunks, 1)
	assert.Equal(t, "a/kernel/a.c", records[0].Hunks[0].File)
	assert.Equal(t, []string{"foo();", "bar();"}, records[0].Hunks[0].Context)
	require.Len(t, records[1].Hunks, 1)
	assert.Len(t, records[1].Hunks[0].Changes, 2)

	assert.NoDirExists(t, filepath.Join(cfg.RepoDir, ".rejfix"))
}

func TestDetailedError(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := &rejfix.DetailedError{Err: base, Stack: []byte("stack")}
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, "stack", err.StackTrace())
}
