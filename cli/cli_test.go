package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/rejfix/cli"
)

func TestLoadDefaults(t *testing.T) {
	flags := cli.Flags()
	require.NoError(t, flags.Parse([]string{"--repo-dir", "/kp"}))

	cfg, err := cli.Load(flags, "")
	require.NoError(t, err)

	assert.Equal(t, "/kp", cfg.RepoDir)
	assert.Equal(t, filepath.Join("/kp", "work"), cfg.WorkDir)
	assert.Equal(t, filepath.Join("/kp", "reject_patcher", "rejects"), cfg.RejectsDir)
	assert.Equal(t, filepath.Join("/kp", "reject_patcher", "output"), cfg.OutputDir)
	assert.Equal(t, filepath.Join("/kp", "work", "KernelSU-Next"), cfg.Source.Dir)
	assert.Equal(t, filepath.Join("/kp", "work", "susfs4ksu"), cfg.Patches.Dir)
	assert.Equal(t, "next", cfg.Source.Branch)
	assert.Equal(t, "gki-android13-5.15", cfg.Patches.Branch)
	assert.Equal(t, 50, cfg.Match.Window)
	assert.Zero(t, cfg.Match.JunkMinLines)
	assert.Equal(t, []string{"10_enable_susfs_for_ksu.patch"}, cfg.ReservedPatchNames)
	assert.Equal(t, []string{"try_umount", "susfs_try_umount"}, cfg.Boundary.TeardownFuncs)
	assert.True(t, cfg.Boundary.Syntax)
	assert.Equal(t, "git", cfg.Diff.Tool)
	assert.Equal(t, "fix_apk_sign.c.patch", cfg.PatchToApply())
}

func TestLoadPrecedence(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "rejfix.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
patch_name: from_file.patch
match:
  window: 20
diff:
  tool: builtin
boundary:
  guard: "#ifdef CONFIG_OTHER"
`), 0o644))
	t.Setenv("REJFIX_MATCH_WINDOW", "30")
	t.Setenv("REJFIX_SOURCE_COMMIT", "abc123")

	flags := cli.Flags()
	require.NoError(t, flags.Parse([]string{"-p", "from_flag.patch"}))

	cfg, err := cli.Load(flags, configPath)
	require.NoError(t, err)

	assert.Equal(t, "from_flag.patch", cfg.PatchName, "flags beat the file")
	assert.Equal(t, "from_flag.patch", cfg.PatchToApply())
	assert.Equal(t, 30, cfg.Match.Window, "env beats the file")
	assert.Equal(t, "abc123", cfg.Source.Commit)
	assert.Equal(t, "builtin", cfg.Diff.Tool)
	assert.Equal(t, "#ifdef CONFIG_OTHER", cfg.Boundary.Guard)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() cli.Config {
		return cli.Config{Match: cli.MatchConfig{Window: 50}, Diff: cli.DiffConfig{Tool: "git"}}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Match.Window = 0
	require.ErrorIs(t, cfg.Validate(), cli.ErrInvalidWindow)

	cfg = valid()
	cfg.Diff.Tool = "svn"
	require.ErrorIs(t, cfg.Validate(), cli.ErrInvalidDiffTool)

	cfg = valid()
	cfg.Revert = true
	require.NoError(t, cfg.Validate())
	cfg.ProcessRejectsOnly = true
	require.ErrorIs(t, cfg.Validate(), cli.ErrMutuallyExclusive)
}

func TestRepoName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "KernelSU-Next", cli.RepoName("https://github.com/KernelSU-Next/KernelSU-Next.git"))
	assert.Equal(t, "susfs4ksu", cli.RepoName("https://gitlab.com/simonpunk/susfs4ksu/"))
	assert.Equal(t, "local", cli.RepoName("/srv/git/local"))
}

func TestLoadRejectsInvalidWindow(t *testing.T) {
	flags := cli.Flags()
	require.NoError(t, flags.Parse([]string{"--window=-1"}))

	_, err := cli.Load(flags, "")
	require.ErrorIs(t, err, cli.ErrInvalidWindow)
}
