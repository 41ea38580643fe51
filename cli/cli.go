package cli

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName      = ".rejfix"
	configType      = "yaml"
	envPrefix       = "REJFIX"
	envKeySeparator = "_"
)

// Defaults for the repositories the tool works against.
const (
	DefaultSourceURL     = "https://github.com/KernelSU-Next/KernelSU-Next.git"
	DefaultSourceBranch  = "next"
	DefaultPatchesURL    = "https://gitlab.com/simonpunk/susfs4ksu.git"
	DefaultPatchesBranch = "gki-android13-5.15"
	DefaultPatch         = "fix_apk_sign.c.patch"
	ReservedPatchName    = "10_enable_susfs_for_ksu.patch"
)

var (
	ErrMutuallyExclusive = errors.New("mutually exclusive flags")
	ErrInvalidWindow     = errors.New("match window must be positive")
	ErrInvalidDiffTool   = errors.New("diff tool must be 'git' or 'builtin'")
)

// RepoConfig selects a repository to clone and pin.
type RepoConfig struct {
	URL    string `mapstructure:"url"`
	Branch string `mapstructure:"branch"`
	Commit string `mapstructure:"commit"`
	// Dir defaults to the repository name under the work directory.
	Dir string `mapstructure:"dir"`
}

// MatchConfig tunes context matching.
type MatchConfig struct {
	Window       int `mapstructure:"window"`
	JunkMinLines int `mapstructure:"junk_min_lines"`
}

// BoundaryConfig describes the structural fallback.
type BoundaryConfig struct {
	HookFile      string   `mapstructure:"hook_file"`
	TeardownFuncs []string `mapstructure:"teardown_funcs"`
	Guard         string   `mapstructure:"guard"`
	Syntax        bool     `mapstructure:"syntax"`
}

type DiffConfig struct {
	Tool string `mapstructure:"tool"`
}

type UIConfig struct {
	NoAnimation bool `mapstructure:"no_animation"`
	Copy        bool `mapstructure:"copy"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Config holds all settings for a run.
type Config struct {
	RepoDir            string         `mapstructure:"repo_dir"`
	WorkDir            string         `mapstructure:"work_dir"`
	RejectsDir         string         `mapstructure:"rejects_dir"`
	OutputDir          string         `mapstructure:"output_dir"`
	Source             RepoConfig     `mapstructure:"source"`
	Patches            RepoConfig     `mapstructure:"patches"`
	SkipClone          bool           `mapstructure:"skip_clone"`
	ProcessRejectsOnly bool           `mapstructure:"process_rejects_only"`
	PatchName          string         `mapstructure:"patch_name"`
	DefaultPatch       string         `mapstructure:"default_patch"`
	ReservedPatchNames []string       `mapstructure:"reserved_patch_names"`
	Match              MatchConfig    `mapstructure:"match"`
	Boundary           BoundaryConfig `mapstructure:"boundary"`
	Diff               DiffConfig     `mapstructure:"diff"`
	UI                 UIConfig       `mapstructure:"ui"`
	Logging            LoggingConfig  `mapstructure:"logging"`

	// Revert undoes the last run instead of starting a new one.
	Revert bool `mapstructure:"-"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"repo-dir":             "repo_dir",
	"work-dir":             "work_dir",
	"rejects-dir":          "rejects_dir",
	"output-dir":           "output_dir",
	"ksu-url":              "source.url",
	"ksu-branch":           "source.branch",
	"ksu-commit":           "source.commit",
	"susfs-url":            "patches.url",
	"susfs-branch":         "patches.branch",
	"susfs-commit":         "patches.commit",
	"skip-clone":           "skip_clone",
	"process-rejects-only": "process_rejects_only",
	"patch-name":           "patch_name",
	"window":               "match.window",
	"junk-min-lines":       "match.junk_min_lines",
	"syntax":               "boundary.syntax",
	"diff-tool":            "diff.tool",
	"no-animation":         "ui.no_animation",
	"copy":                 "ui.copy",
	"log-level":            "logging.level",
	"log-format":           "logging.format",
	"log-file":             "logging.output",
}

// Flags defines the run flags. Values are read back through Load so that
// flags, environment and config file share one precedence order.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("rejfix", pflag.ContinueOnError)

	fs.String("repo-dir", ".", "Root of the patch workspace.")
	fs.String("work-dir", "", "Where repositories are cloned (default <repo-dir>/work).")
	fs.String("rejects-dir", "", "Directory of pre-existing .rej files (default <repo-dir>/reject_patcher/rejects).")
	fs.String("output-dir", "", "Directory for regenerated patches (default <repo-dir>/reject_patcher/output).")
	fs.String("ksu-url", DefaultSourceURL, "Source tree repository URL.")
	fs.String("ksu-branch", DefaultSourceBranch, "Source tree branch.")
	fs.String("ksu-commit", "", "Source tree commit to check out.")
	fs.String("susfs-url", DefaultPatchesURL, "Patch repository URL.")
	fs.String("susfs-branch", DefaultPatchesBranch, "Patch repository branch.")
	fs.String("susfs-commit", "", "Patch repository commit to check out.")
	fs.Bool("skip-clone", false, "Use the repositories already in the work directory.")
	fs.Bool("process-rejects-only", false, "Only process pre-existing rejects; do not apply a patch first.")
	fs.StringP("patch-name", "p", "", "Patch to apply, also the name of the regenerated patch.")
	fs.Int("window", 50, "Lines searched either side of a hunk's start line.")
	fs.Int("junk-min-lines", 0, "File length from which very common lines are ignored by the global match (0 disables).")
	fs.Bool("syntax", true, "Parse C sources to find function and block boundaries.")
	fs.String("diff-tool", "git", "Patch regeneration backend: git or builtin.")
	fs.Bool("no-animation", false, "Disable loading spinner and progress updates.")
	fs.BoolP("copy", "c", false, "Copy the last regenerated patch to the clipboard.")
	fs.String("log-level", "info", "Log level: debug, info, warn or error.")
	fs.String("log-format", "text", "Log format: text or json.")
	fs.String("log-file", "stderr", "Log destination: stderr, stdout or a file path.")

	return fs
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("repo_dir", ".")
	v.SetDefault("work_dir", "")
	v.SetDefault("rejects_dir", "")
	v.SetDefault("output_dir", "")

	v.SetDefault("source.url", DefaultSourceURL)
	v.SetDefault("source.branch", DefaultSourceBranch)
	v.SetDefault("source.commit", "")
	v.SetDefault("source.dir", "")
	v.SetDefault("patches.url", DefaultPatchesURL)
	v.SetDefault("patches.branch", DefaultPatchesBranch)
	v.SetDefault("patches.commit", "")
	v.SetDefault("patches.dir", "")

	v.SetDefault("skip_clone", false)
	v.SetDefault("process_rejects_only", false)
	v.SetDefault("patch_name", "")
	v.SetDefault("default_patch", DefaultPatch)
	v.SetDefault("reserved_patch_names", []string{ReservedPatchName})

	v.SetDefault("match.window", 50)
	v.SetDefault("match.junk_min_lines", 0)

	v.SetDefault("boundary.hook_file", "core_hook.c")
	v.SetDefault("boundary.teardown_funcs", []string{"try_umount", "susfs_try_umount"})
	v.SetDefault("boundary.guard", "#ifdef CONFIG_KSU_SUSFS")
	v.SetDefault("boundary.syntax", true)

	v.SetDefault("diff.tool", "git")

	v.SetDefault("ui.no_animation", false)
	v.SetDefault("ui.copy", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// Load reads the configuration from defaults, an optional config file, the
// REJFIX_* environment and any changed flags in flags, in increasing order
// of precedence. If configPath is empty, .rejfix.yaml is searched in the
// working directory and $HOME; a missing file is not an error.
func Load(flags *pflag.FlagSet, configPath string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.derivePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) derivePaths() {
	if c.RepoDir == "" {
		c.RepoDir = "."
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(c.RepoDir, "work")
	}
	if c.RejectsDir == "" {
		c.RejectsDir = filepath.Join(c.RepoDir, "reject_patcher", "rejects")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.RepoDir, "reject_patcher", "output")
	}
	if c.Source.Dir == "" {
		c.Source.Dir = filepath.Join(c.WorkDir, RepoName(c.Source.URL))
	}
	if c.Patches.Dir == "" {
		c.Patches.Dir = filepath.Join(c.WorkDir, RepoName(c.Patches.URL))
	}
	c.Diff.Tool = strings.ToLower(c.Diff.Tool)
}

// Validate checks values that cannot be corrected silently.
func (c *Config) Validate() error {
	if c.Match.Window <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWindow, c.Match.Window)
	}
	switch c.Diff.Tool {
	case "git", "builtin":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDiffTool, c.Diff.Tool)
	}
	if c.Revert && (c.PatchName != "" || c.ProcessRejectsOnly) {
		return fmt.Errorf("%w: revert cannot be combined with --patch-name or --process-rejects-only", ErrMutuallyExclusive)
	}
	return nil
}

// PatchToApply returns the name of the patch applied before processing.
func (c *Config) PatchToApply() string {
	if c.PatchName != "" {
		return c.PatchName
	}
	return c.DefaultPatch
}

// RepoName returns the directory name git clone would use for url.
func RepoName(url string) string {
	name := path.Base(strings.TrimRight(url, "/"))
	return strings.TrimSuffix(name, ".git")
}
