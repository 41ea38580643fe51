// Package rejfix ties the reject recovery pipeline together: it prepares the
// repositories, produces or collects reject files, recovers their hunks and
// records what it wrote so the run can be reverted.
package rejfix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/rejfix/cli"
	"github.com/sokinpui/rejfix/internal/batch"
	"github.com/sokinpui/rejfix/internal/fs"
	"github.com/sokinpui/rejfix/internal/git"
	"github.com/sokinpui/rejfix/internal/locator"
	"github.com/sokinpui/rejfix/internal/logging"
	"github.com/sokinpui/rejfix/internal/parser"
	"github.com/sokinpui/rejfix/internal/patcher"
	"github.com/sokinpui/rejfix/internal/regen"
	"github.com/sokinpui/rejfix/internal/source"
	"github.com/sokinpui/rejfix/internal/state"
	"github.com/sokinpui/rejfix/model"
)

// ErrPatchNotFound is reported when the patch to apply is in none of the
// searched directories.
var ErrPatchNotFound = errors.New("patch file not found")

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	stateManager     *state.Manager
	sourceProvider   *source.SourceProvider
	progressCallback ProgressUpdate
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// StackTrace returns the captured stack.
func (e *DetailedError) StackTrace() string {
	return string(e.Stack)
}

// New creates a new App instance.
func New(cfg *cli.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		cfg:            cfg,
		sourceProvider: source.New(),
	}, nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// Execute executes the main application logic based on the configuration.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	if a.stateManager == nil {
		a.stateManager, err = state.New(ctx, a.cfg.RepoDir)
		if err != nil {
			return model.Summary{}, fmt.Errorf("failed to initialize state manager: %w", err)
		}
	}

	if a.cfg.Revert {
		return a.revertLastRun(ctx)
	}
	return a.run(ctx)
}

// run prepares the repositories, collects rejects and recovers them.
func (a *App) run(ctx context.Context) (model.Summary, error) {
	logger := logging.FromContext(ctx)

	if err := a.prepareRepos(ctx); err != nil {
		return model.Summary{}, err
	}

	var summary model.Summary
	var rejects []string
	if !a.cfg.ProcessRejectsOnly {
		produced, err := a.applyPatch(ctx)
		if err != nil {
			logger.Error("patch not applied", "patch", a.cfg.PatchToApply(), "error", err)
			summary.Failed = append(summary.Failed, a.cfg.PatchToApply())
		}
		rejects = append(rejects, produced...)
	}

	existing, err := fs.FindRejects(a.cfg.RejectsDir, false)
	if err != nil {
		return summary, err
	}
	rejects = appendUnique(rejects, existing...)

	if len(rejects) == 0 {
		logger.Info("no reject files found")
		summary.Message = "No reject files found. Nothing to do."
		return summary, nil
	}
	logger.Info("recovering rejects", "count", len(rejects))

	runID := a.stateManager.Begin()
	ctx = logging.With(ctx, "run", runID)

	regenerator := regen.New(a.cfg.Diff.Tool)
	if regenerator.Tool() != a.cfg.Diff.Tool {
		logger.Warn("git not found, regenerating patches with the builtin differ")
	}
	orchestrator, err := batch.New(a.batchConfig(), a.newApplier(ctx), regenerator,
		batch.WithBeforeWrite(a.stateManager.Track),
		batch.WithProgress(a.progress),
	)
	if err != nil {
		return summary, err
	}

	groups, err := orchestrator.Run(ctx, rejects)
	if commitErr := a.stateManager.Commit(); commitErr != nil {
		logger.Warn("could not record run, revert will not be available", "error", commitErr)
	}
	if err != nil {
		return summary, err
	}

	summary.RunID = runID
	summary.Groups = groups
	if a.cfg.UI.Copy {
		a.copyLastPatch(ctx, groups)
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

func (a *App) batchConfig() batch.Config {
	return batch.Config{
		PatchName:     a.cfg.PatchName,
		ReservedNames: a.cfg.ReservedPatchNames,
		SourceDir:     a.cfg.Source.Dir,
		OutputDir:     a.cfg.OutputDir,
	}
}

func (a *App) newApplier(ctx context.Context) *patcher.Applier {
	rules := locator.Rules{
		HookFile:      a.cfg.Boundary.HookFile,
		TeardownFuncs: a.cfg.Boundary.TeardownFuncs,
		Guard:         a.cfg.Boundary.Guard,
	}
	loc := locator.New(rules,
		locator.WithSyntax(a.cfg.Boundary.Syntax),
		locator.WithLogger(logging.FromContext(ctx)),
	)
	return patcher.NewApplier(loc, a.cfg.Match.Window, a.cfg.Match.JunkMinLines)
}

// prepareRepos clones and pins the repositories a run needs. With
// skip_clone the directories must already exist.
func (a *App) prepareRepos(ctx context.Context) error {
	repos := []cli.RepoConfig{a.cfg.Source}
	if !a.cfg.ProcessRejectsOnly {
		repos = append(repos, a.cfg.Patches)
	}

	logger := logging.FromContext(ctx)
	for _, repo := range repos {
		if a.cfg.SkipClone {
			if _, err := os.Stat(repo.Dir); err != nil {
				return fmt.Errorf("repository %s not available with skip_clone: %w", repo.Dir, err)
			}
			continue
		}
		cloned, err := git.Clone(ctx, repo.URL, repo.Branch, repo.Dir)
		if err != nil {
			return err
		}
		if cloned {
			logger.Info("cloned repository", "url", repo.URL, "branch", repo.Branch, "dir", repo.Dir)
		} else {
			logger.Debug("repository already present", "dir", repo.Dir)
		}
		if err := git.Checkout(ctx, repo.Dir, repo.Commit); err != nil {
			return err
		}
	}
	return nil
}

// applyPatch applies the configured patch to the source tree and returns the
// rejects it left behind.
func (a *App) applyPatch(ctx context.Context) ([]string, error) {
	name := a.cfg.PatchToApply()
	patchFile, err := a.findPatch(name)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("applying patch", "patch", patchFile, "dir", a.cfg.Source.Dir)
	return patcher.ApplyPatchFile(ctx, patchFile, a.cfg.Source.Dir)
}

// findPatch looks for name in the patch repository, the source tree and the
// workspace root, in that order.
func (a *App) findPatch(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
		return "", fmt.Errorf("%w: %s", ErrPatchNotFound, name)
	}
	resolver, err := fs.NewPathResolver(a.cfg.Patches.Dir, a.cfg.Source.Dir, a.cfg.RepoDir)
	if err != nil {
		return "", err
	}
	if found := resolver.ResolveExisting(name); found != "" {
		return found, nil
	}
	if filepath.Base(name) == name {
		for _, dir := range resolver.Dirs() {
			if found, err := fs.FindFile(dir, name); err == nil && found != "" {
				return found, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPatchNotFound, name)
}

func (a *App) progress(current, total int) {
	if a.progressCallback != nil {
		a.progressCallback(current, total)
	}
}

// copyLastPatch puts the last group's patch on the clipboard.
func (a *App) copyLastPatch(ctx context.Context, groups []model.GroupSummary) {
	logger := logging.FromContext(ctx)
	for i := len(groups) - 1; i >= 0; i-- {
		if groups[i].NoDiff {
			continue
		}
		content, err := os.ReadFile(groups[i].PatchPath)
		if err != nil {
			logger.Warn("could not read patch for clipboard", "path", groups[i].PatchPath, "error", err)
			return
		}
		if err := clipboard.WriteAll(string(content)); err != nil {
			logger.Warn("could not copy patch to clipboard", "error", err)
			return
		}
		logger.Info("copied patch to clipboard", "patch", groups[i].PatchName)
		return
	}
}

// revertLastRun handles the revert logic.
func (a *App) revertLastRun(ctx context.Context) (model.Summary, error) {
	reverted, failed, err := a.stateManager.Revert(ctx, a.progressCallback)
	if err != nil {
		return model.Summary{}, err
	}
	summary := model.Summary{Reverted: reverted, Failed: failed}
	if len(reverted) == 0 && len(failed) == 0 {
		summary.Message = "No run to revert."
	} else {
		summary.Message = "Reverted last run."
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

// Inspect parses reject text from path, stdin or the clipboard without
// touching any files. Markdown with fenced reject blocks is accepted.
func (a *App) Inspect(ctx context.Context, path string) ([]model.RejectRecord, error) {
	content, name, err := a.sourceProvider.GetContent(ctx, path)
	if err != nil {
		return nil, err
	}
	blocks := parser.ExtractRejectBlocks(content)
	records := make([]model.RejectRecord, 0, len(blocks))
	for i, block := range blocks {
		blockName := name
		if len(blocks) > 1 {
			blockName = fmt.Sprintf("%s#%d", name, i+1)
		}
		records = append(records, parser.ParseReject(block, blockName))
	}
	logging.FromContext(ctx).Debug("parsed reject text", "source", name, "blocks", len(blocks))
	return records, nil
}

// relativizeSummaryPaths converts absolute file paths in a summary to be
// relative to the current working directory for cleaner display.
func (a *App) relativizeSummaryPaths(summary *model.Summary) {
	wd, err := os.Getwd()
	if err != nil {
		return
	}

	makeRelative := func(paths []string) []string {
		if len(paths) == 0 {
			return paths
		}
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = p
			if !filepath.IsAbs(p) {
				continue
			}
			if rel, err := filepath.Rel(wd, p); err == nil {
				out[i] = rel
			}
		}
		return out
	}

	for i := range summary.Groups {
		summary.Groups[i].PatchPath = makeRelative([]string{summary.Groups[i].PatchPath})[0]
		summary.Groups[i].Failed = makeRelative(summary.Groups[i].Failed)
	}
	summary.Reverted = makeRelative(summary.Reverted)
	summary.Failed = makeRelative(summary.Failed)
}

func appendUnique(list []string, items ...string) []string {
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		seen[filepath.Clean(s)] = struct{}{}
	}
	for _, s := range items {
		key := filepath.Clean(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		list = append(list, s)
	}
	return list
}
