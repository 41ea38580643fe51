// Package batch groups reject files by the patch they belong to, recovers
// every hunk and assembles one consolidated patch per group.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sokinpui/rejfix/internal/fs"
	"github.com/sokinpui/rejfix/internal/logging"
	"github.com/sokinpui/rejfix/internal/parser"
	"github.com/sokinpui/rejfix/internal/patcher"
	"github.com/sokinpui/rejfix/internal/regen"
	"github.com/sokinpui/rejfix/model"
)

const (
	patchSuffix = ".patch"
	copySuffix  = ".copy"
	// RetainedNotePrefix starts the comment listing files where a deletion
	// was kept as an addition.
	RetainedNotePrefix = "# rejfix: "
)

// Config selects where rejects apply and where results go.
type Config struct {
	// PatchName names the single output group. Empty groups per reject file.
	PatchName string
	// ReservedNames are output names that must not be written; rejects that
	// would land there are grouped per file instead.
	ReservedNames []string
	SourceDir     string
	OutputDir     string
}

// Group is the set of rejects consolidated into one output patch.
type Group struct {
	Name    string
	Rejects []string
}

// Orchestrator drives parsing, application and regeneration over rejects.
type Orchestrator struct {
	cfg      Config
	applier  *patcher.Applier
	regen    *regen.Regenerator
	resolver *fs.PathResolver

	beforeWrite func(paths ...string) error
	progress    func(current, total int)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBeforeWrite registers a hook called with output paths before they are
// first written.
func WithBeforeWrite(fn func(paths ...string) error) Option {
	return func(o *Orchestrator) { o.beforeWrite = fn }
}

// WithProgress registers a callback invoked after each reject file.
func WithProgress(fn func(current, total int)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// New creates an Orchestrator.
func New(cfg Config, applier *patcher.Applier, regenerator *regen.Regenerator, opts ...Option) (*Orchestrator, error) {
	resolver, err := fs.NewPathResolver(cfg.SourceDir)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:         cfg,
		applier:     applier,
		regen:       regenerator,
		resolver:    resolver,
		beforeWrite: func(...string) error { return nil },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// GroupName returns the output patch name for a reject file.
func (o *Orchestrator) GroupName(rejectPath string) string {
	perFile := strings.TrimSuffix(filepath.Base(rejectPath), parser.RejectSuffix) + patchSuffix
	if o.cfg.PatchName == "" {
		return perFile
	}
	if slices.Contains(o.cfg.ReservedNames, o.cfg.PatchName) {
		return perFile
	}
	return o.cfg.PatchName
}

// Group buckets rejects by output name, keeping first-seen order.
func (o *Orchestrator) Group(rejects []string) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, rej := range rejects {
		name := o.GroupName(rej)
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, Group{Name: name})
		}
		groups[i].Rejects = append(groups[i].Rejects, rej)
	}
	return groups
}

// Run processes every group. Per-item failures are recorded in the
// summaries; only a failure to create the output directory is returned.
func (o *Orchestrator) Run(ctx context.Context, rejects []string) ([]model.GroupSummary, error) {
	logger := logging.FromContext(ctx)
	if err := os.MkdirAll(o.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if o.cfg.PatchName != "" && slices.Contains(o.cfg.ReservedNames, o.cfg.PatchName) {
		logger.Warn("patch name is reserved for output, grouping per reject file", "patch", o.cfg.PatchName)
	}

	done, total := 0, len(rejects)
	tick := func() {
		done++
		if o.progress != nil {
			o.progress(done, total)
		}
	}

	groups := o.Group(rejects)
	summaries := make([]model.GroupSummary, 0, len(groups))
	for _, g := range groups {
		summaries = append(summaries, o.processGroup(logging.With(ctx, "patch", g.Name), g, tick))
	}
	return summaries, nil
}

type modification struct {
	model.ModificationRecord
	touched  bool
	retained bool
}

// targets holds a group's modifications in first-seen order.
type targets struct {
	byRel map[string]*modification
	order []*modification
}

func (o *Orchestrator) processGroup(ctx context.Context, g Group, tick func()) model.GroupSummary {
	logger := logging.FromContext(ctx)
	logger.Info("processing reject group", "rejects", len(g.Rejects))

	summary := model.GroupSummary{PatchName: g.Name}
	seen := &targets{byRel: make(map[string]*modification)}

	for _, rej := range g.Rejects {
		rctx := logging.With(ctx, "reject", filepath.Base(rej))
		outcomes, err := o.processReject(rctx, rej, seen)
		tick()
		summary.Outcomes = append(summary.Outcomes, outcomes...)
		if err != nil {
			logging.FromContext(rctx).Error("reject not processed", "error", err)
			summary.Failed = append(summary.Failed, rej)
			continue
		}
		for _, out := range outcomes {
			if out.Err != nil {
				summary.Failed = append(summary.Failed, fmt.Sprintf("%s#%d", rej, out.Index+1))
			}
		}
	}

	var diffs []string
	for _, mod := range seen.order {
		if !mod.touched {
			os.Remove(mod.WorkingCopy)
			continue
		}
		diff, err := o.regen.Diff(ctx, mod.WorkingCopy, mod.OutputFile, mod.Target)
		if err != nil {
			logger.Error("patch regeneration failed", "target", mod.Target, "error", err)
			summary.Failed = append(summary.Failed, mod.Target)
			continue
		}
		summary.Recovered = append(summary.Recovered, mod.Target)
		if mod.retained {
			summary.Retained = append(summary.Retained, mod.Target)
		}
		if !regen.IsPlaceholder(diff) {
			diffs = append(diffs, diff)
		}
	}

	summary.PatchPath = filepath.Join(o.cfg.OutputDir, g.Name)
	content := Consolidate(diffs, summary.Retained)
	summary.NoDiff = regen.IsPlaceholder(content)
	summary.PatchBytes = len(content)

	if err := o.beforeWrite(summary.PatchPath); err != nil {
		logger.Error("could not record output patch", "error", err)
	}
	if err := fs.WriteFile(summary.PatchPath, []byte(content)); err != nil {
		logger.Error("could not write output patch", "path", summary.PatchPath, "error", err)
		summary.Failed = append(summary.Failed, summary.PatchPath)
		return summary
	}
	logger.Info("generated patch",
		"path", summary.PatchPath,
		"size", humanize.Bytes(uint64(summary.PatchBytes)),
		"files", len(diffs),
	)
	return summary
}

// processReject applies one reject file to its target's working copy.
func (o *Orchestrator) processReject(ctx context.Context, rej string, seen *targets) ([]model.HunkOutcome, error) {
	logger := logging.FromContext(ctx)

	content, err := os.ReadFile(rej)
	if err != nil {
		return nil, fmt.Errorf("read reject: %w", err)
	}
	record := parser.ParseReject(string(content), rej)
	if len(record.Hunks) == 0 {
		logger.Warn("no hunks in reject file, nothing to recover")
		return nil, nil
	}

	target := record.PrimaryFile()
	src, err := o.resolve(target)
	if err != nil {
		return nil, err
	}
	rel := o.resolver.Relative(src)
	logger.Debug("reject target resolved", "target", rel, "hunks", len(record.Hunks))

	mod, ok := seen.byRel[rel]
	if !ok {
		mod = &modification{ModificationRecord: model.ModificationRecord{
			Target:       rel,
			OriginalFile: src,
			WorkingCopy:  filepath.Join(o.cfg.OutputDir, filepath.FromSlash(rel)+copySuffix),
			OutputFile:   filepath.Join(o.cfg.OutputDir, filepath.FromSlash(rel)),
		}}
		if err := o.beforeWrite(mod.WorkingCopy, mod.OutputFile); err != nil {
			return nil, err
		}
		os.Remove(mod.OutputFile)
		if err := fs.CopyFile(src, mod.WorkingCopy); err != nil {
			return nil, fmt.Errorf("copy pristine source: %w", err)
		}
		seen.byRel[rel] = mod
		seen.order = append(seen.order, mod)
	}

	input := mod.OriginalFile
	if mod.touched {
		input = mod.OutputFile
	}
	outcomes, err := o.applier.ApplyFile(ctx, input, mod.OutputFile, rel, record.Hunks)
	for i := range outcomes {
		outcomes[i].Reject = rej
		out := outcomes[i]
		switch {
		case out.Err != nil:
			logger.Warn("hunk not applied", "hunk", out.Index+1, "target", rel, "error", out.Err)
		case out.Retained > 0:
			mod.retained = true
		}
	}
	if err != nil && !errors.Is(err, patcher.ErrNoChangesApplied) {
		return outcomes, err
	}
	if err == nil {
		mod.touched = true
	}
	return outcomes, nil
}

// resolve finds the source file for a hunk target: as written, with the
// leading path component stripped, or by base name anywhere in the tree.
func (o *Orchestrator) resolve(target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("%w: reject names no target", patcher.ErrSourceMissing)
	}
	if src := o.resolver.ResolveExisting(target); src != "" {
		return src, nil
	}
	if !strings.ContainsAny(target, `/\`) {
		for _, dir := range o.resolver.Dirs() {
			found, err := fs.FindFile(dir, target)
			if err != nil {
				return "", err
			}
			if found != "" {
				return found, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", patcher.ErrSourceMissing, target)
}

// Consolidate joins per-file diffs into one patch. Without diffs it returns
// the no-differences placeholder. Files listed in retained are named in a
// leading comment.
func Consolidate(diffs, retained []string) string {
	if len(diffs) == 0 {
		return regen.NoDiffPlaceholder
	}
	var sb strings.Builder
	if len(retained) > 0 {
		sb.WriteString(RetainedNotePrefix)
		sb.WriteString("deletions kept as additions, review: ")
		sb.WriteString(strings.Join(retained, ", "))
		sb.WriteString("\n")
	}
	for _, d := range diffs {
		sb.WriteString(d)
		if !strings.HasSuffix(d, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
