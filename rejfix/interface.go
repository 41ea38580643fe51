package rejfix

import (
	"context"
	"fmt"

	"github.com/sokinpui/rejfix/internal/batch"
	"github.com/sokinpui/rejfix/internal/locator"
	"github.com/sokinpui/rejfix/internal/patcher"
	"github.com/sokinpui/rejfix/internal/regen"
)

// Config for using rejfix as a library.
type Config struct {
	// Directory holding the files the rejects target.
	SourceDir string
	// Directory receiving the regenerated patches and modified files.
	OutputDir string
	// Name of the single output patch. Empty writes one patch per reject.
	PatchName string
	// Lines searched either side of a hunk's start line. Zero uses the default.
	Window int
	// Regeneration backend, "git" or "builtin". Empty selects "git".
	DiffTool string
}

// Recover applies the given reject files to SourceDir and writes the
// regenerated patches to OutputDir. It returns a summary of the run in a map.
func Recover(ctx context.Context, rejects []string, config Config) (map[string][]string, error) {
	if config.DiffTool == "" {
		config.DiffTool = regen.ToolGit
	}
	applier := patcher.NewApplier(locator.New(locator.DefaultRules()), config.Window, 0)
	orchestrator, err := batch.New(batch.Config{
		PatchName: config.PatchName,
		SourceDir: config.SourceDir,
		OutputDir: config.OutputDir,
	}, applier, regen.New(config.DiffTool))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rejfix: %w", err)
	}

	groups, err := orchestrator.Run(ctx, rejects)
	if err != nil {
		return nil, err
	}

	result := map[string][]string{
		"Patches":   {},
		"Recovered": {},
		"Retained":  {},
		"Failed":    {},
	}
	for _, g := range groups {
		result["Patches"] = append(result["Patches"], g.PatchPath)
		result["Recovered"] = append(result["Recovered"], g.Recovered...)
		result["Retained"] = append(result["Retained"], g.Retained...)
		result["Failed"] = append(result["Failed"], g.Failed...)
	}
	return result, nil
}
