// Package patcher reapplies rejected hunks to drifted source files and drives
// the external patch tool that produces the rejects in the first place.
package patcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sokinpui/rejfix/internal/fs"
	"github.com/sokinpui/rejfix/internal/logging"
)

// ErrPatchToolMissing is returned when patch(1) is not on PATH.
var ErrPatchToolMissing = errors.New("patch tool not found")

// ApplyPatchFile runs "patch -p1 --forward" with patchFile inside dir and
// returns the reject files left anywhere in the tree. A failing patch is
// expected: the hunks that did not apply are exactly what the rejects hold.
// Hunks already present in the tree are skipped rather than reversed.
func ApplyPatchFile(ctx context.Context, patchFile, dir string) ([]string, error) {
	logger := logging.FromContext(ctx)

	bin, err := exec.LookPath("patch")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatchToolMissing, err)
	}

	cmd := exec.CommandContext(ctx, bin, "-p1", "--batch", "--forward", "--no-backup-if-mismatch", "-i", patchFile)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run patch: %w", err)
		}
		logger.Warn("patch did not apply cleanly",
			"patch", patchFile,
			"exit", exitErr.ExitCode(),
			"output", strings.TrimSpace(out.String()),
		)
	} else {
		logger.Info("patch applied cleanly", "patch", patchFile)
	}

	rejects, err := fs.FindRejects(dir, true)
	if err != nil {
		return nil, err
	}
	logger.Debug("rejects collected", "dir", dir, "count", len(rejects))
	return rejects, nil
}
