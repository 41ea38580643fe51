// Package git drives the git binary for cloning source trees, pinning them
// to a commit and diffing two paths outside any repository.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sokinpui/rejfix/internal/logging"
)

// ErrCommandFailed wraps a non-zero git exit that the caller did not expect.
var ErrCommandFailed = errors.New("git command failed")

// Available reports whether git is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.FromContext(ctx).Debug("running git", "args", strings.Join(args, " "), "dir", dir)
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%w: git %s: %s", ErrCommandFailed, args[0], strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Clone clones branch of url into dir. An existing dir is left alone and
// reported as not cloned.
func Clone(ctx context.Context, url, branch, dir string) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		logging.FromContext(ctx).Info("repository already present, skipping clone", "dir", dir)
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return false, fmt.Errorf("create parent of %s: %w", dir, err)
	}

	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dir)
	if _, err := run(ctx, "", args...); err != nil {
		return false, err
	}
	return true, nil
}

// Checkout checks out commit inside the repository at dir. An empty commit
// is a no-op.
func Checkout(ctx context.Context, dir, commit string) error {
	if commit == "" {
		return nil
	}
	_, err := run(ctx, dir, "checkout", commit)
	return err
}

// DiffNoIndex compares two paths with "git diff --no-index". git exits 1
// when the inputs differ, so that exit is a result, not a failure. The
// boolean reports whether any difference was found.
func DiffNoIndex(ctx context.Context, oldPath, newPath string) (string, bool, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--no-index", "--no-color", "--", oldPath, newPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return "", false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return stdout.String(), true, nil
	}
	return "", false, fmt.Errorf("%w: git diff: %s", ErrCommandFailed, strings.TrimSpace(stderr.String()))
}

// FindRoot returns the top level of the repository containing dir.
func FindRoot(ctx context.Context, dir string) (string, error) {
	out, err := run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
