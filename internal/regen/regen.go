// Package regen derives a patch from a pristine copy and a modified file.
package regen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sokinpui/rejfix/internal/git"
	"github.com/sokinpui/rejfix/internal/logging"
)

// NoDiffPlaceholder stands in for an empty patch. Consumers treat it as a
// no-op.
const NoDiffPlaceholder = "# No differences found, but patch generated as requested\n"

// Diff backends.
const (
	ToolGit     = "git"
	ToolBuiltin = "builtin"
)

const contextLines = 3

// ErrMissingInput is returned when either side of a comparison is absent.
var ErrMissingInput = errors.New("diff input missing")

// IsPlaceholder reports whether text is the no-differences placeholder.
func IsPlaceholder(text string) bool {
	return text == NoDiffPlaceholder
}

// Regenerator produces unified diffs between file pairs.
type Regenerator struct {
	tool string
}

// New creates a Regenerator for the given tool. The git backend falls back to
// the builtin one when git is not installed.
func New(tool string) *Regenerator {
	if tool != ToolBuiltin && !git.Available() {
		tool = ToolBuiltin
	}
	if tool != ToolBuiltin {
		tool = ToolGit
	}
	return &Regenerator{tool: tool}
}

// Tool returns the backend in use.
func (r *Regenerator) Tool() string {
	return r.tool
}

// Diff compares original against modified and returns a patch whose headers
// name rel on both sides. Identical inputs yield NoDiffPlaceholder.
func (r *Regenerator) Diff(ctx context.Context, original, modified, rel string) (string, error) {
	for _, path := range []string{original, modified} {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
	}

	var (
		out    string
		differ bool
		err    error
	)
	if r.tool == ToolGit {
		out, differ, err = git.DiffNoIndex(ctx, original, modified)
		if err == nil && differ {
			out = rewriteHeaders(out, rel)
		}
	} else {
		out, differ, err = builtinDiff(original, modified, rel)
	}
	if err != nil {
		return "", err
	}

	logging.FromContext(ctx).Debug("patch regenerated",
		"target", rel,
		"tool", r.tool,
		"differ", differ,
		"size", len(out),
	)
	if !differ {
		return NoDiffPlaceholder, nil
	}
	return out, nil
}

// rewriteHeaders replaces the temporary paths in a git diff header so the
// patch applies to the source tree with "patch -p1".
func rewriteHeaders(diff, rel string) string {
	lines := strings.SplitAfter(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "@@"):
			return strings.Join(lines, "")
		case strings.HasPrefix(line, "diff --git "):
			lines[i] = fmt.Sprintf("diff --git a/%s b/%s\n", rel, rel)
		case strings.HasPrefix(line, "--- "):
			lines[i] = fmt.Sprintf("--- a/%s\n", rel)
		case strings.HasPrefix(line, "+++ "):
			lines[i] = fmt.Sprintf("+++ b/%s\n", rel)
		}
	}
	return strings.Join(lines, "")
}

type diffLine struct {
	op   byte // ' ', '-' or '+'
	text string
	eol  bool
}

func builtinDiff(original, modified, rel string) (string, bool, error) {
	from, err := os.ReadFile(original)
	if err != nil {
		return "", false, err
	}
	to, err := os.ReadFile(modified)
	if err != nil {
		return "", false, err
	}
	if string(from) == string(to) {
		return "", false, nil
	}

	dmp := diffmatchpatch.New()
	src, dst, lineArray := dmp.DiffLinesToRunes(string(from), string(to))
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), lineArray)

	var ops []diffLine
	for _, d := range diffs {
		op := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = '-'
		case diffmatchpatch.DiffInsert:
			op = '+'
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			text, eol := strings.CutSuffix(line, "\n")
			ops = append(ops, diffLine{op: op, text: text, eol: eol})
		}
	}
	return unified(rel, ops), true, nil
}

func buildHunkHeader(oldStart, oldLines, newStart, newLines int) string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", oldStart, oldLines, newStart, newLines)
}

// unified renders ops as a unified diff with three lines of context.
func unified(rel string, ops []diffLine) string {
	oldBefore := make([]int, len(ops)+1)
	newBefore := make([]int, len(ops)+1)
	var changes []int
	for i, l := range ops {
		oldBefore[i+1], newBefore[i+1] = oldBefore[i], newBefore[i]
		if l.op != '+' {
			oldBefore[i+1]++
		}
		if l.op != '-' {
			newBefore[i+1]++
		}
		if l.op != ' ' {
			changes = append(changes, i)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n", rel, rel, rel, rel)

	for _, g := range groupChanges(changes, len(ops)) {
		start, end := g[0], g[1]
		oldCount := oldBefore[end] - oldBefore[start]
		newCount := newBefore[end] - newBefore[start]
		oldStart, newStart := oldBefore[start], newBefore[start]
		if oldCount > 0 {
			oldStart++
		}
		if newCount > 0 {
			newStart++
		}
		sb.WriteString(buildHunkHeader(oldStart, oldCount, newStart, newCount))
		for _, l := range ops[start:end] {
			sb.WriteByte(l.op)
			sb.WriteString(l.text)
			sb.WriteByte('\n')
			if !l.eol {
				sb.WriteString("\\ No newline at end of file\n")
			}
		}
	}
	return sb.String()
}

// groupChanges merges change indices whose context windows touch into
// [start, end) ranges over the op list.
func groupChanges(changes []int, n int) [][2]int {
	if len(changes) == 0 {
		return nil
	}
	var groups [][2]int
	start := max(0, changes[0]-contextLines)
	end := min(n, changes[0]+contextLines+1)
	for _, c := range changes[1:] {
		if c-contextLines <= end {
			end = min(n, c+contextLines+1)
			continue
		}
		groups = append(groups, [2]int{start, end})
		start = c - contextLines
		end = min(n, c+contextLines+1)
	}
	return append(groups, [2]int{start, end})
}
