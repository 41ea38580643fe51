// Package locator finds structural insertion points in a source file when a
// hunk's context can no longer be matched textually.
package locator

import (
	"log/slog"
	"regexp"
	"strings"
)

// Rules describes the specialized hook-registration file and the markers
// that delimit insertion points inside it.
type Rules struct {
	// HookFile is matched as a suffix of the target's base name.
	HookFile string
	// TeardownFuncs are function names whose definitions act as boundaries.
	TeardownFuncs []string
	// Guard is the feature-guard directive prefix, e.g. "#ifdef CONFIG_X".
	Guard string
}

// DefaultRules returns the rules for KernelSU's core_hook.c.
func DefaultRules() Rules {
	return Rules{
		HookFile:      "core_hook.c",
		TeardownFuncs: []string{"try_umount", "susfs_try_umount"},
		Guard:         "#ifdef CONFIG_KSU_SUSFS",
	}
}

// genericBoundaryRegex matches a C function signature with a simple return type.
var genericBoundaryRegex = regexp.MustCompile(`^(static\s+)?(void|int|bool)\s+\w+\s*\(`)

// Locator finds the nearest boundary around a target line.
type Locator struct {
	rules    Rules
	teardown *regexp.Regexp
	syntax   bool
	logger   *slog.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithSyntax enables tree-sitter classification of C sources.
func WithSyntax(enabled bool) Option {
	return func(l *Locator) { l.syntax = enabled }
}

// WithLogger sets the logger used for debug traces.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locator) { l.logger = logger }
}

// New creates a Locator for the given rules.
func New(rules Rules, opts ...Option) *Locator {
	l := &Locator{rules: rules, logger: slog.New(slog.DiscardHandler)}
	if len(rules.TeardownFuncs) > 0 {
		names := make([]string, len(rules.TeardownFuncs))
		for i, name := range rules.TeardownFuncs {
			names[i] = regexp.QuoteMeta(name)
		}
		l.teardown = regexp.MustCompile(`^(static\s+)?void\s+(` + strings.Join(names, "|") + `)\s*\(`)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsHookFile reports whether fileName is the specialized hook-registration file.
func (l *Locator) IsHookFile(fileName string) bool {
	return l.rules.HookFile != "" && strings.HasSuffix(fileName, l.rules.HookFile)
}

// FindBoundary returns the 0-based index at which to insert lines near the
// 1-based target line. It searches backward then forward from the target,
// inserting after a boundary found behind it or before one found ahead of
// it. Without any boundary the end of the file is returned.
func (l *Locator) FindBoundary(lines []string, target int, fileName string) int {
	if len(lines) == 0 {
		return 0
	}
	start := min(max(0, target-1), len(lines)-1)

	if l.IsHookFile(fileName) {
		if idx, ok := search(lines, start, l.isHookBoundary); ok {
			l.logger.Debug("hook boundary found", "file", fileName, "line", idx+1)
			return idx
		}
	}

	isBoundary := l.genericClassifier(lines, fileName)
	if idx, ok := search(lines, start, isBoundary); ok {
		l.logger.Debug("function/block boundary found", "file", fileName, "line", idx+1)
		return idx
	}

	l.logger.Debug("no boundary found, using end of file", "file", fileName)
	return len(lines)
}

// GuardNear returns the index just inside the first guard directive within
// window lines of index, scanning from the top of that range.
func (l *Locator) GuardNear(lines []string, index, window int) (int, bool) {
	if l.rules.Guard == "" {
		return 0, false
	}
	from := max(0, index-window)
	to := min(len(lines), index+window)
	for i := from; i < to; i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), l.rules.Guard) {
			return i + 1, true
		}
	}
	return 0, false
}

// MentionsTeardown reports whether any of texts names a teardown function.
func (l *Locator) MentionsTeardown(texts ...string) bool {
	for _, text := range texts {
		for _, name := range l.rules.TeardownFuncs {
			if name != "" && strings.Contains(text, name) {
				return true
			}
		}
	}
	return false
}

func (l *Locator) isHookBoundary(line string, _ int) bool {
	trimmed := strings.TrimSpace(line)
	if l.teardown != nil && l.teardown.MatchString(trimmed) {
		return true
	}
	return l.rules.Guard != "" && strings.HasPrefix(trimmed, l.rules.Guard)
}

func (l *Locator) genericClassifier(lines []string, fileName string) func(string, int) bool {
	if l.syntax && isCSource(fileName) {
		if rows, ok := syntaxBoundaries(lines); ok {
			return func(_ string, i int) bool { return rows[i] }
		}
		l.logger.Debug("syntax classification unavailable, using patterns", "file", fileName)
	}
	return isGenericBoundary
}

func isGenericBoundary(line string, _ int) bool {
	trimmed := strings.TrimSpace(line)
	return genericBoundaryRegex.MatchString(trimmed) || strings.HasSuffix(trimmed, "{")
}

// search scans backward from start, then forward. A hit behind the target
// yields the index after it; a hit ahead yields its own index.
func search(lines []string, start int, isBoundary func(string, int) bool) (int, bool) {
	for i := start; i >= 0; i-- {
		if isBoundary(lines[i], i) {
			return i + 1, true
		}
	}
	for i := start; i < len(lines); i++ {
		if isBoundary(lines[i], i) {
			return i, true
		}
	}
	return 0, false
}
