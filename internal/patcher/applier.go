package patcher

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sokinpui/rejfix/internal/fs"
	"github.com/sokinpui/rejfix/internal/locator"
	"github.com/sokinpui/rejfix/internal/logging"
	"github.com/sokinpui/rejfix/model"
)

var (
	// ErrNoChangesApplied is reported when no addition landed and no deletion matched.
	ErrNoChangesApplied = errors.New("no changes applied")
	// ErrSourceMissing is reported when a hunk's target file does not exist.
	ErrSourceMissing = errors.New("source file not found")
)

// DefaultWindow is the number of lines searched either side of a hunk's
// declared start line.
const DefaultWindow = 50

// Applier reapplies rejected hunks to drifted files.
type Applier struct {
	Matcher Matcher
	Locator *locator.Locator
	Window  int
}

// NewApplier creates an Applier. A non-positive window selects DefaultWindow.
func NewApplier(loc *locator.Locator, window, junkMinLines int) *Applier {
	if window <= 0 {
		window = DefaultWindow
	}
	if loc == nil {
		loc = locator.New(locator.DefaultRules())
	}
	return &Applier{
		Matcher: Matcher{JunkMinLines: junkMinLines},
		Locator: loc,
		Window:  window,
	}
}

// Apply applies one hunk to lines and returns the new content. On failure the
// input is returned unchanged and the outcome carries the error.
func (a *Applier) Apply(ctx context.Context, lines []string, hunk model.Hunk, fileName string) ([]string, model.HunkOutcome) {
	logger := logging.FromContext(ctx)
	outcome := model.HunkOutcome{Target: fileName}

	prefer := 0
	if hunk.HasStart() {
		prefer = hunk.StartLine - 1
	}

	var result []string
	if m := a.Matcher.Exact(hunk.Context, lines, prefer); m.Found() {
		outcome.Tier = model.TierExact
		result = a.applyMatched(lines, hunk, m, &outcome)
	} else if m := a.window(hunk, lines); m.Found() {
		outcome.Tier = model.TierWindow
		result = a.applyMatched(lines, hunk, m, &outcome)
	} else if hunk.HasStart() {
		outcome.Tier = model.TierBoundary
		anchor := a.Locator.FindBoundary(lines, hunk.StartLine, fileName)
		if a.Locator.IsHookFile(fileName) && a.Locator.MentionsTeardown(changeTexts(hunk)...) {
			if guard, ok := a.Locator.GuardNear(lines, anchor, a.Window); ok {
				logger.Debug("feature guard near boundary", "file", fileName, "line", guard)
				anchor = guard
			}
		}
		outcome.Anchor = anchor
		result = applyAt(lines, hunk, anchor, nil, &outcome)
	} else {
		outcome.Tier = model.TierAppend
		outcome.Anchor = len(lines)
		result = appendAdditions(lines, hunk.Changes, &outcome)
	}

	logger.Debug("hunk anchored",
		"file", fileName,
		"tier", outcome.Tier.String(),
		"anchor", outcome.Anchor+1,
		"added", outcome.Added,
		"removed", outcome.Removed,
		"retained", outcome.Retained,
	)
	if outcome.Retained > 0 {
		logger.Warn("deletion did not match; kept the line as an addition",
			"file", fileName, "count", outcome.Retained)
	}
	if !outcome.Applied() {
		outcome.Err = ErrNoChangesApplied
		return lines, outcome
	}
	return result, outcome
}

func (a *Applier) window(hunk model.Hunk, lines []string) model.MatchResult {
	if !hunk.HasStart() {
		return model.MatchResult{}
	}
	return a.Matcher.Window(hunk.Context, lines, hunk.StartLine, a.Window)
}

// applyMatched positions each change relative to the matched context run.
// The run's file index minus the old-side offset of its first context line
// gives the file index of the hunk's first old-side line.
func (a *Applier) applyMatched(lines []string, hunk model.Hunk, m model.MatchResult, outcome *model.HunkOutcome) []string {
	base := m.AnchorLine - contextOldOffset(hunk, m.ContextAt)
	anchor := base
	if len(hunk.Changes) > 0 {
		anchor += hunk.Changes[0].OldOffset
	}
	outcome.Anchor = min(max(0, anchor), len(lines))
	return applyAt(lines, hunk, outcome.Anchor, &base, outcome)
}

// applyAt applies changes left to right starting at anchor. With a base the
// cursor first moves over the context separating change blocks; without one
// every change lands at the cursor.
func applyAt(lines []string, hunk model.Hunk, anchor int, base *int, outcome *model.HunkOutcome) []string {
	out := make([]string, 0, len(lines)+len(hunk.Changes))
	out = append(out, lines[:anchor]...)
	cursor := anchor
	slip := 0

	for _, change := range hunk.Changes {
		if base != nil {
			target := min(max(cursor, *base+change.OldOffset-slip), len(lines))
			out = append(out, lines[cursor:target]...)
			cursor = target
		}

		switch change.Kind {
		case model.Add:
			out = append(out, change.Text)
			outcome.Added++
		case model.Remove:
			if cursor < len(lines) && normalizeLineForMatching(lines[cursor]) == normalizeLineForMatching(change.Text) {
				cursor++
				outcome.Removed++
				continue
			}
			out = append(out, change.Text)
			outcome.Retained++
			// The old line is gone only if the file already continues with
			// the context that followed it; otherwise it was replaced.
			next, ok := contextAfter(hunk, change.OldOffset)
			if !ok || (cursor < len(lines) && normalizeLineForMatching(lines[cursor]) == normalizeLineForMatching(next)) {
				slip++
			}
		}
	}
	return append(out, lines[cursor:]...)
}

func appendAdditions(lines []string, changes []model.Change, outcome *model.HunkOutcome) []string {
	out := append(make([]string, 0, len(lines)+len(changes)), lines...)
	for _, change := range changes {
		if change.Kind == model.Add {
			out = append(out, change.Text)
			outcome.Added++
		} else {
			outcome.Skipped++
		}
	}
	return out
}

// contextOldOffset returns how many old-side lines precede the context line
// at index c. Removal slots are known from the changes; context lines fill
// the remaining slots in order.
func contextOldOffset(hunk model.Hunk, c int) int {
	removed := removalOffsets(hunk)
	seen := 0
	for pos := 0; ; pos++ {
		if removed[pos] {
			continue
		}
		if seen == c {
			return pos
		}
		seen++
	}
}

// contextAfter returns the first context line whose old-side offset is
// greater than offset.
func contextAfter(hunk model.Hunk, offset int) (string, bool) {
	removed := removalOffsets(hunk)
	c := 0
	for pos := 0; c < len(hunk.Context); pos++ {
		if removed[pos] {
			continue
		}
		if pos > offset {
			return hunk.Context[c], true
		}
		c++
	}
	return "", false
}

func removalOffsets(hunk model.Hunk) map[int]bool {
	removed := make(map[int]bool)
	for _, change := range hunk.Changes {
		if change.Kind == model.Remove {
			removed[change.OldOffset] = true
		}
	}
	return removed
}

func changeTexts(hunk model.Hunk) []string {
	texts := make([]string, len(hunk.Changes))
	for i, change := range hunk.Changes {
		texts[i] = change.Text
	}
	return texts
}

// ApplyFile applies hunks in order to the file at src and writes the result
// to dst. Nothing is written when no hunk changed the file.
func (a *Applier) ApplyFile(ctx context.Context, src, dst, fileName string, hunks []model.Hunk) ([]model.HunkOutcome, error) {
	lines, trailing, err := fs.ReadLines(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, src)
		}
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	if len(lines) == 0 {
		trailing = true
	}

	outcomes := make([]model.HunkOutcome, 0, len(hunks))
	applied := false
	for i, hunk := range hunks {
		var outcome model.HunkOutcome
		lines, outcome = a.Apply(logging.With(ctx, "hunk", i+1), lines, hunk, fileName)
		outcome.Index = i
		if outcome.Applied() {
			applied = true
		}
		outcomes = append(outcomes, outcome)
	}

	if !applied {
		return outcomes, ErrNoChangesApplied
	}
	if err := fs.WriteLines(dst, lines, trailing); err != nil {
		return outcomes, fmt.Errorf("write %s: %w", dst, err)
	}
	return outcomes, nil
}
