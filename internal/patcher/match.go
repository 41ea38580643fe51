package patcher

import (
	"strings"

	"github.com/sokinpui/rejfix/model"
)

// normalizeLineForMatching prepares a line for comparison by trimming whitespace
// and normalizing all internal whitespace sequences to a single space.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// Matcher locates a hunk's context inside a file. Comparison is resilient to
// whitespace and empty line changes: blank lines are filtered out of both
// sides and the survivors are mapped back to their original indices.
type Matcher struct {
	// JunkMinLines is the file length from which lines occurring in more than
	// 1% of the file (plus one) are not allowed to start or extend a run.
	// Zero disables the filter.
	JunkMinLines int
}

type filtered struct {
	lines    []string
	original []int
}

func filterLines(lines []string, from, to int) filtered {
	var f filtered
	for i := from; i < to; i++ {
		normalized := normalizeLineForMatching(lines[i])
		if normalized != "" {
			f.lines = append(f.lines, normalized)
			f.original = append(f.original, i)
		}
	}
	return f
}

// Exact finds the longest contiguous run of the context shared with the whole
// file. Among equally long runs the one starting nearest prefer wins.
func (m Matcher) Exact(context, lines []string, prefer int) model.MatchResult {
	file := filterLines(lines, 0, len(lines))
	return m.match(context, file, m.junk(file.lines), prefer)
}

// Window repeats the search inside window lines either side of the 1-based
// start line, without the popular-line filter.
func (m Matcher) Window(context, lines []string, start, window int) model.MatchResult {
	center := max(0, start-1)
	from := max(0, center-window)
	to := min(len(lines), center+window)
	if from >= to {
		return model.MatchResult{}
	}
	file := filterLines(lines, from, to)
	return m.match(context, file, nil, center)
}

func (m Matcher) match(context []string, file filtered, junk map[string]bool, prefer int) model.MatchResult {
	hunk := filterLines(context, 0, len(context))
	if len(hunk.lines) == 0 || len(file.lines) == 0 {
		return model.MatchResult{}
	}

	distance := func(j int) int {
		d := file.original[j] - prefer
		if d < 0 {
			return -d
		}
		return d
	}
	i, j, size := longestRun(hunk.lines, file.lines, junk, distance)
	if size == 0 {
		return model.MatchResult{}
	}
	return model.MatchResult{
		AnchorLine: file.original[j],
		ContextAt:  hunk.original[i],
		Confidence: size,
	}
}

// junk returns the popular lines of a long file.
func (m Matcher) junk(lines []string) map[string]bool {
	if m.JunkMinLines <= 0 || len(lines) < m.JunkMinLines {
		return nil
	}
	counts := make(map[string]int, len(lines))
	for _, line := range lines {
		counts[line]++
	}
	limit := len(lines)/100 + 1
	junk := make(map[string]bool)
	for line, n := range counts {
		if n > limit {
			junk[line] = true
		}
	}
	return junk
}

// longestRun returns the start in a, the start in b and the length of the
// longest common contiguous run. Ties go to the smallest distance(start in b),
// then to the earliest run found.
func longestRun(a, b []string, junk map[string]bool, distance func(int) int) (int, int, int) {
	bestI, bestJ, best := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := range a {
		for j := range b {
			if a[i] != b[j] || junk[b[j]] {
				cur[j+1] = 0
				continue
			}
			k := prev[j] + 1
			cur[j+1] = k
			si, sj := i-k+1, j-k+1
			if k > best || (k == best && distance(sj) < distance(bestJ)) {
				bestI, bestJ, best = si, sj, k
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, best
}
