package parser

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sokinpui/rejfix/model"
)

// RejectSuffix is the extension patch(1) gives to reject files.
const RejectSuffix = ".rej"

const contextHunkMarker = "***************"

var (
	// unifiedRangeRegex reads the old-side range of "@@ -start[,count] ...".
	unifiedRangeRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))?`)
	// oldSectionRegex reads "*** start[,end] ****" of a context-diff hunk.
	oldSectionRegex = regexp.MustCompile(`^\*\*\* (\d+)(?:,(\d+))? \*\*\*\*`)
	// newSectionRegex matches "--- start[,end] ----" of a context-diff hunk.
	newSectionRegex = regexp.MustCompile(`^--- (\d+)(?:,(\d+))? ----`)
)

type format int

const (
	unified format = iota
	contextDiff
)

// entry is one body line of a hunk, tagged ' ', '-', '+' or '!'.
type entry struct {
	tag  byte
	text string
}

type hunkBuilder struct {
	hunk    model.Hunk
	format  format
	entries []entry // unified body, or the old section of a context diff
	newSide []entry // new section of a context diff
	inNew   bool
	sawOld  bool
}

// ParseReject converts the text of a reject file into hunks. Every hunk
// marker starts a new hunk, so the result has exactly as many hunks as the
// text has markers. Empty or malformed input yields a record with no hunks.
func ParseReject(content, rejectPath string) model.RejectRecord {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")

	var hunks []model.Hunk
	var current *hunkBuilder

	closeHunk := func() {
		if current != nil {
			hunks = append(hunks, current.build())
			current = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.HasPrefix(line, "@@"):
			closeHunk()
			current = &hunkBuilder{format: unified}
			current.hunk.File = lookBackForPath(lines, i)
			if m := unifiedRangeRegex.FindStringSubmatch(line); m != nil {
				start, _ := strconv.Atoi(m[1])
				count := 1
				if m[2] != "" {
					count, _ = strconv.Atoi(m[2])
				}
				current.hunk.StartLine = start
				current.hunk.EndLine = start + count - 1
			}

		case strings.HasPrefix(line, contextHunkMarker):
			closeHunk()
			current = &hunkBuilder{format: contextDiff}
			current.hunk.File = lookBackForPath(lines, i)

		case current == nil:
			// Preamble before the first hunk: file headers, "diff" lines.

		case current.format == unified:
			if isFileHeader(lines, i) {
				i++ // skip the "+++" line as well
				continue
			}
			current.addUnified(line)

		default:
			if isContextFileHeader(lines, i) {
				i++
				continue
			}
			current.addContext(line)
		}
	}
	closeHunk()

	inheritPaths(hunks, rejectPath)

	return model.RejectRecord{Path: rejectPath, Hunks: hunks}
}

// lookBackForPath returns the path from a "--- " header one or two lines
// above the hunk marker at index i.
func lookBackForPath(lines []string, i int) string {
	for back := 1; back <= 2; back++ {
		if i-back < 0 {
			break
		}
		prev := lines[i-back]
		if !strings.HasPrefix(prev, "--- ") || newSectionRegex.MatchString(prev) {
			continue
		}
		return headerPath(prev)
	}
	return ""
}

// headerPath extracts the path from a "--- path[\ttimestamp]" line.
func headerPath(line string) string {
	fields := strings.Fields(strings.TrimPrefix(line, "--- "))
	if len(fields) == 0 || fields[0] == "/dev/null" {
		return ""
	}
	return fields[0]
}

// isFileHeader reports whether lines[i] starts a "--- "/"+++ " header pair,
// which appears mid-record when a reject covers several files.
func isFileHeader(lines []string, i int) bool {
	return strings.HasPrefix(lines[i], "--- ") &&
		i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ")
}

// isContextFileHeader is the context-diff counterpart of isFileHeader.
func isContextFileHeader(lines []string, i int) bool {
	return strings.HasPrefix(lines[i], "*** ") && !oldSectionRegex.MatchString(lines[i]) &&
		i+1 < len(lines) && strings.HasPrefix(lines[i+1], "--- ") && !newSectionRegex.MatchString(lines[i+1])
}

func (b *hunkBuilder) addUnified(line string) {
	switch {
	case strings.HasPrefix(line, `\`):
		// "\ No newline at end of file"
	case strings.HasPrefix(line, "+ "), strings.HasPrefix(line, "- "):
		b.entries = append(b.entries, entry{tag: line[0], text: line[2:]})
	case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"):
		b.entries = append(b.entries, entry{tag: line[0], text: line[1:]})
	default:
		b.entries = append(b.entries, entry{tag: ' ', text: strings.TrimSpace(line)})
	}
}

func (b *hunkBuilder) addContext(line string) {
	if !b.sawOld && !b.inNew {
		if m := oldSectionRegex.FindStringSubmatch(line); m != nil {
			b.sawOld = true
			start, _ := strconv.Atoi(m[1])
			end := start
			if m[2] != "" {
				end, _ = strconv.Atoi(m[2])
			}
			b.hunk.StartLine = start
			b.hunk.EndLine = end
			return
		}
	}
	if newSectionRegex.MatchString(line) {
		b.inNew = true
		return
	}

	var e entry
	switch {
	case strings.HasPrefix(line, `\`):
		return
	case strings.HasPrefix(line, "+ "), strings.HasPrefix(line, "- "), strings.HasPrefix(line, "! "):
		e = entry{tag: line[0], text: line[2:]}
	default:
		e = entry{tag: ' ', text: strings.TrimSpace(line)}
	}

	if b.inNew {
		b.newSide = append(b.newSide, e)
	} else {
		b.entries = append(b.entries, e)
	}
}

func (b *hunkBuilder) build() model.Hunk {
	body := b.entries
	if b.format == contextDiff {
		body = mergeSections(b.entries, b.newSide)
	}

	h := b.hunk
	h.Context = []string{}
	h.Changes = []model.Change{}
	oldOffset := 0
	for _, e := range body {
		switch e.tag {
		case '+':
			h.Changes = append(h.Changes, model.Change{Kind: model.Add, Text: e.text, OldOffset: oldOffset})
		case '-':
			h.Changes = append(h.Changes, model.Change{Kind: model.Remove, Text: e.text, OldOffset: oldOffset})
			oldOffset++
		default:
			h.Context = append(h.Context, e.text)
			oldOffset++
		}
	}
	return h
}

// mergeSections interleaves the old and new sections of a context-diff hunk
// into unified order. A section with no changes is omitted by diff(1), in
// which case the other section already carries the full context.
func mergeSections(oldSide, newSide []entry) []entry {
	if len(newSide) == 0 {
		return retag(oldSide, '-')
	}
	if len(oldSide) == 0 {
		return retag(newSide, '+')
	}

	var merged []entry
	i, j := 0, 0
	for i < len(oldSide) || j < len(newSide) {
		if i < len(oldSide) && j < len(newSide) && oldSide[i].tag == ' ' && newSide[j].tag == ' ' {
			merged = append(merged, oldSide[i])
			i++
			j++
			continue
		}
		for i < len(oldSide) && oldSide[i].tag != ' ' {
			merged = append(merged, entry{tag: '-', text: oldSide[i].text})
			i++
		}
		for j < len(newSide) && newSide[j].tag != ' ' {
			merged = append(merged, entry{tag: '+', text: newSide[j].text})
			j++
		}
		switch {
		case i < len(oldSide) && j >= len(newSide):
			merged = append(merged, oldSide[i])
			i++
		case j < len(newSide) && i >= len(oldSide):
			merged = append(merged, newSide[j])
			j++
		}
	}
	return merged
}

// retag maps "!" lines of a lone section onto the given change tag.
func retag(entries []entry, changed byte) []entry {
	out := make([]entry, len(entries))
	for i, e := range entries {
		if e.tag == '!' {
			e.tag = changed
		}
		out[i] = e
	}
	return out
}

// inheritPaths fills hunks without a path from the nearest named hunk before
// them (or the first named one), and when the whole record names no file at
// all, from the reject file's own name.
func inheritPaths(hunks []model.Hunk, rejectPath string) {
	last := ""
	for _, h := range hunks {
		if h.File != "" {
			last = h.File
			break
		}
	}
	if last == "" {
		last = DerivedTarget(rejectPath)
	}
	for i := range hunks {
		if hunks[i].File == "" {
			hunks[i].File = last
			continue
		}
		last = hunks[i].File
	}
}

// DerivedTarget returns the file name a reject refers to when it carries no
// header: its base name without the reject suffix.
func DerivedTarget(rejectPath string) string {
	return strings.TrimSuffix(filepath.Base(rejectPath), RejectSuffix)
}
