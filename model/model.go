package model

// ChangeKind tags a change line as an addition or a removal.
type ChangeKind int

const (
	Add ChangeKind = iota
	Remove
)

func (k ChangeKind) String() string {
	if k == Remove {
		return "remove"
	}
	return "add"
}

// Change is one added or removed line of a hunk.
type Change struct {
	Kind ChangeKind
	Text string
	// OldOffset counts the old-side lines (context and removals) that precede
	// this change inside the hunk. It positions the change relative to the
	// first context line once the hunk has been anchored.
	OldOffset int
}

// Hunk is one rejected unit of change recovered from a reject file.
type Hunk struct {
	File string // "" when the reject carried no path for this hunk
	// StartLine and EndLine are the 1-based old-side range from the hunk
	// header. StartLine is 0 when the header carried no usable range.
	StartLine int
	EndLine   int
	Context   []string // trimmed, in order; matching evidence only
	Changes   []Change
}

// HasStart reports whether the hunk declared an old-side start line.
func (h Hunk) HasStart() bool {
	return h.StartLine > 0
}

// RejectRecord holds the hunks parsed from a single reject file.
type RejectRecord struct {
	Path  string
	Hunks []Hunk
}

// PrimaryFile returns the target of the first hunk that names one.
func (r RejectRecord) PrimaryFile() string {
	for _, h := range r.Hunks {
		if h.File != "" {
			return h.File
		}
	}
	return ""
}

// Tier identifies the strategy that produced a hunk's anchor.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierWindow
	TierBoundary
	TierAppend
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierWindow:
		return "window"
	case TierBoundary:
		return "boundary"
	case TierAppend:
		return "append"
	default:
		return "none"
	}
}

// MatchResult is the outcome of a context search.
type MatchResult struct {
	AnchorLine int // 0-based index in the file where the matched run starts
	ContextAt  int // index into the hunk's context where the run starts
	Confidence int // length of the matched run
}

// Found reports whether the search matched anything.
func (m MatchResult) Found() bool {
	return m.Confidence > 0
}

// ModificationRecord tracks the files needed to regenerate a diff for one target.
type ModificationRecord struct {
	Target       string // path relative to the source tree
	OriginalFile string // the file in the source tree
	WorkingCopy  string // pristine copy taken before any hunk was applied
	OutputFile   string // modified result
}

// HunkOutcome describes what happened to a single hunk.
type HunkOutcome struct {
	Reject   string
	Target   string
	Index    int
	Tier     Tier
	Anchor   int
	Added    int
	Removed  int
	Retained int // deletions kept as additions because the line did not match
	Skipped  int // deletions dropped because they could not be located
	Err      error
}

// Applied reports whether the hunk changed the file.
func (o HunkOutcome) Applied() bool {
	return o.Err == nil && (o.Added > 0 || o.Removed > 0 || o.Retained > 0)
}

// GroupSummary describes one consolidated output patch.
type GroupSummary struct {
	PatchName  string
	PatchPath  string
	PatchBytes int
	NoDiff     bool
	Recovered  []string // targets with at least one applied hunk
	Retained   []string // targets where deletions were kept as additions
	Failed     []string // rejects or targets that could not be processed
	Outcomes   []HunkOutcome
}

// Summary holds the results of an operation for display.
type Summary struct {
	RunID    string
	Groups   []GroupSummary
	Reverted []string
	Failed   []string
	Message  string
}
