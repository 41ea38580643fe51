package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/rejfix/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(os.Stderr, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(os.Stderr, "  "+format+"\n", a...)
}

// --- Summaries ---

// RenderRunSummary formats the result of a recovery run.
func RenderRunSummary(summary model.Summary) string {
	var b strings.Builder
	b.WriteString(HeaderColor.Sprint("--- Recovery Summary ---"))
	b.WriteString("\n")

	if summary.Message != "" {
		b.WriteString(InfoColor.Sprint(summary.Message))
		b.WriteString("\n")
	}

	for _, g := range summary.Groups {
		size := humanize.Bytes(uint64(g.PatchBytes))
		if g.NoDiff {
			b.WriteString(WarningColor.Sprintf("%s: no differences (%s)", g.PatchName, g.PatchPath))
		} else {
			b.WriteString(SuccessColor.Sprintf("%s: %s (%s)", g.PatchName, g.PatchPath, size))
		}
		b.WriteString("\n")
		writeList(&b, SuccessColor, "Recovered %d file(s):", g.Recovered)
		writeList(&b, WarningColor, "Kept %d deletion site(s) as additions, review:", g.Retained)
		writeList(&b, ErrorColor, "Failed %d item(s):", g.Failed)
	}
	if len(summary.Failed) > 0 {
		writeList(&b, ErrorColor, "Failed %d item(s):", summary.Failed)
	}
	return b.String()
}

// PrintRunSummary writes the run summary to stderr.
func PrintRunSummary(summary model.Summary) {
	fmt.Fprint(os.Stderr, RenderRunSummary(summary))
}

func PrintRevertSummary(reverted, failed []string) {
	Header("\n--- Revert Summary ---")
	if len(reverted) == 0 && len(failed) == 0 {
		Info("Nothing to revert.")
		return
	}
	if len(reverted) > 0 {
		Success("Successfully reverted %d file(s):", len(reverted))
		for _, f := range reverted {
			Path("- %s", f)
		}
	}
	if len(failed) > 0 {
		Error("Failed to revert %d file(s):", len(failed))
		for _, f := range failed {
			Path("- %s", f)
		}
		Warning("Files changed since the run were left in place.")
	}
}

func writeList(b *strings.Builder, c *color.Color, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("  ")
	b.WriteString(c.Sprintf(title, len(items)))
	b.WriteString("\n")
	for _, item := range items {
		fmt.Fprintf(b, "    - %s\n", item)
	}
}

// --- Inspect ---

// HunkTable renders parsed reject records as a table, one row per change.
func HunkTable(records []model.RejectRecord) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.AppendHeader(table.Row{"Reject", "Hunk", "File", "Lines", "Context", "Op", "Text"})

	changes := 0
	for _, rec := range records {
		for i, h := range rec.Hunks {
			lines := "-"
			if h.HasStart() {
				lines = fmt.Sprintf("%d-%d", h.StartLine, h.EndLine)
			}
			if len(h.Changes) == 0 {
				tbl.AppendRow(table.Row{rec.Path, i + 1, h.File, lines, len(h.Context), "", ""})
				continue
			}
			for _, c := range h.Changes {
				op := "+"
				if c.Kind == model.Remove {
					op = "-"
				}
				tbl.AppendRow(table.Row{rec.Path, i + 1, h.File, lines, len(h.Context), op, c.Text})
				changes++
			}
		}
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d change(s)", changes)})
	return tbl.Render()
}

type yamlChange struct {
	Op        string `yaml:"op"`
	Text      string `yaml:"text"`
	OldOffset int    `yaml:"old_offset"`
}

type yamlHunk struct {
	File      string       `yaml:"file"`
	StartLine int          `yaml:"start_line,omitempty"`
	EndLine   int          `yaml:"end_line,omitempty"`
	Context   []string     `yaml:"context"`
	Changes   []yamlChange `yaml:"changes"`
}

type yamlRecord struct {
	Reject string     `yaml:"reject"`
	Hunks  []yamlHunk `yaml:"hunks"`
}

// RenderYAML renders parsed reject records as YAML.
func RenderYAML(records []model.RejectRecord) ([]byte, error) {
	out := make([]yamlRecord, 0, len(records))
	for _, rec := range records {
		yr := yamlRecord{Reject: rec.Path, Hunks: make([]yamlHunk, 0, len(rec.Hunks))}
		for _, h := range rec.Hunks {
			yh := yamlHunk{
				File:      h.File,
				StartLine: h.StartLine,
				EndLine:   h.EndLine,
				Context:   h.Context,
				Changes:   make([]yamlChange, 0, len(h.Changes)),
			}
			for _, c := range h.Changes {
				yh.Changes = append(yh.Changes, yamlChange{Op: c.Kind.String(), Text: c.Text, OldOffset: c.OldOffset})
			}
			yr.Hunks = append(yr.Hunks, yh)
		}
		out = append(out, yr)
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return data, nil
}
