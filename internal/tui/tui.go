package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/sokinpui/rejfix/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// Runner performs the work shown by the TUI.
type Runner func(ctx context.Context) (model.Summary, error)

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// ProgressMsg reports how many items of a run are done.
type ProgressMsg struct {
	Current int
	Total   int
}

// --- Model ---
type Model struct {
	ctx      context.Context
	run      Runner
	spinner  spinner.Model
	state    state
	progress ProgressMsg
	summary  summaryMsg
	err      error
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

func New(ctx context.Context, run Runner) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:     ctx,
		run:     run,
		spinner: s,
		state:   stateProcessing,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case ProgressMsg:
		m.progress = msg
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		if m.progress.Total > 0 {
			return fmt.Sprintf("%s Processing... [%d/%d]", m.spinner.View(), m.progress.Current, m.progress.Total)
		}
		return fmt.Sprintf("%s Processing...", m.spinner.View())
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error())
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

// Err returns the error the run ended with, if any.
func (m Model) Err() error {
	if m.state != stateError {
		return nil
	}
	if e, ok := m.err.(errorMsg); ok {
		return e.err
	}
	return m.err
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.Message != "" {
		b.WriteString(headerStyle.Render(m.summary.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	for _, g := range m.summary.Groups {
		hasContent = true
		if g.NoDiff {
			b.WriteString(warningStyle.Render(g.PatchName + ": no differences"))
		} else {
			b.WriteString(successStyle.Render(fmt.Sprintf("%s (%s)", g.PatchName, humanize.Bytes(uint64(g.PatchBytes)))))
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(g.PatchPath)))
		writeSection(&b, successStyle, "  Recovered:", g.Recovered)
		writeSection(&b, warningStyle, "  Review (deletions kept as additions):", g.Retained)
		writeSection(&b, errorStyle, "  Failed:", g.Failed)
	}
	if len(m.summary.Reverted) > 0 {
		hasContent = true
		writeSection(&b, successStyle, "Reverted:", m.summary.Reverted)
	}
	if len(m.summary.Failed) > 0 {
		hasContent = true
		writeSection(&b, errorStyle, "Failed:", m.summary.Failed)
	}

	if !hasContent && m.summary.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
	}

	return b.String()
}

func writeSection(b *strings.Builder, style lipgloss.Style, title string, items []string) {
	if len(items) == 0 {
		return
	}
	indent := strings.Repeat(" ", len(title)-len(strings.TrimLeft(title, " "))+2)
	b.WriteString(style.Render(title))
	b.WriteString("\n")
	for _, f := range items {
		b.WriteString(fmt.Sprintf("%s%s\n", indent, pathStyle.Render(f)))
	}
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.run(m.ctx)
	if err != nil {
		// The caller prints any stack trace once the TUI has exited.
		return errorMsg{err}
	}
	return summaryMsg{
		Summary: summary,
	}
}

// Run starts the program and blocks until the runner finishes. The runner's
// context carries a progress callback that feeds the spinner line.
func Run(ctx context.Context, run Runner) error {
	var program *tea.Program
	progress := func(current, total int) {
		if program != nil {
			program.Send(ProgressMsg{Current: current, Total: total})
		}
	}
	wrapped := func(ctx context.Context) (model.Summary, error) {
		return run(WithProgress(ctx, progress))
	}
	program = tea.NewProgram(New(ctx, wrapped), tea.WithOutput(os.Stderr))
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}

type progressKey struct{}

// WithProgress attaches a progress callback to ctx.
func WithProgress(ctx context.Context, fn func(current, total int)) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ProgressFromContext returns the progress callback attached to ctx, or nil.
func ProgressFromContext(ctx context.Context) func(current, total int) {
	fn, _ := ctx.Value(progressKey{}).(func(current, total int))
	return fn
}
