package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/rejfix/model"
)

func TestUpdateProgressAndSummary(t *testing.T) {
	t.Parallel()

	m := New(context.Background(), nil)
	next, _ := m.Update(ProgressMsg{Current: 2, Total: 5})
	m = next.(Model)
	assert.Contains(t, m.View(), "Processing... [2/5]")

	next, cmd := m.Update(summaryMsg{Summary: model.Summary{
		Groups: []model.GroupSummary{{
			PatchName:  "fix.patch",
			PatchPath:  "/out/fix.patch",
			PatchBytes: 10,
			Recovered:  []string{"kernel/a.c"},
			Failed:     []string{"b.rej"},
		}},
	}})
	m = next.(Model)
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "fix.patch (10 B)")
	assert.Contains(t, view, "kernel/a.c")
	assert.Contains(t, view, "b.rej")
	assert.NoError(t, m.Err())
}

func TestUpdateError(t *testing.T) {
	t.Parallel()

	m := New(context.Background(), nil)
	next, _ := m.Update(errorMsg{err: errors.New("boom")})
	m = next.(Model)
	assert.EqualError(t, m.Err(), "boom")
	assert.Contains(t, m.View(), "boom")
}

type tracedError struct{ stack string }

func (e *tracedError) Error() string { return "panic" }

func TestRunAppErrorKeepsOriginal(t *testing.T) {
	t.Parallel()

	orig := &tracedError{stack: "goroutine 1"}
	m := New(context.Background(), func(context.Context) (model.Summary, error) {
		return model.Summary{}, orig
	})
	next, _ := m.Update(m.runApp())

	var traced *tracedError
	require.ErrorAs(t, next.(Model).Err(), &traced)
	assert.Equal(t, "goroutine 1", traced.stack)
}

func TestEmptySummary(t *testing.T) {
	t.Parallel()

	m := New(context.Background(), nil)
	next, _ := m.Update(summaryMsg{})
	assert.Contains(t, next.(Model).View(), "Nothing to do.")
}

func TestRunAppUsesRunner(t *testing.T) {
	t.Parallel()

	m := New(context.Background(), func(context.Context) (model.Summary, error) {
		return model.Summary{Message: "done"}, nil
	})
	msg := m.runApp()
	sum, ok := msg.(summaryMsg)
	assert.True(t, ok)
	assert.Equal(t, "done", sum.Message)
}

func TestProgressContext(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ProgressFromContext(context.Background()))

	var got []int
	ctx := WithProgress(context.Background(), func(current, _ int) { got = append(got, current) })
	ProgressFromContext(ctx)(3, 4)
	assert.Equal(t, []int{3}, got)
}
