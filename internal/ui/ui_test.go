package ui_test

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/rejfix/internal/ui"
	"github.com/sokinpui/rejfix/model"
)

func init() {
	color.NoColor = true
}

var records = []model.RejectRecord{{
	Path: "core_hook.c.rej",
	Hunks: []model.Hunk{
		{
			File:      "kernel/core_hook.c",
			StartLine: 10,
			EndLine:   12,
			Context:   []string{"foo();", "bar();"},
			Changes:   []model.Change{{Kind: model.Add, Text: "baz();", OldOffset: 2}},
		},
		{
			File:    "kernel/core_hook.c",
			Changes: []model.Change{{Kind: model.Remove, Text: "old();"}},
		},
	},
}}

func TestRenderRunSummary(t *testing.T) {
	t.Parallel()

	out := ui.RenderRunSummary(model.Summary{
		Groups: []model.GroupSummary{
			{
				PatchName:  "fix.patch",
				PatchPath:  "/out/fix.patch",
				PatchBytes: 2048,
				Recovered:  []string{"kernel/core_hook.c"},
				Retained:   []string{"kernel/core_hook.c"},
				Failed:     []string{"a.rej#2"},
			},
			{PatchName: "empty.patch", PatchPath: "/out/empty.patch", NoDiff: true},
		},
	})

	assert.Contains(t, out, "fix.patch: /out/fix.patch (2.0 kB)")
	assert.Contains(t, out, "Recovered 1 file(s):\n    - kernel/core_hook.c")
	assert.Contains(t, out, "Kept 1 deletion site(s) as additions")
	assert.Contains(t, out, "Failed 1 item(s):\n    - a.rej#2")
	assert.Contains(t, out, "empty.patch: no differences")
}

func TestHunkTable(t *testing.T) {
	t.Parallel()

	out := ui.HunkTable(records)
	assert.Contains(t, out, "kernel/core_hook.c")
	assert.Contains(t, out, "10-12")
	assert.Contains(t, out, "baz();")
	assert.Contains(t, out, "old();")
	assert.Contains(t, out, "Total: 2 change(s)")
	assert.GreaterOrEqual(t, strings.Count(out, "\n"), 4)
}

func TestRenderYAML(t *testing.T) {
	t.Parallel()

	data, err := ui.RenderYAML(records)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "core_hook.c.rej", decoded[0]["reject"])

	hunks := decoded[0]["hunks"].([]any)
	require.Len(t, hunks, 2)
	first := hunks[0].(map[string]any)
	assert.Equal(t, 10, first["start_line"])
	second := hunks[1].(map[string]any)
	assert.NotContains(t, second, "start_line")
	changes := second["changes"].([]any)
	assert.Equal(t, "remove", changes[0].(map[string]any)["op"])
}

func TestPrintRevertSummary(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	stderr := os.Stderr
	os.Stderr = w
	ui.PrintRevertSummary([]string{"out/a.patch"}, []string{"out/kernel/a.c"})
	os.Stderr = stderr
	require.NoError(t, w.Close())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "Successfully reverted 1 file(s):\n  - out/a.patch\n")
	assert.Contains(t, out, "Failed to revert 1 file(s):\n  - out/kernel/a.c\n")
	assert.Contains(t, out, "Files changed since the run were left in place.")
}
