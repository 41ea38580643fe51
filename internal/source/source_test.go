package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetContentFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.c.rej")
	require.NoError(t, os.WriteFile(path, []byte("@@ -1 +1 @@\n+x\n"), 0o644))

	sp := &SourceProvider{clipboard: func() (string, error) { return "", errors.New("unused") }}
	content, name, err := sp.GetContent(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, name)
	assert.Equal(t, "@@ -1 +1 @@\n+x\n", content)
}

func TestGetContentFromPipe(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString("@@ -2 +2 @@\n-y\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	defer r.Close()

	sp := &SourceProvider{stdin: r}
	content, name, err := sp.GetContent(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StdinName, name)
	assert.Equal(t, "@@ -2 +2 @@\n-y\n", content)
}

func TestGetContentFromClipboard(t *testing.T) {
	t.Parallel()

	sp := &SourceProvider{clipboard: func() (string, error) { return "  \n", nil }}
	_, name, err := sp.GetContent(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, ClipboardName, name)

	sp.clipboard = func() (string, error) { return "", errors.New("no clipboard") }
	_, _, err = sp.GetContent(context.Background(), "")
	assert.ErrorContains(t, err, "no clipboard")
}
