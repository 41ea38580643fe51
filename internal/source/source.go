// Package source reads reject text for inspection from a file, piped stdin
// or the clipboard.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/rejfix/internal/logging"
)

// ErrEmpty is returned when the chosen source holds no text.
var ErrEmpty = errors.New("no content to process")

// Names reported for content that did not come from a file.
const (
	StdinName     = "stdin"
	ClipboardName = "clipboard"
)

// SourceProvider determines and retrieves the source content.
type SourceProvider struct {
	stdin     *os.File
	clipboard func() (string, error)
}

// New creates a new SourceProvider.
func New() *SourceProvider {
	return &SourceProvider{stdin: os.Stdin, clipboard: clipboard.ReadAll}
}

// GetContent reads path when given, else stdin if piped, else the
// clipboard. It returns the text and the name of where it came from.
func (sp *SourceProvider) GetContent(ctx context.Context, path string) (string, string, error) {
	logger := logging.FromContext(ctx)

	if path != "" {
		logger.Debug("reading rejects from file", "path", path)
		content, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return nonEmpty(string(content), path)
	}

	if sp.isPiped() {
		logger.Debug("reading rejects from stdin")
		content, err := io.ReadAll(sp.stdin)
		if err != nil {
			return "", "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return nonEmpty(string(content), StdinName)
	}

	logger.Debug("reading rejects from clipboard")
	content, err := sp.clipboard()
	if err != nil {
		return "", "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	return nonEmpty(content, ClipboardName)
}

func (sp *SourceProvider) isPiped() bool {
	if sp.stdin == nil {
		return false
	}
	stat, err := sp.stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func nonEmpty(content, name string) (string, string, error) {
	if strings.TrimSpace(content) == "" {
		return "", name, fmt.Errorf("%w: %s is empty", ErrEmpty, name)
	}
	return content, name, nil
}
