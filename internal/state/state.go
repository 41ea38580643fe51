// Package state keeps a ledger of the files each run wrote so the last run
// can be reverted.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/rejfix/internal/fs"
	"github.com/sokinpui/rejfix/internal/git"
	"github.com/sokinpui/rejfix/internal/logging"
)

const (
	stateDirName  = ".rejfix"
	stateFileName = "state.rejfix"
	TrashDir      = "trash"
)

// Actions recorded for an operation.
const (
	ActionCreate = "create"
	ActionModify = "modify"
)

// Operation represents a single file written by a run.
type Operation struct {
	Path        string
	Action      string
	ContentHash string // SHA256 of the content after the run, "" if the run left no file
}

// HistoryEntry represents one complete run of the tool.
type HistoryEntry struct {
	RunID      string
	Timestamp  int64
	Operations []Operation
}

// State represents the entire state file.
type State struct {
	History      []HistoryEntry
	CurrentIndex int
}

// Manager handles the lifecycle of the state file.
type Manager struct {
	statePath string
	state     *State
	StateDir  string
	root      string

	mu      sync.Mutex
	runID   string
	tracked map[string]string // path -> action for the run in progress
}

// New creates and loads a state manager rooted at rootDir. An empty rootDir
// selects the enclosing git repository, or the working directory outside one.
func New(ctx context.Context, rootDir string) (*Manager, error) {
	if rootDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		rootDir = wd
		if root, err := git.FindRoot(ctx, wd); err == nil {
			rootDir = root
		}
	}
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(rootDir, stateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		statePath: filepath.Join(stateDir, stateFileName),
		StateDir:  stateDir,
		root:      rootDir,
	}
	if err := m.load(); err != nil {
		logging.FromContext(ctx).Warn("state file unreadable, starting a new history", "path", m.statePath, "error", err)
		m.state = &State{CurrentIndex: -1}
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = &State{CurrentIndex: -1}
			return nil
		}
		return err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")
	if len(blocks) == 0 || strings.TrimSpace(blocks[0]) == "" {
		m.state = &State{CurrentIndex: -1}
		return nil
	}

	// First block is current index
	index, err := strconv.Atoi(strings.TrimSpace(blocks[0]))
	if err != nil {
		return fmt.Errorf("invalid state file: could not parse current index: %w", err)
	}
	m.state = &State{CurrentIndex: index}

	for _, block := range blocks[1:] {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")

		tsField, runID, _ := strings.Cut(lines[0], " ")
		ts, err := strconv.ParseInt(tsField, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid state file: could not parse timestamp from '%s': %w", lines[0], err)
		}
		entry := HistoryEntry{RunID: runID, Timestamp: ts}

		opLines := lines[1:]
		if len(opLines)%3 != 0 {
			return errors.New("invalid state file: incomplete operation record")
		}
		for i := 0; i < len(opLines); i += 3 {
			entry.Operations = append(entry.Operations, Operation{
				Action:      opLines[i],
				Path:        opLines[i+1],
				ContentHash: opLines[i+2],
			})
		}
		m.state.History = append(m.state.History, entry)
	}
	if m.state.CurrentIndex >= len(m.state.History) {
		m.state.CurrentIndex = len(m.state.History) - 1
	}
	return nil
}

func (m *Manager) save() error {
	blocks := []string{strconv.Itoa(m.state.CurrentIndex)}

	for _, entry := range m.state.History {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d %s", entry.Timestamp, entry.RunID)
		for _, op := range entry.Operations {
			fmt.Fprintf(&sb, "\n%s\n%s\n%s", op.Action, op.Path, op.ContentHash)
		}
		blocks = append(blocks, sb.String())
	}

	content := strings.Join(blocks, "\n\n") + "\n"
	if err := os.WriteFile(m.statePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// Begin starts tracking a new run and returns its ID.
func (m *Manager) Begin() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = uuid.NewString()
	m.tracked = make(map[string]string)
	return m.runID
}

// Track records paths about to be written by the current run. An existing
// file is moved to the run's trash so revert can restore it.
func (m *Manager) Track(paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracked == nil {
		return errors.New("state: Track called before Begin")
	}

	var fresh []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if _, ok := m.tracked[abs]; !ok {
			fresh = append(fresh, abs)
		}
	}

	actions := fs.GetFileActions(fresh)
	for path, action := range actions {
		if action == ActionModify {
			if err := fs.TrashFile(path, m.trashDir(m.runID), m.root); err != nil {
				return fmt.Errorf("move %s to trash: %w", path, err)
			}
		}
		m.tracked[path] = action
	}
	return nil
}

// Commit writes the tracked paths of the current run to the history.
// A run that tracked nothing leaves the history untouched.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tracked) == 0 {
		return nil
	}

	ops := make([]Operation, 0, len(m.tracked))
	for path, action := range m.tracked {
		hash, err := fs.GetFileSHA256(path)
		if err != nil {
			hash = ""
		}
		if action == ActionCreate && hash == "" {
			continue
		}
		ops = append(ops, Operation{Path: path, Action: action, ContentHash: hash})
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Path < ops[j].Path
	})

	if m.state.CurrentIndex < len(m.state.History)-1 {
		m.state.History = m.state.History[:m.state.CurrentIndex+1]
	}
	m.state.History = append(m.state.History, HistoryEntry{
		RunID:      m.runID,
		Timestamp:  time.Now().UTC().Unix(),
		Operations: ops,
	})
	m.state.CurrentIndex++
	m.tracked = nil
	return m.save()
}

// GetOperationsToUndo gets the last run's operations and moves the history pointer.
func (m *Manager) GetOperationsToUndo() (HistoryEntry, bool, error) {
	if m.state.CurrentIndex < 0 {
		return HistoryEntry{}, false, nil
	}
	entry := m.state.History[m.state.CurrentIndex]
	m.state.CurrentIndex--
	return entry, true, m.save()
}

// Revert undoes the last committed run. Files changed since the run are left
// alone and reported as failed.
func (m *Manager) Revert(ctx context.Context, progressCb func(current, total int)) (reverted, failed []string, err error) {
	entry, ok, err := m.GetOperationsToUndo()
	if err != nil || !ok {
		return nil, nil, err
	}
	logger := logging.FromContext(ctx).With("run", entry.RunID)

	for i, op := range entry.Operations {
		if m.revertOperation(op, m.trashDir(entry.RunID)) {
			reverted = append(reverted, op.Path)
		} else {
			logger.Warn("could not revert file", "path", op.Path, "action", op.Action)
			failed = append(failed, op.Path)
		}
		if progressCb != nil {
			progressCb(i+1, len(entry.Operations))
		}
	}
	os.RemoveAll(m.trashDir(entry.RunID))
	return reverted, failed, nil
}

func (m *Manager) revertOperation(op Operation, trashDir string) bool {
	currentHash, err := fs.GetFileSHA256(op.Path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false
	}

	// Core safety check: if the file has been changed, abort the revert for this file.
	if exists && currentHash != op.ContentHash {
		return false
	}
	if exists {
		if err := os.Remove(op.Path); err != nil {
			return false
		}
	}

	if op.Action == ActionModify {
		return fs.RestoreFileFromTrash(op.Path, trashDir, m.root) == nil
	}

	parentDir := filepath.Dir(op.Path)
	if isEmpty, _ := fs.IsEmpty(parentDir); isEmpty {
		os.Remove(parentDir)
	}
	return true
}

func (m *Manager) trashDir(runID string) string {
	return filepath.Join(m.StateDir, TrashDir, runID)
}
