package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PathResolver finds absolute paths for files.
type PathResolver struct {
	lookupDirs []string
}

// NewPathResolver creates a new PathResolver. With no lookup directories the
// current working directory is used.
func NewPathResolver(lookupDirs ...string) (*PathResolver, error) {
	if len(lookupDirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		return &PathResolver{lookupDirs: []string{wd}}, nil
	}

	absDirs := make([]string, 0, len(lookupDirs))
	for _, dir := range lookupDirs {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid lookup directory '%s': %w", dir, err)
		}
		absDirs = append(absDirs, abs)
	}
	return &PathResolver{lookupDirs: absDirs}, nil
}

// Dirs returns the absolute lookup directories in search order.
func (r *PathResolver) Dirs() []string {
	return r.lookupDirs
}

// ResolveExisting finds an absolute path only if the file exists. Paths from
// diff headers often carry an "a/" or "b/" prefix, so each candidate is
// also tried with its first component stripped.
func (r *PathResolver) ResolveExisting(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		if isFile(relativePath) {
			return relativePath
		}
		return ""
	}
	for _, candidate := range Candidates(relativePath) {
		for _, dir := range r.lookupDirs {
			absPath := filepath.Join(dir, candidate)
			if isFile(absPath) {
				return absPath
			}
		}
	}
	return ""
}

// Relative returns absPath relative to the lookup directory containing it.
func (r *PathResolver) Relative(absPath string) string {
	for _, dir := range r.lookupDirs {
		rel, err := filepath.Rel(dir, absPath)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(absPath)
}

// Candidates lists the paths tried for a header path: as written, then
// with its leading component stripped as "patch -p1" would.
func Candidates(headerPath string) []string {
	clean := filepath.Clean(filepath.FromSlash(headerPath))
	candidates := []string{clean}
	if _, rest, ok := strings.Cut(filepath.ToSlash(clean), "/"); ok && rest != "" {
		candidates = append(candidates, filepath.FromSlash(rest))
	}
	return candidates
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FindRejects returns the reject files under dir, sorted. When recursive is
// false only the top level of dir is searched. A missing dir yields nothing.
func FindRejects(dir string, recursive bool) ([]string, error) {
	var rejects []string
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || d.Name() == ".git") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".rej") {
			rejects = append(rejects, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s for rejects: %w", dir, err)
	}
	sort.Strings(rejects)
	return rejects, nil
}

// FindFile returns the first file under root, in lexical order, whose base
// name is name. It returns "" when there is none.
func FindFile(root, name string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search %s for %s: %w", root, name, err)
	}
	return found, nil
}

// ReadLines reads a text file as lines without their terminators. The second
// result reports whether the file ended with a newline.
func ReadLines(path string) ([]string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	content := string(data)
	if content == "" {
		return []string{}, false, nil
	}
	trailing := strings.HasSuffix(content, "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n"), trailing, nil
}

// WriteLines writes lines joined by newlines, creating parent directories.
func WriteLines(path string, lines []string, trailingNewline bool) error {
	content := strings.Join(lines, "\n")
	if trailingNewline && len(lines) > 0 {
		content += "\n"
	}
	return WriteFile(path, []byte(content))
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// CopyFile copies src to dst, creating dst's parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// GetFileSHA256 returns the hex SHA-256 of a file's content.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GetFileActions determines which files are new and which would be
// overwritten.
func GetFileActions(targetPaths []string) map[string]string {
	fileActions := make(map[string]string, len(targetPaths))
	for _, path := range targetPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fileActions[path] = "create"
		} else {
			fileActions[path] = "modify"
		}
	}
	return fileActions
}

// TrashFile moves path into trashDir, keeping its location relative to base.
func TrashFile(path, trashDir, base string) error {
	dst := trashPath(path, trashDir, base)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(path, dst)
}

// RestoreFileFromTrash moves a trashed file back to path.
func RestoreFileFromTrash(path, trashDir, base string) error {
	src := trashPath(path, trashDir, base)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("no trashed copy of %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.Rename(src, path)
}

func trashPath(path, trashDir, base string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return filepath.Join(trashDir, rel)
}

// IsEmpty reports whether dir has no entries.
func IsEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
