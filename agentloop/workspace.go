package agentloop

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PathEscapeError reports a tool path that resolves outside the workspace root.
type PathEscapeError struct {
	Path string
	Root string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path %q escapes workspace root %q", e.Path, e.Root)
}

// DirEntry represents a filesystem directory entry.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// Workspace confines filesystem operations to one root directory. The root
// is fixed at construction; a Workspace never changes the process working
// directory.
type Workspace struct {
	root string // absolute, symlink-resolved
}

// NewWorkspace resolves root to an absolute, symlink-free path. The root must
// exist and be a directory.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("eval symlinks for workspace root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %q is not a directory", resolved)
	}
	return &Workspace{root: resolved}, nil
}

// Root returns the resolved workspace root.
func (w *Workspace) Root() string { return w.root }

// Resolve maps a workspace-relative path to an absolute path beneath the
// root. A leading separator is ignored, so "/src/a.go" names root/src/a.go.
// Symlinks are followed; the nearest existing ancestor is used for paths
// that do not exist yet.
func (w *Workspace) Resolve(path string) (string, error) {
	rel := strings.TrimLeft(filepath.FromSlash(path), string(os.PathSeparator))
	joined := filepath.Join(w.root, rel)

	resolved, err := resolveExisting(joined)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	if !w.contains(resolved) {
		return "", &PathEscapeError{Path: path, Root: w.root}
	}
	return resolved, nil
}

func (w *Workspace) contains(path string) bool {
	return path == w.root || strings.HasPrefix(path, w.root+string(os.PathSeparator))
}

// maxSymlinkHops bounds how many dangling links resolveExisting follows.
const maxSymlinkHops = 40

// resolveExisting evaluates symlinks in the longest existing prefix of path
// and appends the missing remainder unchanged. A dangling link in the path
// is replaced by its resolved target, so the result names the file a write
// would actually create.
func resolveExisting(path string) (string, error) {
	return resolveHops(path, 0)
}

func resolveHops(path string, hops int) (string, error) {
	var missing []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if info, lerr := os.Lstat(current); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			if hops >= maxSymlinkHops {
				return "", fmt.Errorf("too many levels of symbolic links at %q", current)
			}
			target, err := os.Readlink(current)
			if err != nil {
				return "", err
			}
			if !filepath.IsAbs(target) {
				dir, err := filepath.EvalSymlinks(filepath.Dir(current))
				if err != nil {
					return "", err
				}
				target = filepath.Join(dir, target)
			}
			resolved, err := resolveHops(target, hops+1)
			if err != nil {
				return "", err
			}
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		missing = append([]string{filepath.Base(current)}, missing...)
		current = parent
	}
}

// List returns the entries of a directory beneath the root, sorted by name.
func (w *Workspace) List(dir string) ([]DirEntry, error) {
	resolved, err := w.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", dir, err)
	}
	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		de := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			de.Size = info.Size()
		}
		result = append(result, de)
	}
	return result, nil
}

// Read returns the content of a file beneath the root.
func (w *Workspace) Read(path string) (string, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return string(data), nil
}

// Write replaces the content of a file beneath the root, creating missing
// parent directories.
func (w *Workspace) Write(path, content string) error {
	resolved, err := w.Resolve(path)
	if err != nil {
		return err
	}
	if resolved == w.root {
		return fmt.Errorf("write %q: path is the workspace root", path)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("write %q: create directory: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}
