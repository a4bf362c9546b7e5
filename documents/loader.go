// Package documents walks a project tree and loads its source files.
package documents

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Document is one loaded file. Path is relative to the loader's root and
// uses forward slashes.
type Document struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// DefaultInclude are the file name patterns loaded by default.
var DefaultInclude = []string{"*.py", "*.js", "*.ts", "*.rb", "*.go", "*.md"}

// DefaultExclude are directory names never descended into.
var DefaultExclude = []string{"__pycache__", ".git", "venv", "node_modules"}

// DefaultMaxFileSize skips generated or vendored blobs.
const DefaultMaxFileSize = 1 << 20

// Loader collects documents under a root directory.
type Loader struct {
	root        string
	include     []string
	exclude     []string
	maxFileSize int64
	logger      *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithInclude replaces the include patterns. Patterns match base names.
func WithInclude(patterns ...string) Option {
	return func(l *Loader) { l.include = patterns }
}

// WithExclude replaces the excluded directory names.
func WithExclude(dirs ...string) Option {
	return func(l *Loader) { l.exclude = dirs }
}

// WithMaxFileSize skips files larger than n bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(l *Loader) { l.maxFileSize = n }
}

// WithLogger sets the loader's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader returns a Loader rooted at root.
func NewLoader(root string, opts ...Option) *Loader {
	l := &Loader{
		root:        root,
		include:     DefaultInclude,
		exclude:     DefaultExclude,
		maxFileSize: DefaultMaxFileSize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load walks the tree in lexical order. Unreadable, oversized and non-UTF-8
// files are skipped; a missing root is an error.
func (l *Loader) Load(ctx context.Context) ([]Document, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path %s is not a directory", l.root)
	}

	var docs []Document
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			l.logger.Debug("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != l.root && slices.Contains(l.exclude, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !l.matches(d.Name()) {
			return nil
		}

		doc, ok := l.read(path, d)
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loaded documents", zap.String("root", l.root), zap.Int("count", len(docs)))
	return docs, nil
}

func (l *Loader) matches(name string) bool {
	for _, pattern := range l.include {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (l *Loader) read(path string, d fs.DirEntry) (Document, bool) {
	if l.maxFileSize > 0 {
		if info, err := d.Info(); err == nil && info.Size() > l.maxFileSize {
			l.logger.Debug("skipping large file", zap.String("path", path), zap.Int64("size", info.Size()))
			return Document{}, false
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Debug("skipping unreadable file", zap.String("path", path), zap.Error(err))
		return Document{}, false
	}
	if !utf8.Valid(data) {
		l.logger.Debug("skipping non-UTF-8 file", zap.String("path", path))
		return Document{}, false
	}
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		rel = path
	}
	return Document{Path: filepath.ToSlash(rel), Content: string(data)}, true
}
