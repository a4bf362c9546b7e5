package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/martinemde/devassist/unifiedllm"
)

//go:embed defaults/*.md
var defaults embed.FS

const ext = ".md"

// Store looks templates up by key. A file <key>.md in the override directory
// replaces the built-in template of the same key.
type Store struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*Template
}

// NewStore returns a Store. An empty dir serves only the built-in templates.
func NewStore(dir string) *Store {
	return &Store{dir: dir, cache: make(map[string]*Template)}
}

// Get returns the template for key, or a ConfigurationError when no
// override or built-in exists.
func (s *Store) Get(key string) (*Template, error) {
	if !validKey(key) {
		return nil, unifiedllm.NewConfigurationError("invalid template key %q", key)
	}

	s.mu.RLock()
	t, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return t, nil
	}

	text, err := s.read(key)
	if err != nil {
		return nil, err
	}
	t = Parse(key, text)

	s.mu.Lock()
	s.cache[key] = t
	s.mu.Unlock()
	return t, nil
}

// MustGet is Get for templates that ship with the binary.
func (s *Store) MustGet(key string) *Template {
	t, err := s.Get(key)
	if err != nil {
		panic(err)
	}
	return t
}

func (s *Store) read(key string) (string, error) {
	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, key+ext))
		switch {
		case err == nil:
			return string(data), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("read template %s: %w", key, err)
		}
	}
	data, err := defaults.ReadFile("defaults/" + key + ext)
	if err != nil {
		return "", unifiedllm.NewConfigurationError("prompt template not found for key %q", key)
	}
	return string(data), nil
}

// Keys lists every available template key, built-in and overridden.
func (s *Store) Keys() []string {
	seen := map[string]bool{}
	if entries, err := fs.ReadDir(defaults, "defaults"); err == nil {
		for _, e := range entries {
			seen[strings.TrimSuffix(e.Name(), ext)] = true
		}
	}
	if s.dir != "" {
		if entries, err := os.ReadDir(s.dir); err == nil {
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
					seen[strings.TrimSuffix(e.Name(), ext)] = true
				}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "..")
}
