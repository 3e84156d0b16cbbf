package vfs

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotExist = errors.New("file does not exist")
	ErrNotDir   = errors.New("not a directory")
	ErrIsDir    = errors.New("is a directory")
	ErrNotEmpty = errors.New("directory not empty")
)

// Entry describes one child of a directory listing.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// MemFS is an in-memory filesystem. Writes require the parent directory to
// exist, so callers create directories explicitly before staging files.
type MemFS struct {
	mu    sync.RWMutex
	dirs  map[string]struct{}
	files map[string]string
}

func NewMemFS() *MemFS {
	return &MemFS{
		dirs:  map[string]struct{}{"/": {}},
		files: make(map[string]string),
	}
}

// MkdirAll creates p and any missing parents.
func (m *MemFS) MkdirAll(p string) error {
	p = Clean(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	var chain []string
	for dir := p; dir != "/"; dir = path.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			return fmt.Errorf("mkdir %s: %w", dir, ErrNotDir)
		}
		chain = append(chain, dir)
	}
	for _, dir := range chain {
		m.dirs[dir] = struct{}{}
	}
	return nil
}

// WriteFile creates or replaces the file at p.
func (m *MemFS) WriteFile(p, content string) error {
	p = Clean(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.dirs[p]; ok {
		return fmt.Errorf("write %s: %w", p, ErrIsDir)
	}
	if _, ok := m.dirs[path.Dir(p)]; !ok {
		return fmt.Errorf("write %s: parent %w", p, ErrNotExist)
	}
	m.files[p] = content
	return nil
}

func (m *MemFS) ReadFile(p string) (string, error) {
	p = Clean(p)

	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.files[p]
	if !ok {
		if _, isDir := m.dirs[p]; isDir {
			return "", fmt.Errorf("read %s: %w", p, ErrIsDir)
		}
		return "", fmt.Errorf("read %s: %w", p, ErrNotExist)
	}
	return content, nil
}

func (m *MemFS) Exists(p string) bool {
	p = Clean(p)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[p]; ok {
		return true
	}
	_, ok := m.dirs[p]
	return ok
}

// List returns the direct children of the directory p sorted by name.
func (m *MemFS) List(p string) ([]Entry, error) {
	p = Clean(p)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.dirs[p]; !ok {
		if _, isFile := m.files[p]; isFile {
			return nil, fmt.Errorf("list %s: %w", p, ErrNotDir)
		}
		return nil, fmt.Errorf("list %s: %w", p, ErrNotExist)
	}

	var entries []Entry
	for dir := range m.dirs {
		if dir != "/" && path.Dir(dir) == p {
			entries = append(entries, Entry{Name: path.Base(dir), IsDir: true})
		}
	}
	for file, content := range m.files {
		if path.Dir(file) == p {
			entries = append(entries, Entry{Name: path.Base(file), Size: int64(len(content))})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Remove deletes a file or an empty directory.
func (m *MemFS) Remove(p string) error {
	p = Clean(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[p]; ok {
		delete(m.files, p)
		return nil
	}
	if _, ok := m.dirs[p]; !ok || p == "/" {
		return fmt.Errorf("remove %s: %w", p, ErrNotExist)
	}
	prefix := p + "/"
	for dir := range m.dirs {
		if strings.HasPrefix(dir, prefix) {
			return fmt.Errorf("remove %s: %w", p, ErrNotEmpty)
		}
	}
	for file := range m.files {
		if strings.HasPrefix(file, prefix) {
			return fmt.Errorf("remove %s: %w", p, ErrNotEmpty)
		}
	}
	delete(m.dirs, p)
	return nil
}

// Stage creates dirs in order and then writes files in order.
func (m *MemFS) Stage(dirs []string, files []File) error {
	for _, d := range dirs {
		if err := m.MkdirAll(d); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := m.WriteFile(f.Path, f.Content); err != nil {
			return err
		}
	}
	return nil
}
