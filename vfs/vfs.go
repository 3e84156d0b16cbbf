// Package vfs models the files staged into a sandbox before an invocation.
//
// A sandboxed interpreter cannot read the host filesystem, so every script,
// dependency and input travels with the invocation as a [File]. The helpers
// here order those files, validate them, and derive the directory set the
// remote side must create before it writes anything.
package vfs

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

var (
	ErrDuplicatePath = errors.New("duplicate path")
	ErrInvalidPath   = errors.New("invalid path")
)

// File is a single file materialized in the sandbox filesystem.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Depth counts the slash-separated segments of p. "/a.tex" has depth 2,
// "/tmp/work/main.tex" has depth 4.
func Depth(p string) int {
	return len(strings.Split(p, "/"))
}

// SortByDepth returns a copy of files ordered shallowest first. Files at the
// same depth keep their relative order.
func SortByDepth(files []File) []File {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Depth(sorted[i].Path) < Depth(sorted[j].Path)
	})
	return sorted
}

// Validate rejects empty paths and paths that name the same file once
// cleaned.
func Validate(files []File) error {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.Path) == "" {
			return fmt.Errorf("%w: empty path", ErrInvalidPath)
		}
		p := Clean(f.Path)
		if _, ok := seen[p]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePath, f.Path)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// Dirs returns every ancestor directory of the given file paths, plus the
// extra directories and their ancestors, excluding the root. The result is
// shallowest first and sorted lexically within a depth; creating the
// directories in that order means no write depends on an earlier file.
func Dirs(files []string, extra ...string) []string {
	set := make(map[string]struct{})
	add := func(dir string) {
		for dir != "/" && dir != "." && dir != "" {
			set[dir] = struct{}{}
			dir = path.Dir(dir)
		}
	}
	for _, p := range files {
		add(path.Dir(Clean(p)))
	}
	for _, d := range extra {
		if d != "" {
			add(Clean(d))
		}
	}

	dirs := make([]string, 0, len(set))
	for d := range set {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := Depth(dirs[i]), Depth(dirs[j])
		if di != dj {
			return di < dj
		}
		return dirs[i] < dirs[j]
	})
	return dirs
}

// Paths lists the paths of files in order.
func Paths(files []File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

// Clean normalizes p to an absolute, slash-separated path.
func Clean(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// Join resolves rel against dir, refusing results that leave dir.
func Join(dir, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if path.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is absolute", ErrInvalidPath, rel)
	}
	base := Clean(dir)
	joined := path.Join(base, rel)
	if joined != base && !strings.HasPrefix(joined, strings.TrimSuffix(base, "/")+"/") {
		return "", fmt.Errorf("%w: %s escapes %s", ErrInvalidPath, rel, dir)
	}
	return joined, nil
}
