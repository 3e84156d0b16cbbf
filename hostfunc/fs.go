package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/caffeineduck/texbridge/vfs"
)

// FS exposes a vfs.MemFS to sandboxed code. Every function takes a "path"
// argument; fs_write also takes "content".
type FS struct {
	mem *vfs.MemFS
}

func NewFS(mem *vfs.MemFS) *FS {
	return &FS{mem: mem}
}

// Register adds the fs_* functions to r.
func (f *FS) Register(r *Registry) {
	r.Register("fs_read", f.Read)
	r.Register("fs_write", f.Write)
	r.Register("fs_mkdir", f.Mkdir)
	r.Register("fs_exists", f.Exists)
	r.Register("fs_list", f.List)
	r.Register("fs_remove", f.Remove)
	r.Register("fs_stat", f.Stat)
}

func pathArg(args map[string]any) (string, error) {
	p, ok := args["path"].(string)
	if !ok || p == "" {
		return "", errors.New("path required")
	}
	return p, nil
}

// Read returns the contents of a file.
func (f *FS) Read(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	content, err := f.mem.ReadFile(p)
	if err != nil {
		if errors.Is(err, vfs.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", p)
		}
		return nil, err
	}
	return content, nil
}

// Write creates or replaces a file. The parent directory must exist.
func (f *FS) Write(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, errors.New("content required")
	}
	if err := f.mem.WriteFile(p, content); err != nil {
		return nil, err
	}
	return "ok", nil
}

// Mkdir creates a directory and its parents.
func (f *FS) Mkdir(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	if err := f.mem.MkdirAll(p); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (f *FS) Exists(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	return f.mem.Exists(p), nil
}

// List returns the entries of a directory as name/is_dir/size maps.
func (f *FS) List(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	entries, err := f.mem.List(p)
	if err != nil {
		if errors.Is(err, vfs.ErrNotExist) {
			return nil, fmt.Errorf("directory not found: %s", p)
		}
		return nil, err
	}

	result := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		result = append(result, map[string]any{
			"name":   e.Name,
			"is_dir": e.IsDir,
			"size":   e.Size,
		})
	}
	return result, nil
}

// Remove deletes a file or empty directory.
func (f *FS) Remove(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	if err := f.mem.Remove(p); err != nil {
		if errors.Is(err, vfs.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", p)
		}
		return nil, err
	}
	return "ok", nil
}

func (f *FS) Stat(ctx context.Context, args map[string]any) (any, error) {
	p, err := pathArg(args)
	if err != nil {
		return nil, err
	}
	clean := vfs.Clean(p)
	if !f.mem.Exists(clean) {
		return nil, fmt.Errorf("file not found: %s", p)
	}

	content, err := f.mem.ReadFile(clean)
	if errors.Is(err, vfs.ErrIsDir) {
		return map[string]any{"name": path.Base(clean), "size": int64(0), "is_dir": true}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"name": path.Base(clean), "size": int64(len(content)), "is_dir": false}, nil
}
