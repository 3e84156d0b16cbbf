package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/texbridge/vfs"
)

var ErrPathEscape = errors.New("path escapes sandbox root")

// hostPath maps a sandbox path onto the run's root directory.
func hostPath(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", vfs.ErrInvalidPath)
	}
	joined := filepath.Join(root, filepath.FromSlash(vfs.Clean(p)))
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}
	return joined, nil
}

// stage creates dirs in order, then writes inputs in order.
func stage(root string, dirs []string, inputs []vfs.File) error {
	for _, d := range dirs {
		target, err := hostPath(root, d)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	for _, f := range inputs {
		target, err := hostPath(root, f.Path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	return nil
}

// collect reads the declared outputs that exist, in declaration order.
func collect(root string, outputs []string) ([]vfs.File, error) {
	var files []vfs.File
	for _, p := range outputs {
		target, err := hostPath(root, p)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(target)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read output %s: %w", p, err)
		}
		files = append(files, vfs.File{Path: vfs.Clean(p), Content: string(data)})
	}
	return files, nil
}
