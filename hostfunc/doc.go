// Package hostfunc provides host function implementations for sandboxed code.
//
// Host functions are Go functions that sandboxed code calls by name. The
// script context routes its __host(name, args) binding through a [Registry].
//
// # Registry
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "result", nil
//	})
//
// # Filesystem
//
// [FS] exposes an in-memory [github.com/caffeineduck/texbridge/vfs.MemFS]
// as fs_read, fs_write, fs_mkdir, fs_exists, fs_list, fs_remove and fs_stat:
//
//	hostfunc.NewFS(vfs.NewMemFS()).Register(registry)
//
// There is no implicit access to the host filesystem.
package hostfunc
