package sandbox

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/caffeineduck/texbridge/assets"
)

type hostConfig struct {
	memoryLimitPages uint32
	diskCache        bool
	cacheDir         string
	tempDir          string
	loaderOpts       []assets.Option
	log              zerolog.Logger
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		log: zerolog.Nop(),
	}
}

// Option configures a Host.
type Option func(*hostConfig)

// WithMemoryLimitPages caps interpreter memory in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *hostConfig) {
		c.memoryLimitPages = pages
	}
}

// WithDiskCache persists compiled modules across processes. An empty dir
// uses the user cache directory.
func WithDiskCache(dir string) Option {
	return func(c *hostConfig) {
		c.diskCache = true
		c.cacheDir = dir
	}
}

// WithTempDir sets where per-run root directories are created.
func WithTempDir(dir string) Option {
	return func(c *hostConfig) {
		c.tempDir = dir
	}
}

// WithLoaderOptions configures the loader that fetches the interpreter.
func WithLoaderOptions(opts ...assets.Option) Option {
	return func(c *hostConfig) {
		c.loaderOpts = append(c.loaderOpts, opts...)
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *hostConfig) {
		c.log = log
	}
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "texbridge")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "texbridge")
	}
	return filepath.Join(os.TempDir(), "texbridge-cache")
}
