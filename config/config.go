// Package config loads texbridge settings from TOML.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendWasm   = "wasm"
	BackendScript = "script"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// BootstrapBase holds the interpreter resource (perl.wasm or the
	// JavaScript bootstrap).
	BootstrapBase string
	// ScriptsBase holds the tool scripts and their Perl modules.
	ScriptsBase      string
	Verbose          bool
	Backend          string
	InitTimeout      time.Duration
	ExecTimeout      time.Duration
	ProbeInterval    time.Duration
	Serial           bool
	MemoryLimitPages uint32
	CacheDir         string
}

func Default() Config {
	return Config{
		BootstrapBase: "/core/webperl",
		ScriptsBase:   "/core/perl",
		Backend:       BackendWasm,
		InitTimeout:   30 * time.Second,
		ExecTimeout:   60 * time.Second,
		ProbeInterval: 100 * time.Millisecond,
	}
}

type fileConfig struct {
	BootstrapBase    string `toml:"bootstrap_base"`
	ScriptsBase      string `toml:"scripts_base"`
	Verbose          bool   `toml:"verbose"`
	Backend          string `toml:"backend"`
	InitTimeout      string `toml:"init_timeout"`
	ExecTimeout      string `toml:"exec_timeout"`
	ProbeInterval    string `toml:"probe_interval"`
	Serial           bool   `toml:"serial"`
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	CacheDir         string `toml:"cache_dir"`
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("bootstrap_base") {
		cfg.BootstrapBase = strings.TrimSpace(raw.BootstrapBase)
	}
	if meta.IsDefined("scripts_base") {
		cfg.ScriptsBase = strings.TrimSpace(raw.ScriptsBase)
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}
	if meta.IsDefined("backend") {
		cfg.Backend = strings.ToLower(strings.TrimSpace(raw.Backend))
	}
	if meta.IsDefined("init_timeout") {
		if cfg.InitTimeout, err = parseDuration("init_timeout", raw.InitTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("exec_timeout") {
		if cfg.ExecTimeout, err = parseDuration("exec_timeout", raw.ExecTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("probe_interval") {
		if cfg.ProbeInterval, err = parseDuration("probe_interval", raw.ProbeInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("serial") {
		cfg.Serial = raw.Serial
	}
	if meta.IsDefined("memory_limit_pages") {
		cfg.MemoryLimitPages = raw.MemoryLimitPages
	}
	if meta.IsDefined("cache_dir") {
		cfg.CacheDir = strings.TrimSpace(raw.CacheDir)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func (c Config) Validate() error {
	if c.BootstrapBase == "" {
		return fmt.Errorf("%w: bootstrap_base is empty", ErrInvalidConfig)
	}
	if c.ScriptsBase == "" {
		return fmt.Errorf("%w: scripts_base is empty", ErrInvalidConfig)
	}
	switch c.Backend {
	case BackendWasm, BackendScript:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	for key, d := range map[string]time.Duration{
		"init_timeout":   c.InitTimeout,
		"exec_timeout":   c.ExecTimeout,
		"probe_interval": c.ProbeInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, key)
		}
	}
	return nil
}
