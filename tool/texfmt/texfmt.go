// Package texfmt formats LaTeX sources with tex-fmt.
package texfmt

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/tool"
	"github.com/caffeineduck/texbridge/vfs"
)

const ScriptPath = "/format.tool"

// Options are the tex-fmt settings.
type Options struct {
	// Wrap forces --wrap or --nowrap; nil leaves the tool default.
	Wrap         *bool
	WrapLen      int
	TabSize      int
	UseTabs      bool
	Lists        []string
	NoIndentEnvs []string
	Args         []string
}

// fileConfig is the tex-fmt.toml layout.
type fileConfig struct {
	Wrap         *bool    `toml:"wrap,omitempty"`
	WrapLen      int      `toml:"wraplen,omitempty"`
	TabSize      int      `toml:"tabsize,omitempty"`
	TabChar      string   `toml:"tabchar"`
	Lists        []string `toml:"lists"`
	NoIndentEnvs []string `toml:"no-indent-envs"`
}

type command struct{}

func (command) Name() string              { return "texfmt" }
func (command) ScriptPath() string        { return ScriptPath }
func (command) DependencyPaths() []string { return nil }

// Command describes the format.tool script for tool.New.
func Command() tool.Command { return command{} }

type Formatter struct {
	tool *tool.Tool
}

// New returns a Formatter that runs tex-fmt through runner.
func New(runner tool.Runner, fetcher tool.Fetcher, opts ...tool.Option) *Formatter {
	return &Formatter{tool: tool.New(runner, fetcher, command{}, opts...)}
}

// NeedsConfig reports whether opts carry settings only a config file can
// express.
func NeedsConfig(opts Options) bool {
	return len(opts.Lists) > 0 || len(opts.NoIndentEnvs) > 0
}

// Config renders opts as a tex-fmt TOML config.
func Config(opts Options) (string, error) {
	cfg := fileConfig{
		Wrap:         opts.Wrap,
		WrapLen:      opts.WrapLen,
		TabSize:      opts.TabSize,
		TabChar:      "space",
		Lists:        opts.Lists,
		NoIndentEnvs: opts.NoIndentEnvs,
	}
	if opts.UseTabs {
		cfg.TabChar = "tab"
	}
	if cfg.Lists == nil {
		cfg.Lists = []string{}
	}
	if cfg.NoIndentEnvs == nil {
		cfg.NoIndentEnvs = []string{}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encode tex-fmt config: %w", err)
	}
	return buf.String(), nil
}

// Args builds the arguments that follow the script path. configPath is
// empty when no config file is staged.
func Args(input, configPath string, opts Options) []string {
	var args []string
	if opts.Wrap != nil {
		if *opts.Wrap {
			args = append(args, "--wrap")
		} else {
			args = append(args, "--nowrap")
		}
	}
	if opts.WrapLen > 0 {
		args = append(args, "--wraplen="+strconv.Itoa(opts.WrapLen))
	}
	if opts.TabSize > 0 {
		args = append(args, "--tabsize="+strconv.Itoa(opts.TabSize))
	}
	if opts.UseTabs {
		args = append(args, "--usetabs")
	}
	if configPath != "" {
		args = append(args, "--config="+configPath)
	}
	args = append(args, opts.Args...)
	return append(args, input)
}

func configPath(p tool.Paths) string {
	return p.File("texfmt", ".toml")
}

// Format runs tex-fmt on input; the formatted source is read from stdout.
func (f *Formatter) Format(ctx context.Context, input string, opts Options) (bridge.Result, error) {
	withConfig := NeedsConfig(opts)
	return f.tool.ExecuteScript(ctx, tool.ScriptRun{
		Input: input,
		Args: func(p tool.Paths) []string {
			if withConfig {
				return Args(p.Input, configPath(p), opts)
			}
			return Args(p.Input, "", opts)
		},
		Extra: func(p tool.Paths) ([]vfs.File, error) {
			if !withConfig {
				return nil, nil
			}
			content, err := Config(opts)
			if err != nil {
				return nil, err
			}
			return []vfs.File{{Path: configPath(p), Content: content}}, nil
		},
	})
}
