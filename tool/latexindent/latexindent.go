// Package latexindent reindents LaTeX sources with latexindent.pl.
package latexindent

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/tool"
	"github.com/caffeineduck/texbridge/vfs"
)

const ScriptPath = "/latexindent.pl"

// Options are the latexindent command line settings.
type Options struct {
	Silent bool
	// LocalSettings is a comma-separated list of settings files already
	// present in the sandbox.
	LocalSettings string
	// Settings are written to a per-call YAML file and loaded after
	// LocalSettings.
	Settings map[string]any
	Args     []string
}

type command struct{}

func (command) Name() string              { return "latexindent" }
func (command) ScriptPath() string        { return ScriptPath }
func (command) DependencyPaths() []string { return nil }

// Command describes latexindent.pl for tool.New.
func Command() tool.Command { return command{} }

type Indenter struct {
	tool *tool.Tool
}

// New returns an Indenter that runs latexindent through runner.
func New(runner tool.Runner, fetcher tool.Fetcher, opts ...tool.Option) *Indenter {
	return &Indenter{tool: tool.New(runner, fetcher, command{}, opts...)}
}

// Settings renders settings as a latexindent YAML file.
func Settings(settings map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(4)
	if err := enc.Encode(settings); err != nil {
		return "", fmt.Errorf("encode latexindent settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode latexindent settings: %w", err)
	}
	return buf.String(), nil
}

// Args builds the arguments that follow the script path. settingsPath is
// empty when no settings file is staged.
func Args(input, output, settingsPath string, opts Options) []string {
	var args []string
	if opts.Silent {
		args = append(args, "-s")
	}
	var local []string
	if opts.LocalSettings != "" {
		local = append(local, opts.LocalSettings)
	}
	if settingsPath != "" {
		local = append(local, settingsPath)
	}
	if len(local) > 0 {
		args = append(args, "-l", strings.Join(local, ","))
	}
	args = append(args, opts.Args...)
	return append(args, "-o", output, input)
}

func settingsPath(p tool.Paths) string {
	return p.File("indent", ".yaml")
}

// Indent runs latexindent on input. The result carries the output file
// written by latexindent rather than its log.
func (i *Indenter) Indent(ctx context.Context, input string, opts Options) (bridge.Result, error) {
	withSettings := len(opts.Settings) > 0
	return i.tool.ExecuteScript(ctx, tool.ScriptRun{
		Input:         input,
		CaptureOutput: true,
		Args: func(p tool.Paths) []string {
			if withSettings {
				return Args(p.Input, p.Output, settingsPath(p), opts)
			}
			return Args(p.Input, p.Output, "", opts)
		},
		Extra: func(p tool.Paths) ([]vfs.File, error) {
			if !withSettings {
				return nil, nil
			}
			content, err := Settings(opts.Settings)
			if err != nil {
				return nil, err
			}
			return []vfs.File{{Path: settingsPath(p), Content: content}}, nil
		},
	})
}
