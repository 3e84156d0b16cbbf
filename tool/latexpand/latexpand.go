// Package latexpand flattens multi-file LaTeX documents with latexpand.pl.
package latexpand

import (
	"context"
	"slices"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/tool"
	"github.com/caffeineduck/texbridge/vfs"
)

const ScriptPath = "/latexpand.pl"

// Options are the latexpand command line settings.
type Options struct {
	KeepComments       bool
	KeepIncludes       bool
	EmptyComments      bool
	Defines            map[string]string
	Explain            bool
	ShowGraphics       bool
	GraphicsExtensions string
	ExpandUsepackage   bool
	ExpandBbl          string
	Biber              string
	Fatal              bool
	Makeatletter       bool
	Args               []string
	// AdditionalFiles are staged relative to the main document, e.g.
	// chapters/intro.tex.
	AdditionalFiles []vfs.File
}

type command struct{}

func (command) Name() string              { return "latexpand" }
func (command) ScriptPath() string        { return ScriptPath }
func (command) DependencyPaths() []string { return nil }

// Command describes latexpand.pl for tool.New.
func Command() tool.Command { return command{} }

type Expander struct {
	tool *tool.Tool
}

// New returns an Expander that runs latexpand through runner.
func New(runner tool.Runner, fetcher tool.Fetcher, opts ...tool.Option) *Expander {
	return &Expander{tool: tool.New(runner, fetcher, command{}, opts...)}
}

// Args builds the arguments that follow the script path. Defines are
// emitted in key order.
func Args(main string, opts Options) []string {
	var args []string
	if opts.KeepComments {
		args = append(args, "--keep-comments")
	}
	if opts.KeepIncludes {
		args = append(args, "--keep-includes")
	}
	if opts.EmptyComments {
		args = append(args, "--empty-comments")
	}
	keys := make([]string, 0, len(opts.Defines))
	for k := range opts.Defines {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "--define", k+"="+opts.Defines[k])
	}
	if opts.Explain {
		args = append(args, "--explain")
	}
	if opts.ShowGraphics {
		args = append(args, "--show-graphics")
	}
	if opts.GraphicsExtensions != "" {
		args = append(args, "--graphics-extensions", opts.GraphicsExtensions)
	}
	if opts.ExpandUsepackage {
		args = append(args, "--expand-usepackage")
	}
	if opts.ExpandBbl != "" {
		args = append(args, "--expand-bbl", opts.ExpandBbl)
	}
	if opts.Biber != "" {
		args = append(args, "--biber", opts.Biber)
	}
	if opts.Fatal {
		args = append(args, "--fatal")
	}
	if opts.Makeatletter {
		args = append(args, "--makeatletter")
	}
	args = append(args, opts.Args...)
	return append(args, main)
}

// Expand inlines every \input and \include of main. A run that succeeds
// without output fails with tool.ErrEmptyOutput.
func (e *Expander) Expand(ctx context.Context, main string, opts Options) (bridge.Result, error) {
	return e.tool.ExecuteInWorkDir(ctx, tool.WorkDirRun{
		Main: main,
		Aux:  opts.AdditionalFiles,
		Args: func(tool.Paths) []string {
			return Args(tool.MainFile, opts)
		},
	})
}
