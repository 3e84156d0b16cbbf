// Package latexdiff marks up the differences between two LaTeX documents
// with latexdiff.pl.
package latexdiff

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/tool"
)

const ScriptPath = "/latexdiff.pl"

var ErrInvalidOption = errors.New("invalid latexdiff option")

// Markup styles accepted by --type.
var Types = []string{
	"UNDERLINE", "CTRADITIONAL", "TRADITIONAL", "CFONT", "FONTSTRIKE",
	"CCHANGEBAR", "CFONTCHBAR", "CULINECHBAR", "CHANGEBAR", "INVISIBLE",
	"BOLD", "PDFCOMMENT",
}

// Float handling accepted by --floattype.
var FloatTypes = []string{"FLOATSAFE", "IDENTICAL"}

// Options are the latexdiff command line settings.
type Options struct {
	Type           string
	Subtype        string
	FloatType      string
	Encoding       string
	ExcludeSafecmd string
	AppendSafecmd  string
	ExcludeTextcmd string
	AppendTextcmd  string
	MathMarkup     *int
	AllowSpaces    bool
	Flatten        bool
	Args           []string
}

func (o Options) Validate() error {
	if o.Type != "" && !slices.Contains(Types, o.Type) {
		return fmt.Errorf("%w: type %q", ErrInvalidOption, o.Type)
	}
	if o.FloatType != "" && !slices.Contains(FloatTypes, o.FloatType) {
		return fmt.Errorf("%w: floattype %q", ErrInvalidOption, o.FloatType)
	}
	return nil
}

type command struct{}

func (command) Name() string              { return "latexdiff" }
func (command) ScriptPath() string        { return ScriptPath }
func (command) DependencyPaths() []string { return nil }

// Command describes latexdiff.pl for tool.New.
func Command() tool.Command { return command{} }

type Differ struct {
	tool *tool.Tool
}

// New returns a Differ that runs latexdiff through runner.
func New(runner tool.Runner, fetcher tool.Fetcher, opts ...tool.Option) *Differ {
	return &Differ{tool: tool.New(runner, fetcher, command{}, opts...)}
}

// Args builds the arguments that follow the script path.
func Args(oldPath, newPath string, opts Options) []string {
	var args []string
	flag := func(name, value string) {
		if value != "" {
			args = append(args, "--"+name+"="+value)
		}
	}
	flag("type", opts.Type)
	flag("subtype", opts.Subtype)
	flag("floattype", opts.FloatType)
	flag("encoding", opts.Encoding)
	flag("exclude-safecmd", opts.ExcludeSafecmd)
	flag("append-safecmd", opts.AppendSafecmd)
	flag("exclude-textcmd", opts.ExcludeTextcmd)
	flag("append-textcmd", opts.AppendTextcmd)
	if opts.MathMarkup != nil {
		flag("math-markup", strconv.Itoa(*opts.MathMarkup))
	}
	if opts.AllowSpaces {
		args = append(args, "--allow-spaces")
	}
	if opts.Flatten {
		args = append(args, "--flatten")
	}
	args = append(args, opts.Args...)
	return append(args, oldPath, newPath)
}

// Diff runs latexdiff on the two documents; the marked-up source is read
// from stdout.
func (d *Differ) Diff(ctx context.Context, oldDoc, newDoc string, opts Options) (bridge.Result, error) {
	if err := opts.Validate(); err != nil {
		return bridge.Result{}, err
	}
	return d.tool.ExecuteDiff(ctx, tool.DiffRun{
		Old: oldDoc,
		New: newDoc,
		Args: func(oldPath, newPath string) []string {
			return Args(oldPath, newPath, opts)
		},
	})
}
