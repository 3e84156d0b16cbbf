// Package texcount counts words in LaTeX documents with texcount.pl.
package texcount

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/tool"
)

const (
	ScriptPath = "/texcount.pl"
	DiffModule = "/Algorithm/Diff.pm"
)

// Options mirror texcount's command-line switches.
type Options struct {
	Brief        bool
	Total        bool
	Sum          bool
	Verbose      *int
	IncludeFiles bool
	Merge        bool
	Args         []string
}

// Summary is the parsed form of texcount's report.
type Summary struct {
	Words    int    `json:"words"`
	Headers  int    `json:"headers"`
	Captions int    `json:"captions"`
	Raw      string `json:"raw"`
}

type command struct{}

func (command) Name() string              { return "texcount" }
func (command) ScriptPath() string        { return ScriptPath }
func (command) DependencyPaths() []string { return []string{DiffModule} }

// Command describes texcount.pl for tool.New.
func Command() tool.Command { return command{} }

type Counter struct {
	tool *tool.Tool
}

// New returns a Counter that runs texcount through runner.
func New(runner tool.Runner, fetcher tool.Fetcher, opts ...tool.Option) *Counter {
	return &Counter{tool: tool.New(runner, fetcher, command{}, opts...)}
}

// Args builds the arguments that follow the script path.
func Args(input string, opts Options) []string {
	var args []string
	if opts.Brief {
		args = append(args, "-brief")
	}
	if opts.Total {
		args = append(args, "-total")
	}
	if opts.Sum {
		args = append(args, "-sum")
	}
	if opts.Verbose != nil {
		args = append(args, fmt.Sprintf("-v%d", *opts.Verbose))
	}
	if opts.IncludeFiles {
		args = append(args, "-inc")
	}
	if opts.Merge {
		args = append(args, "-merge")
	}
	args = append(args, opts.Args...)
	return append(args, input)
}

// Count runs texcount on input and returns its raw report.
func (c *Counter) Count(ctx context.Context, input string, opts Options) (bridge.Result, error) {
	return c.tool.ExecuteScript(ctx, tool.ScriptRun{
		Input: input,
		Args: func(p tool.Paths) []string {
			return Args(p.Input, opts)
		},
	})
}

// Summarize counts input and parses the report.
func (c *Counter) Summarize(ctx context.Context, input string, opts Options) (Summary, bridge.Result, error) {
	res, err := c.Count(ctx, input, opts)
	if err != nil {
		return Summary{}, res, err
	}
	return Parse(res.Output), res, nil
}

// Parse extracts the text, header and caption counts from a texcount
// report. Missing or malformed counts read as zero.
func Parse(raw string) Summary {
	s := Summary{Raw: raw}
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		switch {
		case strings.Contains(line, "Words in text:"):
			s.Words = field(line)
		case strings.Contains(line, "Words in headers:"):
			s.Headers = field(line)
		case strings.Contains(line, "Words outside text"):
			s.Captions = field(line)
		}
	}
	return s
}

// field parses the leading integer of the second colon-separated field.
func field(line string) int {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return 0
	}
	v := strings.TrimSpace(parts[1])
	end := 0
	for end < len(v) && (v[end] >= '0' && v[end] <= '9' || end == 0 && (v[end] == '-' || v[end] == '+')) {
		end++
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil {
		return 0
	}
	return n
}
