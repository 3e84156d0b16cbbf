package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/texbridge"
	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/vfs"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell for raw command lines",
	Long: `Start an interactive shell that runs each line as a command line in the
sandbox, e.g. /texcount.pl -brief /tmp/paper.tex

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)

Shell commands:
  :load <virtual> <local>   stage a local file for every following run
  :files                    list staged files
  :clear                    drop staged files

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.texbridge_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".texbridge_history")
	}

	tk, err := newToolkit(cmd)
	if err != nil {
		return err
	}
	defer tk.Close()

	if err := tk.Runner.Initialize(commandContext(cmd)); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "texbridge> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             io.NopCloser(cmd.InOrStdin()),
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "texbridge shell (type 'exit' to quit, Ctrl+D to exit)")

	sh := &shell{tk: tk, staged: make(map[string]vfs.File)}
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := sh.handle(cmd, line); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

// shell keeps the files staged with :load between runs.
type shell struct {
	tk     *texbridge.Toolkit
	staged map[string]vfs.File
}

func (s *shell) handle(cmd *cobra.Command, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":load":
		if len(fields) != 3 {
			return errors.New("usage: :load <virtual> <local>")
		}
		data, err := os.ReadFile(fields[2])
		if err != nil {
			return err
		}
		p := vfs.Clean(fields[1])
		s.staged[p] = vfs.File{Path: p, Content: string(data)}
		return nil
	case ":files":
		for _, f := range s.files() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\n", f.Path, len(f.Content))
		}
		return nil
	case ":clear":
		clear(s.staged)
		return nil
	}

	inv := bridge.Invocation{Argv: fields, Inputs: s.files()}
	res, err := s.tk.Exec(commandContext(cmd), inv, missingScripts(inv)...)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func (s *shell) files() []vfs.File {
	files := make([]vfs.File, 0, len(s.staged))
	for _, f := range s.staged {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}
