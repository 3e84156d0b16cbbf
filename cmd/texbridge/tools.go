package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/texbridge/tool/latexdiff"
	"github.com/caffeineduck/texbridge/tool/latexindent"
	"github.com/caffeineduck/texbridge/tool/latexpand"
	"github.com/caffeineduck/texbridge/tool/texcount"
	"github.com/caffeineduck/texbridge/tool/texfmt"
	"github.com/caffeineduck/texbridge/vfs"
)

var countCmd = &cobra.Command{
	Use:   "count [file]",
	Short: "Count words with texcount",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCount,
}

var formatCmd = &cobra.Command{
	Use:   "format [file]",
	Short: "Format a document with tex-fmt",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFormat,
}

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Mark up changes between two documents with latexdiff",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

var expandCmd = &cobra.Command{
	Use:   "expand [file]",
	Short: "Inline \\input and \\include with latexpand",
	Long: `Inline \input and \include with latexpand.

The document is staged as main.tex in a private working directory. Files it
includes must be staged next to it with --file, e.g.
  texbridge expand paper.tex --file chapters/intro.tex=./chapters/intro.tex`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExpand,
}

var indentCmd = &cobra.Command{
	Use:   "indent [file]",
	Short: "Reindent a document with latexindent",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndent,
}

func init() {
	f := countCmd.Flags()
	f.Bool("brief", false, "Print a one-line summary")
	f.Bool("total", false, "Only print the total")
	f.Bool("sum", false, "Sum text, header and caption counts")
	f.Int("verbosity", 0, "Verbosity level passed as -v<N>")
	f.Bool("inc", false, "Follow \\input and \\include")
	f.Bool("merge", false, "Merge included files")
	f.Bool("json", false, "Print the parsed summary as JSON")

	f = formatCmd.Flags()
	f.Bool("wrap", false, "Force line wrapping on or off")
	f.Int("wraplen", 0, "Line length for wrapping")
	f.Int("tabsize", 0, "Indent width")
	f.Bool("usetabs", false, "Indent with tabs")
	f.StringSlice("list", nil, "Extra list environments (repeatable)")
	f.StringSlice("no-indent-env", nil, "Environments left unindented (repeatable)")

	f = diffCmd.Flags()
	f.String("type", "", "Markup style, e.g. UNDERLINE, CFONT, PDFCOMMENT")
	f.String("subtype", "", "Markup subtype")
	f.String("floattype", "", "Float handling: FLOATSAFE, IDENTICAL")
	f.String("encoding", "", "Input encoding")
	f.String("exclude-safecmd", "", "Commands removed from the safe list")
	f.String("append-safecmd", "", "Commands added to the safe list")
	f.String("exclude-textcmd", "", "Commands removed from the text list")
	f.String("append-textcmd", "", "Commands added to the text list")
	f.Int("math-markup", 0, "Math markup level 0-3")
	f.Bool("allow-spaces", false, "Allow spaces between commands and arguments")
	f.Bool("flatten", false, "Inline included files before diffing")

	f = expandCmd.Flags()
	f.Bool("keep-comments", false, "Keep comments")
	f.Bool("keep-includes", false, "Keep \\include commands")
	f.Bool("empty-comments", false, "Keep empty comment lines")
	f.StringToString("define", nil, "Macro definitions name=value")
	f.Bool("explain", false, "Explain what is inlined")
	f.Bool("show-graphics", false, "List included graphics")
	f.String("graphics-extensions", "", "Graphics extensions to look for")
	f.Bool("expand-usepackage", false, "Inline local packages")
	f.String("expand-bbl", "", "Inline this .bbl file")
	f.String("biber", "", "Inline this biber .bbl file")
	f.Bool("fatal", false, "Fail when an included file is missing")
	f.Bool("makeatletter", false, "Wrap inlined packages in \\makeatletter")
	f.StringArray("file", nil, "Additional file rel=local (repeatable)")

	f = indentCmd.Flags()
	f.Bool("silent", false, "Suppress the log on stdout")
	f.String("local", "", "Comma-separated settings files inside the sandbox")
	f.String("settings", "", "Local YAML file with settings to apply")

	for _, cmd := range []*cobra.Command{countCmd, formatCmd, diffCmd, expandCmd, indentCmd} {
		cmd.Flags().StringArray("arg", nil, "Extra argument passed to the tool (repeatable)")
		rootCmd.AddCommand(cmd)
	}
}

func runCount(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	var opts texcount.Options
	opts.Brief, _ = f.GetBool("brief")
	opts.Total, _ = f.GetBool("total")
	opts.Sum, _ = f.GetBool("sum")
	opts.IncludeFiles, _ = f.GetBool("inc")
	opts.Merge, _ = f.GetBool("merge")
	opts.Args, _ = f.GetStringArray("arg")
	if f.Changed("verbosity") {
		v, _ := f.GetInt("verbosity")
		opts.Verbose = &v
	}
	asJSON, _ := f.GetBool("json")

	src, err := readSource(cmd, argOrStdin(args))
	if err != nil {
		return err
	}
	tk, err := newToolkit(cmd)
	if err != nil {
		return err
	}
	defer tk.Close()

	summary, res, err := tk.Count.Summarize(commandContext(cmd), src, opts)
	if err != nil {
		return err
	}
	if !asJSON || !res.Success {
		return printResult(cmd, res)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func runFormat(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	var opts texfmt.Options
	if f.Changed("wrap") {
		wrap, _ := f.GetBool("wrap")
		opts.Wrap = &wrap
	}
	opts.WrapLen, _ = f.GetInt("wraplen")
	opts.TabSize, _ = f.GetInt("tabsize")
	opts.UseTabs, _ = f.GetBool("usetabs")
	opts.Lists, _ = f.GetStringSlice("list")
	opts.NoIndentEnvs, _ = f.GetStringSlice("no-indent-env")
	opts.Args, _ = f.GetStringArray("arg")

	src, err := readSource(cmd, argOrStdin(args))
	if err != nil {
		return err
	}
	tk, err := newToolkit(cmd)
	if err != nil {
		return err
	}
	defer tk.Close()

	res, err := tk.Format.Format(commandContext(cmd), src, opts)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func runDiff(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	var opts latexdiff.Options
	opts.Type, _ = f.GetString("type")
	opts.Subtype, _ = f.GetString("subtype")
	opts.FloatType, _ = f.GetString("floattype")
	opts.Encoding, _ = f.GetString("encoding")
	opts.ExcludeSafecmd, _ = f.GetString("exclude-safecmd")
	opts.AppendSafecmd, _ = f.GetString("append-safecmd")
	opts.ExcludeTextcmd, _ = f.GetString("exclude-textcmd")
	opts.AppendTextcmd, _ = f.GetString("append-textcmd")
	opts.AllowSpaces, _ = f.GetBool("allow-spaces")
	opts.Flatten, _ = f.GetBool("flatten")
	opts.Args, _ = f.GetStringArray("arg")
	if f.Changed("math-markup") {
		m, _ := f.GetInt("math-markup")
		opts.MathMarkup = &m
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	oldDoc, err := readSource(cmd, args[0])
	if err != nil {
		return err
	}
	newDoc, err := readSource(cmd, args[1])
	if err != nil {
		return err
	}
	tk, err := newToolkit(cmd)
	if err != nil {
		return err
	}
	defer tk.Close()

	res, err := tk.Diff.Diff(commandContext(cmd), oldDoc, newDoc, opts)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func runExpand(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	var opts latexpand.Options
	opts.KeepComments, _ = f.GetBool("keep-comments")
	opts.KeepIncludes, _ = f.GetBool("keep-includes")
	opts.EmptyComments, _ = f.GetBool("empty-comments")
	opts.Defines, _ = f.GetStringToString("define")
	opts.Explain, _ = f.GetBool("explain")
	opts.ShowGraphics, _ = f.GetBool("show-graphics")
	opts.GraphicsExtensions, _ = f.GetString("graphics-extensions")
	opts.ExpandUsepackage, _ = f.GetBool("expand-usepackage")
	opts.ExpandBbl, _ = f.GetString("expand-bbl")
	opts.Biber, _ = f.GetString("biber")
	opts.Fatal, _ = f.GetBool("fatal")
	opts.Makeatletter, _ = f.GetBool("makeatletter")
	opts.Args, _ = f.GetStringArray("arg")

	specs, _ := f.GetStringArray("file")
	pairs, err := parsePairs("file", specs)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		data, err := os.ReadFile(p[1])
		if err != nil {
			return err
		}
		opts.AdditionalFiles = append(opts.AdditionalFiles, vfs.File{Path: p[0], Content: string(data)})
	}

	src, err := readSource(cmd, argOrStdin(args))
	if err != nil {
		return err
	}
	tk, err := newToolkit(cmd)
	if err != nil {
		return err
	}
	defer tk.Close()

	res, err := tk.Expand.Expand(commandContext(cmd), src, opts)
	if err != nil {
		if res.Error != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), res.Error)
		}
		return err
	}
	return printResult(cmd, res)
}

func runIndent(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	var opts latexindent.Options
	opts.Silent, _ = f.GetBool("silent")
	opts.LocalSettings, _ = f.GetString("local")
	opts.Args, _ = f.GetStringArray("arg")
	if path, _ := f.GetString("settings"); path != "" {
		settings, err := readSettings(path)
		if err != nil {
			return err
		}
		opts.Settings = settings
	}

	src, err := readSource(cmd, argOrStdin(args))
	if err != nil {
		return err
	}
	tk, err := newToolkit(cmd)
	if err != nil {
		return err
	}
	defer tk.Close()

	res, err := tk.Indent.Indent(commandContext(cmd), src, opts)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var settings map[string]any
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return settings, nil
}
