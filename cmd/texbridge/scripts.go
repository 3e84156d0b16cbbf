package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/texbridge/assets"
	"github.com/caffeineduck/texbridge/internal/logging"
	"github.com/caffeineduck/texbridge/tool"
	"github.com/caffeineduck/texbridge/tool/latexdiff"
	"github.com/caffeineduck/texbridge/tool/latexindent"
	"github.com/caffeineduck/texbridge/tool/latexpand"
	"github.com/caffeineduck/texbridge/tool/texcount"
	"github.com/caffeineduck/texbridge/tool/texfmt"
)

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "Inspect and mirror the tool scripts",
	Long: `Inspect and mirror the scripts the tools stage into the sandbox.

Mirroring the scripts base into a local directory lets later runs use
--scripts <dir> without network access.`,
}

var scriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List each tool's script and dependencies",
	Args:  cobra.NoArgs,
	RunE:  runScriptsList,
}

var scriptsPullCmd = &cobra.Command{
	Use:   "pull [tools...]",
	Short: "Download scripts from the scripts base into a directory",
	RunE:  runScriptsPull,
}

func init() {
	scriptsPullCmd.Flags().String("dir", ".texbridge/perl", "Destination directory")
	scriptsPullCmd.Flags().Bool("force", false, "Overwrite files that already exist")

	scriptsCmd.AddCommand(scriptsListCmd, scriptsPullCmd)
	rootCmd.AddCommand(scriptsCmd)
}

func commands() []tool.Command {
	return []tool.Command{
		texcount.Command(),
		texfmt.Command(),
		latexdiff.Command(),
		latexpand.Command(),
		latexindent.Command(),
	}
}

func runScriptsList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, c := range commands() {
		fmt.Fprintf(out, "%-12s %s", c.Name(), c.ScriptPath())
		if deps := c.DependencyPaths(); len(deps) > 0 {
			fmt.Fprintf(out, " (%s)", strings.Join(deps, ", "))
		}
		fmt.Fprintln(out)
	}
	return nil
}

// scriptPaths returns the script and dependency paths of the named tools,
// or of every tool when names is empty.
func scriptPaths(names []string) ([]string, error) {
	byName := make(map[string]tool.Command)
	for _, c := range commands() {
		byName[c.Name()] = c
	}
	selected := commands()
	if len(names) > 0 {
		selected = nil
		for _, n := range names {
			c, ok := byName[n]
			if !ok {
				return nil, fmt.Errorf("unknown tool %q", n)
			}
			selected = append(selected, c)
		}
	}

	var paths []string
	seen := make(map[string]bool)
	for _, c := range selected {
		for _, p := range append([]string{c.ScriptPath()}, c.DependencyPaths()...) {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths, nil
}

func runScriptsPull(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	force, _ := cmd.Flags().GetBool("force")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	paths, err := scriptPaths(args)
	if err != nil {
		return err
	}

	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err == nil && !force {
			continue
		}
		missing = append(missing, p)
	}
	if len(missing) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Up to date.")
		return nil
	}

	log := logging.NewWithWriter(cmd.ErrOrStderr(), "texbridge", cfg.Verbose)
	loader := assets.NewLoader(cfg.ScriptsBase, assets.WithLogger(log))
	files, err := loader.FetchAll(commandContext(cmd), missing)
	if err != nil {
		return err
	}

	for _, f := range files {
		dst := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", f.Path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Done.")
	return nil
}
