package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/vfs"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <script> [args...]",
	Short: "Run a raw command line in the sandbox",
	Long: `Run a raw command line in the sandbox.

The script named by the first argument is fetched from the scripts base
unless it is staged with --input. Local files are staged with
--input virtual=local; the first --output file that the run writes replaces
stdout in the printed result.

  texbridge exec --input /tmp/in.tex=./paper.tex -- /texcount.pl -brief /tmp/in.tex`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringArray("input", nil, "Stage a local file as virtual=local (repeatable)")
	execCmd.Flags().StringSlice("output", nil, "Virtual path collected after the run (repeatable)")
	execCmd.Flags().String("cwd", "", "Working directory inside the sandbox")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	specs, _ := cmd.Flags().GetStringArray("input")
	outputs, _ := cmd.Flags().GetStringSlice("output")
	cwd, _ := cmd.Flags().GetString("cwd")

	inputs, err := stageLocal(specs)
	if err != nil {
		return err
	}

	tk, err := newToolkit(cmd)
	if err != nil {
		return err
	}
	defer tk.Close()

	inv := bridge.Invocation{Argv: args, Inputs: inputs, Outputs: outputs, WorkDir: cwd}
	res, err := tk.Exec(commandContext(cmd), inv, missingScripts(inv)...)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

func stageLocal(specs []string) ([]vfs.File, error) {
	pairs, err := parsePairs("input", specs)
	if err != nil {
		return nil, err
	}
	files := make([]vfs.File, 0, len(pairs))
	for _, p := range pairs {
		data, err := os.ReadFile(p[1])
		if err != nil {
			return nil, err
		}
		files = append(files, vfs.File{Path: p[0], Content: string(data)})
	}
	return files, nil
}

// missingScripts names the script to fetch when the invocation does not
// stage it itself.
func missingScripts(inv bridge.Invocation) []string {
	if len(inv.Argv) == 0 || inv.Argv[0] == "" {
		return nil
	}
	for _, f := range inv.Inputs {
		if f.Path == inv.Argv[0] {
			return nil
		}
	}
	return []string{inv.Argv[0]}
}
