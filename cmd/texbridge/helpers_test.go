package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/texbridge"
	"github.com/caffeineduck/texbridge/config"
)

const bootstrapDir = "../../script/testdata"

// Stand-ins for the Perl tools, run by the script backend's test bootstrap.
var testScripts = map[string]string{
	"texcount.pl": `
var text = io.read(argv[argv.length - 1]);
io.print("Words in text: " + text.trim().split(/\s+/).length + "\nWords in headers: 1\n");
`,
	"Algorithm/Diff.pm": `1;`,
	"format.tool":       `io.print(io.read(argv[argv.length - 1]).replace(/[ \t]+\n/g, "\n"));`,
	"latexdiff.pl":      `io.print("\\DIFdel{" + io.read(argv[argv.length - 2]) + "}\\DIFadd{" + io.read(argv[argv.length - 1]) + "}");`,
	"latexpand.pl":      `io.print(io.read(argv[argv.length - 1]));`,
	"latexindent.pl":    `io.write(argv[argv.length - 2], io.read(argv[argv.length - 1]).trim());`,
	"echo.pl":           `io.print(argv.join(" "));`,
	"fail.pl":           `io.printErr("! Missing $ inserted.\n"); io.exit(3);`,
}

func writeScripts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range testScripts {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestToolkit(t *testing.T) *texbridge.Toolkit {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendScript
	cfg.BootstrapBase = bootstrapDir
	cfg.ScriptsBase = writeScripts(t)
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.ExecTimeout = 5 * time.Second

	tk, err := texbridge.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tk.Close() })
	return tk
}

func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(&bytes.Buffer{})
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

// scriptArgs points the CLI at the script backend and the given scripts.
func scriptArgs(scripts string, args ...string) []string {
	return append([]string{"--backend", "script", "--bootstrap", bootstrapDir, "--scripts", scripts}, args...)
}

// clearRepeatable resets a repeatable flag after the test. Flag values
// outlive a run of the shared root command.
func clearRepeatable(t *testing.T, cmd *cobra.Command, name string) {
	t.Cleanup(func() {
		f := cmd.Flags().Lookup(name)
		f.Value.(interface{ Replace([]string) error }).Replace(nil)
		f.Changed = false
	})
}
