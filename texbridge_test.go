package texbridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/config"
	"github.com/caffeineduck/texbridge/tool/latexindent"
	"github.com/caffeineduck/texbridge/tool/latexpand"
	"github.com/caffeineduck/texbridge/tool/texcount"
	"github.com/caffeineduck/texbridge/vfs"
)

// Stand-ins for the Perl tools, run by the script backend's test bootstrap.
var scripts = map[string]string{
	"texcount.pl": `
var text = io.read(argv[argv.length - 1]);
io.print("Words in text: " + text.trim().split(/\s+/).length + "\nWords in headers: 0\n");
`,
	"Algorithm/Diff.pm": `1;`,
	"latexpand.pl": `
var src = io.read(argv[argv.length - 1]);
io.print(src.replace(/\\input\{([^}]*)\}/g, function (m, p) { return io.read(p + ".tex"); }));
`,
	"latexindent.pl": `
io.print("indent.log\n");
io.write(argv[argv.length - 2], io.read(argv[argv.length - 1]).trim() + "\n");
`,
	"echo.pl": `io.print(argv.join(" "));`,
}

func newScriptToolkit(t *testing.T) *Toolkit {
	t.Helper()
	dir := t.TempDir()
	for name, body := range scripts {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Default()
	cfg.Backend = config.BackendScript
	cfg.BootstrapBase = filepath.Join("script", "testdata")
	cfg.ScriptsBase = dir
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.ExecTimeout = 5 * time.Second

	tk, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tk.Close() })
	return tk
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "jvm"
	if _, err := New(cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestCountEndToEnd(t *testing.T) {
	tk := newScriptToolkit(t)

	summary, res, err := tk.Count.Summarize(context.Background(), "one two three four", texcount.Options{Brief: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || summary.Words != 4 {
		t.Errorf("summary = %+v, result = %+v", summary, res)
	}
	if tk.Runner.State() != bridge.StateReady {
		t.Errorf("state = %v", tk.Runner.State())
	}
}

func TestExpandEndToEnd(t *testing.T) {
	tk := newScriptToolkit(t)

	res, err := tk.Expand.Expand(context.Background(), "A \\input{chapters/b} C", latexpand.Options{
		AdditionalFiles: []vfs.File{{Path: "chapters/b.tex", Content: "B"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "A B C" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestIndentEndToEnd(t *testing.T) {
	tk := newScriptToolkit(t)

	res, err := tk.Indent.Indent(context.Background(), "  \\item x  ", latexindent.Options{Silent: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "\\item x\n" {
		t.Errorf("expected output file content, got %q", res.Output)
	}
}

func TestExecStagesNamedScripts(t *testing.T) {
	tk := newScriptToolkit(t)

	res, err := tk.Exec(context.Background(), bridge.Invocation{Argv: []string{"/echo.pl", "a", "b"}}, "/echo.pl")
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "a b" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestToolsShareRunner(t *testing.T) {
	tk := newScriptToolkit(t)
	ctx := context.Background()

	if _, err := tk.Count.Count(ctx, "x", texcount.Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := tk.Expand.Expand(ctx, "y", latexpand.Options{}); err != nil {
		t.Fatal(err)
	}
	if err := tk.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := tk.Count.Count(ctx, "x", texcount.Options{}); err == nil {
		t.Error("expected an error after Close")
	}
}
