package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/texbridge/assets"
	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/vfs"
)

func newScriptRunner(t *testing.T, base string, hostOpts []Option, opts ...bridge.Option) *bridge.Runner {
	t.Helper()
	opts = append([]bridge.Option{
		bridge.WithBootstrapBase(base),
		bridge.WithProbeInterval(10 * time.Millisecond),
		bridge.WithExecTimeout(5 * time.Second),
	}, opts...)
	r := bridge.New(NewHost(hostOpts...), opts...)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func writeBootstrap(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultBootstrap), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

const countScript = `
var text = io.read(argv[0]);
io.print("Words in text: " + text.split(/\s+/).length + "\n");
io.printErr("File: " + argv[0] + "\n");
`

func TestRunCapturesStdoutAndStderr(t *testing.T) {
	r := newScriptRunner(t, "testdata", nil)

	res, err := r.Execute(context.Background(), bridge.Invocation{
		Argv: []string{"/texcount.pl", "/tmp/input_1.tex"},
		Inputs: []vfs.File{
			{Path: "/texcount.pl", Content: countScript},
			{Path: "/tmp/input_1.tex", Content: "one two three"},
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success, got %+v", res)
	}
	if res.Output != "Words in text: 3\n" {
		t.Errorf("output = %q", res.Output)
	}
	if res.Error != "File: /tmp/input_1.tex\n" {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunReturnsDeclaredOutput(t *testing.T) {
	r := newScriptRunner(t, "testdata", nil)

	res, err := r.Execute(context.Background(), bridge.Invocation{
		Argv: []string{"/upper.pl", "/tmp/in.tex", "/tmp/out.tex"},
		Inputs: []vfs.File{
			{Path: "/upper.pl", Content: `io.print("log line\n"); io.write(argv[1], io.read(argv[0]).toUpperCase());`},
			{Path: "/tmp/in.tex", Content: "\\section{intro}"},
		},
		Outputs: []string{"/tmp/out.tex"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output != "\\SECTION{INTRO}" {
		t.Errorf("expected output file content, got %q", res.Output)
	}
}

func TestRunExitStatus(t *testing.T) {
	r := newScriptRunner(t, "testdata", nil)

	res, err := r.Execute(context.Background(), bridge.Invocation{
		Argv:   []string{"/fail.pl"},
		Inputs: []vfs.File{{Path: "/fail.pl", Content: `io.printErr("! Undefined control sequence.\n"); io.exit(2);`}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success || res.ExitCode != 2 || !strings.Contains(res.Error, "Undefined control sequence") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRunInWorkDir(t *testing.T) {
	r := newScriptRunner(t, "testdata", nil)

	res, err := r.Execute(context.Background(), bridge.Invocation{
		Argv: []string{"/expand.pl", "main.tex"},
		Inputs: []vfs.File{
			{Path: "/expand.pl", Content: `io.print(io.read(argv[0]).replace("\\input{chapters/one}", io.read("chapters/one.tex")));`},
			{Path: "/tmp/work_1/main.tex", Content: "A \\input{chapters/one} C"},
			{Path: "/tmp/work_1/chapters/one.tex", Content: "B"},
		},
		WorkDir: "/tmp/work_1",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output != "A B C" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRunScriptException(t *testing.T) {
	r := newScriptRunner(t, "testdata", nil)

	_, err := r.Execute(context.Background(), bridge.Invocation{
		Argv:   []string{"/boom.pl"},
		Inputs: []vfs.File{{Path: "/boom.pl", Content: `throw new Error("boom");`}},
	})
	if !errors.Is(err, bridge.ErrRemoteExecution) || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected remote execution error, got %v", err)
	}
}

func TestTimeoutInterruptsRunningScript(t *testing.T) {
	r := newScriptRunner(t, "testdata", nil, bridge.WithExecTimeout(100*time.Millisecond))

	_, err := r.Execute(context.Background(), bridge.Invocation{
		Argv:   []string{"/spin.pl"},
		Inputs: []vfs.File{{Path: "/spin.pl", Content: `for (;;) {}`}},
	})
	if !errors.Is(err, bridge.ErrExecutionTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	res, err := r.Execute(context.Background(), bridge.Invocation{
		Argv:   []string{"/ok.pl"},
		Inputs: []vfs.File{{Path: "/ok.pl", Content: `io.print("still alive");`}},
	})
	if err != nil {
		t.Fatalf("context did not recover after cancel: %v", err)
	}
	if res.Output != "still alive" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestConcurrentRunsStayCorrelated(t *testing.T) {
	r := newScriptRunner(t, "testdata", nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			script := fmt.Sprintf("/echo_%d.pl", i)
			res, err := r.Execute(context.Background(), bridge.Invocation{
				Argv:   []string{script, fmt.Sprint(i)},
				Inputs: []vfs.File{{Path: script, Content: `io.print("doc " + argv[0]);`}},
			})
			if err != nil {
				t.Errorf("run %d: %v", i, err)
				return
			}
			if want := fmt.Sprintf("doc %d", i); res.Output != want {
				t.Errorf("run %d output = %q, want %q", i, res.Output, want)
			}
		}(i)
	}
	wg.Wait()
}

func TestHostFuncBinding(t *testing.T) {
	hostOpts := []Option{WithHostFunc("kpsewhich", func(ctx context.Context, args map[string]any) (any, error) {
		return "/texmf/" + args["name"].(string), nil
	})}
	r := newScriptRunner(t, "testdata", hostOpts)

	res, err := r.Execute(context.Background(), bridge.Invocation{
		Argv:   []string{"/which.pl"},
		Inputs: []vfs.File{{Path: "/which.pl", Content: `io.print(__host("kpsewhich", { name: "article.cls" }));`}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output != "/texmf/article.cls" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestEagerReadyBootstrap(t *testing.T) {
	base := writeBootstrap(t, `
postMessage({ type: "ready" });
var onmessage = function (msg) {
  if (msg.type === "run") {
    postMessage({ type: "output", id: msg.id, chan: 1, data: msg.run.argv.join(" ") });
    postMessage({ type: "ended", id: msg.id, exitStatus: 0 });
  }
};
`)
	r := newScriptRunner(t, base, nil)

	res, err := r.Execute(context.Background(), bridge.Invocation{Argv: []string{"/a.pl", "x"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output != "/a.pl x" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestUnreceptiveBootstrapTimesOut(t *testing.T) {
	r := bridge.New(NewHost(),
		bridge.WithBootstrapBase(writeBootstrap(t, `var loaded = true;`)),
		bridge.WithInitTimeout(50*time.Millisecond),
		bridge.WithProbeInterval(5*time.Millisecond),
	)
	defer r.Close()

	err := r.Initialize(context.Background())
	if !errors.Is(err, bridge.ErrInitialization) {
		t.Errorf("expected ErrInitialization, got %v", err)
	}
}

func TestOpenMissingBootstrap(t *testing.T) {
	_, err := NewHost().Open(context.Background(), t.TempDir(), func(bridge.Message) {})
	if !errors.Is(err, assets.ErrFileLoad) {
		t.Errorf("expected ErrFileLoad, got %v", err)
	}
}

func TestOpenBootstrapSyntaxError(t *testing.T) {
	_, err := NewHost().Open(context.Background(), writeBootstrap(t, `function (`), func(bridge.Message) {})
	if err == nil || !strings.Contains(err.Error(), "evaluate perlrunner.js") {
		t.Errorf("expected evaluation error, got %v", err)
	}
}

func TestPostAfterClose(t *testing.T) {
	f, err := NewHost().Open(context.Background(), "testdata", func(bridge.Message) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Post(bridge.Message{Type: bridge.MessageDiscover}); !errors.Is(err, ErrFrameClosed) {
		t.Errorf("expected ErrFrameClosed, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
