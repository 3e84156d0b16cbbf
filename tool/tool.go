package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/caffeineduck/texbridge/assets"
	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/vfs"
)

// ErrEmptyOutput reports a run that succeeded but wrote nothing.
var ErrEmptyOutput = errors.New("produced no output")

// Command names the script a Tool runs and the modules it needs staged.
type Command interface {
	Name() string
	ScriptPath() string
	DependencyPaths() []string
}

// Runner is the part of bridge.Runner a Tool uses.
type Runner interface {
	Initialize(ctx context.Context) error
	Execute(ctx context.Context, inv bridge.Invocation) (bridge.Result, error)
}

// Fetcher loads script files by virtual path.
type Fetcher interface {
	FetchAll(ctx context.Context, paths []string) ([]vfs.File, error)
}

type cacheState int32

const (
	cacheEmpty cacheState = iota
	cacheLoading
	cacheLoaded
)

// Tool builds invocations for one command. The command's script and
// dependencies are fetched once and staged with every call.
type Tool struct {
	runner  Runner
	fetcher Fetcher
	cmd     Command
	log     zerolog.Logger
	now     func() time.Time
	seq     atomic.Uint64

	loadTimeout time.Duration

	load  singleflight.Group
	mu    sync.Mutex
	state cacheState
	files []vfs.File
}

// DefaultLoadTimeout bounds fetching a tool's script files.
const DefaultLoadTimeout = 60 * time.Second

// Option configures a Tool.
type Option func(*Tool)

// WithLogger sets the logger; the tool name is added to every entry.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Tool) {
		t.log = log
	}
}

// WithClock replaces time.Now for path stamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tool) {
		t.now = now
	}
}

// WithLoadTimeout bounds the shared script fetch.
func WithLoadTimeout(d time.Duration) Option {
	return func(t *Tool) {
		if d > 0 {
			t.loadTimeout = d
		}
	}
}

// New returns a Tool running cmd through runner, with scripts from fetcher.
func New(runner Runner, fetcher Fetcher, cmd Command, opts ...Option) *Tool {
	t := &Tool{
		runner:      runner,
		fetcher:     fetcher,
		cmd:         cmd,
		log:         zerolog.Nop(),
		now:         time.Now,
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With().Str("tool", cmd.Name()).Logger()
	return t
}

func (t *Tool) Name() string {
	return t.cmd.Name()
}

func (t *Tool) ScriptPath() string {
	return t.cmd.ScriptPath()
}

// EnsureLoaded initializes the runner and fills the file cache. Concurrent
// first calls share one fetch, which is bounded by the load timeout rather
// than by any one caller's ctx. A failed fetch leaves the cache empty so the
// next call tries again.
func (t *Tool) EnsureLoaded(ctx context.Context) error {
	if err := t.runner.Initialize(ctx); err != nil {
		return fmt.Errorf("%s: %w", t.cmd.Name(), err)
	}

	t.mu.Lock()
	loaded := t.state == cacheLoaded
	t.mu.Unlock()
	if loaded {
		return nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	loadc := t.load.DoChan("files", func() (any, error) {
		t.mu.Lock()
		if t.state == cacheLoaded {
			t.mu.Unlock()
			return nil, nil
		}
		t.state = cacheLoading
		t.mu.Unlock()

		paths := append([]string{t.cmd.ScriptPath()}, t.cmd.DependencyPaths()...)
		t.log.Debug().Strs("paths", paths).Msg("fetching script files")
		fctx, cancel := context.WithTimeout(fetchCtx, t.loadTimeout)
		defer cancel()
		files, err := t.fetcher.FetchAll(fctx, paths)

		t.mu.Lock()
		defer t.mu.Unlock()
		if err != nil {
			t.state = cacheEmpty
			return nil, err
		}
		t.files = files
		t.state = cacheLoaded
		return nil, nil
	})

	var err error
	select {
	case res := <-loadc:
		err = res.Err
	case <-ctx.Done():
		return fmt.Errorf("%s: wait for scripts: %w", t.cmd.Name(), ctx.Err())
	}
	if err != nil {
		if !errors.Is(err, assets.ErrFileLoad) {
			err = fmt.Errorf("%w: %w", assets.ErrFileLoad, err)
		}
		return fmt.Errorf("%s: %w", t.cmd.Name(), err)
	}
	return nil
}

func (t *Tool) cached() []vfs.File {
	t.mu.Lock()
	defer t.mu.Unlock()
	files := make([]vfs.File, len(t.files))
	copy(files, t.files)
	return files
}

// Paths holds the per-call file names inside the sandbox.
type Paths struct {
	Stamp   string
	Input   string
	Output  string
	Old     string
	New     string
	WorkDir string
}

// File returns a per-call path under /tmp such as /tmp/indent_<stamp>.yaml.
func (p Paths) File(prefix, ext string) string {
	return "/tmp/" + prefix + "_" + p.Stamp + ext
}

// NewPaths returns names unique to this call. The stamp is the current
// unix time in milliseconds plus a per-Tool sequence number.
func (t *Tool) NewPaths() Paths {
	stamp := fmt.Sprintf("%d_%d", t.now().UnixMilli(), t.seq.Add(1))
	return Paths{
		Stamp:   stamp,
		Input:   "/tmp/input_" + stamp + ".tex",
		Output:  "/tmp/output_" + stamp + ".tex",
		Old:     "/tmp/old_" + stamp + ".tex",
		New:     "/tmp/new_" + stamp + ".tex",
		WorkDir: "/tmp/work_" + stamp,
	}
}

// ScriptRun is a single-input invocation.
type ScriptRun struct {
	Input string
	// Args returns everything after the script path, flags first.
	Args func(p Paths) []string
	// Extra returns side files, such as config files, staged after the input.
	Extra         func(p Paths) ([]vfs.File, error)
	CaptureOutput bool
}

func (t *Tool) ExecuteScript(ctx context.Context, run ScriptRun) (bridge.Result, error) {
	if err := t.EnsureLoaded(ctx); err != nil {
		return bridge.Result{}, err
	}

	p := t.NewPaths()
	inputs := append(t.cached(), vfs.File{Path: p.Input, Content: run.Input})
	if run.Extra != nil {
		extra, err := run.Extra(p)
		if err != nil {
			return bridge.Result{}, fmt.Errorf("%s: %w", t.cmd.Name(), err)
		}
		inputs = append(inputs, extra...)
	}

	inv := bridge.Invocation{
		Argv:   t.argv(run.Args, p),
		Inputs: inputs,
	}
	if run.CaptureOutput {
		inv.Outputs = []string{p.Output}
	}
	return t.execute(ctx, inv)
}

// DiffRun compares two documents.
type DiffRun struct {
	Old string
	New string
	// Args returns everything after the script path; oldPath and newPath
	// are expected last.
	Args func(oldPath, newPath string) []string
}

func (t *Tool) ExecuteDiff(ctx context.Context, run DiffRun) (bridge.Result, error) {
	if err := t.EnsureLoaded(ctx); err != nil {
		return bridge.Result{}, err
	}

	p := t.NewPaths()
	inputs := append(t.cached(),
		vfs.File{Path: p.Old, Content: run.Old},
		vfs.File{Path: p.New, Content: run.New},
	)
	argv := []string{t.cmd.ScriptPath()}
	if run.Args != nil {
		argv = append(argv, run.Args(p.Old, p.New)...)
	}
	return t.execute(ctx, bridge.Invocation{Argv: argv, Inputs: inputs})
}

// WorkDirRun stages a main document plus auxiliary files under a private
// working directory and runs the command from there.
type WorkDirRun struct {
	Main string
	// Aux paths are relative to the working directory.
	Aux  []vfs.File
	Args func(p Paths) []string
}

// MainFile is the name of the main document inside the working directory.
const MainFile = "main.tex"

func (t *Tool) ExecuteInWorkDir(ctx context.Context, run WorkDirRun) (bridge.Result, error) {
	if err := t.EnsureLoaded(ctx); err != nil {
		return bridge.Result{}, err
	}

	p := t.NewPaths()
	inputs := append(t.cached(), vfs.File{Path: p.WorkDir + "/" + MainFile, Content: run.Main})
	for _, f := range run.Aux {
		full, err := vfs.Join(p.WorkDir, f.Path)
		if err != nil {
			return bridge.Result{}, fmt.Errorf("%s: additional file: %w", t.cmd.Name(), err)
		}
		inputs = append(inputs, vfs.File{Path: full, Content: f.Content})
	}

	res, err := t.execute(ctx, bridge.Invocation{
		Argv:    t.argv(run.Args, p),
		Inputs:  inputs,
		WorkDir: p.WorkDir,
	})
	if err != nil || !res.Success || strings.TrimSpace(res.Output) != "" {
		return res, err
	}

	stderr := res.Error
	if stderr == "" {
		stderr = "none"
	}
	diag := fmt.Sprintf("%s: exit code %d, stdout length %d, stderr: %s", ErrEmptyOutput, res.ExitCode, len(res.Output), stderr)
	t.log.Warn().Int("exit_code", res.ExitCode).Msg("command produced no output")
	return bridge.Result{
		Success:  false,
		Error:    diag,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}, fmt.Errorf("%s: %w", t.cmd.Name(), ErrEmptyOutput)
}

func (t *Tool) argv(args func(Paths) []string, p Paths) []string {
	argv := []string{t.cmd.ScriptPath()}
	if args != nil {
		argv = append(argv, args(p)...)
	}
	return argv
}

func (t *Tool) execute(ctx context.Context, inv bridge.Invocation) (bridge.Result, error) {
	t.log.Debug().Strs("argv", inv.Argv).Int("inputs", len(inv.Inputs)).Msg("running")
	res, err := t.runner.Execute(ctx, inv)
	if err != nil {
		return res, fmt.Errorf("%s: %w", t.cmd.Name(), err)
	}
	t.log.Debug().Bool("success", res.Success).Int("exit_code", res.ExitCode).Dur("duration", res.Duration).Msg("finished")
	return res, nil
}
