package sandbox

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/texbridge/assets"
	"github.com/caffeineduck/texbridge/bridge"
)

var ErrFrameClosed = errors.New("sandbox closed")

// Interpreter describes a WASI command-line interpreter.
type Interpreter interface {
	// Name identifies the interpreter in logs.
	Name() string
	// Resource is the module file name under the bootstrap base.
	Resource() string
	// Args builds the module argv for a script invocation. argv[0] is the
	// entry script; cwd may be empty.
	Args(argv []string, cwd string) []string
}

// Host opens WASI contexts for one interpreter.
type Host struct {
	interp Interpreter
	cfg    hostConfig
}

func NewHost(interp Interpreter, opts ...Option) *Host {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Host{interp: interp, cfg: cfg}
}

// Open fetches and compiles the interpreter module. The module is compiled
// once per frame and instantiated fresh for every run.
func (h *Host) Open(ctx context.Context, base string, deliver func(bridge.Message)) (bridge.Frame, error) {
	log := h.cfg.log.With().Str("interpreter", h.interp.Name()).Logger()

	loader := assets.NewLoader(base, append([]assets.Option{assets.WithLogger(log)}, h.cfg.loaderOpts...)...)
	wasm, err := loader.FetchBytes(ctx, h.interp.Resource())
	if err != nil {
		return nil, err
	}

	var cache wazero.CompilationCache
	if h.cfg.diskCache {
		dir := h.cfg.cacheDir
		if dir == "" {
			dir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if h.cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(h.cfg.memoryLimitPages)
	}

	bg := context.Background()
	rt := wazero.NewRuntimeWithConfig(bg, rtConfig)
	closeAll := func() {
		rt.Close(bg)
		if cache != nil {
			cache.Close(bg)
		}
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		closeAll()
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	start := time.Now()
	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("compile %s: %w", h.interp.Name(), err)
	}
	log.Debug().Dur("duration", time.Since(start)).Int("bytes", len(wasm)).Msg("interpreter compiled")

	fctx, cancel := context.WithCancel(bg)
	return &frame{
		interp:   h.interp,
		tempDir:  h.cfg.tempDir,
		log:      log,
		deliver:  deliver,
		rt:       rt,
		cache:    cache,
		compiled: compiled,
		ctx:      fctx,
		cancel:   cancel,
		runs:     make(map[string]context.CancelFunc),
	}, nil
}

type frame struct {
	interp  Interpreter
	tempDir string
	log     zerolog.Logger
	deliver func(bridge.Message)

	rt       wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	runs   map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func (f *frame) Post(msg bridge.Message) error {
	switch msg.Type {
	case bridge.MessageDiscover:
		f.deliver(bridge.Message{Type: bridge.MessageReady})
		return nil

	case bridge.MessageRun:
		if msg.Run == nil || len(msg.Run.Argv) == 0 {
			f.deliver(bridge.Message{Type: bridge.MessageError, ID: msg.ID, Error: "run request without argv"})
			return nil
		}
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return ErrFrameClosed
		}
		ctx, cancel := context.WithCancel(f.ctx)
		f.runs[msg.ID] = cancel
		f.wg.Add(1)
		f.mu.Unlock()

		go f.run(ctx, msg.ID, msg.Run)
		return nil

	case bridge.MessageCancel:
		f.mu.Lock()
		if cancel, ok := f.runs[msg.ID]; ok {
			cancel()
		}
		f.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}
}

func (f *frame) run(ctx context.Context, id string, req *bridge.RunRequest) {
	defer f.wg.Done()
	defer func() {
		f.mu.Lock()
		if cancel, ok := f.runs[id]; ok {
			cancel()
			delete(f.runs, id)
		}
		f.mu.Unlock()
	}()

	log := f.log.With().Str("id", id).Logger()
	fail := func(err error) {
		log.Debug().Err(err).Msg("run failed")
		f.deliver(bridge.Message{Type: bridge.MessageError, ID: id, Error: err.Error()})
	}

	root, err := os.MkdirTemp(f.tempDir, "texbridge-run-*")
	if err != nil {
		fail(fmt.Errorf("create sandbox root: %w", err))
		return
	}
	defer os.RemoveAll(root)

	if err := stage(root, req.Dirs, req.Inputs); err != nil {
		fail(err)
		return
	}

	args := f.interp.Args(req.Argv, req.Cwd)
	config := wazero.NewModuleConfig().
		WithName("").
		WithArgs(args...).
		WithStdout(&chunkWriter{id: id, channel: bridge.ChannelStdout, deliver: f.deliver}).
		WithStderr(&chunkWriter{id: id, channel: bridge.ChannelStderr, deliver: f.deliver}).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(root, "/")).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	start := time.Now()
	mod, err := f.rt.InstantiateModule(ctx, f.compiled, config)
	if mod != nil {
		mod.Close(context.Background())
	}

	exit := 0
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) {
			fail(fmt.Errorf("instantiate %s: %w", f.interp.Name(), err))
			return
		}
		if ctx.Err() != nil {
			fail(fmt.Errorf("run canceled: %w", ctx.Err()))
			return
		}
		exit = int(exitErr.ExitCode())
	}

	files, err := collect(root, req.Outputs)
	if err != nil {
		fail(err)
		return
	}
	if len(files) > 0 {
		f.deliver(bridge.Message{Type: bridge.MessageFiles, ID: id, Files: files})
	}
	log.Debug().Int("exit_code", exit).Dur("duration", time.Since(start)).Msg("run finished")
	f.deliver(bridge.Message{Type: bridge.MessageEnded, ID: id, ExitStatus: bridge.ExitStatus(exit)})
}

// Close cancels running invocations, waits for them, and releases the
// runtime.
func (f *frame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.wg.Wait()

	ctx := context.Background()
	var errs []error
	if err := f.rt.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if f.cache != nil {
		if err := f.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// chunkWriter posts every write as an output message.
type chunkWriter struct {
	id      string
	channel int
	deliver func(bridge.Message)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.deliver(bridge.Message{Type: bridge.MessageOutput, ID: w.id, Channel: w.channel, Data: string(p)})
	}
	return len(p), nil
}
