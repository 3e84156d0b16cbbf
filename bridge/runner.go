package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caffeineduck/texbridge/vfs"
)

// Frame is an open isolated context. Post must not block on the context
// finishing the work it was handed.
type Frame interface {
	Post(msg Message) error
	Close() error
}

// Host creates isolated contexts. Messages the context emits are passed to
// deliver, possibly from another goroutine, in the order they were sent.
type Host interface {
	Open(ctx context.Context, base string, deliver func(Message)) (Frame, error)
}

// Runner drives a single isolated context: a one-time discovery handshake,
// then any number of correlated run requests.
type Runner struct {
	host Host
	cfg  runnerConfig
	log  zerolog.Logger

	mu       sync.Mutex
	state    State
	initDone chan struct{}
	initErr  error
	ready    chan struct{}
	readyHit bool
	initFail chan string
	frame    Frame
	pending  map[string]*call
	closed   bool
	quit     chan struct{}

	execMu sync.Mutex
}

// New returns a Runner that opens its context through host on first use.
func New(host Host, opts ...Option) *Runner {
	cfg := defaultRunnerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner{
		host:    host,
		cfg:     cfg,
		log:     cfg.log,
		pending: make(map[string]*call),
		quit:    make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Initialize opens the context and waits until it reports ready. Concurrent
// callers share one handshake and observe the same outcome. The handshake
// is bounded by the init timeout only; a caller whose ctx ends first stops
// waiting without affecting it. A failed handshake is terminal.
func (r *Runner) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	switch r.state {
	case StateReady:
		r.mu.Unlock()
		return nil
	case StateInitFailed:
		err := r.initErr
		r.mu.Unlock()
		return err
	case StateUninitialized:
		r.state = StateInitializing
		r.initDone = make(chan struct{})
		r.ready = make(chan struct{})
		r.initFail = make(chan string, 1)
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.initTimeout)
		go func(ready <-chan struct{}, initFail <-chan string) {
			defer cancel()
			r.finishInit(r.handshake(hctx, ready, initFail))
		}(r.ready, r.initFail)
	}
	done := r.initDone
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("wait for initialization: %w", ctx.Err())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateReady {
		return nil
	}
	return r.initErr
}

// finishInit records the handshake outcome and releases every waiter.
func (r *Runner) finishInit(err error) {
	r.mu.Lock()
	if err == nil && r.closed {
		err = ErrClosed
	}
	var stale Frame
	if err != nil {
		r.state = StateInitFailed
		r.initErr = fmt.Errorf("%w: %w", ErrInitialization, err)
		stale, r.frame = r.frame, nil
	} else {
		r.state = StateReady
	}
	close(r.initDone)
	r.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}
	if err != nil {
		r.log.Error().Err(err).Msg("sandbox initialization failed")
		return
	}
	r.log.Info().Msg("sandbox ready")
}

func (r *Runner) handshake(ctx context.Context, ready <-chan struct{}, initFail <-chan string) error {
	start := time.Now()
	r.log.Debug().Str("bootstrap", r.cfg.bootstrapBase).Msg("opening sandbox")
	frame, err := r.host.Open(ctx, r.cfg.bootstrapBase, r.dispatch)
	if err != nil {
		return fmt.Errorf("load bootstrap from %s: %w", r.cfg.bootstrapBase, err)
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = frame.Close()
		return ErrClosed
	}
	r.frame = frame
	r.mu.Unlock()

	ticker := time.NewTicker(r.cfg.probeInterval)
	defer ticker.Stop()
	r.probe(frame)
	for {
		select {
		case <-ready:
			r.log.Debug().Dur("duration", time.Since(start)).Msg("sandbox answered discovery")
			return nil
		case msg := <-initFail:
			return fmt.Errorf("sandbox reported: %s", msg)
		case <-r.quit:
			return ErrClosed
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("timeout waiting for sandbox ready after %v: %w", r.cfg.initTimeout, ctx.Err())
			}
			return ctx.Err()
		case <-ticker.C:
			r.probe(frame)
		}
	}
}

func (r *Runner) probe(frame Frame) {
	if err := frame.Post(Message{Type: MessageDiscover}); err != nil {
		r.log.Debug().Err(err).Msg("discovery probe not delivered")
	}
}

// Execute stages inv into the context, runs it, and waits for it to end.
// A non-zero exit status is a Result with Success false, not an error.
func (r *Runner) Execute(ctx context.Context, inv Invocation) (Result, error) {
	start := time.Now()
	if len(inv.Argv) == 0 || strings.TrimSpace(inv.Argv[0]) == "" {
		return Result{}, ErrInvalidArgv
	}
	if err := vfs.Validate(inv.Inputs); err != nil {
		return Result{}, fmt.Errorf("stage inputs: %w", err)
	}

	if r.cfg.serial {
		r.execMu.Lock()
		defer r.execMu.Unlock()
	}

	inputs := vfs.SortByDepth(inv.Inputs)
	req := &RunRequest{
		Argv:    inv.Argv,
		Inputs:  inputs,
		Dirs:    vfs.Dirs(vfs.Paths(inputs), inv.WorkDir),
		Outputs: inv.Outputs,
		Cwd:     inv.WorkDir,
	}

	c := &call{id: uuid.NewString(), done: make(chan outcome, 1)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Result{}, ErrClosed
	}
	if r.state != StateReady {
		err := ErrNotInitialized
		if r.state == StateInitFailed {
			err = fmt.Errorf("%w: %w", ErrNotInitialized, r.initErr)
		}
		r.mu.Unlock()
		return Result{}, err
	}
	frame := r.frame
	r.pending[c.id] = c
	r.mu.Unlock()

	log := r.log.With().Str("id", c.id).Str("script", inv.Argv[0]).Logger()
	log.Debug().Int("inputs", len(inputs)).Strs("argv", inv.Argv[1:]).Msg("executing")

	if err := frame.Post(Message{Type: MessageRun, ID: c.id, Run: req}); err != nil {
		r.forget(c.id)
		return Result{}, fmt.Errorf("post run request: %w", err)
	}

	timer := time.NewTimer(r.cfg.execTimeout)
	defer timer.Stop()

	select {
	case out := <-c.done:
		return finish(log, out, start)
	case <-timer.C:
		return r.abandon(log, frame, c, start, fmt.Errorf("%w after %v", ErrExecutionTimeout, r.cfg.execTimeout))
	case <-ctx.Done():
		err := fmt.Errorf("execution canceled: %w", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrExecutionTimeout, ctx.Err())
		}
		return r.abandon(log, frame, c, start, err)
	}
}

// abandon unregisters c so later messages for it are dropped, then asks the
// context to stop the run.
func (r *Runner) abandon(log zerolog.Logger, frame Frame, c *call, start time.Time, cause error) (Result, error) {
	r.forget(c.id)
	select {
	case out := <-c.done:
		return finish(log, out, start)
	default:
	}

	if err := frame.Post(Message{Type: MessageCancel, ID: c.id}); err != nil {
		log.Debug().Err(err).Msg("cancel not delivered")
	}
	log.Warn().Err(cause).Msg("execution abandoned")
	return Result{Duration: time.Since(start)}, cause
}

func finish(log zerolog.Logger, out outcome, start time.Time) (Result, error) {
	elapsed := time.Since(start)
	if out.err != nil {
		log.Debug().Err(out.err).Dur("duration", elapsed).Msg("execution failed")
		return Result{Duration: elapsed}, out.err
	}

	output := out.stdout
	if len(out.files) > 0 {
		output = out.files[0].Content
	}
	log.Debug().Int("exit_code", out.exit).Dur("duration", elapsed).Msg("execution finished")
	return Result{
		Success:  out.exit == 0,
		Output:   output,
		Error:    out.stderr,
		ExitCode: out.exit,
		Duration: elapsed,
	}, nil
}

func (r *Runner) forget(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Close tears down the context. Calls still in flight fail with ErrClosed.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.quit)
	frame := r.frame
	r.frame = nil
	for id, c := range r.pending {
		c.done <- outcome{err: ErrClosed}
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if frame == nil {
		return nil
	}
	return frame.Close()
}

// dispatch is the deliver callback handed to the Host.
func (r *Runner) dispatch(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Type {
	case MessageReady:
		if r.state == StateInitializing && !r.readyHit {
			r.readyHit = true
			close(r.ready)
		}
		return
	case MessageError:
		if msg.ID == "" && r.state == StateInitializing {
			select {
			case r.initFail <- msg.Error:
			default:
			}
			return
		}
	}

	c := r.route(msg.ID)
	if c == nil {
		r.log.Debug().Str("type", string(msg.Type)).Str("id", msg.ID).Msg("dropping message with no pending call")
		return
	}
	if c.handle(msg) {
		delete(r.pending, c.id)
	}
}

// route finds the call a message belongs to. Messages without an ID come
// from contexts that predate correlation and are only attributable when a
// single call is pending.
func (r *Runner) route(id string) *call {
	if id != "" {
		return r.pending[id]
	}
	if len(r.pending) == 1 {
		for _, c := range r.pending {
			return c
		}
	}
	if len(r.pending) > 1 {
		r.log.Warn().Int("pending", len(r.pending)).Msg("uncorrelated message with several calls in flight")
	}
	return nil
}

type outcome struct {
	exit   int
	stdout string
	stderr string
	files  []vfs.File
	err    error
}

type call struct {
	id     string
	stdout strings.Builder
	stderr strings.Builder
	files  []vfs.File
	done   chan outcome
}

// handle accumulates msg and reports whether the call is finished.
func (c *call) handle(msg Message) bool {
	switch msg.Type {
	case MessageOutput:
		switch msg.Channel {
		case ChannelStdout:
			c.stdout.WriteString(msg.Data)
		case ChannelStderr:
			c.stderr.WriteString(msg.Data)
		}
	case MessageFiles:
		c.files = append(c.files, msg.Files...)
	case MessageEnded:
		exit := 0
		if msg.ExitStatus != nil {
			exit = *msg.ExitStatus
		}
		c.done <- outcome{
			exit:   exit,
			stdout: c.stdout.String(),
			stderr: c.stderr.String(),
			files:  c.files,
		}
		return true
	case MessageError:
		c.done <- outcome{err: fmt.Errorf("%w: %s", ErrRemoteExecution, msg.Error)}
		return true
	}
	return false
}
