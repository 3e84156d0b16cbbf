package script

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/caffeineduck/texbridge/assets"
	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/hostfunc"
	"github.com/caffeineduck/texbridge/vfs"
)

//go:embed prelude.js
var prelude string

const (
	DefaultBootstrap = "perlrunner.js"
	inboxSize        = 256
)

var ErrFrameClosed = errors.New("script context closed")

type hostConfig struct {
	bootstrap  string
	funcs      map[string]hostfunc.Func
	loaderOpts []assets.Option
	log        zerolog.Logger
}

type Option func(*hostConfig)

// WithBootstrap sets the bootstrap file fetched from the base.
func WithBootstrap(name string) Option {
	return func(c *hostConfig) {
		c.bootstrap = name
	}
}

// WithHostFunc exposes fn to the bootstrap as __host(name, args).
func WithHostFunc(name string, fn hostfunc.Func) Option {
	return func(c *hostConfig) {
		c.funcs[name] = fn
	}
}

func WithLoaderOptions(opts ...assets.Option) Option {
	return func(c *hostConfig) {
		c.loaderOpts = append(c.loaderOpts, opts...)
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *hostConfig) {
		c.log = log
	}
}

// Host opens JavaScript contexts under goja.
type Host struct {
	cfg hostConfig
}

func NewHost(opts ...Option) *Host {
	cfg := hostConfig{
		bootstrap: DefaultBootstrap,
		funcs:     make(map[string]hostfunc.Func),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Host{cfg: cfg}
}

// Open fetches the bootstrap, evaluates it after the prelude and starts the
// event loop. A bootstrap that fails to evaluate fails Open.
func (h *Host) Open(ctx context.Context, base string, deliver func(bridge.Message)) (bridge.Frame, error) {
	log := h.cfg.log.With().Str("bootstrap", h.cfg.bootstrap).Logger()

	loader := assets.NewLoader(base, append([]assets.Option{assets.WithLogger(log)}, h.cfg.loaderOpts...)...)
	src, err := loader.Fetch(ctx, h.cfg.bootstrap)
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithCancel(context.Background())
	f := &frame{
		vm:       goja.New(),
		log:      log,
		deliver:  deliver,
		registry: hostfunc.NewRegistry(),
		ctx:      fctx,
		cancel:   cancel,
		inbox:    make(chan bridge.Message, inboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		queued:   make(map[string]struct{}),
		canceled: make(map[string]struct{}),
	}
	hostfunc.NewFS(vfs.NewMemFS()).Register(f.registry)
	for name, fn := range h.cfg.funcs {
		f.registry.Register(name, fn)
	}

	if err := f.bind(); err != nil {
		cancel()
		return nil, fmt.Errorf("bind host functions: %w", err)
	}

	stop, watched := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			f.vm.Interrupt("open canceled")
		case <-stop:
		}
	}()
	_, err = f.vm.RunScript(h.cfg.bootstrap, prelude+"\n"+src)
	close(stop)
	<-watched
	if err != nil {
		cancel()
		return nil, fmt.Errorf("evaluate %s: %w", h.cfg.bootstrap, err)
	}
	f.vm.ClearInterrupt()

	go f.loop()
	return f, nil
}

type frame struct {
	vm        *goja.Runtime
	parse     goja.Callable
	stringify goja.Callable

	log      zerolog.Logger
	deliver  func(bridge.Message)
	registry *hostfunc.Registry

	ctx    context.Context
	cancel context.CancelFunc

	inbox chan bridge.Message
	quit  chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	running  string
	queued   map[string]struct{}
	canceled map[string]struct{}
	closed   bool
}

func (f *frame) bind() error {
	codec := f.vm.Get("JSON").ToObject(f.vm)
	var ok bool
	if f.parse, ok = goja.AssertFunction(codec.Get("parse")); !ok {
		return errors.New("JSON.parse unavailable")
	}
	if f.stringify, ok = goja.AssertFunction(codec.Get("stringify")); !ok {
		return errors.New("JSON.stringify unavailable")
	}

	if err := f.vm.Set("postMessage", f.postMessage); err != nil {
		return err
	}
	if err := f.vm.Set("__host", f.callHost); err != nil {
		return err
	}

	console := f.vm.NewObject()
	if err := console.Set("log", f.consoleWriter("stdout")); err != nil {
		return err
	}
	if err := console.Set("error", f.consoleWriter("stderr")); err != nil {
		return err
	}
	return f.vm.Set("console", console)
}

func (f *frame) postMessage(call goja.FunctionCall) goja.Value {
	encoded, err := f.stringify(goja.Undefined(), call.Argument(0))
	if err != nil {
		panic(f.vm.NewGoError(fmt.Errorf("postMessage: %w", err)))
	}
	var msg bridge.Message
	if err := json.Unmarshal([]byte(encoded.String()), &msg); err != nil {
		panic(f.vm.NewGoError(fmt.Errorf("postMessage: %w", err)))
	}
	f.deliver(msg)
	return goja.Undefined()
}

func (f *frame) callHost(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	var args map[string]any
	if a := call.Argument(1); !goja.IsUndefined(a) && !goja.IsNull(a) {
		args, _ = a.Export().(map[string]any)
	}
	res, err := f.registry.Call(f.ctx, name, args)
	if err != nil {
		panic(f.vm.NewGoError(err))
	}
	return f.vm.ToValue(res)
}

func (f *frame) consoleWriter(stream string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		f.log.Debug().Str("stream", stream).Strs("args", parts).Msg("console")
		return goja.Undefined()
	}
}

// Post queues msg for the event loop. A cancel for the running call
// interrupts the VM; a cancel for a queued call drops it.
func (f *frame) Post(msg bridge.Message) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFrameClosed
	}
	switch msg.Type {
	case bridge.MessageCancel:
		if f.running != "" && f.running == msg.ID {
			f.vm.Interrupt("canceled")
		} else if _, ok := f.queued[msg.ID]; ok {
			delete(f.queued, msg.ID)
			f.canceled[msg.ID] = struct{}{}
		}
		f.mu.Unlock()
		return nil
	case bridge.MessageRun:
		f.queued[msg.ID] = struct{}{}
	}
	f.mu.Unlock()

	select {
	case f.inbox <- msg:
		return nil
	case <-f.quit:
		return ErrFrameClosed
	}
}

func (f *frame) loop() {
	defer close(f.done)
	for {
		select {
		case <-f.quit:
			return
		case msg := <-f.inbox:
			f.handle(msg)
		}
	}
}

func (f *frame) handle(msg bridge.Message) {
	if msg.Type == bridge.MessageRun {
		f.mu.Lock()
		if _, ok := f.canceled[msg.ID]; ok {
			delete(f.canceled, msg.ID)
			f.mu.Unlock()
			return
		}
		delete(f.queued, msg.ID)
		f.running = msg.ID
		f.mu.Unlock()

		defer func() {
			f.mu.Lock()
			f.running = ""
			f.mu.Unlock()
			f.vm.ClearInterrupt()
		}()
	}

	onmessage, ok := goja.AssertFunction(f.vm.Get("onmessage"))
	if !ok {
		f.log.Debug().Str("type", string(msg.Type)).Msg("bootstrap not receptive, message ignored")
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		f.log.Error().Err(err).Msg("encode message")
		return
	}
	arg, err := f.parse(goja.Undefined(), f.vm.ToValue(string(data)))
	if err != nil {
		f.log.Error().Err(err).Msg("decode message in context")
		return
	}

	if _, err := onmessage(goja.Undefined(), arg); err != nil {
		if msg.Type == bridge.MessageRun {
			f.deliver(bridge.Message{Type: bridge.MessageError, ID: msg.ID, Error: err.Error()})
			return
		}
		f.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("bootstrap raised")
	}
}

// Close interrupts any running call and stops the event loop.
func (f *frame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.quit)
	f.vm.Interrupt("closed")
	f.mu.Unlock()

	<-f.done
	f.cancel()
	return nil
}
