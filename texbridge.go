package texbridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/caffeineduck/texbridge/assets"
	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/config"
	"github.com/caffeineduck/texbridge/interpreter/perl"
	"github.com/caffeineduck/texbridge/sandbox"
	"github.com/caffeineduck/texbridge/script"
	"github.com/caffeineduck/texbridge/tool"
	"github.com/caffeineduck/texbridge/tool/latexdiff"
	"github.com/caffeineduck/texbridge/tool/latexindent"
	"github.com/caffeineduck/texbridge/tool/latexpand"
	"github.com/caffeineduck/texbridge/tool/texcount"
	"github.com/caffeineduck/texbridge/tool/texfmt"
)

type options struct {
	log        zerolog.Logger
	host       bridge.Host
	loaderOpts []assets.Option
}

type Option func(*options)

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithHost replaces the backend selected by the config.
func WithHost(h bridge.Host) Option {
	return func(o *options) {
		o.host = h
	}
}

// WithLoaderOptions configures every loader the toolkit creates.
func WithLoaderOptions(opts ...assets.Option) Option {
	return func(o *options) {
		o.loaderOpts = append(o.loaderOpts, opts...)
	}
}

// Toolkit is a Runner plus the tools that share it.
type Toolkit struct {
	Runner *bridge.Runner
	Count  *texcount.Counter
	Format *texfmt.Formatter
	Diff   *latexdiff.Differ
	Expand *latexpand.Expander
	Indent *latexindent.Indenter

	scripts *assets.Loader
}

// New builds a Toolkit from cfg. Nothing is fetched or started until the
// first call.
func New(cfg config.Config, opts ...Option) (*Toolkit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	host := o.host
	if host == nil {
		var err error
		if host, err = newHost(cfg, o); err != nil {
			return nil, err
		}
	}

	runnerOpts := []bridge.Option{
		bridge.WithBootstrapBase(cfg.BootstrapBase),
		bridge.WithInitTimeout(cfg.InitTimeout),
		bridge.WithExecTimeout(cfg.ExecTimeout),
		bridge.WithProbeInterval(cfg.ProbeInterval),
		bridge.WithLogger(o.log.With().Str("component", "runner").Logger()),
	}
	if cfg.Serial {
		runnerOpts = append(runnerOpts, bridge.WithSerialExecution())
	}
	runner := bridge.New(host, runnerOpts...)

	scripts := assets.NewLoader(cfg.ScriptsBase,
		append([]assets.Option{assets.WithLogger(o.log.With().Str("component", "scripts").Logger())}, o.loaderOpts...)...)
	toolOpts := []tool.Option{tool.WithLogger(o.log)}

	return &Toolkit{
		Runner:  runner,
		Count:   texcount.New(runner, scripts, toolOpts...),
		Format:  texfmt.New(runner, scripts, toolOpts...),
		Diff:    latexdiff.New(runner, scripts, toolOpts...),
		Expand:  latexpand.New(runner, scripts, toolOpts...),
		Indent:  latexindent.New(runner, scripts, toolOpts...),
		scripts: scripts,
	}, nil
}

func newHost(cfg config.Config, o options) (bridge.Host, error) {
	switch cfg.Backend {
	case config.BackendWasm:
		hostOpts := []sandbox.Option{
			sandbox.WithLogger(o.log.With().Str("component", "sandbox").Logger()),
			sandbox.WithLoaderOptions(o.loaderOpts...),
		}
		if cfg.MemoryLimitPages > 0 {
			hostOpts = append(hostOpts, sandbox.WithMemoryLimitPages(cfg.MemoryLimitPages))
		}
		if cfg.CacheDir != "" {
			hostOpts = append(hostOpts, sandbox.WithDiskCache(cfg.CacheDir))
		}
		return sandbox.NewHost(perl.New(), hostOpts...), nil
	case config.BackendScript:
		return script.NewHost(
			script.WithLogger(o.log.With().Str("component", "script").Logger()),
			script.WithLoaderOptions(o.loaderOpts...),
		), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// Exec runs a raw invocation, staging any scripts it names from the
// scripts base.
func (t *Toolkit) Exec(ctx context.Context, inv bridge.Invocation, scripts ...string) (bridge.Result, error) {
	if err := t.Runner.Initialize(ctx); err != nil {
		return bridge.Result{}, err
	}
	if len(scripts) > 0 {
		files, err := t.scripts.FetchAll(ctx, scripts)
		if err != nil {
			return bridge.Result{}, err
		}
		inv.Inputs = append(files, inv.Inputs...)
	}
	return t.Runner.Execute(ctx, inv)
}

func (t *Toolkit) Close() error {
	return t.Runner.Close()
}
