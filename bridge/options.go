package bridge

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBootstrapBase = "/core/webperl"
	DefaultInitTimeout   = 30 * time.Second
	DefaultExecTimeout   = 60 * time.Second
	DefaultProbeInterval = 100 * time.Millisecond
)

// Option configures a Runner at construction time.
type Option func(*runnerConfig)

type runnerConfig struct {
	bootstrapBase string
	initTimeout   time.Duration
	execTimeout   time.Duration
	probeInterval time.Duration
	serial        bool
	log           zerolog.Logger
}

func defaultRunnerConfig() runnerConfig {
	return runnerConfig{
		bootstrapBase: DefaultBootstrapBase,
		initTimeout:   DefaultInitTimeout,
		execTimeout:   DefaultExecTimeout,
		probeInterval: DefaultProbeInterval,
		log:           zerolog.Nop(),
	}
}

// WithBootstrapBase sets the location the Host resolves its bootstrap
// resource against.
func WithBootstrapBase(base string) Option {
	return func(c *runnerConfig) {
		c.bootstrapBase = base
	}
}

// WithInitTimeout bounds the discovery handshake.
func WithInitTimeout(d time.Duration) Option {
	return func(c *runnerConfig) {
		c.initTimeout = d
	}
}

// WithExecTimeout bounds a single Execute call.
func WithExecTimeout(d time.Duration) Option {
	return func(c *runnerConfig) {
		c.execTimeout = d
	}
}

// WithProbeInterval sets how often a discovery probe is posted while waiting
// for the context to report ready.
func WithProbeInterval(d time.Duration) Option {
	return func(c *runnerConfig) {
		c.probeInterval = d
	}
}

// WithSerialExecution queues Execute calls so at most one is in flight.
// Needed for contexts that do not echo correlation IDs.
func WithSerialExecution() Option {
	return func(c *runnerConfig) {
		c.serial = true
	}
}

// WithLogger sets the logger for lifecycle and per-call entries.
func WithLogger(log zerolog.Logger) Option {
	return func(c *runnerConfig) {
		c.log = log
	}
}
