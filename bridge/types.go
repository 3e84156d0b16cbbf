package bridge

import (
	"time"

	"github.com/caffeineduck/texbridge/vfs"
)

// State is the lifecycle of a Runner's isolated context.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateInitFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateInitFailed:
		return "init-failed"
	default:
		return "unknown"
	}
}

// Invocation is one call into the sandbox. Argv[0] is the entry script.
type Invocation struct {
	Argv    []string
	Inputs  []vfs.File
	Outputs []string
	WorkDir string
}

// Result holds the outcome of an invocation. When the context reported any
// output file, Output is the content of the first one and stdout is dropped.
type Result struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output"`
	Error    string        `json:"error,omitempty"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"-"`
}
