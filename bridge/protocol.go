package bridge

import (
	"github.com/caffeineduck/texbridge/vfs"
)

// MessageType tags every envelope crossing the context boundary.
type MessageType string

// Host to context.
const (
	MessageDiscover MessageType = "discover"
	MessageRun      MessageType = "run"
	MessageCancel   MessageType = "cancel"
)

// Context to host.
const (
	MessageReady  MessageType = "ready"
	MessageOutput MessageType = "output"
	MessageFiles  MessageType = "files"
	MessageEnded  MessageType = "ended"
	MessageError  MessageType = "error"
)

// Output channels carried by MessageOutput.
const (
	ChannelStdout = 1
	ChannelStderr = 2
)

// Message is the single envelope exchanged with an isolated context. ID
// correlates every execution signal with the run that caused it; contexts
// echo the ID of the run they are reporting on.
type Message struct {
	Type       MessageType `json:"type"`
	ID         string      `json:"id,omitempty"`
	Run        *RunRequest `json:"run,omitempty"`
	Channel    int         `json:"chan,omitempty"`
	Data       string      `json:"data,omitempty"`
	Files      []vfs.File  `json:"files,omitempty"`
	ExitStatus *int        `json:"exitStatus,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// RunRequest describes one invocation. Dirs lists every directory the
// context must create before writing Inputs; Inputs are ordered shallowest
// first.
type RunRequest struct {
	Argv    []string   `json:"argv"`
	Inputs  []vfs.File `json:"inputs,omitempty"`
	Dirs    []string   `json:"dirs,omitempty"`
	Outputs []string   `json:"outputs,omitempty"`
	Cwd     string     `json:"cwd,omitempty"`
}

// ExitStatus returns a pointer for MessageEnded.ExitStatus.
func ExitStatus(code int) *int {
	return &code
}
