package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeHost stands in for a real isolated context so runner logic can be
// exercised without an interpreter.
type fakeHost struct {
	openErr    error
	readyAfter int // probes to swallow before answering; negative never answers
	initError  string
	onRun      func(f *fakeFrame, msg Message)
	entered    chan struct{} // closed when Open is called, if set
	gate       chan struct{} // Open blocks until closed, if set

	mu    sync.Mutex
	opens int
	base  string
	frame *fakeFrame
}

func (h *fakeHost) Open(ctx context.Context, base string, deliver func(Message)) (Frame, error) {
	if h.entered != nil {
		close(h.entered)
	}
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens++
	h.base = base
	if h.openErr != nil {
		return nil, h.openErr
	}
	h.frame = &fakeFrame{host: h, deliver: deliver}
	return h.frame, nil
}

func (h *fakeHost) openCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

type fakeFrame struct {
	host    *fakeHost
	deliver func(Message)

	mu     sync.Mutex
	probes int
	posted []Message
	closed bool
}

func (f *fakeFrame) Post(msg Message) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("frame closed")
	}
	f.posted = append(f.posted, msg)
	if msg.Type == MessageDiscover {
		f.probes++
	}
	probes := f.probes
	f.mu.Unlock()

	switch msg.Type {
	case MessageDiscover:
		switch {
		case f.host.initError != "":
			f.deliver(Message{Type: MessageError, Error: f.host.initError})
		case f.host.readyAfter >= 0 && probes > f.host.readyAfter:
			f.deliver(Message{Type: MessageReady})
		}
	case MessageRun:
		if f.host.onRun != nil {
			go f.host.onRun(f, msg)
		}
	}
	return nil
}

func (f *fakeFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFrame) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeFrame) sent(typ MessageType) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.posted {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeFrame) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

// endWith replies to a run with the given stdout and exit status.
func endWith(stdout string, code int) func(*fakeFrame, Message) {
	return func(f *fakeFrame, msg Message) {
		if stdout != "" {
			f.deliver(Message{Type: MessageOutput, ID: msg.ID, Channel: ChannelStdout, Data: stdout})
		}
		f.deliver(Message{Type: MessageEnded, ID: msg.ID, ExitStatus: ExitStatus(code)})
	}
}

func newReadyRunner(t *testing.T, h *fakeHost, opts ...Option) *Runner {
	t.Helper()
	opts = append([]Option{WithProbeInterval(5 * time.Millisecond)}, opts...)
	r := New(h, opts...)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}
