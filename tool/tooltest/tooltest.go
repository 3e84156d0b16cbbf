// Package tooltest provides in-memory doubles for testing tool builders
// without an interpreter.
package tooltest

import (
	"context"
	"sync"
	"time"

	"github.com/caffeineduck/texbridge/bridge"
	"github.com/caffeineduck/texbridge/vfs"
)

// Stamp is the millisecond timestamp returned by Clock.
const Stamp = 1700000000000

// Clock always returns the same instant, so the first call of a tool uses
// the stamp "1700000000000_1".
func Clock() time.Time {
	return time.UnixMilli(Stamp)
}

// Runner records invocations and answers each with Result and Err.
type Runner struct {
	Result bridge.Result
	Err    error

	mu          sync.Mutex
	invocations []bridge.Invocation
}

func (r *Runner) Initialize(ctx context.Context) error {
	return nil
}

func (r *Runner) Execute(ctx context.Context, inv bridge.Invocation) (bridge.Result, error) {
	r.mu.Lock()
	r.invocations = append(r.invocations, inv)
	r.mu.Unlock()
	return r.Result, r.Err
}

// Last returns the most recent invocation. It panics when there is none.
func (r *Runner) Last() bridge.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invocations[len(r.invocations)-1]
}

func (r *Runner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invocations)
}

// Fetcher serves every path with a placeholder body.
type Fetcher struct{}

func (Fetcher) FetchAll(ctx context.Context, paths []string) ([]vfs.File, error) {
	files := make([]vfs.File, len(paths))
	for i, p := range paths {
		files[i] = vfs.File{Path: p, Content: "# " + p}
	}
	return files, nil
}

// Input returns the staged file at path.
func Input(inv bridge.Invocation, path string) (vfs.File, bool) {
	for _, f := range inv.Inputs {
		if f.Path == path {
			return f, true
		}
	}
	return vfs.File{}, false
}
