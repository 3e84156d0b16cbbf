// Package bridge runs command-line scripts inside an isolated interpreter
// context and collects what they print and write.
//
// # Overview
//
// A [Runner] owns one context, created by a [Host]. The context is opened
// lazily by [Runner.Initialize], which posts discovery probes until the
// context answers ready. After that, each [Runner.Execute] call stages its
// input files, sends a run request tagged with a fresh correlation ID, and
// waits for the matching ended or error message.
//
//	r := bridge.New(sandbox.NewHost(perl.New()))
//	if err := r.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	res, err := r.Execute(ctx, bridge.Invocation{
//	    Argv:   []string{"/texcount.pl", "/tmp/input.tex"},
//	    Inputs: files,
//	})
//
// # Messages
//
// Every envelope is a [Message]. The host sends discover, run and cancel;
// the context answers with ready, output, files, ended and error. Messages
// for calls that already timed out are dropped.
//
// # Hosts
//
// Implementations live in [github.com/caffeineduck/texbridge/sandbox]
// (a WASI module under wazero) and [github.com/caffeineduck/texbridge/script]
// (a JavaScript bootstrap under goja).
package bridge
