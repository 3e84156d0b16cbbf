// Package texbridge runs the classic Perl LaTeX tools (texcount, latexdiff,
// latexpand, latexindent) and tex-fmt inside an isolated interpreter
// context.
//
// # Overview
//
// A [Toolkit] owns one [bridge.Runner] and the five tool builders that
// share it. Tool scripts are fetched on first use from the scripts base and
// staged into the context with every call.
//
//	tk, err := texbridge.New(config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tk.Close()
//
//	res, err := tk.Count.Count(ctx, src, texcount.Options{Brief: true})
//	fmt.Println(res.Output)
//
// # Backends
//
// The wasm backend runs perl.wasm under wazero through the [sandbox]
// package. The script backend evaluates a JavaScript bootstrap under goja
// through the [script] package; it is mainly useful for tests and for
// bootstraps that emulate the tools.
//
// See the [bridge], [tool] and per-tool packages for the details.
package texbridge
