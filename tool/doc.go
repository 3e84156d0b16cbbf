// Package tool turns command options into bridge invocations.
//
// A [Tool] wraps one [Command]: it fetches the command's script and
// dependency modules once, then stages them together with per-call inputs
// under names from [Tool.NewPaths]. The three Execute variants cover the
// shapes the LaTeX utilities need: a single input document, an old/new
// pair, and a main document with auxiliary files in a working directory.
package tool
