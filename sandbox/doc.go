// Package sandbox runs WASI command-line interpreters under wazero as a
// [github.com/caffeineduck/texbridge/bridge.Host].
//
// The interpreter module is fetched from the bootstrap base and compiled
// once when the frame opens. Every run request gets a fresh module instance
// with its own temporary root directory mounted at "/", so concurrent runs
// never see each other's files. Writes to stdout and stderr are forwarded
// as output messages as they happen; declared output files are read back
// after the module exits.
package sandbox
