// Package script runs a JavaScript bootstrap under goja as a
// [github.com/caffeineduck/texbridge/bridge.Host].
//
// The bootstrap is fetched from the base location and evaluated after a
// small embedded prelude. It talks to the host the way a worker talks to
// its page: it defines a global onmessage(msg) handler and answers through
// postMessage(obj). Messages arriving while onmessage is undefined are
// ignored.
//
// Bindings available to the bootstrap:
//
//	postMessage(obj)      send a message to the host
//	console.log(...)      debug log, stream stdout
//	console.error(...)    debug log, stream stderr
//	__host(name, args)    call a registered host function
//	fs.read(path) ...     in-memory filesystem over the fs_* host functions
//
// All JavaScript runs on one event-loop goroutine, so runs are handled one
// at a time in arrival order.
package script
