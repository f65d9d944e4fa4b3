// Package script provides the small set of Lua capabilities the object
// adapter relies on: named handler lookup on a table, protected calls with
// positional arguments, and inspection of returned value kinds.
//
// # Threading
//
// A *lua.LState is not safe for concurrent use. Every table obtained from a
// state, and every Object wrapping one, must only be used by the goroutine
// that owns the state. This package does not lock; callers serialize access
// by running all script work on a single goroutine.
package script
