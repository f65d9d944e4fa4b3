package script

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Call errors.
var (
	ErrNoHandler = errors.New("handler not defined")
	ErrReleased  = errors.New("object released")
)

// CallError reports a Lua error raised inside a handler.
type CallError struct {
	Handler string
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("handler %q failed: %v", e.Handler, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// HasHandler reports whether self[name] is a function. Lookup honours
// __index metatables, so handlers may live on a shared prototype.
func HasHandler(L *lua.LState, self *lua.LTable, name string) bool {
	if self == nil {
		return false
	}
	_, ok := L.GetField(self, name).(*lua.LFunction)
	return ok
}

// Call invokes self[name](self, args...) in protected mode and returns
// exactly nret results. Missing results are nil.
func Call(L *lua.LState, self *lua.LTable, name string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	if self == nil {
		return nil, ErrReleased
	}
	fn, ok := L.GetField(self, name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, name)
	}

	top := L.GetTop()
	defer L.SetTop(top)

	callArgs := make([]lua.LValue, 0, len(args)+1)
	callArgs = append(callArgs, self)
	callArgs = append(callArgs, args...)

	if err := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, callArgs...); err != nil {
		return nil, &CallError{Handler: name, Err: err}
	}

	results := make([]lua.LValue, nret)
	for i := 0; i < nret; i++ {
		results[i] = L.Get(top + 1 + i)
	}
	return results, nil
}

// Object holds a reference to a script-level table. It plays the part of a
// registry reference: the adapter keeps the table reachable until Release.
type Object struct {
	L     *lua.LState
	table *lua.LTable
}

// NewObject wraps table.
func NewObject(L *lua.LState, table *lua.LTable) *Object {
	return &Object{L: L, table: table}
}

// Table returns the referenced table, or nil after Release.
func (o *Object) Table() *lua.LTable {
	return o.table
}

// Released reports whether the reference was dropped.
func (o *Object) Released() bool {
	return o.table == nil
}

// Release drops the table reference. It is safe to call more than once.
func (o *Object) Release() {
	o.table = nil
}

// Has reports whether the object defines the named handler.
func (o *Object) Has(name string) bool {
	return HasHandler(o.L, o.table, name)
}

// Get returns table[key] (honouring metatables), or nil after Release.
func (o *Object) Get(key lua.LValue) lua.LValue {
	if o.table == nil {
		return lua.LNil
	}
	return o.L.GetTable(o.table, key)
}

// Set stores table[key] = value without invoking metamethods.
func (o *Object) Set(key, value lua.LValue) {
	if o.table == nil {
		return
	}
	o.table.RawSet(key, value)
}

// Call invokes the named handler with the object table as first argument.
func (o *Object) Call(name string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	if o.table == nil {
		return nil, ErrReleased
	}
	return Call(o.L, o.table, name, nret, args...)
}
