package luabind

import (
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/lwm2m"
	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/script"
)

// ModuleName is the name scripts pass to require.
const ModuleName = "lwm2m"

// clientTypeName names the metatable of client userdata.
const clientTypeName = "lualwm2m.llwm"

// DefaultStepTimeout is used by step() when no timeout is given.
const DefaultStepTimeout = 60 * time.Second

// Preload makes require("lwm2m") available in L. Options are applied to
// every client the script creates.
func Preload(L *lua.LState, opts ...lwm2m.Option) {
	L.PreloadModule(ModuleName, func(L *lua.LState) int {
		mt := L.NewTypeMetatable(clientTypeName)
		L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"addserver":       clientAddServer,
			"register":        clientRegister,
			"handle":          clientHandle,
			"step":            clientStep,
			"resourcechanged": clientResourceChanged,
			"close":           clientClose,
		}))
		L.SetField(mt, "__gc", L.NewFunction(clientClose))

		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"init": func(L *lua.LState) int { return initClient(L, opts) },
		})
		L.Push(mod)
		return 1
	})
}

// initClient implements lwm2m.init(endpoint, objects, sendcallback).
func initClient(L *lua.LState, opts []lwm2m.Option) int {
	endpoint := L.CheckString(1)
	list := L.CheckTable(2)
	callback := L.CheckFunction(3)

	n := list.Len()
	if n == 0 {
		L.RaiseError("bad argument #2 to 'init' (should be a non empty list : #table > 0)")
		return 0
	}
	objects := make([]*lua.LTable, 0, n)
	for i := 1; i <= n; i++ {
		t, ok := list.RawGetInt(i).(*lua.LTable)
		if ok {
			if _, ok = script.ToUint16(L.GetField(t, "id")); !ok {
				t = nil
			}
		}
		if t == nil {
			L.RaiseError("bad argument #2 to 'init' (all element of the list should be a table with a 'id' field which is a number)")
			return 0
		}
		objects = append(objects, t)
	}

	send := func(data []byte, host string, port uint16) error {
		return L.CallByParam(lua.P{Fn: callback, NRet: 0, Protect: true},
			lua.LString(data), lua.LString(host), lua.LNumber(port))
	}

	client, err := lwm2m.Init(L, endpoint, objects, send, opts...)
	if err != nil {
		if errors.Is(err, lwm2m.ErrEmptyEndpoint) {
			L.ArgError(1, "endpoint name should not be empty")
			return 0
		}
		L.RaiseError("unable to create objects (%v)", err)
		return 0
	}

	ud := L.NewUserData()
	ud.Value = client
	L.SetMetatable(ud, L.GetTypeMetatable(clientTypeName))
	L.Push(ud)
	return 1
}

// checkClient returns the open client at argument 1. name is the method
// reported in errors.
func checkClient(L *lua.LState, name string) *lwm2m.Client {
	ud := L.CheckUserData(1)
	client, ok := ud.Value.(*lwm2m.Client)
	if !ok {
		L.ArgError(1, "lwm2m client expected")
		return nil
	}
	if client.Closed() {
		L.RaiseError("bad argument #1 to '%s' (llwm object is closed)", name)
		return nil
	}
	return client
}

func checkUint16(L *lua.LState, n int) uint16 {
	v, ok := script.ToUint16(L.Get(n))
	if !ok {
		L.ArgError(n, "integer in range 0..65534 expected")
	}
	return v
}

// clientAddServer implements client:addserver(shortID, host, port,
// lifetime, sms, binding).
func clientAddServer(L *lua.LState) int {
	client := checkClient(L, "addserver")
	shortID := checkUint16(L, 2)
	host := L.CheckString(3)
	port := checkUint16(L, 4)
	lifetime := L.CheckInt(5)
	sms := L.OptString(6, "")
	bindingName := L.CheckString(7)

	binding, err := model.ParseBinding(bindingName)
	if err != nil {
		L.RaiseError("unknown binding mode")
		return 0
	}
	if err := client.AddServer(shortID, host, port, time.Duration(lifetime)*time.Second, sms, binding); err != nil {
		L.RaiseError("unable to add server (uid=%d,url=%s,port=%d)", shortID, host, port)
	}
	return 0
}

func clientRegister(L *lua.LState) int {
	client := checkClient(L, "register")
	if err := client.Register(); err != nil {
		return pushError(L, err)
	}
	return 0
}

func clientHandle(L *lua.LState) int {
	client := checkClient(L, "handle")
	data := L.CheckString(2)
	host := L.CheckString(3)
	port := checkUint16(L, 4)
	if err := client.HandlePacket([]byte(data), host, port); err != nil {
		return pushError(L, err)
	}
	return 0
}

// clientStep implements client:step([timeout]) and returns the number of
// seconds the script may wait before the next step.
func clientStep(L *lua.LState) int {
	client := checkClient(L, "step")
	seconds := float64(L.OptNumber(2, lua.LNumber(DefaultStepTimeout.Seconds())))
	if seconds < 0 {
		L.ArgError(2, "timeout should be positive")
		return 0
	}
	wait, err := client.Step(time.Duration(seconds * float64(time.Second)))
	if err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LNumber(wait.Seconds()))
	return 1
}

func clientResourceChanged(L *lua.LState) int {
	client := checkClient(L, "resourcechanged")
	uri := L.CheckString(2)
	if err := client.ResourceChanged(uri); err != nil {
		if errors.Is(err, lwm2m.ErrURISyntax) {
			L.Push(lua.LNil)
			L.Push(lua.LString(lwm2m.ErrURISyntax.Error()))
			return 2
		}
		return pushError(L, err)
	}
	return 0
}

// clientClose is bound to close and __gc; closing twice does nothing.
func clientClose(L *lua.LState) int {
	ud := L.CheckUserData(1)
	if client, ok := ud.Value.(*lwm2m.Client); ok {
		client.Close()
	}
	return 0
}

func pushError(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(fmt.Sprint(err)))
	return 2
}
