package luabind

import (
	"errors"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/transport"
)

// UDPModuleName is the name scripts pass to require for sockets.
const UDPModuleName = "udp"

const socketTypeName = "lualwm2m.udp"

// PreloadUDP makes require("udp") available in L. Sockets created by the
// script are passed the given transport options.
func PreloadUDP(L *lua.LState, opts ...transport.Option) {
	L.PreloadModule(UDPModuleName, func(L *lua.LState) int {
		mt := L.NewTypeMetatable(socketTypeName)
		L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"sendto":      socketSendTo,
			"receivefrom": socketReceiveFrom,
			"getsockname": socketGetSockName,
			"close":       socketClose,
		}))

		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"listen": func(L *lua.LState) int {
				addr := L.OptString(1, "0.0.0.0:0")
				u, err := transport.Listen(addr, opts...)
				if err != nil {
					return pushError(L, err)
				}
				ud := L.NewUserData()
				ud.Value = u
				L.SetMetatable(ud, L.GetTypeMetatable(socketTypeName))
				L.Push(ud)
				return 1
			},
		})
		L.Push(mod)
		return 1
	})
}

func checkSocket(L *lua.LState) *transport.UDP {
	ud := L.CheckUserData(1)
	u, ok := ud.Value.(*transport.UDP)
	if !ok {
		L.ArgError(1, "udp socket expected")
		return nil
	}
	return u
}

// socketSendTo implements socket:sendto(data, host, port).
func socketSendTo(L *lua.LState) int {
	u := checkSocket(L)
	data := L.CheckString(2)
	host := L.CheckString(3)
	port := checkUint16(L, 4)
	if err := u.Send([]byte(data), host, port); err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// socketReceiveFrom implements socket:receivefrom([timeout]). It returns
// data, host, port or nil, "timeout".
func socketReceiveFrom(L *lua.LState) int {
	u := checkSocket(L)
	seconds := float64(L.OptNumber(2, 0))
	pkt, err := u.Receive(time.Duration(seconds * float64(time.Second)))
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			L.Push(lua.LNil)
			L.Push(lua.LString("timeout"))
			return 2
		}
		return pushError(L, err)
	}
	L.Push(lua.LString(pkt.Data))
	L.Push(lua.LString(pkt.Host))
	L.Push(lua.LNumber(pkt.Port))
	return 3
}

// socketGetSockName returns the bound host and port.
func socketGetSockName(L *lua.LState) int {
	u := checkSocket(L)
	addr := u.LocalAddr()
	L.Push(lua.LString(addr.IP.String()))
	L.Push(lua.LNumber(addr.Port))
	return 2
}

func socketClose(L *lua.LState) int {
	u := checkSocket(L)
	u.Close()
	return 0
}
