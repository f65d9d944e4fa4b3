package luabind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/wire"
)

const deviceScript = `
lwm2m = require("lwm2m")

local info = {}
function info:read(id)
	if id == 0 then return 0x45, "ACME" end
	return 0x84
end
function info:list() return { 0 } end

device = { id = 3 }
device[0] = info

sent = {}
function send(data, host, port)
	sent[#sent + 1] = { data = data, host = host, port = port }
end
`

func newState(t *testing.T) *lua.LState {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)
	Preload(L)
	PreloadUDP(L)
	require.NoError(t, L.DoString(deviceScript))
	return L
}

// luaError runs code that must fail and returns the error message.
func luaError(t *testing.T, L *lua.LState, code string) string {
	t.Helper()
	err := L.DoString(code)
	require.Error(t, err)
	return err.Error()
}

func sentFrame(t *testing.T, L *lua.LState, i int) (data []byte, host string, port int) {
	t.Helper()
	sent := L.GetGlobal("sent").(*lua.LTable)
	entry, ok := sent.RawGetInt(i).(*lua.LTable)
	require.True(t, ok, "no frame #%d sent", i)
	return []byte(lua.LVAsString(entry.RawGetString("data"))),
		lua.LVAsString(entry.RawGetString("host")),
		int(lua.LVAsNumber(entry.RawGetString("port")))
}

func sentCount(L *lua.LState) int {
	return L.GetGlobal("sent").(*lua.LTable).Len()
}

func TestInitArgumentErrors(t *testing.T) {
	L := newState(t)

	msg := luaError(t, L, `lwm2m.init("dev", {}, send)`)
	assert.Contains(t, msg, "bad argument #2 to 'init' (should be a non empty list : #table > 0)")

	msg = luaError(t, L, `lwm2m.init("dev", { {} }, send)`)
	assert.Contains(t, msg, "all element of the list should be a table with a 'id' field which is a number")

	msg = luaError(t, L, `lwm2m.init("dev", { "device" }, send)`)
	assert.Contains(t, msg, "all element of the list should be a table with a 'id' field which is a number")

	msg = luaError(t, L, `lwm2m.init("", { device }, send)`)
	assert.Contains(t, msg, "endpoint name should not be empty")
}

func TestRegisterAndHandleRequest(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`
		client = lwm2m.init("dev-1", { device }, send)
		client:addserver(123, "127.0.0.1", 5683, 300, "", "U")
		client:register()
	`))

	require.Equal(t, 1, sentCount(L))
	data, host, port := sentFrame(t, L, 1)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 5683, port)

	reg, err := wire.DecodeRegistration(data)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", reg.Endpoint)
	assert.Equal(t, uint32(300), reg.Lifetime)
	assert.Equal(t, "</3/0>", reg.Links)

	resp, err := wire.EncodeResponse(&wire.Response{MessageID: reg.MessageID, Status: wire.StatusCreated, Payload: []byte("/rd/1")})
	require.NoError(t, err)
	L.SetGlobal("frame", lua.LString(resp))
	require.NoError(t, L.DoString(`client:handle(frame, "127.0.0.1", 5683)`))

	req, err := wire.EncodeRequest(&wire.Request{MessageID: 7, Operation: wire.OpRead, URI: "/3/0/0"})
	require.NoError(t, err)
	L.SetGlobal("frame", lua.LString(req))
	require.NoError(t, L.DoString(`client:handle(frame, "127.0.0.1", 5683)`))

	require.Equal(t, 2, sentCount(L))
	data, _, _ = sentFrame(t, L, 2)
	answer, err := wire.DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), answer.MessageID)
	assert.Equal(t, wire.StatusContent, answer.Status)
	require.Len(t, answer.Records, 1)
	assert.Equal(t, []byte("ACME"), answer.Records[0].Text)
}

func TestHandleFromUnknownServerIsIgnored(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`
		client = lwm2m.init("dev-1", { device }, send)
		client:addserver(123, "127.0.0.1", 5683, 300, "", "U")
	`))

	req, err := wire.EncodeRequest(&wire.Request{MessageID: 7, Operation: wire.OpRead, URI: "/3/0/0"})
	require.NoError(t, err)
	L.SetGlobal("frame", lua.LString(req))
	require.NoError(t, L.DoString(`client:handle(frame, "10.0.0.1", 5683)`))
	assert.Equal(t, 0, sentCount(L))
}

func TestAddServerErrors(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`client = lwm2m.init("dev-1", { device }, send)`))

	msg := luaError(t, L, `client:addserver(1, "127.0.0.1", 5683, 300, "", "X")`)
	assert.Contains(t, msg, "unknown binding mode")

	require.NoError(t, L.DoString(`client:addserver(1, "127.0.0.1", 5683, 300, "", "UQ")`))
	msg = luaError(t, L, `client:addserver(1, "127.0.0.1", 5684, 300, "", "U")`)
	assert.Contains(t, msg, "unable to add server (uid=1,url=127.0.0.1,port=5684)")
}

func TestResourceChanged(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`
		client = lwm2m.init("dev-1", { device }, send)
		ok_result = client:resourcechanged("/3/0/0")
		bad_result, bad_msg = client:resourcechanged("not a uri")
	`))

	assert.Equal(t, lua.LNil, L.GetGlobal("ok_result"))
	assert.Equal(t, lua.LNil, L.GetGlobal("bad_result"))
	assert.Equal(t, lua.LString("resource uri syntax error"), L.GetGlobal("bad_msg"))
}

func TestStep(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`
		client = lwm2m.init("dev-1", { device }, send)
		wait_default = client:step()
		wait_short = client:step(2)
	`))

	waitDefault, ok := L.GetGlobal("wait_default").(lua.LNumber)
	require.True(t, ok)
	assert.LessOrEqual(t, float64(waitDefault), DefaultStepTimeout.Seconds())

	waitShort, ok := L.GetGlobal("wait_short").(lua.LNumber)
	require.True(t, ok)
	assert.LessOrEqual(t, float64(waitShort), 2.0)

	msg := luaError(t, L, `client:step(-1)`)
	assert.Contains(t, msg, "timeout should be positive")
}

func TestClosedClient(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`
		client = lwm2m.init("dev-1", { device }, send)
		client:close()
		client:close()
	`))

	for _, method := range []string{"register", "step", "resourcechanged"} {
		msg := luaError(t, L, `client:`+method+`("/3")`)
		assert.Contains(t, msg, "bad argument #1 to '"+method+"' (llwm object is closed)")
	}
	msg := luaError(t, L, `client:addserver(1, "h", 1, 1, "", "U")`)
	assert.Contains(t, msg, "bad argument #1 to 'addserver' (llwm object is closed)")
}

func TestCloseDeregisters(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`
		client = lwm2m.init("dev-1", { device }, send)
		client:addserver(123, "127.0.0.1", 5683, 300, "", "U")
		client:register()
	`))
	data, _, _ := sentFrame(t, L, 1)
	reg, err := wire.DecodeRegistration(data)
	require.NoError(t, err)
	resp, err := wire.EncodeResponse(&wire.Response{MessageID: reg.MessageID, Status: wire.StatusCreated, Payload: []byte("/rd/1")})
	require.NoError(t, err)
	L.SetGlobal("frame", lua.LString(resp))
	require.NoError(t, L.DoString(`client:handle(frame, "127.0.0.1", 5683)`))

	require.NoError(t, L.DoString(`client:close()`))
	require.Equal(t, 2, sentCount(L))
	data, _, _ = sentFrame(t, L, 2)
	dereg, err := wire.DecodeDeregistration(data)
	require.NoError(t, err)
	assert.Equal(t, "/rd/1", dereg.Location)
}

func TestUDPModule(t *testing.T) {
	L := newState(t)
	require.NoError(t, L.DoString(`
		local udp = require("udp")
		local a = udp.listen("127.0.0.1:0")
		local b = udp.listen("127.0.0.1:0")
		local _, bport = b:getsockname()
		local _, aport = a:getsockname()

		assert(a:sendto("ping", "127.0.0.1", bport))
		data, host, port = b:receivefrom(2)
		expected_port = aport

		none, reason = b:receivefrom(0.01)
		a:close()
		b:close()
	`))

	assert.Equal(t, lua.LString("ping"), L.GetGlobal("data"))
	assert.Equal(t, lua.LString("127.0.0.1"), L.GetGlobal("host"))
	assert.Equal(t, L.GetGlobal("expected_port"), L.GetGlobal("port"))
	assert.Equal(t, lua.LNil, L.GetGlobal("none"))
	assert.Equal(t, lua.LString("timeout"), L.GetGlobal("reason"))
}
