package lwm2m

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/engine"
	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/object"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// ---------------------------------------------------------------------------
// stubEngine
// ---------------------------------------------------------------------------

type stubEngine struct{ mock.Mock }

func (e *stubEngine) AddServer(cfg engine.ServerConfig, s *engine.Session) error {
	return e.Called(cfg, s).Error(0)
}
func (e *stubEngine) Register() error { return e.Called().Error(0) }
func (e *stubEngine) Step(timeout time.Duration) (time.Duration, error) {
	ret := e.Called(timeout)
	return ret.Get(0).(time.Duration), ret.Error(1)
}
func (e *stubEngine) HandlePacket(data []byte, s *engine.Session) { e.Called(data, s) }
func (e *stubEngine) ResourceValueChanged(uri model.URI)          { e.Called(uri) }
func (e *stubEngine) Servers() []*engine.Server {
	return e.Called().Get(0).([]*engine.Server)
}
func (e *stubEngine) Close() { e.Called() }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

const objectsScript = `
local info = {}
function info:read(id) return 0x45, "ACME" end
function info:list() return { 0 } end

device = { id = 3 }
device[0] = info

temperature = { id = 3303 }
`

type fixture struct {
	L       *lua.LState
	client  *Client
	engine  *stubEngine
	objects []engine.Object
	send    engine.SendFunc
	sent    [][]byte
}

func tables(t *testing.T, L *lua.LState, names ...string) []*lua.LTable {
	t.Helper()
	out := make([]*lua.LTable, 0, len(names))
	for _, n := range names {
		tbl, ok := L.GetGlobal(n).(*lua.LTable)
		require.True(t, ok, "global %s is not a table", n)
		out = append(out, tbl)
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{L: lua.NewState(), engine: &stubEngine{}}
	t.Cleanup(f.L.Close)
	require.NoError(t, f.L.DoString(objectsScript))

	factory := func(endpoint string, objects []engine.Object, send engine.SendFunc) (engine.Engine, error) {
		f.objects = objects
		f.send = send
		return f.engine, nil
	}
	send := func(data []byte, host string, port uint16) error {
		f.sent = append(f.sent, data)
		return nil
	}

	c, err := Init(f.L, "dev-1", tables(t, f.L, "device", "temperature"), send, WithEngineFactory(factory))
	require.NoError(t, err)
	f.client = c
	return f
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestInitValidation(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	require.NoError(t, L.DoString(objectsScript+`noid = {}`))
	send := func([]byte, string, uint16) error { return nil }

	_, err := Init(L, "", tables(t, L, "device"), send)
	assert.ErrorIs(t, err, ErrEmptyEndpoint)

	_, err = Init(L, "dev", nil, send)
	assert.ErrorIs(t, err, ErrNoObjects)

	_, err = Init(L, "dev", tables(t, L, "device"), nil)
	assert.ErrorIs(t, err, ErrNoSendHandler)

	_, err = Init(L, "dev", tables(t, L, "device", "noid"), send)
	assert.ErrorIs(t, err, ErrBadObject)
}

func TestInitUnwindsBindingsOnEngineFailure(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	require.NoError(t, L.DoString(objectsScript))

	var bound []engine.Object
	factory := func(_ string, objects []engine.Object, _ engine.SendFunc) (engine.Engine, error) {
		bound = objects
		return nil, errors.New("no engine today")
	}

	_, err := Init(L, "dev", tables(t, L, "device", "temperature"), func([]byte, string, uint16) error { return nil },
		WithEngineFactory(factory))
	require.Error(t, err)
	require.Len(t, bound, 2)
	for _, obj := range bound {
		assert.True(t, obj.(*object.Binding).Closed(), "object %d left bound", obj.ID())
	}
}

func TestInitBindsObjects(t *testing.T) {
	f := newFixture(t)

	require.Len(t, f.objects, 2)
	assert.Equal(t, uint16(3), f.objects[0].ID())
	assert.Equal(t, []uint16{0}, f.objects[0].InstanceIDs())
	assert.Equal(t, uint16(3303), f.objects[1].ID())

	b, ok := f.client.Object(3303)
	require.True(t, ok)
	assert.Equal(t, uint16(3303), b.ID())
	assert.Equal(t, "dev-1", f.client.Endpoint())
	assert.NotEmpty(t, f.client.SessionID())
}

func TestAddServerHandsSessionToEngine(t *testing.T) {
	f := newFixture(t)

	var got *engine.Session
	f.engine.On("AddServer", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(*engine.Session)
	}).Return(nil)

	require.NoError(t, f.client.AddServer(1, "127.0.0.1", 5683, 300*time.Second, "", model.BindingU))

	f.engine.AssertCalled(t, "AddServer", engine.ServerConfig{
		ShortID:  1,
		Lifetime: 300 * time.Second,
		Binding:  model.BindingU,
	}, mock.Anything)
	require.NotNil(t, got)
	assert.True(t, got.Equal("127.0.0.1", 5683))
}

func TestHandlePacketSessionDrop(t *testing.T) {
	f := newFixture(t)
	known := &engine.Session{Host: "127.0.0.1", Port: 5683}
	f.engine.On("Servers").Return([]*engine.Server{{Session: known}})
	f.engine.On("HandlePacket", mock.Anything, mock.Anything).Return()

	require.NoError(t, f.client.HandlePacket([]byte{1}, "10.0.0.1", 5683))
	f.engine.AssertNotCalled(t, "HandlePacket", mock.Anything, mock.Anything)

	require.NoError(t, f.client.HandlePacket([]byte{2}, "127.0.0.1", 5683))
	f.engine.AssertCalled(t, "HandlePacket", []byte{2}, known)
}

func TestResourceChanged(t *testing.T) {
	f := newFixture(t)
	f.engine.On("ResourceValueChanged", mock.Anything).Return()

	err := f.client.ResourceChanged("/3/x")
	assert.ErrorIs(t, err, ErrURISyntax)
	f.engine.AssertNotCalled(t, "ResourceValueChanged", mock.Anything)

	require.NoError(t, f.client.ResourceChanged("/3303/0/5700"))
	f.engine.AssertCalled(t, "ResourceValueChanged", model.ResourceURI(3303, 0, 5700))
}

func TestStepAndRegisterForward(t *testing.T) {
	f := newFixture(t)
	f.engine.On("Register").Return(nil)
	f.engine.On("Step", 60*time.Second).Return(5*time.Second, nil)

	require.NoError(t, f.client.Register())
	wait, err := f.client.Step(60 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, wait)
}

func TestCloseIdempotent(t *testing.T) {
	f := newFixture(t)
	f.engine.On("Close").Return()

	f.client.Close()
	f.client.Close()

	f.engine.AssertNumberOfCalls(t, "Close", 1)
	assert.True(t, f.client.Closed())
	assert.Empty(t, f.client.Objects())

	// The send handler is released
	assert.ErrorIs(t, f.send(&engine.Session{Host: "h", Port: 1}, []byte{1}), ErrClosed)
	assert.Empty(t, f.sent)

	assert.ErrorIs(t, f.client.Register(), ErrClosed)
	assert.ErrorIs(t, f.client.AddServer(1, "h", 1, time.Minute, "", model.BindingU), ErrClosed)
	assert.ErrorIs(t, f.client.HandlePacket(nil, "h", 1), ErrClosed)
	assert.ErrorIs(t, f.client.ResourceChanged("/3"), ErrClosed)
	_, err := f.client.Step(time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseSendsThroughHandlerBeforeRelease(t *testing.T) {
	f := newFixture(t)
	f.engine.On("Close").Run(func(mock.Arguments) {
		require.NoError(t, f.send(&engine.Session{Host: "h", Port: 1}, []byte("bye")))
	}).Return()

	f.client.Close()
	assert.Equal(t, [][]byte{[]byte("bye")}, f.sent)
}

// TestLocalEngineRoundTrip runs the default engine end to end.
func TestLocalEngineRoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	require.NoError(t, L.DoString(objectsScript))

	var sent [][]byte
	send := func(data []byte, host string, port uint16) error {
		sent = append(sent, data)
		return nil
	}

	c, err := Init(L, "dev-1", tables(t, L, "device", "temperature"), send)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.AddServer(1, "127.0.0.1", 5683, 300*time.Second, "", model.BindingU))
	require.NoError(t, c.Register())
	require.Len(t, sent, 1)

	reg, err := wire.DecodeRegistration(sent[0])
	require.NoError(t, err)
	assert.Equal(t, "</3/0>,</3303>", reg.Links)

	ack, err := wire.EncodeResponse(&wire.Response{MessageID: reg.MessageID, Status: wire.StatusCreated, Payload: []byte("/rd/1")})
	require.NoError(t, err)
	require.NoError(t, c.HandlePacket(ack, "127.0.0.1", 5683))
	assert.Equal(t, engine.StateRegistered, c.Servers()[0].State)

	req, err := wire.EncodeRequest(&wire.Request{MessageID: 5, Operation: wire.OpRead, URI: "/3/0"})
	require.NoError(t, err)
	require.NoError(t, c.HandlePacket(req, "127.0.0.1", 5683))
	require.Len(t, sent, 2)

	resp, err := wire.DecodeResponse(sent[1])
	require.NoError(t, err)
	assert.Equal(t, wire.StatusContent, resp.Status)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, []byte("ACME"), resp.Records[0].Text)
}
