package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/config"
	"github.com/sbernard31/lualwm2m/pkg/engine"
	"github.com/sbernard31/lualwm2m/pkg/lwm2m"
	"github.com/sbernard31/lualwm2m/pkg/metrics"
	"github.com/sbernard31/lualwm2m/pkg/transport"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

const objectsScript = `
local temperature = { value = 21.5 }
function temperature:read(id)
	if id == 5700 then return 0x45, self.value end
	return 0x84
end
function temperature:list() return { 5700 } end

local sensor = { id = 3303 }
sensor[0] = temperature

return { sensor }
`

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "objects.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) has(typ EventType, state engine.ServerState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ && (typ != EventServerStateChanged || e.State == state) {
			return true
		}
	}
	return false
}

// fakeServer is the LWM2M server side of a test.
type fakeServer struct {
	t   *testing.T
	udp *transport.UDP
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	udp, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { udp.Close() })
	return &fakeServer{t: t, udp: udp}
}

func (f *fakeServer) port() uint16 {
	return uint16(f.udp.LocalAddr().Port)
}

func (f *fakeServer) receive() transport.Packet {
	f.t.Helper()
	pkt, err := f.udp.Receive(5 * time.Second)
	require.NoError(f.t, err)
	return pkt
}

func (f *fakeServer) reply(to transport.Packet, data []byte) {
	f.t.Helper()
	require.NoError(f.t, f.udp.Send(data, to.Host, to.Port))
}

func newTestService(t *testing.T, server *fakeServer, opts ...Option) *DeviceService {
	t.Helper()
	cfg := config.Config{
		Endpoint:     "svc-test",
		Script:       writeScript(t, objectsScript),
		Listen:       "127.0.0.1:0",
		StepInterval: 20 * time.Millisecond,
		Servers: []config.ServerConfig{
			{ShortID: 1, Host: "127.0.0.1", Port: server.port(), Lifetime: 60, Binding: "U"},
		},
	}
	svc, err := NewDeviceService(cfg, opts...)
	require.NoError(t, err)
	return svc
}

func TestDeviceServiceLifecycle(t *testing.T) {
	server := newFakeServer(t)
	collector := metrics.NewCollector()
	svc := newTestService(t, server, WithMetrics(collector))
	rec := &eventRecorder{}
	svc.OnEvent(rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, StateRunning, svc.State())
	assert.ErrorIs(t, svc.Start(ctx), ErrAlreadyStarted)

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	// Registration
	pkt := server.receive()
	reg, err := wire.DecodeRegistration(pkt.Data)
	require.NoError(t, err)
	assert.Equal(t, "svc-test", reg.Endpoint)
	assert.Equal(t, "</3303/0>", reg.Links)

	resp, err := wire.EncodeResponse(&wire.Response{MessageID: reg.MessageID, Status: wire.StatusCreated, Payload: []byte("/rd/7")})
	require.NoError(t, err)
	server.reply(pkt, resp)

	assert.Eventually(t, func() bool {
		return rec.has(EventServerStateChanged, engine.StateRegistered)
	}, 2*time.Second, 10*time.Millisecond)

	// Read served by the script
	req, err := wire.EncodeRequest(&wire.Request{MessageID: 99, Operation: wire.OpRead, URI: "/3303/0/5700"})
	require.NoError(t, err)
	server.reply(pkt, req)

	answer, err := wire.DecodeResponse(server.receive().Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(99), answer.MessageID)
	assert.Equal(t, wire.StatusContent, answer.Status)

	// Commands run on the loop goroutine
	var servers int
	require.NoError(t, svc.Do(ctx, func(c *lwm2m.Client) error {
		servers = len(c.Servers())
		return nil
	}))
	assert.Equal(t, 1, servers)

	require.NoError(t, svc.Stop())
	require.NoError(t, svc.Stop())
	assert.NoError(t, <-runErr)
	assert.Equal(t, StateStopped, svc.State())
	assert.True(t, rec.has(EventStopped, 0))

	dereg, err := wire.DecodeDeregistration(server.receive().Data)
	require.NoError(t, err)
	assert.Equal(t, "/rd/7", dereg.Location)

	assert.ErrorIs(t, svc.Do(ctx, func(*lwm2m.Client) error { return nil }), ErrStopped)
}

func TestRunBeforeStart(t *testing.T) {
	svc := newTestService(t, newFakeServer(t))
	assert.ErrorIs(t, svc.Run(context.Background()), ErrNotStarted)
	assert.NoError(t, svc.Stop())
}

func TestStartFailsOnBadScript(t *testing.T) {
	cfg := config.Config{
		Endpoint: "svc-test",
		Script:   writeScript(t, `objects = {}`),
		Listen:   "127.0.0.1:0",
	}
	svc, err := NewDeviceService(cfg)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Start(context.Background()), ErrNoObjects)
	assert.Equal(t, StateIdle, svc.State())
	assert.Nil(t, svc.LocalAddr())
}

func TestNewDeviceServiceValidates(t *testing.T) {
	_, err := NewDeviceService(config.Config{Script: "x.lua"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadObjects(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    int
		wantErr bool
	}{
		{name: "returned list", src: `return { { id = 1 }, { id = 2 } }`, want: 2},
		{name: "global list", src: `objects = { { id = 3 } }`, want: 1},
		{name: "no objects", src: `local x = 1`, wantErr: true},
		{name: "not a table", src: `return { 5 }`, wantErr: true},
		{name: "syntax error", src: `return {`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			L := lua.NewState()
			defer L.Close()

			objects, err := LoadObjects(L, writeScript(t, tt.src))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, objects, tt.want)
			assert.Equal(t, 0, L.GetTop())
		})
	}
}
