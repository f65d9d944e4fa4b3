package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbernard31/lualwm2m/pkg/log"
)

type captureLogger struct {
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) { c.events = append(c.events, e) }

func listenLoopback(t *testing.T, opts ...Option) *UDP {
	t.Helper()
	u, err := Listen("127.0.0.1:0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })
	return u
}

func TestSendReceive(t *testing.T) {
	capture := &captureLogger{}
	a := listenLoopback(t, WithProtocolLogger(capture, "session-a"))
	b := listenLoopback(t)

	require.NoError(t, a.Send([]byte("hello"), "127.0.0.1", uint16(b.LocalAddr().Port)))

	pkt, err := b.Receive(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pkt.Data)
	assert.Equal(t, "127.0.0.1", pkt.Host)
	assert.Equal(t, uint16(a.LocalAddr().Port), pkt.Port)

	require.Len(t, capture.events, 1)
	ev := capture.events[0]
	assert.Equal(t, log.DirectionOut, ev.Direction)
	assert.Equal(t, log.LayerTransport, ev.Layer)
	assert.Equal(t, "session-a", ev.SessionID)
	assert.Equal(t, 5, ev.Datagram.Size)
}

func TestReceiveTimeout(t *testing.T) {
	u := listenLoopback(t)

	start := time.Now()
	_, err := u.Receive(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCloseIdempotent(t *testing.T) {
	u, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, u.Close())
	assert.NoError(t, u.Close())

	assert.ErrorIs(t, u.Send([]byte("x"), "127.0.0.1", 9), ErrClosed)
	_, err = u.Receive(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseUnblocksReceive(t *testing.T) {
	u, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := u.Receive(0)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, u.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestListenBadAddress(t *testing.T) {
	_, err := Listen("not-an-address")
	assert.Error(t, err)
}
