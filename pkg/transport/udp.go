package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sbernard31/lualwm2m/pkg/log"
)

// MaxDatagramSize is the largest datagram Receive accepts.
const MaxDatagramSize = 65507

// Transport errors.
var (
	ErrTimeout = errors.New("receive timeout")
	ErrClosed  = errors.New("transport closed")
)

// Packet is a received datagram and its sender.
type Packet struct {
	Data []byte
	Host string
	Port uint16
}

// Option configures a UDP transport.
type Option func(*UDP)

// WithProtocolLogger records every datagram at the transport layer.
func WithProtocolLogger(logger log.Logger, sessionID string) Option {
	return func(u *UDP) {
		u.plog = log.OrNoop(logger)
		u.sessionID = sessionID
	}
}

// UDP is a bound datagram socket.
type UDP struct {
	conn *net.UDPConn
	buf  []byte

	plog      log.Logger
	sessionID string

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Listen binds a UDP socket to addr ("host:port", port 0 picks one).
func Listen(addr string, opts ...Option) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	u := &UDP{
		conn:    conn,
		buf:     make([]byte, MaxDatagramSize),
		plog:    log.NoopLogger{},
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// LocalAddr returns the bound address.
func (u *UDP) LocalAddr() *net.UDPAddr {
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// Send writes one datagram to host:port.
func (u *UDP) Send(data []byte, host string, port uint16) error {
	if u.isClosed() {
		return ErrClosed
	}
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if _, err := u.conn.WriteToUDP(data, raddr); err != nil {
		return fmt.Errorf("send to %s: %w", raddr, err)
	}
	u.logDatagram(log.DirectionOut, raddr.String(), data)
	return nil
}

// Receive waits for one datagram. A timeout of zero or less blocks until a
// datagram arrives or the socket is closed.
func (u *UDP) Receive(timeout time.Duration) (Packet, error) {
	if u.isClosed() {
		return Packet{}, ErrClosed
	}

	if timeout > 0 {
		u.conn.SetReadDeadline(time.Now().Add(timeout))
		defer u.conn.SetReadDeadline(time.Time{})
	}

	n, raddr, err := u.conn.ReadFromUDP(u.buf)
	if err != nil {
		if u.isClosed() {
			return Packet{}, ErrClosed
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Packet{}, ErrTimeout
		}
		return Packet{}, err
	}

	data := make([]byte, n)
	copy(data, u.buf[:n])
	u.logDatagram(log.DirectionIn, raddr.String(), data)

	return Packet{
		Data: data,
		Host: raddr.IP.String(),
		Port: uint16(raddr.Port),
	}, nil
}

// Close releases the socket. Close is idempotent.
func (u *UDP) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.closeCh)
		err = u.conn.Close()
	})
	return err
}

func (u *UDP) isClosed() bool {
	select {
	case <-u.closeCh:
		return true
	default:
		return false
	}
}

func (u *UDP) logDatagram(dir log.Direction, remote string, data []byte) {
	u.plog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  u.sessionID,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		RemoteAddr: remote,
		Datagram:   log.NewDatagramEvent(data),
	})
}
