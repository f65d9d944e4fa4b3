package engine

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// Engine errors.
var (
	ErrDuplicateServer = errors.New("server short id already registered")
	ErrNilSession      = errors.New("server session is nil")
	ErrNoServers       = errors.New("no servers configured")
	ErrClosed          = errors.New("engine closed")
)

// Object is the per-object contract the engine dispatches to.
// Every method returns a protocol status; none of them fails with an error.
type Object interface {
	ID() uint16
	InstanceIDs() []uint16
	Read(instanceID uint16, resourceIDs []uint16) ([]model.Record, wire.Status)
	Write(instanceID uint16, records []model.Record) wire.Status
	Execute(instanceID, resourceID uint16, payload []byte) wire.Status
	Create(instanceID uint16, records []model.Record) wire.Status
	Delete(instanceID uint16) wire.Status
	Close()
}

// ResourceLister is implemented by objects that can enumerate the resources
// of an instance. Engines use it to answer discovery requests.
type ResourceLister interface {
	ResourceIDs(instanceID uint16) ([]uint16, wire.Status)
}

// Session is the network address of a server. It is used as a lookup key
// for inbound packets.
type Session struct {
	Host string
	Port uint16
}

// Equal reports whether the session matches host and port.
func (s *Session) Equal(host string, port uint16) bool {
	return s != nil && s.Host == host && s.Port == port
}

// String returns host:port.
func (s *Session) String() string {
	if s == nil {
		return "<nil>"
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
}

// Security describes server credentials. Secure transports are not
// supported, so the zero value (no security) is the only one in use.
type Security struct {
	Mode uint8
}

// ServerConfig is the bootstrap information of one LWM2M server.
type ServerConfig struct {
	ShortID  uint16
	Lifetime time.Duration
	SMS      string
	Binding  model.Binding
	Security Security
}

// Validate checks the configuration.
func (c ServerConfig) Validate() error {
	if c.ShortID == 0 || c.ShortID == model.MaxID {
		return fmt.Errorf("invalid short server id %d", c.ShortID)
	}
	if c.Lifetime <= 0 {
		return fmt.Errorf("server %d: lifetime must be positive", c.ShortID)
	}
	if !c.Binding.IsValid() {
		return fmt.Errorf("server %d: %w", c.ShortID, model.ErrUnknownBinding)
	}
	return nil
}

// ServerState tracks registration progress with one server.
type ServerState uint8

const (
	StateDeregistered ServerState = iota
	StateRegistering
	StateRegistered
	StateRegistrationFailed
)

// String returns the state name.
func (s ServerState) String() string {
	switch s {
	case StateDeregistered:
		return "DEREGISTERED"
	case StateRegistering:
		return "REGISTERING"
	case StateRegistered:
		return "REGISTERED"
	case StateRegistrationFailed:
		return "REGISTRATION_FAILED"
	default:
		return fmt.Sprintf("ServerState(%d)", s)
	}
}

// Server is the engine's entry for one configured server. The engine owns
// the entry and the Session it points to.
type Server struct {
	ServerConfig
	Session  *Session
	State    ServerState
	Location string
}

// SendFunc delivers an outbound datagram to a session.
type SendFunc func(session *Session, data []byte) error

// Engine is a management engine driving a set of objects.
type Engine interface {
	// AddServer takes ownership of session for the lifetime of the entry.
	AddServer(cfg ServerConfig, session *Session) error

	// Register starts registration with every server not yet registered.
	Register() error

	// Step runs timers and pending notifications. It returns how long the
	// caller may wait before the next step, never more than timeout.
	Step(timeout time.Duration) (time.Duration, error)

	// HandlePacket processes a datagram received from session.
	HandlePacket(data []byte, session *Session)

	// ResourceValueChanged reports that the value at uri changed.
	ResourceValueChanged(uri model.URI)

	// Servers returns the server entries.
	Servers() []*Server

	// Close deregisters and closes every object. Close is idempotent.
	Close()
}

// Factory builds an engine for an endpoint.
type Factory func(endpoint string, objects []Object, send SendFunc) (Engine, error)
