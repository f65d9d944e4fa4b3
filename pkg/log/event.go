package log

import (
	"time"

	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// Event is one protocol log entry. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the client instance that produced the event (UUID).
	SessionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Endpoint is the client endpoint name.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the server address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Datagram    *DatagramEvent    `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the datagram layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the frame layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerService is the client layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 1
	CategoryError   Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxDatagramDataSize caps the bytes kept in a DatagramEvent.
const MaxDatagramDataSize = 512

// DatagramEvent captures a raw datagram.
type DatagramEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// NewDatagramEvent builds a DatagramEvent, truncating large payloads.
func NewDatagramEvent(data []byte) *DatagramEvent {
	ev := &DatagramEvent{Size: len(data), Data: data}
	if len(data) > MaxDatagramDataSize {
		ev.Data = data[:MaxDatagramDataSize]
		ev.Truncated = true
	}
	return ev
}

// MessageEvent captures a decoded frame.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`

	// MessageID correlates requests and responses. For notifications it
	// holds the sequence number.
	MessageID uint32 `cbor:"2,keyasint"`

	// For requests: the operation.
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`

	// For requests and notifications: the target URI.
	URI string `cbor:"4,keyasint,omitempty"`

	// For responses and notifications: the status code.
	Status *wire.Status `cbor:"5,keyasint,omitempty"`

	// Records is the number of resource records carried.
	Records int `cbor:"6,keyasint,omitempty"`

	// Payload holds registration links, locations or execute arguments.
	Payload any `cbor:"7,keyasint,omitempty"`

	// ProcessingTime is the time spent serving a request (responses only).
	ProcessingTime *time.Duration `cbor:"8,keyasint,omitempty"`
}

// MessageType distinguishes frames.
type MessageType uint8

const (
	MessageTypeRequest        MessageType = 0
	MessageTypeResponse       MessageType = 1
	MessageTypeNotification   MessageType = 2
	MessageTypeRegistration   MessageType = 3
	MessageTypeUpdate         MessageType = 4
	MessageTypeDeregistration MessageType = 5
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	case MessageTypeRegistration:
		return "REGISTRATION"
	case MessageTypeUpdate:
		return "UPDATE"
	case MessageTypeDeregistration:
		return "DEREGISTRATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityClient is the client context (opened, closed).
	StateEntityClient StateEntity = 0
	// StateEntityServer is a server registration.
	StateEntityServer StateEntity = 1
	// StateEntityObject is an object instance (created, deleted).
	StateEntityObject StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityClient:
		return "CLIENT"
	case StateEntityServer:
		return "SERVER"
	case StateEntityObject:
		return "OBJECT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the status code, if applicable.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what was being done.
	Context string `cbor:"4,keyasint,omitempty"`
}
