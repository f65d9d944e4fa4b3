package service

import (
	"errors"
	"fmt"

	"github.com/sbernard31/lualwm2m/pkg/engine"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrStopped        = errors.New("service stopped")
	ErrNoObjects      = errors.New("script defines no objects")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateRunning - script loaded, socket open, client registered.
	StateRunning

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("ServiceState(%d)", s)
	}
}

// EventType identifies the type of service event.
type EventType uint8

const (
	// EventStarted - client initialized and registration started.
	EventStarted EventType = iota

	// EventServerStateChanged - a server's registration state changed.
	EventServerStateChanged

	// EventStepFailed - the engine step returned an error.
	EventStepFailed

	// EventStopped - client closed.
	EventStopped
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "STARTED"
	case EventServerStateChanged:
		return "SERVER_STATE_CHANGED"
	case EventStepFailed:
		return "STEP_FAILED"
	case EventStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Event is emitted by the service.
type Event struct {
	Type EventType

	// ShortID and State are set for server events.
	ShortID uint16
	State   engine.ServerState

	Error error
}

// EventHandler receives service events.
type EventHandler func(Event)
