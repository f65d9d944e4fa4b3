package subscription

import (
	"errors"
	"time"

	"github.com/sbernard31/lualwm2m/pkg/model"
)

// ErrInvalidPeriod is returned when MinPeriod exceeds a non-zero MaxPeriod
// or a period is negative.
var ErrInvalidPeriod = errors.New("invalid notification period")

// Config holds the notification attributes shared by observations.
type Config struct {
	// MinPeriod is the minimum time between two notifications.
	MinPeriod time.Duration

	// MaxPeriod is the maximum time without a notification. Zero disables
	// heartbeats.
	MaxPeriod time.Duration

	// SuppressUnchanged drops change notifications whose records equal the
	// last notified ones.
	SuppressUnchanged bool
}

// DefaultConfig notifies on every step that carries a change and never
// sends heartbeats.
func DefaultConfig() Config {
	return Config{}
}

// Validate checks the periods.
func (c Config) Validate() error {
	if c.MinPeriod < 0 || c.MaxPeriod < 0 {
		return ErrInvalidPeriod
	}
	if c.MaxPeriod > 0 && c.MinPeriod > c.MaxPeriod {
		return ErrInvalidPeriod
	}
	return nil
}

// Reason tells why a notification is due.
type Reason uint8

const (
	// ReasonNone means nothing is due.
	ReasonNone Reason = iota
	// ReasonChange means a coalesced change is ready.
	ReasonChange
	// ReasonHeartbeat means MaxPeriod elapsed without a notification.
	ReasonHeartbeat
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonChange:
		return "CHANGE"
	case ReasonHeartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// Subscription is the pacing state of one observation. It is not safe for
// concurrent use; the engine drives it from its own goroutine.
type Subscription struct {
	config Config

	// lastNotified is when the last notification was sent.
	lastNotified time.Time

	// lastRecords holds the last notified records for suppression.
	lastRecords []model.Record

	// pending is set by a change and cleared by a notification.
	pending bool
}

// New creates a subscription. Call Prime with the observe response.
func New(config Config) *Subscription {
	return &Subscription{config: config}
}

// Prime records the initial values sent in the observe response.
func (s *Subscription) Prime(now time.Time, records []model.Record) {
	s.Sent(now, records)
}

// RecordChange marks the observed value as changed. It returns true when
// the change opens a new coalescing window.
func (s *Subscription) RecordChange() bool {
	isNew := !s.pending
	s.pending = true
	return isNew
}

// Pending reports whether a change is waiting to be notified.
func (s *Subscription) Pending() bool {
	return s.pending
}

// Due reports whether a notification should be sent at now.
func (s *Subscription) Due(now time.Time) Reason {
	elapsed := now.Sub(s.lastNotified)
	if s.pending && elapsed >= s.config.MinPeriod {
		return ReasonChange
	}
	if s.config.MaxPeriod > 0 && elapsed >= s.config.MaxPeriod {
		return ReasonHeartbeat
	}
	return ReasonNone
}

// Suppress reports whether a change notification carrying records should be
// dropped because it repeats the last notified values. A suppressed change
// clears the pending flag without restarting the periods.
func (s *Subscription) Suppress(records []model.Record) bool {
	if !s.config.SuppressUnchanged || s.lastRecords == nil {
		return false
	}
	if !recordsEqual(s.lastRecords, records) {
		return false
	}
	s.pending = false
	return true
}

// Sent records that a notification carrying records went out at now.
func (s *Subscription) Sent(now time.Time, records []model.Record) {
	s.lastNotified = now
	s.lastRecords = append(s.lastRecords[:0:0], records...)
	s.pending = false
}

// Wait returns how long until Due may change its answer. It returns a
// negative duration when nothing is scheduled.
func (s *Subscription) Wait(now time.Time) time.Duration {
	elapsed := now.Sub(s.lastNotified)
	wait := time.Duration(-1)
	if s.pending {
		wait = max(s.config.MinPeriod-elapsed, 0)
	}
	if s.config.MaxPeriod > 0 {
		hb := max(s.config.MaxPeriod-elapsed, 0)
		if wait < 0 || hb < wait {
			wait = hb
		}
	}
	return wait
}

// recordsEqual compares two record lists in order.
func recordsEqual(a, b []model.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}
