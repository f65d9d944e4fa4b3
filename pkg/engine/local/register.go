package local

import (
	"errors"
	"fmt"
	"time"

	"github.com/sbernard31/lualwm2m/pkg/engine"
	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

type requestKind uint8

const (
	requestRegistration requestKind = iota
	requestUpdate
	requestDeregistration
)

// pendingRequest is an outbound frame awaiting its response.
type pendingRequest struct {
	kind   requestKind
	server *serverEntry
}

// Register sends a registration to every server that is not registered
// or registering. Send failures mark the server as failed; the other
// servers are still tried.
func (e *Engine) Register() error {
	if e.closed {
		return engine.ErrClosed
	}
	if len(e.servers) == 0 {
		return engine.ErrNoServers
	}

	var errs []error
	for _, s := range e.servers {
		if s.State == engine.StateRegistered || s.State == engine.StateRegistering {
			continue
		}
		if err := e.register(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) register(s *serverEntry) error {
	reg := &wire.Registration{
		MessageID: e.messageID(),
		Endpoint:  e.endpoint,
		Lifetime:  uint32(s.Lifetime / time.Second),
		Binding:   s.Binding.String(),
		SMS:       s.SMS,
		Links:     e.links(),
	}
	data, err := wire.EncodeRegistration(reg)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}

	e.logFrame(log.DirectionOut, s.Session, &log.MessageEvent{
		Type:      log.MessageTypeRegistration,
		MessageID: reg.MessageID,
		Payload:   reg.Links,
	})
	if err := e.send(s.Session, data); err != nil {
		e.setState(s, engine.StateRegistrationFailed, err.Error())
		return fmt.Errorf("register with server %d: %w", s.ShortID, err)
	}

	e.pending[reg.MessageID] = pendingRequest{kind: requestRegistration, server: s}
	e.setState(s, engine.StateRegistering, "")
	return nil
}

func (e *Engine) update(s *serverEntry, now time.Time) {
	upd := &wire.Update{
		MessageID: e.messageID(),
		Location:  s.Location,
		Lifetime:  uint32(s.Lifetime / time.Second),
		Links:     e.links(),
	}
	data, err := wire.EncodeUpdate(upd)
	if err != nil {
		e.logger.Warn("encode update failed", "error", err)
		return
	}

	e.logFrame(log.DirectionOut, s.Session, &log.MessageEvent{
		Type:      log.MessageTypeUpdate,
		MessageID: upd.MessageID,
		URI:       s.Location,
	})
	if err := e.send(s.Session, data); err != nil {
		e.logger.Warn("registration update failed", "short_id", s.ShortID, "error", err)
		return
	}
	e.pending[upd.MessageID] = pendingRequest{kind: requestUpdate, server: s}
	s.registeredAt = now
}

func (e *Engine) deregister(s *serverEntry) {
	dereg := &wire.Deregistration{
		MessageID: e.messageID(),
		Location:  s.Location,
	}
	data, err := wire.EncodeDeregistration(dereg)
	if err != nil {
		return
	}

	e.logFrame(log.DirectionOut, s.Session, &log.MessageEvent{
		Type:      log.MessageTypeDeregistration,
		MessageID: dereg.MessageID,
		URI:       s.Location,
	})
	if err := e.send(s.Session, data); err != nil {
		e.logger.Warn("deregistration failed", "short_id", s.ShortID, "error", err)
	}
}

// handleResponse matches a response to a pending registration frame.
func (e *Engine) handleResponse(s *serverEntry, resp *wire.Response) {
	p, ok := e.pending[resp.MessageID]
	if !ok || p.server != s {
		e.logger.Debug("unexpected response", "msg_id", resp.MessageID, "status", resp.Status)
		return
	}
	delete(e.pending, resp.MessageID)

	switch p.kind {
	case requestRegistration:
		if resp.Status != wire.StatusCreated {
			e.setState(s, engine.StateRegistrationFailed, resp.Status.String())
			return
		}
		s.Location = string(resp.Payload)
		s.registeredAt = e.now()
		e.setState(s, engine.StateRegistered, "")

	case requestUpdate:
		if !resp.Status.IsSuccess() {
			// The server forgot us; register again on the next Register call
			e.setState(s, engine.StateDeregistered, "update rejected: "+resp.Status.String())
		}
	}
}

// Step sends pending notifications and due registration updates. It
// returns the time until the next update, capped by timeout.
func (e *Engine) Step(timeout time.Duration) (time.Duration, error) {
	if e.closed {
		return 0, engine.ErrClosed
	}
	now := e.now()

	e.notifyChanges()

	next := timeout
	for _, s := range e.servers {
		if s.State != engine.StateRegistered {
			continue
		}
		due := s.registeredAt.Add(s.Lifetime / 2)
		if !now.Before(due) {
			e.update(s, now)
			due = now.Add(s.Lifetime / 2)
		}
		if wait := due.Sub(now); wait < next {
			next = wait
		}
	}
	if wait := e.notifyWait(); wait >= 0 && wait < next {
		next = wait
	}
	return next, nil
}

func (e *Engine) setState(s *serverEntry, state engine.ServerState, reason string) {
	if s.State == state {
		return
	}
	old := s.State
	s.State = state

	e.logger.Debug("server state", "short_id", s.ShortID, "from", old, "to", state)
	e.plog.Log(log.Event{
		Timestamp:  e.now(),
		SessionID:  e.sessionID,
		Layer:      log.LayerService,
		Category:   log.CategoryState,
		Endpoint:   e.endpoint,
		RemoteAddr: s.Session.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityServer,
			OldState: old.String(),
			NewState: state.String(),
			Reason:   reason,
		},
	})
}

func (e *Engine) logFrame(dir log.Direction, session *engine.Session, msg *log.MessageEvent) {
	e.plog.Log(log.Event{
		Timestamp:  e.now(),
		SessionID:  e.sessionID,
		Direction:  dir,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		Endpoint:   e.endpoint,
		RemoteAddr: session.String(),
		Message:    msg,
	})
}
