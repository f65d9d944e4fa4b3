package local

import (
	"time"

	"github.com/sbernard31/lualwm2m/pkg/engine"
	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/subscription"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// observation is one server watching one instance or resource.
type observation struct {
	server   *serverEntry
	uri      model.URI
	sequence uint32
	sub      *subscription.Subscription
}

func (e *Engine) observe(s *serverEntry, obj engine.Object, uri model.URI) *wire.Response {
	if !uri.HasInstance() {
		return &wire.Response{Status: wire.StatusNotImplemented}
	}
	resp := e.read(obj, uri)
	if resp.Status != wire.StatusContent {
		return resp
	}

	for _, o := range e.observations {
		if o.server == s && o.uri == uri {
			o.sub.Prime(e.now(), snapshot(resp))
			return resp
		}
	}
	o := &observation{server: s, uri: uri, sub: subscription.New(e.notifyConfig)}
	o.sub.Prime(e.now(), snapshot(resp))
	e.observations = append(e.observations, o)
	return resp
}

func (e *Engine) cancelObserve(s *serverEntry, uri model.URI) {
	kept := e.observations[:0]
	for _, o := range e.observations {
		if o.server == s && o.uri == uri {
			continue
		}
		kept = append(kept, o)
	}
	e.observations = kept
}

// dropObservations forgets every observation inside a deleted instance.
func (e *Engine) dropObservations(uri model.URI) {
	kept := e.observations[:0]
	for _, o := range e.observations {
		if uri.Contains(o.uri) {
			continue
		}
		kept = append(kept, o)
	}
	e.observations = kept
}

// ResourceValueChanged queues uri for notification on the next Step.
func (e *Engine) ResourceValueChanged(uri model.URI) {
	if e.closed {
		return
	}
	for _, c := range e.changed {
		if c == uri {
			return
		}
	}
	e.changed = append(e.changed, uri)
}

// notifyChanges marks the observations touched by queued changes, then
// sends every notification their pacing makes due.
func (e *Engine) notifyChanges() {
	changed := e.changed
	e.changed = nil

	now := e.now()
	for _, o := range e.observations {
		if len(changed) > 0 && touches(o.uri, changed) {
			o.sub.RecordChange()
		}
		if o.server.State != engine.StateRegistered {
			continue
		}
		reason := o.sub.Due(now)
		if reason == subscription.ReasonNone {
			continue
		}
		obj, ok := e.objects[o.uri.ObjectID]
		if !ok {
			continue
		}
		resp := e.read(obj, o.uri)
		values := snapshot(resp)
		if reason == subscription.ReasonChange && o.sub.Suppress(values) {
			e.logger.Debug("unchanged value not notified", "uri", o.uri)
			continue
		}
		o.sequence++
		o.sub.Sent(now, values)
		e.sendNotification(o, resp)
	}
}

// notifyWait returns the shortest wait before an observation needs a
// step, or a negative duration when none does.
func (e *Engine) notifyWait() time.Duration {
	now := e.now()
	wait := time.Duration(-1)
	for _, o := range e.observations {
		if o.server.State != engine.StateRegistered {
			continue
		}
		if w := o.sub.Wait(now); w >= 0 && (wait < 0 || w < wait) {
			wait = w
		}
	}
	return wait
}

// snapshot returns the values carried by resp, or nil when they cannot be
// compared.
func snapshot(resp *wire.Response) []model.Record {
	records, err := wire.ToRecords(resp.Records)
	if err != nil {
		return nil
	}
	return records
}

func touches(uri model.URI, changed []model.URI) bool {
	for _, c := range changed {
		if uri.Contains(c) || c.Contains(uri) {
			return true
		}
	}
	return false
}

func (e *Engine) sendNotification(o *observation, resp *wire.Response) {
	notif := &wire.Notification{
		Sequence: o.sequence,
		URI:      o.uri.String(),
		Status:   resp.Status,
		Records:  resp.Records,
	}
	data, err := wire.EncodeNotification(notif)
	if err != nil {
		e.logger.Warn("encode notification failed", "error", err)
		return
	}

	status := notif.Status
	e.logFrame(log.DirectionOut, o.server.Session, &log.MessageEvent{
		Type:      log.MessageTypeNotification,
		MessageID: notif.Sequence,
		URI:       notif.URI,
		Status:    &status,
		Records:   len(notif.Records),
	})
	if err := e.send(o.server.Session, data); err != nil {
		e.logger.Warn("send notification failed", "session", o.server.Session, "error", err)
	}
}
