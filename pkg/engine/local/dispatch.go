package local

import (
	"strconv"
	"strings"
	"time"

	"github.com/sbernard31/lualwm2m/pkg/engine"
	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/wire"
)

// HandlePacket processes one datagram from session. Packets from unknown
// sessions and undecodable packets are dropped.
func (e *Engine) HandlePacket(data []byte, session *engine.Session) {
	if e.closed {
		return
	}
	s := e.serverFor(session)
	if s == nil {
		e.logger.Debug("packet from unknown session dropped", "session", session)
		return
	}

	kind, err := wire.PeekKind(data)
	if err != nil {
		e.logDropped(session, err)
		return
	}

	switch kind {
	case wire.KindResponse:
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			e.logDropped(session, err)
			return
		}
		status := resp.Status
		e.logFrame(log.DirectionIn, session, &log.MessageEvent{
			Type:      log.MessageTypeResponse,
			MessageID: resp.MessageID,
			Status:    &status,
		})
		e.handleResponse(s, resp)

	case wire.KindRequest:
		e.handleRequest(s, data)

	default:
		e.logger.Debug("unexpected frame kind dropped", "kind", kind, "session", session)
	}
}

func (e *Engine) handleRequest(s *serverEntry, data []byte) {
	start := e.now()

	req, err := wire.DecodeRequest(data)
	if err != nil {
		// Answer malformed requests when the message ID is readable
		var partial wire.Request
		if wire.Unmarshal(data, &partial) != nil {
			e.logDropped(s.Session, err)
			return
		}
		e.respond(s, &wire.Response{MessageID: partial.MessageID, Status: wire.StatusBadRequest}, start)
		return
	}

	op := req.Operation
	e.logFrame(log.DirectionIn, s.Session, &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		MessageID: req.MessageID,
		Operation: &op,
		URI:       req.URI,
		Records:   len(req.Records),
	})

	resp := e.dispatch(s, req)
	resp.MessageID = req.MessageID
	e.respond(s, resp, start)
}

func (e *Engine) respond(s *serverEntry, resp *wire.Response, start time.Time) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		e.logger.Warn("encode response failed", "error", err)
		return
	}

	status := resp.Status
	elapsed := e.now().Sub(start)
	e.logFrame(log.DirectionOut, s.Session, &log.MessageEvent{
		Type:           log.MessageTypeResponse,
		MessageID:      resp.MessageID,
		Status:         &status,
		Records:        len(resp.Records),
		ProcessingTime: &elapsed,
	})
	if err := e.send(s.Session, data); err != nil {
		e.logger.Warn("send response failed", "session", s.Session, "error", err)
	}
}

// dispatch routes a request to its object by URI depth.
func (e *Engine) dispatch(s *serverEntry, req *wire.Request) *wire.Response {
	uri, err := model.ParseURI(req.URI)
	if err != nil {
		return &wire.Response{Status: wire.StatusBadRequest}
	}
	obj, ok := e.objects[uri.ObjectID]
	if !ok {
		return &wire.Response{Status: wire.StatusNotFound}
	}

	switch req.Operation {
	case wire.OpRead:
		return e.read(obj, uri)
	case wire.OpWrite:
		return e.write(obj, uri, req.Records)
	case wire.OpExecute:
		if !uri.HasResource() {
			return &wire.Response{Status: wire.StatusMethodNotAllowed}
		}
		return &wire.Response{Status: obj.Execute(uri.InstanceID, uri.ResourceID, req.Payload)}
	case wire.OpCreate:
		return e.create(obj, uri, req.Records)
	case wire.OpDelete:
		if !uri.HasInstance() || uri.HasResource() {
			return &wire.Response{Status: wire.StatusMethodNotAllowed}
		}
		status := obj.Delete(uri.InstanceID)
		if status == wire.StatusDeleted {
			e.dropObservations(uri)
			e.logObjectState(uri, "DELETED")
		}
		return &wire.Response{Status: status}
	case wire.OpObserve:
		return e.observe(s, obj, uri)
	case wire.OpCancelObserve:
		e.cancelObserve(s, uri)
		return &wire.Response{Status: wire.StatusContent}
	case wire.OpDiscover:
		return e.discover(obj, uri)
	default:
		return &wire.Response{Status: wire.StatusBadRequest}
	}
}

func (e *Engine) read(obj engine.Object, uri model.URI) *wire.Response {
	switch {
	case uri.HasResource():
		records, status := obj.Read(uri.InstanceID, []uint16{uri.ResourceID})
		return &wire.Response{Status: status, Records: wire.FromRecords(records)}

	case uri.HasInstance():
		records, status := obj.Read(uri.InstanceID, nil)
		return &wire.Response{Status: status, Records: wire.FromRecords(records)}

	default:
		resp := &wire.Response{Status: wire.StatusContent}
		for _, id := range obj.InstanceIDs() {
			records, status := obj.Read(id, nil)
			if status != wire.StatusContent {
				continue
			}
			resp.Instances = append(resp.Instances, wire.InstanceRecords{
				ID:      id,
				Records: wire.FromRecords(records),
			})
		}
		return resp
	}
}

func (e *Engine) write(obj engine.Object, uri model.URI, in []wire.Record) *wire.Response {
	if !uri.HasInstance() {
		return &wire.Response{Status: wire.StatusMethodNotAllowed}
	}
	records, err := wire.ToRecords(in)
	if err != nil {
		return &wire.Response{Status: wire.StatusBadRequest}
	}
	if uri.HasResource() {
		if len(records) != 1 {
			return &wire.Response{Status: wire.StatusBadRequest}
		}
		records[0].ID = uri.ResourceID
	}
	return &wire.Response{Status: obj.Write(uri.InstanceID, records)}
}

func (e *Engine) create(obj engine.Object, uri model.URI, in []wire.Record) *wire.Response {
	if uri.HasResource() {
		return &wire.Response{Status: wire.StatusMethodNotAllowed}
	}
	records, err := wire.ToRecords(in)
	if err != nil {
		return &wire.Response{Status: wire.StatusBadRequest}
	}

	existing := obj.InstanceIDs()
	instanceID := uri.InstanceID
	if !uri.HasInstance() {
		instanceID = firstFree(existing)
		if instanceID == model.MaxID {
			return &wire.Response{Status: wire.StatusServiceUnavailable}
		}
	}
	for _, id := range existing {
		if id == instanceID {
			return &wire.Response{Status: wire.StatusBadRequest}
		}
	}

	status := obj.Create(instanceID, records)
	if status != wire.StatusCreated {
		return &wire.Response{Status: status}
	}
	created := model.InstanceURI(uri.ObjectID, instanceID)
	e.logObjectState(created, "CREATED")
	return &wire.Response{Status: status, Payload: []byte(created.String())}
}

func (e *Engine) discover(obj engine.Object, uri model.URI) *wire.Response {
	if uri.HasResource() {
		return &wire.Response{Status: wire.StatusMethodNotAllowed}
	}

	prefix := "</" + strconv.Itoa(int(uri.ObjectID))
	if !uri.HasInstance() {
		links := []string{prefix + ">"}
		for _, id := range obj.InstanceIDs() {
			links = append(links, prefix+"/"+strconv.Itoa(int(id))+">")
		}
		return &wire.Response{Status: wire.StatusContent, Payload: []byte(strings.Join(links, ","))}
	}

	lister, ok := obj.(engine.ResourceLister)
	if !ok {
		return &wire.Response{Status: wire.StatusNotImplemented}
	}
	ids, status := lister.ResourceIDs(uri.InstanceID)
	if status != wire.StatusContent {
		return &wire.Response{Status: status}
	}
	prefix += "/" + strconv.Itoa(int(uri.InstanceID))
	links := []string{prefix + ">"}
	for _, id := range ids {
		links = append(links, prefix+"/"+strconv.Itoa(int(id))+">")
	}
	return &wire.Response{Status: wire.StatusContent, Payload: []byte(strings.Join(links, ","))}
}

// firstFree returns the lowest ID missing from the ascending ids, or
// model.MaxID when none is left.
func firstFree(ids []uint16) uint16 {
	var next uint16
	for _, id := range ids {
		if id != next {
			break
		}
		next++
	}
	return next
}

func (e *Engine) logDropped(session *engine.Session, err error) {
	e.logger.Debug("undecodable packet dropped", "session", session, "error", err)
	e.plog.Log(log.Event{
		Timestamp:  e.now(),
		SessionID:  e.sessionID,
		Direction:  log.DirectionIn,
		Layer:      log.LayerWire,
		Category:   log.CategoryError,
		Endpoint:   e.endpoint,
		RemoteAddr: session.String(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: "decode packet",
		},
	})
}

func (e *Engine) logObjectState(uri model.URI, state string) {
	e.plog.Log(log.Event{
		Timestamp: e.now(),
		SessionID: e.sessionID,
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		Endpoint:  e.endpoint,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityObject,
			NewState: state,
			Reason:   uri.String(),
		},
	})
}
