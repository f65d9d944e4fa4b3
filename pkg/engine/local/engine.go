package local

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/sbernard31/lualwm2m/pkg/engine"
	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/subscription"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProtocolLogger records every frame sent and received. sessionID tags
// the events.
func WithProtocolLogger(logger log.Logger, sessionID string) Option {
	return func(e *Engine) {
		e.plog = log.OrNoop(logger)
		e.sessionID = sessionID
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithNotifyConfig sets the pacing of observation notifications.
func WithNotifyConfig(cfg subscription.Config) Option {
	return func(e *Engine) { e.notifyConfig = cfg }
}

// serverEntry is the engine-side state of one server.
type serverEntry struct {
	*engine.Server
	registeredAt time.Time
}

// Engine drives a set of objects for one endpoint.
type Engine struct {
	endpoint string
	objects  map[uint16]engine.Object
	ids      []uint16
	send     engine.SendFunc

	servers []*serverEntry
	pending map[uint32]pendingRequest

	observations []*observation
	changed      []model.URI
	notifyConfig subscription.Config

	nextMessageID uint32
	closed        bool

	logger    *slog.Logger
	plog      log.Logger
	sessionID string
	now       func() time.Time
}

// New builds an engine. It has the signature of engine.Factory once the
// options are bound, see Factory.
func New(endpoint string, objects []engine.Object, send engine.SendFunc, opts ...Option) (*Engine, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("local engine: empty endpoint")
	}
	if send == nil {
		return nil, fmt.Errorf("local engine: nil send function")
	}

	e := &Engine{
		endpoint:      endpoint,
		objects:       make(map[uint16]engine.Object, len(objects)),
		send:          send,
		pending:       make(map[uint32]pendingRequest),
		nextMessageID: 1,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		plog:          log.NoopLogger{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.notifyConfig.Validate(); err != nil {
		return nil, fmt.Errorf("local engine: %w", err)
	}

	for _, obj := range objects {
		if _, dup := e.objects[obj.ID()]; dup {
			return nil, fmt.Errorf("local engine: duplicate object %d", obj.ID())
		}
		e.objects[obj.ID()] = obj
		e.ids = append(e.ids, obj.ID())
	}
	sort.Slice(e.ids, func(i, j int) bool { return e.ids[i] < e.ids[j] })

	return e, nil
}

// Factory returns an engine.Factory building local engines with opts.
func Factory(opts ...Option) engine.Factory {
	return func(endpoint string, objects []engine.Object, send engine.SendFunc) (engine.Engine, error) {
		return New(endpoint, objects, send, opts...)
	}
}

// AddServer adds a server entry. The engine keeps session for as long as
// the entry exists.
func (e *Engine) AddServer(cfg engine.ServerConfig, session *engine.Session) error {
	if e.closed {
		return engine.ErrClosed
	}
	if session == nil {
		return engine.ErrNilSession
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, s := range e.servers {
		if s.ShortID == cfg.ShortID {
			return fmt.Errorf("%w: %d", engine.ErrDuplicateServer, cfg.ShortID)
		}
	}

	e.servers = append(e.servers, &serverEntry{
		Server: &engine.Server{
			ServerConfig: cfg,
			Session:      session,
			State:        engine.StateDeregistered,
		},
	})
	e.logger.Debug("server added", "short_id", cfg.ShortID, "session", session)
	return nil
}

// Servers returns the server entries in the order they were added.
func (e *Engine) Servers() []*engine.Server {
	out := make([]*engine.Server, len(e.servers))
	for i, s := range e.servers {
		out[i] = s.Server
	}
	return out
}

// Close deregisters from every registered server and closes the objects.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	for _, s := range e.servers {
		if s.State == engine.StateRegistered {
			e.deregister(s)
		}
		e.setState(s, engine.StateDeregistered, "engine closed")
	}
	for _, id := range e.ids {
		e.objects[id].Close()
	}
	e.observations = nil
	e.changed = nil
	e.logger.Debug("engine closed", "endpoint", e.endpoint)
}

func (e *Engine) serverFor(session *engine.Session) *serverEntry {
	if session == nil {
		return nil
	}
	for _, s := range e.servers {
		if s.Session == session || s.Session.Equal(session.Host, session.Port) {
			return s
		}
	}
	return nil
}

func (e *Engine) messageID() uint32 {
	id := e.nextMessageID
	e.nextMessageID++
	if e.nextMessageID == 0 {
		e.nextMessageID = 1
	}
	return id
}

// links lists every object and instance in CoRE link format.
func (e *Engine) links() string {
	objects := make([]model.ObjectLinks, 0, len(e.ids))
	for _, id := range e.ids {
		objects = append(objects, model.ObjectLinks{
			ObjectID:    id,
			InstanceIDs: e.objects[id].InstanceIDs(),
		})
	}
	return model.FormatLinks(objects)
}

var _ engine.Engine = (*Engine)(nil)
