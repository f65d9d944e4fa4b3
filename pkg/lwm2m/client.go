package lwm2m

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/engine"
	"github.com/sbernard31/lualwm2m/pkg/engine/local"
	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/object"
	"github.com/sbernard31/lualwm2m/pkg/script"
	"github.com/sbernard31/lualwm2m/pkg/subscription"
)

// Client errors.
var (
	ErrEmptyEndpoint = errors.New("endpoint name is empty")
	ErrNoObjects     = errors.New("object list is empty")
	ErrNoSendHandler = errors.New("send handler is nil")
	ErrBadObject     = errors.New("invalid object definition")
	ErrClosed        = errors.New("client is closed")
	ErrURISyntax     = errors.New("resource uri syntax error")
)

// SendHandler delivers an outbound datagram to host:port.
type SendHandler func(data []byte, host string, port uint16) error

// Option configures a Client.
type Option func(*options)

type options struct {
	factory  engine.Factory
	logger   *slog.Logger
	plog     log.Logger
	observer object.Observer
	notify   *subscription.Config
}

// WithEngineFactory replaces the default local engine.
func WithEngineFactory(f engine.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithLogger sets the operational logger, shared with bindings and the
// default engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProtocolLogger records protocol events.
func WithProtocolLogger(logger log.Logger) Option {
	return func(o *options) { o.plog = logger }
}

// WithObserver receives the outcome of every object operation.
func WithObserver(obs object.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithNotifyConfig sets the notification pacing of the default engine.
func WithNotifyConfig(cfg subscription.Config) Option {
	return func(o *options) { o.notify = &cfg }
}

// Client is the context of one LWM2M endpoint.
type Client struct {
	endpoint  string
	sessionID string

	engine   engine.Engine
	send     SendHandler
	bindings []*object.Binding

	logger *slog.Logger
	plog   log.Logger
}

// Init binds every object table and builds the engine. Each table needs a
// numeric id field. On failure every binding already made is closed.
func Init(L *lua.LState, endpoint string, objects []*lua.LTable, send SendHandler, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	if len(objects) == 0 {
		return nil, ErrNoObjects
	}
	if send == nil {
		return nil, ErrNoSendHandler
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		endpoint:  endpoint,
		sessionID: uuid.NewString(),
		send:      send,
		logger:    o.logger,
		plog:      log.OrNoop(o.plog),
	}

	bindOpts := []object.Option{object.WithLogger(o.logger)}
	if o.observer != nil {
		bindOpts = append(bindOpts, object.WithObserver(o.observer))
	}

	engineObjects := make([]engine.Object, 0, len(objects))
	for i, table := range objects {
		b, err := bindTable(L, table, i, bindOpts)
		if err != nil {
			c.unbind()
			return nil, err
		}
		c.bindings = append(c.bindings, b)
		engineObjects = append(engineObjects, b)
	}

	factory := o.factory
	if factory == nil {
		localOpts := []local.Option{
			local.WithLogger(o.logger),
			local.WithProtocolLogger(c.plog, c.sessionID),
		}
		if o.notify != nil {
			localOpts = append(localOpts, local.WithNotifyConfig(*o.notify))
		}
		factory = local.Factory(localOpts...)
	}
	eng, err := factory(endpoint, engineObjects, c.sendTo)
	if err != nil {
		c.unbind()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	c.engine = eng

	c.logState("", "OPEN", endpoint)
	c.logger.Info("lwm2m client initialized", "endpoint", endpoint, "objects", len(c.bindings), "session_id", c.sessionID)
	return c, nil
}

func bindTable(L *lua.LState, table *lua.LTable, index int, opts []object.Option) (*object.Binding, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: object #%d is not a table", ErrBadObject, index+1)
	}
	id, ok := script.ToUint16(L.GetField(table, "id"))
	if !ok {
		return nil, fmt.Errorf("%w: object #%d has no numeric id", ErrBadObject, index+1)
	}
	return object.Bind(L, table, id, opts...)
}

func (c *Client) unbind() {
	for _, b := range c.bindings {
		b.Close()
	}
	c.bindings = nil
}

// sendTo is the engine's SendFunc. It fails once the send handler has been
// released.
func (c *Client) sendTo(session *engine.Session, data []byte) error {
	if c.send == nil {
		return ErrClosed
	}
	return c.send(data, session.Host, session.Port)
}

// Endpoint returns the endpoint name.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// SessionID returns the identifier tagging this client's protocol events.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	return c.engine == nil
}

// Objects returns the bound objects in definition order.
func (c *Client) Objects() []*object.Binding {
	return c.bindings
}

// Object returns the binding for objectID.
func (c *Client) Object(objectID uint16) (*object.Binding, bool) {
	for _, b := range c.bindings {
		if b.ID() == objectID {
			return b, true
		}
	}
	return nil, false
}

// AddServer configures a server. The session address is handed to the
// engine, which owns it from then on. Security is always off.
func (c *Client) AddServer(shortID uint16, host string, port uint16, lifetime time.Duration, sms string, binding model.Binding) error {
	if c.engine == nil {
		return ErrClosed
	}
	session := &engine.Session{Host: host, Port: port}
	cfg := engine.ServerConfig{
		ShortID:  shortID,
		Lifetime: lifetime,
		SMS:      sms,
		Binding:  binding,
	}
	if err := c.engine.AddServer(cfg, session); err != nil {
		return err
	}
	c.logState("", "SERVER_ADDED", session.String())
	return nil
}

// Servers returns the engine's server entries.
func (c *Client) Servers() []*engine.Server {
	if c.engine == nil {
		return nil
	}
	return c.engine.Servers()
}

// Register starts registration with every configured server.
func (c *Client) Register() error {
	if c.engine == nil {
		return ErrClosed
	}
	return c.engine.Register()
}

// Step runs one engine tick and returns the suggested wait before the next.
func (c *Client) Step(timeout time.Duration) (time.Duration, error) {
	if c.engine == nil {
		return 0, ErrClosed
	}
	return c.engine.Step(timeout)
}

// HandlePacket forwards a datagram from host:port to the engine. Packets
// from an address that matches no server are dropped without error.
func (c *Client) HandlePacket(data []byte, host string, port uint16) error {
	if c.engine == nil {
		return ErrClosed
	}
	for _, s := range c.engine.Servers() {
		if s.Session.Equal(host, port) {
			c.engine.HandlePacket(data, s.Session)
			return nil
		}
	}
	c.logger.Debug("packet from unknown server dropped", "host", host, "port", port)
	return nil
}

// ResourceChanged tells the engine that the value at uri changed.
func (c *Client) ResourceChanged(uri string) error {
	if c.engine == nil {
		return ErrClosed
	}
	u, err := model.ParseURI(uri)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURISyntax, err)
	}
	c.engine.ResourceValueChanged(u)
	return nil
}

// Close shuts the engine down, then releases the send handler. Calling
// Close again does nothing.
func (c *Client) Close() {
	if c.engine == nil {
		return
	}
	c.engine.Close()
	c.unbind()
	c.send = nil
	c.engine = nil

	c.logState("OPEN", "CLOSED", "")
	c.logger.Info("lwm2m client closed", "endpoint", c.endpoint)
}

func (c *Client) logState(old, state, reason string) {
	c.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		Endpoint:  c.endpoint,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: old,
			NewState: state,
			Reason:   reason,
		},
	})
}
