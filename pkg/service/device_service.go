package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/config"
	"github.com/sbernard31/lualwm2m/pkg/discovery"
	"github.com/sbernard31/lualwm2m/pkg/engine"
	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/luabind"
	"github.com/sbernard31/lualwm2m/pkg/lwm2m"
	"github.com/sbernard31/lualwm2m/pkg/metrics"
	"github.com/sbernard31/lualwm2m/pkg/model"
	"github.com/sbernard31/lualwm2m/pkg/transport"
)

// Option configures a DeviceService.
type Option func(*DeviceService)

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DeviceService) { s.logger = logger }
}

// WithProtocolLogger records protocol events of the client and socket.
func WithProtocolLogger(logger log.Logger) Option {
	return func(s *DeviceService) { s.protocolLogger = logger }
}

// WithMetrics feeds object operations and traffic into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *DeviceService) { s.metrics = c }
}

type command struct {
	fn   func(*lwm2m.Client) error
	done chan error
}

// DeviceService runs one script-defined LWM2M client.
type DeviceService struct {
	mu sync.RWMutex

	config config.Config
	state  ServiceState

	L          *lua.LState
	client     *lwm2m.Client
	udp        *transport.UDP
	advertiser *discovery.Advertiser

	metrics       *metrics.Collector
	metricsServer *metrics.Server

	logger         *slog.Logger
	protocolLogger log.Logger

	eventHandlers []EventHandler
	serverStates  map[uint16]engine.ServerState

	packets  chan transport.Packet
	commands chan command
	done     chan struct{}
	loopDone chan struct{}
	running  bool

	stopOnce sync.Once
}

// NewDeviceService creates a service for cfg. The configuration is
// defaulted and validated.
func NewDeviceService(cfg config.Config, opts ...Option) (*DeviceService, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &DeviceService{
		config:       cfg,
		state:        StateIdle,
		serverStates: make(map[uint16]engine.ServerState),
		packets:      make(chan transport.Packet, 16),
		commands:     make(chan command),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

// State returns the current service state.
func (s *DeviceService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LocalAddr returns the UDP address of the client, nil before Start.
func (s *DeviceService) LocalAddr() *net.UDPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr()
}

// OnEvent registers an event handler.
func (s *DeviceService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// Start loads the script, opens the socket, initializes the client, adds
// the configured servers and starts registration.
func (s *DeviceService) Start(ctx context.Context) error {
	events, err := s.start(ctx)
	s.emit(events...)
	return err
}

func (s *DeviceService) start(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return nil, ErrAlreadyStarted
	}

	protocolLogger := s.protocolLogger
	if s.metrics != nil {
		protocolLogger = log.NewMultiLogger(protocolLogger, s.metrics)
	}

	s.L = lua.NewState()
	clientOpts := []lwm2m.Option{
		lwm2m.WithLogger(s.logger),
		lwm2m.WithProtocolLogger(protocolLogger),
		lwm2m.WithNotifyConfig(s.config.Notify.Subscription()),
	}
	if s.metrics != nil {
		clientOpts = append(clientOpts, lwm2m.WithObserver(s.metrics))
	}
	luabind.Preload(s.L, clientOpts...)

	objects, err := LoadObjects(s.L, s.config.Script)
	if err != nil {
		s.cleanupLocked()
		return nil, err
	}

	client, err := lwm2m.Init(s.L, s.config.Endpoint, objects, s.send, clientOpts...)
	if err != nil {
		s.cleanupLocked()
		return nil, fmt.Errorf("init client: %w", err)
	}
	s.client = client

	udp, err := transport.Listen(s.config.Listen, transport.WithProtocolLogger(protocolLogger, client.SessionID()))
	if err != nil {
		s.cleanupLocked()
		return nil, err
	}
	s.udp = udp
	s.logger.Info("listening", "addr", udp.LocalAddr().String(), "endpoint", s.config.Endpoint)

	for _, srv := range s.config.Servers {
		if err := s.addServer(ctx, srv); err != nil {
			s.cleanupLocked()
			return nil, err
		}
	}

	if len(s.config.Servers) > 0 {
		if err := client.Register(); err != nil {
			s.logger.Warn("registration failed to start", "error", err)
		}
	}

	if s.config.Advertise {
		s.advertise(ctx)
	}

	if s.config.MetricsAddr != "" {
		if s.metrics == nil {
			s.logger.Warn("metrics address set without a collector", "addr", s.config.MetricsAddr)
		} else if srv, err := metrics.Serve(s.config.MetricsAddr, s.metrics, s.logger); err != nil {
			s.logger.Warn("metrics server not started", "error", err)
		} else {
			s.metricsServer = srv
			s.logger.Info("metrics server listening", "addr", srv.Addr().String())
		}
	}

	s.state = StateRunning
	return append([]Event{{Type: EventStarted}}, s.serverStateEventsLocked()...), nil
}

// send is the client's send handler.
func (s *DeviceService) send(data []byte, host string, port uint16) error {
	if s.udp == nil {
		return transport.ErrClosed
	}
	return s.udp.Send(data, host, port)
}

// addServer resolves the server host so inbound packets, which carry an IP
// address, match the session.
func (s *DeviceService) addServer(ctx context.Context, srv config.ServerConfig) error {
	binding, err := model.ParseBinding(srv.Binding)
	if err != nil {
		return err
	}
	host, err := resolveHost(ctx, srv.Host)
	if err != nil {
		return fmt.Errorf("server %d: %w", srv.ShortID, err)
	}
	if err := s.client.AddServer(srv.ShortID, host, srv.Port, srv.LifetimeDuration(), srv.SMS, binding); err != nil {
		return fmt.Errorf("server %d: %w", srv.ShortID, err)
	}
	s.logger.Info("server added", "short_id", srv.ShortID, "host", host, "port", srv.Port)
	return nil
}

func resolveHost(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP.String(), nil
		}
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no address for %s", host)
	}
	return addrs[0].IP.String(), nil
}

func (s *DeviceService) advertise(ctx context.Context) {
	ids := make([]uint16, 0, len(s.client.Objects()))
	for _, b := range s.client.Objects() {
		ids = append(ids, b.ID())
	}
	cfg := discovery.DefaultConfig()
	cfg.Interface = s.config.Interface

	s.advertiser = discovery.NewAdvertiser(cfg)
	info := &discovery.ClientInfo{
		Endpoint:  s.config.Endpoint,
		Port:      uint16(s.udp.LocalAddr().Port),
		ObjectIDs: ids,
		Servers:   len(s.config.Servers),
	}
	if err := s.advertiser.Advertise(ctx, info); err != nil {
		s.logger.Warn("mDNS advertisement failed", "error", err)
	}
}

// Run drives the client until ctx is done or Stop is called. It must be
// called once, after Start.
func (s *DeviceService) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	udp := s.udp
	s.mu.Unlock()

	defer close(s.loopDone)
	go s.readLoop(udp)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.done:
			return nil

		case pkt := <-s.packets:
			if err := s.client.HandlePacket(pkt.Data, pkt.Host, pkt.Port); err != nil {
				s.logger.Warn("packet not handled", "error", err)
			}
			s.checkServerStates()

		case cmd := <-s.commands:
			cmd.done <- cmd.fn(s.client)
			s.checkServerStates()

		case <-timer.C:
			timer.Reset(s.step())
		}
	}
}

// step runs one engine tick and returns the delay before the next one.
func (s *DeviceService) step() time.Duration {
	wait, err := s.client.Step(s.config.StepTimeout)
	if err != nil {
		s.logger.Warn("step failed", "error", err)
		s.emit(Event{Type: EventStepFailed, Error: err})
		return s.config.StepInterval
	}
	s.checkServerStates()
	if wait <= 0 || wait > s.config.StepInterval {
		wait = s.config.StepInterval
	}
	return wait
}

// readLoop moves datagrams into the packet channel until the socket closes.
func (s *DeviceService) readLoop(udp *transport.UDP) {
	for {
		pkt, err := udp.Receive(0)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return
			}
			s.logger.Debug("receive failed", "error", err)
			continue
		}
		select {
		case s.packets <- pkt:
		case <-s.done:
			return
		}
	}
}

// Do runs fn with the client on the loop goroutine and returns its error.
func (s *DeviceService) Do(ctx context.Context, fn func(*lwm2m.Client) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the client, deregistering from the servers, then releases
// the socket, the advertisement and the Lua state. Stop is idempotent.
func (s *DeviceService) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.RLock()
		running := s.running
		s.mu.RUnlock()
		if running {
			<-s.loopDone
		}

		s.mu.Lock()
		wasRunning := s.state == StateRunning
		err = s.cleanupLocked()
		s.state = StateStopped
		s.mu.Unlock()

		if wasRunning {
			s.emit(Event{Type: EventStopped})
		}
	})
	return err
}

func (s *DeviceService) cleanupLocked() error {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	var err error
	if s.udp != nil {
		err = s.udp.Close()
		s.udp = nil
	}
	if s.advertiser != nil {
		s.advertiser.Stop()
		s.advertiser = nil
	}
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.metricsServer.Shutdown(ctx)
		cancel()
		s.metricsServer = nil
	}
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
	return err
}

func (s *DeviceService) checkServerStates() {
	s.mu.Lock()
	events := s.serverStateEventsLocked()
	s.mu.Unlock()
	s.emit(events...)
}

func (s *DeviceService) serverStateEventsLocked() []Event {
	if s.client == nil {
		return nil
	}
	var events []Event
	for _, srv := range s.client.Servers() {
		old, known := s.serverStates[srv.ShortID]
		if known && old == srv.State {
			continue
		}
		s.serverStates[srv.ShortID] = srv.State
		s.logger.Info("server state", "short_id", srv.ShortID, "state", srv.State.String())
		events = append(events, Event{Type: EventServerStateChanged, ShortID: srv.ShortID, State: srv.State})
	}
	return events
}

// emit calls the event handlers outside the service lock.
func (s *DeviceService) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.mu.RLock()
	handlers := slices.Clone(s.eventHandlers)
	s.mu.RUnlock()

	for _, e := range events {
		for _, h := range handlers {
			h(e)
		}
	}
}
