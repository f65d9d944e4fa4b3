// Command lwm2m-client runs an LWM2M client whose objects are defined by a
// Lua script.
//
// Usage:
//
//	lwm2m-client [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-script string        Lua script defining the objects
//	-endpoint string      Client endpoint name
//	-listen string        Local UDP address (default ":56830")
//	-server value         Server as host[:port], repeatable
//	-lifetime int         Registration lifetime in seconds for -server entries
//	-binding string       Binding mode for -server entries (default "U")
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Write protocol events to this file
//	-metrics string       Serve Prometheus metrics on this address
//	-advertise            Advertise the client over mDNS
//	-interactive          Start the interactive console
//	-browse duration      List advertised clients for this long and exit
//
// Examples:
//
//	# Register a temperature sensor with a local server
//	lwm2m-client -endpoint sensor-1 -script sensor.lua -server localhost
//
//	# Run from a config file with the console
//	lwm2m-client -config client.yaml -interactive
//
//	# Find clients advertising on the local network
//	lwm2m-client -browse 5s
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sbernard31/lualwm2m/cmd/lwm2m-client/interactive"
	"github.com/sbernard31/lualwm2m/pkg/config"
	"github.com/sbernard31/lualwm2m/pkg/discovery"
	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/metrics"
	"github.com/sbernard31/lualwm2m/pkg/service"
)

// serverList collects repeated -server flags.
type serverList []string

func (s *serverList) String() string { return strings.Join(*s, ",") }

func (s *serverList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Flags holds the command-line settings.
type Flags struct {
	ConfigFile  string
	Script      string
	Endpoint    string
	Listen      string
	Servers     serverList
	Lifetime    int
	Binding     string
	LogLevel    string
	ProtocolLog string
	Metrics     string
	Advertise   bool
	Interactive bool
	Browse      time.Duration
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "YAML configuration file")
	flag.StringVar(&flags.Script, "script", "", "Lua script defining the objects")
	flag.StringVar(&flags.Endpoint, "endpoint", "", "Client endpoint name")
	flag.StringVar(&flags.Listen, "listen", "", "Local UDP address (default \""+config.DefaultListenAddress+"\")")
	flag.Var(&flags.Servers, "server", "Server as host[:port], repeatable")
	flag.IntVar(&flags.Lifetime, "lifetime", config.DefaultLifetime, "Registration lifetime in seconds for -server entries")
	flag.StringVar(&flags.Binding, "binding", config.DefaultBinding, "Binding mode for -server entries")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write protocol events to this file")
	flag.StringVar(&flags.Metrics, "metrics", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&flags.Advertise, "advertise", false, "Advertise the client over mDNS")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive console")
	flag.DurationVar(&flags.Browse, "browse", 0, "List advertised clients for this long and exit")
}

func main() {
	flag.Parse()

	if flags.Browse > 0 {
		if err := browse(flags.Browse); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := buildConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var console *interactive.Console
	var out io.Writer = os.Stderr
	if flags.Interactive {
		console, err = interactive.New()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out = console.Stdout()
	}
	logger := newLogger(out, cfg.LogLevel)

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			logger.Error("failed to open protocol log", "path", cfg.ProtocolLog, "error", err)
			os.Exit(1)
		}
		defer fileLogger.Close()
		opts = append(opts, service.WithProtocolLogger(fileLogger))
		logger.Info("protocol logging enabled", "path", cfg.ProtocolLog)
	}
	if cfg.MetricsAddr != "" {
		opts = append(opts, service.WithMetrics(metrics.NewCollector()))
	}

	svc, err := service.NewDeviceService(cfg, opts...)
	if err != nil {
		logger.Error("failed to create client service", "error", err)
		os.Exit(1)
	}
	if console != nil {
		console.Attach(svc)
	} else {
		svc.OnEvent(eventLogger(logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start client", "error", err)
		os.Exit(1)
	}
	logger.Info("client started",
		"endpoint", cfg.Endpoint,
		"listen", svc.LocalAddr(),
		"servers", len(cfg.Servers))

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if console != nil {
		go console.Run(ctx, cancel)
	}

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, service.ErrStopped) {
			logger.Error("client loop failed", "error", err)
		}
	}

	logger.Info("shutting down")
	cancel()
	if err := svc.Stop(); err != nil {
		logger.Warn("error stopping client", "error", err)
	}
}

// buildConfig loads the optional config file and applies flag overrides.
func buildConfig(f Flags) (config.Config, error) {
	var cfg config.Config
	if f.ConfigFile != "" {
		loaded, err := config.Read(f.ConfigFile)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	if f.Script != "" {
		cfg.Script = f.Script
	}
	if f.Endpoint != "" {
		cfg.Endpoint = f.Endpoint
	}
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.ProtocolLog = f.ProtocolLog
	}
	if f.Metrics != "" {
		cfg.MetricsAddr = f.Metrics
	}
	if f.Advertise {
		cfg.Advertise = true
	}

	nextID := uint16(1)
	for _, s := range cfg.Servers {
		if s.ShortID >= nextID {
			nextID = s.ShortID + 1
		}
	}
	for _, entry := range f.Servers {
		host, port, err := splitServer(entry)
		if err != nil {
			return cfg, err
		}
		cfg.Servers = append(cfg.Servers, config.ServerConfig{
			ShortID:  nextID,
			Host:     host,
			Port:     port,
			Lifetime: f.Lifetime,
			Binding:  f.Binding,
		})
		nextID++
	}

	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// splitServer parses host[:port]. A missing port leaves 0 for the default.
func splitServer(entry string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(entry)
	if err != nil {
		if strings.Contains(err.Error(), "missing port") {
			return entry, 0, nil
		}
		return "", 0, fmt.Errorf("invalid server %q: %w", entry, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid server port %q", portStr)
	}
	return host, uint16(port), nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func eventLogger(logger *slog.Logger) service.EventHandler {
	return func(event service.Event) {
		switch event.Type {
		case service.EventServerStateChanged:
			logger.Info("server state changed", "server", event.ShortID, "state", event.State)
		case service.EventStepFailed:
			logger.Warn("step failed", "error", event.Error)
		case service.EventStopped:
			logger.Info("client stopped")
		}
	}
}

func browse(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	found, err := discovery.Browse(ctx, discovery.DefaultConfig())
	if err != nil {
		return err
	}

	count := 0
	for svc := range found {
		count++
		fmt.Printf("%s  endpoint=%s port=%d objects=%v servers=%v addresses=%v\n",
			svc.InstanceName, svc.Endpoint, svc.Port, svc.ObjectIDs, svc.Servers, svc.Addresses)
	}
	fmt.Printf("%d client(s) found\n", count)
	return nil
}
