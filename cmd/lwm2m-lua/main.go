// Command lwm2m-lua runs a Lua script with the lwm2m and udp modules
// available to require.
//
// The script owns the client loop: it creates the client, adds servers,
// registers and feeds received datagrams to handle.
//
// Usage:
//
//	lwm2m-lua [flags] <script.lua> [args...]
//
// Flags:
//
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write protocol events to this file
//
// Script arguments are exposed in the global table arg, with the script
// path at index 0.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	lua "github.com/yuin/gopher-lua"

	"github.com/sbernard31/lualwm2m/pkg/log"
	"github.com/sbernard31/lualwm2m/pkg/luabind"
	"github.com/sbernard31/lualwm2m/pkg/lwm2m"
	"github.com/sbernard31/lualwm2m/pkg/transport"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog := flag.String("protocol-log", "", "Write protocol events to this file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lwm2m-lua [flags] <script.lua> [args...]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: script path required")
		flag.Usage()
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args(), logger, *protocolLog); err != nil {
		logger.Error("script failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logger *slog.Logger, protocolLog string) error {
	clientOpts := []lwm2m.Option{lwm2m.WithLogger(logger)}
	var udpOpts []transport.Option

	if protocolLog != "" {
		fileLogger, err := log.NewFileLogger(protocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fileLogger.Close()
		clientOpts = append(clientOpts, lwm2m.WithProtocolLogger(fileLogger))
		udpOpts = append(udpOpts, transport.WithProtocolLogger(fileLogger, ""))
	}

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	luabind.Preload(L, clientOpts...)
	luabind.PreloadUDP(L, udpOpts...)
	L.SetGlobal("arg", scriptArgs(L, args))

	if err := L.DoFile(args[0]); err != nil {
		if ctx.Err() != nil {
			logger.Info("script interrupted")
			return nil
		}
		return err
	}
	return nil
}

// scriptArgs builds the arg table: the script at 0, its arguments from 1.
func scriptArgs(L *lua.LState, args []string) *lua.LTable {
	t := L.NewTable()
	for i, a := range args {
		t.RawSetInt(i, lua.LString(a))
	}
	return t
}
