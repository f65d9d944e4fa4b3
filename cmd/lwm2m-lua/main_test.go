package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbernard31/lualwm2m/pkg/log"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lua")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunScriptWithModules(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	script := writeScript(t, `
local lwm2m = require "lwm2m"
local udp = require "udp"

local sock = udp.listen("127.0.0.1:0")
local ip, port = sock:getsockname()
assert(ip == "127.0.0.1" and port > 0)

local info = {}
function info:read(id) return 0x45, "ACME" end
function info:list() return { 0 } end
local device = { id = 3 }
device[0] = info

local ll = lwm2m.init(arg[1], { device }, function(data, host, port)
  sock:sendto(data, host, port)
end)
ll:addserver(1, "127.0.0.1", port, 60, "", "U")
local ok, err = ll:register()
assert(err == nil, err)

local data, host, from = sock:receivefrom(2)
assert(data ~= nil, "no registration datagram")

ll:close()
sock:close()

local f = assert(io.open(arg[2], "w"))
f:write("ok ", arg[1])
f:close()
`)

	logPath := filepath.Join(t.TempDir(), "lua"+log.FileExtension)
	require.NoError(t, run(context.Background(), []string{script, "lua-client", out}, discard(), logPath))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ok lua-client", string(data))

	reader, err := log.NewReader(logPath)
	require.NoError(t, err)
	defer reader.Close()
	_, err = reader.Next()
	assert.NoError(t, err, "expected protocol events in the log")
}

func TestRunScriptError(t *testing.T) {
	script := writeScript(t, `error("boom")`)
	err := run(context.Background(), []string{script}, discard(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunMissingScript(t *testing.T) {
	err := run(context.Background(), []string{filepath.Join(t.TempDir(), "nope.lua")}, discard(), "")
	assert.Error(t, err)
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	script := writeScript(t, `while true do end`)
	assert.NoError(t, run(ctx, []string{script}, discard(), ""))
}
