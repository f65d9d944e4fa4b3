package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbernard31/lualwm2m/pkg/config"
)

func TestSplitServer(t *testing.T) {
	tests := []struct {
		entry    string
		wantHost string
		wantPort uint16
		wantErr  bool
	}{
		{"localhost", "localhost", 0, false},
		{"10.0.0.5:5684", "10.0.0.5", 5684, false},
		{"[::1]:5683", "::1", 5683, false},
		{"host:0", "", 0, true},
		{"host:99999", "", 0, true},
		{"host:abc", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			host, port, err := splitServer(tt.entry)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestBuildConfigFromFlags(t *testing.T) {
	cfg, err := buildConfig(Flags{
		Script:   "sensor.lua",
		Endpoint: "sensor-1",
		Servers:  serverList{"localhost", "10.0.0.5:5684"},
		Lifetime: 60,
		Binding:  "UQ",
		Metrics:  ":9090",
	})
	require.NoError(t, err)

	assert.Equal(t, "sensor-1", cfg.Endpoint)
	assert.Equal(t, config.DefaultListenAddress, cfg.Listen)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, uint16(1), cfg.Servers[0].ShortID)
	assert.Equal(t, uint16(config.DefaultServerPort), cfg.Servers[0].Port)
	assert.Equal(t, 60, cfg.Servers[0].Lifetime)
	assert.Equal(t, "UQ", cfg.Servers[0].Binding)
	assert.Equal(t, uint16(2), cfg.Servers[1].ShortID)
	assert.Equal(t, uint16(5684), cfg.Servers[1].Port)
}

func TestBuildConfigMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: from-file
script: file.lua
servers:
  - short_id: 4
    host: lwm2m.example.com
`), 0o600))

	cfg, err := buildConfig(Flags{
		ConfigFile: path,
		Endpoint:   "override",
		Servers:    serverList{"localhost:5683"},
		Lifetime:   config.DefaultLifetime,
		Binding:    config.DefaultBinding,
	})
	require.NoError(t, err)

	assert.Equal(t, "override", cfg.Endpoint)
	assert.Equal(t, "file.lua", cfg.Script)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, uint16(4), cfg.Servers[0].ShortID)
	assert.Equal(t, uint16(5), cfg.Servers[1].ShortID)
}

func TestBuildConfigRejectsInvalid(t *testing.T) {
	_, err := buildConfig(Flags{Script: "x.lua"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = buildConfig(Flags{Script: "x.lua", Endpoint: "ep", Servers: serverList{"h"}, Binding: "Z"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = buildConfig(Flags{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}
