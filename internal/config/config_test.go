package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/voxflux/internal/action"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("VOXFLUX_TEST_TOKEN", "tok-123")

	path := writeFile(t, "config.yaml", `
gateway: wss://gw.example.com/signal
voice:
  store_audio_devices: true
devices:
  - token: ${VOXFLUX_TEST_TOKEN}
    options:
      codecs: [opus, pcmu]
      ice_servers:
        - urls: ["stun:stun.example.com:3478"]
        - urls: ["turn:turn.example.com:3478"]
          username: alice
          credential: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, action.DefaultPrefix, cfg.Voice.Prefix)
	assert.True(t, cfg.Voice.StoreAudioDevices)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, action.DefaultDeviceID, cfg.Devices[0].ID)
	assert.Equal(t, "tok-123", cfg.Devices[0].Token)

	opts := cfg.Devices[0].Options.PhoneOptions()
	assert.Equal(t, []string{"opus", "pcmu"}, opts.CodecPreferences)
	require.Len(t, opts.ICEServers, 2)
	assert.Equal(t, webrtc.ICEServer{URLs: []string{"stun:stun.example.com:3478"}}, opts.ICEServers[0])
	assert.Equal(t, "alice", opts.ICEServers[1].Username)
	assert.Equal(t, "secret", opts.ICEServers[1].Credential)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "listen: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := writeFile(t, ".env", "VOXFLUX_DOTENV_PROBE=42\n")
	t.Cleanup(func() { os.Unsetenv("VOXFLUX_DOTENV_PROBE") })
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "42", os.Getenv("VOXFLUX_DOTENV_PROBE"))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Gateway = "ws://localhost:9000"
		cfg.Devices = []DeviceEntry{{ID: "desk", Token: "t"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "prefix with separator", mutate: func(c *Config) { c.Voice.Prefix = "a::b" }, wantErr: "must not contain"},
		{name: "http gateway", mutate: func(c *Config) { c.Gateway = "http://x" }, wantErr: "only ws/wss"},
		{name: "invalid device id", mutate: func(c *Config) { c.Devices[0].ID = "front desk" }, wantErr: "invalid device id"},
		{name: "devices without gateway", mutate: func(c *Config) { c.Gateway = "" }, wantErr: "require a gateway"},
		{name: "duplicate device", mutate: func(c *Config) {
			c.Devices = append(c.Devices, DeviceEntry{ID: "desk", Token: "u"})
		}, wantErr: "duplicate device id"},
		{name: "missing token", mutate: func(c *Config) { c.Devices[0].Token = " " }, wantErr: "token is required"},
		{name: "ice server without urls", mutate: func(c *Config) {
			c.Devices[0].Options.ICEServers = []ICEServer{{Username: "u"}}
		}, wantErr: "without urls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Setenv(EnvListen, "0.0.0.0:9000")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvGateway, "")

	cfg := Default()
	cfg.Gateway = "wss://gw.example.com"
	cfg.ApplyEnv()

	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "wss://gw.example.com", cfg.Gateway)
}

func TestOriginAllowed(t *testing.T) {
	cfg := Config{AllowedOrigins: []string{"https://console.example/"}}
	assert.True(t, cfg.OriginAllowed("https://console.example"))
	assert.True(t, cfg.OriginAllowed("HTTPS://CONSOLE.EXAMPLE"))
	assert.False(t, cfg.OriginAllowed("https://other.example"))

	assert.False(t, Config{}.OriginAllowed("https://console.example"))
	assert.True(t, Config{AllowedOrigins: []string{"*"}}.OriginAllowed("https://any.example"))
}
