// Package config loads the voxflux server configuration and resolves the
// on-disk layout of an instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/phone"
	"github.com/nupi-ai/voxflux/internal/validate"
)

// DefaultListen is the HTTP API address used when none is configured.
const DefaultListen = "127.0.0.1:8470"

// Config is the top-level server configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Gateway        string        `yaml:"gateway"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`
	Voice          VoiceConfig   `yaml:"voice"`
	Devices        []DeviceEntry `yaml:"devices"`
}

// Environment variables overriding the file.
const (
	EnvListen   = "VOXFLUX_LISTEN"
	EnvGateway  = "VOXFLUX_GATEWAY"
	EnvLogLevel = "VOXFLUX_LOG_LEVEL"
)

// VoiceConfig mirrors the middleware options.
type VoiceConfig struct {
	Prefix            string `yaml:"prefix"`
	StoreAudioDevices bool   `yaml:"store_audio_devices"`
	ConnectOnIncoming bool   `yaml:"connect_on_incoming"`
}

// DeviceEntry is a client set up as soon as the server starts.
type DeviceEntry struct {
	ID      string        `yaml:"id"`
	Token   string        `yaml:"token"` //nolint:gosec // configuration field, usually ${VAR}
	Options ClientOptions `yaml:"options"`
}

// ClientOptions is the YAML form of phone.Options.
type ClientOptions struct {
	Sounds            map[string]string `yaml:"sounds"`
	Codecs            []string          `yaml:"codecs"`
	ICEServers        []ICEServer       `yaml:"ice_servers"`
	MaxAverageBitrate int               `yaml:"max_average_bitrate"`
	DSCP              bool              `yaml:"dscp"`
	CloseProtection   bool              `yaml:"close_protection"`
	Edge              []string          `yaml:"edge"`
	Debug             bool              `yaml:"debug"`
}

// ICEServer is a STUN or TURN server.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"` //nolint:gosec // configuration field
}

// PhoneOptions converts o into the options handed to a client.
func (o ClientOptions) PhoneOptions() phone.Options {
	opts := phone.Options{
		Sounds:            o.Sounds,
		CodecPreferences:  o.Codecs,
		MaxAverageBitrate: o.MaxAverageBitrate,
		DSCP:              o.DSCP,
		CloseProtection:   o.CloseProtection,
		Edge:              o.Edge,
		Debug:             o.Debug,
	}
	for _, s := range o.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		opts.ICEServers = append(opts.ICEServers, server)
	}
	return opts
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Listen:   DefaultListen,
		LogLevel: "info",
		Voice:    VoiceConfig{Prefix: action.DefaultPrefix},
	}
}

// Load reads a YAML file and returns a Config. ${VAR} references are
// expanded before parsing so tokens can live in the environment.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides listen address, gateway and log level from the
// environment when the corresponding variables are set.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGateway)); v != "" {
		c.Gateway = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}

// OriginAllowed reports whether origin is listed in AllowedOrigins.
func (c Config) OriginAllowed(origin string) bool {
	origin = strings.TrimRight(origin, "/")
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	if strings.TrimSpace(c.Voice.Prefix) == "" {
		c.Voice.Prefix = action.DefaultPrefix
	}
	for i := range c.Devices {
		if strings.TrimSpace(c.Devices[i].ID) == "" {
			c.Devices[i].ID = action.DefaultDeviceID
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if strings.Contains(c.Voice.Prefix, action.Separator) {
		return fmt.Errorf("config: voice prefix %q must not contain %q", c.Voice.Prefix, action.Separator)
	}

	if c.Gateway != "" {
		if err := validate.GatewayURL(c.Gateway); err != nil {
			return fmt.Errorf("config: gateway: %w", err)
		}
	}

	if len(c.Devices) > 0 && c.Gateway == "" {
		return fmt.Errorf("config: devices require a gateway")
	}

	seen := make(map[string]struct{}, len(c.Devices))
	for _, d := range c.Devices {
		if !validate.Ident(d.ID) {
			return fmt.Errorf("config: invalid device id %q", d.ID)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("config: duplicate device id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
		if strings.TrimSpace(d.Token) == "" {
			return fmt.Errorf("config: device %q: token is required", d.ID)
		}
		for _, s := range d.Options.ICEServers {
			if len(s.URLs) == 0 {
				return fmt.Errorf("config: device %q: ice server without urls", d.ID)
			}
		}
	}

	return nil
}
