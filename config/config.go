// Package config provides YAML and environment configuration for StationBoard.
//
// This package enables running StationBoard as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// Every connection setting can also come from the environment alone, which
// is how credentials are usually supplied.
//
// Example configuration:
//
//	title: Station Status Monitor
//	port: 8080
//
//	realtime:
//	  url: wss://example.appsync-realtime-api.eu-west-1.amazonaws.com/event/realtime
//	  host: example.appsync-api.eu-west-1.amazonaws.com
//	  token: ${STATIONBOARD_TOKEN}
//	  reconnect:
//	    initial_backoff: 1s
//	    max_backoff: 30s
//
//	stations:
//	  - id: "1"
//	    name: Main Station
//	  - id: "2"
//	    name: Secondary Station
//
// Environment variables with the STATIONBOARD_ prefix override the file:
// TITLE, PORT, SOCKET_URL, HOST, TOKEN, CHANNEL, HANDSHAKE_TIMEOUT and
// RECONNECT.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/stationboard"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "STATIONBOARD"

const (
	defaultPort    = 8080
	defaultChannel = "stations/status"
)

// Config is the root configuration structure for StationBoard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load], [Parse] or [LoadEnv] to create a Config.
type Config struct {
	// Title is the dashboard title. Defaults to "StationBoard" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Realtime holds the event channel connection settings.
	Realtime RealtimeConfig `yaml:"realtime"`

	// Stations lists the known stations in display order.
	// Defaults to the five stock stations.
	Stations []StationConfig `yaml:"stations"`

	// InjectRate limits dashboard test injections per second. 0 uses the
	// SDK default.
	InjectRate float64 `yaml:"inject_rate"`

	// InjectBurst is the injection burst size. 0 uses the SDK default.
	InjectBurst int `yaml:"inject_burst"`
}

// RealtimeConfig defines the realtime connection.
type RealtimeConfig struct {
	// URL is the ws:// or wss:// endpoint.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Host is the API host sent in the credential block.
	Host string `yaml:"host"`

	// Token is the bearer token. Prefer ${VAR} substitution or the
	// STATIONBOARD_TOKEN override over a literal value.
	Token string `yaml:"token"`

	// Channel is the status channel. Defaults to "stations/status".
	Channel string `yaml:"channel"`

	// HandshakeTimeout bounds each dial. 0 uses the SDK default.
	HandshakeTimeout Duration `yaml:"handshake_timeout"`

	// ReadTimeout is how long the connection may stay silent before it is
	// treated as lost. 0 uses the SDK default.
	ReadTimeout Duration `yaml:"read_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig defines the reconnect policy.
type ReconnectConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`

	// MaxAttempts bounds consecutive failed attempts. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
}

// IsEnabled reports whether reconnection is on.
func (r ReconnectConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// StationConfig defines a single station.
type StationConfig struct {
	// ID is the stationId carried by events.
	ID string `yaml:"id"`

	// Name is the display name shown in the dashboard.
	Name string `yaml:"name"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envOverrides lists the STATIONBOARD_* variables. Unset variables leave
// the file value in place.
type envOverrides struct {
	Title            string        `envconfig:"TITLE"`
	Port             int           `envconfig:"PORT"`
	SocketURL        string        `envconfig:"SOCKET_URL"`
	Host             string        `envconfig:"HOST"`
	Token            string        `envconfig:"TOKEN"`
	Channel          string        `envconfig:"CHANNEL"`
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT"`
	Reconnect        *bool         `envconfig:"RECONNECT"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing, then
// STATIONBOARD_* overrides are applied.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadEnv builds a configuration from STATIONBOARD_* environment variables
// alone, with the default station set.
func LoadEnv() (*Config, error) {
	var cfg Config
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the realtime URL, host and token.
// Defaults are applied for Port (8080), Channel ("stations/status") and
// Stations (the five stock stations).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize expands variables, applies overrides and defaults, then validates.
func (c *Config) finalize() error {
	if err := c.expand(); err != nil {
		return err
	}
	if err := c.applyEnv(); err != nil {
		return err
	}
	c.applyDefaults()
	return c.validate()
}

func (c *Config) expand() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"realtime.url", &c.Realtime.URL},
		{"realtime.host", &c.Realtime.Host},
		{"realtime.token", &c.Realtime.Token},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = expanded
	}
	return nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if env.Title != "" {
		c.Title = env.Title
	}
	if env.Port != 0 {
		c.Port = env.Port
	}
	if env.SocketURL != "" {
		c.Realtime.URL = env.SocketURL
	}
	if env.Host != "" {
		c.Realtime.Host = env.Host
	}
	if env.Token != "" {
		c.Realtime.Token = env.Token
	}
	if env.Channel != "" {
		c.Realtime.Channel = env.Channel
	}
	if env.HandshakeTimeout != 0 {
		c.Realtime.HandshakeTimeout = Duration(env.HandshakeTimeout)
	}
	if env.Reconnect != nil {
		c.Realtime.Reconnect.Enabled = env.Reconnect
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Realtime.Channel == "" {
		c.Realtime.Channel = defaultChannel
	}
	if len(c.Stations) == 0 {
		for _, s := range stationboard.DefaultStations() {
			c.Stations = append(c.Stations, StationConfig{ID: s.ID, Name: s.Name})
		}
	}
}

// validate reports the first problem found. Missing connection settings
// are returned as *stationboard.ConfigurationError.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	rt := c.Realtime
	if strings.TrimSpace(rt.URL) == "" {
		return &stationboard.ConfigurationError{Field: "url", Reason: "is required (realtime.url or " + EnvPrefix + "_SOCKET_URL)"}
	}
	parsedURL, err := url.Parse(rt.URL)
	if err != nil {
		return &stationboard.ConfigurationError{Field: "url", Reason: "is invalid: " + err.Error()}
	}
	if parsedURL.Scheme != "ws" && parsedURL.Scheme != "wss" {
		return &stationboard.ConfigurationError{Field: "url", Reason: fmt.Sprintf("scheme must be ws or wss, got %q", parsedURL.Scheme)}
	}
	if strings.TrimSpace(rt.Host) == "" {
		return &stationboard.ConfigurationError{Field: "host", Reason: "is required (realtime.host or " + EnvPrefix + "_HOST)"}
	}
	if strings.TrimSpace(rt.Token) == "" {
		return &stationboard.ConfigurationError{Field: "token", Reason: "is required (realtime.token or " + EnvPrefix + "_TOKEN)"}
	}

	if rt.HandshakeTimeout.Duration() < 0 {
		return fmt.Errorf("realtime.handshake_timeout cannot be negative, got %s", rt.HandshakeTimeout.Duration())
	}
	if rt.ReadTimeout.Duration() < 0 {
		return fmt.Errorf("realtime.read_timeout cannot be negative, got %s", rt.ReadTimeout.Duration())
	}

	rc := rt.Reconnect
	if rc.InitialBackoff.Duration() < 0 || rc.MaxBackoff.Duration() < 0 {
		return fmt.Errorf("realtime.reconnect backoff cannot be negative")
	}
	if rc.InitialBackoff != 0 && rc.MaxBackoff != 0 && rc.MaxBackoff < rc.InitialBackoff {
		return fmt.Errorf("realtime.reconnect.max_backoff (%s) must not be less than initial_backoff (%s)",
			rc.MaxBackoff.Duration(), rc.InitialBackoff.Duration())
	}
	if rc.MaxAttempts < 0 {
		return fmt.Errorf("realtime.reconnect.max_attempts cannot be negative, got %d", rc.MaxAttempts)
	}

	seen := make(map[string]struct{}, len(c.Stations))
	for i, s := range c.Stations {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("stations[%d]: id is required", i)
		}
		if _, exists := seen[s.ID]; exists {
			return fmt.Errorf("stations[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	if c.InjectRate < 0 {
		return fmt.Errorf("inject_rate cannot be negative, got %v", c.InjectRate)
	}
	if c.InjectBurst < 0 {
		return fmt.Errorf("inject_burst cannot be negative, got %d", c.InjectBurst)
	}

	return nil
}
