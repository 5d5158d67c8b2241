package sensor

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is where the sensor process listens by default.
const DefaultEndpoint = "ws://localhost:8765"

// Config holds connection tunables.
type Config struct {
	// HandshakeTimeout bounds the WebSocket opening handshake.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`

	// PingInterval is how often keepalive pings are sent. 0 disables
	// keepalive and read deadlines.
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`

	// PongWait is how long the connection may stay silent (no message,
	// no pong) before it is considered dead. Must exceed PingInterval.
	PongWait time.Duration `yaml:"pong_wait" json:"pong_wait"`

	// CloseTimeout bounds how long Close waits for the receive goroutine.
	CloseTimeout time.Duration `yaml:"close_timeout" json:"close_timeout"`

	// ReadLimit is the maximum accepted message size in bytes.
	ReadLimit int64 `yaml:"read_limit" json:"read_limit"`
}

// DefaultConfig returns the recommended connection settings.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     20 * time.Second,
		PongWait:         60 * time.Second,
		CloseTimeout:     2 * time.Second,
		ReadLimit:        1 << 20, // 1 MiB, far above a crowded frame
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.HandshakeTimeout < 0:
		return fmt.Errorf("sensor: handshake_timeout must not be negative")
	case c.PingInterval < 0:
		return fmt.Errorf("sensor: ping_interval must not be negative")
	case c.PingInterval > 0 && c.PongWait <= c.PingInterval:
		return fmt.Errorf("sensor: pong_wait (%v) must exceed ping_interval (%v)", c.PongWait, c.PingInterval)
	case c.CloseTimeout <= 0:
		return fmt.Errorf("sensor: close_timeout must be positive")
	case c.ReadLimit <= 0:
		return fmt.Errorf("sensor: read_limit must be positive")
	}
	return nil
}

// NormalizeEndpoint turns "host:port" into "ws://host:port" and checks
// that the result is a ws:// or wss:// URL with a host.
func NormalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", ErrNoEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "ws://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("sensor: invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("sensor: unsupported scheme %q (want ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("sensor: endpoint %q has no host", endpoint)
	}
	return u.String(), nil
}
