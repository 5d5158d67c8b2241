// Package follower wires the sensor connection, tick dispatcher, presence
// monitor, target controller and dashboard into one running application.
package follower

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-follower/internal/config"
	"github.com/teslashibe/go-follower/pkg/presence"
	"github.com/teslashibe/go-follower/pkg/sensor"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

// ErrNoEndpoint is returned when no sensor endpoint is configured.
var ErrNoEndpoint = errors.New("follower: sensor endpoint required")

// StartPose is where the followed entity sits before the first target.
type StartPose struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// Config holds all configuration for the follower application.
// Flag parsing is done in cmd/follower; this struct is data only.
type Config struct {
	// Endpoint is the sensor WebSocket, "host:port" or a ws:// URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// TickInterval is the host update cadence.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`

	// PresenceTimeout is how long the sensor may be silent before the
	// target is cleared.
	PresenceTimeout time.Duration `yaml:"presence_timeout" json:"presence_timeout"`

	// ReconnectDelay is the wait between connection attempts. 0 means
	// connect once and never retry.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`

	// StatusInterval throttles dashboard status updates. 0 updates every tick.
	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval"`

	// WebPort is the dashboard port. Empty disables the dashboard.
	WebPort string `yaml:"web_port" json:"web_port"`

	Start    StartPose       `yaml:"start" json:"start"`
	Sensor   sensor.Config   `yaml:"sensor" json:"sensor"`
	Tracking tracking.Config `yaml:"tracking" json:"tracking"`
}

// DefaultConfig returns sensible defaults: a local sensor, 60 Hz ticks
// and the dashboard on port 8080.
func DefaultConfig() Config {
	return Config{
		Endpoint:        sensor.DefaultEndpoint,
		TickInterval:    time.Second / 60,
		PresenceTimeout: presence.DefaultTimeout,
		ReconnectDelay:  2 * time.Second,
		StatusInterval:  250 * time.Millisecond,
		WebPort:         config.DefaultWebPort,
		Sensor:          sensor.DefaultConfig(),
		Tracking:        tracking.DefaultConfig(),
	}
}

// LoadEnvConfig applies SENSOR_URL and WEB_PORT overrides.
// Call this after flag parsing.
func (c *Config) LoadEnvConfig() {
	c.Endpoint = config.SensorURL(c.Endpoint)
	c.WebPort = config.WebPort(c.WebPort)
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	if _, err := sensor.NormalizeEndpoint(c.Endpoint); err != nil {
		return err
	}
	switch {
	case c.TickInterval <= 0:
		return fmt.Errorf("follower: tick_interval must be positive")
	case c.PresenceTimeout <= 0:
		return &presence.ConfigError{Timeout: c.PresenceTimeout}
	case c.ReconnectDelay < 0 || c.StatusInterval < 0:
		return fmt.Errorf("follower: reconnect_delay and status_interval must not be negative")
	}
	if err := c.Sensor.Validate(); err != nil {
		return err
	}
	return c.Tracking.Validate()
}
