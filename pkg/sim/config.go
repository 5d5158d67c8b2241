// Package sim serves a synthetic person stream in the same wire format as
// the real sensor, for running the follower without a camera.
package sim

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-follower/pkg/protocol"
)

// DefaultAddr matches the sensor's default listen address.
const DefaultAddr = "localhost:8765"

// Config controls the synthetic stream
type Config struct {
	Width    int           `yaml:"width" json:"width"`       // Frame width in pixels
	Height   int           `yaml:"height" json:"height"`     // Frame height in pixels
	Interval time.Duration `yaml:"interval" json:"interval"` // Time between frames
	People   int           `yaml:"people" json:"people"`     // Subjects walking across the frame
	Speed    float64       `yaml:"speed" json:"speed"`       // Walking speed, pixels per second
	Jitter   float64       `yaml:"jitter" json:"jitter"`     // Detector noise, pixels (std dev)

	// AbsentEvery/AbsentFor make everyone leave for AbsentFor once per
	// AbsentEvery, to exercise presence timeouts. 0 disables.
	AbsentEvery time.Duration `yaml:"absent_every" json:"absent_every"`
	AbsentFor   time.Duration `yaml:"absent_for" json:"absent_for"`

	// SendEmpty sends "[]" for frames with nobody in them. The real
	// sensor skips those frames.
	SendEmpty bool `yaml:"send_empty" json:"send_empty"`

	// EmptyEvery injects an empty frame every N frames. 0 disables.
	EmptyEvery int `yaml:"empty_every" json:"empty_every"`

	// MalformedEvery sends an undecodable frame every N frames. 0 disables.
	MalformedEvery int `yaml:"malformed_every" json:"malformed_every"`

	Encoding protocol.Encoding `yaml:"-" json:"-"`
	Seed     int64             `yaml:"seed" json:"seed"` // 0 = time based
}

// DefaultConfig mirrors the real sensor: 640x480 at ~33 fps, one person.
func DefaultConfig() Config {
	return Config{
		Width:    640,
		Height:   480,
		Interval: 30 * time.Millisecond,
		People:   1,
		Speed:    120,
		Jitter:   1.5,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.Width <= 1 || c.Height <= 1:
		return fmt.Errorf("sim: frame size %dx%d too small", c.Width, c.Height)
	case c.Interval <= 0:
		return fmt.Errorf("sim: interval must be positive")
	case c.People < 0:
		return fmt.Errorf("sim: people must not be negative")
	case c.Speed < 0 || c.Jitter < 0:
		return fmt.Errorf("sim: speed and jitter must not be negative")
	case c.AbsentEvery > 0 && c.AbsentFor >= c.AbsentEvery:
		return fmt.Errorf("sim: absent_for (%v) must be shorter than absent_every (%v)", c.AbsentFor, c.AbsentEvery)
	case c.EmptyEvery < 0 || c.MalformedEvery < 0:
		return fmt.Errorf("sim: empty_every and malformed_every must not be negative")
	}
	return nil
}
