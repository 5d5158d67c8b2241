package tracking

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Axis names the model axis that points out of the entity's nose.
type Axis string

const (
	AxisForward Axis = "forward" // +Z
	AxisBack    Axis = "back"    // -Z
	AxisRight   Axis = "right"   // +X
	AxisLeft    Axis = "left"    // -X
	AxisUp      Axis = "up"      // +Y
	AxisDown    Axis = "down"    // -Y
)

// Vec returns the unit vector for the axis. ok is false for unknown names.
func (a Axis) Vec() (v r3.Vec, ok bool) {
	switch a {
	case AxisForward, "":
		return r3.Vec{Z: 1}, true
	case AxisBack:
		return r3.Vec{Z: -1}, true
	case AxisRight:
		return r3.Vec{X: 1}, true
	case AxisLeft:
		return r3.Vec{X: -1}, true
	case AxisUp:
		return r3.Vec{Y: 1}, true
	case AxisDown:
		return r3.Vec{Y: -1}, true
	}
	return r3.Vec{}, false
}

// Config holds all tunable parameters for following a target
type Config struct {
	// Source frame -> output mapping
	ImageWidth float64  `yaml:"image_width" json:"image_width"` // Sensor frame width in pixels
	WorldLeft  float64  `yaml:"world_left" json:"world_left"`   // Output X for pixel 0
	WorldRight float64  `yaml:"world_right" json:"world_right"` // Output X for pixel ImageWidth-1
	FixedY     float64  `yaml:"fixed_y" json:"fixed_y"`         // Plane height
	FixedZ     *float64 `yaml:"fixed_z" json:"fixed_z"`         // Plane depth, nil = body's starting Z

	// Follow feel (units per second)
	MinSpeed        float64       `yaml:"min_speed" json:"min_speed"`               // Speed when close
	MaxSpeed        float64       `yaml:"max_speed" json:"max_speed"`               // Speed when far
	SpeedMultiplier float64       `yaml:"speed_multiplier" json:"speed_multiplier"` // Distance -> speed gain
	StopDistance    float64       `yaml:"stop_distance" json:"stop_distance"`       // Don't move inside this radius
	SmoothTime      time.Duration `yaml:"smooth_time" json:"smooth_time"`           // Damping time constant

	// Jitter suppression
	RetargetDistance float64 `yaml:"retarget_distance" json:"retarget_distance"`

	// Turning
	TurnSpeed    float64 `yaml:"turn_speed" json:"turn_speed"`       // Slerp rate per second
	TurnDeadzone float64 `yaml:"turn_deadzone" json:"turn_deadzone"` // Ignore moves shorter than this
	ForwardAxis  Axis    `yaml:"forward_axis" json:"forward_axis"`

	// Cosmetic bob on the rendered Y
	BobEnabled   bool    `yaml:"bob_enabled" json:"bob_enabled"`
	BobAmplitude float64 `yaml:"bob_amplitude" json:"bob_amplitude"`
	BobFrequency float64 `yaml:"bob_frequency" json:"bob_frequency"` // Radians per second
}

// DefaultConfig returns the recommended configuration for a lively follow
func DefaultConfig() Config {
	return Config{
		ImageWidth: 640,
		WorldLeft:  -220,
		WorldRight: 1050,
		FixedY:     0,

		MinSpeed:        1.5,
		MaxSpeed:        12,
		SpeedMultiplier: 2,
		StopDistance:    0.03,
		SmoothTime:      120 * time.Millisecond,

		RetargetDistance: 0.15,

		TurnSpeed:    6,
		TurnDeadzone: 0.001,
		ForwardAxis:  AxisForward,

		BobEnabled:   true,
		BobAmplitude: 0.05,
		BobFrequency: 1.5,
	}
}

// SlowConfig returns a configuration for slower, smoother following
func SlowConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxSpeed = 6
	cfg.SpeedMultiplier = 1
	cfg.SmoothTime = 300 * time.Millisecond
	cfg.TurnSpeed = 3
	return cfg
}

// CalmConfig returns a configuration that ignores small subject movements
// and does not bob. Useful when the sensor is noisy.
func CalmConfig() Config {
	cfg := SlowConfig()
	cfg.RetargetDistance = 5
	cfg.StopDistance = 0.5
	cfg.TurnDeadzone = 0.01
	cfg.BobEnabled = false
	return cfg
}

// ConfigError names the first invalid field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("tracking: invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration. The returned error is a *ConfigError.
func (c Config) Validate() error {
	finite := func(field string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ConfigError{Field: field, Reason: "must be finite"}
		}
		return nil
	}
	nonNegative := func(field string, v float64) error {
		if err := finite(field, v); err != nil {
			return err
		}
		if v < 0 {
			return &ConfigError{Field: field, Reason: "must not be negative"}
		}
		return nil
	}

	checks := []error{
		finite("world_left", c.WorldLeft),
		finite("world_right", c.WorldRight),
		finite("fixed_y", c.FixedY),
		nonNegative("min_speed", c.MinSpeed),
		nonNegative("max_speed", c.MaxSpeed),
		nonNegative("speed_multiplier", c.SpeedMultiplier),
		nonNegative("stop_distance", c.StopDistance),
		nonNegative("retarget_distance", c.RetargetDistance),
		nonNegative("turn_deadzone", c.TurnDeadzone),
		nonNegative("bob_amplitude", c.BobAmplitude),
		nonNegative("bob_frequency", c.BobFrequency),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	switch {
	case math.IsNaN(c.ImageWidth) || c.ImageWidth <= 1:
		return &ConfigError{Field: "image_width", Reason: "must be greater than 1"}
	case c.FixedZ != nil && (math.IsNaN(*c.FixedZ) || math.IsInf(*c.FixedZ, 0)):
		return &ConfigError{Field: "fixed_z", Reason: "must be finite"}
	case c.MaxSpeed == 0:
		return &ConfigError{Field: "max_speed", Reason: "must be positive"}
	case c.MinSpeed > c.MaxSpeed:
		return &ConfigError{Field: "min_speed", Reason: fmt.Sprintf("%v exceeds max_speed %v", c.MinSpeed, c.MaxSpeed)}
	case c.SmoothTime <= 0:
		return &ConfigError{Field: "smooth_time", Reason: "must be positive"}
	case math.IsNaN(c.TurnSpeed) || math.IsInf(c.TurnSpeed, 0) || c.TurnSpeed <= 0:
		return &ConfigError{Field: "turn_speed", Reason: "must be positive"}
	}

	if _, ok := c.ForwardAxis.Vec(); !ok {
		return &ConfigError{Field: "forward_axis", Reason: fmt.Sprintf("unknown axis %q", c.ForwardAxis)}
	}
	return nil
}
