package tracking

import (
	"math"
	"time"
)

// Tuning holds the runtime-adjustable follow parameters.
// Nil fields are left unchanged by Tune; a set field is applied as given,
// zero and negative values included, and must pass Validate.
type Tuning struct {
	// Follow feel
	MinSpeed        *float64 `json:"min_speed,omitempty"`
	MaxSpeed        *float64 `json:"max_speed,omitempty"`
	SpeedMultiplier *float64 `json:"speed_multiplier,omitempty"`
	StopDistance    *float64 `json:"stop_distance,omitempty"`
	SmoothTimeMs    *float64 `json:"smooth_time_ms,omitempty"`

	// Jitter suppression
	RetargetDistance *float64 `json:"retarget_distance,omitempty"`

	// Turning
	TurnSpeed    *float64 `json:"turn_speed,omitempty"`
	TurnDeadzone *float64 `json:"turn_deadzone,omitempty"`

	// Bob
	BobEnabled   *bool    `json:"bob_enabled,omitempty"`
	BobAmplitude *float64 `json:"bob_amplitude,omitempty"`
	BobFrequency *float64 `json:"bob_frequency,omitempty"`
}

// Float returns a pointer to v, for building a Tuning.
func Float(v float64) *float64 { return &v }

// Tuning returns the current tuning parameters, every field set.
func (c *Controller) Tuning() Tuning {
	bob := c.cfg.BobEnabled
	return Tuning{
		MinSpeed:         Float(c.cfg.MinSpeed),
		MaxSpeed:         Float(c.cfg.MaxSpeed),
		SpeedMultiplier:  Float(c.cfg.SpeedMultiplier),
		StopDistance:     Float(c.cfg.StopDistance),
		SmoothTimeMs:     Float(float64(c.cfg.SmoothTime) / float64(time.Millisecond)),
		RetargetDistance: Float(c.cfg.RetargetDistance),
		TurnSpeed:        Float(c.cfg.TurnSpeed),
		TurnDeadzone:     Float(c.cfg.TurnDeadzone),
		BobEnabled:       &bob,
		BobAmplitude:     Float(c.cfg.BobAmplitude),
		BobFrequency:     Float(c.cfg.BobFrequency),
	}
}

// Apply returns cfg with every set field of t applied. It does not
// validate; see Tune.
func (t Tuning) Apply(cfg Config) Config {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.MinSpeed, t.MinSpeed)
	set(&cfg.MaxSpeed, t.MaxSpeed)
	set(&cfg.SpeedMultiplier, t.SpeedMultiplier)
	set(&cfg.StopDistance, t.StopDistance)
	set(&cfg.RetargetDistance, t.RetargetDistance)
	set(&cfg.TurnSpeed, t.TurnSpeed)
	set(&cfg.TurnDeadzone, t.TurnDeadzone)
	set(&cfg.BobAmplitude, t.BobAmplitude)
	set(&cfg.BobFrequency, t.BobFrequency)

	if t.SmoothTimeMs != nil {
		ms := *t.SmoothTimeMs
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			// Validate rejects a non-positive smooth time
			ms = 0
		}
		cfg.SmoothTime = time.Duration(ms * float64(time.Millisecond))
	}
	if t.BobEnabled != nil {
		cfg.BobEnabled = *t.BobEnabled
	}
	return cfg
}

// Tune updates parameters at runtime. Either every set field is applied or,
// if the result does not validate, nothing changes and the *ConfigError is
// returned. Mapping and plane settings are fixed at construction.
func (c *Controller) Tune(t Tuning) error {
	if c.err != nil {
		return c.err
	}
	next := t.Apply(c.cfg)
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	c.log.Info("tuning updated",
		"min_speed", next.MinSpeed,
		"max_speed", next.MaxSpeed,
		"stop_distance", next.StopDistance,
		"smooth_time", next.SmoothTime,
		"retarget_distance", next.RetargetDistance)
	return nil
}
