// Package tracking turns sensor detections into a smooth, jitter-free
// pose for the followed entity.
//
// The Controller is driven from a single tick goroutine: Observe with each
// delivered batch, Advance once per tick. It does no locking of its own.
package tracking

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/dispatch"
	"github.com/teslashibe/go-follower/pkg/protocol"
)

// ErrMissingBody is returned by New when no body is supplied.
var ErrMissingBody = errors.New("tracking: body required")

// Pose is a position and orientation in output space.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

// Body is the entity being moved. Its pose seeds the controller.
type Body interface {
	Pose() Pose
}

// BodyFunc adapts a function to Body.
type BodyFunc func() Pose

// Pose implements Body.
func (f BodyFunc) Pose() Pose { return f() }

// State is a read-only snapshot for status reporting.
type State struct {
	Position    r3.Vec      `json:"position"`
	Rendered    r3.Vec      `json:"rendered"`
	Orientation quat.Number `json:"orientation"`
	Target      r3.Vec      `json:"target"`
	HasTarget   bool        `json:"has_target"`
	Distance    float64     `json:"distance"`
	Speed       float64     `json:"speed"`
	Arrived     bool        `json:"arrived"`
	Retargets   uint64      `json:"retargets"`
	Ignored     uint64      `json:"ignored"`
	Inert       bool        `json:"inert"`
}

// Controller follows one target at a time.
//
// A candidate target replaces the accepted one only when it differs by
// more than RetargetDistance. Each tick the position approaches the target
// at a distance-proportional speed through a critically damped spring, and
// the orientation turns toward the direction of travel.
type Controller struct {
	cfg    Config
	err    error // non-nil makes the controller inert
	log    *slog.Logger
	fixedZ float64
	fwd    r3.Vec

	current     r3.Vec // logical position, never bobbed
	rendered    r3.Vec
	orientation quat.Number

	target    r3.Vec
	hasTarget bool

	last    r3.Vec
	hasLast bool

	damper  Damper
	elapsed time.Duration
	speed   float64

	retargets uint64
	ignored   uint64

	advance dispatch.Registry[Pose]
}

// New creates a controller seeded from body's current pose. A nil body or
// an invalid config yields an inert controller along with the error; an
// inert controller accepts every call and does nothing.
func New(cfg Config, body Body) (*Controller, error) {
	c := &Controller{
		cfg:         cfg,
		log:         log.Nop(),
		orientation: identity,
	}

	if err := cfg.Validate(); err != nil {
		c.err = err
		return c, err
	}
	if body == nil {
		c.err = ErrMissingBody
		return c, ErrMissingBody
	}

	start := body.Pose()
	if !finiteVec(start.Position) {
		start.Position = r3.Vec{}
	}
	c.current = start.Position
	c.rendered = start.Position
	if start.Orientation != (quat.Number{}) {
		c.orientation = normalize(start.Orientation)
	}

	c.fixedZ = start.Position.Z
	if cfg.FixedZ != nil {
		c.fixedZ = *cfg.FixedZ
	}
	c.fwd, _ = cfg.ForwardAxis.Vec()
	return c, nil
}

// SetLogger sets the logger used for retarget and clear events.
func (c *Controller) SetLogger(l *slog.Logger) {
	if l != nil {
		c.log = l
	}
}

// Err returns the construction error that made the controller inert.
func (c *Controller) Err() error {
	return c.err
}

// OnAdvance registers fn to receive the pose produced by every tick that
// has a target.
func (c *Controller) OnAdvance(fn func(Pose)) dispatch.Handle {
	return c.advance.Add(fn)
}

// RemoveAdvance drops a callback registered with OnAdvance.
func (c *Controller) RemoveAdvance(h dispatch.Handle) bool {
	return c.advance.Remove(h)
}

// MapX maps a sensor pixel column to output X. Columns outside the frame
// clamp to the nearest bound.
func (c *Controller) MapX(x float64) float64 {
	return mapX(c.cfg, x)
}

func mapX(cfg Config, x float64) float64 {
	if math.IsNaN(x) {
		x = 0
	}
	t := clamp(x/(cfg.ImageWidth-1), 0, 1)
	return lerp(cfg.WorldLeft, cfg.WorldRight, t)
}

// Observe considers the first record of a non-empty batch as the new
// target. Returns true if the target changed.
func (c *Controller) Observe(b protocol.Batch) bool {
	if c.err != nil {
		return false
	}
	rec, ok := b.First()
	if !ok {
		return false
	}

	candidate := r3.Vec{X: c.MapX(rec.Position.X), Y: c.cfg.FixedY, Z: c.fixedZ}
	if c.hasTarget && distance(candidate, c.target) <= c.cfg.RetargetDistance {
		c.ignored++
		return false
	}

	c.log.Debug("retarget",
		"person_id", rec.ID,
		"cam_x", rec.Position.X,
		"target_x", candidate.X,
		"first", !c.hasTarget)
	c.target = candidate
	c.hasTarget = true
	c.retargets++
	return true
}

// Advance moves the entity by one tick of dt. It returns false and emits
// nothing when there is no target.
func (c *Controller) Advance(dt time.Duration) bool {
	if c.err != nil || !c.hasTarget {
		return false
	}
	if dt < 0 {
		dt = 0
	}
	seconds := dt.Seconds()

	// Work on locals and commit at the end so a tick is all-or-nothing.
	current := c.current
	rendered := c.rendered
	damper := c.damper
	orientation := c.orientation
	last, hasLast := c.last, c.hasLast
	elapsed := c.elapsed + dt
	speed := 0.0

	dist := distance(current, c.target)
	if dist > c.cfg.StopDistance {
		speed = clamp(dist*c.cfg.SpeedMultiplier, c.cfg.MinSpeed, c.cfg.MaxSpeed)
		desired := moveTowards(current, c.target, speed*seconds)
		current, damper = damper.Step(current, desired, c.cfg.SmoothTime.Seconds(), seconds)

		rendered = current
		if c.cfg.BobEnabled {
			rendered.Y = c.cfg.FixedY + math.Sin(elapsed.Seconds()*c.cfg.BobFrequency)*c.cfg.BobAmplitude
		}

		if hasLast {
			delta := r3.Sub(current, last)
			if r3.Norm2(delta) > c.cfg.TurnDeadzone*c.cfg.TurnDeadzone {
				orientation = c.turn(orientation, delta, seconds)
			}
		}
		last, hasLast = current, true
	}

	c.current = current
	c.rendered = rendered
	c.damper = damper
	c.orientation = orientation
	c.last, c.hasLast = last, hasLast
	c.elapsed = elapsed
	c.speed = speed

	c.advance.Notify(Pose{Position: rendered, Orientation: orientation})
	return true
}

// turn rotates orientation toward facing along delta, bounded by
// TurnSpeed*dt.
func (c *Controller) turn(orientation quat.Number, delta r3.Vec, seconds float64) quat.Number {
	look, ok := lookRotation(r3.Unit(delta), worldUp)
	if !ok {
		return orientation
	}
	goal := normalize(quat.Mul(look, fromToRotation(c.fwd, worldFwd)))
	return slerp(orientation, goal, math.Min(1, c.cfg.TurnSpeed*seconds))
}

// Clear drops the target and all motion history. The entity stays where
// it is. Safe to call at any time, any number of times.
func (c *Controller) Clear() {
	if c.hasTarget {
		c.log.Debug("target cleared", "x", c.current.X)
	}
	c.hasTarget = false
	c.target = r3.Vec{}
	c.hasLast = false
	c.last = r3.Vec{}
	c.damper = Damper{}
	c.speed = 0
}

// HasTarget reports whether a target is accepted.
func (c *Controller) HasTarget() bool {
	return c.hasTarget
}

// Target returns the accepted target.
func (c *Controller) Target() (r3.Vec, bool) {
	return c.target, c.hasTarget
}

// Pose returns the last rendered pose.
func (c *Controller) Pose() Pose {
	return Pose{Position: c.rendered, Orientation: c.orientation}
}

// Snapshot returns the controller's state for status reporting.
func (c *Controller) Snapshot() State {
	s := State{
		Position:    c.current,
		Rendered:    c.rendered,
		Orientation: c.orientation,
		Target:      c.target,
		HasTarget:   c.hasTarget,
		Speed:       c.speed,
		Retargets:   c.retargets,
		Ignored:     c.ignored,
		Inert:       c.err != nil,
	}
	if c.hasTarget {
		s.Distance = distance(c.current, c.target)
		s.Arrived = s.Distance <= c.cfg.StopDistance
	}
	return s
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	return c.cfg
}
