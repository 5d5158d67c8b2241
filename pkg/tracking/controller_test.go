package tracking

import (
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-follower/pkg/protocol"
)

const tick = 16 * time.Millisecond

// unitConfig maps one pixel to one output unit over [0, 10].
func unitConfig() Config {
	cfg := DefaultConfig()
	cfg.ImageWidth = 11
	cfg.WorldLeft = 0
	cfg.WorldRight = 10
	cfg.BobEnabled = false
	return cfg
}

func atOrigin(z float64) Body {
	return BodyFunc(func() Pose {
		return Pose{Position: r3.Vec{Z: z}, Orientation: quat.Number{Real: 1}}
	})
}

func seen(xs ...float64) protocol.Batch {
	b := protocol.Batch{}
	for i, x := range xs {
		b.Records = append(b.Records, protocol.Record{ID: i + 1, Position: protocol.Vec2{X: x, Y: 240}})
	}
	return b
}

func newController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := New(cfg, atOrigin(5))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestController_MapX(t *testing.T) {
	c := newController(t, DefaultConfig())

	if got := c.MapX(0); got != -220 {
		t.Errorf("MapX(0) = %v, want -220", got)
	}
	if got := c.MapX(639); got != 1050 {
		t.Errorf("MapX(639) = %v, want 1050", got)
	}
	if got := c.MapX(-50); got != -220 {
		t.Errorf("MapX(-50) = %v, want clamp to -220", got)
	}
	if got := c.MapX(5000); got != 1050 {
		t.Errorf("MapX(5000) = %v, want clamp to 1050", got)
	}

	prev := math.Inf(-1)
	for x := -100.0; x <= 800; x += 0.5 {
		got := c.MapX(x)
		if got < prev {
			t.Fatalf("MapX not monotonic at x=%v: %v < %v", x, got, prev)
		}
		prev = got
	}
}

func TestController_RetargetHysteresis(t *testing.T) {
	c := newController(t, unitConfig())

	if !c.Observe(seen(5)) {
		t.Fatal("first candidate must always be accepted")
	}
	first, _ := c.Target()

	// 0.1 units away, inside RetargetDistance (0.15)
	if c.Observe(seen(5.1)) {
		t.Error("candidate within retarget distance was accepted")
	}
	if got, _ := c.Target(); got != first {
		t.Errorf("target moved to %v", got)
	}

	// Creeping in small steps never drags the target along
	for x := 5.0; x <= 5.14; x += 0.02 {
		c.Observe(seen(x))
	}
	if got, _ := c.Target(); got != first {
		t.Errorf("target crept to %v", got)
	}

	if !c.Observe(seen(5.2)) {
		t.Error("candidate beyond retarget distance was rejected")
	}
	if got, _ := c.Target(); math.Abs(got.X-5.2) > 1e-9 {
		t.Errorf("target X = %v, want 5.2", got.X)
	}

	snap := c.Snapshot()
	if snap.Retargets != 2 {
		t.Errorf("Retargets = %d, want 2", snap.Retargets)
	}
}

func TestController_UsesFirstRecordAndPlane(t *testing.T) {
	c := newController(t, unitConfig())
	c.Observe(seen(2, 9))

	got, ok := c.Target()
	if !ok {
		t.Fatal("expected a target")
	}
	want := r3.Vec{X: 2, Y: 0, Z: 5}
	if distance(got, want) > 1e-9 {
		t.Errorf("target = %v, want %v (first record, captured Z)", got, want)
	}

	z := -3.0
	cfg := unitConfig()
	cfg.FixedZ = &z
	cfg.FixedY = 1
	c = newController(t, cfg)
	c.Observe(seen(2))
	if got, _ := c.Target(); got.Z != -3 || got.Y != 1 {
		t.Errorf("target = %v, want configured plane", got)
	}
}

func TestController_EmptyBatchKeepsTarget(t *testing.T) {
	c := newController(t, unitConfig())
	c.Observe(seen(4))
	if c.Observe(protocol.Batch{}) {
		t.Error("empty batch changed the target")
	}
	if !c.HasTarget() {
		t.Error("empty batch dropped the target")
	}
}

func TestController_ArrivesWithoutOvershoot(t *testing.T) {
	cfg := unitConfig()
	c := newController(t, cfg)
	c.Observe(seen(5))

	prev := c.Snapshot().Position
	for i := 0; i < 3000; i++ {
		c.Advance(tick)
		pos := c.Snapshot().Position

		step := distance(pos, prev)
		if limit := cfg.MaxSpeed*tick.Seconds() + 1e-9; step > limit {
			t.Fatalf("tick %d moved %v, more than max speed allows (%v)", i, step, limit)
		}
		if pos.X < prev.X-1e-12 {
			t.Fatalf("tick %d moved backwards: %v -> %v", i, prev.X, pos.X)
		}
		if pos.X > 5+1e-9 {
			t.Fatalf("tick %d overshot the target: %v", i, pos.X)
		}
		prev = pos
	}

	snap := c.Snapshot()
	if !snap.Arrived {
		t.Fatalf("did not arrive, distance %v", snap.Distance)
	}

	// Once inside StopDistance, nothing moves, tick after tick
	rest := c.Pose()
	for i := 0; i < 200; i++ {
		c.Advance(tick)
		if got := c.Pose(); got != rest {
			t.Fatalf("moved at rest on tick %d: %v -> %v", i, rest, got)
		}
	}
}

func TestController_SpeedAdaptsToDistance(t *testing.T) {
	c := newController(t, unitConfig())

	c.Observe(seen(10))
	c.Advance(tick)
	far := c.Snapshot().Speed

	c.Clear()
	c.Observe(seen(c.Snapshot().Position.X + 0.5))
	c.Advance(tick)
	near := c.Snapshot().Speed

	if far != 12 {
		t.Errorf("far speed = %v, want MaxSpeed 12", far)
	}
	if near >= far || near < 1.5 {
		t.Errorf("near speed = %v, want in [1.5, %v)", near, far)
	}
}

func TestController_RemoveAdvance(t *testing.T) {
	c := newController(t, unitConfig())

	var first, second int
	h := c.OnAdvance(func(Pose) { first++ })
	c.OnAdvance(func(Pose) { second++ })

	c.Observe(seen(8))
	c.Advance(tick)

	if !c.RemoveAdvance(h) {
		t.Fatal("RemoveAdvance() = false for a live handle")
	}
	if c.RemoveAdvance(h) {
		t.Error("RemoveAdvance() = true on second call")
	}
	c.Advance(tick)

	if first != 1 || second != 2 {
		t.Errorf("poses received: removed=%d kept=%d, want 1 and 2", first, second)
	}
}

func TestController_ClearIsIdempotent(t *testing.T) {
	c := newController(t, unitConfig())

	// Before any target
	c.Clear()
	c.Clear()
	if c.HasTarget() {
		t.Fatal("target after Clear")
	}

	emitted := 0
	c.OnAdvance(func(Pose) { emitted++ })

	c.Observe(seen(8))
	for i := 0; i < 10; i++ {
		c.Advance(tick)
	}
	pos := c.Snapshot().Position

	c.Clear()
	c.Clear()
	if c.HasTarget() {
		t.Error("target survived Clear")
	}
	if c.Advance(tick) {
		t.Error("Advance reported movement without a target")
	}
	if emitted != 10 {
		t.Errorf("emitted %d poses, want one per tick with a target (10)", emitted)
	}
	if got := c.Snapshot().Position; got != pos {
		t.Errorf("Clear moved the entity: %v -> %v", pos, got)
	}

	// Hysteresis history is gone too: a close candidate is accepted
	if !c.Observe(seen(pos.X + 0.01)) {
		t.Error("first candidate after Clear must be accepted")
	}
}

func TestController_HeadingFollowsMotion(t *testing.T) {
	cfg := unitConfig()
	c := newController(t, cfg)
	c.Observe(seen(10))

	fwd := r3.Vec{Z: 1}
	start := c.Pose().Orientation
	c.Advance(tick) // first tick only records history
	c.Advance(tick)

	turned := angleBetween(start, c.Pose().Orientation)
	if turned <= 0 {
		t.Fatal("expected the heading to start turning")
	}
	if turned >= math.Pi/2-1e-6 {
		t.Errorf("heading snapped (%v rad) instead of turning gradually", turned)
	}

	for i := 0; i < 200; i++ {
		c.Advance(tick)
	}
	facing := rotate(c.Pose().Orientation, fwd)
	if r3.Dot(facing, r3.Vec{X: 1}) < 0.99 {
		t.Errorf("expected forward axis to face +X, got %v", facing)
	}
	if math.Abs(facing.Y) > 1e-6 {
		t.Errorf("heading tilted off the plane: %v", facing)
	}
}

func TestController_ForwardAxisCorrection(t *testing.T) {
	cfg := unitConfig()
	cfg.ForwardAxis = AxisRight
	c := newController(t, cfg)

	// Start at X=5 and swim left
	c.current = r3.Vec{X: 5, Z: 5}
	c.Observe(seen(0))
	for i := 0; i < 300; i++ {
		c.Advance(tick)
	}

	nose := rotate(c.Pose().Orientation, r3.Vec{X: 1})
	if r3.Dot(nose, r3.Vec{X: -1}) < 0.99 {
		t.Errorf("expected model +X to face travel direction -X, got %v", nose)
	}
}

func TestController_HeadingDeadzone(t *testing.T) {
	cfg := unitConfig()
	cfg.TurnDeadzone = 100
	c := newController(t, cfg)
	c.Observe(seen(10))

	start := c.Pose().Orientation
	for i := 0; i < 100; i++ {
		c.Advance(tick)
	}
	if got := c.Pose().Orientation; got != start {
		t.Errorf("orientation changed inside deadzone: %v", got)
	}
}

func TestController_BobIsCosmetic(t *testing.T) {
	cfg := unitConfig()
	cfg.BobEnabled = true
	cfg.BobAmplitude = 0.5
	cfg.BobFrequency = 3
	c := newController(t, cfg)
	c.Observe(seen(10))

	sawBob := false
	for i := 0; i < 100; i++ {
		c.Advance(tick)
		snap := c.Snapshot()
		if snap.Position.Y != cfg.FixedY {
			t.Fatalf("logical Y drifted to %v", snap.Position.Y)
		}
		if math.Abs(snap.Rendered.Y-cfg.FixedY) > cfg.BobAmplitude+1e-12 {
			t.Fatalf("rendered Y %v outside bob amplitude", snap.Rendered.Y)
		}
		if snap.Rendered.Y != cfg.FixedY {
			sawBob = true
		}
	}
	if !sawBob {
		t.Error("rendered Y never bobbed")
	}
}

func TestController_MissingBody(t *testing.T) {
	c, err := New(DefaultConfig(), nil)
	if !errors.Is(err, ErrMissingBody) {
		t.Fatalf("New(nil body) error = %v, want ErrMissingBody", err)
	}

	emitted := 0
	c.OnAdvance(func(Pose) { emitted++ })
	if c.Observe(seen(100)) {
		t.Error("inert controller accepted a target")
	}
	if c.Advance(tick) || emitted != 0 {
		t.Error("inert controller advanced")
	}
	c.Clear()
	if !c.Snapshot().Inert {
		t.Error("Snapshot should report inert")
	}
}

func TestController_InvalidConfigIsInert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SmoothTime = -time.Second

	c, err := New(cfg, atOrigin(0))
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
	if c.Observe(seen(10)) || c.Advance(tick) {
		t.Error("controller with invalid config is not inert")
	}
	if !errors.As(c.Tune(Tuning{MaxSpeed: Float(5)}), &cerr) {
		t.Error("Tune on inert controller should return the construction error")
	}
}

func TestController_Tune(t *testing.T) {
	c := newController(t, unitConfig())

	if err := c.Tune(Tuning{MaxSpeed: Float(3), SmoothTimeMs: Float(200)}); err != nil {
		t.Fatalf("Tune() error = %v", err)
	}
	got := c.Tuning()
	if *got.MaxSpeed != 3 || *got.SmoothTimeMs != 200 {
		t.Errorf("Tuning() max_speed=%v smooth_time_ms=%v", *got.MaxSpeed, *got.SmoothTimeMs)
	}

	// Zero is a real value, not "unchanged"
	if err := c.Tune(Tuning{StopDistance: Float(0), TurnDeadzone: Float(0), BobAmplitude: Float(0)}); err != nil {
		t.Fatalf("Tune(zeros) error = %v", err)
	}
	if cfg := c.Config(); cfg.StopDistance != 0 || cfg.TurnDeadzone != 0 || cfg.BobAmplitude != 0 {
		t.Errorf("zero tuning not applied: %+v", cfg)
	}

	before := c.Config()
	rejects := []struct {
		name  string
		tn    Tuning
		field string
	}{
		{"min above max", Tuning{MinSpeed: Float(10)}, "min_speed"},
		{"negative speeds", Tuning{MinSpeed: Float(-5), MaxSpeed: Float(-1)}, "min_speed"},
		{"zero max speed", Tuning{MaxSpeed: Float(0)}, "max_speed"},
		{"negative stop distance", Tuning{StopDistance: Float(-0.1)}, "stop_distance"},
		{"zero smooth time", Tuning{SmoothTimeMs: Float(0)}, "smooth_time"},
		{"nan smooth time", Tuning{SmoothTimeMs: Float(math.NaN())}, "smooth_time"},
		{"zero turn speed", Tuning{TurnSpeed: Float(0)}, "turn_speed"},
		// One bad field rejects the whole request
		{"partly valid", Tuning{MaxSpeed: Float(8), RetargetDistance: Float(-1)}, "retarget_distance"},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			var cerr *ConfigError
			if err := c.Tune(tt.tn); !errors.As(err, &cerr) {
				t.Fatalf("Tune() error = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
			if got := c.Config(); got != before {
				t.Errorf("config changed after rejected tuning: %+v", got)
			}
		})
	}
}
