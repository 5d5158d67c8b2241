package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/teslashibe/go-follower/pkg/protocol"
)

// Generator produces synthetic detections. Each person walks back and
// forth across the frame at a constant speed with a bit of detector noise.
// It is not safe for concurrent use; the server creates one per
// connection.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	frame int
}

// NewGenerator creates a generator
func NewGenerator(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Frame returns the current frame index
func (g *Generator) Frame() int {
	return g.frame
}

// Absent reports whether everyone is out of view at elapsed.
func (g *Generator) Absent(elapsed time.Duration) bool {
	if g.cfg.AbsentEvery <= 0 || g.cfg.AbsentFor <= 0 {
		return false
	}
	return elapsed%g.cfg.AbsentEvery >= g.cfg.AbsentEvery-g.cfg.AbsentFor
}

// Next builds the frame at elapsed time since the stream started and
// advances the frame index. now stamps server_ts_ms.
func (g *Generator) Next(elapsed time.Duration, now time.Time) []protocol.Record {
	frame := g.frame
	g.frame++

	if g.Absent(elapsed) || g.cfg.People == 0 {
		return nil
	}

	w, h := float64(g.cfg.Width), float64(g.cfg.Height)
	records := make([]protocol.Record, 0, g.cfg.People)
	for i := 0; i < g.cfg.People; i++ {
		// Box size scales with a slow depth drift
		depth := 1500 + 700*math.Sin(elapsed.Seconds()*0.3+float64(i))
		boxH := clampF(h*0.9*1200/depth, 40, h-1)
		boxW := boxH * 0.4

		cx := g.walk(elapsed, i) + g.rng.NormFloat64()*g.cfg.Jitter
		cy := h/2 + g.rng.NormFloat64()*g.cfg.Jitter

		// Clamp the box to the image, then derive centre and size from it
		x1 := clampF(math.Round(cx-boxW/2), 0, w-1)
		x2 := clampF(math.Round(cx+boxW/2), 0, w-1)
		y1 := clampF(math.Round(cy-boxH/2), 0, h-1)
		y2 := clampF(math.Round(cy+boxH/2), 0, h-1)

		conf := 0.6 + 0.35*g.rng.Float64()
		records = append(records, protocol.Record{
			ID:                i + 1,
			Position:          protocol.Vec2{X: math.Floor((x1 + x2) / 2), Y: math.Floor((y1 + y2) / 2)},
			Size:              protocol.Vec2{X: x2 - x1, Y: y2 - y1},
			Depth:             math.Round(depth),
			Confidence:        math.Round(conf*1000) / 1000,
			Frame:             frame,
			ServerTimestampMs: now.UnixMilli(),
			KeypointMotions:   []protocol.KeypointMotion{},
		})
	}
	return records
}

// walk is a triangle wave between the frame edges. People start evenly
// spread across one lap.
func (g *Generator) walk(elapsed time.Duration, i int) float64 {
	span := float64(g.cfg.Width - 1)
	if span <= 0 || g.cfg.Speed == 0 {
		return span / 2
	}
	lap := 2 * span
	offset := lap * float64(i) / float64(max(g.cfg.People, 1))
	d := math.Mod(elapsed.Seconds()*g.cfg.Speed+offset, lap)
	if d > span {
		d = lap - d
	}
	return d
}

func clampF(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
