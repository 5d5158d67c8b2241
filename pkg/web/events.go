package web

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-follower/pkg/tracking"
)

// Event types on /ws/pose
const (
	EventPose    = "pose"
	EventCleared = "cleared"
	EventPresent = "present"
)

// Vec3 is a wire-friendly vector
type Vec3 struct {
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
	Z float64 `json:"z" cbor:"z"`
}

// Quat is a wire-friendly rotation, scalar first
type Quat struct {
	W float64 `json:"w" cbor:"w"`
	X float64 `json:"x" cbor:"x"`
	Y float64 `json:"y" cbor:"y"`
	Z float64 `json:"z" cbor:"z"`
}

// Event is one message on the pose stream
type Event struct {
	Type        string `json:"type" cbor:"type"`
	Seq         uint64 `json:"seq" cbor:"seq"`
	TimestampMs int64  `json:"ts_ms" cbor:"ts_ms"`
	Position    *Vec3  `json:"position,omitempty" cbor:"position,omitempty"`
	Orientation *Quat  `json:"orientation,omitempty" cbor:"orientation,omitempty"`
}

func toVec3(v r3.Vec) *Vec3 {
	return &Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

func toQuat(q quat.Number) *Quat {
	return &Quat{W: q.Real, X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// PoseEvent builds a pose event
func PoseEvent(seq uint64, tsMs int64, p tracking.Pose) Event {
	return Event{
		Type:        EventPose,
		Seq:         seq,
		TimestampMs: tsMs,
		Position:    toVec3(p.Position),
		Orientation: toQuat(p.Orientation),
	}
}

// Publish sends an event to every /ws/pose client, as JSON or CBOR
// depending on what the client asked for.
func (s *Server) Publish(e Event) {
	if err := s.poseHub.BroadcastBoth(e); err != nil {
		s.log.Warn("publish failed", "type", e.Type, "error", err)
	}
}
