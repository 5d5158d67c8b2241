package tracking

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// minSmoothTime keeps the spring frequency finite.
const minSmoothTime = 1e-4

// Damper is a critically damped spring that eases a point toward a goal.
// The zero value is at rest. It carries only its velocity, so copying a
// Damper snapshots it.
type Damper struct {
	Velocity r3.Vec
}

// Step advances current toward target over dt seconds with the given
// smoothing time (roughly the time to close most of the gap). The result
// never overshoots target.
func (d Damper) Step(current, target r3.Vec, smoothTime, dt float64) (r3.Vec, Damper) {
	if dt <= 0 {
		return current, d
	}
	smoothTime = math.Max(minSmoothTime, smoothTime)

	omega := 2 / smoothTime
	x := omega * dt
	// Pade approximation of exp(-x), accurate for the range of x we see
	decay := 1 / (1 + x + 0.48*x*x + 0.235*x*x*x)

	change := r3.Sub(current, target)
	temp := r3.Scale(dt, r3.Add(d.Velocity, r3.Scale(omega, change)))

	next := Damper{Velocity: r3.Scale(decay, r3.Sub(d.Velocity, r3.Scale(omega, temp)))}
	out := r3.Add(target, r3.Scale(decay, r3.Add(change, temp)))

	// Passed the target: pin to it and stop
	if r3.Dot(r3.Sub(target, current), r3.Sub(out, target)) > 0 {
		return target, Damper{}
	}
	return out, next
}
