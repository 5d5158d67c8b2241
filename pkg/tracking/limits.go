package tracking

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// moveTowards steps from current toward target by at most maxDelta and
// never passes the target.
func moveTowards(current, target r3.Vec, maxDelta float64) r3.Vec {
	delta := r3.Sub(target, current)
	dist := r3.Norm(delta)
	if dist <= maxDelta || dist == 0 {
		return target
	}
	return r3.Add(current, r3.Scale(maxDelta/dist, delta))
}

// distance is the Euclidean distance between two points.
func distance(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

func finiteVec(v r3.Vec) bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
