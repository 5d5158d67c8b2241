package tracking

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	identity = quat.Number{Real: 1}
	worldUp  = r3.Vec{Y: 1}
	worldFwd = r3.Vec{Z: 1}
)

// normalize scales q to unit length. A zero quaternion becomes identity.
func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return identity
	}
	return quat.Scale(1/n, q)
}

func qdot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// lookRotation returns the rotation that takes +Z to forward and keeps +Y
// as close to up as possible. ok is false when forward is zero or parallel
// to up.
func lookRotation(forward, up r3.Vec) (q quat.Number, ok bool) {
	if r3.Norm2(forward) == 0 {
		return identity, false
	}
	z := r3.Unit(forward)
	right := r3.Cross(up, z)
	if r3.Norm2(right) < 1e-12 {
		return identity, false
	}
	x := r3.Unit(right)
	y := r3.Cross(z, x)

	// Columns of the rotation matrix are x, y, z.
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	switch trace := m00 + m11 + m22; {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = quat.Number{Real: s / 4, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = quat.Number{Real: (m21 - m12) / s, Imag: s / 4, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: s / 4, Kmag: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: s / 4}
	}
	return normalize(q), true
}

// fromToRotation returns the shortest rotation taking from onto to.
func fromToRotation(from, to r3.Vec) quat.Number {
	if r3.Norm2(from) == 0 || r3.Norm2(to) == 0 {
		return identity
	}
	a, b := r3.Unit(from), r3.Unit(to)
	d := r3.Dot(a, b)

	if d >= 1-1e-9 {
		return identity
	}
	if d <= -1+1e-9 {
		// Opposite: half turn about any axis perpendicular to a
		axis := r3.Cross(r3.Vec{X: 1}, a)
		if r3.Norm2(axis) < 1e-12 {
			axis = r3.Cross(r3.Vec{Y: 1}, a)
		}
		axis = r3.Unit(axis)
		return quat.Number{Imag: axis.X, Jmag: axis.Y, Kmag: axis.Z}
	}

	c := r3.Cross(a, b)
	return normalize(quat.Number{Real: 1 + d, Imag: c.X, Jmag: c.Y, Kmag: c.Z})
}

// slerp interpolates along the shorter arc from a to b. t is clamped to
// [0, 1].
func slerp(a, b quat.Number, t float64) quat.Number {
	t = clamp(t, 0, 1)
	dot := qdot(a, b)
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > 0.9995 {
		return normalize(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}

	theta0 := math.Acos(dot)
	theta := theta0 * t
	sin0 := math.Sin(theta0)
	s0 := math.Cos(theta) - dot*math.Sin(theta)/sin0
	s1 := math.Sin(theta) / sin0
	return normalize(quat.Add(quat.Scale(s0, a), quat.Scale(s1, b)))
}

// angleBetween returns the rotation angle in radians separating a and b.
func angleBetween(a, b quat.Number) float64 {
	d := math.Abs(qdot(normalize(a), normalize(b)))
	return 2 * math.Acos(math.Min(1, d))
}

// rotate applies q to v.
func rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}
