package transform

import (
	"math"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/unit"
)

// Quaternion is a spacecraft attitude (q1, q2, q3, scalar q4).
type Quaternion [4]float64

// BodyAxes returns the spacecraft x, y and z axes in the inertial frame.
func BodyAxes(q Quaternion) (x, y, z coord.Cart) {
	q0, q1, q2, q3 := q[0], q[1], q[2], q[3]
	x = coord.Cart{
		X: q0*q0 - q1*q1 - q2*q2 + q3*q3,
		Y: 2 * (q0*q1 + q3*q2),
		Z: 2 * (q0*q2 - q3*q1),
	}
	y = coord.Cart{
		X: 2 * (q0*q1 - q3*q2),
		Y: -q0*q0 + q1*q1 - q2*q2 + q3*q3,
		Z: 2 * (q1*q2 + q3*q0),
	}
	z = coord.Cart{
		X: 2 * (q0*q2 + q3*q1),
		Y: 2 * (q1*q2 - q3*q0),
		Z: -q0*q0 - q1*q1 + q2*q2 + q3*q3,
	}
	return x, y, z
}

// ToBody expresses an inertial vector in the frame of the given axes.
func ToBody(v coord.Cart, x, y, z *coord.Cart) coord.Cart {
	return coord.Cart{X: x.Dot(&v), Y: y.Dot(&v), Z: z.Dot(&v)}
}

// SourceVector returns the inertial unit vector toward right ascension ra
// and declination dec.
func SourceVector(ra, dec unit.Angle) coord.Cart {
	sr, cr := math.Sincos(ra.Rad())
	sd, cd := math.Sincos(dec.Rad())
	return coord.Cart{X: cd * cr, Y: cd * sr, Z: sd}
}

// Separation returns the angle between two vectors in degrees.
func Separation(a, b *coord.Cart) float64 {
	den := math.Sqrt(a.Square() * b.Square())
	if den == 0 {
		return math.NaN()
	}
	c := a.Dot(b) / den
	c = math.Max(-1, math.Min(1, c))
	return unit.Angle(math.Acos(c)).Deg()
}
