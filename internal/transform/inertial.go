// Package transform holds the frame arithmetic behind the geometry engine:
// sidereal time, the inertial to earth-fixed rotation, geodetic conversion
// and spacecraft body axes from attitude quaternions.
//
// The inertial to earth-fixed rotation uses GMST only. Polar motion and the
// equation of the equinoxes are ignored, which is well inside the accuracy
// needed for a sub-satellite point.
package transform

import (
	"math"

	"github.com/soniakeys/coord"
)

// InertialToEarthFixed rotates an inertial position about the z-axis by the
// sidereal angle gmst (radians). Units are preserved.
func InertialToEarthFixed(p coord.Cart, gmst float64) coord.Cart {
	s, c := math.Sincos(gmst)
	return coord.Cart{
		X: p.X*c + p.Y*s,
		Y: -p.X*s + p.Y*c,
		Z: p.Z,
	}
}

// ValidOrbit reports whether a position in metres is finite and between the
// Earth's surface and a high orbit.
func ValidOrbit(p coord.Cart) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	const (
		minRadius = 6200e3
		maxRadius = 50000e3
	)
	r := math.Sqrt(p.Square())
	return r >= minRadius && r <= maxRadius
}
