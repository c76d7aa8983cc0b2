// Package geometry derives orbit and viewing products from spacecraft
// position and attitude samples: the orbital period, source incidence
// angles per detector, good time intervals and Earth occultation times.
package geometry

import (
	"errors"
	"math"

	"github.com/soniakeys/coord"
)

const (
	// G is the gravitational constant, m^3 kg^-1 s^-2.
	G = 6.67428e-11
	// EarthMass in kg.
	EarthMass = 5.9722e24
)

// ErrNoPositions is returned when a period is requested from no samples.
var ErrNoPositions = errors.New("geometry: no position samples")

// Period returns the orbital period in seconds for a circular orbit whose
// radius is the mean distance of the samples (metres) from the Earth's centre.
func Period(pos []coord.Cart) (float64, error) {
	if len(pos) == 0 {
		return 0, ErrNoPositions
	}
	var sum float64
	for i := range pos {
		sum += math.Sqrt(pos[i].Square())
	}
	r := sum / float64(len(pos))
	return 2 * math.Pi * math.Sqrt(r*r*r/(G*EarthMass)), nil
}
