package geometry

import (
	"math"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/unit"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/transform"
)

// Source is a sky position in equatorial coordinates.
type Source struct {
	RA  unit.Angle
	Dec unit.Angle
}

// SourceFromDeg builds a Source from degrees.
func SourceFromDeg(ra, dec float64) Source {
	return Source{RA: unit.AngleFromDeg(ra), Dec: unit.AngleFromDeg(dec)}
}

// Angles are source angles sampled at Time, all in degrees.
type Angles struct {
	Time []float64
	// Zenith is the angle between the spacecraft z-axis and the source.
	Zenith []float64
	// Geocentre is the angle between the nadir direction and the source.
	Geocentre []float64
	// Detector holds the incidence angle on each detector's boresight.
	Detector map[detector.ID][]float64
}

// Len returns the number of samples.
func (a Angles) Len() int { return len(a.Time) }

// ComputeAngles evaluates the source angles for every sample.
func ComputeAngles(time []float64, pos []coord.Cart, quat []transform.Quaternion, src Source) Angles {
	n := len(time)
	out := Angles{
		Time:      append([]float64(nil), time...),
		Zenith:    make([]float64, n),
		Geocentre: make([]float64, n),
		Detector:  make(map[detector.ID][]float64, len(detector.All)),
	}
	normals := make([]coord.Cart, len(detector.All))
	for j, id := range detector.All {
		normals[j] = id.Normal()
		out.Detector[id] = make([]float64, n)
	}

	s := transform.SourceVector(src.RA, src.Dec)
	for i := 0; i < n; i++ {
		x, y, z := transform.BodyAxes(quat[i])
		out.Zenith[i] = transform.Separation(&s, &z)

		var nadir coord.Cart
		nadir.MulScalar(&pos[i], -1)
		out.Geocentre[i] = transform.Separation(&nadir, &s)

		body := transform.ToBody(s, &x, &y, &z)
		for j, id := range detector.All {
			out.Detector[id][i] = transform.Separation(&normals[j], &body)
		}
	}
	return out
}

// Visible reports, per sample, whether the detector views the source within
// its class threshold.
func (a Angles) Visible(id detector.ID) []bool {
	ang := a.Detector[id]
	limit := id.Class().GoodAngle()
	out := make([]bool, len(ang))
	for i, v := range ang {
		out[i] = !math.IsNaN(v) && v < limit
	}
	return out
}
