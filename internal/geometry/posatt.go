package geometry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/soniakeys/coord"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/met"
	"github.com/star/orbsub/internal/region"
	"github.com/star/orbsub/internal/transform"
)

var (
	// ErrNoCoordinates is returned when a source-dependent product is
	// requested without a source position.
	ErrNoCoordinates = errors.New("geometry: no source coordinates set")
	// ErrNoAttitude is returned when no position/attitude samples are loaded.
	ErrNoAttitude = errors.New("geometry: no position/attitude data")
)

// Samples is one read of position history: time (MET), position (metres,
// inertial) and attitude quaternion per sample, and the sub-satellite point
// when the file carries it.
type Samples struct {
	Time       []float64
	Position   []coord.Cart
	Quaternion []transform.Quaternion
	// Geo is nil when the file has no geographic columns.
	Geo []transform.GeoPoint
}

// Len returns the number of samples.
func (s Samples) Len() int { return len(s.Time) }

func (s Samples) validate() error {
	n := len(s.Time)
	if len(s.Position) != n || len(s.Quaternion) != n {
		return fmt.Errorf("geometry: %d times, %d positions, %d quaternions", n, len(s.Position), len(s.Quaternion))
	}
	if s.Geo != nil && len(s.Geo) != n {
		return fmt.Errorf("geometry: %d times, %d geographic points", n, len(s.Geo))
	}
	return nil
}

// RegionAngles are the source angles for each region of a run.
type RegionAngles map[region.Kind]Angles

// PositionAttitude concatenates the position history of every day a run
// needs and caches the products derived from it. Caches are filled on first
// use and cleared by Invalidate. A PositionAttitude is not safe for
// concurrent use.
type PositionAttitude struct {
	samples Samples
	hasGeo  bool

	period    float64
	periodSet bool

	anglesFor *cacheKey
	angles    RegionAngles

	stepsFor *Source
	steps    Steps
}

type cacheKey struct {
	regions *region.Set
	src     Source
}

// NewPositionAttitude concatenates parts in order. Geographic points are
// kept only if every part has them.
func NewPositionAttitude(parts ...Samples) (*PositionAttitude, error) {
	pa := &PositionAttitude{hasGeo: len(parts) > 0}
	for i, p := range parts {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		if p.Geo == nil {
			pa.hasGeo = false
		}
	}
	for _, p := range parts {
		pa.samples.Time = append(pa.samples.Time, p.Time...)
		pa.samples.Position = append(pa.samples.Position, p.Position...)
		pa.samples.Quaternion = append(pa.samples.Quaternion, p.Quaternion...)
		if pa.hasGeo {
			pa.samples.Geo = append(pa.samples.Geo, p.Geo...)
		}
	}
	if pa.samples.Len() == 0 {
		return nil, ErrNoAttitude
	}
	return pa, nil
}

// Len returns the number of samples.
func (pa *PositionAttitude) Len() int { return pa.samples.Len() }

// Span returns the first and last sample times.
func (pa *PositionAttitude) Span() region.TimeRange {
	t := pa.samples.Time
	return region.TimeRange{Start: t[0], End: t[len(t)-1]}
}

// HasGeo reports whether the files supplied the sub-satellite point.
func (pa *PositionAttitude) HasGeo() bool { return pa.hasGeo }

// Invalidate clears every cached product.
func (pa *PositionAttitude) Invalidate() {
	pa.periodSet = false
	pa.anglesFor = nil
	pa.angles = nil
	pa.stepsFor = nil
}

// Period returns the circular-orbit period of the samples.
func (pa *PositionAttitude) Period() float64 {
	if !pa.periodSet {
		// Samples are never empty, so Period cannot fail here.
		pa.period, _ = Period(pa.samples.Position)
		pa.periodSet = true
	}
	return pa.period
}

// Angles returns source angles for the samples strictly inside each region.
func (pa *PositionAttitude) Angles(regions *region.Set, src Source) RegionAngles {
	key := cacheKey{regions: regions, src: src}
	if pa.anglesFor != nil && *pa.anglesFor == key {
		return pa.angles
	}
	out := make(RegionAngles, len(regions.Kinds()))
	for _, k := range regions.Kinds() {
		r, _ := regions.Range(k)
		sub := pa.within(r)
		out[k] = ComputeAngles(sub.Time, sub.Position, sub.Quaternion, src)
	}
	pa.anglesFor = &key
	pa.angles = out
	return out
}

// GTI returns per-detector good time intervals over the source region.
func (pa *PositionAttitude) GTI(regions *region.Set, src Source) map[detector.ID][]Interval {
	return GTIs(pa.Angles(regions, src)[region.SrcKind])
}

// Steps returns the occultation steps over all samples.
func (pa *PositionAttitude) Steps(src Source) Steps {
	if pa.stepsFor != nil && *pa.stepsFor == src {
		return pa.steps
	}
	pa.steps = OccultationSteps(src, pa.samples.Time, pa.samples.Position)
	s := src
	pa.stepsFor = &s
	return pa.steps
}

// Occultations pairs the steps into occultation intervals over the span of
// the samples.
func (pa *PositionAttitude) Occultations(src Source) ([]Interval, error) {
	span := pa.Span()
	return OccultationIntervals(pa.Steps(src), span.Start, span.End)
}

// SubPoint returns the geographic point beneath sample i, from the file when
// available and otherwise derived from the position and sidereal time.
func (pa *PositionAttitude) SubPoint(i int) transform.GeoPoint {
	if pa.hasGeo {
		return pa.samples.Geo[i]
	}
	gmst := transform.GMSTFromJD(met.ToJD(pa.samples.Time[i]))
	return transform.ToGeodetic(transform.InertialToEarthFixed(pa.samples.Position[i], gmst))
}

// SubPointAt returns the sub-satellite point of the sample nearest t.
func (pa *PositionAttitude) SubPointAt(t float64) (transform.GeoPoint, error) {
	ts := pa.samples.Time
	if len(ts) == 0 {
		return transform.GeoPoint{}, ErrNoAttitude
	}
	i := sort.SearchFloat64s(ts, t)
	switch {
	case i == len(ts):
		i--
	case i > 0 && t-ts[i-1] < ts[i]-t:
		i--
	}
	return pa.SubPoint(i), nil
}

func (pa *PositionAttitude) within(r region.TimeRange) Samples {
	var s Samples
	for i, t := range pa.samples.Time {
		if !r.Inside(t) {
			continue
		}
		s.Time = append(s.Time, t)
		s.Position = append(s.Position, pa.samples.Position[i])
		s.Quaternion = append(s.Quaternion, pa.samples.Quaternion[i])
	}
	return s
}
