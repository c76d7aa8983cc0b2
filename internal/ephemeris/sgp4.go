// Package ephemeris estimates the orbital period from a two-line element
// set when no position-history files are available.
package ephemeris

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/coord"

	"github.com/star/orbsub/internal/geometry"
	"github.com/star/orbsub/internal/transform"
)

// Propagator wraps an SGP4 model of the spacecraft.
//
// go-satellite calls log.Fatal on malformed input, so lines are validated
// before they reach it.
type Propagator struct {
	sat        satellite.Satellite
	catalog    int
	meanMotion float64 // revolutions per day
}

// New creates a propagator from TLE lines.
func New(line1, line2 string) (*Propagator, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE: %w", err)
	}
	catalog, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return nil, fmt.Errorf("invalid TLE catalog number: %w", err)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid TLE mean motion %q", line2[52:63])
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %d: code=%d %s", catalog, sat.Error, sat.ErrorStr)
	}
	return &Propagator{sat: sat, catalog: catalog, meanMotion: n}, nil
}

func validateTLELines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Catalog returns the satellite catalog number.
func (p *Propagator) Catalog() int { return p.catalog }

// MeanMotionPeriod is the period implied by the element set, seconds.
func (p *Propagator) MeanMotionPeriod() float64 { return 86400 / p.meanMotion }

// Position returns the inertial (TEME) position at t in metres.
func (p *Propagator) Position(t time.Time) (coord.Cart, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	c := coord.Cart{X: pos.X * 1000, Y: pos.Y * 1000, Z: pos.Z * 1000}
	if !transform.ValidOrbit(c) {
		return coord.Cart{}, fmt.Errorf("sgp4 propagation failed for %d: position (%g, %g, %g) km is not a valid orbit",
			p.catalog, pos.X, pos.Y, pos.Z)
	}
	return c, nil
}

// Positions samples one nominal orbit starting at t every step.
func (p *Propagator) Positions(t time.Time, step time.Duration) ([]coord.Cart, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %s", step)
	}
	span := time.Duration(p.MeanMotionPeriod() * float64(time.Second))
	var out []coord.Cart
	for dt := time.Duration(0); dt < span; dt += step {
		c, err := p.Position(t.Add(dt))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Period is the circular-orbit period of the propagated positions over one
// orbit starting at t, computed the same way as from position history.
func (p *Propagator) Period(t time.Time) (float64, error) {
	pos, err := p.Positions(t, time.Minute)
	if err != nil {
		return 0, err
	}
	return geometry.Period(pos)
}
