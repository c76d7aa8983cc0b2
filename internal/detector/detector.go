// Package detector describes the 14 scintillation detectors: 12 NaI units
// and 2 BGO units, their boresights in the spacecraft frame, and the two
// binned spectral data types they produce.
package detector

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/unit"
)

// ID is the short detector name used in file names ("n0".."nb", "b0", "b1").
type ID string

// All lists every detector in index order.
var All = []ID{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8", "n9", "na", "nb", "b0", "b1"}

// Class separates the low-energy NaI units from the high-energy BGO units.
type Class int

const (
	NaI Class = iota
	BGO
)

func (c Class) String() string {
	if c == BGO {
		return "BGO"
	}
	return "NaI"
}

// GoodAngle is the largest source incidence angle, in degrees, at which a
// detector of this class still counts as viewing the source.
func (c Class) GoodAngle() float64 {
	if c == BGO {
		return 90
	}
	return 60
}

// Boresight zenith and azimuth in the spacecraft frame, degrees, index order.
var (
	boresightZenith  = [...]float64{20.58, 45.31, 90.21, 45.24, 90.27, 89.79, 20.43, 46.18, 89.97, 45.55, 90.42, 90.32, 90, 90}
	boresightAzimuth = [...]float64{45.89, 45.11, 58.44, 314.87, 303.15, 3.35, 224.93, 224.62, 236.61, 135.19, 123.73, 183.74, 0, 180}
)

// Parse accepts a short name ("n5", "NB"), a label ("NaI 5", "BGO 1") or an
// index ("0".."13").
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	low := strings.ToLower(s)
	for _, id := range All {
		if low == string(id) {
			return id, nil
		}
	}
	if id, err := FromLabel(s); err == nil {
		return id, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return FromIndex(n)
	}
	return "", fmt.Errorf("unknown detector %q", s)
}

// ParseList parses each entry; an empty list means every detector.
func ParseList(items []string) ([]ID, error) {
	if len(items) == 0 {
		return append([]ID(nil), All...), nil
	}
	seen := make(map[ID]bool)
	out := make([]ID, 0, len(items))
	for _, it := range items {
		id, err := Parse(it)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// FromIndex returns the detector at position i of All.
func FromIndex(i int) (ID, error) {
	if i < 0 || i >= len(All) {
		return "", fmt.Errorf("detector index %d out of range", i)
	}
	return All[i], nil
}

// FromLabel maps "NaI 0".."NaI B" and "BGO 0", "BGO 1" to IDs.
func FromLabel(label string) (ID, error) {
	for _, id := range All {
		if strings.EqualFold(id.Label(), strings.TrimSpace(label)) {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown detector label %q", label)
}

// Index returns the position of id in All, or -1.
func (id ID) Index() int {
	for i, d := range All {
		if d == id {
			return i
		}
	}
	return -1
}

// Valid reports whether id names a detector.
func (id ID) Valid() bool { return id.Index() >= 0 }

// Class returns NaI or BGO.
func (id ID) Class() Class {
	if strings.HasPrefix(string(id), "b") {
		return BGO
	}
	return NaI
}

// Label returns the human name, e.g. "NaI A" or "BGO 0".
func (id ID) Label() string {
	if len(id) != 2 {
		return string(id)
	}
	return id.Class().String() + " " + strings.ToUpper(string(id[1]))
}

// Boresight returns the detector normal as zenith and azimuth angles in the
// spacecraft frame.
func (id ID) Boresight() (zenith, azimuth unit.Angle) {
	i := id.Index()
	if i < 0 {
		return 0, 0
	}
	return unit.AngleFromDeg(boresightZenith[i]), unit.AngleFromDeg(boresightAzimuth[i])
}

// Normal returns the boresight as a unit vector in the spacecraft frame.
func (id ID) Normal() coord.Cart {
	zen, az := id.Boresight()
	sz, cz := math.Sincos(zen.Rad())
	sa, ca := math.Sincos(az.Rad())
	return coord.Cart{X: sz * ca, Y: sz * sa, Z: cz}
}

func (id ID) String() string { return string(id) }
