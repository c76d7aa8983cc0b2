// Package region computes the absolute time windows of a run: the on-source
// window and, for every orbit offset, the windows one offset earlier (pre)
// and later (pos).
package region

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPeriod is the assumed orbital period in seconds before any
// measurement from attitude data.
const DefaultPeriod = 5737.70910239

// Offset is an orbit-count token. The token "src" denotes zero offset; any
// other token is a decimal multiple of the orbital period.
type Offset struct {
	token  string
	orbits float64
}

// Source is the zero-offset token.
var Source = Offset{token: "src"}

// ParseOffset parses "src" or a decimal orbit count such as "14" or "15.5".
func ParseOffset(s string) (Offset, error) {
	s = strings.TrimSpace(s)
	if s == Source.token {
		return Source, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Offset{}, fmt.Errorf("offset %q: not a number", s)
	}
	if n <= 0 {
		return Offset{}, fmt.Errorf("offset %q: must be positive", s)
	}
	return Offset{token: s, orbits: n}, nil
}

// ParseOffsets parses a list of tokens, dropping duplicates.
func ParseOffsets(tokens []string) ([]Offset, error) {
	seen := make(map[Offset]bool, len(tokens))
	out := make([]Offset, 0, len(tokens))
	for _, tok := range tokens {
		o, err := ParseOffset(tok)
		if err != nil {
			return nil, err
		}
		if seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out, nil
}

// IsSource reports whether o is the zero offset.
func (o Offset) IsSource() bool { return o == Source }

// Orbits returns the number of periods the offset spans.
func (o Offset) Orbits() float64 { return o.orbits }

func (o Offset) String() string { return o.token }

// Side tells which window of an offset a region is.
type Side int

const (
	Src Side = iota
	Pre
	Pos
)

func (s Side) String() string {
	switch s {
	case Pre:
		return "pre"
	case Pos:
		return "pos"
	default:
		return "src"
	}
}

// Kind names a region: the source window, or the pre/pos window of an offset.
type Kind struct {
	Side   Side
	Offset Offset
}

// SrcKind is the on-source region.
var SrcKind = Kind{Side: Src, Offset: Source}

// PreOf returns the region one offset before the source window.
func PreOf(o Offset) Kind { return Kind{Side: Pre, Offset: o} }

// PosOf returns the region one offset after the source window.
func PosOf(o Offset) Kind { return Kind{Side: Pos, Offset: o} }

// String renders the kind as "src", "pre14" or "pos14".
func (k Kind) String() string {
	if k.Side == Src {
		return "src"
	}
	return k.Side.String() + k.Offset.String()
}

// MarshalText renders k as its String form, so kinds can key JSON maps.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText parses a kind written by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	if s == "src" {
		return SrcKind, nil
	}
	if len(s) < 4 {
		return Kind{}, fmt.Errorf("region %q: unknown", s)
	}
	var side Side
	switch s[:3] {
	case "pre":
		side = Pre
	case "pos":
		side = Pos
	default:
		return Kind{}, fmt.Errorf("region %q: unknown side", s)
	}
	o, err := ParseOffset(s[3:])
	if err != nil || o.IsSource() {
		return Kind{}, fmt.Errorf("region %q: bad offset", s)
	}
	return Kind{Side: side, Offset: o}, nil
}

// TimeRange is a closed interval of MET seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (r TimeRange) Duration() float64 { return r.End - r.Start }

// Shift returns the range moved by dt seconds.
func (r TimeRange) Shift(dt float64) TimeRange {
	return TimeRange{Start: r.Start + dt, End: r.End + dt}
}

// Inside reports whether t lies strictly inside the range.
func (r TimeRange) Inside(t float64) bool { return t > r.Start && t < r.End }

// Covers reports whether the bin [start, end] lies within the range.
func (r TimeRange) Covers(start, end float64) bool {
	return start >= r.Start && end <= r.End
}

// Set holds the regions of one run. A Set is immutable; a new period means
// a new Set.
type Set struct {
	zero    float64
	period  float64
	offsets []Offset
	kinds   []Kind
	ranges  map[Kind]TimeRange
}

// Compute builds the regions for zero time t0, a window [tmin, tmax]
// relative to t0, the given offsets and orbital period.
func Compute(t0, tmin, tmax float64, offsets []Offset, period float64) *Set {
	src := TimeRange{Start: t0 + tmin, End: t0 + tmax}
	s := &Set{
		zero:    t0,
		period:  period,
		offsets: append([]Offset(nil), offsets...),
		ranges:  map[Kind]TimeRange{SrcKind: src},
		kinds:   []Kind{SrcKind},
	}
	for _, o := range offsets {
		if o.IsSource() {
			continue
		}
		pre, pos := PreOf(o), PosOf(o)
		if _, dup := s.ranges[pre]; dup {
			continue
		}
		shift := period * o.Orbits()
		s.ranges[pre] = src.Shift(-shift)
		s.ranges[pos] = src.Shift(shift)
		s.kinds = append(s.kinds, pre, pos)
	}
	return s
}

// Period returns the orbital period the set was computed with.
func (s *Set) Period() float64 { return s.period }

// Zero returns the reference time.
func (s *Set) Zero() float64 { return s.zero }

// Src returns the on-source range.
func (s *Set) Src() TimeRange { return s.ranges[SrcKind] }

// Range returns the range for kind k.
func (s *Set) Range(k Kind) (TimeRange, bool) {
	r, ok := s.ranges[k]
	return r, ok
}

// Kinds lists the regions, source first, then pre/pos pairs in offset order.
func (s *Set) Kinds() []Kind {
	return append([]Kind(nil), s.kinds...)
}

// BackgroundOffsets returns the non-source offsets in order.
func (s *Set) BackgroundOffsets() []Offset {
	var out []Offset
	for _, k := range s.kinds {
		if k.Side == Pre {
			out = append(out, k.Offset)
		}
	}
	return out
}
