package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/soniakeys/coord"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/region"
	"github.com/star/orbsub/internal/transform"
)

const orbitRadius = 6800e3

// circularOrbit samples an equatorial circle of orbitRadius at one sample
// per degree, with time in seconds equal to the angle in degrees.
func circularOrbit(degrees int) Samples {
	var s Samples
	for d := 0; d <= degrees; d++ {
		th := float64(d) * math.Pi / 180
		s.Time = append(s.Time, float64(d))
		s.Position = append(s.Position, coord.Cart{X: orbitRadius * math.Cos(th), Y: orbitRadius * math.Sin(th)})
		s.Quaternion = append(s.Quaternion, transform.Quaternion{0, 0, 0, 1})
	}
	return s
}

func TestPeriod(t *testing.T) {
	s := circularOrbit(359)
	got, err := Period(s.Position)
	if err != nil {
		t.Fatal(err)
	}
	want := 2 * math.Pi * math.Sqrt(math.Pow(orbitRadius, 3)/(G*EarthMass))
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("Period = %v, want %v", got, want)
	}
	if got < 5550 || got > 5750 {
		t.Errorf("Period = %v, outside LEO range", got)
	}
	if _, err := Period(nil); !errors.Is(err, ErrNoPositions) {
		t.Errorf("Period(nil) error = %v", err)
	}
}

func TestComputeAngles(t *testing.T) {
	s := Samples{
		Time:       []float64{0},
		Position:   []coord.Cart{{X: orbitRadius}},
		Quaternion: []transform.Quaternion{{0, 0, 0, 1}},
	}
	a := ComputeAngles(s.Time, s.Position, s.Quaternion, SourceFromDeg(0, 90))
	if math.Abs(a.Zenith[0]) > 1e-9 {
		t.Errorf("zenith = %v, want 0", a.Zenith[0])
	}
	if math.Abs(a.Geocentre[0]-90) > 1e-9 {
		t.Errorf("geocentre = %v, want 90", a.Geocentre[0])
	}
	tests := []struct {
		id   detector.ID
		want float64
	}{
		{"n0", 20.58},
		{"n6", 20.43},
		{"n2", 90.21},
		{"b0", 90},
	}
	for _, tt := range tests {
		if got := a.Detector[tt.id][0]; math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s angle = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestMakeGTI(t *testing.T) {
	tests := []struct {
		name string
		good []bool
		want []Interval
	}{
		{"none", []bool{false, false, false}, nil},
		{"two runs", []bool{false, true, true, false, true, true}, []Interval{{Start: 1, End: 3}, {Start: 4, End: 6}}},
		{"all", []bool{true, true, true}, []Interval{{Start: 0, End: 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			time := make([]float64, len(tt.good))
			for i := range time {
				time[i] = float64(i)
			}
			got := MakeGTI(time, tt.good)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestGTIsThresholds(t *testing.T) {
	s := Samples{
		Time:       []float64{0, 1, 2},
		Position:   []coord.Cart{{X: orbitRadius}, {X: orbitRadius}, {X: orbitRadius}},
		Quaternion: []transform.Quaternion{{0, 0, 0, 1}, {0, 0, 0, 1}, {0, 0, 0, 1}},
	}

	// Source along +z: only the NaI units tilted toward z see it.
	gti := GTIs(ComputeAngles(s.Time, s.Position, s.Quaternion, SourceFromDeg(0, 90)))
	for _, id := range []detector.ID{"n0", "n1", "n3", "n6", "n7", "n9"} {
		if _, ok := gti[id]; !ok {
			t.Errorf("%s missing from GTIs", id)
		}
	}
	for _, id := range []detector.ID{"n2", "n4", "n5", "n8", "na", "nb"} {
		if _, ok := gti[id]; ok {
			t.Errorf("%s unexpectedly has a GTI", id)
		}
	}
	if got := gti["n0"]; len(got) != 1 || got[0].Start != 0 || got[0].End != 3 {
		t.Errorf("n0 GTI = %v", got)
	}

	// Source along +x: BGO 0 faces it, BGO 1 faces away.
	gti = GTIs(ComputeAngles(s.Time, s.Position, s.Quaternion, SourceFromDeg(0, 0)))
	if _, ok := gti["b0"]; !ok {
		t.Error("b0 missing from GTIs")
	}
	if _, ok := gti["b1"]; ok {
		t.Error("b1 unexpectedly has a GTI")
	}
}

func TestOccultationSteps(t *testing.T) {
	s := circularOrbit(360)
	st := OccultationSteps(SourceFromDeg(0, 0), s.Time, s.Position)
	if len(st.Sets) != 1 || len(st.Rises) != 1 {
		t.Fatalf("steps = %+v, want one set and one rise", st)
	}
	edge := math.Asin((EarthRadius+HorizonAltitude)/orbitRadius) * 180 / math.Pi
	if want := 180 - edge; math.Abs(st.Sets[0]-want) > 0.05 {
		t.Errorf("set = %v, want %v", st.Sets[0], want)
	}
	if want := 180 + edge; math.Abs(st.Rises[0]-want) > 0.05 {
		t.Errorf("rise = %v, want %v", st.Rises[0], want)
	}

	iv, err := OccultationIntervals(st, s.Time[0], s.Time[len(s.Time)-1])
	if err != nil {
		t.Fatal(err)
	}
	if len(iv) != 1 || iv[0].Start != st.Sets[0] || iv[0].End != st.Rises[0] {
		t.Errorf("intervals = %v", iv)
	}
}

func TestOccultationIntervals(t *testing.T) {
	tests := []struct {
		name    string
		steps   Steps
		want    []Interval
		wantErr bool
	}{
		{
			name:  "equal, set first pairs directly",
			steps: Steps{Sets: []float64{10, 30}, Rises: []float64{20, 40}},
			want:  []Interval{{Start: 10, End: 20}, {Start: 30, End: 40}},
		},
		{
			name:  "equal, rise first extends once at each end",
			steps: Steps{Sets: []float64{20, 40}, Rises: []float64{10, 30}},
			want:  []Interval{{Start: 0, End: 10}, {Start: 20, End: 30}, {Start: 40, End: 100}},
		},
		{
			name:  "extra set drops the last set",
			steps: Steps{Sets: []float64{10, 30}, Rises: []float64{20}},
			want:  []Interval{{Start: 10, End: 20}},
		},
		{
			name:  "extra rise drops the first rise",
			steps: Steps{Sets: []float64{20}, Rises: []float64{10, 30}},
			want:  []Interval{{Start: 20, End: 30}},
		},
		{
			name:    "extra set after a rise",
			steps:   Steps{Sets: []float64{20, 40}, Rises: []float64{10}},
			wantErr: true,
		},
		{
			name:    "extra rise after a set",
			steps:   Steps{Sets: []float64{10}, Rises: []float64{20, 30}},
			wantErr: true,
		},
		{
			name:    "two extra sets",
			steps:   Steps{Sets: []float64{10, 20, 30}, Rises: []float64{15}},
			wantErr: true,
		},
		{name: "no steps", steps: Steps{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OccultationIntervals(tt.steps, 0, 100)
			if tt.wantErr {
				var ige *InconsistentGeometryError
				if !errors.As(err, &ige) {
					t.Fatalf("error = %v, want InconsistentGeometryError", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestPositionAttitudeCaches(t *testing.T) {
	a := circularOrbit(180)
	b := circularOrbit(180)
	for i := range b.Time {
		b.Time[i] += 1000
	}
	a.Geo = make([]transform.GeoPoint, a.Len())

	pa, err := NewPositionAttitude(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if pa.Len() != a.Len()+b.Len() {
		t.Errorf("Len = %d", pa.Len())
	}
	if pa.HasGeo() {
		t.Error("geo should be unavailable when one part lacks it")
	}
	if span := pa.Span(); span.Start != 0 || span.End != 1180 {
		t.Errorf("Span = %+v", span)
	}

	regions := region.Compute(1050, -20, 20, []region.Offset{region.Source}, 5000)
	src := SourceFromDeg(0, 90)
	ang := pa.Angles(regions, src)
	if n := ang[region.SrcKind].Len(); n != 39 {
		t.Errorf("src samples = %d, want 39", n)
	}
	if pa.anglesFor == nil {
		t.Fatal("angles not cached")
	}
	_ = pa.Period()
	pa.Invalidate()
	if pa.anglesFor != nil || pa.periodSet {
		t.Error("Invalidate left cached products")
	}

	if _, err := NewPositionAttitude(); !errors.Is(err, ErrNoAttitude) {
		t.Errorf("empty error = %v, want ErrNoAttitude", err)
	}
	bad := Samples{Time: []float64{0, 1}, Position: []coord.Cart{{}}, Quaternion: nil}
	if _, err := NewPositionAttitude(bad); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestSubPointDerived(t *testing.T) {
	pa, err := NewPositionAttitude(circularOrbit(10))
	if err != nil {
		t.Fatal(err)
	}
	g := pa.SubPoint(0)
	if math.Abs(g.Lat) > 1e-6 {
		t.Errorf("equatorial orbit latitude = %v", g.Lat)
	}
	if want := orbitRadius - 6378137.0; math.Abs(g.Alt-want) > 1 {
		t.Errorf("altitude = %v, want %v", g.Alt, want)
	}
}

func TestSubPointAt(t *testing.T) {
	s := circularOrbit(10)
	for i := range s.Time {
		s.Geo = append(s.Geo, transform.GeoPoint{Lon: float64(i)})
	}
	pa, err := NewPositionAttitude(s)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		at   float64
		want float64
	}{
		{-5, 0},
		{0, 0},
		{3.4, 3},
		{3.6, 4},
		{10, 10},
		{50, 10},
	}
	for _, tt := range tests {
		g, err := pa.SubPointAt(tt.at)
		if err != nil {
			t.Fatal(err)
		}
		if g.Lon != tt.want {
			t.Errorf("SubPointAt(%v) lon = %v, want %v", tt.at, g.Lon, tt.want)
		}
	}
}
