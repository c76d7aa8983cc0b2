package ephemeris

import (
	"math"
	"strings"
	"testing"
	"time"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

var epoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

func TestNewRejectsMalformed(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"short line1", issLine1[:60], issLine2},
		{"short line2", issLine1, issLine2[:60]},
		{"swapped", issLine2, issLine1},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.line1, tt.line2); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMeanMotionPeriod(t *testing.T) {
	p, err := New(issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Catalog() != 25544 {
		t.Errorf("Catalog = %d, want 25544", p.Catalog())
	}
	want := 86400 / 15.5
	if got := p.MeanMotionPeriod(); math.Abs(got-want) > 1e-9 {
		t.Errorf("MeanMotionPeriod = %v, want %v", got, want)
	}
}

func TestPosition(t *testing.T) {
	p, err := New(issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	c, err := p.Position(epoch)
	if err != nil {
		t.Fatal(err)
	}
	r := math.Sqrt(c.Square())
	if r < 6.6e6 || r > 6.9e6 {
		t.Errorf("radius = %.0f m, want low Earth orbit", r)
	}
}

func TestPositionRejectsHighOrbit(t *testing.T) {
	// Half a revolution per day puts the semi-major axis near 67000 km.
	line2 := strings.Replace(issLine2, "15.50000000", " 0.50000000", 1)
	p, err := New(issLine1, line2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Position(epoch); err == nil {
		t.Error("expected an error beyond the valid orbit range")
	}
}

func TestPeriod(t *testing.T) {
	p, err := New(issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Period(epoch)
	if err != nil {
		t.Fatal(err)
	}
	want := p.MeanMotionPeriod()
	if math.Abs(got-want)/want > 0.01 {
		t.Errorf("Period = %.1f s, want within 1%% of %.1f s", got, want)
	}
}

func TestPositionsStep(t *testing.T) {
	p, err := New(issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Positions(epoch, 0); err == nil {
		t.Error("expected error for zero step")
	}
	pos, err := p.Positions(epoch, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(pos) != 10 {
		t.Errorf("got %d samples, want 10", len(pos))
	}
}
