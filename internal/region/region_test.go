package region

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func mustOffsets(t *testing.T, tokens ...string) []Offset {
	t.Helper()
	o, err := ParseOffsets(tokens)
	if err != nil {
		t.Fatalf("ParseOffsets(%v): %v", tokens, err)
	}
	return o
}

func TestComputeSymmetry(t *testing.T) {
	const (
		t0     = 323894400.0
		tmin   = -100.0
		tmax   = 500.0
		period = DefaultPeriod
	)
	offsets := mustOffsets(t, "14", "15.5", "src", "30")
	s := Compute(t0, tmin, tmax, offsets, period)

	src := s.Src()
	if src.Start != t0+tmin || src.End != t0+tmax {
		t.Fatalf("src = %+v", src)
	}

	for _, o := range s.BackgroundOffsets() {
		pre, ok := s.Range(PreOf(o))
		if !ok {
			t.Fatalf("missing pre%s", o)
		}
		pos, ok := s.Range(PosOf(o))
		if !ok {
			t.Fatalf("missing pos%s", o)
		}
		if math.Abs(pre.Duration()-src.Duration()) > 1e-6 || math.Abs(pos.Duration()-src.Duration()) > 1e-6 {
			t.Errorf("offset %s: durations pre=%v pos=%v src=%v", o, pre.Duration(), pos.Duration(), src.Duration())
		}
		shift := period * o.Orbits()
		if math.Abs(pre.Start-(src.Start-shift)) > 1e-6 {
			t.Errorf("pre%s start = %v, want %v", o, pre.Start, src.Start-shift)
		}
		if math.Abs(pos.Start-(src.Start+shift)) > 1e-6 {
			t.Errorf("pos%s start = %v, want %v", o, pos.Start, src.Start+shift)
		}
	}
}

func TestComputeKeys(t *testing.T) {
	s := Compute(0, 0, 10, mustOffsets(t, "src", "14", "16"), 100)
	var got []string
	for _, k := range s.Kinds() {
		got = append(got, k.String())
	}
	want := []string{"src", "pre14", "pos14", "pre16", "pos16"}
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"src", 0, false},
		{"14", 14, false},
		{" 2.5 ", 2.5, false},
		{"abc", 0, true},
		{"-3", 0, true},
		{"0", 0, true},
	}
	for _, tt := range tests {
		o, err := ParseOffset(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOffset(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && o.Orbits() != tt.want {
			t.Errorf("ParseOffset(%q) = %v, want %v", tt.in, o.Orbits(), tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"src", "pre14", "pos2.5"} {
		k, err := ParseKind(s)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", s, err)
		}
		if k.String() != s {
			t.Errorf("ParseKind(%q).String() = %q", s, k.String())
		}
	}
	for _, s := range []string{"", "pre", "presrc", "mid14"} {
		if _, err := ParseKind(s); err == nil {
			t.Errorf("ParseKind(%q) expected error", s)
		}
	}
}

func TestKindMapKeys(t *testing.T) {
	set := Compute(1000, -10, 20, mustOffsets(t, "14", "src"), DefaultPeriod)
	in := make(map[Kind]TimeRange)
	for _, k := range set.Kinds() {
		in[k], _ = set.Range(k)
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"pre14"`) {
		t.Errorf("encoded keys %s, want region names", b)
	}
	var out map[Kind]TimeRange
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) || out[SrcKind] != in[SrcKind] {
		t.Errorf("decoded %v, want %v", out, in)
	}

	if err := json.Unmarshal([]byte(`{"mid3":{}}`), &out); err == nil {
		t.Error("unknown region key accepted")
	}
}
