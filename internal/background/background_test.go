package background

import (
	"errors"
	"math"
	"testing"

	"github.com/star/orbsub/internal/rebin"
	"github.com/star/orbsub/internal/region"
)

func flat(n, nch int, counts, errv, exp float64) rebin.Series {
	s := rebin.Series{
		Centres:  make([]float64, n),
		Counts:   make([][]float64, n),
		Error:    make([][]float64, n),
		Exposure: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.Centres[i] = float64(i)
		s.Exposure[i] = exp
		s.Counts[i] = make([]float64, nch)
		s.Error[i] = make([]float64, nch)
		for c := 0; c < nch; c++ {
			s.Counts[i][c] = counts
			s.Error[i][c] = errv
		}
	}
	return s
}

func offsets(t *testing.T, tokens ...string) []region.Offset {
	t.Helper()
	o, err := region.ParseOffsets(tokens)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestAverageConservation(t *testing.T) {
	off := offsets(t, "14", "src")
	k14 := off[0]
	data := map[region.Kind]rebin.Series{
		region.SrcKind:    flat(30, 4, 100, 10, 4),
		region.PreOf(k14): flat(30, 4, 100, 10, 4),
		region.PosOf(k14): flat(30, 4, 100, 10, 4),
	}
	res, err := Average(data, off, Params{})
	if err != nil {
		t.Fatal(err)
	}
	wantErr := 0.5 * math.Sqrt(10*10+10*10)
	for i := range res.All {
		for c := range res.All[i] {
			if res.All[i][c] != 100 {
				t.Fatalf("All[%d][%d] = %v, want 100", i, c, res.All[i][c])
			}
			if math.Abs(res.AllErr[i][c]-wantErr) > 1e-12 {
				t.Fatalf("AllErr[%d][%d] = %v, want %v", i, c, res.AllErr[i][c], wantErr)
			}
		}
		if res.Quality[i] != QualityGood {
			t.Fatalf("Quality[%d] = %d, want 0", i, res.Quality[i])
		}
	}
	if math.Abs(wantErr-7.0710678) > 1e-6 {
		t.Errorf("hand value = %v", wantErr)
	}
	if res.MaskedBins() != 0 {
		t.Errorf("MaskedBins = %d", res.MaskedBins())
	}
}

func TestAverageSideMeans(t *testing.T) {
	off := offsets(t, "14", "16", "src")
	data := map[region.Kind]rebin.Series{
		region.SrcKind:       flat(5, 2, 50, 7, 1),
		region.PreOf(off[0]): flat(5, 2, 100, 10, 4),
		region.PreOf(off[1]): flat(5, 2, 200, 10, 4),
		region.PosOf(off[0]): flat(5, 2, 300, 20, 2),
		// pos16 had no data.
	}
	res, err := Average(data, off, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if res.PreCount != 2 || res.PosCount != 1 {
		t.Errorf("contributors pre=%d pos=%d, want 2 and 1", res.PreCount, res.PosCount)
	}
	if got := res.Pre[0][0]; got != 150 {
		t.Errorf("Pre = %v, want 150", got)
	}
	if got, want := res.PreErr[0][0], 0.5*math.Sqrt(200); math.Abs(got-want) > 1e-12 {
		t.Errorf("PreErr = %v, want %v", got, want)
	}
	if got := res.All[0][0]; got != 225 {
		t.Errorf("All = %v, want 225", got)
	}
	if got, want := res.AllErr[0][0], 0.5*math.Hypot(0.5*math.Sqrt(200), 20); math.Abs(got-want) > 1e-12 {
		t.Errorf("AllErr = %v, want %v", got, want)
	}
	if res.Exposure[0] != 10.0/3 || res.PreExposure[0] != 4 || res.PosExposure[0] != 2 {
		t.Errorf("exposure all=%v pre=%v pos=%v", res.Exposure[0], res.PreExposure[0], res.PosExposure[0])
	}
}

func TestAverageOneSideOnly(t *testing.T) {
	off := offsets(t, "14")
	data := map[region.Kind]rebin.Series{
		region.SrcKind:       flat(3, 1, 10, 1, 1),
		region.PosOf(off[0]): flat(3, 1, 40, 2, 1),
	}
	res, err := Average(data, off, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if res.All[1][0] != 40 || res.AllErr[1][0] != 2 {
		t.Errorf("All = %v err %v, want 40 err 2", res.All[1][0], res.AllErr[1][0])
	}
	if res.PreExposure[0] != 0 {
		t.Errorf("PreExposure = %v, want 0", res.PreExposure[0])
	}
}

func zeroBinData(t *testing.T, bin int) (map[region.Kind]rebin.Series, []region.Offset) {
	off := offsets(t, "14", "src")
	pre := flat(40, 3, 100, 10, 4)
	for c := range pre.Counts[bin] {
		pre.Counts[bin][c] = 0
	}
	return map[region.Kind]rebin.Series{
		region.SrcKind:       flat(40, 3, 120, 11, 4),
		region.PreOf(off[0]): pre,
		region.PosOf(off[0]): flat(40, 3, 100, 10, 4),
	}, off
}

func TestZeroCoverageMask(t *testing.T) {
	const bin = 25
	data, off := zeroBinData(t, bin)
	res, err := Average(data, off, Params{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		masked := i == bin || i == bin-1
		if res.Mask[i] != masked {
			t.Errorf("Mask[%d] = %v, want %v", i, res.Mask[i], masked)
		}
		if !masked {
			continue
		}
		for c := 0; c < 3; c++ {
			if res.All[i][c] != 0 || res.Pre[i][c] != 0 || res.PosErr[i][c] != 0 {
				t.Errorf("background not zeroed at %d", i)
			}
			if res.Source.Counts[i][c] != 0 || res.Source.Error[i][c] != 0 {
				t.Errorf("source not zeroed at %d", i)
			}
		}
	}
	if data[region.SrcKind].Counts[bin][0] != 120 {
		t.Error("input series was modified")
	}

	// The bad stretch and the ten bins before it are flagged 1.
	for i, q := range res.Quality {
		want := QualityGood
		if i >= bin-1-DubiousBins && i <= bin {
			want = QualityBad
		}
		if q != want {
			t.Errorf("Quality[%d] = %d, want %d", i, q, want)
		}
	}
}

// With MarkDubious the bins before a bad stretch get 2 instead of 1; the
// default keeps 1 for both.
func TestQualityDubiousDivergence(t *testing.T) {
	const bin = 25
	data, off := zeroBinData(t, bin)

	literal, err := Average(data, off, Params{})
	if err != nil {
		t.Fatal(err)
	}
	dubious, err := Average(data, off, Params{MarkDubious: true})
	if err != nil {
		t.Fatal(err)
	}
	for i := range dubious.Quality {
		var want int
		switch {
		case i == bin || i == bin-1:
			want = QualityBad
		case i >= bin-1-DubiousBins && i < bin-1:
			want = QualityDubious
		}
		if dubious.Quality[i] != want {
			t.Errorf("dubious Quality[%d] = %d, want %d", i, dubious.Quality[i], want)
		}
		if want == QualityDubious && literal.Quality[i] != QualityBad {
			t.Errorf("literal Quality[%d] = %d, want %d", i, literal.Quality[i], QualityBad)
		}
	}
}

// A gap in the last bin is handled like any other: the bin before it is
// masked and the ten before that are flagged.
func TestMaskedFinalBin(t *testing.T) {
	const last = 39
	tests := []struct {
		name    string
		dubious bool
		flag    int
	}{
		{"literal", false, QualityBad},
		{"dubious", true, QualityDubious},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, off := zeroBinData(t, last)
			res, err := Average(data, off, Params{MarkDubious: tt.dubious})
			if err != nil {
				t.Fatal(err)
			}
			if got := res.MaskedBins(); got != 2 {
				t.Errorf("MaskedBins = %d, want 2", got)
			}
			for i, q := range res.Quality {
				want := QualityGood
				switch {
				case i >= last-1:
					want = QualityBad
				case i >= last-1-DubiousBins:
					want = tt.flag
				}
				if q != want {
					t.Errorf("Quality[%d] = %d, want %d", i, q, want)
				}
			}
		})
	}
}

func TestZeroSourceBinMasked(t *testing.T) {
	off := offsets(t, "14")
	src := flat(10, 2, 5, 1, 1)
	src.Counts[0] = []float64{0, 0}
	data := map[region.Kind]rebin.Series{
		region.SrcKind:       src,
		region.PreOf(off[0]): flat(10, 2, 5, 1, 1),
		region.PosOf(off[0]): flat(10, 2, 5, 1, 1),
	}
	res, err := Average(data, off, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Mask[0] || res.Mask[1] {
		t.Errorf("mask = %v", res.Mask[:3])
	}
}

func TestAverageErrors(t *testing.T) {
	off := offsets(t, "14")
	if _, err := Average(map[region.Kind]rebin.Series{}, off, Params{}); !errors.Is(err, ErrNoSource) {
		t.Errorf("error = %v, want ErrNoSource", err)
	}
	onlySrc := map[region.Kind]rebin.Series{region.SrcKind: flat(3, 1, 1, 1, 1)}
	if _, err := Average(onlySrc, off, Params{}); !errors.Is(err, ErrNoBackground) {
		t.Errorf("error = %v, want ErrNoBackground", err)
	}
	mismatched := map[region.Kind]rebin.Series{
		region.SrcKind:       flat(3, 1, 1, 1, 1),
		region.PreOf(off[0]): flat(4, 1, 1, 1, 1),
	}
	if _, err := Average(mismatched, off, Params{}); err == nil {
		t.Error("expected length mismatch error")
	}
}
