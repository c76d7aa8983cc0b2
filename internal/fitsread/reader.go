package fitsread

import (
	"fmt"
	"math"
	"os"

	"github.com/astrogo/fitsio"
	"github.com/soniakeys/coord"

	"github.com/star/orbsub/internal/geometry"
	"github.com/star/orbsub/internal/pha"
	"github.com/star/orbsub/internal/transform"
)

// Reader opens files from the local filesystem.
type Reader struct{}

// ReadSpectrum reads a CTIME or CSPEC file, keeping only bins with quality 0.
func (Reader) ReadSpectrum(path string) (pha.Spectrum, error) {
	var s pha.Spectrum
	err := withFile(path, func(f *fitsio.File) error {
		eb, err := table(f, "EBOUNDS")
		if err != nil {
			return err
		}
		edges, err := readTable(eb, []string{"E_MIN", "E_MAX"}, nil)
		if err != nil {
			return err
		}
		s.EMin = edges["E_MIN"].scalars()
		s.EMax = edges["E_MAX"].scalars()

		sp, err := table(f, "SPECTRUM")
		if err != nil {
			return err
		}
		cols, err := readTable(sp, []string{"TIME", "ENDTIME", "EXPOSURE", "COUNTS", "QUALITY"}, map[string]bool{"QUALITY": true})
		if err != nil {
			return err
		}
		start, end, exp := cols["TIME"].scalars(), cols["ENDTIME"].scalars(), cols["EXPOSURE"].scalars()
		counts := cols["COUNTS"]
		var qual []float64
		if q, ok := cols["QUALITY"]; ok {
			qual = q.scalars()
		}
		for i := range start {
			if qual != nil && qual[i] != 0 {
				continue
			}
			s.Start = append(s.Start, start[i])
			s.End = append(s.End, end[i])
			s.Exposure = append(s.Exposure, exp[i])
			s.Counts = append(s.Counts, counts[i])
		}
		return nil
	})
	if err != nil {
		return pha.Spectrum{}, fmt.Errorf("reading spectrum %s: %w", path, err)
	}
	return s, nil
}

// ReadAttitude reads a position history file. Positions are metres and
// quaternions are (QSJ_1..QSJ_4). The sub-satellite point is reported only
// when SC_LAT/SC_LON exist and are not all zero, as in early-mission files.
func (Reader) ReadAttitude(path string) (geometry.Samples, error) {
	var s geometry.Samples
	err := withFile(path, func(f *fitsio.File) error {
		if len(f.HDUs()) < 2 {
			return fmt.Errorf("no table extension")
		}
		tbl, ok := f.HDU(1).(*fitsio.Table)
		if !ok {
			return fmt.Errorf("extension 1 is not a table")
		}
		names := []string{"SCLK_UTC", "QSJ_1", "QSJ_2", "QSJ_3", "QSJ_4", "POS_X", "POS_Y", "POS_Z", "SC_LAT", "SC_LON"}
		cols, err := readTable(tbl, names, map[string]bool{"SC_LAT": true, "SC_LON": true})
		if err != nil {
			return err
		}
		s.Time = cols["SCLK_UTC"].scalars()
		q1, q2, q3, q4 := cols["QSJ_1"].scalars(), cols["QSJ_2"].scalars(), cols["QSJ_3"].scalars(), cols["QSJ_4"].scalars()
		x, y, z := cols["POS_X"].scalars(), cols["POS_Y"].scalars(), cols["POS_Z"].scalars()
		s.Position = make([]coord.Cart, len(s.Time))
		s.Quaternion = make([]transform.Quaternion, len(s.Time))
		for i := range s.Time {
			s.Position[i] = coord.Cart{X: x[i], Y: y[i], Z: z[i]}
			s.Quaternion[i] = transform.Quaternion{q1[i], q2[i], q3[i], q4[i]}
		}
		s.Geo = geo(cols, s.Position)
		return nil
	})
	if err != nil {
		return geometry.Samples{}, fmt.Errorf("reading position history %s: %w", path, err)
	}
	return s, nil
}

func geo(cols map[string]column, pos []coord.Cart) []transform.GeoPoint {
	latc, okLat := cols["SC_LAT"]
	lonc, okLon := cols["SC_LON"]
	if !okLat || !okLon {
		return nil
	}
	lat, lon := latc.scalars(), lonc.scalars()
	allZero := true
	for i := range lat {
		if lat[i] != 0 || lon[i] != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil
	}
	out := make([]transform.GeoPoint, len(lat))
	for i := range lat {
		out[i] = transform.GeoPoint{
			Lat: lat[i],
			Lon: lon[i],
			Alt: math.Sqrt(pos[i].Square()) - geometry.EarthRadius,
		}
	}
	return out
}

func withFile(path string, fn func(*fitsio.File) error) error {
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

func table(f *fitsio.File, name string) (*fitsio.Table, error) {
	if !f.Has(name) {
		return nil, fmt.Errorf("no %s extension", name)
	}
	tbl, ok := f.Get(name).(*fitsio.Table)
	if !ok {
		return nil, fmt.Errorf("%s is not a table", name)
	}
	return tbl, nil
}
