// Package export writes subtraction products: delimited light curves and
// the JSON run summary.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/pha"
)

// Header is the first line of a light-curve file.
var Header = []string{"T_i", "T_j", "Rate (Counts/s)", "Rate Err (Counts/s)"}

// Stem returns the output name stem for a run and detector.
func Stem(name string, id detector.ID) string {
	return fmt.Sprintf("glg_osv_%s_%s", name, id)
}

// Names returns the source and background file names for a detector.
func Names(name string, id detector.ID) (src, bkg string) {
	s := Stem(name, id)
	return s + ".PHA1", s + ".BAK1"
}

// WriteLightCurve writes lc as delimited text. Every field is followed by
// the delimiter and a space, including the last.
func WriteLightCurve(w io.Writer, lc pha.LightCurve, delim string) error {
	bw := bufio.NewWriter(w)
	for _, h := range Header {
		fmt.Fprintf(bw, "%s%s ", h, delim)
	}
	bw.WriteString("\n")
	for i := range lc.Rate {
		row := [4]float64{lc.Edges[i][0], lc.Edges[i][1], lc.Rate[i], lc.Err[i]}
		for _, v := range row {
			fmt.Fprintf(bw, "%s%s ", strconv.FormatFloat(v, 'f', -1, 64), delim)
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// WriteDetector writes the total and background light curves of s into
// dir and returns the paths written. When net is set a third file with the
// background-subtracted rate is written alongside.
func WriteDetector(dir, name string, s *pha.Subtracted, m pha.Masks, net bool) ([]string, error) {
	srcName, bkgName := Names(name, s.Detector)
	jobs := []output{{pha.Total, srcName}, {pha.Background, bkgName}}
	if net {
		jobs = append(jobs, output{pha.Net, Stem(name, s.Detector) + ".NET1"})
	}

	var paths []string
	for _, j := range jobs {
		lc, err := s.LightCurve(j.class, m)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, j.file)
		if err := writeFile(path, lc); err != nil {
			return paths, fmt.Errorf("writing %s light curve: %w", j.class, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type output struct {
	class pha.Class
	file  string
}

func writeFile(path string, lc pha.LightCurve) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteLightCurve(f, lc, ","); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
