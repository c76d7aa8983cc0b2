package background

import "github.com/star/orbsub/internal/rebin"

func grid(rows, cols int) [][]float64 {
	buf := make([]float64, rows*cols)
	out := make([][]float64, rows)
	for i := range out {
		out[i] = buf[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}

func cloneGrid(g [][]float64) [][]float64 {
	if g == nil {
		return nil
	}
	cols := 0
	if len(g) > 0 {
		cols = len(g[0])
	}
	out := grid(len(g), cols)
	for i := range g {
		copy(out[i], g[i])
	}
	return out
}

func cloneSeries(s rebin.Series) rebin.Series {
	out := rebin.Series{
		Centres:  append([]float64(nil), s.Centres...),
		Counts:   cloneGrid(s.Counts),
		Exposure: append([]float64(nil), s.Exposure...),
		Error:    cloneGrid(s.Error),
	}
	if s.Edges != nil {
		out.Edges = append([][2]float64(nil), s.Edges...)
	}
	return out
}

func zero(row []float64) {
	for i := range row {
		row[i] = 0
	}
}
