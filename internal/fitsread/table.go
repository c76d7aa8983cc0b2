// Package fitsread reads the daily spectral (CTIME/CSPEC) and position
// history files from their FITS binary tables.
package fitsread

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

// column holds one table column converted to float64, one slice per row.
type column [][]float64

// scalars flattens a single-valued column.
func (c column) scalars() []float64 {
	out := make([]float64, len(c))
	for i, row := range c {
		if len(row) > 0 {
			out[i] = row[0]
		}
	}
	return out
}

// readTable loads the named numeric columns of a binary table. Missing
// columns listed in optional are skipped; other missing columns are errors.
func readTable(tbl *fitsio.Table, names []string, optional map[string]bool) (map[string]column, error) {
	cols := tbl.Cols()
	dest := make([]interface{}, len(cols))
	for i, c := range cols {
		t, err := goType(c.Format)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		dest[i] = reflect.New(t).Interface()
	}

	want := make(map[int]string, len(names))
	for _, n := range names {
		i := tbl.Index(n)
		if i < 0 {
			if optional[n] {
				continue
			}
			return nil, fmt.Errorf("table %s: no column %s", tbl.Name(), n)
		}
		want[i] = n
	}

	out := make(map[string]column, len(want))
	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tbl.Name(), err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("table %s: %w", tbl.Name(), err)
		}
		for i, n := range want {
			out[n] = append(out[n], toFloats(reflect.ValueOf(dest[i]).Elem()))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table %s: %w", tbl.Name(), err)
	}
	return out, nil
}

// goType maps a TFORM such as "1D", "E", "128I" or "1PI(128)" to the Go
// type the table scanner fills. Fixed-width columns scan into arrays;
// only variable-length (P/Q) descriptors scan into slices.
func goType(format string) (reflect.Type, error) {
	f := strings.TrimSpace(format)
	i := 0
	for i < len(f) && f[i] >= '0' && f[i] <= '9' {
		i++
	}
	repeat := 1
	if i > 0 {
		n, err := strconv.Atoi(f[:i])
		if err != nil {
			return nil, err
		}
		repeat = n
	}
	if i >= len(f) {
		return nil, fmt.Errorf("bad format %q", format)
	}
	varLen := f[i] == 'P' || f[i] == 'Q'
	if varLen {
		i++
		if i >= len(f) {
			return nil, fmt.Errorf("bad format %q", format)
		}
	}
	var elem reflect.Type
	switch f[i] {
	case 'D':
		elem = reflect.TypeOf(float64(0))
	case 'E':
		elem = reflect.TypeOf(float32(0))
	case 'K':
		elem = reflect.TypeOf(int64(0))
	case 'J':
		elem = reflect.TypeOf(int32(0))
	case 'I':
		elem = reflect.TypeOf(int16(0))
	case 'B':
		elem = reflect.TypeOf(uint8(0))
	case 'L':
		elem = reflect.TypeOf(false)
	case 'A':
		if varLen {
			return nil, fmt.Errorf("unsupported format %q", format)
		}
		return reflect.TypeOf(""), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	switch {
	case varLen:
		return reflect.SliceOf(elem), nil
	case repeat == 1:
		return elem, nil
	default:
		return reflect.ArrayOf(repeat, elem), nil
	}
}

func toFloats(v reflect.Value) []float64 {
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		out := make([]float64, v.Len())
		for i := range out {
			out[i] = toFloat(v.Index(i))
		}
		return out
	}
	return []float64{toFloat(v)}
}

func toFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
	}
	return 0
}
