// Command diag prints the regions, days and file discovery result of a run
// without reading any data.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/star/orbsub/internal/fetch"
	"github.com/star/orbsub/internal/locate"
	"github.com/star/orbsub/internal/met"
	"github.com/star/orbsub/internal/orbsub"
	"github.com/star/orbsub/internal/region"
)

func main() {
	tzero := flag.Float64("tzero", 0, "Zero time (MET seconds)")
	utc := flag.String("utc", "", "Zero time as UTC")
	dataDir := flag.String("data", "./", "Data root")
	offsets := flag.String("offsets", "30", "Background offsets, comma separated")
	trange := flag.String("trange", "-100,500", "Window around tzero, seconds")
	mode := flag.String("mode", "CSPEC", "CTIME or CSPEC")
	dets := flag.String("dets", "", "Detectors, comma separated (default all)")
	period := flag.Float64("period", region.DefaultPeriod, "Orbital period, seconds")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	t0 := *tzero
	if *utc != "" {
		v, err := met.DateToMET(*utc)
		if err != nil {
			fmt.Println("ERROR parsing -utc:", err)
			os.Exit(1)
		}
		t0 = v
	}

	req := orbsub.Request{Tzero: t0, Mode: *mode, Offsets: split(*offsets), Detectors: split(*dets)}
	if _, err := fmt.Sscanf(*trange, "%g,%g", &req.TRange[0], &req.TRange[1]); err != nil {
		fmt.Println("ERROR parsing -trange:", err)
		os.Exit(1)
	}
	opts, notes, err := orbsub.NewOptions(req, time.Now())
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
	for _, n := range append(notes.Warnings, notes.Errors...) {
		fmt.Println("NOTE:", n)
	}
	fmt.Println(opts)
	fmt.Printf("tzero %.3f = %s (MJD %.6f)\n\n", opts.Tzero, met.ToTime(opts.Tzero).Format(time.RFC3339Nano), met.ToMJD(opts.Tzero))

	regions := region.Compute(opts.Tzero, opts.TMin, opts.TMax, opts.Offsets, *period)
	fmt.Printf("Regions (period %.3f s):\n", regions.Period())
	for _, k := range regions.Kinds() {
		r, _ := regions.Range(k)
		fmt.Printf("  %-8s %.3f .. %.3f  (%s .. %s)\n", k, r.Start, r.End,
			met.ToTime(r.Start).Format(time.TimeOnly), met.ToTime(r.End).Format(time.TimeOnly))
	}
	fmt.Println()

	fs, err := locate.New(*dataDir, 4, logger).Locate(context.Background(), regions, opts.Detectors, opts.Mode)
	if err != nil {
		fmt.Println("ERROR locating files:", err)
		os.Exit(1)
	}
	fmt.Print(fs)
	if !fs.Incomplete {
		fmt.Println("\nAll files present.")
		return
	}
	fmt.Println("\nProblems:")
	for _, p := range fs.Problems {
		fmt.Println("  " + p)
	}
	fmt.Println("Would download:")
	for _, it := range fetch.Plan(fs.Missing) {
		fmt.Println("  " + it.String())
	}
	os.Exit(1)
}

func split(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
