package ephemeris

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// FermiCatalog is the spacecraft's satellite catalog number.
const FermiCatalog = 33053

// ElementSet is one two-line element set.
type ElementSet struct {
	Catalog int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// ParseElements reads element sets with or without a name line. Malformed
// sets are skipped with a warning.
func ParseElements(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r\n "); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading element sets: %w", err)
	}

	var out []ElementSet
	name := ""
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "1 ") {
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
			continue
		}
		if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "2 ") {
			logger.Warn("skipping element set without second line", "line_index", i)
			continue
		}
		es, err := newElementSet(name, line, lines[i+1])
		i++
		name = ""
		if err != nil {
			logger.Warn("skipping malformed element set", "line_index", i, "error", err)
			continue
		}
		out = append(out, es)
	}
	return out, nil
}

func newElementSet(name, line1, line2 string) (ElementSet, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return ElementSet{}, err
	}
	catalog, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return ElementSet{}, fmt.Errorf("invalid catalog number %q", line1[2:7])
	}
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return ElementSet{}, err
	}
	return ElementSet{Catalog: catalog, Name: name, Epoch: epoch, Line1: line1, Line2: line2}, nil
}

// parseEpoch converts YYDDD.DDDDDDDD to a time. Years 57-99 are 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch %q too short", s)
	}
	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}
	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}

// Nearest returns the set for catalog whose epoch is closest to at.
func Nearest(sets []ElementSet, catalog int, at time.Time) (ElementSet, bool) {
	var best ElementSet
	found := false
	bestGap := math.Inf(1)
	for _, s := range sets {
		if s.Catalog != catalog {
			continue
		}
		gap := math.Abs(s.Epoch.Sub(at).Seconds())
		if gap < bestGap {
			best, bestGap, found = s, gap, true
		}
	}
	return best, found
}
