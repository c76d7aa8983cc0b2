package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/star/orbsub/internal/region"
	"github.com/star/orbsub/internal/transform"
)

// Range is a time interval in MET seconds.
type Range = region.TimeRange

// Summary is the JSON-serializable record of one subtraction run.
type Summary struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	State       string                `json:"state"`
	OK          bool                  `json:"ok"`
	Tzero       float64               `json:"tzero"`
	UTC         time.Time             `json:"utc"`
	Mode        string                `json:"mode"`
	Offsets     []string              `json:"offsets"`
	Window      [2]float64            `json:"window"`
	Period      float64               `json:"period_s"`
	Regions     map[region.Kind]Range `json:"regions"`
	Days        []string              `json:"days"`
	Missing     int                   `json:"missing_files"`
	Detectors   []DetectorSummary     `json:"detectors"`
	Occultation []Range               `json:"occultation,omitempty"`
	SubPoint    *transform.GeoPoint   `json:"subpoint,omitempty"`
	Messages    map[string][]string   `json:"messages,omitempty"`
	Outputs     []string              `json:"outputs,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	Duration    float64               `json:"duration_s"`
}

// DetectorSummary reports one detector's outcome.
type DetectorSummary struct {
	Detector   string   `json:"detector"`
	Label      string   `json:"label"`
	OK         bool     `json:"ok"`
	Bins       int      `json:"bins"`
	MaskedBins int      `json:"masked_bins"`
	Gaps       []string `json:"gaps,omitempty"`
	GTI        []Range  `json:"gti,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// WriteJSON writes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteTable writes a human-readable summary.
func (s *Summary) WriteTable(w io.Writer) {
	fmt.Fprintf(w, "Run %s (%s) @ MET %.3f  %s\n", s.Name, s.ID, s.Tzero, s.UTC.Format(time.RFC3339))
	fmt.Fprintln(w, strings.Repeat("─", 72))
	fmt.Fprintf(w, "state %s  mode %s  period %.3f s  offsets %s\n",
		s.State, s.Mode, s.Period, strings.Join(s.Offsets, ","))
	if g := s.SubPoint; g != nil {
		fmt.Fprintf(w, "sub-satellite point lat %.3f lon %.3f alt %.1f km\n", g.Lat, g.Lon, g.Alt/1000)
	}

	keys := make([]region.Kind, 0, len(s.Regions))
	for k := range s.Regions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		tr := s.Regions[k]
		fmt.Fprintf(w, "  %-8s %16.3f %16.3f\n", k, tr.Start, tr.End)
	}
	fmt.Fprintln(w, strings.Repeat("─", 72))

	if len(s.Detectors) == 0 {
		fmt.Fprintln(w, "No detectors processed")
	} else {
		fmt.Fprintf(w, "%-6s %-8s %-4s %8s %8s %5s\n", "Det", "Label", "OK", "Bins", "Masked", "GTI")
		for _, d := range s.Detectors {
			ok := "yes"
			if !d.OK {
				ok = "no"
			}
			fmt.Fprintf(w, "%-6s %-8s %-4s %8d %8d %5d\n", d.Detector, d.Label, ok, d.Bins, d.MaskedBins, len(d.GTI))
		}
	}
	if len(s.Occultation) > 0 {
		fmt.Fprintf(w, "\n%d occultation intervals\n", len(s.Occultation))
	}
	for _, stage := range []string{"options", "files", "period", "gti", "occultation", "orbsub"} {
		for _, m := range s.Messages[stage] {
			fmt.Fprintf(w, "[%s] %s\n", stage, m)
		}
	}
}
