// Package met converts between mission elapsed time (MET) and calendar
// representations used for file lookup and run naming.
//
// MET counts seconds from 2001-01-01 00:00:00 UTC. Conversions to MJD carry
// the fixed TT-UTC offset in effect at the epoch (64.184 s), so MJD values are
// on the TT scale while DateToMET works on plain UTC wall-clock seconds.
package met

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const (
	// mjdEpoch is the MJD (TT) of MET zero.
	mjdEpoch = 51910 + 0.00074287037037

	secondsPerDay = 86400.0
	jdMinusMJD    = 2400000.5

	// MissionStart is the earliest MET with science data.
	MissionStart = 235300000.0
)

// Epoch is MET zero in UTC.
var Epoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// missionStartUTC corresponds to MissionStart.
var missionStartUTC = time.Date(2008, 6, 16, 9, 7, 44, 0, time.UTC)

// ErrOutsideMission is returned for times before the first data or in the future.
var ErrOutsideMission = errors.New("time outside mission lifetime")

// ToMJD converts MET seconds to Modified Julian Date.
func ToMJD(met float64) float64 {
	return met/secondsPerDay + mjdEpoch
}

// FromMJD converts a Modified Julian Date to MET seconds.
func FromMJD(mjd float64) float64 {
	return (mjd - mjdEpoch) * secondsPerDay
}

// ToJD converts MET seconds to Julian Date.
func ToJD(met float64) float64 {
	return ToMJD(met) + jdMinusMJD
}

// ToTime returns the calendar instant for a MET value via the MJD scale.
func ToTime(met float64) time.Time {
	return julian.JDToTime(ToJD(met)).UTC()
}

// FromTime converts a UTC instant to MET by plain seconds since Epoch.
func FromTime(t time.Time) float64 {
	return t.UTC().Sub(Epoch).Seconds()
}

var dateLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

// DateToMET parses a UTC date string such as "2011-04-02 10:15:30.5" and
// returns its MET.
func DateToMET(s string) (float64, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), nil
		}
	}
	return 0, fmt.Errorf("unrecognised date %q", s)
}

// InMission reports whether met falls between the first science data and now.
func InMission(met float64, now time.Time) bool {
	if met < MissionStart {
		return false
	}
	return met <= MissionStart+now.Sub(missionStartUTC).Seconds()
}

// DayToken identifies one calendar day in the data archive, formatted YYMMDD.
type DayToken string

// Day returns the DayToken of the day containing met.
func Day(met float64) DayToken {
	y, m, d := calendar(met)
	return DayToken(fmt.Sprintf("%02d%02d%02d", y%100, m, int(math.Floor(d))))
}

// RunName returns the YYMMDDfff name used for a run at met, where fff is
// the first three digits of the fraction of the day.
func RunName(met float64) string {
	y, m, d := calendar(met)
	day := math.Floor(d)
	frac := int((d - day) * 1000)
	return fmt.Sprintf("%02d%02d%02d%03d", y%100, m, int(day), frac)
}

func calendar(met float64) (int, int, float64) {
	return julian.JDToCalendar(ToJD(met))
}

// ParseDayToken validates a six digit YYMMDD string.
func ParseDayToken(s string) (DayToken, error) {
	if len(s) != 6 {
		return "", fmt.Errorf("day token %q: want 6 digits", s)
	}
	if _, err := strconv.Atoi(s); err != nil {
		return "", fmt.Errorf("day token %q: %w", s, err)
	}
	if _, err := time.Parse("060102", s); err != nil {
		return "", fmt.Errorf("day token %q: %w", s, err)
	}
	return DayToken(s), nil
}

// Date returns the UTC midnight of the day.
func (d DayToken) Date() time.Time {
	t, err := time.Parse("060102", string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ArchivePath returns the YYYY/MM/DD layout used by the daily archive.
func (d DayToken) ArchivePath() string {
	return d.Date().Format("2006/01/02")
}

func (d DayToken) String() string { return string(d) }
