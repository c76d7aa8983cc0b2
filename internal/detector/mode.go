package detector

import (
	"fmt"
	"strings"
)

// Mode is one of the binned spectral data types.
type Mode string

const (
	CTIME Mode = "CTIME"
	CSPEC Mode = "CSPEC"
)

// ParseMode accepts either mode name in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case CTIME:
		return CTIME, nil
	case CSPEC:
		return CSPEC, nil
	}
	return "", fmt.Errorf("unknown spectral mode %q", s)
}

// Channels returns the number of energy channels.
func (m Mode) Channels() int {
	if m == CTIME {
		return 8
	}
	return 128
}

// Resolution returns the native bin width in seconds.
func (m Mode) Resolution() float64 {
	if m == CTIME {
		return 1.024
	}
	return 4.096
}

// FileTag is the lower-case tag used in archive file names.
func (m Mode) FileTag() string { return strings.ToLower(string(m)) }

// ModeForChannels infers the mode from a channel count.
func ModeForChannels(n int) (Mode, error) {
	switch n {
	case 8:
		return CTIME, nil
	case 128:
		return CSPEC, nil
	}
	return "", fmt.Errorf("no spectral mode with %d channels", n)
}
