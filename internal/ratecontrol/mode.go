package ratecontrol

import (
	"fmt"
	"strings"
)

// Mode is the rate-control method.
type Mode int

const (
	ModeCBR Mode = iota
	ModeVBR
	ModeAVBR
	ModeICQ
	ModeVCM
	ModeCQP
	ModeQVBR
)

var modeNames = [...]string{
	ModeCBR:  "cbr",
	ModeVBR:  "vbr",
	ModeAVBR: "avbr",
	ModeICQ:  "icq",
	ModeVCM:  "vcm",
	ModeCQP:  "cqp",
	ModeQVBR: "qvbr",
}

// String returns the lower-case mode name.
func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode converts a mode name to a Mode. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == name {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidMode, s, strings.Join(modeNames[:], ", "))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m >= ModeCBR && m <= ModeQVBR
}

// UsesBitrate reports whether the mode tracks a bitrate and VBV buffer.
func (m Mode) UsesBitrate() bool {
	return m != ModeCQP
}

// requiresBuffer reports whether a zero VBV buffer size is invalid.
func (m Mode) requiresBuffer() bool {
	return m == ModeCBR || m == ModeVBR || m == ModeAVBR
}

// variable reports whether the mode lets the buffer sit full without
// spending, which selects the VBR deviation thresholds.
func (m Mode) variable() bool {
	return m == ModeVBR || m == ModeAVBR || m == ModeQVBR
}

// Tolerance is the frame size tolerance requested by the application.
type Tolerance int

const (
	// ToleranceNormal is the default VBV behaviour.
	ToleranceNormal Tolerance = iota
	// ToleranceLow enables the sliding-window size limiter.
	ToleranceLow
	// ToleranceExtremelyLow enables low-delay BRC and disables long-term references.
	ToleranceExtremelyLow
)

// String returns the tolerance name.
func (t Tolerance) String() string {
	switch t {
	case ToleranceNormal:
		return "normal"
	case ToleranceLow:
		return "low"
	case ToleranceExtremelyLow:
		return "extremely-low"
	default:
		return fmt.Sprintf("Tolerance(%d)", int(t))
	}
}

// ParseTolerance converts a tolerance name to a Tolerance.
func ParseTolerance(s string) (Tolerance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return ToleranceNormal, nil
	case "low":
		return ToleranceLow, nil
	case "extremely-low", "extremely_low", "lowdelay":
		return ToleranceExtremelyLow, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTolerance, s)
	}
}
