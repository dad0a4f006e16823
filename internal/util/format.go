// Package util provides formatting and file helpers shared by the CLI and
// reporters.
package util

import (
	"fmt"
	"math"
)

const (
	KiB = 1024
	MiB = KiB * 1024
	GiB = MiB * 1024
)

// FormatBytes formats bytes with appropriate binary units (B, KiB, MiB, GiB).
func FormatBytes(bytes uint64) string {
	bf := float64(bytes)
	switch {
	case bf >= GiB:
		return fmt.Sprintf("%.2f GiB", bf/GiB)
	case bf >= MiB:
		return fmt.Sprintf("%.2f MiB", bf/MiB)
	case bf >= KiB:
		return fmt.Sprintf("%.2f KiB", bf/KiB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatBitrate formats bits per second with decimal units.
func FormatBitrate(bps float64) string {
	if bps < 0 || math.IsNaN(bps) {
		return "? bps"
	}
	switch {
	case bps >= 1e9:
		return fmt.Sprintf("%.2f Gbps", bps/1e9)
	case bps >= 1e6:
		return fmt.Sprintf("%.2f Mbps", bps/1e6)
	case bps >= 1e3:
		return fmt.Sprintf("%.1f kbps", bps/1e3)
	default:
		return fmt.Sprintf("%.0f bps", bps)
	}
}

// FormatBits formats a bit count with decimal units.
func FormatBits(bits int64) string {
	b := float64(bits)
	switch {
	case math.Abs(b) >= 1e6:
		return fmt.Sprintf("%.2f Mb", b/1e6)
	case math.Abs(b) >= 1e3:
		return fmt.Sprintf("%.1f kb", b/1e3)
	default:
		return fmt.Sprintf("%d b", bits)
	}
}

// FormatDuration formats seconds as HH:MM:SS.
func FormatDuration(seconds float64) string {
	if seconds < 0 || seconds != seconds { // NaN check
		return "??:??:??"
	}
	return FormatDurationFromSecs(int64(seconds))
}

// FormatDurationFromSecs formats seconds as HH:MM:SS from an int64.
func FormatDurationFromSecs(secs int64) string {
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// RateDeviation returns how far actual is from target in percent.
// Positive values mean overspending.
func RateDeviation(target, actual int64) float64 {
	if target == 0 {
		return 0
	}
	return (float64(actual) - float64(target)) / float64(target) * 100
}
