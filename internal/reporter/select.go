package reporter

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Format selects the reporter implementation.
type Format int

const (
	// FormatAuto picks the terminal reporter on a TTY and NDJSON otherwise.
	FormatAuto Format = iota
	FormatTerminal
	FormatJSON
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTerminal:
		return "terminal"
	case FormatJSON:
		return "json"
	default:
		return "auto"
	}
}

// ParseFormat converts a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "terminal", "text":
		return FormatTerminal, nil
	case "json", "ndjson":
		return FormatJSON, nil
	default:
		return FormatAuto, fmt.Errorf("unknown output format %q (valid: auto, terminal, json)", s)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Resolve turns FormatAuto into a concrete format for out.
func (f Format) Resolve(out *os.File) Format {
	if f != FormatAuto {
		return f
	}
	if IsTerminal(out) {
		return FormatTerminal
	}
	return FormatJSON
}

// New creates the reporter for format writing to stdout.
func New(format Format, verbose bool) Reporter {
	if format.Resolve(os.Stdout) == FormatJSON {
		return NewJSONReporter()
	}
	return NewTerminalReporter(verbose)
}
