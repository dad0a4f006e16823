// Package slicemap assigns every LCU of a frame the identifier of the slice
// that contains it.
package slicemap

import (
	"errors"
	"fmt"

	brcerrors "github.com/five82/brcplan/internal/errors"
)

// Sentinel errors for slice layout validation.
var (
	// ErrInvalidFrame indicates a frame without any LCUs.
	ErrInvalidFrame = errors.New("frame has no LCUs")

	// ErrNoSlices indicates an empty slice list.
	ErrNoSlices = errors.New("no slices")

	// ErrEmptySlice indicates a slice covering zero LCUs.
	ErrEmptySlice = errors.New("slice is empty")

	// ErrNotContiguous indicates a slice that does not start where the previous one ended.
	ErrNotContiguous = errors.New("slices not contiguous")

	// ErrSliceOrder indicates slice identifiers that do not increase in raster order.
	ErrSliceOrder = errors.New("slice ids not increasing")

	// ErrIncompleteCoverage indicates slices that do not end at the last LCU.
	ErrIncompleteCoverage = errors.New("slices do not cover the frame")
)

// Slice is a run of LCUs [StartLCU, StartLCU+NumLCUs) in raster order.
type Slice struct {
	ID       uint16 `json:"id" yaml:"id"`
	StartLCU int    `json:"start_lcu" yaml:"start_lcu"`
	NumLCUs  int    `json:"num_lcus" yaml:"num_lcus"`
}

// End returns the exclusive end LCU.
func (s Slice) End() int {
	return s.StartLCU + s.NumLCUs
}

// Single returns the one-slice layout for a frame.
func Single(frameLCUs int) []Slice {
	return []Slice{{ID: 0, StartLCU: 0, NumLCUs: frameLCUs}}
}

// Validate checks that slices tile the frame: raster ordered from LCU 0,
// contiguous, non-empty and ending at the last LCU. Violations are
// configuration errors.
func Validate(frameLCUs int, slices []Slice) error {
	if err := validate(frameLCUs, slices); err != nil {
		return brcerrors.NewConfigError("invalid slice layout", err)
	}
	return nil
}

func validate(frameLCUs int, slices []Slice) error {
	if frameLCUs <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFrame, frameLCUs)
	}
	if len(slices) == 0 {
		return ErrNoSlices
	}

	next := 0
	for i, s := range slices {
		if s.NumLCUs <= 0 {
			return fmt.Errorf("%w: slice %d has %d LCUs", ErrEmptySlice, i, s.NumLCUs)
		}
		if s.StartLCU != next {
			return fmt.Errorf("%w: slice %d starts at %d, want %d", ErrNotContiguous, i, s.StartLCU, next)
		}
		if i > 0 && s.ID <= slices[i-1].ID {
			return fmt.Errorf("%w: slice %d id %d after %d", ErrSliceOrder, i, s.ID, slices[i-1].ID)
		}
		next = s.End()
	}
	if next != frameLCUs {
		return fmt.Errorf("%w: slices end at %d, frame has %d LCUs", ErrIncompleteCoverage, next, frameLCUs)
	}
	return nil
}

// Map is an LCU raster index to slice id lookup.
type Map struct {
	IDs       []uint16
	NumSlices int
}

// SliceAt returns the slice id for an LCU.
func (m *Map) SliceAt(lcu int) uint16 {
	return m.IDs[lcu]
}

// Len returns the number of LCUs covered.
func (m *Map) Len() int {
	return len(m.IDs)
}

// Builder produces slice maps frame after frame, reusing its buffer. A
// Builder is owned by one planning session and is not safe for concurrent use.
type Builder struct {
	m         Map
	lastCount int
	lastID    uint16
	rebuilds  int
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build validates slices and returns the frame's slice map. When the frame
// had a single slice last time and still does, the previous map is returned
// untouched. The returned map is owned by the builder and is only valid
// until the next call.
func (b *Builder) Build(frameLCUs int, slices []Slice) (*Map, error) {
	if err := Validate(frameLCUs, slices); err != nil {
		return nil, err
	}

	if len(slices) == 1 && b.lastCount == 1 &&
		len(b.m.IDs) == frameLCUs && b.lastID == slices[0].ID {
		return &b.m, nil
	}

	if cap(b.m.IDs) < frameLCUs {
		b.m.IDs = make([]uint16, frameLCUs)
	} else {
		b.m.IDs = b.m.IDs[:frameLCUs]
	}
	fill(b.m.IDs, slices)
	b.m.NumSlices = len(slices)
	b.lastCount = len(slices)
	b.lastID = slices[0].ID
	b.rebuilds++
	return &b.m, nil
}

// BuildInto writes the slice map into dst. A dst shorter than the frame
// returns an insufficient-space error; the caller may grow the buffer and
// retry. BuildInto does not consult the memo.
func (b *Builder) BuildInto(dst []uint16, frameLCUs int, slices []Slice) error {
	if len(dst) < frameLCUs {
		return brcerrors.NewInsufficientSpaceError("slice map buffer", len(dst), frameLCUs)
	}
	if err := Validate(frameLCUs, slices); err != nil {
		return err
	}
	fill(dst[:frameLCUs], slices)
	return nil
}

// Rebuilds returns how many times Build rewrote the map.
func (b *Builder) Rebuilds() int {
	return b.rebuilds
}

// Invalidate drops the memo so the next Build rewrites the map.
func (b *Builder) Invalidate() {
	b.lastCount = 0
}

func fill(dst []uint16, slices []Slice) {
	for _, s := range slices {
		seg := dst[s.StartLCU:s.End()]
		for i := range seg {
			seg[i] = s.ID
		}
	}
}
