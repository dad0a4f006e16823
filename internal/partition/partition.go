// Package partition splits a frame into wavefront regions that can be
// processed concurrently, and emits the scoreboard the dispatcher enforces
// between LCUs.
//
// Partition is a pure function. The same Input always yields an identical
// Result, so callers may recompute it every frame.
package partition

import (
	"fmt"

	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/slicemap"
)

const (
	// DefaultMaxColors is the scheduler's concurrent partition ceiling.
	DefaultMaxColors = 16

	// MinRegionsPerSlice and MaxRegionsPerSlice bound Input.RegionsPerSlice.
	MinRegionsPerSlice = 1
	MaxRegionsPerSlice = 16
)

// Input describes one frame to partition.
type Input struct {
	WidthLCU        int
	HeightLCU       int
	Slices          []slicemap.Slice
	RegionsPerSlice int
	Walk            Walk
	MaxColors       int // 0 selects DefaultMaxColors
}

// Span is a slice as seen by region generation. Slices merged to honor the
// color ceiling become one span.
type Span struct {
	StartRow int `json:"start_row"`
	EndRow   int `json:"end_row"`
	WaveBase int `json:"wave_base"` // sum of wave counts of earlier spans
	NumWaves int `json:"num_waves"`
	Merged   int `json:"merged"` // number of input slices folded into the span
}

// Height returns the span height in rows.
func (s Span) Height() int {
	return s.EndRow - s.StartRow
}

// Region is the rectangle of one span handed to one execution unit.
type Region struct {
	Span           int `json:"span"`
	StartCol       int `json:"start_col"`
	StartRow       int `json:"start_row"`
	EndCol         int `json:"end_col"` // exclusive
	EndRow         int `json:"end_row"` // exclusive
	DiagonalOffset int `json:"diagonal_offset"`
}

// Width returns the region width in LCU columns.
func (r Region) Width() int { return r.EndCol - r.StartCol }

// Height returns the region height in LCU rows.
func (r Region) Height() int { return r.EndRow - r.StartRow }

// LCUs returns the number of LCUs in the region.
func (r Region) LCUs() int { return r.Width() * r.Height() }

// Contains reports whether the LCU at (col, row) lies in the region.
func (r Region) Contains(col, row int) bool {
	return col >= r.StartCol && col < r.EndCol && row >= r.StartRow && row < r.EndRow
}

// Result is the partition of one frame.
type Result struct {
	WidthLCU   int        `json:"width_lcu"`
	HeightLCU  int        `json:"height_lcu"`
	Walk       Walk       `json:"walk"`
	Arbitrary  bool       `json:"arbitrary"`
	Spans      []Span     `json:"spans"`
	Regions    []Region   `json:"regions"`
	Scoreboard Scoreboard `json:"scoreboard"`

	RegionsPerSlice   int `json:"regions_per_slice"` // effective, after narrow-slice reduction
	NumRegions        int `json:"num_regions"`
	MaxHeightInRegion int `json:"max_height_in_region"` // in walk units
	NumUnitsInRegion  int `json:"num_units_in_region"`
	TotalWaves        int `json:"total_waves"`
}

// Partition computes the regions, diagonal offsets and scoreboard of a frame.
func Partition(in Input) (*Result, error) {
	if err := checkInput(in); err != nil {
		return nil, brcerrors.NewConfigError("invalid partition input", err)
	}
	maxColors := in.MaxColors
	if maxColors <= 0 {
		maxColors = DefaultMaxColors
	}

	rows := slicemap.Boundaries(in.Slices, in.WidthLCU, in.HeightLCU, in.Walk.UnitRows())
	arbitrary := slicemap.AnyArbitrary(rows)

	perSlice := effectiveRegions(in.WidthLCU, in.RegionsPerSlice, in.Walk)

	var spans []Span
	if arbitrary {
		spans = []Span{{StartRow: 0, EndRow: in.HeightLCU, Merged: len(in.Slices)}}
	} else {
		spans = make([]Span, len(rows))
		for i, r := range rows {
			spans[i] = Span{StartRow: r.StartRow, EndRow: r.EndRow, Merged: 1}
		}
		spans = mergeSpans(spans, perSlice, maxColors)
	}

	if n := len(spans) * perSlice; n > maxColors {
		err := fmt.Errorf("%w: %d spans x %d regions > %d", ErrColorCeiling, len(spans), perSlice, maxColors)
		return nil, brcerrors.NewConfigError("partition exceeds scheduler ceiling", err)
	}

	cols := columnBoundaries(in.WidthLCU, perSlice, in.Walk)

	res := &Result{
		WidthLCU:        in.WidthLCU,
		HeightLCU:       in.HeightLCU,
		Walk:            in.Walk,
		Arbitrary:       arbitrary,
		Scoreboard:      ScoreboardFor(in.Walk),
		RegionsPerSlice: perSlice,
		Regions:         make([]Region, 0, len(spans)*perSlice),
	}

	base := 0
	unit := in.Walk.UnitRows()
	for si := range spans {
		sp := &spans[si]
		sp.WaveBase = base
		sp.NumWaves = in.Walk.Waves(in.WidthLCU, sp.Height())
		base += sp.NumWaves

		if h := (sp.Height() + unit - 1) / unit; h > res.MaxHeightInRegion {
			res.MaxHeightInRegion = h
		}

		for ri := 0; ri < perSlice; ri++ {
			r := Region{
				Span:           si,
				StartCol:       cols[ri],
				EndCol:         cols[ri+1],
				StartRow:       sp.StartRow,
				EndRow:         sp.EndRow,
				DiagonalOffset: sp.WaveBase + in.Walk.Wave(cols[ri], 0),
			}
			if r.LCUs() > res.NumUnitsInRegion {
				res.NumUnitsInRegion = r.LCUs()
			}
			res.Regions = append(res.Regions, r)
		}
	}

	res.Spans = spans
	res.NumRegions = len(res.Regions)
	res.TotalWaves = base
	return res, nil
}

func checkInput(in Input) error {
	if in.WidthLCU <= 0 || in.HeightLCU <= 0 {
		return fmt.Errorf("%w: %dx%d LCUs", ErrInvalidDimensions, in.WidthLCU, in.HeightLCU)
	}
	if !in.Walk.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidWalk, in.Walk)
	}
	if in.RegionsPerSlice < MinRegionsPerSlice || in.RegionsPerSlice > MaxRegionsPerSlice {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrRegionsPerSlice,
			in.RegionsPerSlice, MinRegionsPerSlice, MaxRegionsPerSlice)
	}
	return slicemap.Validate(in.WidthLCU*in.HeightLCU, in.Slices)
}

// ClampRegionsPerSlice bounds n to [MinRegionsPerSlice, MaxRegionsPerSlice].
func ClampRegionsPerSlice(n int) int {
	return max(MinRegionsPerSlice, min(n, MaxRegionsPerSlice))
}

// effectiveRegions lowers the region count when the frame is too narrow to
// give every region the walk's minimum width.
func effectiveRegions(width, requested int, w Walk) int {
	limit := width / w.MinRegionCols()
	return max(1, min(requested, limit))
}

// columnBoundaries returns n+1 column edges from 0 to width. Interior edges
// are floor(i*width/n); under the zigzag walk an odd edge moves down to the
// even column below it.
func columnBoundaries(width, n int, w Walk) []int {
	cols := make([]int, n+1)
	for i := 1; i < n; i++ {
		b := i * width / n
		if w == WalkZigzag && b%2 == 1 {
			b--
		}
		cols[i] = b
	}
	cols[n] = width
	return cols
}

// mergeSpans folds adjacent spans, smallest combined height first with ties
// going to the lower index, until the color ceiling holds or one span is left.
func mergeSpans(spans []Span, perSlice, maxColors int) []Span {
	for len(spans) > 1 && len(spans)*perSlice > maxColors {
		best := 0
		bestHeight := spans[0].Height() + spans[1].Height()
		for i := 1; i < len(spans)-1; i++ {
			if h := spans[i].Height() + spans[i+1].Height(); h < bestHeight {
				best, bestHeight = i, h
			}
		}
		spans[best] = Span{
			StartRow: spans[best].StartRow,
			EndRow:   spans[best+1].EndRow,
			Merged:   spans[best].Merged + spans[best+1].Merged,
		}
		spans = append(spans[:best+1], spans[best+2:]...)
	}
	return spans
}

// SpanOf returns the index of the span containing row, or -1.
func (r *Result) SpanOf(row int) int {
	for i, sp := range r.Spans {
		if row >= sp.StartRow && row < sp.EndRow {
			return i
		}
	}
	return -1
}

// RegionOf returns the index of the region containing (col, row), or -1.
func (r *Result) RegionOf(col, row int) int {
	si := r.SpanOf(row)
	if si < 0 || col < 0 || col >= r.WidthLCU {
		return -1
	}
	first := si * r.RegionsPerSlice
	for i := first; i < first+r.RegionsPerSlice; i++ {
		if r.Regions[i].Contains(col, row) {
			return i
		}
	}
	return -1
}

// Step returns the global wavefront step of the LCU at (col, row): its
// span's wave base plus its wave index within the span.
func (r *Result) Step(col, row int) int {
	si := r.SpanOf(row)
	if si < 0 {
		return -1
	}
	sp := r.Spans[si]
	return sp.WaveBase + r.Walk.Wave(col, row-sp.StartRow)
}

// Point is an LCU position.
type Point struct {
	Col, Row int
}

// Dependencies returns the LCUs that must complete before (col, row) may
// start. Neighbours outside the frame or in another span carry no
// dependency.
func (r *Result) Dependencies(col, row int) []Point {
	si := r.SpanOf(row)
	if si < 0 {
		return nil
	}
	sp := r.Spans[si]
	var out []Point
	for _, d := range r.Scoreboard.Active() {
		c, rw := col+d.DX, row+d.DY
		if c < 0 || c >= r.WidthLCU || rw < sp.StartRow || rw >= sp.EndRow {
			continue
		}
		out = append(out, Point{c, rw})
	}
	return out
}
