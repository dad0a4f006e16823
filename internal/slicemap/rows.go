package slicemap

// SliceRows describes a slice in LCU rows.
type SliceRows struct {
	Index    int // position in the slice list
	StartRow int
	EndRow   int // exclusive; a partial last row counts as a full row

	// Arbitrary is set when the slice does not start and end on a multiple
	// of the alignment unit.
	Arbitrary bool
}

// Height returns the slice height in rows.
func (r SliceRows) Height() int {
	return r.EndRow - r.StartRow
}

// Boundaries converts slices to row ranges. unitRows is the alignment unit
// in rows (1 for a single-row walk, 2 when the walk covers row pairs). A
// slice ending at the frame's last LCU only needs to end on a row.
func Boundaries(slices []Slice, widthLCU, heightLCU, unitRows int) []SliceRows {
	if unitRows < 1 {
		unitRows = 1
	}
	unit := widthLCU * unitRows
	frameLCUs := widthLCU * heightLCU

	out := make([]SliceRows, len(slices))
	for i, s := range slices {
		end := s.End()
		aligned := s.StartLCU%unit == 0 &&
			(end%unit == 0 || (end == frameLCUs && end%widthLCU == 0))
		out[i] = SliceRows{
			Index:     i,
			StartRow:  s.StartLCU / widthLCU,
			EndRow:    (end + widthLCU - 1) / widthLCU,
			Arbitrary: !aligned,
		}
	}
	return out
}

// AnyArbitrary reports whether any slice is arbitrary.
func AnyArbitrary(rows []SliceRows) bool {
	for _, r := range rows {
		if r.Arbitrary {
			return true
		}
	}
	return false
}

// Rows splits a widthLCU x heightLCU frame into n slices of whole row
// units, as even as possible. n is clamped to the number of row units.
func Rows(widthLCU, heightLCU, n, unitRows int) []Slice {
	if unitRows < 1 {
		unitRows = 1
	}
	units := (heightLCU + unitRows - 1) / unitRows
	n = max(1, min(n, units))

	out := make([]Slice, n)
	for i := range n {
		startRow := i * units / n * unitRows
		endRow := min((i+1)*units/n*unitRows, heightLCU)
		out[i] = Slice{
			ID:       uint16(i),
			StartLCU: startRow * widthLCU,
			NumLCUs:  (endRow - startRow) * widthLCU,
		}
	}
	return out
}
