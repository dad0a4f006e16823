package ratecontrol

// FrameAt returns the coding type and hierarchy level (plus one) of frame n
// in coding order. Each GOP opens with an I frame; every mini-GOP of
// RefDist frames starts with its anchor P and is followed by its B frames,
// deepest pyramid levels last. Per-GOP counts agree with DeriveGOP, so the
// frames planned match the budget split. Under low delay the pyramid is
// expressed through the hierarchy level on P and B coding types.
func (g GOP) FrameAt(n int64, lowDelay bool) (FrameType, int) {
	pos := n
	if g.PicSize > 0 {
		pos = n % int64(g.PicSize)
	}
	if pos == 0 {
		return FrameI, 0
	}

	dist := max(g.RefDist, 1)
	k := int((pos - 1) % int64(dist))
	m := dist
	if g.PicSize > 0 && int((pos-1)/int64(dist)) == (g.PicSize-1)/dist {
		m = (g.PicSize - 1) % dist
	}

	t := FrameB
	switch {
	case k == 0:
		t = FrameP
	case g.Hierarchical && dist > 1 && dist <= 8:
		switch {
		case k == 1:
			t = FrameB
		case k < 2+pyramidB1[m]:
			t = FrameB1
		default:
			t = FrameB2
		}
	}

	if !lowDelay {
		return t, 0
	}
	switch t {
	case FrameP:
		return FrameP, 0
	case FrameB:
		return FrameB, 1
	default:
		return FrameB, 2
	}
}
