package ratecontrol

import (
	"fmt"

	"github.com/five82/brcplan/internal/costmodel"
)

// ROI weight bands. LCUs inside a rectangle get WeightInside; with
// smoothing, the three one-LCU rings around it get the ring weights.
const (
	WeightInside uint8 = 15
	WeightRing1  uint8 = 14
	WeightRing2  uint8 = 13
	WeightRing3  uint8 = 12
)

// ringWeights[d] is the weight at Chebyshev distance d outside a rectangle.
var ringWeights = [...]uint8{WeightInside, WeightRing1, WeightRing2, WeightRing3}

// MaxROIRatio bounds the frame-wide ROI ratio.
const MaxROIRatio = 51

// ROI is a rectangle in LCU units with exclusive right and bottom edges.
// Lower indices take precedence where rectangles overlap.
type ROI struct {
	Left    int `yaml:"left" json:"left"`
	Top     int `yaml:"top" json:"top"`
	Right   int `yaml:"right" json:"right"`
	Bottom  int `yaml:"bottom" json:"bottom"`
	DeltaQP int `yaml:"delta_qp" json:"delta_qp"`
}

// Area returns the rectangle's LCU count.
func (r ROI) Area() int {
	return (r.Right - r.Left) * (r.Bottom - r.Top)
}

// distance returns the Chebyshev distance from (col, row) to the rectangle,
// 0 when inside.
func (r ROI) distance(col, row int) int {
	dx := max(r.Left-col, col-(r.Right-1), 0)
	dy := max(r.Top-row, row-(r.Bottom-1), 0)
	return max(dx, dy)
}

func (r ROI) validate(width, height int) error {
	if r.Left < 0 || r.Top < 0 || r.Right > width || r.Bottom > height ||
		r.Left >= r.Right || r.Top >= r.Bottom {
		return fmt.Errorf("%w: [%d,%d)x[%d,%d) in %dx%d frame",
			ErrROI, r.Left, r.Right, r.Top, r.Bottom, width, height)
	}
	if r.DeltaQP < -costmodel.MaxQP || r.DeltaQP > costmodel.MaxQP {
		return fmt.Errorf("%w: delta QP %d", ErrROI, r.DeltaQP)
	}
	return nil
}

// ValidateROIs checks every rectangle against a widthLCU x heightLCU frame.
func ValidateROIs(widthLCU, heightLCU int, rois []ROI) error {
	if widthLCU <= 0 || heightLCU <= 0 {
		return fmt.Errorf("%w: %dx%d frame", ErrROI, widthLCU, heightLCU)
	}
	for _, r := range rois {
		if err := r.validate(widthLCU, heightLCU); err != nil {
			return err
		}
	}
	return nil
}

// RegionInput is the input of the per-region update.
type RegionInput struct {
	WidthLCU  int
	HeightLCU int
	ROIs      []ROI
	Smooth    bool // weight the three rings around each ROI
}

// RegionMap holds one weight and one QP delta per LCU in raster order.
// Background is the delta given to LCUs outside every band.
type RegionMap struct {
	WidthLCU   int     `json:"width_lcu"`
	HeightLCU  int     `json:"height_lcu"`
	Weights    []uint8 `json:"weights"`
	DeltaQP    []int8  `json:"delta_qp"`
	ROIRatio   int     `json:"roi_ratio"`
	Background int8    `json:"background"`
}

// At returns the weight and QP delta of an LCU.
func (m *RegionMap) At(col, row int) (uint8, int8) {
	i := row*m.WidthLCU + col
	return m.Weights[i], m.DeltaQP[i]
}

// BuildRegionMap classifies every LCU against the ROIs. Rectangles are
// walked from last to first so that the lowest index wins; zero-delta
// rectangles are ignored. A banded LCU gets the rectangle's delta scaled by
// its band weight. LCUs outside all bands keep weight 0 and get the
// background delta.
func BuildRegionMap(in RegionInput) (*RegionMap, error) {
	if err := ValidateROIs(in.WidthLCU, in.HeightLCU, in.ROIs); err != nil {
		return nil, err
	}

	n := in.WidthLCU * in.HeightLCU
	m := &RegionMap{
		WidthLCU:  in.WidthLCU,
		HeightLCU: in.HeightLCU,
		Weights:   make([]uint8, n),
		DeltaQP:   make([]int8, n),
		ROIRatio:  ROIRatio(n, in.ROIs),
	}

	reach := 0
	if in.Smooth {
		reach = len(ringWeights) - 1
	}
	for i := len(in.ROIs) - 1; i >= 0; i-- {
		r := in.ROIs[i]
		if r.DeltaQP == 0 {
			continue
		}
		top, bottom := max(0, r.Top-reach), min(in.HeightLCU, r.Bottom+reach)
		left, right := max(0, r.Left-reach), min(in.WidthLCU, r.Right+reach)
		for row := top; row < bottom; row++ {
			for col := left; col < right; col++ {
				idx := row*in.WidthLCU + col
				w := ringWeights[r.distance(col, row)]
				m.Weights[idx] = w
				m.DeltaQP[idx] = BlendDelta(r.DeltaQP, w)
			}
		}
	}

	m.Background = BackgroundDelta(m.Weights, m.DeltaQP, m.ROIRatio)
	if m.Background != 0 {
		for i, w := range m.Weights {
			if w == 0 {
				m.DeltaQP[i] = m.Background
			}
		}
	}
	return m, nil
}

// BlendDelta scales delta by weight/WeightInside, rounded to nearest.
// WeightInside is odd, so there are no ties.
func BlendDelta(delta int, weight uint8) int8 {
	n := delta * int(weight)
	half := int(WeightInside) / 2
	if n < 0 {
		n -= half
	} else {
		n += half
	}
	return int8(n / int(WeightInside))
}

// BackgroundDelta offsets the LCUs outside every band against the mean
// banded delta: ceil(2*|mean|/ratio) with the opposite sign, at most MaxQP.
// With ratio = 2*(frame/roi - 1) this spends outside the ROI roughly what
// the bands save or cost inside it. It is 0 without ROI ratio or banded
// deltas.
func BackgroundDelta(weights []uint8, deltas []int8, ratio int) int8 {
	if ratio <= 0 {
		return 0
	}
	sum, n := 0, 0
	for i, w := range weights {
		if w > 0 {
			sum += int(deltas[i])
			n++
		}
	}
	if sum == 0 {
		return 0
	}
	mag := (2*max(sum, -sum) + n*ratio - 1) / (n * ratio)
	mag = min(mag, costmodel.MaxQP)
	if sum > 0 {
		return int8(-mag)
	}
	return int8(mag)
}

// ROIRatio returns 2*(frame/roi - 1) in integer arithmetic, clamped to
// [0, MaxROIRatio], or 0 without ROI area. Overlapping rectangles count
// their area twice.
func ROIRatio(frameLCUs int, rois []ROI) int {
	area := 0
	for _, r := range rois {
		area += r.Area()
	}
	if area <= 0 {
		return 0
	}
	ratio := 2 * (frameLCUs/area - 1)
	return max(0, min(ratio, MaxROIRatio))
}
