package orchestrator

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/five82/brcplan/internal/costmodel"
	"github.com/five82/brcplan/internal/partition"
	"github.com/five82/brcplan/internal/ratecontrol"
	"github.com/five82/brcplan/internal/slicemap"
)

// Handle identifies a submitted frame. Dispatchers issue UUID strings.
type Handle string

// FrameStatistics is what the dispatcher reports for an executed frame.
type FrameStatistics struct {
	BitsProduced        int64     `json:"bits_produced"`
	AverageQP           float64   `json:"average_qp"`
	DistortionPerRegion []float64 `json:"distortion_per_region"`
	PassCount           int       `json:"pass_count"`
}

// Dispatcher executes region work outside the control plane.
type Dispatcher interface {
	// SubmitRegionWork starts executing a plan and returns without waiting.
	SubmitRegionWork(ctx context.Context, plan *FramePlan) (Handle, error)
	// GetFrameStatistics blocks until the frame behind h has executed.
	GetFrameStatistics(ctx context.Context, h Handle) (FrameStatistics, error)
}

// LCU size limits, log2 of the edge in pixels.
const (
	MinLog2LCU = 4
	MaxLog2LCU = 6
	MinLog2CU  = 3
)

// FrameDescriptor describes one frame to plan. It is not modified during
// planning.
type FrameDescriptor struct {
	FrameNumber int64 `json:"frame_number"`
	Width       int   `json:"width"`  // pixels
	Height      int   `json:"height"` // pixels
	Log2LCU     int   `json:"log2_lcu"`    // 0 selects the profile's LCU size
	Log2MinCU   int   `json:"log2_min_cu"` // 0 selects MinLog2CU

	Type           ratecontrol.FrameType `json:"type"`
	HierLevelPlus1 int                   `json:"hier_level_plus1"`
	Transform      costmodel.Transform   `json:"transform"`

	SkippedFrames int   `json:"skipped_frames"`
	SkippedSize   int64 `json:"skipped_size"`
}

// LCUSize returns the LCU edge in pixels.
func (f FrameDescriptor) LCUSize() int { return 1 << f.Log2LCU }

// WidthLCU returns the frame width in LCUs, counting a partial column.
func (f FrameDescriptor) WidthLCU() int { return (f.Width + f.LCUSize() - 1) / f.LCUSize() }

// HeightLCU returns the frame height in LCUs, counting a partial row.
func (f FrameDescriptor) HeightLCU() int { return (f.Height + f.LCUSize() - 1) / f.LCUSize() }

// LCUs returns the frame's LCU count.
func (f FrameDescriptor) LCUs() int { return f.WidthLCU() * f.HeightLCU() }

// SliceType maps the coding type to the cost model's slice type.
func (f FrameDescriptor) SliceType() costmodel.SliceType {
	switch f.Type {
	case ratecontrol.FrameI:
		return costmodel.SliceIntra
	case ratecontrol.FrameP:
		return costmodel.SlicePredicted
	default:
		return costmodel.SliceBiPredicted
	}
}

func (f FrameDescriptor) withDefaults(lcuSize int) FrameDescriptor {
	if f.Log2LCU == 0 && lcuSize > 0 {
		f.Log2LCU = bits.Len(uint(lcuSize)) - 1
	}
	if f.Log2MinCU == 0 {
		f.Log2MinCU = MinLog2CU
	}
	return f
}

func (f FrameDescriptor) validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d pixels", ErrFrameGeometry, f.Width, f.Height)
	}
	if f.Log2LCU < MinLog2LCU || f.Log2LCU > MaxLog2LCU {
		return fmt.Errorf("%w: log2 LCU size %d not in [%d,%d]", ErrFrameGeometry, f.Log2LCU, MinLog2LCU, MaxLog2LCU)
	}
	if f.Log2MinCU < MinLog2CU || f.Log2MinCU > f.Log2LCU {
		return fmt.Errorf("%w: log2 min CU size %d not in [%d,%d]", ErrFrameGeometry, f.Log2MinCU, MinLog2CU, f.Log2LCU)
	}
	if f.Transform != costmodel.TransformDefault && f.Transform != costmodel.TransformHadamard {
		return fmt.Errorf("%w: transform %d", ErrFrameGeometry, f.Transform)
	}
	return nil
}

// StreamParams configures a session. Changing them between frames resets
// the rate controller.
type StreamParams struct {
	RateControl     ratecontrol.Params
	RegionsPerSlice int
	Walk            partition.Walk
	SmoothROI       bool
	FullReset       bool // discard buffer history on reconfiguration
}

// FramePlan is everything the dispatcher needs to execute a frame.
type FramePlan struct {
	SessionID string          `json:"session_id"`
	Frame     FrameDescriptor `json:"frame"`

	// SliceMap is owned by the session and valid until the next PlanFrame.
	SliceMap  *slicemap.Map     `json:"-"`
	Partition *partition.Result `json:"partition"`

	Decision ratecontrol.FrameDecision `json:"decision"`
	Costs    costmodel.Tables          `json:"costs"`

	// Region-level outputs, nil when neither region control nor ROI is on.
	Regions     *ratecontrol.RegionMap   `json:"regions,omitempty"`
	QPMap       []uint8                  `json:"qp_map,omitempty"`
	RegionCosts map[int]costmodel.Tables `json:"region_costs,omitempty"`

	Handle Handle `json:"handle"`
}

// QPAt returns the QP of the LCU at (col, row).
func (p *FramePlan) QPAt(col, row int) int {
	if p.QPMap == nil {
		return p.Decision.QP
	}
	return int(p.QPMap[row*p.Partition.WidthLCU+col])
}

// CostsFor returns the cost tables used at qp.
func (p *FramePlan) CostsFor(qp int) costmodel.Tables {
	if t, ok := p.RegionCosts[qp]; ok {
		return t
	}
	return p.Costs
}
