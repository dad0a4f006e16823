// Package ratecontrol implements the bitrate controller (BRC): stream level
// Init and Reset, the per-frame Update that picks a target size and QP, and
// the per-region Update that builds ROI weight and QP delta maps.
//
// The controller is a state machine:
//
//	Uninitialized -> Initialized <-> FrameUpdated <-> RegionUpdated
//
// Reset re-enters Initialized and keeps the buffer history unless a full
// reset is requested. Feedback from the dispatcher is applied in frame
// order with ApplyFeedback; UpdateFrame refuses to run ahead of it.
package ratecontrol

import (
	"fmt"

	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/logging"
)

// Phase is the controller lifecycle state.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitialized
	PhaseFrameUpdated
	PhaseRegionUpdated
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitialized:
		return "initialized"
	case PhaseFrameUpdated:
		return "frame-updated"
	case PhaseRegionUpdated:
		return "region-updated"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Feedback is the outcome of an executed frame.
type Feedback struct {
	FrameNumber int64
	Level       Level
	Bits        int64
	AverageQP   float64
	PassCount   int
}

// FrameInput describes the frame about to be planned.
type FrameInput struct {
	FrameNumber    int64
	Type           FrameType
	HierLevelPlus1 int

	// Frames skipped by the application since the previous call, and
	// their total size in bits.
	SkippedFrames int
	SkippedSize   int64
}

// FrameDecision is the result of the per-frame update.
type FrameDecision struct {
	FrameNumber    int64 `json:"frame_number"`
	Level          Level `json:"level"`
	TargetSize     int64 `json:"target_size"`
	TargetSizeFlag bool  `json:"target_size_flag"`

	QPDecision

	MinQP     int `json:"min_qp"`
	MaxQP     int `json:"max_qp"`
	PassCount int `json:"pass_count"`

	SkippedFrames int   `json:"skipped_frames"`
	SkippedSize   int64 `json:"skipped_size"`

	GlobalAdjust  GlobalAdjust `json:"global_adjust"`
	SlidingWindow bool         `json:"sliding_window"`
	LowDelay      bool         `json:"low_delay"`
	ParallelBRC   bool         `json:"parallel_brc"`
}

// Controller is the bitrate controller of one stream. It has a single
// writer: the planning goroutine.
type Controller struct {
	params     Params
	setup      Setup
	state      State
	phase      Phase
	roiEnabled bool
	log        *logging.Logger
}

// New creates an uninitialized controller. A nil logger uses the global one.
func New(log *logging.Logger) *Controller {
	if log == nil {
		log = logging.Global()
	}
	return &Controller{log: log.WithPrefix("brc")}
}

// Phase returns the lifecycle state.
func (c *Controller) Phase() Phase { return c.phase }

// Setup returns the normalized configuration.
func (c *Controller) Setup() Setup { return c.setup }

// Params returns the parameters passed to the last Init or Reset.
func (c *Controller) Params() Params { return c.params }

// State returns a copy of the controller state.
func (c *Controller) State() State { return c.state.clone() }

// Init configures the controller for a new stream and starts the buffer
// model at the initial fullness.
func (c *Controller) Init(p Params, roiEnabled bool) error {
	s, err := NewSetup(p, roiEnabled)
	if err != nil {
		return brcerrors.NewConfigError("invalid rate control parameters", err)
	}
	c.params, c.setup, c.roiEnabled = p, s, roiEnabled
	c.state = newState(s)
	c.phase = PhaseInitialized

	c.log.Info("rate control initialized",
		"mode", s.Mode.String(),
		"target_bitrate", s.TargetBitrate,
		"max_bitrate", s.MaxBitrate,
		"buffer", s.BufferSize,
		"initial_fullness", s.InitialFullness,
		"bits_per_frame", s.BitsPerFrame,
		"bps_ratio", s.BPSRatio)
	return nil
}

// Reset applies new stream parameters. Unless full is set, the buffer
// history and frame counters carry over; the fullness is clamped to the new
// buffer size. Reset on an uninitialized controller is Init.
func (c *Controller) Reset(p Params, roiEnabled, full bool) error {
	if c.phase == PhaseUninitialized || full {
		return c.Init(p, roiEnabled)
	}
	s, err := NewSetup(p, roiEnabled)
	if err != nil {
		return brcerrors.NewConfigError("invalid rate control parameters", err)
	}
	c.params, c.setup, c.roiEnabled = p, s, roiEnabled
	c.state.Mode = s.Mode
	c.state.BufferSize = s.BufferSize
	c.state.BitsPerFrame = s.BitsPerFrame
	if c.state.BufferFullness > float64(s.BufferSize) {
		c.state.BufferFullness = float64(s.BufferSize)
	}
	c.phase = PhaseInitialized

	c.log.Info("rate control reset",
		"mode", s.Mode.String(),
		"target_bitrate", s.TargetBitrate,
		"buffer", s.BufferSize,
		"fullness", c.state.BufferFullness)
	return nil
}

// Restore initializes the controller from a checkpointed state. The
// checkpoint must have been taken with the same mode.
func (c *Controller) Restore(p Params, roiEnabled bool, s State) error {
	if err := s.validate(); err != nil {
		return brcerrors.NewConfigError("invalid checkpoint", err)
	}
	if s.Mode != p.Mode {
		return brcerrors.NewConfigError("invalid checkpoint",
			fmt.Errorf("%w: checkpoint mode %v, stream mode %v", ErrCheckpoint, s.Mode, p.Mode))
	}
	if err := c.Init(p, roiEnabled); err != nil {
		return err
	}
	c.state = s.clone()
	c.state.BufferSize = c.setup.BufferSize
	c.state.BitsPerFrame = c.setup.BitsPerFrame
	return nil
}

// FeedbackApplied returns how many frames have had their feedback applied.
func (c *Controller) FeedbackApplied() int64 { return c.state.FeedbackApplied }

// FramesPlanned returns how many frames have been updated.
func (c *Controller) FramesPlanned() int64 { return c.state.FramesPlanned }

// FeedbackLag is how many frames behind feedback may trail: 1, or 2 under
// parallel BRC.
func (c *Controller) FeedbackLag() int {
	if c.params.ParallelBRC {
		return 2
	}
	return 1
}

// RequiredFeedback returns how many frames must have had their feedback
// applied before frame may be updated.
func RequiredFeedback(frame int64, lag int) int64 {
	return max(0, frame-int64(lag)+1)
}

// ApplyFeedback folds an executed frame's statistics into the buffer model
// and complexity estimates. Feedback must arrive in frame order.
func (c *Controller) ApplyFeedback(fb Feedback) error {
	if c.phase == PhaseUninitialized {
		return brcerrors.NewStateError("rate controller used before Init", ErrNotInitialized)
	}
	if fb.FrameNumber != c.state.FeedbackApplied || fb.FrameNumber >= c.state.FramesPlanned {
		return brcerrors.NewStateError("feedback out of order", fmt.Errorf("%w: frame %d, expected %d of %d planned",
			ErrStaleFeedback, fb.FrameNumber, c.state.FeedbackApplied, c.state.FramesPlanned))
	}
	if fb.Level < 0 || fb.Level >= NumLevels || fb.Bits < 0 {
		return brcerrors.NewConfigError("invalid feedback",
			fmt.Errorf("%w: level %d bits %d", ErrFrameLevel, fb.Level, fb.Bits))
	}

	if c.setup.Mode.UsesBitrate() {
		bpf := c.setup.BitsPerFrame
		c.state.BufferFullness += bpf - float64(fb.Bits)
		c.clampFullness()
		c.state.TargetBits += int64(bpf)
	}
	c.state.ActualBits += fb.Bits
	c.observe(fb.Level, fb.Bits, fb.AverageQP)
	c.state.FeedbackApplied++

	c.log.Debug("feedback applied",
		"frame", fb.FrameNumber,
		"level", fb.Level.String(),
		"bits", fb.Bits,
		"avg_qp", fb.AverageQP,
		"fullness", c.state.BufferFullness)
	return nil
}

func (c *Controller) clampFullness() {
	buf := float64(c.setup.BufferSize)
	if c.state.BufferFullness > buf {
		c.state.BufferFullness = buf
		c.state.Overflows++
	}
	if c.state.BufferFullness < 0 {
		c.state.Underflows++
	}
}

// UpdateFrame computes the target size and QP of the next frame.
func (c *Controller) UpdateFrame(in FrameInput) (FrameDecision, error) {
	if c.phase == PhaseUninitialized {
		return FrameDecision{}, brcerrors.NewStateError("rate controller used before Init", ErrNotInitialized)
	}
	if in.FrameNumber != c.state.FramesPlanned {
		return FrameDecision{}, brcerrors.NewStateError("frame update out of order",
			fmt.Errorf("%w: frame %d, expected %d", ErrPhase, in.FrameNumber, c.state.FramesPlanned))
	}
	if need := RequiredFeedback(in.FrameNumber, c.FeedbackLag()); c.state.FeedbackApplied < need {
		return FrameDecision{}, brcerrors.NewStateError("frame update ahead of feedback",
			fmt.Errorf("%w: frame %d needs %d feedback records, have %d",
				ErrMissingFeedback, in.FrameNumber, need, c.state.FeedbackApplied))
	}
	if in.SkippedFrames < 0 || in.SkippedSize < 0 {
		return FrameDecision{}, brcerrors.NewConfigError("invalid skip accounting",
			fmt.Errorf("%w: %d frames, %d bits", ErrParams, in.SkippedFrames, in.SkippedSize))
	}

	level, err := FrameLevel(c.params.LowDelay, in.Type, in.HierLevelPlus1)
	if err != nil {
		return FrameDecision{}, brcerrors.NewConfigError("cannot classify frame", err)
	}

	d := FrameDecision{
		FrameNumber:   in.FrameNumber,
		Level:         level,
		PassCount:     max(1, c.params.PassCount),
		SkippedFrames: in.SkippedFrames,
		SkippedSize:   in.SkippedSize,
		GlobalAdjust:  c.setup.GlobalAdjust,
		SlidingWindow: c.params.Tolerance == ToleranceLow,
		LowDelay:      c.params.Tolerance == ToleranceExtremelyLow,
		ParallelBRC:   c.params.ParallelBRC,
	}
	bounds := c.params.rangeFor(level)
	d.MinQP, d.MaxQP = bounds.Min, bounds.Max

	bpf := c.setup.BitsPerFrame
	if c.setup.Mode.UsesBitrate() {
		if c.state.TargetAccumulator > float64(c.setup.BufferSize) {
			c.state.TargetAccumulator -= float64(c.setup.BufferSize)
			d.TargetSizeFlag = true
		}
		if in.SkippedFrames > 0 {
			c.state.TargetAccumulator += bpf * float64(in.SkippedFrames)
			c.state.BufferFullness += bpf*float64(in.SkippedFrames) - float64(in.SkippedSize)
			c.clampFullness()
		}
		d.TargetSize = int64(c.state.TargetAccumulator)
	}
	c.state.SkippedFrames += int64(in.SkippedFrames)
	c.state.SkippedSize += in.SkippedSize

	d.QPDecision = c.decideQP(level)

	c.state.LevelFrames[level]++
	c.state.FramesPlanned++
	if c.setup.Mode.UsesBitrate() {
		c.state.TargetAccumulator += bpf
	}
	c.phase = PhaseFrameUpdated

	c.log.Debug("frame updated",
		"frame", d.FrameNumber,
		"level", level.String(),
		"target", d.TargetSize,
		"qp", d.QP,
		"deviation", d.Deviation,
		"panic", d.Panic)
	return d, nil
}

// UpdateRegions builds the per-LCU weight and QP delta map for the frame
// just updated. It requires region-level control or at least one ROI.
func (c *Controller) UpdateRegions(in RegionInput) (*RegionMap, error) {
	if c.phase == PhaseUninitialized {
		return nil, brcerrors.NewStateError("rate controller used before Init", ErrNotInitialized)
	}
	if c.phase != PhaseFrameUpdated {
		return nil, brcerrors.NewStateError("region update without frame update",
			fmt.Errorf("%w: in phase %v", ErrPhase, c.phase))
	}
	if !c.params.RegionControl && len(in.ROIs) == 0 {
		return nil, brcerrors.NewConfigError("region update not enabled", ErrRegionControl)
	}

	m, err := BuildRegionMap(in)
	if err != nil {
		return nil, brcerrors.NewConfigError("invalid ROI", err)
	}
	c.phase = PhaseRegionUpdated

	c.log.Debug("regions updated",
		"rois", len(in.ROIs),
		"roi_ratio", m.ROIRatio)
	return m, nil
}
