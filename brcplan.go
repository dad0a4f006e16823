// Package brcplan is the control plane of a block-based video encoder.
//
// For every frame it decides how many bits the frame and each region may
// spend, the cost tables that bias mode and motion decisions, and how the
// frame's LCUs are split into wavefront regions that can be processed
// concurrently. Plans are executed by a reference dispatcher that
// synthesizes coding statistics, so whole streams can be simulated.
//
// Basic usage:
//
//	planner, err := brcplan.New(
//	    brcplan.WithPreset(brcplan.PresetBroadcast),
//	    brcplan.WithBitrate(6_000_000),
//	    brcplan.WithFrames(600),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := planner.Simulate(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("%d frames, %.1f%% off target\n",
//	    result.Frames, result.RateDeviationPercent)
package brcplan

import (
	"context"
	"time"

	"github.com/five82/brcplan/internal/config"
	"github.com/five82/brcplan/internal/logging"
	"github.com/five82/brcplan/internal/orchestrator"
	"github.com/five82/brcplan/internal/processing"
	"github.com/five82/brcplan/internal/ratecontrol"
	"github.com/five82/brcplan/internal/reporter"
	"github.com/five82/brcplan/internal/util"
)

// Re-export preset types
type Preset = config.Preset

const (
	PresetLowDelay  = config.PresetLowDelay
	PresetBroadcast = config.PresetBroadcast
	PresetArchive   = config.PresetArchive
)

// ParsePreset converts a preset string to a Preset value.
// Valid values are "lowdelay", "broadcast" and "archive" (case-insensitive).
func ParsePreset(s string) (Preset, error) {
	return config.ParsePreset(s)
}

// Mode is the rate-control method.
type Mode = ratecontrol.Mode

const (
	ModeCBR  = ratecontrol.ModeCBR
	ModeVBR  = ratecontrol.ModeVBR
	ModeAVBR = ratecontrol.ModeAVBR
	ModeICQ  = ratecontrol.ModeICQ
	ModeVCM  = ratecontrol.ModeVCM
	ModeCQP  = ratecontrol.ModeCQP
	ModeQVBR = ratecontrol.ModeQVBR
)

// ParseMode converts a mode name such as "cbr" or "qvbr" to a Mode.
func ParseMode(s string) (Mode, error) {
	return ratecontrol.ParseMode(s)
}

// ROI is a region of interest in LCU units with a QP delta.
type ROI = ratecontrol.ROI

// FramePlan is the plan of one frame.
type FramePlan = orchestrator.FramePlan

// Reporter receives progress events.
type Reporter = reporter.Reporter

// Planner runs planning sessions with a fixed configuration.
type Planner struct {
	config *config.Config
	log    *logging.Logger
}

// Result summarizes a simulation.
type Result struct {
	SessionID            string
	FirstFrame           int64
	Frames               int64
	TargetBits           int64
	ActualBits           int64
	RateDeviationPercent float64
	AverageQP            float64
	Underflows           int
	Overflows            int
	MaxParallel          int
	Violations           int
	Duration             time.Duration
	Artifacts            []string

	// Last is the plan of the final frame.
	Last *FramePlan
}

// Option configures the planner.
type Option func(*config.Config)

// New creates a Planner with the given options.
func New(opts ...Option) (*Planner, error) {
	return build(config.NewConfig(), opts)
}

// NewFromFile creates a Planner from a YAML config file. Options are
// applied after the file.
func NewFromFile(path string, opts ...Option) (*Planner, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return build(cfg, opts)
}

func build(cfg *config.Config, opts []Option) (*Planner, error) {
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Planner{config: cfg, log: logging.Global()}, nil
}

// Config returns a copy of the planner configuration.
func (p *Planner) Config() config.Config {
	return *p.config
}

// WithPreset applies a brcplan preset.
func WithPreset(preset Preset) Option {
	return func(c *config.Config) {
		c.ApplyPreset(preset)
	}
}

// WithProfile selects the capability profile by name ("gen9", "gen12").
func WithProfile(name string) Option {
	return func(c *config.Config) {
		c.Profile = name
	}
}

// WithFrameSize sets the frame size in pixels.
func WithFrameSize(width, height int) Option {
	return func(c *config.Config) {
		c.Width = width
		c.Height = height
	}
}

// WithLCUSize sets log2 of the LCU edge. 0 uses the profile's size.
func WithLCUSize(log2 int) Option {
	return func(c *config.Config) {
		c.Log2LCU = log2
	}
}

// WithRateControl sets the rate-control mode.
func WithRateControl(m Mode) Option {
	return func(c *config.Config) {
		c.Mode = m
	}
}

// WithBitrate sets the target bitrate in bits per second. The max bitrate
// and buffer size keep their ratio to the target.
func WithBitrate(bps int64) Option {
	return func(c *config.Config) {
		if c.TargetBitrate > 0 {
			c.MaxBitrate = c.MaxBitrate * bps / c.TargetBitrate
			c.BufferSize = c.BufferSize * bps / c.TargetBitrate
		}
		c.TargetBitrate = bps
	}
}

// WithMaxBitrate sets the peak bitrate of the variable modes.
func WithMaxBitrate(bps int64) Option {
	return func(c *config.Config) {
		c.MaxBitrate = bps
	}
}

// WithBufferSize sets the VBV buffer size in bits.
func WithBufferSize(bits int64) Option {
	return func(c *config.Config) {
		c.BufferSize = bits
	}
}

// WithFrameRate sets the frame rate as num/den.
func WithFrameRate(num, den uint32) Option {
	return func(c *config.Config) {
		c.FrameRateNum = num
		c.FrameRateDen = den
	}
}

// WithGOP sets the GOP structure.
func WithGOP(picSize, refDist int, hierarchical bool) Option {
	return func(c *config.Config) {
		c.GOP = ratecontrol.GOP{PicSize: picSize, RefDist: refDist, Hierarchical: hierarchical}
	}
}

// WithLowDelay enables low-delay (no reordering) coding.
func WithLowDelay() Option {
	return func(c *config.Config) {
		c.LowDelay = true
	}
}

// WithQuality sets the ICQ/QVBR quality factor.
func WithQuality(q int) Option {
	return func(c *config.Config) {
		c.ICQQuality = q
	}
}

// WithCQP sets the fixed QPs of constant-QP mode.
func WithCQP(i, p, b int) Option {
	return func(c *config.Config) {
		c.CQP = ratecontrol.CQPValues{I: i, P: p, B: b}
	}
}

// WithParallelBRC lets frame N be planned before frame N-1 has executed.
func WithParallelBRC() Option {
	return func(c *config.Config) {
		c.ParallelBRC = true
	}
}

// WithRegionControl enables per-region QP control.
func WithRegionControl() Option {
	return func(c *config.Config) {
		c.RegionControl = true
	}
}

// WithSlices splits each frame into n row-aligned slices.
func WithSlices(n int) Option {
	return func(c *config.Config) {
		c.Slices = n
	}
}

// WithRegionsPerSlice sets the wavefront regions per slice.
func WithRegionsPerSlice(n int) Option {
	return func(c *config.Config) {
		c.RegionsPerSlice = n
	}
}

// WithWalk selects the wavefront walk ("diagonal" or "zigzag").
func WithWalk(name string) Option {
	return func(c *config.Config) {
		c.Walk = name
	}
}

// WithROI adds regions of interest. Lower indices win where they overlap.
func WithROI(rois ...ROI) Option {
	return func(c *config.Config) {
		c.ROIs = append(c.ROIs, rois...)
	}
}

// WithSmoothROI weights the three LCU rings around each ROI.
func WithSmoothROI() Option {
	return func(c *config.Config) {
		c.SmoothROI = true
	}
}

// WithFrames sets how many frames Simulate plans.
func WithFrames(n int) Option {
	return func(c *config.Config) {
		c.Frames = n
	}
}

// WithSeed selects the synthetic content of the reference dispatcher.
func WithSeed(seed uint64) Option {
	return func(c *config.Config) {
		c.Seed = seed
	}
}

// WithWorkers bounds concurrent LCU tasks. 0 means one per CPU.
func WithWorkers(n int) Option {
	return func(c *config.Config) {
		c.Workers = n
	}
}

// WithComplexity scales the synthetic content's coding cost.
func WithComplexity(complexity float64) Option {
	return func(c *config.Config) {
		c.Complexity = complexity
	}
}

// WithFeedbackTimeout bounds the wait for frame statistics.
func WithFeedbackTimeout(d time.Duration) Option {
	return func(c *config.Config) {
		c.FeedbackTimeout = d
	}
}

// WithPlanDump writes every plan and its statistics to path as
// zstd-compressed NDJSON.
func WithPlanDump(path string) Option {
	return func(c *config.Config) {
		c.PlanDump = path
	}
}

// WithRender saves a PNG of the last frame's regions to path.
func WithRender(path string) Option {
	return func(c *config.Config) {
		c.RenderPNG = path
	}
}

// WithCheckpoint writes the rate-control state to path after the run.
func WithCheckpoint(path string) Option {
	return func(c *config.Config) {
		c.Checkpoint = path
	}
}

// WithResume continues from a checkpoint written by WithCheckpoint.
func WithResume(path string) Option {
	return func(c *config.Config) {
		c.ResumeFrom = path
	}
}

// SetLogger replaces the planner's logger.
func (p *Planner) SetLogger(l *logging.Logger) {
	if l != nil {
		p.log = l
	}
}

// Simulate plans the configured number of frames through the reference
// dispatcher. A nil reporter discards progress.
func (p *Planner) Simulate(ctx context.Context, rep Reporter) (*Result, error) {
	cfg := *p.config
	out, err := processing.Simulate(ctx, &cfg, rep, p.log)
	if err != nil {
		return nil, err
	}
	return &Result{
		SessionID:            out.SessionID,
		FirstFrame:           out.FirstFrame,
		Frames:               out.Frames,
		TargetBits:           out.TargetBits,
		ActualBits:           out.ActualBits,
		RateDeviationPercent: util.RateDeviation(out.TargetBits, out.ActualBits),
		AverageQP:            out.AverageQP,
		Underflows:           out.Session.Underflows,
		Overflows:            out.Session.Overflows,
		MaxParallel:          int(out.Dispatch.MaxParallel),
		Violations:           int(out.Dispatch.Violations),
		Duration:             out.Duration,
		Artifacts:            out.Artifacts,
		Last:                 out.Last,
	}, nil
}
