// Package config provides configuration types, presets and file loading
// for brcplan runs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/five82/brcplan/internal/capability"
	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/orchestrator"
	"github.com/five82/brcplan/internal/partition"
	"github.com/five82/brcplan/internal/ratecontrol"
)

// Default constants
const (
	// DefaultWidth and DefaultHeight are the frame size in pixels.
	DefaultWidth  = 1920
	DefaultHeight = 1080

	// DefaultTargetBitrate is 4 Mbps.
	DefaultTargetBitrate int64 = 4_000_000

	// DefaultFrameRate is 30 fps.
	DefaultFrameRate uint32 = 30

	// DefaultGOPSize is the frames per GOP.
	DefaultGOPSize = 32

	// DefaultRegionsPerSlice is the wavefront regions per slice.
	DefaultRegionsPerSlice = 4

	// DefaultSlices is the slices per frame.
	DefaultSlices = 1

	// DefaultFrames is the frame count of a simulation.
	DefaultFrames = 300

	// DefaultSeed selects the synthetic content.
	DefaultSeed uint64 = 1

	// DefaultFeedbackTimeout bounds the wait for frame statistics.
	DefaultFeedbackTimeout = 10 * time.Second

	// MaxSlices is the largest slice count accepted.
	MaxSlices = 600
)

// Preset represents a brcplan preset grouping.
type Preset string

const (
	PresetLowDelay  Preset = "lowdelay"
	PresetBroadcast Preset = "broadcast"
	PresetArchive   Preset = "archive"
)

// ParsePreset parses a string into a Preset.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lowdelay", "low-delay":
		return PresetLowDelay, nil
	case "broadcast":
		return PresetBroadcast, nil
	case "archive":
		return PresetArchive, nil
	default:
		return "", fmt.Errorf("%w: '%s', valid options: lowdelay, broadcast, archive", ErrInvalidPreset, s)
	}
}

// String returns the string representation of the preset.
func (p Preset) String() string {
	return string(p)
}

// PresetValues contains bundled parameter values for a preset. Buffer sizes
// are expressed in milliseconds of the target bitrate.
type PresetValues struct {
	Mode          ratecontrol.Mode
	BufferMillis  int64
	MaxBitrateX   int64 // max bitrate as a multiple of the target; 0 keeps it equal
	GOP           ratecontrol.GOP
	LowDelay      bool
	Tolerance     ratecontrol.Tolerance
	ParallelBRC   bool
	PanicMode     bool
	RegionControl bool
}

// GetPresetValues returns the values for a given preset.
func GetPresetValues(p Preset) PresetValues {
	switch p {
	case PresetLowDelay:
		return PresetValues{
			Mode:         ratecontrol.ModeCBR,
			BufferMillis: 500,
			GOP:          ratecontrol.GOP{PicSize: 120, RefDist: 1},
			LowDelay:     true,
			Tolerance:    ratecontrol.ToleranceExtremelyLow,
			PanicMode:    true,
		}
	case PresetBroadcast:
		return PresetValues{
			Mode:         ratecontrol.ModeCBR,
			BufferMillis: 1000,
			GOP:          ratecontrol.GOP{PicSize: DefaultGOPSize, RefDist: 4, Hierarchical: true},
			ParallelBRC:  true,
		}
	case PresetArchive:
		return PresetValues{
			Mode:          ratecontrol.ModeVBR,
			BufferMillis:  2000,
			MaxBitrateX:   2,
			GOP:           ratecontrol.GOP{PicSize: 64, RefDist: 8, Hierarchical: true},
			RegionControl: true,
		}
	default:
		// Return broadcast preset as default
		return GetPresetValues(PresetBroadcast)
	}
}

// Config holds all configuration for a planning run.
type Config struct {
	// Frame geometry
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Log2LCU int    `yaml:"log2_lcu"` // 0 uses the profile's LCU size
	Profile string `yaml:"profile"`

	// Rate control
	Mode            ratecontrol.Mode      `yaml:"mode"`
	TargetBitrate   int64                 `yaml:"target_bitrate"`
	MaxBitrate      int64                 `yaml:"max_bitrate"`
	BufferSize      int64                 `yaml:"buffer_size"`
	InitialFullness int64                 `yaml:"initial_fullness"`
	FrameRateNum    uint32                `yaml:"frame_rate_num"`
	FrameRateDen    uint32                `yaml:"frame_rate_den"`
	GOP             ratecontrol.GOP       `yaml:"gop"`
	LowDelay        bool                  `yaml:"low_delay"`
	Tolerance       string                `yaml:"tolerance"`
	ICQQuality      int                   `yaml:"icq_quality"`
	QPI             ratecontrol.QPRange   `yaml:"qp_i"`
	QPP             ratecontrol.QPRange   `yaml:"qp_p"`
	QPB             ratecontrol.QPRange   `yaml:"qp_b"`
	CQP             ratecontrol.CQPValues `yaml:"cqp"`
	RegionControl   bool                  `yaml:"region_control"`
	PanicMode       bool                  `yaml:"panic_mode"`
	ParallelBRC     bool                  `yaml:"parallel_brc"`
	PassCount       int                   `yaml:"pass_count"`
	ROIs            []ratecontrol.ROI     `yaml:"rois"`
	SmoothROI       bool                  `yaml:"smooth_roi"`

	// Partitioning
	Slices          int    `yaml:"slices"`
	RegionsPerSlice int    `yaml:"regions_per_slice"`
	Walk            string `yaml:"walk"` // empty selects the profile's preferred walk

	// Simulation
	Frames          int           `yaml:"frames"`
	Seed            uint64        `yaml:"seed"`
	Workers         int           `yaml:"workers"` // 0 means one per CPU
	Complexity      float64       `yaml:"complexity"`
	FeedbackTimeout time.Duration `yaml:"feedback_timeout"`

	// Output
	LogDir     string `yaml:"log_dir"`
	PlanDump   string `yaml:"plan_dump"`   // zstd NDJSON of every plan and its statistics
	RenderPNG  string `yaml:"render_png"`  // region layout of the last frame
	Checkpoint string `yaml:"checkpoint"`  // rate-control state after the run
	ResumeFrom string `yaml:"resume_from"` // checkpoint to continue from

	// Selected preset (optional)
	BrcPreset *Preset `yaml:"preset"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	rc := ratecontrol.DefaultParams()
	return &Config{
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		Profile:         capability.Default.Name,
		Mode:            rc.Mode,
		TargetBitrate:   DefaultTargetBitrate,
		MaxBitrate:      DefaultTargetBitrate,
		BufferSize:      DefaultTargetBitrate,
		FrameRateNum:    DefaultFrameRate,
		FrameRateDen:    1,
		GOP:             ratecontrol.GOP{PicSize: DefaultGOPSize, RefDist: 1},
		ICQQuality:      rc.ICQQuality,
		QPI:             rc.QPI,
		QPP:             rc.QPP,
		QPB:             rc.QPB,
		CQP:             rc.CQP,
		PassCount:       rc.PassCount,
		Slices:          DefaultSlices,
		RegionsPerSlice: DefaultRegionsPerSlice,
		Frames:          DefaultFrames,
		Seed:            DefaultSeed,
		FeedbackTimeout: DefaultFeedbackTimeout,
	}
}

// ApplyPreset applies the given preset to the config.
func (c *Config) ApplyPreset(p Preset) {
	values := GetPresetValues(p)
	c.BrcPreset = &p
	c.Mode = values.Mode
	c.BufferSize = c.TargetBitrate * values.BufferMillis / 1000
	c.MaxBitrate = c.TargetBitrate
	if values.MaxBitrateX > 0 {
		c.MaxBitrate = c.TargetBitrate * values.MaxBitrateX
	}
	c.GOP = values.GOP
	c.LowDelay = values.LowDelay
	c.Tolerance = values.Tolerance.String()
	c.ParallelBRC = values.ParallelBRC
	c.PanicMode = values.PanicMode
	c.RegionControl = values.RegionControl
}

// ProfileSpec returns the selected capability profile.
func (c *Config) ProfileSpec() (capability.Profile, error) {
	if c.Profile == "" {
		return capability.Default, nil
	}
	return capability.Lookup(c.Profile)
}

// WalkPattern returns the configured walk, or the profile's preferred one.
func (c *Config) WalkPattern() (partition.Walk, error) {
	if c.Walk == "" {
		p, err := c.ProfileSpec()
		if err != nil {
			return 0, err
		}
		return p.PreferredWalk(), nil
	}
	return partition.ParseWalk(c.Walk)
}

// RateControl converts the rate-control fields.
func (c *Config) RateControl() (ratecontrol.Params, error) {
	tol, err := ratecontrol.ParseTolerance(c.Tolerance)
	if err != nil {
		return ratecontrol.Params{}, err
	}
	return ratecontrol.Params{
		Mode:            c.Mode,
		TargetBitrate:   c.TargetBitrate,
		MaxBitrate:      c.MaxBitrate,
		FrameRateNum:    c.FrameRateNum,
		FrameRateDen:    c.FrameRateDen,
		BufferSize:      c.BufferSize,
		InitialFullness: c.InitialFullness,
		FrameWidth:      c.Width,
		FrameHeight:     c.Height,
		GOP:             c.GOP,
		LowDelay:        c.LowDelay,
		Tolerance:       tol,
		ICQQuality:      c.ICQQuality,
		QPI:             c.QPI,
		QPP:             c.QPP,
		QPB:             c.QPB,
		CQP:             c.CQP,
		RegionControl:   c.RegionControl,
		PanicMode:       c.PanicMode,
		ParallelBRC:     c.ParallelBRC,
		PassCount:       c.PassCount,
	}, nil
}

// StreamParams builds the session parameters.
func (c *Config) StreamParams() (orchestrator.StreamParams, error) {
	rc, err := c.RateControl()
	if err != nil {
		return orchestrator.StreamParams{}, fmt.Errorf("%w: %w", ErrInvalidRateControl, err)
	}
	walk, err := c.WalkPattern()
	if err != nil {
		return orchestrator.StreamParams{}, fmt.Errorf("%w: %w", ErrInvalidStream, err)
	}
	return orchestrator.StreamParams{
		RateControl:     rc,
		RegionsPerSlice: c.RegionsPerSlice,
		Walk:            walk,
		SmoothROI:       c.SmoothROI,
	}, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, c.Width, c.Height)
	}

	if c.Frames <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidFrames, c.Frames)
	}

	if c.Slices < 1 || c.Slices > MaxSlices {
		return fmt.Errorf("%w: must be 1-%d, got %d", ErrInvalidSlices, MaxSlices, c.Slices)
	}

	if c.RegionsPerSlice < partition.MinRegionsPerSlice || c.RegionsPerSlice > partition.MaxRegionsPerSlice {
		return fmt.Errorf("%w: regions per slice must be %d-%d, got %d", ErrInvalidStream,
			partition.MinRegionsPerSlice, partition.MaxRegionsPerSlice, c.RegionsPerSlice)
	}

	profile, err := c.ProfileSpec()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStream, err)
	}

	sp, err := c.StreamParams()
	if err != nil {
		return err
	}
	if err := profile.Check(capability.Request{
		Walk:          sp.Walk,
		ParallelBRC:   sp.RateControl.ParallelBRC,
		RegionControl: sp.RateControl.RegionControl,
		Slices:        c.Slices,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStream, err)
	}

	if err := sp.RateControl.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRateControl, err)
	}
	return nil
}

// LoadFile reads a YAML config over the defaults. A preset named in the
// file is applied first; the file's other fields override it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, brcerrors.NewIOError("read config", err)
	}
	return Parse(data)
}

// Parse decodes YAML config over the defaults.
func Parse(data []byte) (*Config, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, brcerrors.NewSerializationError("parse config", err)
	}

	cfg := NewConfig()
	if head.Preset != "" {
		p, err := ParsePreset(head.Preset)
		if err != nil {
			return nil, brcerrors.NewConfigError("invalid config", err)
		}
		cfg.ApplyPreset(p)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, brcerrors.NewSerializationError("parse config", err)
	}
	if head.Preset != "" {
		p, _ := ParsePreset(head.Preset)
		cfg.BrcPreset = &p
	}
	return cfg, nil
}
