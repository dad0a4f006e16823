package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/brcplan/internal/config"
	"github.com/five82/brcplan/internal/ratecontrol"
	"github.com/five82/brcplan/internal/util"
)

// runArgs holds the flags shared by simulate and plan.
type runArgs struct {
	configPath string
	preset     string
	profile    string

	width, height int
	log2LCU       int
	mode          string
	bitrate       int64
	maxBitrate    int64
	buffer        int64
	fps           string
	gopSize       int
	refDist       int
	hierarchical  bool
	lowDelay      bool
	parallelBRC   bool
	regionControl bool
	panicMode     bool
	rois          []string
	smoothROI     bool

	slices  int
	regions int
	walk    string

	frames          int
	seed            uint64
	workers         int
	complexity      float64
	feedbackTimeout time.Duration

	outDir     string
	dump       string
	render     string
	checkpoint string
	resume     string

	logDir  string
	noLog   bool
	verbose bool
	format  string
}

func addRunFlags(cmd *cobra.Command, a *runArgs) {
	fs := cmd.Flags()
	fs.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&a.preset, "preset", "", "Preset (lowdelay, broadcast, archive)")
	fs.StringVar(&a.profile, "profile", "", "Capability profile (see 'brcplan profiles')")

	// Stream
	fs.IntVar(&a.width, "width", config.DefaultWidth, "Frame width in pixels")
	fs.IntVar(&a.height, "height", config.DefaultHeight, "Frame height in pixels")
	fs.IntVar(&a.log2LCU, "log2-lcu", 0, "Log2 of the LCU size (0 uses the profile)")
	fs.StringVar(&a.mode, "mode", "", "Rate control mode (cbr, vbr, avbr, icq, vcm, cqp, qvbr)")
	fs.Int64Var(&a.bitrate, "bitrate", config.DefaultTargetBitrate, "Target bitrate in bits per second")
	fs.Int64Var(&a.maxBitrate, "max-bitrate", 0, "Maximum bitrate in bits per second")
	fs.Int64Var(&a.buffer, "buffer", 0, "HRD buffer size in bits")
	fs.StringVar(&a.fps, "fps", "30", "Frame rate (N or N/D)")
	fs.IntVar(&a.gopSize, "gop", config.DefaultGOPSize, "Frames per GOP")
	fs.IntVar(&a.refDist, "ref-dist", 1, "Distance between anchor frames")
	fs.BoolVar(&a.hierarchical, "hierarchical", false, "Use a B pyramid")
	fs.BoolVar(&a.lowDelay, "low-delay", false, "Low-delay B coding")
	fs.BoolVar(&a.parallelBRC, "parallel-brc", false, "Plan ahead of frame feedback")
	fs.BoolVar(&a.regionControl, "region-control", false, "Per-region rate control")
	fs.BoolVar(&a.panicMode, "panic", false, "Force maximum QP on buffer underflow")
	fs.StringArrayVar(&a.rois, "roi", nil, "Region of interest in LCUs: left,top,right,bottom,dqp (repeatable)")
	fs.BoolVar(&a.smoothROI, "smooth-roi", false, "Weight the rings around each ROI")

	// Partitioning
	fs.IntVar(&a.slices, "slices", config.DefaultSlices, "Slices per frame")
	fs.IntVar(&a.regions, "regions", config.DefaultRegionsPerSlice, "Wavefront regions per slice")
	fs.StringVar(&a.walk, "walk", "", "Wavefront walk (diagonal, zigzag; default from profile)")

	// Simulation
	fs.IntVar(&a.frames, "frames", config.DefaultFrames, "Frames to plan")
	fs.Uint64Var(&a.seed, "seed", config.DefaultSeed, "Synthetic content seed")
	fs.IntVar(&a.workers, "workers", 0, "Dispatcher workers (0 = one per CPU)")
	fs.Float64Var(&a.complexity, "complexity", 0, "Content complexity scale")
	fs.DurationVar(&a.feedbackTimeout, "feedback-timeout", config.DefaultFeedbackTimeout, "Wait for frame statistics")

	// Outputs
	fs.StringVarP(&a.outDir, "output", "o", "", "Directory for the default dump, render and checkpoint")
	fs.StringVar(&a.dump, "dump", "", "Write a zstd plan dump")
	fs.StringVar(&a.render, "render", "", "Render the last frame's regions to PNG")
	fs.StringVar(&a.checkpoint, "checkpoint", "", "Save rate-control state after the run")
	fs.StringVar(&a.resume, "resume", "", "Resume from a checkpoint")

	fs.StringVarP(&a.logDir, "log-dir", "l", "", "Log directory (defaults to OUTPUT/logs)")
	fs.BoolVar(&a.noLog, "no-log", false, "Disable log file creation")
	fs.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	fs.StringVar(&a.format, "format", "auto", "Output format (auto, terminal, json)")
}

// buildConfig layers the config file, the preset and explicitly set flags.
// A new bitrate scales the peak rate and buffer with it.
func buildConfig(cmd *cobra.Command, a *runArgs) (*config.Config, error) {
	cfg := config.NewConfig()
	if a.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(a.configPath); err != nil {
			return nil, err
		}
	}
	set := cmd.Flags().Changed

	if set("preset") {
		p, err := config.ParsePreset(a.preset)
		if err != nil {
			return nil, err
		}
		cfg.ApplyPreset(p)
	}
	if set("bitrate") {
		if cfg.TargetBitrate > 0 {
			cfg.MaxBitrate = cfg.MaxBitrate * a.bitrate / cfg.TargetBitrate
			cfg.BufferSize = cfg.BufferSize * a.bitrate / cfg.TargetBitrate
		}
		cfg.TargetBitrate = a.bitrate
	}

	if set("profile") {
		cfg.Profile = a.profile
	}
	if set("width") {
		cfg.Width = a.width
	}
	if set("height") {
		cfg.Height = a.height
	}
	if set("log2-lcu") {
		cfg.Log2LCU = a.log2LCU
	}
	if set("mode") {
		m, err := ratecontrol.ParseMode(a.mode)
		if err != nil {
			return nil, err
		}
		cfg.Mode = m
	}
	if set("max-bitrate") {
		cfg.MaxBitrate = a.maxBitrate
	}
	if set("buffer") {
		cfg.BufferSize = a.buffer
	}
	if set("fps") {
		num, den, err := parseFrameRate(a.fps)
		if err != nil {
			return nil, err
		}
		cfg.FrameRateNum, cfg.FrameRateDen = num, den
	}
	if set("gop") {
		cfg.GOP.PicSize = a.gopSize
	}
	if set("ref-dist") {
		cfg.GOP.RefDist = a.refDist
	}
	if set("hierarchical") {
		cfg.GOP.Hierarchical = a.hierarchical
	}
	if set("low-delay") {
		cfg.LowDelay = a.lowDelay
	}
	if set("parallel-brc") {
		cfg.ParallelBRC = a.parallelBRC
	}
	if set("region-control") {
		cfg.RegionControl = a.regionControl
	}
	if set("panic") {
		cfg.PanicMode = a.panicMode
	}
	if set("roi") {
		cfg.ROIs = cfg.ROIs[:0]
		for _, s := range a.rois {
			r, err := parseROI(s)
			if err != nil {
				return nil, err
			}
			cfg.ROIs = append(cfg.ROIs, r)
		}
	}
	if set("smooth-roi") {
		cfg.SmoothROI = a.smoothROI
	}
	if set("slices") {
		cfg.Slices = a.slices
	}
	if set("regions") {
		cfg.RegionsPerSlice = a.regions
	}
	if set("walk") {
		cfg.Walk = a.walk
	}
	if set("frames") {
		cfg.Frames = a.frames
	}
	if set("seed") {
		cfg.Seed = a.seed
	}
	if set("workers") {
		cfg.Workers = a.workers
	}
	if set("complexity") {
		cfg.Complexity = a.complexity
	}
	if set("feedback-timeout") {
		cfg.FeedbackTimeout = a.feedbackTimeout
	}

	if err := applyOutputs(cfg, a); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOutputs resolves artifact paths. Explicit paths win over the
// defaults derived from the output directory.
func applyOutputs(cfg *config.Config, a *runArgs) error {
	if a.outDir != "" {
		dir, err := filepath.Abs(a.outDir)
		if err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
		if err := util.EnsureDirectoryWritable(dir); err != nil {
			return err
		}
		cfg.PlanDump = util.ArtifactPath(dir, appName, "plan.ndjson.zst")
		cfg.RenderPNG = util.ArtifactPath(dir, appName, "png")
		cfg.Checkpoint = util.ArtifactPath(dir, appName, "state.yaml")
		if cfg.LogDir == "" {
			cfg.LogDir = filepath.Join(dir, "logs")
		}
	}
	if a.dump != "" {
		cfg.PlanDump = a.dump
	}
	if a.render != "" {
		cfg.RenderPNG = a.render
	}
	if a.checkpoint != "" {
		cfg.Checkpoint = a.checkpoint
	}
	if a.resume != "" {
		cfg.ResumeFrom = a.resume
	}
	if a.logDir != "" {
		cfg.LogDir = a.logDir
	}
	for _, p := range []string{cfg.PlanDump, cfg.RenderPNG, cfg.Checkpoint} {
		if p == "" {
			continue
		}
		if err := util.EnsureDirectory(filepath.Dir(p)); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return nil
}

// parseROI parses "left,top,right,bottom,dqp" in LCU units.
func parseROI(s string) (ratecontrol.ROI, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return ratecontrol.ROI{}, fmt.Errorf("invalid ROI %q: want left,top,right,bottom,dqp", s)
	}
	var v [5]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return ratecontrol.ROI{}, fmt.Errorf("invalid ROI %q: %w", s, err)
		}
		v[i] = n
	}
	return ratecontrol.ROI{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3], DeltaQP: v[4]}, nil
}

// parseFrameRate parses "N" or "N/D".
func parseFrameRate(s string) (num, den uint32, err error) {
	n, d, frac := strings.Cut(strings.TrimSpace(s), "/")
	if !frac {
		d = "1"
	}
	nv, err := strconv.ParseUint(n, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	dv, err := strconv.ParseUint(d, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if nv == 0 || dv == 0 {
		return 0, 0, fmt.Errorf("invalid frame rate %q: must be positive", s)
	}
	return uint32(nv), uint32(dv), nil
}
