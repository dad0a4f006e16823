// Package processing runs planning sessions end to end: frames are planned
// by an orchestrator session, executed by the reference dispatcher and
// reported as they complete.
package processing

import (
	"context"
	"fmt"
	"math/bits"
	"os"
	"time"

	"github.com/five82/brcplan/internal/capability"
	"github.com/five82/brcplan/internal/config"
	"github.com/five82/brcplan/internal/dispatch"
	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/logging"
	"github.com/five82/brcplan/internal/orchestrator"
	"github.com/five82/brcplan/internal/plandump"
	"github.com/five82/brcplan/internal/ratecontrol"
	"github.com/five82/brcplan/internal/render"
	"github.com/five82/brcplan/internal/reporter"
	"github.com/five82/brcplan/internal/slicemap"
)

// Outcome is the result of one simulation run. Bit totals cover the frames
// of this run only, also when resuming from a checkpoint.
type Outcome struct {
	SessionID  string
	FirstFrame int64
	Frames     int64
	TargetBits int64
	ActualBits int64
	AverageQP  float64
	Session    orchestrator.Stats
	Dispatch   dispatch.Stats
	Duration   time.Duration
	Last       *orchestrator.FramePlan
	Artifacts  []string
}

// FrameTemplate returns the descriptor shared by every frame of cfg, with
// the LCU size resolved against the profile.
func FrameTemplate(cfg *config.Config, profile capability.Profile) orchestrator.FrameDescriptor {
	log2 := cfg.Log2LCU
	if log2 == 0 {
		log2 = bits.Len(uint(profile.LCUSize)) - 1
	}
	return orchestrator.FrameDescriptor{
		Width:   cfg.Width,
		Height:  cfg.Height,
		Log2LCU: log2,
	}
}

// Simulate plans cfg.Frames frames through the reference dispatcher.
func Simulate(ctx context.Context, cfg *config.Config, rep reporter.Reporter, log *logging.Logger) (out *Outcome, err error) {
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	if log == nil {
		log = logging.Global()
	}
	if err := cfg.Validate(); err != nil {
		return nil, brcerrors.NewConfigError("invalid configuration", err)
	}
	profile, err := cfg.ProfileSpec()
	if err != nil {
		return nil, brcerrors.NewConfigError("invalid configuration", err)
	}
	sp, err := cfg.StreamParams()
	if err != nil {
		return nil, brcerrors.NewConfigError("invalid configuration", err)
	}

	host := capability.Host()
	workers := cfg.Workers
	if workers <= 0 {
		workers = host.Workers()
	}
	rep.Hardware(reporter.HardwareSummary{Host: host.String(), Workers: workers})

	d := dispatch.New(
		dispatch.WithWorkers(workers),
		dispatch.WithSeed(cfg.Seed),
		dispatch.WithComplexity(cfg.Complexity),
		dispatch.WithLogger(log),
	)
	defer d.Close()

	var dump *plandump.Writer
	var dumpErr error
	if cfg.PlanDump != "" {
		if dump, err = plandump.Create(cfg.PlanDump); err != nil {
			return nil, err
		}
		defer func() {
			if dump != nil {
				_ = dump.Close()
			}
		}()
	}

	var qpSum float64
	var qpFrames int64
	observe := func(frame int64, st orchestrator.FrameStatistics) {
		qpSum += st.AverageQP
		qpFrames++
		if dump != nil && dumpErr == nil {
			dumpErr = dump.WriteStatistics(frame, st)
		}
	}

	sess, err := orchestrator.New(d,
		orchestrator.WithLogger(log),
		orchestrator.WithProfile(profile),
		orchestrator.WithFeedbackTimeout(cfg.FeedbackTimeout),
		orchestrator.WithFeedbackObserver(observe),
	)
	if err != nil {
		return nil, err
	}

	first := int64(0)
	if cfg.ResumeFrom != "" {
		st, err := readCheckpoint(cfg.ResumeFrom)
		if err != nil {
			return nil, err
		}
		if err := sess.Resume(sp, st); err != nil {
			return nil, err
		}
		first = st.FramesPlanned
		rep.Verbose(fmt.Sprintf("Resumed from %s at frame %d", cfg.ResumeFrom, first))
	} else if err := sess.ConfigureStream(sp); err != nil {
		return nil, err
	}
	start := sess.Stats()

	tmpl := FrameTemplate(cfg, profile)
	var slices []slicemap.Slice
	if cfg.Slices > 1 {
		slices = slicemap.Rows(tmpl.WidthLCU(), tmpl.HeightLCU(), cfg.Slices, sp.Walk.UnitRows())
	}

	frames := int64(cfg.Frames)
	rep.SessionConfig(reporter.SessionSummary{
		SessionID:       sess.ID(),
		Profile:         profile.Name,
		Preset:          presetName(cfg),
		Resolution:      fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		LCUGrid:         fmt.Sprintf("%dx%d", tmpl.WidthLCU(), tmpl.HeightLCU()),
		Mode:            sp.RateControl.Mode.String(),
		TargetBitrate:   float64(sp.RateControl.TargetBitrate),
		MaxBitrate:      float64(sp.RateControl.MaxBitrate),
		BufferSize:      sp.RateControl.BufferSize,
		Walk:            sp.Walk.String(),
		Slices:          max(1, len(slices)),
		RegionsPerSlice: sp.RegionsPerSlice,
		ROIs:            len(cfg.ROIs),
		Frames:          frames,
	})
	rep.SimulationStarted(frames)
	log.Info("simulation started", "session", sess.ID(), "frames", frames, "first_frame", first, "workers", workers)

	began := time.Now()
	var last *orchestrator.FramePlan
	for i := int64(0); i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := first + i
		desc := tmpl
		desc.FrameNumber = n
		desc.Type, desc.HierLevelPlus1 = cfg.GOP.FrameAt(n, cfg.LowDelay)

		plan, err := sess.PlanFrame(ctx, desc, slices, cfg.ROIs)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", n, err)
		}
		if dump != nil && dumpErr == nil {
			dumpErr = dump.WritePlan(plan)
		}
		last = plan

		rep.FrameProgress(snapshot(plan, sess.Stats(), i, frames, time.Since(began)))
	}

	if err := sess.Drain(ctx); err != nil {
		return nil, err
	}

	out = &Outcome{
		SessionID:  sess.ID(),
		FirstFrame: first,
		Frames:     frames,
		Last:       last,
		Dispatch:   d.Stats(),
	}

	if cfg.Checkpoint != "" {
		if err := writeCheckpoint(ctx, sess, cfg.Checkpoint); err != nil {
			return nil, err
		}
		out.Artifacts = append(out.Artifacts, cfg.Checkpoint)
	}
	if dump != nil {
		closeErr := dump.Close()
		records := dump.Count()
		dump = nil
		if dumpErr != nil {
			return nil, dumpErr
		}
		if closeErr != nil {
			return nil, closeErr
		}
		out.Artifacts = append(out.Artifacts, cfg.PlanDump)
		log.Debug("plan dump written", "path", cfg.PlanDump, "records", records)
	}
	if cfg.RenderPNG != "" && last != nil {
		img, err := render.Plan(last, render.Options{Labels: true, Weights: true})
		if err != nil {
			return nil, err
		}
		if err := img.SavePNG(cfg.RenderPNG); err != nil {
			return nil, err
		}
		out.Artifacts = append(out.Artifacts, cfg.RenderPNG)
	}

	end := sess.Stats()
	out.Session = end
	out.TargetBits = end.TargetBits - start.TargetBits
	out.ActualBits = end.ActualBits - start.ActualBits
	if qpFrames > 0 {
		out.AverageQP = qpSum / float64(qpFrames)
	}
	out.Duration = time.Since(began)

	if out.Dispatch.Violations > 0 {
		rep.Warning(fmt.Sprintf("%d scoreboard violations during execution", out.Dispatch.Violations))
	}
	rep.SimulationComplete(reporter.SimulationOutcome{
		SessionID:   out.SessionID,
		Frames:      out.Frames,
		TargetBits:  out.TargetBits,
		ActualBits:  out.ActualBits,
		AverageQP:   out.AverageQP,
		Underflows:  end.Underflows - start.Underflows,
		Overflows:   end.Overflows - start.Overflows,
		MaxParallel: int(out.Dispatch.MaxParallel),
		Violations:  int(out.Dispatch.Violations),
		TotalTime:   out.Duration,
		Artifacts:   out.Artifacts,
	})
	log.Info("simulation complete",
		"session", out.SessionID,
		"frames", out.Frames,
		"target_bits", out.TargetBits,
		"actual_bits", out.ActualBits,
		"average_qp", out.AverageQP,
		"duration", out.Duration)
	return out, nil
}

func snapshot(plan *orchestrator.FramePlan, st orchestrator.Stats, i, frames int64, elapsed time.Duration) reporter.FrameSnapshot {
	done := i + 1
	s := reporter.FrameSnapshot{
		Frame:          plan.Frame.FrameNumber,
		TotalFrames:    frames,
		Type:           plan.Frame.Type.String(),
		QP:             plan.Decision.QP,
		TargetSize:     plan.Decision.TargetSize,
		BufferFullness: st.BufferFullness,
		Regions:        plan.Partition.NumRegions,
		Panic:          plan.Decision.Panic,
		Percent:        float32(done) / float32(frames) * 100,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		fps := float64(done) / secs
		s.FPS = float32(fps)
		s.ETA = time.Duration(float64(frames-done) / fps * float64(time.Second))
	}
	return s
}

func presetName(cfg *config.Config) string {
	if cfg.BrcPreset == nil {
		return ""
	}
	return cfg.BrcPreset.String()
}

func readCheckpoint(path string) (ratecontrol.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return ratecontrol.State{}, brcerrors.NewIOError("open checkpoint", err)
	}
	defer func() { _ = f.Close() }()
	return ratecontrol.ReadState(f)
}

func writeCheckpoint(ctx context.Context, sess *orchestrator.Session, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return brcerrors.NewIOError("create checkpoint", err)
	}
	if err := sess.Checkpoint(ctx, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return brcerrors.NewIOError("close checkpoint", err)
	}
	return nil
}
