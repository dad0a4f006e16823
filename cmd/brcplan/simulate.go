package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/brcplan/internal/config"
	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/logging"
	"github.com/five82/brcplan/internal/processing"
	"github.com/five82/brcplan/internal/reporter"
)

func newSimulateCmd() *cobra.Command {
	var a runArgs
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Plan a stream of frames through the reference dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd, &a)
			if err != nil {
				return err
			}
			format, err := reporter.ParseFormat(a.format)
			if err != nil {
				return err
			}
			rep := reporter.New(format, a.verbose)
			out, err := execute(cfg, &a, rep)
			if err != nil {
				return err
			}
			rep.OperationComplete(fmt.Sprintf("Planned %d frames from frame %d", out.Frames, out.FirstFrame))
			return nil
		},
	}
	addRunFlags(cmd, &a)
	return cmd
}

// execute runs one simulation with file logging and signal handling.
func execute(cfg *config.Config, a *runArgs, rep reporter.Reporter) (*processing.Outcome, error) {
	runLog, err := logging.Setup(cfg.LogDir, a.verbose, a.noLog || cfg.LogDir == "")
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	defer func() { _ = runLog.Close() }()

	level := logging.LevelInfo
	if a.verbose {
		level = logging.LevelDebug
	}
	log := logging.New(logging.Config{
		Level:   level,
		Output:  runLog.Writer(),
		Enabled: runLog != nil,
	})
	logging.SetGlobal(log)

	runLog.Info("brcplan %s", appVersion)
	runLog.Info("Stream: %dx%d %s %d bps, GOP %d/%d", cfg.Width, cfg.Height, cfg.Mode, cfg.TargetBitrate, cfg.GOP.PicSize, cfg.GOP.RefDist)
	runLog.Info("Partitioning: %d slices x %d regions, walk %q", cfg.Slices, cfg.RegionsPerSlice, cfg.Walk)
	if cfg.BrcPreset != nil {
		runLog.Info("Preset: %s", *cfg.BrcPreset)
	}
	if cfg.ResumeFrom != "" {
		runLog.Info("Resuming from %s", cfg.ResumeFrom)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := processing.Simulate(ctx, cfg, rep, log)
	if err != nil {
		runLog.Error("Simulation failed: %v", err)
		rep.Error(reporter.ReporterError{
			Title:      "Simulation failed",
			Message:    err.Error(),
			Context:    logContext(runLog),
			Suggestion: suggestion(err),
		})
		return nil, fmt.Errorf("%w: %w", errReported, err)
	}
	runLog.Info("Planned %d frames in %s", out.Frames, out.Duration)
	return out, nil
}

func logContext(l *logging.RunLog) string {
	if p := l.FilePath(); p != "" {
		return "Log: " + p
	}
	return ""
}

func suggestion(err error) string {
	switch {
	case brcerrors.IsKind(err, brcerrors.KindConfig):
		return "Check the stream parameters against 'brcplan profiles'"
	case brcerrors.IsKind(err, brcerrors.KindResource):
		return "Raise --feedback-timeout or lower --workers"
	case brcerrors.IsKind(err, brcerrors.KindState):
		return "Start a new session or resume from an earlier checkpoint"
	case brcerrors.IsKind(err, brcerrors.KindIO):
		return "Check that the output paths exist and are writable"
	}
	return ""
}
