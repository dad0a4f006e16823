package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/five82/brcplan/internal/orchestrator"
	"github.com/five82/brcplan/internal/reporter"
	"github.com/five82/brcplan/internal/util"
)

func newPlanCmd() *cobra.Command {
	var a runArgs
	var frame int
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan frames up to one frame and print its decision and regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if frame < 0 {
				return fmt.Errorf("invalid frame %d: must not be negative", frame)
			}
			cfg, err := buildConfig(cmd, &a)
			if err != nil {
				return err
			}
			cfg.Frames = frame + 1

			var rep reporter.Reporter = reporter.NullReporter{}
			if a.verbose {
				rep = reporter.NewTerminalReporterWithWriters(cmd.ErrOrStderr(), cmd.ErrOrStderr(), true)
			}
			out, err := execute(cfg, &a, rep)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), out.Last)
			for _, p := range out.Artifacts {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", p)
			}
			return nil
		},
	}
	addRunFlags(cmd, &a)
	cmd.Flags().IntVar(&frame, "frame", 0, "Index of the frame to show within the run")
	return cmd
}

// printPlan writes a frame's rate decision and region table.
func printPlan(w io.Writer, p *orchestrator.FramePlan) {
	if p == nil {
		return
	}
	head := color.New(color.Bold)
	d := p.Decision

	head.Fprintf(w, "Frame %d (%s, level %s)\n", p.Frame.FrameNumber, p.Frame.Type, d.Level)
	fmt.Fprintf(w, "  Session     %s\n", p.SessionID)
	fmt.Fprintf(w, "  QP          %d (base %.1f, deviation %.1f%% -> %+d, global %+d)\n",
		d.QP, d.BaseQP, d.Deviation, d.DeviationDelta, d.GlobalDelta)
	fmt.Fprintf(w, "  QP range    %d-%d, %d pass(es)\n", d.MinQP, d.MaxQP, d.PassCount)
	if d.TargetSize > 0 {
		wrap := ""
		if d.TargetSizeFlag {
			wrap = " (wrapped)"
		}
		fmt.Fprintf(w, "  Target      %s%s\n", util.FormatBits(d.TargetSize), wrap)
	}
	if d.Panic {
		color.New(color.FgRed).Fprintln(w, "  Panic       buffer underflow, QP forced to maximum")
	}
	if p.Regions != nil {
		fmt.Fprintf(w, "  ROI ratio   %d (background %+d QP)\n", p.Regions.ROIRatio, p.Regions.Background)
	}

	part := p.Partition
	if part == nil {
		return
	}
	fmt.Fprintf(w, "  Partition   %dx%d LCUs, %s walk, %d span(s), %d region(s), %d waves\n",
		part.WidthLCU, part.HeightLCU, part.Walk, len(part.Spans), part.NumRegions, part.TotalWaves)
	if part.Arbitrary {
		fmt.Fprintln(w, "  Slices      unaligned, single span")
	}

	fmt.Fprintln(w)
	head.Fprintln(w, "Regions")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tspan\tcols\trows\tLCUs\toffset")
	for i, r := range part.Regions {
		fmt.Fprintf(tw, "  %d\t%d\t%d-%d\t%d-%d\t%d\t%d\n",
			i, r.Span, r.StartCol, r.EndCol, r.StartRow, r.EndRow, r.LCUs(), r.DiagonalOffset)
	}
	_ = tw.Flush()
}
