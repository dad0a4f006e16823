package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/five82/brcplan/internal/plandump"
	"github.com/five82/brcplan/internal/util"
)

func newInspectCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "inspect <dump>",
		Short: "Summarize a plan dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := plandump.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			records, err := r.ReadAll()
			if err != nil {
				return err
			}
			rows := joinRecords(records)
			printSummary(cmd.OutOrStdout(), rows)
			if all {
				fmt.Fprintln(cmd.OutOrStdout())
				printFrames(cmd.OutOrStdout(), rows)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Print every frame")
	return cmd
}

// frameRow pairs a frame's plan with the statistics reported for it.
type frameRow struct {
	plan     plandump.Record
	stats    plandump.Record
	hasStats bool
}

// joinRecords matches statistics to plans by frame number, in frame order.
// Statistics without a plan are dropped.
func joinRecords(records []plandump.Record) []frameRow {
	byFrame := make(map[int64]*frameRow)
	var order []int64
	for _, rec := range records {
		switch rec.Kind {
		case plandump.KindPlan:
			if _, ok := byFrame[rec.Frame]; !ok {
				order = append(order, rec.Frame)
				byFrame[rec.Frame] = &frameRow{}
			}
			byFrame[rec.Frame].plan = rec
		case plandump.KindStatistics:
			if row, ok := byFrame[rec.Frame]; ok {
				row.stats = rec
				row.hasStats = true
			}
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	rows := make([]frameRow, len(order))
	for i, f := range order {
		rows[i] = *byFrame[f]
	}
	return rows
}

// dumpSummary holds the totals of a dump.
type dumpSummary struct {
	Frames     int
	Reported   int
	FirstFrame int64
	LastFrame  int64
	TargetBits int64
	ActualBits int64
	AverageQP  float64
	Panics     int
	ByType     map[string]int
}

func summarize(rows []frameRow) dumpSummary {
	s := dumpSummary{Frames: len(rows), ByType: make(map[string]int)}
	if len(rows) == 0 {
		return s
	}
	s.FirstFrame = rows[0].plan.Frame
	s.LastFrame = rows[len(rows)-1].plan.Frame
	var qp float64
	for _, r := range rows {
		s.ByType[r.plan.Type]++
		if r.plan.Panic {
			s.Panics++
		}
		if !r.hasStats {
			continue
		}
		s.Reported++
		s.TargetBits += r.plan.TargetSize
		s.ActualBits += r.stats.Bits
		qp += r.stats.AverageQP
	}
	if s.Reported > 0 {
		s.AverageQP = qp / float64(s.Reported)
	}
	return s
}

func printSummary(w io.Writer, rows []frameRow) {
	s := summarize(rows)
	if s.Frames == 0 {
		fmt.Fprintln(w, "No frames in dump")
		return
	}
	fmt.Fprintf(w, "Frames      %d-%d (%d planned, %d reported)\n", s.FirstFrame, s.LastFrame, s.Frames, s.Reported)
	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	fmt.Fprint(w, "Types      ")
	for _, t := range types {
		fmt.Fprintf(w, " %s=%d", t, s.ByType[t])
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Bits        %s of %s target (%+.1f%%)\n",
		util.FormatBits(s.ActualBits), util.FormatBits(s.TargetBits), util.RateDeviation(s.TargetBits, s.ActualBits))
	fmt.Fprintf(w, "Average QP  %.2f\n", s.AverageQP)
	if s.Panics > 0 {
		fmt.Fprintf(w, "Panic       %d frames\n", s.Panics)
	}
}

func printFrames(w io.Writer, rows []frameRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "frame\ttype\tlevel\tqp\ttarget\tbits\tavg qp\tregions")
	for _, r := range rows {
		bits, avg := "-", "-"
		if r.hasStats {
			bits = util.FormatBits(r.stats.Bits)
			avg = fmt.Sprintf("%.1f", r.stats.AverageQP)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%d\n",
			r.plan.Frame, r.plan.Type, r.plan.Level, r.plan.QP,
			util.FormatBits(r.plan.TargetSize), bits, avg, r.plan.Regions)
	}
	_ = tw.Flush()
}
