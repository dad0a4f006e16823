package reporter

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/five82/brcplan/internal/util"
	"github.com/schollz/progressbar/v3"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu       sync.Mutex
	out      io.Writer
	errOut   io.Writer
	progress *progressbar.ProgressBar
	verbose  bool
	cyan     *color.Color
	green    *color.Color
	yellow   *color.Color
	red      *color.Color
	magenta  *color.Color
	bold     *color.Color
	faint    *color.Color
}

// NewTerminalReporter creates a terminal reporter on stdout and stderr.
func NewTerminalReporter(verbose bool) *TerminalReporter {
	return NewTerminalReporterWithWriters(os.Stdout, os.Stderr, verbose)
}

// NewTerminalReporterWithWriters creates a terminal reporter with custom
// writers. Progress bars and errors go to errOut.
func NewTerminalReporterWithWriters(out, errOut io.Writer, verbose bool) *TerminalReporter {
	return &TerminalReporter{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		faint:   color.New(color.Faint),
	}
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
}

func (r *TerminalReporter) heading(title string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, title)
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) Hardware(summary HardwareSummary) {
	r.heading("HARDWARE")
	r.printLabel(8, "Host:", summary.Host)
	r.printLabel(8, "Workers:", fmt.Sprintf("%d", summary.Workers))
}

func (r *TerminalReporter) SessionConfig(summary SessionSummary) {
	r.heading("SESSION")
	const w = 12
	r.printLabel(w, "Session:", summary.SessionID)
	r.printLabel(w, "Profile:", summary.Profile)
	if summary.Preset != "" {
		r.printLabel(w, "Preset:", summary.Preset)
	}
	r.printLabel(w, "Resolution:", fmt.Sprintf("%s (%s LCUs)", summary.Resolution, summary.LCUGrid))
	rate := util.FormatBitrate(summary.TargetBitrate)
	if summary.MaxBitrate > summary.TargetBitrate {
		rate += ", max " + util.FormatBitrate(summary.MaxBitrate)
	}
	r.printLabel(w, "Rate:", fmt.Sprintf("%s %s", summary.Mode, rate))
	r.printLabel(w, "Buffer:", util.FormatBits(summary.BufferSize))
	r.printLabel(w, "Partition:", fmt.Sprintf("%s walk, %d slices x %d regions",
		summary.Walk, summary.Slices, summary.RegionsPerSlice))
	if summary.ROIs > 0 {
		r.printLabel(w, "ROIs:", fmt.Sprintf("%d", summary.ROIs))
	}
	r.printLabel(w, "Frames:", fmt.Sprintf("%d", summary.Frames))
}

func (r *TerminalReporter) SimulationStarted(totalFrames int64) {
	r.finishProgress()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = progressbar.NewOptions64(
		totalFrames,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(r.errOut),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Planning [",
			BarEnd:        "]",
		}),
	)
}

func (r *TerminalReporter) FrameProgress(snapshot FrameSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}
	_ = r.progress.Set64(snapshot.Frame + 1)

	desc := fmt.Sprintf("frame %d %s QP %d, buffer %s, fps %.1f, eta %s",
		snapshot.Frame, snapshot.Type, snapshot.QP,
		util.FormatBits(int64(snapshot.BufferFullness)), snapshot.FPS,
		util.FormatDurationFromSecs(int64(snapshot.ETA.Seconds())))
	if snapshot.Panic {
		desc += " " + r.red.Sprint("PANIC")
	}
	r.progress.Describe(desc)
}

func (r *TerminalReporter) SimulationComplete(summary SimulationOutcome) {
	r.finishProgress()

	deviation := util.RateDeviation(summary.TargetBits, summary.ActualBits)

	r.heading("RESULTS")
	const w = 11
	r.printLabel(w, "Frames:", fmt.Sprintf("%d", summary.Frames))
	r.printLabel(w, "Bits:", fmt.Sprintf("%s of %s target",
		util.FormatBits(summary.ActualBits), util.FormatBits(summary.TargetBits)))

	dev := fmt.Sprintf("%+.1f%%", deviation)
	if deviation > 10 || deviation < -10 {
		dev = r.yellow.Sprint(dev)
	} else {
		dev = r.green.Sprint(dev)
	}
	r.printLabel(w, "Deviation:", dev)
	r.printLabel(w, "Average QP:", fmt.Sprintf("%.2f", summary.AverageQP))

	buffer := fmt.Sprintf("%d underflows, %d overflows", summary.Underflows, summary.Overflows)
	if summary.Underflows > 0 || summary.Overflows > 0 {
		buffer = r.yellow.Sprint(buffer)
	}
	r.printLabel(w, "Buffer:", buffer)

	sched := fmt.Sprintf("max %d LCUs in parallel", summary.MaxParallel)
	if summary.Violations > 0 {
		sched += ", " + r.red.Sprintf("%d scoreboard violations", summary.Violations)
	}
	r.printLabel(w, "Scheduler:", sched)
	r.printLabel(w, "Time:", util.FormatDurationFromSecs(int64(summary.TotalTime.Seconds())))

	for _, a := range summary.Artifacts {
		_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint("Saved to"), r.green.Sprint(a))
	}
}

func (r *TerminalReporter) Warning(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.yellow.Fprintf(r.out, "WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	_, _ = fmt.Fprintln(r.errOut)
	_, _ = r.red.Fprintf(r.errOut, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(r.errOut, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", color.New(color.FgGreen, color.Bold).Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.magenta.Sprint("›"), r.faint.Sprint(message))
}
