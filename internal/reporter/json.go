package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/five82/brcplan/internal/util"
)

// JSONReporter outputs NDJSON events, one object per line.
type JSONReporter struct {
	writer             io.Writer
	mu                 sync.Mutex
	lastProgressBucket int
	lastProgressTime   time.Time
	now                func() time.Time
}

// NewJSONReporter creates a new JSON reporter that writes to stdout.
func NewJSONReporter() *JSONReporter {
	return NewJSONReporterWithWriter(os.Stdout)
}

// NewJSONReporterWithWriter creates a JSON reporter with a custom writer.
func NewJSONReporterWithWriter(w io.Writer) *JSONReporter {
	return &JSONReporter{
		writer:             w,
		lastProgressBucket: -1,
		now:                time.Now,
	}
}

func (r *JSONReporter) timestamp() int64 {
	return r.now().Unix()
}

func (r *JSONReporter) write(v map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(r.writer, string(data))
}

func (r *JSONReporter) Hardware(summary HardwareSummary) {
	r.write(map[string]any{
		"type":      "hardware",
		"host":      summary.Host,
		"workers":   summary.Workers,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) SessionConfig(summary SessionSummary) {
	r.write(map[string]any{
		"type":              "session_config",
		"session_id":        summary.SessionID,
		"profile":           summary.Profile,
		"preset":            summary.Preset,
		"resolution":        summary.Resolution,
		"lcu_grid":          summary.LCUGrid,
		"mode":              summary.Mode,
		"target_bitrate":    summary.TargetBitrate,
		"max_bitrate":       summary.MaxBitrate,
		"buffer_size":       summary.BufferSize,
		"walk":              summary.Walk,
		"slices":            summary.Slices,
		"regions_per_slice": summary.RegionsPerSlice,
		"rois":              summary.ROIs,
		"frames":            summary.Frames,
		"timestamp":         r.timestamp(),
	})
}

func (r *JSONReporter) SimulationStarted(totalFrames int64) {
	r.mu.Lock()
	r.lastProgressBucket = -1
	r.lastProgressTime = time.Time{}
	r.mu.Unlock()

	r.write(map[string]any{
		"type":         "simulation_started",
		"total_frames": totalFrames,
		"timestamp":    r.timestamp(),
	})
}

// FrameProgress emits at most one event per percent, plus one every few
// seconds and the final frames.
func (r *JSONReporter) FrameProgress(snapshot FrameSnapshot) {
	const minInterval = 5 * time.Second

	bucket := int(snapshot.Percent)
	now := r.now()

	r.mu.Lock()
	intervalElapsed := r.lastProgressTime.IsZero() || now.Sub(r.lastProgressTime) >= minInterval
	shouldEmit := bucket > r.lastProgressBucket || intervalElapsed || snapshot.Percent >= 99.0

	if !shouldEmit {
		r.mu.Unlock()
		return
	}

	if bucket > r.lastProgressBucket {
		r.lastProgressBucket = bucket
	}
	r.lastProgressTime = now
	r.mu.Unlock()

	r.write(map[string]any{
		"type":            "frame_progress",
		"frame":           snapshot.Frame,
		"total_frames":    snapshot.TotalFrames,
		"frame_type":      snapshot.Type,
		"qp":              snapshot.QP,
		"target_size":     snapshot.TargetSize,
		"buffer_fullness": snapshot.BufferFullness,
		"regions":         snapshot.Regions,
		"panic":           snapshot.Panic,
		"percent":         snapshot.Percent,
		"fps":             snapshot.FPS,
		"eta_seconds":     int64(snapshot.ETA.Seconds()),
		"timestamp":       r.timestamp(),
	})
}

func (r *JSONReporter) SimulationComplete(summary SimulationOutcome) {
	r.write(map[string]any{
		"type":              "simulation_complete",
		"session_id":        summary.SessionID,
		"frames":            summary.Frames,
		"target_bits":       summary.TargetBits,
		"actual_bits":       summary.ActualBits,
		"deviation_percent": util.RateDeviation(summary.TargetBits, summary.ActualBits),
		"average_qp":        summary.AverageQP,
		"underflows":        summary.Underflows,
		"overflows":         summary.Overflows,
		"max_parallel":      summary.MaxParallel,
		"violations":        summary.Violations,
		"duration_seconds":  int64(summary.TotalTime.Seconds()),
		"artifacts":         summary.Artifacts,
		"timestamp":         r.timestamp(),
	})
}

func (r *JSONReporter) Warning(message string) {
	r.write(map[string]any{
		"type":      "warning",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Error(err ReporterError) {
	r.write(map[string]any{
		"type":       "error",
		"title":      err.Title,
		"message":    err.Message,
		"context":    err.Context,
		"suggestion": err.Suggestion,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) OperationComplete(message string) {
	r.write(map[string]any{
		"type":      "operation_complete",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Verbose(message string) {
	r.write(map[string]any{
		"type":      "verbose",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}
