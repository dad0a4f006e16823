// Package reporter provides progress reporting interfaces and implementations.
package reporter

import "time"

// HardwareSummary describes the machine running the reference dispatcher.
type HardwareSummary struct {
	Host    string
	Workers int
}

// SessionSummary describes a configured planning session.
type SessionSummary struct {
	SessionID       string
	Profile         string
	Preset          string
	Resolution      string
	LCUGrid         string
	Mode            string
	TargetBitrate   float64
	MaxBitrate      float64
	BufferSize      int64
	Walk            string
	Slices          int
	RegionsPerSlice int
	ROIs            int
	Frames          int64
}

// FrameSnapshot is the state after one frame has been planned.
type FrameSnapshot struct {
	Frame          int64
	TotalFrames    int64
	Type           string
	QP             int
	TargetSize     int64
	BufferFullness float64
	Regions        int
	Panic          bool
	Percent        float32
	FPS            float32
	ETA            time.Duration
}

// SimulationOutcome summarizes a finished simulation.
type SimulationOutcome struct {
	SessionID   string
	Frames      int64
	TargetBits  int64
	ActualBits  int64
	AverageQP   float64
	Underflows  int
	Overflows   int
	MaxParallel int
	Violations  int
	TotalTime   time.Duration
	Artifacts   []string
}

// ReporterError carries a user-facing error.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}
