package ratecontrol

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	brcerrors "github.com/five82/brcplan/internal/errors"
)

// StateVersion is the checkpoint format version.
const StateVersion = 1

// State is the frame-to-frame controller state. It is the minimal set
// needed to resume a stream across process restarts.
type State struct {
	Version int  `yaml:"version"`
	Mode    Mode `yaml:"mode"`

	BufferSize   int64   `yaml:"buffer_size"`
	BitsPerFrame float64 `yaml:"bits_per_frame"`

	// BufferFullness models the decoder buffer: it fills by BitsPerFrame per
	// frame and drains by the bits each frame actually produced.
	BufferFullness float64 `yaml:"buffer_fullness"`

	// TargetAccumulator is the sawtooth target buffer fullness.
	TargetAccumulator float64 `yaml:"target_accumulator"`

	SkippedFrames int64 `yaml:"skipped_frames"`
	SkippedSize   int64 `yaml:"skipped_size"`

	LevelFrames []int64   `yaml:"level_frames"`
	Complexity  []float64 `yaml:"complexity"` // bits x qstep per level, 0 until observed

	FramesPlanned   int64 `yaml:"frames_planned"`
	FeedbackApplied int64 `yaml:"feedback_applied"`
	TargetBits      int64 `yaml:"target_bits"`
	ActualBits      int64 `yaml:"actual_bits"`

	Underflows int `yaml:"underflows"`
	Overflows  int `yaml:"overflows"`
}

func newState(s Setup) State {
	return State{
		Version:           StateVersion,
		Mode:              s.Mode,
		BufferSize:        s.BufferSize,
		BitsPerFrame:      s.BitsPerFrame,
		BufferFullness:    float64(s.InitialFullness),
		TargetAccumulator: float64(s.InitialFullness),
		LevelFrames:       make([]int64, NumLevels),
		Complexity:        make([]float64, NumLevels),
	}
}

// clone returns a deep copy.
func (s State) clone() State {
	s.LevelFrames = append([]int64(nil), s.LevelFrames...)
	s.Complexity = append([]float64(nil), s.Complexity...)
	return s
}

func (s State) validate() error {
	if s.Version != StateVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrCheckpoint, s.Version, StateVersion)
	}
	if len(s.LevelFrames) != int(NumLevels) || len(s.Complexity) != int(NumLevels) {
		return fmt.Errorf("%w: per-level arrays have %d and %d entries, want %d",
			ErrCheckpoint, len(s.LevelFrames), len(s.Complexity), NumLevels)
	}
	if s.FeedbackApplied > s.FramesPlanned {
		return fmt.Errorf("%w: %d feedback records for %d frames", ErrCheckpoint, s.FeedbackApplied, s.FramesPlanned)
	}
	return nil
}

// WriteState encodes a state as YAML.
func WriteState(w io.Writer, s State) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return brcerrors.NewSerializationError("failed to encode rate control state", err)
	}
	if err := enc.Close(); err != nil {
		return brcerrors.NewSerializationError("failed to flush rate control state", err)
	}
	return nil
}

// ReadState decodes a YAML state and checks its shape.
func ReadState(r io.Reader) (State, error) {
	var s State
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return State{}, brcerrors.NewSerializationError("failed to decode rate control state", err)
	}
	if err := s.validate(); err != nil {
		return State{}, brcerrors.NewSerializationError("invalid rate control state", err)
	}
	return s, nil
}

// Checkpoint writes the controller state as YAML.
func (c *Controller) Checkpoint(w io.Writer) error {
	return WriteState(w, c.State())
}
