package ratecontrol

import "errors"

// Sentinel errors for rate control.
var (
	// ErrInvalidMode indicates an unknown rate-control mode.
	ErrInvalidMode = errors.New("invalid rate control mode")

	// ErrInvalidTolerance indicates an unknown frame size tolerance.
	ErrInvalidTolerance = errors.New("invalid frame size tolerance")

	// ErrParams indicates a negative count or interval.
	ErrParams = errors.New("invalid rate control parameter")

	// ErrFrameRate indicates a zero frame rate numerator or denominator.
	ErrFrameRate = errors.New("invalid frame rate")

	// ErrBitrate indicates a missing or negative bitrate for a bitrate mode.
	ErrBitrate = errors.New("invalid bitrate")

	// ErrBufferSize indicates a zero VBV buffer for CBR, VBR or AVBR.
	ErrBufferSize = errors.New("invalid VBV buffer size")

	// ErrInitialFullness indicates a negative initial buffer fullness.
	ErrInitialFullness = errors.New("invalid initial buffer fullness")

	// ErrQPRange indicates QP bounds outside [0,51] or inverted.
	ErrQPRange = errors.New("invalid QP range")

	// ErrQuality indicates an ICQ/QVBR quality factor outside [1,51].
	ErrQuality = errors.New("invalid quality factor")

	// ErrGOP indicates an invalid GOP structure.
	ErrGOP = errors.New("invalid GOP structure")

	// ErrFrameLevel indicates a frame type and hierarchy level the BRC cannot classify.
	ErrFrameLevel = errors.New("unsupported frame level")

	// ErrNotInitialized indicates use before Init.
	ErrNotInitialized = errors.New("rate controller not initialized")

	// ErrPhase indicates an update invoked out of order.
	ErrPhase = errors.New("rate controller phase")

	// ErrMissingFeedback indicates a frame update whose feedback dependency
	// has not been applied.
	ErrMissingFeedback = errors.New("feedback missing")

	// ErrStaleFeedback indicates feedback for a frame that is not the next one expected.
	ErrStaleFeedback = errors.New("stale feedback")

	// ErrRegionControl indicates a region update with neither region control nor ROI enabled.
	ErrRegionControl = errors.New("region control disabled")

	// ErrROI indicates an ROI rectangle outside the frame or with an out of range delta.
	ErrROI = errors.New("invalid ROI")

	// ErrCheckpoint indicates a checkpoint that does not match the stream parameters.
	ErrCheckpoint = errors.New("checkpoint mismatch")
)
