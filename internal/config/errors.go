package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidPreset indicates an unknown preset name was provided.
	ErrInvalidPreset = errors.New("invalid preset")

	// ErrInvalidFrames indicates a non-positive frame count.
	ErrInvalidFrames = errors.New("frame count out of range")

	// ErrInvalidDimensions indicates a frame size that is not positive.
	ErrInvalidDimensions = errors.New("invalid frame dimensions")

	// ErrInvalidSlices indicates a slice count outside 1..MaxSlices.
	ErrInvalidSlices = errors.New("slice count out of range")

	// ErrInvalidRateControl indicates rate-control settings the controller rejects.
	ErrInvalidRateControl = errors.New("invalid rate control settings")

	// ErrInvalidStream indicates invalid partitioning or profile settings.
	ErrInvalidStream = errors.New("invalid stream settings")
)
