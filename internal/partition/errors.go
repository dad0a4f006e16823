package partition

import "errors"

// Sentinel errors for partitioning.
var (
	// ErrInvalidDimensions indicates a frame with no LCUs.
	ErrInvalidDimensions = errors.New("invalid frame dimensions")

	// ErrInvalidWalk indicates an unknown wavefront geometry.
	ErrInvalidWalk = errors.New("invalid walk")

	// ErrRegionsPerSlice indicates a regions-per-slice value outside [1,16].
	ErrRegionsPerSlice = errors.New("regions per slice out of range")

	// ErrColorCeiling indicates more concurrent regions than the scheduler supports.
	ErrColorCeiling = errors.New("region count exceeds color ceiling")
)
