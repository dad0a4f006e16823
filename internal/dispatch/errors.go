package dispatch

import "errors"

// Sentinel errors for plan execution.
var (
	// ErrInvalidPlan indicates a plan without a partition.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrUnknownHandle indicates a handle that was never issued or was already collected.
	ErrUnknownHandle = errors.New("unknown handle")

	// ErrClosed indicates use after Close.
	ErrClosed = errors.New("dispatcher closed")

	// ErrScoreboard indicates an LCU started before one of its dependencies completed.
	ErrScoreboard = errors.New("scoreboard dependency not complete")

	// ErrAlreadyComplete indicates an LCU marked complete twice.
	ErrAlreadyComplete = errors.New("unit already complete")

	// ErrStalled indicates units remain but none can start.
	ErrStalled = errors.New("no unit ready")
)
