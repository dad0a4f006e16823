package orchestrator

import "errors"

// Sentinel errors for session sequencing.
var (
	// ErrNoDispatcher indicates a session created without a dispatcher.
	ErrNoDispatcher = errors.New("no dispatcher")

	// ErrNotConfigured indicates PlanFrame before ConfigureStream.
	ErrNotConfigured = errors.New("stream not configured")

	// ErrFrameOrder indicates a frame planned out of temporal order.
	ErrFrameOrder = errors.New("frame out of order")

	// ErrFrameGeometry indicates invalid frame dimensions or LCU size.
	ErrFrameGeometry = errors.New("invalid frame geometry")

	// ErrStreamParams indicates invalid stream-level settings.
	ErrStreamParams = errors.New("invalid stream parameters")

	// ErrNoHandle indicates feedback is needed for a frame that was never submitted.
	ErrNoHandle = errors.New("no submission handle for frame")

	// ErrFeedbackTimeout indicates the dispatcher did not deliver statistics in time.
	ErrFeedbackTimeout = errors.New("feedback wait timed out")

	// ErrSessionFailed indicates a session that already hit a fatal error.
	ErrSessionFailed = errors.New("session terminated")

	// ErrPendingFrames indicates a checkpoint or resume with frames still in flight.
	ErrPendingFrames = errors.New("frames still in flight")
)
