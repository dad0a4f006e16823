package costmodel

import "errors"

// ErrQPOutOfRange indicates a QP outside [0, MaxQP].
var ErrQPOutOfRange = errors.New("QP out of range")
