package tensor

import "errors"

// Sentinel errors for shape, axis, index and dtype failures. Callers match
// them with errors.Is; messages wrap them with context.
var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrInvalidShape     = errors.New("invalid shape")
	ErrBroadcast        = errors.New("broadcast error")
	ErrAxisOutOfRange   = errors.New("axis out of range")
	ErrDuplicateAxis    = errors.New("duplicate axis")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrUnsupportedDType = errors.New("unsupported dtype")
)
