package limiter

import "errors"

var (
	// ErrInvalidConfiguration is returned when policies fail validation at startup.
	ErrInvalidConfiguration = errors.New("invalid limiter configuration")
	// ErrInvalidArgument is returned for malformed check arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownDimension is returned for quota checks against a dimension with no ceiling.
	ErrUnknownDimension = errors.New("unknown quota dimension")
	// ErrCircuitOpen is returned by the guard while the store circuit is open.
	ErrCircuitOpen = errors.New("counter store circuit open")
)
