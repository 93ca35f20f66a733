package codec

import "errors"

var (
	// ErrInvalidInput indicates a frame or option that cannot be encoded.
	ErrInvalidInput = errors.New("clx: invalid input")
	// ErrMalformedStream indicates run data that does not describe the declared frame.
	ErrMalformedStream = errors.New("clx: malformed stream")
	// ErrTruncatedStream indicates run data that ends in the middle of a record or header.
	ErrTruncatedStream = errors.New("clx: truncated stream")
	// ErrFrameTooLarge indicates a frame whose dimensions exceed a caller limit.
	ErrFrameTooLarge = errors.New("clx: frame too large")
)
