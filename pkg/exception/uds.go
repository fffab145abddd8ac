package exception

import "errors"

// UDS errors
var (
	// ErrEmptyPathUDS is returned when a socket path is empty.
	ErrEmptyPathUDS = errors.New("uds: empty path")

	// ErrNilClientUDS is returned when a nil client receiver is used.
	ErrNilClientUDS = errors.New("uds: nil client")

	// ErrFrameTooLargeUDS is returned when a frame exceeds the word limit.
	ErrFrameTooLargeUDS = errors.New("uds: frame too large")

	// ErrShortFrameUDS is returned when a frame is shorter than its header claims.
	ErrShortFrameUDS = errors.New("uds: short frame")
)
