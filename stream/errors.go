package stream

import "errors"

var (
	// ErrInvalidOffset is returned by Seek for targets outside [0, size].
	ErrInvalidOffset = errors.New("rarfs: invalid seek offset")

	// ErrNotSeekable is returned by Seek when the member size is unknown.
	ErrNotSeekable = errors.New("rarfs: stream not seekable")

	// ErrVolumeMissing is returned once a volume of a multi-volume archive
	// could not be opened. It is terminal for the session.
	ErrVolumeMissing = errors.New("rarfs: archive volume missing")

	// ErrTimeout is returned when the producer did not answer in time.
	// It is terminal for the session.
	ErrTimeout = errors.New("rarfs: stream timed out")
)
