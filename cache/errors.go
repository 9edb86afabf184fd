package cache

import "errors"

var (
	// ErrInsufficientSpace is returned when eviction cannot free enough
	// space on the cache volume.
	ErrInsufficientSpace = errors.New("rarfs: insufficient disk space")

	// ErrExtractionCanceled is returned when an extraction was declined,
	// canceled during progress, or recently canceled, and when a member
	// that is not cached is opened with FlagNoCache.
	ErrExtractionCanceled = errors.New("rarfs: extraction canceled")

	// ErrNoDestination is returned when every rarfolder slot under the
	// cache directory is taken.
	ErrNoDestination = errors.New("rarfs: no free cache destination")
)
