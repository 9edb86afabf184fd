package rarfs

import (
	"github.com/meigma/rarfs/cache"
	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/rar"
	"github.com/meigma/rarfs/stream"
)

// Errors re-exported from index.
var (
	// ErrArchiveUnreadable is returned when an archive cannot be opened or parsed.
	ErrArchiveUnreadable = index.ErrArchiveUnreadable

	// ErrMemberNotFound is returned when a member path is absent from the archive.
	ErrMemberNotFound = index.ErrMemberNotFound
)

// Errors re-exported from cache.
var (
	// ErrInsufficientSpace is returned when eviction cannot free enough space.
	ErrInsufficientSpace = cache.ErrInsufficientSpace

	// ErrExtractionCanceled is returned when an extraction was declined,
	// canceled, or not allowed by the request flags.
	ErrExtractionCanceled = cache.ErrExtractionCanceled

	// ErrNoDestination is returned when no cache slot could be reserved.
	ErrNoDestination = cache.ErrNoDestination
)

// Errors re-exported from stream.
var (
	// ErrInvalidOffset is returned for seeks outside the member.
	ErrInvalidOffset = stream.ErrInvalidOffset

	// ErrNotSeekable is returned when the backing reader cannot seek.
	ErrNotSeekable = stream.ErrNotSeekable

	// ErrVolumeMissing is returned when a volume holding member data is gone.
	ErrVolumeMissing = stream.ErrVolumeMissing

	// ErrTimeout is returned when decompression stalls.
	ErrTimeout = stream.ErrTimeout
)

// Errors re-exported from rar.
var (
	// ErrEncryptedHeaders is returned for archives whose headers are encrypted.
	ErrEncryptedHeaders = rar.ErrEncryptedHeaders
)
