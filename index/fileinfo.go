package index

import (
	"slices"
	"time"
)

// FileInfo tracks one member that has been, or is being, extracted to a
// cache directory.
type FileInfo struct {
	// Archive is the archive path owning the member.
	Archive string

	// PathInArchive is the normalized member path.
	PathInArchive string

	// CachedPath is the extracted copy. It may not exist yet or may have
	// been deleted since.
	CachedPath string

	// AutoDelete allows the cache manager to delete CachedPath once it is
	// no longer referenced.
	AutoDelete bool

	// UsedCount is the number of open consumers relying on CachedPath.
	UsedCount int

	// Superseded holds auto-delete copies replaced by a later extraction
	// while still referenced. They are removed with CachedPath once
	// UsedCount drops to zero.
	Superseded []string

	// Offset is the last known resume offset for the member, or -1.
	Offset int64

	// CanceledAt records the last user-aborted extraction.
	CanceledAt time.Time
}

// RecentlyCanceled reports whether an extraction was aborted less than
// window ago.
func (fi *FileInfo) RecentlyCanceled(now time.Time, window time.Duration) bool {
	return !fi.CanceledAt.IsZero() && now.Sub(fi.CanceledAt) < window
}

// clone returns a copy that shares no memory with fi.
func (fi *FileInfo) clone() FileInfo {
	c := *fi
	c.Superseded = slices.Clone(fi.Superseded)
	return c
}
