package index

import "errors"

var (
	// ErrArchiveUnreadable is returned when an archive cannot be opened or parsed.
	ErrArchiveUnreadable = errors.New("rarfs: archive unreadable")

	// ErrMemberNotFound is returned when a member path is absent from the archive index.
	ErrMemberNotFound = errors.New("rarfs: member not found")
)
