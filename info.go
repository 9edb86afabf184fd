package rarfs

import (
	"io/fs"
	"time"

	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/pathutil"
)

const winAttrReadOnly = 0x01

// Info implements fs.FileInfo for archive members.
type Info struct {
	entry index.ArchiveEntry
	name  string
}

func newInfo(entry *index.ArchiveEntry) *Info {
	return &Info{entry: *entry, name: entry.BaseName()}
}

func (fi *Info) Name() string       { return fi.name }
func (fi *Info) ModTime() time.Time { return fi.entry.ModTime }
func (fi *Info) IsDir() bool        { return fi.entry.IsDir() }
func (fi *Info) Sys() any           { return &fi.entry }

// Size returns the uncompressed size, or 0 when the archive does not
// record it.
func (fi *Info) Size() int64 {
	if fi.IsDir() || fi.entry.Size < 0 {
		return 0
	}
	return fi.entry.Size
}

// Mode derives permission bits from the member attributes.
func (fi *Info) Mode() fs.FileMode {
	if fi.IsDir() {
		return fs.ModeDir | 0o755
	}
	if fi.entry.HostOS == index.HostUnix {
		if perm := fs.FileMode(fi.entry.Attributes & 0o777); perm != 0 {
			return perm
		}
		return 0o644
	}
	if fi.entry.Attributes&winAttrReadOnly != 0 {
		return 0o444
	}
	return 0o644
}

// Entry returns the underlying archive entry.
func (fi *Info) Entry() *index.ArchiveEntry {
	return &fi.entry
}

// DirInfo implements fs.FileInfo for synthesized directories.
type DirInfo struct {
	name string
}

func newDirInfo(name string) *DirInfo {
	return &DirInfo{name: name}
}

func (di *DirInfo) Name() string       { return di.name }
func (di *DirInfo) Size() int64        { return 0 }
func (di *DirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o755 }
func (di *DirInfo) ModTime() time.Time { return time.Time{} }
func (di *DirInfo) IsDir() bool        { return true }
func (di *DirInfo) Sys() any           { return nil }

// dirEntry implements fs.DirEntry by wrapping fs.FileInfo.
type dirEntry struct {
	info fs.FileInfo
}

func (de dirEntry) Name() string               { return de.info.Name() }
func (de dirEntry) IsDir() bool                { return de.info.IsDir() }
func (de dirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de dirEntry) Info() (fs.FileInfo, error) { return de.info, nil }

// itemInfo returns the file info of a listing item.
func itemInfo(it *index.Item) fs.FileInfo {
	if it.Entry != nil {
		return newInfo(it.Entry)
	}
	return newDirInfo(pathutil.Base(it.Path))
}
