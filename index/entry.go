package index

import (
	"time"

	"github.com/meigma/rarfs/internal/pathutil"
)

// Method is the storage method of an archive member, expressed on the
// RAR3 scale (0x30 stored through 0x35 best).
type Method uint8

// Storage methods.
const (
	MethodStore   Method = 0x30
	MethodFastest Method = 0x31
	MethodFast    Method = 0x32
	MethodNormal  Method = 0x33
	MethodGood    Method = 0x34
	MethodBest    Method = 0x35
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodStore:
		return "store"
	case MethodFastest:
		return "fastest"
	case MethodFast:
		return "fast"
	case MethodNormal:
		return "normal"
	case MethodGood:
		return "good"
	case MethodBest:
		return "best"
	default:
		return "unknown"
	}
}

// HostOS identifies the attribute convention used by Attributes.
type HostOS uint8

// Host attribute conventions.
const (
	// HostWindows covers MS-DOS, OS/2 and Win32 attribute bits.
	HostWindows HostOS = iota
	// HostUnix covers Unix-style st_mode bits.
	HostUnix
)

const (
	winAttrDirectory = 0x10
	unixTypeMask     = 0xF000
	unixTypeDir      = 0x4000
)

// Part locates the packed bytes of a member inside one volume.
type Part struct {
	// Volume is the path of the volume file holding this part.
	Volume string

	// DataOffset is the byte offset of the packed data within Volume.
	DataOffset int64

	// Size is the number of packed bytes in this part.
	Size int64
}

// ArchiveEntry is one member of a listed archive.
//
// Entries are immutable once the archive is listed; the Parts slice is
// shared between copies and must not be modified.
type ArchiveEntry struct {
	// Name is the normalized member path ("dir/file.txt").
	Name string

	// Size is the uncompressed size, or -1 if the archive does not record it.
	Size int64

	// PackedSize is the total packed size across all parts.
	PackedSize int64

	// Method is the storage method.
	Method Method

	// Attributes holds host attribute bits interpreted according to HostOS.
	Attributes uint32

	// HostOS is the attribute convention of the archiving host.
	HostOS HostOS

	// ModTime is the member modification time.
	ModTime time.Time

	// Offset is the byte offset of the member's header block in the first
	// volume. Decompression can resume here without rescanning the archive.
	Offset int64

	// Solid reports whether the member depends on previous members' data.
	Solid bool

	// Encrypted reports whether the member data is encrypted.
	Encrypted bool

	// Parts lists the packed byte ranges, one per volume.
	Parts []Part
}

// IsDir reports whether the entry is a directory, derived from its
// attribute bits.
func (e *ArchiveEntry) IsDir() bool {
	if e.HostOS == HostUnix {
		return e.Attributes&unixTypeMask == unixTypeDir
	}
	return e.Attributes&winAttrDirectory != 0
}

// IsStored reports whether the member is stored without compression.
func (e *ArchiveEntry) IsStored() bool {
	return e.Method == MethodStore
}

// BaseName returns the last element of the member path.
func (e *ArchiveEntry) BaseName() string {
	return pathutil.Base(e.Name)
}

// RawEntry is a member as reported by a Lister, before name normalization.
type RawEntry struct {
	// Name is the raw member name as stored in the archive.
	Name []byte

	// UTF8 reports whether Name is known to be UTF-8.
	UTF8 bool

	Size       int64
	PackedSize int64
	Method     Method
	Attributes uint32
	HostOS     HostOS
	ModTime    time.Time
	Offset     int64
	Solid      bool
	Encrypted  bool
	Parts      []Part
}
