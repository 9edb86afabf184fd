package rar

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/meigma/rarfs/index"
)

// Version is the archive format generation.
type Version int

// Archive formats.
const (
	Version3 Version = 3 // RAR 1.5 through 4.x
	Version5 Version = 5
)

// String returns the format name.
func (v Version) String() string {
	switch v {
	case Version3:
		return "rar3"
	case Version5:
		return "rar5"
	default:
		return "unknown"
	}
}

var (
	// ErrNotArchive is returned when no RAR signature is found.
	ErrNotArchive = errors.New("rarfs: not a rar archive")

	// ErrEncryptedHeaders is returned for archives whose headers are
	// encrypted and therefore cannot be listed without a password.
	ErrEncryptedHeaders = errors.New("rarfs: archive headers are encrypted")

	// ErrCorrupt is returned for malformed block headers.
	ErrCorrupt = errors.New("rarfs: corrupt archive header")
)

var (
	sigPrefix = []byte("Rar!\x1a\x07")
	sigRar3   = []byte("Rar!\x1a\x07\x00")
	sigRar5   = []byte("Rar!\x1a\x07\x01\x00")
)

// maxSFXSize bounds the signature search for self-extracting archives.
const maxSFXSize = 1 << 20

// maxHeaderSize bounds a single block header.
const maxHeaderSize = 2 << 20

// FileHeader is one file block of a volume.
type FileHeader struct {
	// Name is the raw member name; UTF8 reports whether it is UTF-8.
	Name []byte
	UTF8 bool

	// HeaderOffset is the volume offset of the file block.
	HeaderOffset int64

	// DataOffset and PackedSize locate the packed bytes in this volume.
	DataOffset int64
	PackedSize int64

	// Size is the uncompressed size of the whole member, or -1.
	Size int64

	Method     index.Method
	Attributes uint32
	HostOS     index.HostOS
	ModTime    time.Time

	Dir         bool
	Solid       bool
	Encrypted   bool
	SplitBefore bool
	SplitAfter  bool
}

// Archive is the header summary of one volume.
type Archive struct {
	Version Version

	// Volume reports whether this file is part of a multi-volume set.
	Volume bool

	// Solid reports a solid archive.
	Solid bool

	// PrefixEnd is the offset just past the main archive header. The bytes
	// before it, followed by a file block, form a readable archive.
	PrefixEnd int64

	// Files lists file blocks in archive order.
	Files []FileHeader

	// NextVolume reports that the end-of-archive block announces another
	// volume. Old archives may omit the end block; callers should also
	// follow members split across the volume boundary.
	NextVolume bool
}

// ReadArchive walks the block headers of one volume.
//
// The signature may be preceded by up to 1 MiB of SFX stub. A volume that
// ends mid-header is returned with the files read so far.
func ReadArchive(r io.ReaderAt, size int64) (*Archive, error) {
	sigOff, version, err := findSignature(r, size)
	if err != nil {
		return nil, err
	}
	w := &walker{r: r, size: size}
	switch version {
	case Version5:
		return w.rar5(sigOff + int64(len(sigRar5)))
	default:
		return w.rar3(sigOff + int64(len(sigRar3)))
	}
}

func findSignature(r io.ReaderAt, size int64) (int64, Version, error) {
	n := min(size, maxSFXSize+int64(len(sigRar5)))
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return 0, 0, err
	}
	for off := 0; off < len(buf); {
		i := bytes.Index(buf[off:], sigPrefix)
		if i < 0 {
			break
		}
		pos := off + i
		switch {
		case bytes.HasPrefix(buf[pos:], sigRar3):
			return int64(pos), Version3, nil
		case bytes.HasPrefix(buf[pos:], sigRar5):
			return int64(pos), Version5, nil
		}
		off = pos + 1
	}
	return 0, 0, ErrNotArchive
}

// walker reads header bytes from a volume.
type walker struct {
	r    io.ReaderAt
	size int64
}

// read returns n bytes at off, or io.ErrUnexpectedEOF if the volume ends.
func (w *walker) read(off int64, n int) ([]byte, error) {
	if n < 0 || off < 0 || off+int64(n) > w.size {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := w.r.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// cursor decodes little-endian fields from a header.
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.off+n > len(c.b) {
		c.err = fmt.Errorf("%w: field past end of header", ErrCorrupt)
		return false
	}
	return true
}

func (c *cursor) u8() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.b[c.off]
	c.off++
	return v
}

func (c *cursor) u16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.b[c.off:])
	c.off += 2
	return v
}

func (c *cursor) u32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.b[c.off:])
	c.off += 4
	return v
}

func (c *cursor) bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v
}

// vint decodes a RAR5 variable-length integer.
func (c *cursor) vint() uint64 {
	if c.err != nil {
		return 0
	}
	v, n := uvarint(c.b[c.off:])
	if n <= 0 {
		c.err = fmt.Errorf("%w: bad vint", ErrCorrupt)
		return 0
	}
	c.off += n
	return v
}

// uvarint decodes 7-bit groups, least significant first. It returns n <= 0
// when b is too short or the value overflows.
func uvarint(b []byte) (uint64, int) {
	var v uint64
	for i := 0; i < len(b) && i < 10; i++ {
		v |= uint64(b[i]&0x7f) << (7 * uint(i))
		if b[i]&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, 0
}

// dosTime decodes an MS-DOS date and time in local time.
func dosTime(t uint32) time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Date(
		int(t>>25)+1980,
		time.Month((t>>21)&0x0f),
		int((t>>16)&0x1f),
		int((t>>11)&0x1f),
		int((t>>5)&0x3f),
		int(t&0x1f)*2,
		0, time.Local)
}
