package rar

import (
	"fmt"
	"time"

	"github.com/meigma/rarfs/index"
)

// RAR5 header types.
const (
	rar5BlockMain       = 1
	rar5BlockFile       = 2
	rar5BlockEncryption = 4
	rar5BlockEnd        = 5
)

// RAR5 flags.
const (
	rar5HeaderExtra       = 0x0001
	rar5HeaderData        = 0x0002
	rar5HeaderSplitBefore = 0x0008
	rar5HeaderSplitAfter  = 0x0010

	rar5MainVolume = 0x0001
	rar5MainSolid  = 0x0004

	rar5FileDir         = 0x0001
	rar5FileTime        = 0x0002
	rar5FileCRC         = 0x0004
	rar5FileUnknownSize = 0x0008

	rar5CompSolid = 0x0040

	rar5EndNotLast = 0x0001

	rar5ExtraCrypt = 0x01
	rar5HostUnix   = 1
)

func (w *walker) rar5(pos int64) (*Archive, error) {
	arc := &Archive{Version: Version5, PrefixEnd: pos}
	for pos+5 <= w.size {
		// CRC32, then the header size as a vint of at most 3 bytes.
		lead, err := w.read(pos, int(min(w.size-pos, 4+3)))
		if err != nil {
			return arc, nil //nolint:nilerr // truncated volume
		}
		headSize, n := uvarint(lead[4:])
		if n <= 0 || headSize == 0 || headSize > maxHeaderSize {
			return nil, fmt.Errorf("%w: rar5 block at %d has bad size", ErrCorrupt, pos)
		}
		start := pos + 4 + int64(n)
		hdr, err := w.read(start, int(headSize))
		if err != nil {
			return arc, nil //nolint:nilerr // truncated volume
		}

		c := &cursor{b: hdr}
		typ := c.vint()
		flags := c.vint()
		var extraSize, dataSize uint64
		if flags&rar5HeaderExtra != 0 {
			extraSize = c.vint()
		}
		if flags&rar5HeaderData != 0 {
			dataSize = c.vint()
		}
		if c.err != nil {
			return nil, fmt.Errorf("block at %d: %w", pos, c.err)
		}
		end := start + int64(headSize)

		switch typ {
		case rar5BlockMain:
			archFlags := c.vint()
			arc.Volume = archFlags&rar5MainVolume != 0
			arc.Solid = archFlags&rar5MainSolid != 0
			arc.PrefixEnd = end

		case rar5BlockEncryption:
			return nil, ErrEncryptedHeaders

		case rar5BlockFile:
			fh, err := parseRar5File(c, extraSize)
			if err != nil {
				return nil, fmt.Errorf("file block at %d: %w", pos, err)
			}
			fh.HeaderOffset = pos
			fh.DataOffset = end
			fh.PackedSize = int64(dataSize) //nolint:gosec // bounded by volume size in practice
			fh.SplitBefore = flags&rar5HeaderSplitBefore != 0
			fh.SplitAfter = flags&rar5HeaderSplitAfter != 0
			arc.Files = append(arc.Files, fh)

		case rar5BlockEnd:
			endFlags := c.vint()
			arc.NextVolume = endFlags&rar5EndNotLast != 0
			return arc, nil
		}

		pos = end + int64(dataSize) //nolint:gosec // bounded by volume size in practice
	}
	return arc, nil
}

func parseRar5File(c *cursor, extraSize uint64) (FileHeader, error) {
	fileFlags := c.vint()
	unpSize := c.vint()
	attr := c.vint()
	var mtime uint32
	if fileFlags&rar5FileTime != 0 {
		mtime = c.u32()
	}
	if fileFlags&rar5FileCRC != 0 {
		c.u32()
	}
	compInfo := c.vint()
	host := c.vint()
	nameLen := c.vint()
	if c.err == nil && nameLen > uint64(len(c.b)) {
		return FileHeader{}, fmt.Errorf("%w: name length %d", ErrCorrupt, nameLen)
	}
	name := c.bytes(int(nameLen)) //nolint:gosec // checked above
	if c.err != nil {
		return FileHeader{}, c.err
	}

	fh := FileHeader{
		Name:       append([]byte(nil), name...),
		UTF8:       true,
		Size:       int64(unpSize), //nolint:gosec // sizes above 2^63 are not meaningful
		Method:     index.MethodStore + index.Method((compInfo>>7)&0x7),
		Attributes: uint32(attr), //nolint:gosec // attributes fit 32 bits
		HostOS:     index.HostWindows,
		Dir:        fileFlags&rar5FileDir != 0,
		Solid:      compInfo&rar5CompSolid != 0,
	}
	if fileFlags&rar5FileUnknownSize != 0 {
		fh.Size = -1
	}
	if mtime != 0 {
		fh.ModTime = time.Unix(int64(mtime), 0)
	}
	if host == rar5HostUnix {
		fh.HostOS = index.HostUnix
	}
	if fh.Dir {
		fh.Attributes = dirAttributes(fh.HostOS, fh.Attributes)
	}

	if extraSize > 0 && extraSize <= uint64(len(c.b)) {
		fh.Encrypted = hasCryptRecord(c.b[len(c.b)-int(extraSize):]) //nolint:gosec // checked above
	}
	return fh, nil
}

// hasCryptRecord scans a RAR5 extra area for a file encryption record.
func hasCryptRecord(extra []byte) bool {
	c := &cursor{b: extra}
	for c.off < len(c.b) && c.err == nil {
		size := c.vint()
		if c.err != nil || size == 0 || size > uint64(len(c.b)-c.off) {
			return false
		}
		next := c.off + int(size) //nolint:gosec // checked above
		if c.vint() == rar5ExtraCrypt {
			return true
		}
		c.off = next
	}
	return false
}
