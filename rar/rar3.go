package rar

import (
	"fmt"

	"github.com/meigma/rarfs/index"
)

// RAR3 block types.
const (
	rar3BlockMain = 0x73
	rar3BlockFile = 0x74
	rar3BlockEnd  = 0x7b
)

// RAR3 block flags.
const (
	rar3LongBlock = 0x8000

	rar3MainVolume    = 0x0001
	rar3MainSolid     = 0x0008
	rar3MainEncrypted = 0x0080

	rar3FileSplitBefore = 0x0001
	rar3FileSplitAfter  = 0x0002
	rar3FilePassword    = 0x0004
	rar3FileSolid       = 0x0010
	rar3FileDirMask     = 0x00e0
	rar3FileLarge       = 0x0100
	rar3FileUnicode     = 0x0200
	rar3FileSalt        = 0x0400

	rar3EndNextVolume = 0x0001
)

// RAR3 host systems.
const (
	rar3HostUnix = 3
	rar3HostBeOS = 5
)

const rar3BaseHeaderSize = 7

func (w *walker) rar3(pos int64) (*Archive, error) {
	arc := &Archive{Version: Version3, PrefixEnd: pos}
	for pos+rar3BaseHeaderSize <= w.size {
		base, err := w.read(pos, rar3BaseHeaderSize)
		if err != nil {
			return arc, nil //nolint:nilerr // truncated volume
		}
		c := &cursor{b: base}
		c.u16() // header CRC
		typ := c.u8()
		flags := c.u16()
		headSize := int64(c.u16())
		if headSize < rar3BaseHeaderSize {
			return nil, fmt.Errorf("%w: rar3 block at %d has size %d", ErrCorrupt, pos, headSize)
		}

		hdr, err := w.read(pos, int(headSize))
		if err != nil {
			return arc, nil //nolint:nilerr // truncated volume
		}

		var addSize int64
		if flags&rar3LongBlock != 0 && headSize >= rar3BaseHeaderSize+4 {
			ac := &cursor{b: hdr, off: rar3BaseHeaderSize}
			addSize = int64(ac.u32())
		}

		switch typ {
		case rar3BlockMain:
			if flags&rar3MainEncrypted != 0 {
				return nil, ErrEncryptedHeaders
			}
			arc.Volume = flags&rar3MainVolume != 0
			arc.Solid = flags&rar3MainSolid != 0
			arc.PrefixEnd = pos + headSize

		case rar3BlockFile:
			fh, err := parseRar3File(hdr, flags)
			if err != nil {
				return nil, fmt.Errorf("file block at %d: %w", pos, err)
			}
			fh.HeaderOffset = pos
			fh.DataOffset = pos + headSize
			addSize = fh.PackedSize
			arc.Files = append(arc.Files, fh)

		case rar3BlockEnd:
			arc.NextVolume = flags&rar3EndNextVolume != 0
			return arc, nil
		}

		pos += headSize + addSize
	}
	return arc, nil
}

func parseRar3File(hdr []byte, flags uint16) (FileHeader, error) {
	c := &cursor{b: hdr, off: rar3BaseHeaderSize}
	packLow := c.u32()
	unpLow := c.u32()
	host := c.u8()
	c.u32() // file CRC
	ftime := c.u32()
	c.u8() // unpack version
	method := c.u8()
	nameSize := int(c.u16())
	attr := c.u32()

	var packHigh, unpHigh uint32
	if flags&rar3FileLarge != 0 {
		packHigh = c.u32()
		unpHigh = c.u32()
	}
	rawName := c.bytes(nameSize)
	if flags&rar3FileSalt != 0 {
		c.bytes(8)
	}
	if c.err != nil {
		return FileHeader{}, c.err
	}

	size := int64(unpHigh)<<32 | int64(unpLow)
	if unpHigh == 0xffffffff && unpLow == 0xffffffff {
		size = -1
	}

	fh := FileHeader{
		PackedSize:  int64(packHigh)<<32 | int64(packLow),
		Size:        size,
		Method:      index.Method(method),
		Attributes:  attr,
		HostOS:      index.HostWindows,
		ModTime:     dosTime(ftime),
		Dir:         flags&rar3FileDirMask == rar3FileDirMask,
		Solid:       flags&rar3FileSolid != 0,
		Encrypted:   flags&rar3FilePassword != 0,
		SplitBefore: flags&rar3FileSplitBefore != 0,
		SplitAfter:  flags&rar3FileSplitAfter != 0,
	}
	if host == rar3HostUnix || host == rar3HostBeOS {
		fh.HostOS = index.HostUnix
	}
	fh.Name, fh.UTF8 = rar3Name(rawName, flags&rar3FileUnicode != 0)
	if fh.Dir {
		fh.Attributes = dirAttributes(fh.HostOS, fh.Attributes)
	}
	return fh, nil
}

// rar3Name decodes a file name field. Unicode names carry an OEM name, a
// zero byte and the compressed UTF-16 form; a unicode name without the
// zero byte is plain UTF-8.
func rar3Name(raw []byte, unicode bool) ([]byte, bool) {
	name := append([]byte(nil), raw...)
	if !unicode {
		return name, false
	}
	for i, b := range raw {
		if b == 0 {
			return []byte(decodeUnicodeName(raw[:i], raw[i+1:])), true
		}
	}
	return name, true
}

// dirAttributes makes sure a directory's attributes mark it as one under
// its host convention.
func dirAttributes(host index.HostOS, attr uint32) uint32 {
	if host == index.HostUnix {
		return attr&^0xf000 | 0x4000
	}
	return attr | 0x10
}
