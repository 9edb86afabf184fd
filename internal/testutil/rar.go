package testutil

import (
	"encoding/binary"
	"hash/crc32"
	"time"
	"unicode/utf8"
)

// RAR block flags used by the volume builders.
const (
	Rar3MainVolume    = 0x0001
	Rar3MainSolid     = 0x0008
	Rar3MainNewNaming = 0x0010
	Rar3MainEncrypted = 0x0080
	Rar3SplitBefore   = 0x0001
	Rar3SplitAfter    = 0x0002
	Rar3Password      = 0x0004
	Rar3EndNotLast    = 0x0001

	Rar5MainVolume  = 0x0001
	Rar5MainSolid   = 0x0004
	Rar5SplitBefore = 0x0008
	Rar5SplitAfter  = 0x0010
	Rar5EndNotLast  = 0x0001
)

// RarFile describes one file block written by Rar3 or Rar5.
type RarFile struct {
	Name string

	// Data holds the packed bytes stored in this volume.
	Data []byte

	// Size is the unpacked size of the whole member. Zero means len(Data);
	// negative marks the size as unknown.
	Size int64

	// Method is the RAR method byte (0x30 stored through 0x35 best).
	// Zero means stored.
	Method byte

	Dir     bool
	Unix    bool
	Attr    uint32
	ModTime time.Time

	// Flags are extra block flags such as the split bits.
	Flags uint16

	// OEM writes Name as raw code page bytes with the Unicode flag clear.
	OEM bool
}

func (f RarFile) size() int64 {
	if f.Size == 0 {
		return int64(len(f.Data))
	}
	return f.Size
}

func (f RarFile) method() byte {
	if f.Method == 0 {
		return 0x30
	}
	return f.Method
}

// Rar3 returns a RAR 2.9 format volume. Stored members in it can be read
// back by a real decoder.
func Rar3(mainFlags, endFlags uint16, files ...RarFile) []byte {
	out := []byte("Rar!\x1a\x07\x00")
	out = append(out, rar3Block(0x73, mainFlags, make([]byte, 6))...)
	for _, f := range files {
		out = append(out, rar3File(f)...)
		out = append(out, f.Data...)
	}
	return append(out, rar3Block(0x7b, endFlags, nil)...)
}

func rar3File(f RarFile) []byte {
	flags := f.Flags | 0x8000
	size := f.size()
	attr := f.Attr
	if f.Dir {
		flags |= 0x00e0
		if attr == 0 {
			attr = 0x10
		}
	} else if attr == 0 {
		attr = 0x20
	}
	if !f.OEM && !isASCII(f.Name) {
		flags |= 0x0200
	}
	if size < 0 || size > 0xffffffff {
		flags |= 0x0100
	}
	host := byte(2)
	if f.Unix {
		host = 3
	}

	body := make([]byte, 0, 25+len(f.Name))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(f.Data))) //nolint:gosec // test data
	body = binary.LittleEndian.AppendUint32(body, uint32(size))         //nolint:gosec // low half
	body = append(body, host)
	body = binary.LittleEndian.AppendUint32(body, crc32.ChecksumIEEE(f.Data))
	body = binary.LittleEndian.AppendUint32(body, DOSTime(f.ModTime))
	body = append(body, 29, f.method())
	body = binary.LittleEndian.AppendUint16(body, uint16(len(f.Name))) //nolint:gosec // test data
	body = binary.LittleEndian.AppendUint32(body, attr)
	if flags&0x0100 != 0 {
		body = binary.LittleEndian.AppendUint32(body, 0)
		body = binary.LittleEndian.AppendUint32(body, uint32(size>>32)) //nolint:gosec // high half
	}
	body = append(body, f.Name...)
	return rar3Block(0x74, flags, body)
}

func rar3Block(typ byte, flags uint16, body []byte) []byte {
	b := make([]byte, 7, 7+len(body))
	b[2] = typ
	binary.LittleEndian.PutUint16(b[3:], flags)
	binary.LittleEndian.PutUint16(b[5:], uint16(7+len(body))) //nolint:gosec // test data
	b = append(b, body...)
	binary.LittleEndian.PutUint16(b[0:], uint16(crc32.ChecksumIEEE(b[2:]))) //nolint:gosec // low 16 bits
	return b
}

// Rar5 returns a RAR 5 format volume.
func Rar5(mainFlags, endFlags uint64, files ...RarFile) []byte {
	out := []byte("Rar!\x1a\x07\x01\x00")
	out = append(out, rar5Block(AppendVint(AppendVint(AppendVint(nil, 1), 0), mainFlags))...)
	for _, f := range files {
		out = append(out, rar5File(f)...)
		out = append(out, f.Data...)
	}
	return append(out, rar5Block(AppendVint(AppendVint(AppendVint(nil, 5), 0), endFlags))...)
}

func rar5File(f RarFile) []byte {
	h := AppendVint(nil, 2)
	h = AppendVint(h, uint64(0x0002|f.Flags&(Rar5SplitBefore|Rar5SplitAfter)))
	h = AppendVint(h, uint64(len(f.Data)))

	var fileFlags uint64 = 0x0004
	if f.Dir {
		fileFlags |= 0x0001
	}
	if !f.ModTime.IsZero() {
		fileFlags |= 0x0002
	}
	size := f.size()
	if size < 0 {
		fileFlags |= 0x0008
		size = 0
	}
	h = AppendVint(h, fileFlags)
	h = AppendVint(h, uint64(size))
	h = AppendVint(h, uint64(f.Attr))
	if !f.ModTime.IsZero() {
		h = binary.LittleEndian.AppendUint32(h, uint32(f.ModTime.Unix())) //nolint:gosec // test data
	}
	h = binary.LittleEndian.AppendUint32(h, crc32.ChecksumIEEE(f.Data))
	h = AppendVint(h, uint64(f.method()-0x30)<<7)
	var host uint64
	if f.Unix {
		host = 1
	}
	h = AppendVint(h, host)
	h = AppendVint(h, uint64(len(f.Name)))
	h = append(h, f.Name...)
	return rar5Block(h)
}

func rar5Block(h []byte) []byte {
	sized := AppendVint(nil, uint64(len(h)))
	sized = append(sized, h...)
	b := binary.LittleEndian.AppendUint32(nil, crc32.ChecksumIEEE(sized))
	return append(b, sized...)
}

// AppendVint appends v as a RAR5 variable-length integer.
func AppendVint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// DOSTime encodes t as an MS-DOS date and time in local time.
func DOSTime(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	t = t.Local()
	return uint32(t.Year()-1980)<<25 | uint32(t.Month())<<21 | uint32(t.Day())<<16 | //nolint:gosec // years after 1980
		uint32(t.Hour())<<11 | uint32(t.Minute())<<5 | uint32(t.Second()/2) //nolint:gosec // bounded fields
}

func isASCII(s string) bool {
	for i := range len(s) {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
