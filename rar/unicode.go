package rar

import "unicode/utf16"

// decodeUnicodeName expands a RAR3 compressed UTF-16 name.
//
// enc starts with the high byte shared by "high" characters, followed by
// groups of a flag byte and up to four characters. Each 2-bit flag selects
// a literal low byte, a low byte combined with the high byte, a full
// 16-bit character, or a run copied from the OEM name with an optional
// correction.
func decodeUnicodeName(oem, enc []byte) string {
	if len(enc) == 0 {
		return string(oem)
	}
	high := uint16(enc[0])
	pos := 1
	out := make([]uint16, 0, len(oem))

	var flags byte
	flagBits := 0
	for pos < len(enc) {
		if flagBits == 0 {
			flags = enc[pos]
			pos++
			flagBits = 8
			if pos >= len(enc) {
				break
			}
		}

		switch flags >> 6 {
		case 0:
			out = append(out, uint16(enc[pos]))
			pos++
		case 1:
			out = append(out, uint16(enc[pos])|high<<8)
			pos++
		case 2:
			if pos+1 >= len(enc) {
				return string(utf16.Decode(out))
			}
			out = append(out, uint16(enc[pos])|uint16(enc[pos+1])<<8)
			pos += 2
		case 3:
			length := int(enc[pos])
			pos++
			if length&0x80 != 0 {
				if pos >= len(enc) {
					return string(utf16.Decode(out))
				}
				correction := enc[pos]
				pos++
				for n := length&0x7f + 2; n > 0 && len(out) < len(oem); n-- {
					out = append(out, uint16(oem[len(out)]+correction)|high<<8)
				}
			} else {
				for n := length + 2; n > 0 && len(out) < len(oem); n-- {
					out = append(out, uint16(oem[len(out)]))
				}
			}
		}
		flags <<= 2
		flagBits -= 2
	}
	return string(utf16.Decode(out))
}
