package wire

import (
	"encoding/binary"
	"unicode/utf16"
)

// StringToUCS2 encodes s as UCS-2 (UTF-16LE), the string encoding used
// throughout the LOGIN7/PRELOGIN/token wire formats.
func StringToUCS2(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	b := make([]byte, len(u16)*2)
	for i, v := range u16 {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

// UCS2ToString decodes UCS-2 (UTF-16LE) bytes into a Go string.
func UCS2ToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16))
}

// ManglePassword applies the LOGIN7 password obfuscation: nibble swap then
// XOR 0xA5. It is not its own inverse: demangling reverses the XOR
// first, then the nibble swap, so encode and decode apply the two steps
// in opposite orders; see DemanglePassword.
func ManglePassword(password string) []byte {
	b := StringToUCS2(password)
	for i, c := range b {
		c = (c<<4)&0xF0 | (c>>4)&0x0F
		b[i] = c ^ 0xA5
	}
	return b
}

// DemanglePassword reverses ManglePassword, used only by this package's
// tests to check encoder output against the documented algorithm.
func DemanglePassword(mangled []byte) string {
	b := make([]byte, len(mangled))
	for i, c := range mangled {
		c ^= 0xA5
		b[i] = (c >> 4) | (c << 4)
	}
	return UCS2ToString(b)
}
