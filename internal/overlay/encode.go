package overlay

import "golang.org/x/text/encoding/charmap"

// encodeWinAnsi maps text to WinAnsi (cp1252) bytes. Runes outside the code
// page become '?' and control characters become spaces.
func encodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			out = append(out, ' ')
			continue
		case r < 0x80:
			out = append(out, byte(r))
			continue
		}
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, b)
		} else {
			out = append(out, '?')
		}
	}
	return out
}
