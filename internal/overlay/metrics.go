package overlay

const firstWidthCode = 32

// helveticaWidths holds Helvetica advance widths (1/1000 em) for WinAnsi
// codes 32..255, from the Adobe core font metrics. Codes WinAnsi leaves
// undefined (129, 141, 143, 144, 157) carry the bullet width.
var helveticaWidths = [224]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // 32-47
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556, // 48-63
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778, // 64-79
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556, // 80-95
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // 96-111
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, 350, // 112-127
	556, 350, 222, 556, 333, 1000, 556, 556, 333, 1000, 667, 333, 1000, 350, 611, 350, // 128-143
	350, 222, 222, 333, 333, 350, 556, 1000, 333, 1000, 500, 333, 944, 350, 500, 667, // 144-159
	278, 333, 556, 556, 556, 556, 260, 556, 333, 737, 370, 556, 584, 333, 737, 333, // 160-175
	400, 584, 333, 333, 333, 556, 537, 278, 333, 333, 365, 556, 834, 834, 834, 611, // 176-191
	667, 667, 667, 667, 667, 667, 1000, 722, 667, 667, 667, 667, 278, 278, 278, 278, // 192-207
	722, 722, 778, 778, 778, 778, 778, 584, 778, 722, 722, 722, 722, 667, 667, 611, // 208-223
	556, 556, 556, 556, 556, 556, 889, 500, 556, 556, 556, 556, 278, 278, 278, 278, // 224-239
	556, 556, 556, 556, 556, 556, 556, 584, 611, 556, 556, 556, 556, 500, 556, 500, // 240-255
}

func glyphWidth(c byte) int {
	if c < firstWidthCode {
		return helveticaWidths[0]
	}
	return helveticaWidths[c-firstWidthCode]
}

// textUnits is the advance width of encoded text in 1/1000 em.
func textUnits(encoded []byte) int {
	n := 0
	for _, c := range encoded {
		n += glyphWidth(c)
	}
	return n
}

// MeasureText returns the width in points of encoded text at size with a
// horizontal scale of hscale percent.
func MeasureText(encoded []byte, size, hscale float64) float64 {
	return float64(textUnits(encoded)) / 1000 * size * hscale / 100
}
