package document

import (
	"bytes"
	"encoding/binary"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
)

func (n *Normalizer) normalizeImage(data []byte, dpi int) (Page, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Page{}, common.NewKindError(common.KindInvalidDocument, "unrecognized image", err)
	}
	if err := n.checkPixels(cfg.Width, cfg.Height); err != nil {
		return Page{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Page{}, common.NewKindError(common.KindInvalidDocument, "decode "+format, err)
	}

	src := SourceDPI(data)
	if src > 0 && src != dpi {
		w := int(math.Round(float64(cfg.Width) * float64(dpi) / float64(src)))
		h := int(math.Round(float64(cfg.Height) * float64(dpi) / float64(src)))
		if err := n.checkPixels(w, h); err != nil {
			return Page{}, err
		}
		n.logger.Debug("resampling image", "format", format, "source_dpi", src, "target_dpi", dpi, "width", w, "height", h)
		img = Resample(img, w, h)
	}
	b := img.Bounds()
	return Page{Index: 0, Width: b.Dx(), Height: b.Dy(), DPI: dpi, Image: img}, nil
}

// Resample scales img to w x h with Catmull-Rom filtering.
func Resample(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// SourceDPI reads the horizontal resolution stored in PNG pHYs or JPEG JFIF
// headers. Zero means the file does not say.
func SourceDPI(data []byte) int {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return pngDPI(data)
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		return jfifDPI(data)
	}
	return 0
}

func pngDPI(data []byte) int {
	off := 8
	for off+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off:]))
		typ := string(data[off+4 : off+8])
		body := off + 8
		if length < 0 || body+length > len(data) {
			return 0
		}
		switch typ {
		case "pHYs":
			if length < 9 || data[body+8] != 1 { // unit 1 = metre
				return 0
			}
			ppm := binary.BigEndian.Uint32(data[body:])
			return int(math.Round(float64(ppm) * 0.0254))
		case "IDAT", "IEND":
			return 0
		}
		off = body + length + 4 // skip crc
	}
	return 0
}

func jfifDPI(data []byte) int {
	off := 2
	for off+4 <= len(data) {
		if data[off] != 0xFF {
			return 0
		}
		marker := data[off+1]
		if marker == 0xDA || marker == 0xD9 { // start of scan, end of image
			return 0
		}
		length := int(binary.BigEndian.Uint16(data[off+2:]))
		seg := off + 4
		if length < 2 || off+2+length > len(data) {
			return 0
		}
		if marker == 0xE0 && length >= 16 && bytes.Equal(data[seg:seg+5], []byte("JFIF\x00")) {
			units := data[seg+7]
			x := int(binary.BigEndian.Uint16(data[seg+8:]))
			switch units {
			case 1:
				return x
			case 2:
				return int(math.Round(float64(x) * 2.54))
			}
			return 0
		}
		off += 2 + length
	}
	return 0
}
