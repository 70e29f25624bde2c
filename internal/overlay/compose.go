package overlay

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sort"

	"github.com/wudi/pdfkit/builder"
	"github.com/wudi/pdfkit/contentstream"
	"github.com/wudi/pdfkit/ir/semantic"
	"github.com/wudi/pdfkit/writer"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/document"
	"github.com/joseph-ayodele/searchable-pdf/internal/ocr"
)

const (
	producer     = "searchable-pdf"
	fontResource = "F1"
)

// PageInput pairs a normalized page with its recognized fragments.
type PageInput struct {
	Page      document.Page
	Fragments []ocr.Fragment
}

// Compositor renders pages as a PDF with the page raster visible and the
// recognized text drawn invisibly on top of it.
type Compositor struct {
	opts   Options
	logger *slog.Logger
}

func NewCompositor(opts Options, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{opts: opts, logger: logger}
}

// Compose builds the output document. Pages must carry the indices 0..N-1;
// they are emitted in index order.
func (c *Compositor) Compose(pages []PageInput) ([]byte, error) {
	if len(pages) == 0 {
		return nil, common.KindErrorf(common.KindPipelineFailure, "compose: no pages")
	}
	sorted := make([]PageInput, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Page.Index < sorted[j].Page.Index })
	for i, p := range sorted {
		if p.Page.Index != i {
			return nil, common.KindErrorf(common.KindPipelineFailure, "compose: page indices not contiguous at %d (got %d)", i, p.Page.Index)
		}
		if p.Page.Image == nil || p.Page.DPI <= 0 || p.Page.Width <= 0 || p.Page.Height <= 0 {
			return nil, common.KindErrorf(common.KindPipelineFailure, "compose: page %d has no raster", i)
		}
	}

	b := builder.NewBuilder()
	b.RegisterFont(fontResource, helvetica())
	b.SetInfo(&semantic.DocumentInfo{Producer: producer, Creator: producer})

	words := 0
	for _, p := range sorted {
		l := Layout(p.Page.Index, p.Page.Width, p.Page.Height, p.Page.DPI, p.Fragments, c.opts)
		words += len(l.Placements)

		pb := b.NewPage(l.Width, l.Height)
		pb.DrawImage(rasterImage(p.Page.Image), 0, 0, l.Width, l.Height, builder.ImageOptions{})
		for _, pl := range l.Placements {
			pb.DrawText(string(pl.Encoded), round(pl.X), round(pl.Baseline), builder.TextOptions{
				Font:         fontResource,
				FontSize:     round(pl.FontSize),
				HorizScaling: round(pl.HScale),
				RenderMode:   contentstream.TextInvisible,
			})
		}
		pb.Finish()
	}

	doc, err := b.Build()
	if err != nil {
		return nil, common.NewKindError(common.KindPipelineFailure, "compose: build document", err)
	}
	var out bytes.Buffer
	cfg := writer.Config{
		Version:       writer.PDF17,
		ContentFilter: writer.FilterFlate,
		Compression:   6,
		Deterministic: true,
	}
	if err := writer.NewWriter().Write(context.Background(), doc, &out, cfg); err != nil {
		return nil, common.NewKindError(common.KindPipelineFailure, fmt.Sprintf("compose: write %d pages", len(sorted)), err)
	}

	c.logger.Debug("composed searchable pdf", "pages", len(sorted), "words", words, "bytes", out.Len())
	return out.Bytes(), nil
}

// helvetica is the standard Type1 font with its WinAnsi widths spelled out
// so readers that ignore the built-in metrics select the same text.
func helvetica() *semantic.Font {
	widths := make(map[int]int, len(helveticaWidths))
	for i, w := range helveticaWidths {
		widths[firstWidthCode+i] = w
	}
	return &semantic.Font{
		Subtype:  "Type1",
		BaseFont: "Helvetica",
		Encoding: "WinAnsiEncoding",
		Widths:   widths,
	}
}

// round keeps coordinates to three decimals so they never print in
// exponent form.
func round(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		return 0
	}
	return r
}

// rasterImage converts a page raster to 8-bit samples. Gray rasters stay
// single channel; everything else is flattened to RGB.
func rasterImage(img image.Image) *semantic.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	var samples []byte
	cs := "DeviceRGB"

	switch src := img.(type) {
	case *image.Gray:
		cs = "DeviceGray"
		samples = make([]byte, 0, w*h)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			off := src.PixOffset(bounds.Min.X, y)
			samples = append(samples, src.Pix[off:off+w]...)
		}
	case *image.RGBA:
		samples = make([]byte, 0, w*h*3)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			off := src.PixOffset(bounds.Min.X, y)
			row := src.Pix[off : off+w*4]
			for x := 0; x < len(row); x += 4 {
				samples = append(samples, row[x], row[x+1], row[x+2])
			}
		}
	default:
		samples = make([]byte, 0, w*h*3)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				samples = append(samples, c.R, c.G, c.B)
			}
		}
	}

	return &semantic.Image{
		Subtype:          "Image",
		Width:            w,
		Height:           h,
		ColorSpace:       semantic.DeviceColorSpace{Name: cs},
		BitsPerComponent: 8,
		Data:             samples,
	}
}
