package overlay

import (
	"math"
	"strings"

	"github.com/joseph-ayodele/searchable-pdf/internal/ocr"
)

type Options struct {
	// MinConfidence drops fragments scoring below it. Zero keeps everything.
	MinConfidence float64
	// MinFontSize is the smallest size used for tiny boxes, in points.
	MinFontSize float64
}

// Rect is a rectangle in PDF user space (points, origin bottom-left).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) Contains(o Rect) bool {
	const eps = 1e-6
	return o.X0 >= r.X0-eps && o.Y0 >= r.Y0-eps && o.X1 <= r.X1+eps && o.Y1 <= r.Y1+eps
}

// Placement is one invisible text draw.
type Placement struct {
	Text     string
	Encoded  []byte
	X        float64 // left edge of the fragment box
	Baseline float64 // lower edge of the fragment box
	FontSize float64
	HScale   float64 // Tz, percent
	Box      Rect    // fragment box in points
}

// Width is the rendered advance width of the placement in points.
func (p Placement) Width() float64 {
	return MeasureText(p.Encoded, p.FontSize, p.HScale)
}

// Rect is the area the text draw covers: advance width by font size above
// the baseline.
func (p Placement) Rect() Rect {
	return Rect{X0: p.X, Y0: p.Baseline, X1: p.X + p.Width(), Y1: p.Baseline + p.FontSize}
}

// PageLayout is the deterministic geometry of one output page.
type PageLayout struct {
	Index      int
	Width      float64 // points
	Height     float64 // points
	Placements []Placement
}

func (l PageLayout) Bounds() Rect { return Rect{X1: l.Width, Y1: l.Height} }

// PageSize converts pixel dimensions at dpi to points.
func PageSize(widthPx, heightPx, dpi int) (float64, float64) {
	k := 72 / float64(dpi)
	return float64(widthPx) * k, float64(heightPx) * k
}

// Layout computes placements for a page of widthPx x heightPx at dpi.
// Fragments are expected in page pixels with a top-left origin.
func Layout(index, widthPx, heightPx, dpi int, frags []ocr.Fragment, opts Options) PageLayout {
	k := 72 / float64(dpi)
	pw, ph := PageSize(widthPx, heightPx, dpi)
	l := PageLayout{Index: index, Width: pw, Height: ph}

	for _, f := range frags {
		if f.Confidence < opts.MinConfidence || strings.TrimSpace(f.Text) == "" {
			continue
		}
		enc := encodeWinAnsi(f.Text)
		units := textUnits(enc)
		b := f.Box.Clamp(float64(widthPx), float64(heightPx))
		if b.Empty() {
			continue
		}
		box := Rect{X0: b.X0 * k, Y0: ph - b.Y1*k, X1: b.X1 * k, Y1: ph - b.Y0*k}
		boxW, boxH := box.X1-box.X0, box.Y1-box.Y0

		unit := float64(units) / 1000
		size := math.Min(boxW/unit, boxH)
		if size < opts.MinFontSize {
			size = math.Min(opts.MinFontSize, ph-box.Y0)
		}
		if size <= 0 {
			continue
		}
		l.Placements = append(l.Placements, Placement{
			Text:     f.Text,
			Encoded:  enc,
			X:        box.X0,
			Baseline: box.Y0,
			FontSize: size,
			HScale:   100 * boxW / (unit * size),
			Box:      box,
		})
	}
	return l
}
