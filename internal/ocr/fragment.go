package ocr

import (
	"context"
	"errors"
	"math"
)

// ErrEngineUnavailable is returned by engines not compiled into this binary.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// BBox is an axis-aligned box in page pixels, origin top-left.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

func (b BBox) Width() float64  { return b.X1 - b.X0 }
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }
func (b BBox) Empty() bool     { return !(b.X1 > b.X0 && b.Y1 > b.Y0) }

// Clamp restricts b to [0,w] x [0,h].
func (b BBox) Clamp(w, h float64) BBox {
	return BBox{
		X0: clamp(b.X0, 0, w),
		Y0: clamp(b.Y0, 0, h),
		X1: clamp(b.X1, 0, w),
		Y1: clamp(b.Y1, 0, h),
	}
}

// Point is a quadrilateral corner in page pixels.
type Point struct{ X, Y float64 }

// QuadBBox returns the axis-aligned envelope of a quadrilateral.
func QuadBBox(q []Point) BBox {
	if len(q) == 0 {
		return BBox{}
	}
	b := BBox{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	for _, p := range q {
		b.X0 = math.Min(b.X0, p.X)
		b.Y0 = math.Min(b.Y0, p.Y)
		b.X1 = math.Max(b.X1, p.X)
		b.Y1 = math.Max(b.Y1, p.Y)
	}
	return b
}

// Fragment is one recognized word with its confidence in [0,1].
type Fragment struct {
	Text       string
	Confidence float64
	Box        BBox
}

// Image is a page handed to an engine: PNG bytes plus geometry.
type Image struct {
	PNG    []byte
	Width  int
	Height int
	DPI    int
}

// Options are the per-job recognition settings.
type Options struct {
	Languages []string // ISO 639-1 codes
	GPU       bool
}

// Engine is an external recognition capability. Fragments come back in the
// engine's reading order.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img Image, opts Options) ([]Fragment, error)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
