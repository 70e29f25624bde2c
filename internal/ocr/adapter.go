package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/document"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
)

// Adapter runs an Engine against normalized pages and sanitizes its output.
// Every engine failure, including timeouts, surfaces as RecognitionFailed.
type Adapter struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger
}

func NewAdapter(engine Engine, timeout time.Duration, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, timeout: timeout, logger: logger}
}

func (a *Adapter) EngineName() string { return a.engine.Name() }

// Recognize returns the page's fragments with boxes clamped to the page.
// Low-confidence fragments are kept; filtering is the caller's policy.
func (a *Adapter) Recognize(ctx context.Context, page document.Page, opts entity.ProcessingOptions) ([]Fragment, error) {
	start := time.Now()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, page.Image); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page.Index, err)
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	img := Image{PNG: buf.Bytes(), Width: page.Width, Height: page.Height, DPI: page.DPI}
	raw, err := a.engine.Recognize(callCtx, img, Options{Languages: opts.Languages, GPU: opts.GPU})
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		a.logger.Warn("recognition failed", "engine", a.engine.Name(), "page", page.Index, "error", err)
		return nil, common.NewKindError(common.KindRecognitionFailed,
			fmt.Sprintf("%s on page %d", a.engine.Name(), page.Index+1), err)
	}

	out := Sanitize(raw, page.Width, page.Height)
	a.logger.Debug("page recognized",
		"engine", a.engine.Name(),
		"page", page.Index,
		"fragments", len(out),
		"dropped", len(raw)-len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Sanitize clamps boxes to the page and confidences to [0,1], and drops
// fragments that are blank or have no area left.
func Sanitize(frags []Fragment, width, height int) []Fragment {
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		f.Text = strings.TrimSpace(f.Text)
		if f.Text == "" {
			continue
		}
		f.Box = f.Box.Clamp(float64(width), float64(height))
		if f.Box.Empty() {
			continue
		}
		f.Confidence = clamp(f.Confidence, 0, 1)
		out = append(out, f)
	}
	return out
}
