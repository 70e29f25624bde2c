//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// GosseractEngine links libtesseract through cgo. Build with -tags gosseract.
type GosseractEngine struct {
	tessdataDir string
	logger      *slog.Logger
}

func NewGosseractEngine(tessdataDir string, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &GosseractEngine{tessdataDir: tessdataDir, logger: logger}, nil
}

func (e *GosseractEngine) Name() string { return "gosseract" }

func (e *GosseractEngine) Recognize(ctx context.Context, img Image, opts Options) ([]Fragment, error) {
	c := gosseract.NewClient()
	defer c.Close()

	if e.tessdataDir != "" {
		if err := c.SetTessdataPrefix(e.tessdataDir); err != nil {
			return nil, fmt.Errorf("set tessdata: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img.PNG); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(strings.Split(TesseractLanguages(opts.Languages), "+")...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if img.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(img.DPI)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	frags := make([]Fragment, 0, len(boxes))
	for _, b := range boxes {
		frags = append(frags, Fragment{
			Text:       b.Word,
			Confidence: b.Confidence / 100.0,
			Box: BBox{
				X0: float64(b.Box.Min.X), Y0: float64(b.Box.Min.Y),
				X1: float64(b.Box.Max.X), Y1: float64(b.Box.Max.Y),
			},
		})
	}
	return frags, nil
}
