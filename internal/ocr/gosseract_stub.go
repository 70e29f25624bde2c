//go:build !gosseract

package ocr

import (
	"fmt"
	"log/slog"
)

// NewGosseractEngine reports that cgo tesseract was not compiled in.
func NewGosseractEngine(string, *slog.Logger) (Engine, error) {
	return nil, fmt.Errorf("gosseract: %w (rebuild with -tags gosseract)", ErrEngineUnavailable)
}
