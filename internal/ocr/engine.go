package ocr

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/runner"
)

// NewEngine builds the engine named by cfg.Engine.
func NewEngine(ctx context.Context, cfg common.OCRConfig, r runner.Runner, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing ocr engine", "engine", cfg.Engine, "languages", cfg.Languages, "gpu", cfg.GPU)
	switch cfg.Engine {
	case "tesseract", "":
		return NewTesseractEngine(TesseractConfig{
			Binary:      cfg.Tesseract,
			TessdataDir: cfg.TessdataDir,
			PSM:         cfg.PSM,
			OEM:         cfg.OEM,
		}, r, logger), nil
	case "easyocr":
		return NewEasyOCREngine(cfg.EasyOCRURL, &http.Client{Timeout: cfg.RecognizeTimeout}, logger)
	case "vision":
		return NewVisionEngine(ctx, cfg.VisionCredsFile, logger)
	case "gosseract":
		return NewGosseractEngine(cfg.TessdataDir, logger)
	}
	return nil, common.NewAppError("CONFIG_ERROR", "unknown ocr engine "+cfg.Engine, common.ErrInvalidInput)
}
