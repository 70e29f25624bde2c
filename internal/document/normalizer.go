package document

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/runner"
)

// Page is one rasterized input page. Index is zero-based and follows the
// source page order.
type Page struct {
	Index  int
	Width  int
	Height int
	DPI    int
	Image  image.Image
}

// Source is a submitted artifact with its declared type.
type Source struct {
	Data []byte
	Type constants.DocType
}

type Config struct {
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	MaxBytes      int64  // 0 = no limit
	MaxPages      int    // 0 = no limit
	MaxPixels     int64  // per page; 0 = no limit
	RenderTimeout time.Duration
	TempDir       string
}

// Normalizer turns artifacts into ordered pages at a target resolution.
type Normalizer struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

func NewNormalizer(cfg Config, r runner.Runner, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if r == nil {
		r = runner.Exec{Logger: logger}
	}
	return &Normalizer{cfg: cfg, runner: r, logger: logger}
}

// Normalize is all-or-nothing: on error no pages are returned.
func (n *Normalizer) Normalize(ctx context.Context, src Source, opts entity.ProcessingOptions) ([]Page, error) {
	if opts.DPI <= 0 {
		return nil, common.NewAppError("NORMALIZE_ERROR", "target dpi must be positive", common.ErrInvalidInput)
	}
	if err := n.CheckSize(src.Data); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		pages []Page
		err   error
	)
	switch src.Type {
	case constants.DocTypePDF:
		pages, err = n.normalizePDF(ctx, src.Data, opts.DPI)
	case constants.DocTypeImage:
		var p Page
		p, err = n.normalizeImage(src.Data, opts.DPI)
		pages = []Page{p}
	default:
		err = common.KindErrorf(common.KindInvalidDocument, "unsupported document type %q", src.Type)
	}
	if err != nil {
		n.logger.Warn("normalization failed", "type", src.Type, "bytes", len(src.Data), "error", err)
		return nil, err
	}
	n.logger.Info("document normalized",
		"type", src.Type,
		"pages", len(pages),
		"dpi", opts.DPI,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}

// CheckSize applies the byte ceiling and rejects empty input.
func (n *Normalizer) CheckSize(data []byte) error {
	if len(data) == 0 {
		return common.KindErrorf(common.KindInvalidDocument, "empty document")
	}
	if n.cfg.MaxBytes > 0 && int64(len(data)) > n.cfg.MaxBytes {
		return common.KindErrorf(common.KindDocumentTooLarge, "%d bytes exceeds limit of %d", len(data), n.cfg.MaxBytes)
	}
	return nil
}

// CheckPages validates a PDF's page count without rendering it.
func (n *Normalizer) CheckPages(data []byte) (int, error) {
	count, err := CountPages(data)
	if err != nil {
		return 0, err
	}
	if n.cfg.MaxPages > 0 && count > n.cfg.MaxPages {
		return count, common.KindErrorf(common.KindDocumentTooLarge, "%d pages exceeds limit of %d", count, n.cfg.MaxPages)
	}
	return count, nil
}

func (n *Normalizer) checkPixels(w, h int) error {
	if w <= 0 || h <= 0 {
		return common.KindErrorf(common.KindInvalidDocument, "image has no pixels (%dx%d)", w, h)
	}
	if n.cfg.MaxPixels > 0 && int64(w)*int64(h) > n.cfg.MaxPixels {
		return common.KindErrorf(common.KindDocumentTooLarge, "%dx%d exceeds pixel limit of %d", w, h, n.cfg.MaxPixels)
	}
	return nil
}
