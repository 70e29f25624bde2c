package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/runner"
)

// CountPages parses the PDF structure and returns its page count.
func CountPages(data []byte) (count int, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF-")) {
		return 0, common.KindErrorf(common.KindInvalidDocument, "missing %%PDF header")
	}
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			count, err = 0, common.KindErrorf(common.KindInvalidDocument, "malformed pdf: %v", r)
		}
	}()
	r, perr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if perr != nil {
		return 0, common.NewKindError(common.KindInvalidDocument, "malformed pdf", perr)
	}
	count = r.NumPage()
	if count <= 0 {
		return 0, common.KindErrorf(common.KindInvalidDocument, "pdf has no pages")
	}
	return count, nil
}

func (n *Normalizer) normalizePDF(ctx context.Context, data []byte, dpi int) ([]Page, error) {
	count, err := n.CheckPages(data)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp(n.cfg.TempDir, "spdf-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			n.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	renderCtx := ctx
	if n.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, n.cfg.RenderTimeout)
		defer cancel()
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := n.runner.Run(renderCtx, n.cfg.Pdftoppm, "-r", strconv.Itoa(dpi), "-png", in, prefix)
	if err != nil {
		if renderCtx.Err() != nil {
			return nil, fmt.Errorf("pdf render timed out after %s: %w", n.cfg.RenderTimeout, renderCtx.Err())
		}
		return nil, classifyRenderError(err, errb)
	}

	// collect generated pngs (page-1.png, page-2.png, ... zero padded by pdftoppm)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(a, b int) bool { return pageNumber(matches[a]) < pageNumber(matches[b]) })
	if len(matches) != count {
		return nil, fmt.Errorf("pdftoppm rendered %d pages, document has %d", len(matches), count)
	}

	pages := make([]Page, 0, count)
	for i, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode rendered page %d: %w", i+1, err)
		}
		b := img.Bounds()
		if err := n.checkPixels(b.Dx(), b.Dy()); err != nil {
			return nil, err
		}
		pages = append(pages, Page{Index: i, Width: b.Dx(), Height: b.Dy(), DPI: dpi, Image: img})
	}
	return pages, nil
}

// pdftoppm exits 1 when it cannot open the file and 3 on permission errors
// (encrypted documents); both are the document's fault.
func classifyRenderError(err error, stderr []byte) error {
	detail := strings.TrimSpace(runner.Truncate(string(stderr), 512))
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 1, 3:
			return common.NewKindError(common.KindInvalidDocument, "pdftoppm: "+detail, err)
		}
	}
	return fmt.Errorf("pdftoppm: %s: %w", detail, err)
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return 0
	}
	n, _ := strconv.Atoi(base[i+1:])
	return n
}
