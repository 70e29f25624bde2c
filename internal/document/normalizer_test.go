package document

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetGray(x, h/2, color.Gray{Y: 0})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// withPHYs inserts a pHYs chunk right after IHDR.
func withPHYs(data []byte, dpi int) []byte {
	ppm := uint32(float64(dpi)/0.0254 + 0.5)
	body := make([]byte, 9)
	binary.BigEndian.PutUint32(body[0:], ppm)
	binary.BigEndian.PutUint32(body[4:], ppm)
	body[8] = 1

	var chunk bytes.Buffer
	binary.Write(&chunk, binary.BigEndian, uint32(len(body)))
	chunk.WriteString("pHYs")
	chunk.Write(body)
	binary.Write(&chunk, binary.BigEndian, crc32.ChecksumIEEE(append([]byte("pHYs"), body...)))

	ihdrEnd := 8 + 8 + 13 + 4
	out := append([]byte{}, data[:ihdrEnd]...)
	out = append(out, chunk.Bytes()...)
	return append(out, data[ihdrEnd:]...)
}

// minimalPDF builds a structurally valid PDF with n empty pages.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < n; i++ {
		kids += strconv.Itoa(3+i) + " 0 R "
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// fakePdftoppm writes one PNG per configured width to <prefix>-<n>.png.
type fakePdftoppm struct {
	widths []int
	err    error
	calls  int
	args   []string
}

func (f *fakePdftoppm) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	f.calls++
	f.args = args
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	prefix := args[len(args)-1]
	for i, w := range f.widths {
		img := image.NewGray(image.Rect(0, 0, w, 20))
		var buf bytes.Buffer
		_ = png.Encode(&buf, img)
		// pdftoppm zero pads to the width of the page count
		name := fmt.Sprintf("%s-%02d.png", prefix, i+1)
		if err := os.WriteFile(name, buf.Bytes(), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func TestNormalizeImage(t *testing.T) {
	n := NewNormalizer(Config{MaxBytes: 1 << 20, MaxPixels: 1 << 20}, &fakePdftoppm{}, quietLogger())
	opts := entity.ProcessingOptions{DPI: 300}

	pages, err := n.Normalize(context.Background(), Source{Data: pngBytes(t, 120, 40), Type: constants.DocTypeImage}, opts)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(pages) != 1 || pages[0].Index != 0 || pages[0].Width != 120 || pages[0].Height != 40 || pages[0].DPI != 300 {
		t.Fatalf("unexpected page %+v", pages)
	}
}

func TestNormalizeImageResamplesToTargetDPI(t *testing.T) {
	n := NewNormalizer(Config{}, &fakePdftoppm{}, quietLogger())
	data := withPHYs(pngBytes(t, 100, 50), 150)
	if got := SourceDPI(data); got != 150 {
		t.Fatalf("SourceDPI = %d, want 150", got)
	}
	pages, err := n.Normalize(context.Background(), Source{Data: data, Type: constants.DocTypeImage}, entity.ProcessingOptions{DPI: 300})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if pages[0].Width != 200 || pages[0].Height != 100 {
		t.Fatalf("resampled to %dx%d, want 200x100", pages[0].Width, pages[0].Height)
	}
}

func TestNormalizeRejects(t *testing.T) {
	n := NewNormalizer(Config{MaxBytes: 4096, MaxPages: 2, MaxPixels: 100 * 100}, &fakePdftoppm{}, quietLogger())
	tests := []struct {
		name string
		src  Source
		want error
	}{
		{"zero bytes pdf", Source{Data: nil, Type: constants.DocTypePDF}, common.ErrInvalidDocument},
		{"corrupted pdf", Source{Data: []byte("%PDF-1.4\nthis is not a pdf"), Type: constants.DocTypePDF}, common.ErrInvalidDocument},
		{"not a pdf", Source{Data: []byte("hello"), Type: constants.DocTypePDF}, common.ErrInvalidDocument},
		{"garbage image", Source{Data: []byte("definitely not pixels"), Type: constants.DocTypeImage}, common.ErrInvalidDocument},
		{"too many bytes", Source{Data: bytes.Repeat([]byte("x"), 5000), Type: constants.DocTypeImage}, common.ErrDocumentTooLarge},
		{"too many pages", Source{Data: minimalPDF(3), Type: constants.DocTypePDF}, common.ErrDocumentTooLarge},
		{"too many pixels", Source{Data: pngBytes(t, 200, 200), Type: constants.DocTypeImage}, common.ErrDocumentTooLarge},
		{"unknown type", Source{Data: []byte("x"), Type: "WORD"}, common.ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := n.Normalize(context.Background(), tt.src, entity.ProcessingOptions{DPI: 300})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if pages != nil {
				t.Fatalf("partial result returned on failure")
			}
		})
	}
}

func TestNormalizePDFPreservesPageOrder(t *testing.T) {
	widths := []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21}
	fake := &fakePdftoppm{widths: widths}
	n := NewNormalizer(Config{MaxPages: 50}, fake, quietLogger())

	pages, err := n.Normalize(context.Background(), Source{Data: minimalPDF(len(widths)), Type: constants.DocTypePDF}, entity.ProcessingOptions{DPI: 150})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(pages) != len(widths) {
		t.Fatalf("got %d pages, want %d", len(pages), len(widths))
	}
	for i, p := range pages {
		if p.Index != i || p.Width != widths[i] || p.DPI != 150 {
			t.Fatalf("page %d = %+v", i, p)
		}
	}
	if fake.args[0] != "-r" || fake.args[1] != "150" || fake.args[2] != "-png" {
		t.Fatalf("unexpected pdftoppm args %v", fake.args)
	}
}

func TestNormalizePDFRenderFailures(t *testing.T) {
	t.Run("page count mismatch", func(t *testing.T) {
		n := NewNormalizer(Config{}, &fakePdftoppm{widths: []int{10}}, quietLogger())
		_, err := n.Normalize(context.Background(), Source{Data: minimalPDF(2), Type: constants.DocTypePDF}, entity.ProcessingOptions{DPI: 300})
		if err == nil || common.KindOf(err) != common.KindPipelineFailure {
			t.Fatalf("err = %v, want PipelineFailure", err)
		}
	})
	t.Run("renderer error", func(t *testing.T) {
		n := NewNormalizer(Config{}, &fakePdftoppm{err: errors.New("signal: killed")}, quietLogger())
		_, err := n.Normalize(context.Background(), Source{Data: minimalPDF(1), Type: constants.DocTypePDF}, entity.ProcessingOptions{DPI: 300})
		if err == nil || common.KindOf(err) != common.KindPipelineFailure {
			t.Fatalf("err = %v, want PipelineFailure", err)
		}
	})
}

func TestCountPages(t *testing.T) {
	for _, n := range []int{1, 2, 7} {
		got, err := CountPages(minimalPDF(n))
		if err != nil || got != n {
			t.Fatalf("CountPages(%d pages) = %d, %v", n, got, err)
		}
	}
}
