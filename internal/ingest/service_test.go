package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/async"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/document"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/overlay"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
	"github.com/joseph-ayodele/searchable-pdf/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureQueue struct {
	jobs []async.Job
	err  error
}

func (c *captureQueue) Enqueue(_ context.Context, job async.Job) error {
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, job)
	return nil
}

func (c *captureQueue) Shutdown(context.Context) {}

type fixture struct {
	svc   *Service
	jobs  *repository.MemoryJobRepository
	blobs *storage.LocalStore
	queue *captureQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := quietLogger()
	blobs, err := storage.NewLocalStore(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	jobs := repository.NewMemoryJobRepository(log)
	q := &captureQueue{}
	checker := document.NewNormalizer(document.Config{MaxPages: 3}, nil, log)
	svc := NewService(log, jobs, blobs, q, checker, Config{
		MaxBytes: 64 << 10,
		Defaults: entity.ProcessingOptions{DPI: 300, Languages: []string{"en"}},
	})
	return &fixture{svc: svc, jobs: jobs, blobs: blobs, queue: q}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pdfBytes(t *testing.T, pages int) []byte {
	t.Helper()
	in := make([]overlay.PageInput, pages)
	for i := range in {
		in[i] = overlay.PageInput{Page: document.Page{Index: i, Width: 10, Height: 10, DPI: 72, Image: image.NewGray(image.Rect(0, 0, 10, 10))}}
	}
	out, err := overlay.NewCompositor(overlay.Options{}, quietLogger()).Compose(in)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestSubmitCreatesQueuedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	data := pdfBytes(t, 2)

	id, err := f.svc.Submit(ctx, SubmitRequest{
		Filename:    "contract.pdf",
		ContentType: "application/pdf",
		Data:        data,
		Options:     entity.ProcessingOptions{Languages: []string{"EN", "de"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	view, err := f.svc.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.State != constants.JobStatusQueued || view.OutputRef != "" || view.ErrorKind != "" {
		t.Fatalf("status = %+v", view)
	}

	job, _ := f.jobs.Get(ctx, id)
	if job.DocType != constants.DocTypePDF || job.Options.DPI != 300 || len(job.Options.Languages) != 2 || job.Options.Languages[0] != "en" {
		t.Fatalf("job = %+v", job)
	}
	stored, err := f.blobs.Get(ctx, job.InputKey)
	if err != nil || !bytes.Equal(stored, data) {
		t.Fatalf("input blob not stored: %v", err)
	}
	if len(f.queue.jobs) != 1 || f.queue.jobs[0].JobID != id {
		t.Fatalf("queue = %+v", f.queue.jobs)
	}
}

func TestSubmitRejectsWithoutCreatingJob(t *testing.T) {
	big := append(pngBytes(t), make([]byte, 64<<10)...)
	tests := []struct {
		name        string
		req         SubmitRequest
		want        error
		unsupported bool
	}{
		{"empty", SubmitRequest{Filename: "a.png"}, common.ErrInvalidDocument, false},
		{"too large", SubmitRequest{Filename: "a.png", Data: big}, common.ErrDocumentTooLarge, false},
		{"extension", SubmitRequest{Filename: "notes.txt", Data: []byte("hello")}, common.ErrInvalidDocument, true},
		{"mime mismatch", SubmitRequest{Filename: "a.png", ContentType: "application/pdf", Data: pngBytes(t)}, common.ErrInvalidDocument, true},
		{"magic mismatch", SubmitRequest{Filename: "a.pdf", Data: pngBytes(t)}, common.ErrInvalidDocument, false},
		{"not a document", SubmitRequest{Filename: "a.jpg", Data: []byte("definitely not a jpeg")}, common.ErrInvalidDocument, false},
		{"corrupt pdf", SubmitRequest{Filename: "a.pdf", Data: []byte("%PDF-1.4\ngarbage")}, common.ErrInvalidDocument, false},
		{"too many pages", SubmitRequest{Filename: "a.pdf", Data: pdfBytes(t, 4)}, common.ErrDocumentTooLarge, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if errors.Is(err, ErrUnsupportedType) != tt.unsupported {
				t.Fatalf("unsupported = %v, want %v", errors.Is(err, ErrUnsupportedType), tt.unsupported)
			}
			stats, _ := f.jobs.Stats(context.Background())
			if stats.Total != 0 || len(f.queue.jobs) != 0 {
				t.Fatalf("rejected submission created work: %+v", stats)
			}
		})
	}
}

func TestSubmitRejectsBadOptions(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		Filename: "a.png", Data: pngBytes(t), Options: entity.ProcessingOptions{DPI: 5000},
	})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmitSurvivesFullQueue(t *testing.T) {
	f := newFixture(t)
	f.queue.err = async.ErrQueueFull
	id, err := f.svc.Submit(context.Background(), SubmitRequest{Filename: "a.png", Data: pngBytes(t)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job, _ := f.jobs.Get(context.Background(), id); job.Status != constants.JobStatusQueued {
		t.Fatalf("job = %+v", job)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Status(context.Background(), uuid.New()); !errors.Is(err, common.ErrJobNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.svc.Submit(ctx, SubmitRequest{Filename: "scans/receipt.final.png", Data: pngBytes(t)})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Retrieve(ctx, id); !errors.Is(err, common.ErrOutputNotReady) {
		t.Fatalf("queued Retrieve err = %v", err)
	}
	if _, err := f.svc.Retrieve(ctx, uuid.New()); !errors.Is(err, common.ErrJobNotFound) {
		t.Fatalf("unknown Retrieve err = %v", err)
	}

	if _, err := f.jobs.Claim(ctx, id, "w", time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Retrieve(ctx, id); !errors.Is(err, common.ErrOutputNotReady) {
		t.Fatalf("processing Retrieve err = %v", err)
	}
	key := storage.OutputKey(id)
	if err := f.blobs.Put(ctx, key, []byte("%PDF-1.7 out"), "application/pdf"); err != nil {
		t.Fatal(err)
	}
	if err := f.jobs.Complete(ctx, id, "w", key, 1); err != nil {
		t.Fatal(err)
	}

	out, err := f.svc.Retrieve(ctx, id)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(out.Data) != "%PDF-1.7 out" || out.Filename != "searchable_receipt.final.pdf" {
		t.Fatalf("output = %q %q", out.Data, out.Filename)
	}
	if _, ref, err := f.svc.OutputRef(ctx, id); err != nil || ref != key {
		t.Fatalf("OutputRef = %q, %v", ref, err)
	}

	if err := f.blobs.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Retrieve(ctx, id); !errors.Is(err, common.ErrOutputMissing) {
		t.Fatalf("missing Retrieve err = %v", err)
	}
	if _, _, err := f.svc.OutputRef(ctx, id); !errors.Is(err, common.ErrOutputMissing) {
		t.Fatalf("missing OutputRef err = %v", err)
	}
}

func TestDownloadName(t *testing.T) {
	for in, want := range map[string]string{
		"invoice.pdf":      "searchable_invoice.pdf",
		"/tmp/scan.JPG":    "searchable_scan.pdf",
		"archive.2024.png": "searchable_archive.2024.pdf",
		"":                 "searchable_document.pdf",
		"noext":            "searchable_noext.pdf",
	} {
		if got := DownloadName(in); got != want {
			t.Errorf("DownloadName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubmitDirectory(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	write := func(rel string, data []byte) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("a.png", pngBytes(t))
	write("nested/b.pdf", pdfBytes(t, 1))
	write("nested/broken.pdf", []byte("nope"))
	write("readme.txt", []byte("skip"))
	write(".hidden/c.png", pngBytes(t))

	results, stats, err := f.svc.SubmitDirectory(context.Background(), root, entity.ProcessingOptions{}, true)
	if err != nil {
		t.Fatalf("SubmitDirectory: %v", err)
	}
	if stats.Matched != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v results = %+v", stats, results)
	}
	if len(f.queue.jobs) != 2 {
		t.Fatalf("queued %d jobs", len(f.queue.jobs))
	}
}
