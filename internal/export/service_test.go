package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
)

func seed(t *testing.T, repo repository.JobRepository, name string, at time.Time, outcome constants.JobStatus) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	j := &entity.Job{
		ID:          uuid.New(),
		Status:      constants.JobStatusQueued,
		Filename:    name,
		DocType:     constants.DocTypePDF,
		InputKey:    "inputs/" + name,
		SubmittedAt: at,
	}
	if err := repo.Insert(ctx, j); err != nil {
		t.Fatal(err)
	}
	if outcome == constants.JobStatusQueued {
		return j.ID
	}
	if _, err := repo.Claim(ctx, j.ID, "w", time.Minute); err != nil {
		t.Fatal(err)
	}
	switch outcome {
	case constants.JobStatusDone:
		err := repo.Complete(ctx, j.ID, "w", "outputs/"+name, 3)
		if err != nil {
			t.Fatal(err)
		}
	case constants.JobStatusFailed:
		if err := repo.Fail(ctx, j.ID, "w", common.KindRecognitionFailed, "engine crashed"); err != nil {
			t.Fatal(err)
		}
	}
	return j.ID
}

func TestExportJobsXLSX(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryJobRepository(log)
	now := time.Now()
	seed(t, repo, "done.pdf", now.Add(-time.Hour), constants.JobStatusDone)
	seed(t, repo, "failed.pdf", now.Add(-2*time.Hour), constants.JobStatusFailed)
	seed(t, repo, "queued.pdf", now.Add(-3*time.Hour), constants.JobStatusQueued)
	seed(t, repo, "old.pdf", now.AddDate(0, 0, -10), constants.JobStatusDone)

	from := now.AddDate(0, 0, -2)
	out, err := NewService(repo, log).ExportJobsXLSX(context.Background(), Window{From: &from})
	if err != nil {
		t.Fatalf("ExportJobsXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(jobsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "Job ID" || rows[1][1] != "done.pdf" || rows[1][3] != "DONE" || rows[1][4] != "3" {
		t.Fatalf("first data row = %v", rows[1])
	}
	if rows[2][3] != "FAILED" || rows[2][8] != string(common.KindRecognitionFailed) || rows[2][9] != "engine crashed" {
		t.Fatalf("failed row = %v", rows[2])
	}

	for cell, want := range map[string]string{"B1": "3", "B4": "1", "B5": "1", "B6": "50"} {
		got, err := f.GetCellValue(summarySheet, cell)
		if err != nil || got != want {
			t.Errorf("Summary!%s = %q (%v), want %q", cell, got, err, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
