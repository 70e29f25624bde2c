package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
	"github.com/joseph-ayodele/searchable-pdf/internal/repository"
)

const (
	jobsSheet    = "Jobs"
	summarySheet = "Summary"
)

// Service produces XLSX reports over the job registry.
type Service struct {
	jobs   repository.JobRepository
	limit  int
	logger *slog.Logger
}

func NewService(jobs repository.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, limit: 10000, logger: logger}
}

// Window filters jobs by submission date, inclusive on both ends.
// If only From is provided -> From..today.
// If only To is provided   -> beginning..To.
type Window struct {
	From *time.Time
	To   *time.Time
}

func (w Window) normalize() (from, to *time.Time) {
	day := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	if w.From != nil {
		f := day(*w.From)
		from = &f
	}
	if w.To != nil {
		t := day(*w.To).Add(24*time.Hour - time.Nanosecond)
		to = &t
	}
	if from != nil && to == nil {
		t := day(time.Now()).Add(24*time.Hour - time.Nanosecond)
		to = &t
	}
	return from, to
}

// ExportJobsXLSX returns a workbook with one row per job and a summary
// sheet with per-state totals and the success rate.
func (s *Service) ExportJobsXLSX(ctx context.Context, w Window) ([]byte, error) {
	start := time.Now()
	from, to := w.normalize()

	all, err := s.jobs.List(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	var jobs []*entity.Job
	var stats entity.JobStats
	for _, j := range all {
		if (from != nil && j.SubmittedAt.Before(*from)) || (to != nil && j.SubmittedAt.After(*to)) {
			continue
		}
		jobs = append(jobs, j)
		stats.Total++
		switch j.Status {
		case constants.JobStatusQueued:
			stats.Queued++
		case constants.JobStatusProcessing:
			stats.Processing++
		case constants.JobStatusDone:
			stats.Done++
		case constants.JobStatusFailed:
			stats.Failed++
		}
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", jobsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(jobsSheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Job ID",
		"File",
		"Type",
		"State",
		"Pages",
		"Submitted",
		"Completed",
		"Duration (s)",
		"Error Kind",
		"Error Detail",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(jobsSheet, cell, h)
	}

	row := 2
	for _, j := range jobs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(jobsSheet, cell, v)
		}

		write(1, j.ID.String())
		write(2, j.Filename)
		write(3, string(j.DocType))
		write(4, string(j.Status))
		if j.Status == constants.JobStatusDone {
			write(5, j.PageCount)
		}
		write(6, j.SubmittedAt.UTC().Format(time.RFC3339))
		if j.CompletedAt != nil {
			write(7, j.CompletedAt.UTC().Format(time.RFC3339))
		}
		if d := j.Duration(); d > 0 {
			write(8, d.Round(time.Millisecond).Seconds())
		}
		if j.ErrorKind != nil {
			write(9, *j.ErrorKind)
		}
		if j.ErrorDetail != nil {
			write(10, truncate(*j.ErrorDetail, 240))
		}
		row++
	}

	_ = f.SetColWidth(jobsSheet, "A", "A", 38) // id
	_ = f.SetColWidth(jobsSheet, "B", "B", 32) // file
	_ = f.SetColWidth(jobsSheet, "C", "E", 12)
	_ = f.SetColWidth(jobsSheet, "F", "G", 22) // timestamps
	_ = f.SetColWidth(jobsSheet, "H", "I", 18)
	_ = f.SetColWidth(jobsSheet, "J", "J", 60) // detail

	summary := [][2]any{
		{"Total", stats.Total},
		{"Queued", stats.Queued},
		{"Processing", stats.Processing},
		{"Done", stats.Done},
		{"Failed", stats.Failed},
		{"Success Rate (%)", stats.SuccessRate()},
	}
	for i, kv := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
