package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
)

type FileResult struct {
	Path  string
	JobID uuid.UUID
	Err   string
}

type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// SubmitPath reads a local file and submits it.
func (s *Service) SubmitPath(ctx context.Context, path string, opts entity.ProcessingOptions) (uuid.UUID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("abs path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("read: %w", err)
	}
	ext := constants.ExtOf(abs)
	return s.Submit(ctx, SubmitRequest{
		Filename:    filepath.Base(abs),
		ContentType: constants.MIMEForExt(ext),
		Data:        data,
		Options:     opts,
	})
}

// SubmitDirectory walks root and submits every accepted file, skipping
// hidden entries if requested. Per-file failures do not stop the walk.
func (s *Service) SubmitDirectory(ctx context.Context, root string, opts entity.ProcessingOptions, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.Accepts(path) {
			return nil
		}
		stats.Matched++

		id, err := s.SubmitPath(ctx, path, opts)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, FileResult{Path: path, JobID: id})
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	s.logger.Info("directory submitted", "root", root, "matched", stats.Matched, "succeeded", stats.Succeeded, "failed", stats.Failed)
	return results, stats, nil
}

// Accepts reports whether path has an accepted extension.
func (s *Service) Accepts(path string) bool {
	_, ok := s.cfg.AllowedExts[constants.ExtOf(path)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
