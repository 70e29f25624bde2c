package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
)

// ErrBlobNotFound is returned by Get and Delete for absent keys.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a keyed byte store for input and output artifacts.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores that can hand out time-limited URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// InputKey is where a job's submitted artifact lives.
func InputKey(id uuid.UUID, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		return "inputs/" + id.String()
	}
	return "inputs/" + id.String() + "." + ext
}

// OutputKey is where a job's searchable PDF lives.
func OutputKey(id uuid.UUID) string {
	return "outputs/" + id.String() + ".pdf"
}

// validKey rejects empty, absolute and dot-segment keys.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid blob key %q", key)
		}
	}
	return nil
}

// Open builds the configured store.
func Open(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (BlobStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "local", "":
		return NewLocalStore(cfg.Dir, logger)
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	}
	return nil, common.NewAppError("CONFIG_ERROR", "unknown storage driver "+cfg.Driver, common.ErrInvalidInput)
}
