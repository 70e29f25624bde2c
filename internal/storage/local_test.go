package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestLocalStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	key := OutputKey(uuid.New())

	if _, err := s.Get(ctx, key); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Get missing err = %v", err)
	}
	if err := s.Put(ctx, key, []byte("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	b, err := s.Get(ctx, key)
	if err != nil || string(b) != "%PDF-1.4" {
		t.Fatalf("Get = %q, %v", b, err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, key); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("7b0c1f3e-2d7a-4a55-9f43-4a1c4b7f0e11")
	if got := InputKey(id, ".PNG"); got != "inputs/7b0c1f3e-2d7a-4a55-9f43-4a1c4b7f0e11.png" {
		t.Fatalf("InputKey = %q", got)
	}
	if got := OutputKey(id); got != "outputs/7b0c1f3e-2d7a-4a55-9f43-4a1c4b7f0e11.pdf" {
		t.Fatalf("OutputKey = %q", got)
	}
}

func TestValidKeyRejectsTraversal(t *testing.T) {
	for _, k := range []string{"", "/etc/passwd", "../x", "a/../../b", "a//b", `a\b`} {
		if err := validKey(k); err == nil {
			t.Fatalf("validKey(%q) accepted", k)
		}
	}
	if err := validKey("outputs/a.pdf"); err != nil {
		t.Fatalf("validKey rejected a good key: %v", err)
	}
}
