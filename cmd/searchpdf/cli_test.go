package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/ingest"
)

func TestUnder(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(dir, "a.pdf"), true},
		{filepath.Join(dir, "sub", "a.pdf"), true},
		{filepath.Join(filepath.Dir(dir), "other.pdf"), false},
		{filepath.Join(dir+"x", "a.pdf"), false},
	}
	for _, tt := range tests {
		if got := under(dir, tt.path); got != tt.want {
			t.Errorf("under(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDetectDocType(t *testing.T) {
	pdf := []byte("%PDF-1.7\n")
	if got, err := detectDocType("a.pdf", pdf); err != nil || got != constants.DocTypePDF {
		t.Fatalf("pdf = %v, %v", got, err)
	}
	if _, err := detectDocType("a.png", pdf); err == nil {
		t.Fatalf("mismatched content accepted")
	}
	if _, err := detectDocType("a.txt", []byte("hi")); !errors.Is(err, ingest.ErrUnsupportedType) {
		t.Fatalf("txt err = %v", err)
	}
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestRegistryCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REGISTRY_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "jobs.db"))
	t.Setenv("STORAGE_DIR", filepath.Join(dir, "blobs"))
	t.Setenv("LOG_LEVEL", "error")

	if out := runCLI(t, "migrate"); !strings.Contains(out, "schema up to date") {
		t.Fatalf("migrate output %q", out)
	}
	if out := runCLI(t, "dbhealth"); !strings.Contains(out, "DB health: OK") || !strings.Contains(out, "total=0") {
		t.Fatalf("dbhealth output %q", out)
	}

	xlsx := filepath.Join(dir, "jobs.xlsx")
	runCLI(t, "export", "-o", xlsx, "--from", "2026-01-01")
	if fi, err := os.Stat(xlsx); err != nil || fi.Size() == 0 {
		t.Fatalf("export wrote nothing: %v", err)
	}
}
