package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
registry:
  driver: memory
ocr:
  dpi: 200
  languages: [en, de]
worker:
  workers: 2
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OCR_DPI", "150")
	t.Setenv("USE_GPU", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Registry.Driver != "memory" {
		t.Fatalf("driver = %q, want memory", cfg.Registry.Driver)
	}
	if cfg.OCR.DPI != 150 {
		t.Fatalf("env should override file: dpi = %d", cfg.OCR.DPI)
	}
	if !cfg.OCR.GPU {
		t.Fatalf("gpu not set from env")
	}
	if strings.Join(cfg.OCR.Languages, ",") != "en,de" {
		t.Fatalf("languages = %v", cfg.OCR.Languages)
	}
	if cfg.Worker.Workers != 2 || cfg.Worker.LeaseTTL != 2*time.Minute {
		t.Fatalf("unexpected worker config %+v", cfg.Worker)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"postgres without dsn", func(c *Config) { c.Registry.Driver = "postgres"; c.Registry.DSN = "" }, "registry.dsn"},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = "s3" }, "storage.bucket"},
		{"heartbeat longer than lease", func(c *Config) { c.Worker.HeartbeatInterval = 5 * time.Minute }, "worker.heartbeat_interval"},
		{"unknown engine", func(c *Config) { c.OCR.Engine = "magic" }, "ocr.engine"},
		{"no languages", func(c *Config) { c.OCR.Languages = nil }, "ocr.languages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}
