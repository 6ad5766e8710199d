package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imgc.toml")

	content := `
workers = 4
stable-seconds = 1.5

[image]
jpeg_quality = 90
lossless = true

[document-analyzer]
max_size_kb = 512
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tables, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	core := tables[CoreNamespace]
	if core["workers"] != int64(4) {
		t.Errorf("core workers = %v, want 4", core["workers"])
	}
	if core["stable-seconds"] != 1.5 {
		t.Errorf("core stable-seconds = %v, want 1.5", core["stable-seconds"])
	}

	img := tables["image"]
	if img == nil {
		t.Fatal("image namespace missing")
	}
	if img["jpeg_quality"] != int64(90) {
		t.Errorf("image jpeg_quality = %v, want 90", img["jpeg_quality"])
	}

	if tables["document-analyzer"] == nil {
		t.Error("document-analyzer namespace missing")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("= broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() should fail for invalid TOML")
	}
}
