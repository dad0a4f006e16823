package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDirectoryWritable(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureDirectoryWritable(tmpDir); err != nil {
		t.Errorf("EnsureDirectoryWritable(%q) = %v, want nil", tmpDir, err)
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("write-test file left behind: %v", entries)
	}

	if err := EnsureDirectoryWritable(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("EnsureDirectoryWritable(missing) = nil, want error")
	}

	file := filepath.Join(tmpDir, "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDirectoryWritable(file); err == nil {
		t.Error("EnsureDirectoryWritable(file) = nil, want error")
	}
}

func TestEnsureDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDirectory(dir); err != nil {
		t.Fatalf("EnsureDirectory() = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory %s not created", dir)
	}
	if FileExists(dir) {
		t.Errorf("FileExists(%s) = true for a directory", dir)
	}
}

func TestArtifactPath(t *testing.T) {
	tests := []struct {
		dir, stem, ext string
		want           string
	}{
		{"", "run", "png", ""},
		{"out", "run", "png", filepath.Join("out", "run.png")},
		{"out", "run", ".ndjson.zst", filepath.Join("out", "run.ndjson.zst")},
	}
	for _, tt := range tests {
		if got := ArtifactPath(tt.dir, tt.stem, tt.ext); got != tt.want {
			t.Errorf("ArtifactPath(%q, %q, %q) = %q, want %q", tt.dir, tt.stem, tt.ext, got, tt.want)
		}
	}
}

func TestGetFileStem(t *testing.T) {
	if got := GetFileStem("/tmp/plan.ndjson"); got != "plan" {
		t.Errorf("GetFileStem() = %q, want %q", got, "plan")
	}
}
