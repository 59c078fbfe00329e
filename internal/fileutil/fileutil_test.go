package fileutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tif")
	dst := filepath.Join(dir, "dst.tif")

	content := []byte("verified copy content")
	if err := os.WriteFile(src, content, 0o640); err != nil {
		t.Fatal(err)
	}

	written, err := CopyFileVerified(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if written != int64(len(content)) {
		t.Fatalf("written = %d, want %d", written, len(content))
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := CopyFileVerified(filepath.Join(dir, "nonexistent"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scan_001.tif")
	dst := filepath.Join(dir, "moved.tif")
	if err := os.WriteFile(src, []byte("scan"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source removed, stat err=%v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected destination present: %v", err)
	}
}

func TestCopyTreeSkipsCompleteFiles(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "remote")
	if err := os.MkdirAll(filepath.Join(src, "preservation"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "preservation", "a.tif"), []byte("aaaa"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "notes.txt"), []byte("bb"), 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := CopyTree(context.Background(), src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 2 || stats.Bytes != 6 {
		t.Fatalf("first copy stats = %+v", stats)
	}

	stats, err = CopyTree(context.Background(), src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 2 || stats.Bytes != 0 {
		t.Fatalf("rerun should skip complete files, got %+v", stats)
	}

	files, err := ListFiles(dst)
	if err != nil {
		t.Fatal(err)
	}
	if files[filepath.Join("preservation", "a.tif")] != 4 || files["notes.txt"] != 2 {
		t.Fatalf("unexpected remote listing: %v", files)
	}
}

func TestCopyTreeHonoursCancel(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.tif"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CopyTree(ctx, src, filepath.Join(t.TempDir(), "dst")); err == nil {
		t.Fatal("expected cancellation error")
	}
}
