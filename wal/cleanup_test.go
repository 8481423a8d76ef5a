package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAgedSegment(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(`{"sequence":1,"type":"run_started","data":null}`+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write segment: %v", err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Failed to age segment: %v", err)
	}
	return path
}

func TestCleanup_RemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()
	config.RetentionDays = 7

	old := writeAgedSegment(t, dir, "kosten-20250101-000000.000000000.wal", 30*24*time.Hour)
	fresh := writeAgedSegment(t, dir, "kosten-20990101-000000.000000000.wal", time.Hour)

	if err := Cleanup(dir, config); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Expected old segment to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("Expected fresh segment to survive: %v", err)
	}
}

func TestCleanup_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()
	config.RetentionDays = 1

	other := filepath.Join(dir, "not-a-wal.txt")
	if err := os.WriteFile(other, []byte("keep me"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	old := time.Now().Add(-72 * time.Hour)
	_ = os.Chtimes(other, old, old)

	if err := Cleanup(dir, config); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if _, err := os.Stat(other); err != nil {
		t.Errorf("Expected non-WAL file to survive: %v", err)
	}
}

func TestCleanupWithStats(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()
	config.RetentionDays = 7

	writeAgedSegment(t, dir, "kosten-20250101-000000.000000000.wal", 30*24*time.Hour)
	writeAgedSegment(t, dir, "kosten-20250102-000000.000000000.wal", 20*24*time.Hour)

	stats, err := CleanupWithStats(dir, config)
	if err != nil {
		t.Fatalf("CleanupWithStats failed: %v", err)
	}

	if stats.FilesRemoved != 2 {
		t.Errorf("Expected 2 files removed, got %d", stats.FilesRemoved)
	}
	if stats.BytesFreed == 0 {
		t.Error("Expected non-zero bytes freed")
	}
}

func TestCleanupWithStats_NothingToRemove(t *testing.T) {
	stats, err := CleanupWithStats(t.TempDir(), DefaultConfig())
	if err != nil {
		t.Fatalf("CleanupWithStats failed: %v", err)
	}
	if stats.FilesRemoved != 0 {
		t.Errorf("Expected 0 files removed, got %d", stats.FilesRemoved)
	}
}
