package wal

import (
	"path/filepath"
	"testing"
)

func TestFileRotation_SequenceContinuity(t *testing.T) {
	dir := t.TempDir()

	// Small file size to force rotation mid-run
	config := DefaultConfig()
	config.MaxFileSize = 500

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 20; i++ {
		_ = w.Append(EntryChangesApplied, "conn-1", "some data")
	}

	// Sequence should be continuous (20)
	if w.sequence != 20 {
		t.Errorf("Expected sequence 20, got %d", w.sequence)
	}

	// Verify all entries are readable across files
	count := 0
	files, _ := filepath.Glob(filepath.Join(dir, "kosten-*.wal"))
	if len(files) < 2 {
		t.Errorf("Expected rotation to produce multiple files, got %d", len(files))
	}
	for _, file := range files {
		reader, _ := NewReader(file)
		for {
			if _, err := reader.Next(); err != nil {
				break
			}
			count++
		}
		_ = reader.Close()
	}

	if count != 20 {
		t.Errorf("Expected 20 entries across all files, got %d", count)
	}
}

func TestFileRotation_NoRotationWhenBelowLimit(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 100 * 1024 * 1024

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 10; i++ {
		_ = w.Append(EntryRunStarted, "conn-1", "data")
	}

	files := w.listWALFiles()
	if len(files) != 1 {
		t.Errorf("Expected 1 WAL file (no rotation), got %d", len(files))
	}
}
