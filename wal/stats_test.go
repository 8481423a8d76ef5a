package wal

import (
	"testing"
)

func TestGetStats_Empty(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	stats := w.GetStats()
	if stats.TotalFiles != 1 {
		t.Errorf("Expected 1 file (the open segment), got %d", stats.TotalFiles)
	}
	if stats.LastSequence != 0 {
		t.Errorf("Expected last sequence 0, got %d", stats.LastSequence)
	}
}

func TestGetStats_WithEntries(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	_ = w.Append(EntryRunStarted, "conn-1", nil)
	_ = w.Append(EntryChangesApplied, "conn-1", map[string]int{"created": 2})
	_ = w.Append(EntryRunCompleted, "conn-1", nil)

	stats := w.GetStats()
	if stats.FirstSequence != 1 {
		t.Errorf("Expected first sequence 1, got %d", stats.FirstSequence)
	}
	if stats.LastSequence != 3 {
		t.Errorf("Expected last sequence 3, got %d", stats.LastSequence)
	}
	if stats.SequenceCount != 3 {
		t.Errorf("Expected sequence count 3, got %d", stats.SequenceCount)
	}
	if stats.TotalSizeBytes == 0 {
		t.Error("Expected non-zero total size")
	}
	if stats.CurrentFileSize == 0 {
		t.Error("Expected non-zero current file size")
	}
}

func TestGetStatsFromDir(t *testing.T) {
	dir := t.TempDir()
	config := DefaultConfig()

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	_ = w.Append(EntryRunStarted, "conn-1", nil)
	_ = w.Append(EntryRunCompleted, "conn-1", nil)
	_ = w.Close()

	stats := GetStatsFromDir(dir, config)
	if stats.TotalFiles != 1 {
		t.Errorf("Expected 1 file, got %d", stats.TotalFiles)
	}
	if stats.LastSequence != 2 {
		t.Errorf("Expected last sequence 2, got %d", stats.LastSequence)
	}
	if stats.EntriesPerFile == nil {
		t.Fatal("Expected per-file entry counts")
	}
}

func TestGetStatsFromDir_EmptyDirectory(t *testing.T) {
	stats := GetStatsFromDir(t.TempDir(), DefaultConfig())
	if stats.TotalFiles != 0 {
		t.Errorf("Expected 0 files, got %d", stats.TotalFiles)
	}
	if stats.SequenceCount != 0 {
		t.Errorf("Expected 0 sequence count, got %d", stats.SequenceCount)
	}
}

func TestGetHealth_Healthy(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	_ = w.Append(EntryRunStarted, "conn-1", nil)

	health := w.GetHealth()
	if !health.Healthy {
		t.Errorf("Expected healthy WAL, issues: %v", health.Issues)
	}
	if health.NeedsRotation {
		t.Error("Fresh WAL should not need rotation")
	}
}

func TestGetHealth_NeedsRotation(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 10 // Anything written exceeds this

	w, err := OpenWithConfig(dir, config)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()

	// Write directly without triggering the rotation in writeEntry by
	// letting one entry land, then check health on the oversized file.
	_ = w.Append(EntryRunStarted, "conn-1", "payload that easily exceeds ten bytes")

	health := w.GetHealth()
	if health.Healthy {
		t.Error("Expected unhealthy WAL")
	}
	if !health.NeedsRotation {
		t.Error("Expected rotation to be flagged")
	}
}
