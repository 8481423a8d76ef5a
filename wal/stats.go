package wal

import (
	"io"
	"path/filepath"
	"time"
)

// Stats summarizes the journal on disk.
type Stats struct {
	TotalFiles      int
	TotalSizeBytes  int64
	OldestFile      time.Time
	NewestFile      time.Time
	CurrentFileSize int64

	SequenceCount int64
	FirstSequence int64
	LastSequence  int64

	EntriesPerFile map[string]int
}

// GetStats returns current WAL statistics
func (w *WAL) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := Stats{LastSequence: w.sequence}

	files := w.listWALFiles()
	stats.TotalFiles = len(files)
	if len(files) == 0 {
		return stats
	}

	stats.TotalSizeBytes = calculateTotalSize(files)
	stats.OldestFile, stats.NewestFile = findTimeRange(files)
	stats.CurrentFileSize = w.currentFileSize()

	stats.FirstSequence = findFirstSequenceInFiles(files)
	if stats.LastSequence >= stats.FirstSequence {
		stats.SequenceCount = stats.LastSequence - stats.FirstSequence + 1
	}
	stats.EntriesPerFile = countEntriesPerFile(files)

	return stats
}

// GetStatsFromDir returns statistics for a WAL directory without an
// active WAL, for the CLI audit surface.
func GetStatsFromDir(dir string, config Config) Stats {
	stats := Stats{}

	pattern := filepath.Join(dir, config.FilePrefix+"-*.wal")
	files, err := filepath.Glob(pattern)
	if err != nil || len(files) == 0 {
		return stats
	}

	stats.TotalFiles = len(files)
	stats.TotalSizeBytes = calculateTotalSize(files)
	stats.OldestFile, stats.NewestFile = findTimeRange(files)

	stats.FirstSequence = findFirstSequenceInFiles(files)
	stats.LastSequence = findLastSequenceInFiles(files)
	if stats.LastSequence >= stats.FirstSequence {
		stats.SequenceCount = stats.LastSequence - stats.FirstSequence + 1
	}
	stats.EntriesPerFile = countEntriesPerFile(files)

	return stats
}

func (w *WAL) currentFileSize() int64 {
	info, err := w.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// findFirstSequenceInFiles reads the first entry of the oldest segment.
func findFirstSequenceInFiles(files []string) int64 {
	if len(files) == 0 {
		return 0
	}

	reader, err := NewReader(files[0])
	if err != nil {
		return 0
	}
	defer func() { _ = reader.Close() }()

	entry, err := reader.Next()
	if err != nil {
		return 0
	}
	return entry.Sequence
}

// findLastSequenceInFiles finds the highest sequence across segments.
func findLastSequenceInFiles(files []string) int64 {
	maxSeq := int64(0)
	for _, file := range files {
		if seq := getMaxSequenceFromFile(file); seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq
}

// getMaxSequenceFromFile scans one segment, skipping corrupted entries.
func getMaxSequenceFromFile(path string) int64 {
	reader, err := NewReader(path)
	if err != nil {
		return 0
	}
	defer func() { _ = reader.Close() }()

	maxSeq := int64(0)
	for {
		entry, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			continue
		}
		if entry.Sequence > maxSeq {
			maxSeq = entry.Sequence
		}
	}
	return maxSeq
}

func countEntriesPerFile(files []string) map[string]int {
	counts := make(map[string]int, len(files))
	for _, file := range files {
		counts[filepath.Base(file)] = countEntriesInFile(file)
	}
	return counts
}

func countEntriesInFile(path string) int {
	reader, err := NewReader(path)
	if err != nil {
		return 0
	}
	defer func() { _ = reader.Close() }()

	count := 0
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		count++
	}
	return count
}

// HealthStatus reports whether the journal needs operator attention.
type HealthStatus struct {
	Healthy          bool
	DiskUsagePercent float64
	OldestFileAge    time.Duration
	NeedsRotation    bool
	NeedsCleanup     bool
	Issues           []string
}

// GetHealth returns WAL health status
func (w *WAL) GetHealth() HealthStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	health := HealthStatus{Issues: []string{}}

	if w.config.MaxFileSize > 0 {
		health.DiskUsagePercent = float64(w.currentFileSize()) / float64(w.config.MaxFileSize) * 100
		if health.DiskUsagePercent > 90 {
			health.Issues = append(health.Issues, "current file >90% of max size")
		}
	}

	if files := w.listWALFiles(); len(files) > 0 {
		oldest, _ := findTimeRange(files)
		health.OldestFileAge = time.Since(oldest)

		retention := time.Duration(w.config.RetentionDays) * 24 * time.Hour
		if health.OldestFileAge > retention {
			health.NeedsCleanup = true
			health.Issues = append(health.Issues, "old files exceed retention period")
		}
	}

	if w.shouldRotate() {
		health.NeedsRotation = true
		health.Issues = append(health.Issues, "file rotation needed")
	}

	health.Healthy = len(health.Issues) == 0
	return health
}
