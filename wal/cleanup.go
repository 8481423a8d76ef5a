package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cleanup removes WAL segments older than the retention period.
func Cleanup(dir string, config Config) error {
	return removeFiles(listOldWALFiles(dir, config))
}

// CleanupStats tracks cleanup operation results
type CleanupStats struct {
	FilesRemoved  int
	BytesFreed    int64
	OldestRemoved time.Time
	NewestRemoved time.Time
}

// CleanupWithStats removes old segments and returns what was freed.
func CleanupWithStats(dir string, config Config) (CleanupStats, error) {
	stats := CleanupStats{}
	files := listOldWALFiles(dir, config)
	if len(files) == 0 {
		return stats, nil
	}

	stats.FilesRemoved = len(files)
	stats.BytesFreed = calculateTotalSize(files)
	stats.OldestRemoved, stats.NewestRemoved = findTimeRange(files)

	return stats, removeFiles(files)
}

// listOldWALFiles finds segments last modified before the retention
// cutoff.
func listOldWALFiles(dir string, config Config) []string {
	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)
	pattern := filepath.Join(dir, config.FilePrefix+"-*.wal")
	all, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	var old []string
	for _, file := range all {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			old = append(old, file)
		}
	}
	return old
}

func removeFiles(files []string) error {
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}
	return nil
}

// calculateTotalSize sums file sizes
func calculateTotalSize(files []string) int64 {
	var total int64
	for _, file := range files {
		if info, err := os.Stat(file); err == nil {
			total += info.Size()
		}
	}
	return total
}

// findTimeRange returns oldest and newest file modification times
func findTimeRange(files []string) (oldest, newest time.Time) {
	for i, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		modTime := info.ModTime()
		if i == 0 {
			oldest, newest = modTime, modTime
			continue
		}
		if modTime.Before(oldest) {
			oldest = modTime
		}
		if modTime.After(newest) {
			newest = modTime
		}
	}
	return oldest, newest
}
