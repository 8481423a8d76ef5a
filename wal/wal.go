// Package wal keeps an append-only audit journal of sync activity:
// every run, apply and cursor movement is recorded as a JSON line so
// operators can answer "what did the engine do and when" without the
// registry.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType defines the type of WAL entry
type EntryType string

const (
	EntryRunStarted      EntryType = "run_started"
	EntryRunCompleted    EntryType = "run_completed"
	EntryRunFailed       EntryType = "run_failed"
	EntryChangesApplied  EntryType = "changes_applied"
	EntryCursorCommitted EntryType = "cursor_committed"
	EntryCursorReset     EntryType = "cursor_reset"
)

// Entry represents a single WAL entry
type Entry struct {
	Timestamp    time.Time       `json:"timestamp"`
	Sequence     int64           `json:"sequence"`
	Type         EntryType       `json:"type"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Data         json.RawMessage `json:"data"`
	Error        string          `json:"error,omitempty"`
}

// Config bounds WAL file growth and retention.
type Config struct {
	FilePrefix    string
	MaxFileSize   int64
	RetentionDays int
}

// DefaultConfig returns production WAL settings.
func DefaultConfig() Config {
	return Config{
		FilePrefix:    "kosten",
		MaxFileSize:   64 * 1024 * 1024,
		RetentionDays: 30,
	}
}

// WAL provides write-ahead logging for audit and recovery
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
	config   Config
}

// Open creates or opens a WAL in the specified directory
func Open(dir string) (*WAL, error) {
	return OpenWithConfig(dir, DefaultConfig())
}

// OpenWithConfig opens a WAL with explicit limits
func OpenWithConfig(dir string, config Config) (*WAL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	w := &WAL{dir: dir, config: config}
	if err := w.openNewFile(); err != nil {
		return nil, err
	}
	w.loadSequence()
	return w, nil
}

// openNewFile starts a fresh timestamped segment.
func (w *WAL) openNewFile() error {
	filename := fmt.Sprintf("%s-%s.wal", w.config.FilePrefix, time.Now().Format("20060102-150405.000000000"))
	path := filepath.Join(w.dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %w", err)
	}

	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

// Close flushes and closes the WAL
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append adds an entry to the WAL
func (w *WAL) Append(entryType EntryType, connectionID string, data interface{}) error {
	return w.append(entryType, connectionID, data, nil)
}

// AppendError adds an error entry to the WAL
func (w *WAL) AppendError(entryType EntryType, connectionID string, data interface{}, errToLog error) error {
	return w.append(entryType, connectionID, data, errToLog)
}

func (w *WAL) append(entryType EntryType, connectionID string, data interface{}, errToLog error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	w.sequence++

	entry := Entry{
		Timestamp:    time.Now(),
		Sequence:     w.sequence,
		Type:         entryType,
		ConnectionID: connectionID,
		Data:         jsonData,
	}
	if errToLog != nil {
		entry.Error = errToLog.Error()
	}

	return w.writeEntry(entry)
}

// writeEntry writes a single entry, rotating first when the current
// segment hit its size limit.
func (w *WAL) writeEntry(entry Entry) error {
	if w.shouldRotate() {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	if _, err := w.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush immediately for durability
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return w.file.Sync()
}

// shouldRotate reports whether the current segment reached its limit.
// Callers hold w.mu.
func (w *WAL) shouldRotate() bool {
	if w.config.MaxFileSize <= 0 {
		return false
	}
	info, err := w.file.Stat()
	if err != nil {
		return false
	}
	return info.Size() >= w.config.MaxFileSize
}

// rotate closes the current segment and starts a new one. The sequence
// counter carries across segments.
func (w *WAL) rotate() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return w.openNewFile()
}

// listWALFiles returns all segments in the directory, oldest first.
func (w *WAL) listWALFiles() []string {
	files, err := filepath.Glob(filepath.Join(w.dir, w.config.FilePrefix+"-*.wal"))
	if err != nil {
		return nil
	}
	return files
}

// loadSequence resumes the sequence counter from existing segments.
func (w *WAL) loadSequence() {
	maxSeq := int64(0)
	for _, file := range w.listWALFiles() {
		if seq := getMaxSequenceFromFile(file); seq > maxSeq {
			maxSeq = seq
		}
	}
	w.sequence = maxSeq
}

// Reader provides WAL replay functionality
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a WAL reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry from the WAL
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay replays WAL entries recorded after a specific time
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	return ReplayWithConfig(dir, DefaultConfig(), since, handler)
}

// ReplayWithConfig replays entries from segments matching the config
// prefix.
func ReplayWithConfig(dir string, config Config, since time.Time, handler func(*Entry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, config.FilePrefix+"-*.wal"))
	if err != nil {
		return fmt.Errorf("failed to list WAL files: %w", err)
	}

	for _, file := range files {
		reader, err := NewReader(file)
		if err != nil {
			return err
		}

		for {
			entry, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = reader.Close()
				return err
			}

			if entry.Timestamp.After(since) {
				if err := handler(entry); err != nil {
					_ = reader.Close()
					return err
				}
			}
		}
		_ = reader.Close()
	}

	return nil
}
