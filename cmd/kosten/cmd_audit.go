package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/finopskit/kosten/wal"
)

var (
	auditSince      string
	auditConnection string
	auditType       string
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the sync audit journal",
	Long: `Read and maintain the append-only journal of sync activity.

Every sync run writes its lifecycle here: run start, applied changes,
cursor commits, failures. The journal answers "what did sync do and
when" without provider API access.`,
}

var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Print journal entries as JSON lines",
	Example: `  kosten audit log --since 24h
  kosten audit log --connection prod-aws --type run_failed`,
	RunE: runAuditLog,
}

var auditStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show journal segment and sequence statistics",
	Example: `  kosten audit stats`,
	RunE:    runAuditStats,
}

var auditCleanupCmd = &cobra.Command{
	Use:     "cleanup",
	Short:   "Remove journal segments past the retention window",
	Example: `  kosten audit cleanup`,
	RunE:    runAuditCleanup,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditLogCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditCmd.AddCommand(auditCleanupCmd)

	auditLogCmd.Flags().StringVar(&auditSince, "since", "24h", "How far back to read (duration, e.g. 1h, 72h)")
	auditLogCmd.Flags().StringVar(&auditConnection, "connection", "", "Filter by connection id")
	auditLogCmd.Flags().StringVar(&auditType, "type", "", "Filter by entry type (run_started, run_completed, run_failed, changes_applied, cursor_committed, cursor_reset)")
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	window, err := time.ParseDuration(auditSince)
	if err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}
	since := time.Now().Add(-window)

	enc := json.NewEncoder(os.Stdout)
	return wal.Replay(a.walDir(), since, func(entry *wal.Entry) error {
		if auditConnection != "" && entry.ConnectionID != auditConnection {
			return nil
		}
		if auditType != "" && string(entry.Type) != auditType {
			return nil
		}
		return enc.Encode(entry)
	})
}

func runAuditStats(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats := wal.GetStatsFromDir(a.walDir(), wal.DefaultConfig())
	fmt.Printf("Segments:        %d\n", stats.TotalFiles)
	fmt.Printf("Total size:      %d bytes\n", stats.TotalSizeBytes)
	fmt.Printf("Entries:         %d\n", stats.SequenceCount)
	fmt.Printf("Sequence range:  %d - %d\n", stats.FirstSequence, stats.LastSequence)
	if !stats.OldestFile.IsZero() {
		fmt.Printf("Oldest segment:  %s\n", stats.OldestFile.Format(time.RFC3339))
		fmt.Printf("Newest segment:  %s\n", stats.NewestFile.Format(time.RFC3339))
	}
	return nil
}

func runAuditCleanup(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := wal.CleanupWithStats(a.walDir(), wal.DefaultConfig())
	if err != nil {
		return fmt.Errorf("cleanup journal: %w", err)
	}
	if stats.FilesRemoved == 0 {
		fmt.Println("Nothing to remove")
		return nil
	}
	fmt.Printf("Removed %d segment(s), freed %d bytes\n", stats.FilesRemoved, stats.BytesFreed)
	return nil
}
