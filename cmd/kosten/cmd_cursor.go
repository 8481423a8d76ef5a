package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/finopskit/kosten/types"
	"github.com/finopskit/kosten/wal"
)

var cursorOutput string

// cursorCmd represents the cursor command
var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect and reset sync cursors",
	Long: `Show per-connection sync state or force a connection back to a full
snapshot.

A reset clears the incremental watermark so the next sync re-lists the
provider from scratch. Resetting never touches the inventory itself.`,
}

var cursorShowCmd = &cobra.Command{
	Use:     "show",
	Short:   "Show cursor and health for every configured connection",
	Example: `  kosten cursor show`,
	RunE:    runCursorShow,
}

var cursorResetCmd = &cobra.Command{
	Use:     "reset <connection-id>",
	Short:   "Clear the watermark so the next sync is a full snapshot",
	Example: `  kosten cursor reset prod-aws`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCursorReset,
}

func init() {
	rootCmd.AddCommand(cursorCmd)
	cursorCmd.AddCommand(cursorShowCmd)
	cursorCmd.AddCommand(cursorResetCmd)

	cursorShowCmd.Flags().StringVarP(&cursorOutput, "output", "o", "table", "Output format: table, json")
}

type cursorStatus struct {
	ConnectionID string                  `json:"connection_id"`
	Cursor       *types.SyncCursor       `json:"cursor,omitempty"`
	Health       *types.ConnectionHealth `json:"health,omitempty"`
}

func runCursorShow(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	statuses := make([]cursorStatus, 0, len(a.cfg.Connections))
	for _, conn := range a.cfg.Connections {
		status := cursorStatus{ConnectionID: conn.ID}
		cursor, found, err := a.store.GetCursor(conn.ID)
		if err != nil {
			return fmt.Errorf("read cursor for %s: %w", conn.ID, err)
		}
		if found {
			status.Cursor = cursor
		}
		health, found, err := a.store.GetHealth(conn.ID)
		if err != nil {
			return fmt.Errorf("read health for %s: %w", conn.ID, err)
		}
		if found {
			status.Health = health
		}
		statuses = append(statuses, status)
	}

	if cursorOutput == "json" {
		return json.NewEncoder(os.Stdout).Encode(statuses)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONNECTION\tWATERMARK\tLAST SUCCESS\tFAILURES\tSTATUS")
	for _, status := range statuses {
		watermark, lastSuccess := "-", "-"
		failures := 0
		if status.Cursor != nil {
			if status.Cursor.Watermark != "" {
				watermark = status.Cursor.Watermark
			}
			if !status.Cursor.LastSuccessAt.IsZero() {
				lastSuccess = status.Cursor.LastSuccessAt.Format("2006-01-02 15:04")
			}
			failures = status.Cursor.ConsecutiveFailures
		}
		healthStatus := "unknown"
		if status.Health != nil {
			healthStatus = string(status.Health.Status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			status.ConnectionID, watermark, lastSuccess, failures, healthStatus)
	}
	return w.Flush()
}

func runCursorReset(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	connectionID := args[0]
	if err := a.tracker.Reset(connectionID); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	if err := a.audit.Append(wal.EntryCursorReset, connectionID, map[string]string{"reason": "operator reset"}); err != nil {
		return fmt.Errorf("journal cursor reset: %w", err)
	}
	fmt.Printf("Cursor reset for %s, next sync will take a full snapshot\n", connectionID)
	return nil
}
